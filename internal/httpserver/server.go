// Package httpserver is the streaming core's ops-facing HTTP surface:
// health/ready/live probes, a Prometheus /metrics endpoint, and a
// /debug/handlers snapshot, routed via gorilla/mux. No track data ever
// flows over this surface.
package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/arifainchtein/librespot-go/internal/debug"
	"github.com/arifainchtein/librespot-go/internal/handler"
	"github.com/arifainchtein/librespot-go/internal/metadata"
	"github.com/arifainchtein/librespot-go/internal/metrics"
	"github.com/arifainchtein/librespot-go/internal/middleware"
)

// HandlerSnapshot is one Track Handler's state as reported by
// /debug/handlers.
type HandlerSnapshot struct {
	ID          string `json:"id"`
	State       string `json:"state"`
	TrackID     string `json:"track_id,omitempty"`
	PositionMS  int64  `json:"position_ms"`
	VolumePct   int    `json:"volume_pct"`
}

// Registry supplies the live Track Handlers to snapshot.
type Registry interface {
	Handlers() []*handler.Handler
}

// Server is the ops HTTP server.
type Server struct {
	httpServer *http.Server
	metrics    *metrics.Metrics
	registry   Registry
	readyCheck func() error
	log        *logrus.Entry
}

// Config configures the ops HTTP server.
type Config struct {
	ListenAddr string
	Metrics    *metrics.Metrics
	Registry   Registry
	// ReadyCheck, if non-nil, is invoked by /readyz; a non-nil error
	// reports the service as not ready.
	ReadyCheck func() error
	Log        *logrus.Entry
}

// New builds a Server. Call Start to begin serving.
func New(cfg Config) *Server {
	if cfg.Log == nil {
		cfg.Log = logrus.NewEntry(logrus.StandardLogger())
	}

	s := &Server{
		metrics:    cfg.Metrics,
		registry:   cfg.Registry,
		readyCheck: cfg.ReadyCheck,
		log:        cfg.Log,
	}

	router := mux.NewRouter()
	s.registerRoutes(router)

	wrapped := middleware.RecoveryMiddleware(logrus.StandardLogger())(router)
	wrapped = middleware.LoggingMiddleware(logrus.StandardLogger())(wrapped)

	s.httpServer = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      wrapped,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) registerRoutes(r *mux.Router) {
	r.HandleFunc("/healthz", metrics.HealthHandler()).Methods("GET")
	r.HandleFunc("/readyz", metrics.ReadinessHandler(s.readyCheckCtx)).Methods("GET")
	r.HandleFunc("/livez", metrics.LivenessHandler()).Methods("GET")

	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler()).Methods("GET")
	}

	r.HandleFunc("/debug/handlers", s.handleDebugHandlers).Methods("GET")
}

func (s *Server) readyCheckCtx(ctx context.Context) error {
	if s.readyCheck == nil {
		return nil
	}
	return s.readyCheck()
}

// handleDebugHandlers serves a JSON snapshot of every live Track
// Handler's state, track id, and position, guarded by
// internal/debug.Enabled() so it's never exposed in production by
// accident.
func (s *Server) handleDebugHandlers(w http.ResponseWriter, r *http.Request) {
	if !debug.Enabled() {
		http.Error(w, "debug endpoints disabled", http.StatusForbidden)
		return
	}

	var snapshots []HandlerSnapshot
	if s.registry != nil {
		for _, h := range s.registry.Handlers() {
			snap := HandlerSnapshot{
				ID:         h.ID(),
				State:      h.State().String(),
				VolumePct:  int(h.Controller().Volume() * 100),
				PositionMS: h.Controller().Time(),
			}
			if item := h.Track(); item != nil {
				snap.TrackID = trackIDString(item.ID)
			}
			snapshots = append(snapshots, snap)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(snapshots)
}

func trackIDString(id metadata.TrackID) string {
	return id.String()
}

// Start begins serving and blocks until the listener returns a non-
// ErrServerClosed error.
func (s *Server) Start() error {
	s.log.WithField("addr", s.httpServer.Addr).Info("httpserver: listening")
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops the server immediately via http.Server.Close, closing
// the listener and any active connections without waiting for in-flight
// requests.
func (s *Server) Shutdown() error {
	return s.httpServer.Close()
}
