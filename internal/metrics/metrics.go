// Package metrics exposes Prometheus metrics for the streaming core:
// chunk fetch/decrypt operations and Track Handler lifecycle activity.
package metrics

import (
	"context"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/arifainchtein/librespot-go/internal/handler"
)

var defaultRegistry = prometheus.DefaultRegisterer

// Config holds metrics configuration.
type Config struct {
	// EnableSourceLabel controls whether chunk fetch metrics carry a
	// per-source (channel/cache_redis/cache_s3/cdn) label, or collapse
	// to "*" as a cardinality guard.
	EnableSourceLabel bool
}

// Metrics holds all application metrics.
type Metrics struct {
	config Config

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpRequestBytes    *prometheus.CounterVec

	chunkFetchTotal    *prometheus.CounterVec
	chunkFetchDuration *prometheus.HistogramVec
	chunkFetchErrors   *prometheus.CounterVec

	chunkDecryptTotal    prometheus.Counter
	chunkDecryptDuration prometheus.Histogram
	chunkDecryptErrors   prometheus.Counter
	chunkDecryptBytes    prometheus.Counter

	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	handlerCommandsTotal          *prometheus.CounterVec
	handlerState                  *prometheus.GaugeVec
	handlerStateTransitionsTotal  *prometheus.CounterVec

	activeStreams      prometheus.Gauge
	goroutines         prometheus.Gauge
	memoryAllocBytes   prometheus.Gauge
	memorySysBytes     prometheus.Gauge

	hardwareAccelerationEnabled *prometheus.GaugeVec
}

// NewMetrics creates a new metrics instance with default configuration.
func NewMetrics() *Metrics {
	return NewMetricsWithConfig(Config{EnableSourceLabel: true})
}

// NewMetricsWithConfig creates a new metrics instance with the provided configuration.
func NewMetricsWithConfig(cfg Config) *Metrics {
	return newMetricsWithRegistry(defaultRegistry, cfg)
}

// NewMetricsWithRegistry creates a new metrics instance with a custom registry.
// This is useful for testing to avoid metric registration conflicts.
func NewMetricsWithRegistry(reg prometheus.Registerer) *Metrics {
	return newMetricsWithRegistry(reg, Config{EnableSourceLabel: true})
}

func newMetricsWithRegistry(reg prometheus.Registerer, cfg Config) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		config: cfg,
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of ops HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Ops HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
		httpRequestBytes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_request_bytes_total",
				Help: "Total bytes transferred in ops HTTP requests",
			},
			[]string{"method", "path"},
		),
		chunkFetchTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chunk_fetch_total",
				Help: "Total number of chunk fetches by source",
			},
			[]string{"source"}, // "channel", "cache_redis", "cache_s3", "cdn"
		),
		chunkFetchDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "chunk_fetch_duration_seconds",
				Help:    "Chunk fetch duration in seconds by source",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"source"},
		),
		chunkFetchErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chunk_fetch_errors_total",
				Help: "Total number of chunk fetch errors by source",
			},
			[]string{"source", "error_type"},
		),
		chunkDecryptTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "chunk_decrypt_total",
				Help: "Total number of chunk decrypt operations",
			},
		),
		chunkDecryptDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "chunk_decrypt_duration_seconds",
				Help:    "Chunk decrypt duration in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
			},
		),
		chunkDecryptErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "chunk_decrypt_errors_total",
				Help: "Total number of chunk decrypt errors",
			},
		),
		chunkDecryptBytes: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "chunk_decrypt_bytes_total",
				Help: "Total plaintext bytes produced by chunk decryption",
			},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of chunk cache hits by tier",
			},
			[]string{"tier"}, // "redis", "s3"
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of chunk cache misses by tier",
			},
			[]string{"tier"},
		),
		handlerCommandsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "handler_commands_total",
				Help: "Total number of Track Handler commands processed",
			},
			[]string{"command"},
		),
		handlerState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "handler_state",
				Help: "Current Track Handler lifecycle state, by handler id (numeric State value)",
			},
			[]string{"handler_id"},
		),
		handlerStateTransitionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "handler_state_transitions_total",
				Help: "Total number of Track Handler state transitions",
			},
			[]string{"from", "to"},
		),
		activeStreams: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "active_streams",
				Help: "Number of currently open Chunked Streams",
			},
		),
		goroutines: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "goroutines_total",
				Help: "Number of goroutines",
			},
		),
		memoryAllocBytes: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "memory_alloc_bytes",
				Help: "Number of bytes allocated and not yet freed",
			},
		),
		memorySysBytes: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "memory_sys_bytes",
				Help: "Total bytes of memory obtained from OS",
			},
		),
		hardwareAccelerationEnabled: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "hardware_acceleration_enabled",
				Help: "Hardware acceleration status (1=enabled, 0=disabled)",
			},
			[]string{"type"},
		),
	}
}

// SetHardwareAccelerationStatus sets the hardware acceleration status metric.
func (m *Metrics) SetHardwareAccelerationStatus(accelType string, enabled bool) {
	val := 0.0
	if enabled {
		val = 1.0
	}
	m.hardwareAccelerationEnabled.WithLabelValues(accelType).Set(val)
}

// RecordHTTPRequest records an ops HTTP request metric.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, status int, duration time.Duration, bytes int64) {
	label := sanitizePathLabel(path)
	labels := prometheus.Labels{"method": method, "path": label, "status": http.StatusText(status)}

	if exemplar := getExemplar(ctx); exemplar != nil {
		if adder, ok := m.httpRequestsTotal.With(labels).(prometheus.ExemplarAdder); ok {
			adder.AddWithExemplar(1, exemplar)
		} else {
			m.httpRequestsTotal.With(labels).Inc()
		}
		if observer, ok := m.httpRequestDuration.With(labels).(prometheus.ExemplarObserver); ok {
			observer.ObserveWithExemplar(duration.Seconds(), exemplar)
		} else {
			m.httpRequestDuration.With(labels).Observe(duration.Seconds())
		}
	} else {
		m.httpRequestsTotal.With(labels).Inc()
		m.httpRequestDuration.With(labels).Observe(duration.Seconds())
	}

	m.httpRequestBytes.WithLabelValues(method, label).Add(float64(bytes))
}

// sanitizePathLabel reduces high-cardinality paths to stable labels.
func sanitizePathLabel(path string) string {
	if path == "" || path == "/" {
		return "/"
	}
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	segs := strings.Split(strings.TrimPrefix(path, "/"), "/")
	if len(segs) <= 1 {
		return "/" + segs[0]
	}
	return "/" + segs[0] + "/*"
}

func (m *Metrics) sourceLabel(source string) string {
	if !m.config.EnableSourceLabel {
		return "*"
	}
	return source
}

// RecordChunkFetch records a chunk fetch from a given source
// (channel/cache_redis/cache_s3/cdn).
func (m *Metrics) RecordChunkFetch(ctx context.Context, source string, duration time.Duration) {
	label := m.sourceLabel(source)

	if exemplar := getExemplar(ctx); exemplar != nil {
		if adder, ok := m.chunkFetchTotal.WithLabelValues(label).(prometheus.ExemplarAdder); ok {
			adder.AddWithExemplar(1, exemplar)
		} else {
			m.chunkFetchTotal.WithLabelValues(label).Inc()
		}
		if observer, ok := m.chunkFetchDuration.WithLabelValues(label).(prometheus.ExemplarObserver); ok {
			observer.ObserveWithExemplar(duration.Seconds(), exemplar)
		} else {
			m.chunkFetchDuration.WithLabelValues(label).Observe(duration.Seconds())
		}
	} else {
		m.chunkFetchTotal.WithLabelValues(label).Inc()
		m.chunkFetchDuration.WithLabelValues(label).Observe(duration.Seconds())
	}
}

// RecordChunkFetchError records a chunk fetch failure from a given source.
func (m *Metrics) RecordChunkFetchError(ctx context.Context, source, errorType string) {
	label := m.sourceLabel(source)

	if exemplar := getExemplar(ctx); exemplar != nil {
		if adder, ok := m.chunkFetchErrors.WithLabelValues(label, errorType).(prometheus.ExemplarAdder); ok {
			adder.AddWithExemplar(1, exemplar)
		} else {
			m.chunkFetchErrors.WithLabelValues(label, errorType).Inc()
		}
	} else {
		m.chunkFetchErrors.WithLabelValues(label, errorType).Inc()
	}
}

// RecordChunkDecrypt records a successful chunk decrypt operation.
func (m *Metrics) RecordChunkDecrypt(ctx context.Context, duration time.Duration, plaintextBytes int64) {
	if exemplar := getExemplar(ctx); exemplar != nil {
		if adder, ok := m.chunkDecryptTotal.(prometheus.ExemplarAdder); ok {
			adder.AddWithExemplar(1, exemplar)
		} else {
			m.chunkDecryptTotal.Inc()
		}
		if observer, ok := m.chunkDecryptDuration.(prometheus.ExemplarObserver); ok {
			observer.ObserveWithExemplar(duration.Seconds(), exemplar)
		} else {
			m.chunkDecryptDuration.Observe(duration.Seconds())
		}
	} else {
		m.chunkDecryptTotal.Inc()
		m.chunkDecryptDuration.Observe(duration.Seconds())
	}
	m.chunkDecryptBytes.Add(float64(plaintextBytes))
}

// RecordChunkDecryptError records a chunk decrypt failure (bad chunk size,
// key derivation failure — always a caller bug).
func (m *Metrics) RecordChunkDecryptError() {
	m.chunkDecryptErrors.Inc()
}

// RecordCacheHit records a cache hit in the given tier ("redis"/"s3").
func (m *Metrics) RecordCacheHit(tier string) {
	m.cacheHits.WithLabelValues(tier).Inc()
}

// RecordCacheMiss records a cache miss in the given tier.
func (m *Metrics) RecordCacheMiss(tier string) {
	m.cacheMisses.WithLabelValues(tier).Inc()
}

// IncCommand implements handler.MetricsRecorder.
func (m *Metrics) IncCommand(command string) {
	m.handlerCommandsTotal.WithLabelValues(command).Inc()
}

// SetState implements handler.MetricsRecorder.
func (m *Metrics) SetState(handlerID string, state handler.State) {
	m.handlerState.WithLabelValues(handlerID).Set(float64(state))
}

// IncStateTransition implements handler.MetricsRecorder.
func (m *Metrics) IncStateTransition(from, to handler.State) {
	m.handlerStateTransitionsTotal.WithLabelValues(from.String(), to.String()).Inc()
}

// IncrementActiveStreams increments the active Chunked Stream gauge.
func (m *Metrics) IncrementActiveStreams() {
	m.activeStreams.Inc()
}

// DecrementActiveStreams decrements the active Chunked Stream gauge.
func (m *Metrics) DecrementActiveStreams() {
	m.activeStreams.Dec()
}

// UpdateSystemMetrics updates system-level metrics (goroutines, memory).
func (m *Metrics) UpdateSystemMetrics() {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	m.goroutines.Set(float64(runtime.NumGoroutine()))
	m.memoryAllocBytes.Set(float64(memStats.Alloc))
	m.memorySysBytes.Set(float64(memStats.Sys))
}

// StartSystemMetricsCollector starts a goroutine that periodically updates system metrics.
func (m *Metrics) StartSystemMetricsCollector() {
	ticker := time.NewTicker(5 * time.Second)
	go func() {
		for range ticker.C {
			m.UpdateSystemMetrics()
		}
	}()
}

// Handler returns the HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}

// getExemplar extracts trace ID from context and returns prometheus Labels for exemplar.
func getExemplar(ctx context.Context) prometheus.Labels {
	if ctx == nil {
		return nil
	}
	spanContext := trace.SpanFromContext(ctx).SpanContext()
	if spanContext.IsValid() {
		return prometheus.Labels{"trace_id": spanContext.TraceID().String()}
	}
	return nil
}
