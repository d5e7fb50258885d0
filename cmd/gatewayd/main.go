// Command gatewayd wires the streaming core's ambient stack — config,
// logging, tracing, metrics, and the ops HTTP server — around a demo
// Track Handler pool. The real metadata and audio-key RPC backends are
// out of scope here: this entrypoint seeds a small in-memory catalog
// instead, the same demo fixture shape used by internal/feeder and
// internal/handler's own tests, so the pipeline can be exercised end to
// end without a live session.
package main

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/arifainchtein/librespot-go/internal/audit"
	"github.com/arifainchtein/librespot-go/internal/cache"
	"github.com/arifainchtein/librespot-go/internal/cdn"
	"github.com/arifainchtein/librespot-go/internal/channel"
	"github.com/arifainchtein/librespot-go/internal/chunksource"
	"github.com/arifainchtein/librespot-go/internal/config"
	"github.com/arifainchtein/librespot-go/internal/crypto"
	"github.com/arifainchtein/librespot-go/internal/debug"
	"github.com/arifainchtein/librespot-go/internal/feeder"
	"github.com/arifainchtein/librespot-go/internal/handler"
	"github.com/arifainchtein/librespot-go/internal/httpserver"
	"github.com/arifainchtein/librespot-go/internal/metadata"
	"github.com/arifainchtein/librespot-go/internal/metrics"
	"github.com/arifainchtein/librespot-go/internal/tracing"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (optional; defaults + env still apply)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.WithError(err).Fatal("gatewayd: failed to load configuration")
	}

	logger := newLogger(cfg.LogLevel)
	debug.InitFromLogLevel(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, cfg.Tracing)
	if err != nil {
		logger.WithError(err).Fatal("gatewayd: failed to set up tracing")
	}
	defer shutdownTracing(context.Background())

	reg := prometheus.NewRegistry()
	m := metrics.NewMetricsWithRegistry(reg)
	m.SetHardwareAccelerationStatus("aes", crypto.IsHardwareAccelerationEnabled(cfg.Hardware))
	m.StartSystemMetricsCollector()

	auditLogger, err := audit.NewLoggerFromConfig(cfg.Audit)
	if err != nil {
		logger.WithError(err).Fatal("gatewayd: failed to build audit logger")
	}
	defer auditLogger.Close()

	cacheHandle := newCacheHandle(ctx, cfg.Cache, logger.WithField("component", "cache"))

	store, seededTrackID := seedDemoCatalog(logger)
	dispatcher := chunksource.NewDispatcher(cfg.PrefetchWorkers)
	demoFeeder := feeder.New(feeder.Deps{
		Metadata:      demoMetadataClient{store: store},
		AudioKey:      store,
		Channel:       channel.NewClient(store.chunks, dispatcher),
		Cache:         cacheHandle,
		ChunkTimeout:  time.Duration(cfg.ChunkTimeoutMS) * time.Millisecond,
		PrefetchAhead: cfg.PrefetchAhead,
		Log:           logger.WithField("component", "feeder"),
	})

	pool := newHandlerPool()
	demoHandler := handler.New(handler.Deps{
		ID:               "demo-handler-0",
		Feeder:           demoFeeder,
		Audit:            auditLogger,
		Metrics:          m,
		Log:              logger.WithField("component", "handler"),
		PreferredQuality: cfg.PreferredQuality,
		UseCDN:           cfg.UseCDN,
	})
	pool.add(demoHandler)

	if err := demoHandler.SendLoad(seededTrackID, false, 0); err != nil {
		logger.WithError(err).Warn("gatewayd: demo handler failed to load seeded track")
	}

	server := httpserver.New(httpserver.Config{
		ListenAddr: cfg.ListenAddr,
		Metrics:    m,
		Registry:   pool,
		Log:        logger.WithField("component", "httpserver"),
	})

	go func() {
		if err := server.Start(); err != nil {
			logger.WithError(err).Error("gatewayd: ops http server stopped")
		}
	}()

	<-ctx.Done()
	logger.Info("gatewayd: shutting down")
	server.Shutdown()
	pool.stopAll()
}

func newLogger(level string) *logrus.Entry {
	l := logrus.New()
	l.SetFormatter(&logrus.JSONFormatter{})
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	l.SetLevel(parsed)
	return logrus.NewEntry(l)
}

// handlerPool is the demo Track Handler pool, satisfying
// httpserver.Registry for the /debug/handlers snapshot.
type handlerPool struct {
	handlers []*handler.Handler
}

func newHandlerPool() *handlerPool { return &handlerPool{} }

func (p *handlerPool) add(h *handler.Handler) { p.handlers = append(p.handlers, h) }

func (p *handlerPool) Handlers() []*handler.Handler { return p.handlers }

func (p *handlerPool) stopAll() {
	for _, h := range p.handlers {
		h.SendStop()
		select {
		case <-h.Done():
		case <-time.After(2 * time.Second):
		}
	}
}

// --- demo in-memory catalog, out-of-scope collaborators replaced with a
// fixture ------------------------------------------------------------

type demoStore struct {
	chunks *channel.MapStore
	item   feeder.PlayableItem
	fileID metadata.FileID
	key    [crypto.KeySize]byte
}

func (s *demoStore) GetFileKey(_ context.Context, _ metadata.TrackID, _ metadata.FileID) ([crypto.KeySize]byte, error) {
	return s.key, nil
}

type demoMetadataClient struct {
	store *demoStore
}

func (d demoMetadataClient) Resolve(_ context.Context, id metadata.TrackID) (feeder.PlayableItem, error) {
	if !id.Equal(d.store.item.ID) {
		return feeder.PlayableItem{}, errors.New("demo catalog: unknown track")
	}
	return d.store.item, nil
}

// newCacheHandle wires internal/cache's redis+S3 two-tier CacheProvider
// from cfg.Cache. Redis is mandatory for the cache path to activate; a
// missing RedisAddr disables caching entirely and the feeder falls back
// to the channel-only path (chunksource.CacheProvider left nil, not a
// non-nil interface wrapping a nil *cache.Handle).
func newCacheHandle(ctx context.Context, cfg config.CacheConfig, log *logrus.Entry) chunksource.CacheProvider {
	if cfg.RedisAddr == "" {
		return nil
	}

	redisClient := cache.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)

	var s3Client cache.S3API
	if cfg.S3Bucket != "" {
		client, err := cache.NewS3Client(ctx, cfg.S3Region, cfg.S3Endpoint, "", "")
		if err != nil {
			log.WithError(err).Warn("gatewayd: cache: failed to build s3 client, cold tier disabled")
		} else {
			s3Client = client
		}
	}

	return cache.NewHandle(redisClient, s3Client, cfg.S3Bucket, cache.WithLogger(log))
}

// seedDemoCatalog builds a single synthetic, decryptable single-chunk
// track so gatewayd has something to Load on boot. cdn.NewClient is
// constructed here even though the demo catalog never takes the CDN
// path (UseCDN defaults to false); a real deployment wires internal/cdn
// the same way for episodes.
func seedDemoCatalog(log *logrus.Entry) (*demoStore, metadata.TrackID) {
	_ = cdn.NewClient(&http.Client{Timeout: 10 * time.Second}, crypto.ChunkSize)

	raw := make([]byte, 16)
	raw[0] = 0x7a
	trackID, err := metadata.NewTrackID(raw)
	if err != nil {
		log.WithError(err).Fatal("gatewayd: failed to build demo track id")
	}

	var fileID metadata.FileID
	fileID[0] = 0x01

	var key [crypto.KeySize]byte
	if _, err := rand.Read(key[:]); err != nil {
		log.WithError(err).Fatal("gatewayd: failed to generate demo file key")
	}

	preamble := make([]byte, crypto.PreambleSkip)
	for i := range preamble {
		preamble[i] = crypto.PreambleByte
	}
	normalization := make([]byte, crypto.NormalizationSize)
	audioTail := []byte("this is demo audio content seeded at gatewayd boot")
	content := append(append(append([]byte{}, preamble...), normalization...), audioTail...)
	// The header records the size in 4-byte words, so pad to a whole word.
	content = append(content, make([]byte, (4-len(content)%4)%4)...)

	header := buildHeaderBlock(int64(len(content)))
	plaintext := append(append([]byte{}, header...), content...)
	ciphertext := encryptWithStandardIV(key, plaintext)

	chunks := channel.NewMapStore()
	chunks.Put(fileID, [][]byte{ciphertext})

	store := &demoStore{
		chunks: chunks,
		fileID: fileID,
		key:    key,
		item: feeder.PlayableItem{
			ID:    trackID,
			Files: []metadata.AudioFile{{ID: fileID, Format: metadata.FormatVorbis160}},
		},
	}
	return store, trackID
}

// buildHeaderBlock mirrors the (id:u8, length:u16, payload) record
// internal/feeder parses out of chunk 0, terminated by headerIDEnd=0x0.
func buildHeaderBlock(fileSizeBytes int64) []byte {
	sizePayload := make([]byte, 4)
	binary.BigEndian.PutUint32(sizePayload, uint32(fileSizeBytes/4))
	buf := []byte{0x03, 0x00, 0x04}
	buf = append(buf, sizePayload...)
	buf = append(buf, 0x00)
	return buf
}

func encryptWithStandardIV(key [crypto.KeySize]byte, plaintext []byte) []byte {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		panic(err)
	}
	s := cipher.NewCTR(block, crypto.StandardIV[:])
	ct := make([]byte, len(plaintext))
	s.XORKeyStream(ct, plaintext)
	return ct
}
