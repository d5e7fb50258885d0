// Package config provides the streaming core's layered configuration:
// built-in defaults, overridden by an optional YAML file, overridden by
// environment variables, with the YAML file hot-reloaded via fsnotify.
package config

import (
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/arifainchtein/librespot-go/internal/crypto"
	"github.com/arifainchtein/librespot-go/internal/metadata"
)

// AuditSinkConfig configures where audit events are written.
type AuditSinkConfig struct {
	Type          string            `yaml:"type"` // "stdout", "file", "http"
	Endpoint      string            `yaml:"endpoint"`
	FilePath      string            `yaml:"file_path"`
	Headers       map[string]string `yaml:"headers"`
	BatchSize     int               `yaml:"batch_size"`
	FlushInterval time.Duration     `yaml:"flush_interval"`
	RetryCount    int               `yaml:"retry_count"`
	RetryBackoff  time.Duration     `yaml:"retry_backoff"`
}

// AuditConfig configures internal/audit.NewLoggerFromConfig.
type AuditConfig struct {
	Enabled            bool            `yaml:"enabled"`
	MaxEvents          int             `yaml:"max_events"`
	RedactMetadataKeys []string        `yaml:"redact_metadata_keys"`
	Sink               AuditSinkConfig `yaml:"sink"`
}

// TracingConfig selects and configures the OpenTelemetry exporter.
type TracingConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"service_name"`
	// Exporter is one of "otlp", "stdout", "jaeger", "none".
	Exporter      string  `yaml:"exporter"`
	OTLPEndpoint  string  `yaml:"otlp_endpoint"`
	JaegerURL     string  `yaml:"jaeger_url"`
	SampleRatio   float64 `yaml:"sample_ratio"`
}

// CacheConfig wires internal/cache's two-tier redis+S3 handle.
type CacheConfig struct {
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`

	S3Bucket   string `yaml:"s3_bucket"`
	S3Region   string `yaml:"s3_region"`
	S3Endpoint string `yaml:"s3_endpoint"` // non-empty to target e.g. MinIO in dev
}

// CDNConfig wires internal/cdn.Client.
type CDNConfig struct {
	BaseURL        string        `yaml:"base_url"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// Config is the streaming core's full configuration surface: playback
// tuning (PreferredQuality, UseCDN, ChunkTimeoutMS, PrefetchAhead) plus
// the ambient fields needed to wire the concrete collaborators.
type Config struct {
	ListenAddr string `yaml:"listen_addr"`
	LogLevel   string `yaml:"log_level"`

	PreferredQuality metadata.QualityPreference `yaml:"preferred_quality"`
	UseCDN           bool                       `yaml:"use_cdn"`
	ChunkTimeoutMS   int64                      `yaml:"chunk_timeout_ms"`
	PrefetchAhead    int                        `yaml:"prefetch_ahead"`
	PrefetchWorkers  int                        `yaml:"prefetch_workers"`

	Hardware crypto.HardwareConfig `yaml:"hardware"`

	Cache   CacheConfig   `yaml:"cache"`
	CDN     CDNConfig     `yaml:"cdn"`
	Audit   AuditConfig   `yaml:"audit"`
	Tracing TracingConfig `yaml:"tracing"`
}

// Default returns the built-in defaults, the first layer applied before
// any YAML file or environment variable override.
func Default() Config {
	return Config{
		ListenAddr:       ":8080",
		LogLevel:         "info",
		PreferredQuality: metadata.Quality160,
		UseCDN:           false,
		ChunkTimeoutMS:   10_000,
		PrefetchAhead:    1,
		PrefetchWorkers:  4,
		Hardware: crypto.HardwareConfig{
			EnableAESNI:    true,
			EnableARMv8AES: true,
		},
		Cache: CacheConfig{
			RedisAddr: "localhost:6379",
		},
		CDN: CDNConfig{
			RequestTimeout: 10 * time.Second,
		},
		Audit: AuditConfig{
			Enabled:   true,
			MaxEvents: 1000,
			Sink:      AuditSinkConfig{Type: "stdout"},
		},
		Tracing: TracingConfig{
			Enabled:     true,
			ServiceName: "librespot-streaming-core",
			Exporter:    "stdout",
			SampleRatio: 1.0,
		},
	}
}

// Load builds a Config by layering defaults, an optional YAML file at
// path (skipped if empty or missing), and environment variable
// overrides.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := mergeYAMLFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}

	applyEnvOverrides(&cfg)

	return cfg, nil
}

func mergeYAMLFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("USE_CDN"); v != "" {
		cfg.UseCDN = v == "true" || v == "1"
	}
	if v := os.Getenv("CHUNK_TIMEOUT_MS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.ChunkTimeoutMS = n
		}
	}
	if v := os.Getenv("PREFETCH_AHEAD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.PrefetchAhead = n
		}
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Cache.RedisAddr = v
	}
	if v := os.Getenv("S3_BUCKET"); v != "" {
		cfg.Cache.S3Bucket = v
	}
	if v := os.Getenv("OTLP_ENDPOINT"); v != "" {
		cfg.Tracing.OTLPEndpoint = v
		cfg.Tracing.Exporter = "otlp"
	}
}

// Watcher hot-reloads Config from a YAML file via fsnotify.
type Watcher struct {
	path string

	mu  sync.RWMutex
	cur Config

	watcher *fsnotify.Watcher
	onChange func(Config)
	done     chan struct{}
}

// NewWatcher loads the initial configuration from path and starts
// watching it for changes. onChange, if non-nil, is invoked (from the
// watcher's own goroutine) after every successful reload.
func NewWatcher(path string, onChange func(Config)) (*Watcher, error) {
	initial, err := Load(path)
	if err != nil {
		return nil, err
	}

	w := &Watcher{path: path, cur: initial, onChange: onChange, done: make(chan struct{})}

	if path == "" {
		return w, nil
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: new fsnotify watcher: %w", err)
	}
	if err := fw.Add(path); err != nil {
		fw.Close()
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}
	w.watcher = fw

	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			cfg, err := Load(w.path)
			if err != nil {
				continue
			}
			w.mu.Lock()
			w.cur = cfg
			w.mu.Unlock()
			if w.onChange != nil {
				w.onChange(cfg)
			}
		case _, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
		case <-w.done:
			return
		}
	}
}

// Current returns the most recently loaded Config.
func (w *Watcher) Current() Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.cur
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	if w.watcher != nil {
		return w.watcher.Close()
	}
	return nil
}
