package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arifainchtein/librespot-go/internal/metadata"
)

func TestDefaultValues(t *testing.T) {
	cfg := Default()
	require.Equal(t, metadata.Quality160, cfg.PreferredQuality)
	require.False(t, cfg.UseCDN)
	require.Equal(t, int64(10_000), cfg.ChunkTimeoutMS)
	require.Equal(t, 1, cfg.PrefetchAhead)
}

func TestLoadMergesYAMLOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
use_cdn: true
prefetch_ahead: 3
cache:
  redis_addr: redis.internal:6379
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.True(t, cfg.UseCDN)
	require.Equal(t, 3, cfg.PrefetchAhead)
	require.Equal(t, "redis.internal:6379", cfg.Cache.RedisAddr)
	// untouched fields keep their defaults
	require.Equal(t, int64(10_000), cfg.ChunkTimeoutMS)
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}

func TestEnvOverridesBeatYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`use_cdn: false`), 0o644))

	t.Setenv("USE_CDN", "true")
	t.Setenv("PREFETCH_AHEAD", "7")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.True(t, cfg.UseCDN)
	require.Equal(t, 7, cfg.PrefetchAhead)
}

func TestWatcherReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`prefetch_ahead: 1`), 0o644))

	reloaded := make(chan Config, 1)
	w, err := NewWatcher(path, func(c Config) {
		select {
		case reloaded <- c:
		default:
		}
	})
	require.NoError(t, err)
	defer w.Close()
	require.Equal(t, 1, w.Current().PrefetchAhead)

	require.NoError(t, os.WriteFile(path, []byte(`prefetch_ahead: 9`), 0o644))

	select {
	case cfg := <-reloaded:
		require.Equal(t, 9, cfg.PrefetchAhead)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not observe file change")
	}
	require.Equal(t, 9, w.Current().PrefetchAhead)
}
