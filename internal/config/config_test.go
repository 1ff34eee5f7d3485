package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	require.Equal(t, 3, cfg.Ingest.Concurrency)
	require.Equal(t, "local", cfg.Checkpoint.Backend)
}

func TestLoadOverlaysFileOnDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
ingest:
  concurrency: 8
  batch_size: 500
  request_delay_ms: 50
metrics:
  listen_addr: ":9200"
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, 8, cfg.Ingest.Concurrency)
	require.Equal(t, 500, cfg.Ingest.BatchSize)
	require.Equal(t, 50*time.Millisecond, cfg.Ingest.GetRequestDelay())
	require.Equal(t, ":9200", cfg.Metrics.ListenAddr)
	// Untouched sections keep defaults.
	require.Equal(t, "localhost:9000", cfg.ClickHouse.Addr)
	require.Equal(t, 5*time.Minute, cfg.Alerting.GetDedupeWindow())
}

func TestLoadRejectsBadBackend(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("checkpoint:\n  backend: redis\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "checkpoint.backend")
}

func TestEnvOverridesCredentials(t *testing.T) {
	t.Setenv("CRYPTORUN_BINANCE_API_KEY", "env-key")
	t.Setenv("CRYPTORUN_BINANCE_API_SECRET", "env-secret")
	t.Setenv("CRYPTORUN_CLICKHOUSE_PASSWORD", "env-pass")

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "env-key", cfg.Venues["binance"].APIKey)
	require.Equal(t, "env-secret", cfg.Venues["binance"].APISecret)
	require.Equal(t, "env-pass", cfg.ClickHouse.Password)
}
