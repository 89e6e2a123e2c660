package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestDefault_IsValid(t *testing.T) {
	assert.NoError(t, Default().Validate())
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"), slog.Default())
	require.NoError(t, err)

	assert.Equal(t, Default(), cfg)
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
[sync]
auto_sync = true
batch_size = 250

[logging]
level = "debug"
`)

	cfg, err := Load(path, slog.Default())
	require.NoError(t, err)

	assert.True(t, cfg.Sync.AutoSync)
	assert.Equal(t, 250, cfg.Sync.BatchSize)
	assert.Equal(t, "debug", cfg.Logging.Level)

	// Untouched sections keep their defaults.
	assert.Equal(t, 60, cfg.Sync.SyncIntervalMinutes)
	assert.Equal(t, 250, cfg.Network.RateLimitPerMinute)
}

func TestLoad_UnknownKeyRejected(t *testing.T) {
	path := writeConfig(t, `
[sync]
batch_sizee = 100
`)

	_, err := Load(path, slog.Default())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown key")
}

func TestLoad_MalformedTOML(t *testing.T) {
	path := writeConfig(t, `[sync`)

	_, err := Load(path, slog.Default())
	assert.Error(t, err)
}

func TestLoad_InvalidValuesRejected(t *testing.T) {
	path := writeConfig(t, `
[sync]
batch_size = 1
`)

	_, err := Load(path, slog.Default())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "batch_size")
}

func TestValidate_Bounds(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"interval too small", func(c *Config) { c.Sync.SyncIntervalMinutes = 4 }, "sync_interval_minutes"},
		{"batch too small", func(c *Config) { c.Sync.BatchSize = 24 }, "batch_size"},
		{"batch too large", func(c *Config) { c.Sync.BatchSize = 501 }, "batch_size"},
		{"timeout too small", func(c *Config) { c.Sync.SyncTimeoutMs = 1000 }, "sync_timeout_ms"},
		{"retries negative", func(c *Config) { c.Sync.MaxRetries = -1 }, "max_retries"},
		{"retries too large", func(c *Config) { c.Sync.MaxRetries = 11 }, "max_retries"},
		{"request timeout", func(c *Config) { c.Network.RequestTimeoutMs = 0 }, "request_timeout_ms"},
		{"rate limit", func(c *Config) { c.Network.RateLimitPerMinute = 0 }, "rate_limit_per_minute"},
		{"log level", func(c *Config) { c.Logging.Level = "loud" }, "log level"},
		{"log format", func(c *Config) { c.Logging.Format = "yaml" }, "log format"},
		{"listen empty", func(c *Config) { c.Control.Listen = "" }, "listen"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidate_BoundaryValuesAccepted(t *testing.T) {
	cfg := Default()
	cfg.Sync.SyncIntervalMinutes = MinSyncIntervalMinutes
	cfg.Sync.BatchSize = MinBatchSize
	cfg.Sync.SyncTimeoutMs = MinSyncTimeoutMs
	cfg.Sync.MaxRetries = MaxMaxRetries

	assert.NoError(t, cfg.Validate())

	cfg.Sync.BatchSize = MaxBatchSize
	assert.NoError(t, cfg.Validate())
}

func TestHolder_UpdateValidatesFirst(t *testing.T) {
	h := NewHolder(Default(), "/tmp/config.toml")

	assert.Equal(t, "/tmp/config.toml", h.Path())
	assert.Equal(t, 100, h.Config().Sync.BatchSize)

	good := Default()
	good.Sync.BatchSize = 200
	require.NoError(t, h.Update(good))
	assert.Equal(t, 200, h.Config().Sync.BatchSize)

	bad := Default()
	bad.Sync.BatchSize = 1
	require.Error(t, h.Update(bad))
	assert.Equal(t, 200, h.Config().Sync.BatchSize, "a rejected update keeps the previous config")
}
