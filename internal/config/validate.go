package config

import (
	"fmt"
	"slices"
)

// Validation bounds for the sync section.
const (
	MinSyncIntervalMinutes = 5
	MinBatchSize           = 25
	MaxBatchSize           = 500
	MinSyncTimeoutMs       = 30000
	MinMaxRetries          = 0
	MaxMaxRetries          = 10
)

var validLogLevels = []string{"debug", "info", "warn", "error"}

var validLogFormats = []string{"auto", "text", "json"}

// Validate checks every field against its allowed range. All violations
// are reported one at a time; the first failure wins.
func (c *Config) Validate() error {
	if c.Sync.SyncIntervalMinutes < MinSyncIntervalMinutes {
		return fmt.Errorf("config: sync_interval_minutes must be >= %d, got %d",
			MinSyncIntervalMinutes, c.Sync.SyncIntervalMinutes)
	}

	if c.Sync.BatchSize < MinBatchSize || c.Sync.BatchSize > MaxBatchSize {
		return fmt.Errorf("config: batch_size must be in [%d, %d], got %d",
			MinBatchSize, MaxBatchSize, c.Sync.BatchSize)
	}

	if c.Sync.SyncTimeoutMs < MinSyncTimeoutMs {
		return fmt.Errorf("config: sync_timeout_ms must be >= %d, got %d",
			MinSyncTimeoutMs, c.Sync.SyncTimeoutMs)
	}

	if c.Sync.MaxRetries < MinMaxRetries || c.Sync.MaxRetries > MaxMaxRetries {
		return fmt.Errorf("config: max_retries must be in [%d, %d], got %d",
			MinMaxRetries, MaxMaxRetries, c.Sync.MaxRetries)
	}

	if c.Network.RequestTimeoutMs <= 0 {
		return fmt.Errorf("config: request_timeout_ms must be positive, got %d",
			c.Network.RequestTimeoutMs)
	}

	if c.Network.RateLimitPerMinute <= 0 {
		return fmt.Errorf("config: rate_limit_per_minute must be positive, got %d",
			c.Network.RateLimitPerMinute)
	}

	if !slices.Contains(validLogLevels, c.Logging.Level) {
		return fmt.Errorf("config: log level must be one of %v, got %q",
			validLogLevels, c.Logging.Level)
	}

	if !slices.Contains(validLogFormats, c.Logging.Format) {
		return fmt.Errorf("config: log format must be one of %v, got %q",
			validLogFormats, c.Logging.Format)
	}

	if c.Control.Listen == "" {
		return fmt.Errorf("config: control listen address must not be empty")
	}

	return nil
}
