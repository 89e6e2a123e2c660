// Package config implements TOML configuration loading, validation, and
// thread-safe runtime access for hostmirror. Configuration can be updated
// at runtime through the control API or by editing the file (picked up by
// the fsnotify watcher).
package config

// Config is the top-level structure parsed from the TOML file.
type Config struct {
	Sync    SyncConfig    `toml:"sync" json:"sync"`
	Network NetworkConfig `toml:"network" json:"network"`
	Logging LoggingConfig `toml:"logging" json:"logging"`
	Control ControlConfig `toml:"control" json:"control"`
}

// SyncConfig controls the mirror job.
type SyncConfig struct {
	AutoSync                 bool `toml:"auto_sync" json:"auto_sync"`
	SyncIntervalMinutes      int  `toml:"sync_interval_minutes" json:"sync_interval_minutes"`
	BatchSize                int  `toml:"batch_size" json:"batch_size"`
	EnableDuplicateDetection bool `toml:"enable_duplicate_detection" json:"enable_duplicate_detection"`
	SyncTimeoutMs            int  `toml:"sync_timeout_ms" json:"sync_timeout_ms"`
	MaxRetries               int  `toml:"max_retries" json:"max_retries"`
}

// NetworkConfig controls the HTTP client and rate limiter.
type NetworkConfig struct {
	APIBase            string `toml:"api_base" json:"api_base"`
	OAuthBase          string `toml:"oauth_base" json:"oauth_base"`
	RequestTimeoutMs   int    `toml:"request_timeout_ms" json:"request_timeout_ms"`
	RateLimitPerMinute int    `toml:"rate_limit_per_minute" json:"rate_limit_per_minute"`
	RateLimitBurst     int    `toml:"rate_limit_burst" json:"rate_limit_burst"`
}

// LoggingConfig controls log verbosity and output format.
type LoggingConfig struct {
	Level  string `toml:"level" json:"level"`   // debug, info, warn, error
	Format string `toml:"format" json:"format"` // auto, text, json
}

// ControlConfig controls the local job-control HTTP server.
type ControlConfig struct {
	Listen         string   `toml:"listen" json:"listen"`
	AllowedOrigins []string `toml:"allowed_origins" json:"allowed_origins"`
}
