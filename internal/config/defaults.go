package config

// Default returns the built-in configuration, used when no file exists
// and as the base the TOML file overrides.
func Default() *Config {
	return &Config{
		Sync: SyncConfig{
			AutoSync:                 false,
			SyncIntervalMinutes:      60,
			BatchSize:                100,
			EnableDuplicateDetection: true,
			SyncTimeoutMs:            300000,
			MaxRetries:               3,
		},
		Network: NetworkConfig{
			RequestTimeoutMs:   30000,
			RateLimitPerMinute: 250,
			RateLimitBurst:     10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "auto",
		},
		Control: ControlConfig{
			Listen:         "127.0.0.1:8487",
			AllowedOrigins: []string{"http://localhost:5173"},
		},
	}
}
