package config

import "sync"

// Holder provides thread-safe access to a mutable *Config and an immutable
// config file path. The sync engine, the control server, and the file
// watcher all read through a shared Holder, so a runtime update lands in
// exactly one place.
type Holder struct {
	mu   sync.RWMutex
	cfg  *Config
	path string // immutable after construction
}

// NewHolder creates a Holder with the initial config and file path.
func NewHolder(cfg *Config, path string) *Holder {
	return &Holder{
		cfg:  cfg,
		path: path,
	}
}

// Config returns the current config snapshot. Thread-safe (read lock).
func (h *Holder) Config() *Config {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.cfg
}

// Path returns the config file path. No locking needed because the path
// is immutable after construction.
func (h *Holder) Path() string {
	return h.path
}

// Update replaces the config after validating it.
func (h *Holder) Update(cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.cfg = cfg

	return nil
}
