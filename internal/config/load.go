package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// DefaultPath returns the platform config file path
// (~/.config/hostmirror/config.toml, honoring XDG_CONFIG_HOME).
func DefaultPath() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("config: resolving config dir: %w", err)
	}

	return filepath.Join(base, "hostmirror", "config.toml"), nil
}

// DefaultDataDir returns the directory for the mirror database
// (~/.local/share/hostmirror, honoring XDG_DATA_HOME).
func DefaultDataDir() (string, error) {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "hostmirror"), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("config: resolving home dir: %w", err)
	}

	return filepath.Join(home, ".local", "share", "hostmirror"), nil
}

// Load reads and validates the TOML file at path. A missing file is not an
// error: the defaults are returned so first runs need no setup.
func Load(path string, logger *slog.Logger) (*Config, error) {
	cfg := Default()

	meta, err := toml.DecodeFile(path, cfg)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Debug("no config file, using defaults", slog.String("path", path))
		return cfg, nil
	}

	if err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	// Unknown keys are almost always typos; refuse rather than surprise.
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config: unknown key %q in %s", undecoded[0].String(), path)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger.Debug("config loaded", slog.String("path", path))

	return cfg, nil
}
