package main

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hostmirror/hostmirror/internal/config"
)

// Flag globals are reset by newRootCmd(); tests that need a specific flag
// value must set it after construction and restore it via t.Cleanup.

func resetFlags(t *testing.T) {
	t.Helper()

	oldVerbose, oldQuiet := flagVerbose, flagQuiet
	oldConfig, oldDB, oldAccount := flagConfigPath, flagDBPath, flagAccount

	t.Cleanup(func() {
		flagVerbose, flagQuiet = oldVerbose, oldQuiet
		flagConfigPath, flagDBPath, flagAccount = oldConfig, oldDB, oldAccount
	})
}

func TestNewRootCmd_RegistersSubcommands(t *testing.T) {
	resetFlags(t)

	cmd := newRootCmd()

	want := []string{"login", "logout", "sync", "status", "serve", "config"}

	var got []string
	for _, sub := range cmd.Commands() {
		got = append(got, sub.Name())
	}

	for _, name := range want {
		assert.Contains(t, got, name)
	}

	assert.Equal(t, "default", flagAccount, "account flag defaults to the default account")
}

func TestBuildLogger_LevelFromConfig(t *testing.T) {
	resetFlags(t)

	flagVerbose = false
	flagQuiet = false

	logger := buildLogger(config.LoggingConfig{Level: "warn", Format: "text"})

	assert.True(t, logger.Handler().Enabled(context.Background(), slog.LevelWarn))
	assert.False(t, logger.Handler().Enabled(context.Background(), slog.LevelInfo))
}

func TestBuildLogger_VerboseWinsOverConfig(t *testing.T) {
	resetFlags(t)

	flagVerbose = true
	flagQuiet = false

	logger := buildLogger(config.LoggingConfig{Level: "error", Format: "text"})

	assert.True(t, logger.Handler().Enabled(context.Background(), slog.LevelDebug))
}

func TestBuildLogger_QuietWinsOverVerbose(t *testing.T) {
	resetFlags(t)

	flagVerbose = true
	flagQuiet = true

	logger := buildLogger(config.LoggingConfig{Level: "debug", Format: "text"})

	assert.False(t, logger.Handler().Enabled(context.Background(), slog.LevelWarn))
	assert.True(t, logger.Handler().Enabled(context.Background(), slog.LevelError))
}

func TestLoadHolder_ExplicitPath(t *testing.T) {
	resetFlags(t)

	flagConfigPath = filepath.Join(t.TempDir(), "custom.toml")

	holder, err := loadHolder(slog.Default())
	require.NoError(t, err)

	assert.Equal(t, flagConfigPath, holder.Path())
	assert.Equal(t, 100, holder.Config().Sync.BatchSize, "missing file yields defaults")
}

func TestOpenStore_CreatesDatabaseAtFlagPath(t *testing.T) {
	resetFlags(t)

	flagDBPath = filepath.Join(t.TempDir(), "mirror.db")

	st, err := openStore(slog.Default())
	require.NoError(t, err)

	require.NoError(t, st.Close())
}
