package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatch_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(""), 0o600))

	holder := NewHolder(Default(), path)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	watchDone := make(chan error, 1)

	go func() {
		watchDone <- Watch(ctx, holder, slog.Default())
	}()

	// Give the watcher time to register before the first write.
	time.Sleep(100 * time.Millisecond)

	require.NoError(t, os.WriteFile(path, []byte("[sync]\nbatch_size = 300\n"), 0o600))

	assert.Eventually(t, func() bool {
		return holder.Config().Sync.BatchSize == 300
	}, 5*time.Second, 20*time.Millisecond, "edit was not picked up")

	// An invalid edit keeps the previous config in effect.
	require.NoError(t, os.WriteFile(path, []byte("[sync]\nbatch_size = 1\n"), 0o600))

	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, 300, holder.Config().Sync.BatchSize)

	cancel()

	select {
	case err := <-watchDone:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("watcher did not stop on context cancellation")
	}
}

func TestWatch_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(""), 0o600))

	holder := NewHolder(Default(), path)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() { _ = Watch(ctx, holder, slog.Default()) }()

	time.Sleep(100 * time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.toml"), []byte("[sync]\nbatch_size = 499\n"), 0o600))

	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, 100, holder.Config().Sync.BatchSize)
}
