package sync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGate_OpenByDefault(t *testing.T) {
	g := newGate()

	assert.NoError(t, g.wait())
	assert.False(t, g.isPaused())
}

func TestGate_PauseBlocksUntilResume(t *testing.T) {
	g := newGate()
	g.pause()

	require.True(t, g.isPaused())

	passed := make(chan error, 1)

	go func() {
		passed <- g.wait()
	}()

	select {
	case <-passed:
		t.Fatal("wait returned while paused")
	case <-time.After(50 * time.Millisecond):
	}

	g.resume()

	select {
	case err := <-passed:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("wait did not return after resume")
	}
}

func TestGate_CancelWakesPausedWaiter(t *testing.T) {
	g := newGate()
	g.pause()

	passed := make(chan error, 1)

	go func() {
		passed <- g.wait()
	}()

	g.cancel()

	select {
	case err := <-passed:
		assert.ErrorIs(t, err, ErrSyncCancelled)
	case <-time.After(time.Second):
		t.Fatal("wait did not return after cancel")
	}
}

func TestGate_CancelIsSticky(t *testing.T) {
	g := newGate()
	g.cancel()

	assert.ErrorIs(t, g.wait(), ErrSyncCancelled)

	// Resuming after cancel must not revive the gate.
	g.resume()
	assert.ErrorIs(t, g.wait(), ErrSyncCancelled)
	assert.False(t, g.isPaused())
}
