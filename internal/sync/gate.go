package sync

import (
	stdsync "sync"
)

// gate is the pause/cancel token threaded through the job body. The runner
// calls wait before each unit of work: it returns immediately while the
// job runs, blocks on a condition variable while paused (no polling), and
// reports ErrSyncCancelled once cancelled. Cancellation is sticky.
type gate struct {
	mu        stdsync.Mutex
	cond      *stdsync.Cond
	paused    bool
	cancelled bool
}

func newGate() *gate {
	g := &gate{}
	g.cond = stdsync.NewCond(&g.mu)

	return g
}

// wait blocks while the gate is paused and returns ErrSyncCancelled once
// the job has been cancelled. Returns nil when work may proceed.
func (g *gate) wait() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	for g.paused && !g.cancelled {
		g.cond.Wait()
	}

	if g.cancelled {
		return ErrSyncCancelled
	}

	return nil
}

func (g *gate) pause() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.paused = true
}

func (g *gate) resume() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.paused = false
	g.cond.Broadcast()
}

// cancel marks the gate cancelled and wakes any paused waiter so the job
// body can unwind. Irreversible.
func (g *gate) cancel() {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.cancelled = true
	g.cond.Broadcast()
}

func (g *gate) isPaused() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.paused && !g.cancelled
}
