package sync

import (
	"context"
	"log/slog"
	"slices"
	stdsync "sync"
	"time"

	"github.com/google/uuid"
)

// Engine owns the single active-job slot and the observer registry. It is
// constructed once by the composition root and shared by the CLI and the
// control server; all shared state is mutex-guarded.
type Engine struct {
	lister   Lister
	index    IndexStore
	defaults func() Config // reads the current configuration snapshot
	logger   *slog.Logger

	mu     stdsync.Mutex
	active *job
	last   Snapshot // most recent finished job, for Status after completion

	// pubMu serializes snapshot publication. Control calls and the job
	// goroutine both notify observers; holding pubMu across the state
	// change and its fan-out keeps the stream ordered, so no paused or
	// running snapshot can follow the terminal one.
	pubMu stdsync.Mutex

	obsMu     stdsync.Mutex
	observers map[int]Observer
	nextObsID int

	// sleepFunc and now are injectable for tests.
	sleepFunc func(ctx context.Context, d time.Duration) error
	now       func() time.Time
}

// job is the mutable state of one sync run. snap is guarded by mu; the
// runner mutates it through update() so every change notifies observers.
type job struct {
	gate *gate

	mu   stdsync.Mutex
	snap Snapshot
}

// NewEngine creates an engine. defaults is called at every Start so
// configuration changes apply to the next job without restarting.
func NewEngine(lister Lister, index IndexStore, defaults func() Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		lister:    lister,
		index:     index,
		defaults:  defaults,
		logger:    logger,
		observers: make(map[int]Observer),
		sleepFunc: sleepCtx,
		now:       time.Now,
		last:      Snapshot{Status: StatusIdle},
	}
}

// Start launches a sync job for the account and returns its initial
// snapshot immediately; the job body runs asynchronously. Returns
// ErrSyncConflict while another job is running or paused, and
// ErrInvalidConfig when the overrides are out of range.
func (e *Engine) Start(accountID string, ov Overrides) (Snapshot, error) {
	cfg := ov.apply(e.defaults())
	if err := cfg.validate(); err != nil {
		return Snapshot{}, err
	}

	e.mu.Lock()

	if e.active != nil {
		e.mu.Unlock()
		return Snapshot{}, ErrSyncConflict
	}

	j := &job{
		gate: newGate(),
		snap: Snapshot{
			JobID:     uuid.NewString(),
			AccountID: accountID,
			Status:    StatusRunning,
			Timing:    Timing{Started: e.now()},
		},
	}

	e.active = j
	snap := j.snapshot()
	e.mu.Unlock()

	e.logger.Info("sync job starting",
		slog.String("job_id", snap.JobID),
		slog.String("account", accountID),
		slog.Int("batch_size", cfg.BatchSize),
	)

	// The job deadline covers the whole run; pause time counts against it.
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)

	// Wake a paused job when the deadline fires so it can unwind.
	stop := context.AfterFunc(ctx, j.gate.cancel)

	// Publish the running snapshot before the body starts so it cannot
	// trail the job's own notifications.
	e.notify(snap)

	go func() {
		defer cancel()
		defer stop()

		err := e.runBody(ctx, j, cfg)
		e.finalize(ctx, j, err)
	}()

	return snap, nil
}

// Pause freezes the running job before its next unit of work. Returns
// ErrNoActiveJob when the job has already finalized, however narrowly.
func (e *Engine) Pause() error {
	j := e.activeJob()
	if j == nil {
		return ErrNoActiveJob
	}

	j.gate.pause()

	snap, ok := e.publishTransition(j, StatusPaused)
	if !ok {
		return ErrNoActiveJob
	}

	e.logger.Info("sync job paused", slog.String("job_id", snap.JobID))

	return nil
}

// Resume lets a paused job continue.
func (e *Engine) Resume() error {
	j := e.activeJob()
	if j == nil {
		return ErrNoActiveJob
	}

	j.gate.resume()

	snap, ok := e.publishTransition(j, StatusRunning)
	if !ok {
		return ErrNoActiveJob
	}

	e.logger.Info("sync job resumed", slog.String("job_id", snap.JobID))

	return nil
}

// Cancel asks the job to stop at its next cooperative check. An already
// dispatched network call is not aborted; only future work is skipped.
// Accumulated stats are discarded from the final result.
func (e *Engine) Cancel() error {
	j := e.activeJob()
	if j == nil {
		return ErrNoActiveJob
	}

	j.gate.cancel()

	e.logger.Info("sync job cancel requested", slog.String("job_id", j.snapshot().JobID))

	return nil
}

// activeJob returns the current job, or nil.
func (e *Engine) activeJob() *job {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.active
}

// publishTransition flips the job between in-flight states and fans the
// snapshot out, all under the publication lock. Reports false when the
// job finalized between the caller's active check and now; nothing is
// published in that case.
func (e *Engine) publishTransition(j *job, to Status) (Snapshot, bool) {
	e.pubMu.Lock()
	defer e.pubMu.Unlock()

	snap, ok := j.transition(to)
	if ok {
		e.notify(snap)
	}

	return snap, ok
}

// Status returns the active job's snapshot, or the last finished one.
func (e *Engine) Status() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.active != nil {
		return e.active.snapshot()
	}

	return e.last
}

// Subscribe registers a progress observer and returns its unsubscribe
// function. Observers are invoked synchronously on every state change.
func (e *Engine) Subscribe(obs Observer) func() {
	e.obsMu.Lock()
	defer e.obsMu.Unlock()

	id := e.nextObsID
	e.nextObsID++
	e.observers[id] = obs

	return func() {
		e.obsMu.Lock()
		defer e.obsMu.Unlock()

		delete(e.observers, id)
	}
}

// notify fans a snapshot out to all observers. A panicking observer is
// recovered so it cannot affect job execution.
func (e *Engine) notify(snap Snapshot) {
	e.obsMu.Lock()
	observers := make([]Observer, 0, len(e.observers))
	for _, obs := range e.observers {
		observers = append(observers, obs)
	}
	e.obsMu.Unlock()

	for _, obs := range observers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					e.logger.Warn("progress observer panicked", slog.Any("panic", r))
				}
			}()

			obs(snap)
		}()
	}
}

// snapshot returns a deep copy safe to share outside the job's lock.
func (j *job) snapshot() Snapshot {
	j.mu.Lock()
	defer j.mu.Unlock()

	return j.copyLocked()
}

// transition moves the snapshot between in-flight states. Reports false
// once the job holds a terminal snapshot, so a racing control call can
// never resurrect a finished job.
func (j *job) transition(to Status) (Snapshot, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.snap.Status != StatusRunning && j.snap.Status != StatusPaused {
		return j.copyLocked(), false
	}

	j.snap.Status = to

	return j.copyLocked(), true
}

// update applies fn under the job lock and returns the resulting copy.
func (j *job) update(fn func(*Snapshot)) Snapshot {
	j.mu.Lock()
	defer j.mu.Unlock()

	fn(&j.snap)

	return j.copyLocked()
}

func (j *job) copyLocked() Snapshot {
	cp := j.snap
	cp.FileErrors = slices.Clone(j.snap.FileErrors)

	return cp
}

// sleepCtx waits for d or until ctx is canceled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
