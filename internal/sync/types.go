// Package sync implements the metadata mirror job: it pages through the
// remote file listing, diffs it against the local index, and applies
// additions, updates, duplicate merges, and orphan deletions, with
// pause/resume/cancel controls and live progress reporting.
package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hostmirror/hostmirror/internal/debrid"
	"github.com/hostmirror/hostmirror/internal/store"
)

// Job lifecycle errors.
var (
	// ErrSyncConflict is returned by Start while another job is running
	// or paused. At most one job may be active per process.
	ErrSyncConflict = errors.New("sync: a job is already active")

	// ErrSyncCancelled unwinds the job body on cooperative cancellation.
	ErrSyncCancelled = errors.New("sync: job cancelled")

	// ErrNoActiveJob is returned by Pause/Resume/Cancel when nothing runs.
	ErrNoActiveJob = errors.New("sync: no active job")

	// ErrInvalidConfig is returned by Start when overrides produce a
	// configuration the job body cannot run with.
	ErrInvalidConfig = errors.New("sync: invalid job configuration")
)

// Status is the job state machine:
//
//	idle → running → {paused ⇄ running} → {completed | error}
//
// and running|paused → idle via cancel.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
)

// Progress reports how far the job has advanced. Percentage is
// floor(processed/total*100), clamped to [0, 100].
type Progress struct {
	Total        int    `json:"total"`
	Processed    int    `json:"processed"`
	CurrentLabel string `json:"current_label"`
	Percentage   int    `json:"percentage"`
}

// Timing carries the job's wall-clock milestones. EstimatedEnd is a linear
// projection from elapsed time and work completed so far.
type Timing struct {
	Started      time.Time `json:"started"`
	EstimatedEnd time.Time `json:"estimated_end"`
	Ended        time.Time `json:"ended"`
}

// Stats are the per-category counters. They are monotonically
// non-decreasing within a job.
type Stats struct {
	Added      int `json:"added"`
	Updated    int `json:"updated"`
	Duplicates int `json:"duplicates"`
	Deleted    int `json:"deleted"`
	Errors     int `json:"errors"`
}

// FileError records a single file whose insert/update failed. Per-file
// failures never abort the batch.
type FileError struct {
	RemoteID string `json:"remote_id"`
	Name     string `json:"name"`
	Message  string `json:"message"`
}

// Snapshot is an immutable view of a job, safe to hand to observers.
type Snapshot struct {
	JobID      string      `json:"job_id"`
	AccountID  string      `json:"account_id"`
	Status     Status      `json:"status"`
	Progress   Progress    `json:"progress"`
	Timing     Timing      `json:"timing"`
	Stats      Stats       `json:"stats"`
	LastSync   time.Time   `json:"last_sync"`
	FileErrors []FileError `json:"file_errors,omitempty"`
	Message    string      `json:"message,omitempty"` // final error text for StatusError
}

// Config holds the per-job knobs. Overrides passed to Start replace
// individual fields for that job only.
type Config struct {
	BatchSize                int
	MaxRetries               int
	EnableDuplicateDetection bool
	Timeout                  time.Duration
	BaseDelay                time.Duration // page retry backoff base
	MaxDelay                 time.Duration // page retry backoff cap
}

// Overrides selectively replaces Config fields for a single job.
type Overrides struct {
	BatchSize                *int
	MaxRetries               *int
	EnableDuplicateDetection *bool
	Timeout                  *time.Duration
}

// apply returns cfg with the non-nil overrides substituted.
func (o Overrides) apply(cfg Config) Config {
	if o.BatchSize != nil {
		cfg.BatchSize = *o.BatchSize
	}

	if o.MaxRetries != nil {
		cfg.MaxRetries = *o.MaxRetries
	}

	if o.EnableDuplicateDetection != nil {
		cfg.EnableDuplicateDetection = *o.EnableDuplicateDetection
	}

	if o.Timeout != nil {
		cfg.Timeout = *o.Timeout
	}

	return cfg
}

// validate rejects values the job body cannot operate on. A non-positive
// batch size breaks the short-page termination test, and negative retries
// would skip the listing entirely. Configuration-file loading enforces
// tighter ranges; overrides arrive unchecked, so Start revalidates the
// effective config.
func (c Config) validate() error {
	if c.BatchSize <= 0 {
		return fmt.Errorf("%w: batch size must be positive, got %d", ErrInvalidConfig, c.BatchSize)
	}

	if c.MaxRetries < 0 {
		return fmt.Errorf("%w: max retries must not be negative, got %d", ErrInvalidConfig, c.MaxRetries)
	}

	if c.Timeout <= 0 {
		return fmt.Errorf("%w: timeout must be positive, got %v", ErrInvalidConfig, c.Timeout)
	}

	return nil
}

// Lister fetches one page of the remote file listing. Satisfied by
// *debrid.Service.
type Lister interface {
	ListFiles(ctx context.Context, page, perPage int, search string) ([]debrid.RemoteFile, error)
}

// IndexStore is the persistence contract for the local file index.
// Satisfied by *store.Store.
type IndexStore interface {
	ListFileIndex(ctx context.Context, accountID string) ([]store.IndexEntry, error)
	InsertFile(ctx context.Context, accountID string, f debrid.RemoteFile) (int64, error)
	UpdateFile(ctx context.Context, localID int64, f debrid.RemoteFile) error
	DeleteFile(ctx context.Context, localID int64) error
	ListRemoteIDs(ctx context.Context, accountID string) ([]store.RemoteIDPair, error)
	LastSync(ctx context.Context, accountID string) (time.Time, error)
	SetLastSync(ctx context.Context, accountID string, t time.Time) error
}

// Observer receives job snapshots synchronously on every state change.
// Panicking observers are recovered and never affect the job.
type Observer func(Snapshot)
