package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hostmirror/hostmirror/internal/debrid"
)

// runBody executes one sync job end to end. Per-file persistence failures
// are recorded and counted without aborting the batch; failures in the
// listing or index scaffolding are job-fatal.
func (e *Engine) runBody(ctx context.Context, j *job, cfg Config) error {
	lastSync, err := e.index.LastSync(ctx, j.snapshot().AccountID)
	if err != nil {
		return err
	}

	fullSync := lastSync.IsZero()
	accountID := j.snapshot().AccountID

	e.logger.Info("sync mode resolved",
		slog.Bool("full", fullSync),
		slog.Time("last_sync", lastSync),
	)

	files, err := e.listAll(ctx, j, cfg, lastSync)
	if err != nil {
		return err
	}

	entries, err := e.index.ListFileIndex(ctx, accountID)
	if err != nil {
		return err
	}

	idx := buildIndex(entries)

	snap := j.update(func(s *Snapshot) {
		s.Progress.Total = len(files)
		s.LastSync = lastSync
	})
	e.notify(snap)

	seen := make(map[string]struct{}, len(files))

	for _, f := range files {
		if err := j.gate.wait(); err != nil {
			return err
		}

		seen[f.ID] = struct{}{}
		e.applyFile(ctx, j, cfg, idx, f)
		e.advance(j, f.Name)
	}

	if fullSync {
		if err := j.gate.wait(); err != nil {
			return err
		}

		if err := e.cleanupOrphans(ctx, j, accountID, seen); err != nil {
			return err
		}
	}

	if err := e.index.SetLastSync(ctx, accountID, e.now()); err != nil {
		return err
	}

	return nil
}

// listAll pages through the remote listing until a short page signals the
// end. With a previous sync time, entries not modified since are dropped
// (incremental sync). A page that still fails after the retry budget is
// job-fatal: committing a partial listing would corrupt orphan cleanup.
func (e *Engine) listAll(ctx context.Context, j *job, cfg Config, lastSync time.Time) ([]debrid.RemoteFile, error) {
	var files []debrid.RemoteFile

	for page := 1; ; page++ {
		if err := j.gate.wait(); err != nil {
			return nil, err
		}

		pageFiles, err := e.fetchPage(ctx, cfg, page)
		if err != nil {
			return nil, fmt.Errorf("sync: listing page %d: %w", page, err)
		}

		for _, f := range pageFiles {
			if !lastSync.IsZero() && !f.ModifiedAt.After(lastSync) {
				continue
			}

			files = append(files, f)
		}

		if len(pageFiles) < cfg.BatchSize {
			return files, nil
		}
	}
}

// fetchPage fetches one listing page, retrying with exponential backoff up
// to the job's retry budget.
func (e *Engine) fetchPage(ctx context.Context, cfg Config, page int) ([]debrid.RemoteFile, error) {
	var lastErr error

	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		files, err := e.lister.ListFiles(ctx, page, cfg.BatchSize, "")
		if err == nil {
			return files, nil
		}

		lastErr = err

		if ctx.Err() != nil || attempt == cfg.MaxRetries {
			break
		}

		delay := cfg.BaseDelay << attempt
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}

		e.logger.Warn("page fetch failed, retrying",
			slog.Int("page", page),
			slog.Int("attempt", attempt+1),
			slog.Duration("backoff", delay),
			slog.String("error", err.Error()),
		)

		if sleepErr := e.sleepFunc(ctx, delay); sleepErr != nil {
			return nil, sleepErr
		}
	}

	return nil, lastErr
}

// applyFile classifies one incoming file against the local index and
// persists the outcome: remote-id match is an update, hash match (with
// duplicate detection enabled) merges into the existing record, anything
// else is an insert. Store failures are recorded per file.
func (e *Engine) applyFile(ctx context.Context, j *job, cfg Config, idx *localIndex, f debrid.RemoteFile) {
	f.Name = normalizeName(f.Name)
	accountID := j.snapshot().AccountID

	if localID, ok := idx.lookupRemoteID(f.ID); ok {
		if err := e.index.UpdateFile(ctx, localID, f); err != nil {
			e.recordFileError(j, f, err)
			return
		}

		idx.add(f.ID, f.Hash, localID)
		j.update(func(s *Snapshot) { s.Stats.Updated++ })

		return
	}

	if cfg.EnableDuplicateDetection {
		if localID, ok := idx.lookupHash(f.Hash); ok {
			if err := e.index.UpdateFile(ctx, localID, f); err != nil {
				e.recordFileError(j, f, err)
				return
			}

			idx.add(f.ID, f.Hash, localID)
			j.update(func(s *Snapshot) { s.Stats.Duplicates++ })

			e.logger.Debug("duplicate merged",
				slog.String("remote_id", f.ID),
				slog.String("hash", f.Hash),
			)

			return
		}
	}

	localID, err := e.index.InsertFile(ctx, accountID, f)
	if err != nil {
		e.recordFileError(j, f, err)
		return
	}

	idx.add(f.ID, f.Hash, localID)
	j.update(func(s *Snapshot) { s.Stats.Added++ })
}

// cleanupOrphans deletes local rows whose remote id was absent from the
// freshly fetched set. Runs only on full syncs; incremental syncs skip
// deletion reconciliation entirely.
func (e *Engine) cleanupOrphans(ctx context.Context, j *job, accountID string, seen map[string]struct{}) error {
	pairs, err := e.index.ListRemoteIDs(ctx, accountID)
	if err != nil {
		return err
	}

	for _, p := range pairs {
		if _, ok := seen[p.RemoteID]; ok {
			continue
		}

		if err := e.index.DeleteFile(ctx, p.LocalID); err != nil {
			snap := j.update(func(s *Snapshot) { s.Stats.Errors++ })
			e.notify(snap)

			e.logger.Warn("orphan delete failed",
				slog.Int64("local_id", p.LocalID),
				slog.String("error", err.Error()),
			)

			continue
		}

		snap := j.update(func(s *Snapshot) { s.Stats.Deleted++ })
		e.notify(snap)

		e.logger.Debug("orphan removed",
			slog.Int64("local_id", p.LocalID),
			slog.String("remote_id", p.RemoteID),
		)
	}

	return nil
}

// recordFileError counts a per-file persistence failure without aborting
// the batch.
func (e *Engine) recordFileError(j *job, f debrid.RemoteFile, err error) {
	snap := j.update(func(s *Snapshot) {
		s.Stats.Errors++
		s.FileErrors = append(s.FileErrors, FileError{
			RemoteID: f.ID,
			Name:     f.Name,
			Message:  err.Error(),
		})
	})
	e.notify(snap)

	e.logger.Warn("file persistence failed",
		slog.String("remote_id", f.ID),
		slog.String("name", f.Name),
		slog.String("error", err.Error()),
	)
}

// advance bumps processed, recomputes the percentage and the linear
// end-time projection, and notifies observers.
func (e *Engine) advance(j *job, label string) {
	now := e.now()

	snap := j.update(func(s *Snapshot) {
		s.Progress.Processed++
		s.Progress.CurrentLabel = label
		s.Progress.Percentage = percentage(s.Progress.Processed, s.Progress.Total)

		if s.Progress.Processed > 0 && s.Progress.Total > 0 {
			elapsed := now.Sub(s.Timing.Started)
			projected := time.Duration(int64(elapsed) / int64(s.Progress.Processed) * int64(s.Progress.Total))
			s.Timing.EstimatedEnd = s.Timing.Started.Add(projected)
		}
	})
	e.notify(snap)
}

// finalize publishes the job's terminal snapshot and frees the active
// slot. Cancellation finalizes as idle with accumulated stats discarded;
// a deadline hit finalizes as error.
func (e *Engine) finalize(ctx context.Context, j *job, err error) {
	ended := e.now()

	// The terminal snapshot must be the last one observers ever see for
	// this job; the publication lock fences out concurrent Pause/Resume.
	e.pubMu.Lock()
	defer e.pubMu.Unlock()

	var final Snapshot

	switch {
	case err != nil && errors.Is(err, ErrSyncCancelled) && ctx.Err() == nil:
		final = j.update(func(s *Snapshot) {
			s.Status = StatusIdle
			s.Stats = Stats{}
			s.FileErrors = nil
			s.Timing.Ended = ended
		})

		e.logger.Info("sync job cancelled", slog.String("job_id", final.JobID))

	case err != nil:
		msg := err.Error()
		if ctx.Err() != nil {
			msg = fmt.Sprintf("sync timed out: %v", err)
		}

		final = j.update(func(s *Snapshot) {
			s.Status = StatusError
			s.Message = msg
			s.Timing.Ended = ended
		})

		e.logger.Error("sync job failed",
			slog.String("job_id", final.JobID),
			slog.String("error", msg),
		)

	default:
		final = j.update(func(s *Snapshot) {
			s.Status = StatusCompleted
			s.Timing.Ended = ended
		})

		e.logger.Info("sync job completed",
			slog.String("job_id", final.JobID),
			slog.Duration("duration", ended.Sub(final.Timing.Started)),
			slog.Int("added", final.Stats.Added),
			slog.Int("updated", final.Stats.Updated),
			slog.Int("duplicates", final.Stats.Duplicates),
			slog.Int("deleted", final.Stats.Deleted),
			slog.Int("errors", final.Stats.Errors),
		)
	}

	e.mu.Lock()
	e.active = nil
	e.last = final
	e.mu.Unlock()

	e.notify(final)
}

// percentage is floor(processed/total*100) clamped to [0, 100].
func percentage(processed, total int) int {
	if total <= 0 {
		return 0
	}

	pct := processed * 100 / total
	if pct > 100 {
		pct = 100
	}

	if pct < 0 {
		pct = 0
	}

	return pct
}
