package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hostmirror/hostmirror/internal/debrid"
)

// IndexEntry is one row of the file index, as needed for classification.
type IndexEntry struct {
	LocalID  int64
	RemoteID string
	Hash     string
}

// RemoteIDPair maps a stored local row to its remote id, for orphan cleanup.
type RemoteIDPair struct {
	LocalID  int64
	RemoteID string
}

// ListFileIndex returns every stored file's id, remote id, and hash for
// the account. Used once per sync job to build the in-memory lookup.
func (s *Store) ListFileIndex(ctx context.Context, accountID string) ([]IndexEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, remote_id, hash FROM files WHERE account_id = ?`, accountID)
	if err != nil {
		return nil, fmt.Errorf("store: listing file index: %w", err)
	}
	defer rows.Close()

	var entries []IndexEntry

	for rows.Next() {
		var e IndexEntry
		if err := rows.Scan(&e.LocalID, &e.RemoteID, &e.Hash); err != nil {
			return nil, fmt.Errorf("store: scanning index row: %w", err)
		}

		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterating file index: %w", err)
	}

	return entries, nil
}

// InsertFile stores a newly discovered remote file and returns its local id.
func (s *Store) InsertFile(ctx context.Context, accountID string, f debrid.RemoteFile) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO files (account_id, remote_id, name, size, hash, mime_type, download_url, created_at, modified_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		accountID, f.ID, f.Name, f.Size, f.Hash, f.MimeType, f.DownloadURL,
		f.CreatedAt.Unix(), f.ModifiedAt.Unix())
	if err != nil {
		return 0, fmt.Errorf("store: inserting file %s: %w", f.ID, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("store: file row id: %w", err)
	}

	return id, nil
}

// UpdateFile overwrites the stored metadata for an existing local row.
func (s *Store) UpdateFile(ctx context.Context, localID int64, f debrid.RemoteFile) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE files
		SET remote_id = ?, name = ?, size = ?, hash = ?, mime_type = ?, download_url = ?, created_at = ?, modified_at = ?
		WHERE id = ?`,
		f.ID, f.Name, f.Size, f.Hash, f.MimeType, f.DownloadURL,
		f.CreatedAt.Unix(), f.ModifiedAt.Unix(), localID)
	if err != nil {
		return fmt.Errorf("store: updating file %d: %w", localID, err)
	}

	return nil
}

// DeleteFile removes a local row. Used by orphan cleanup.
func (s *Store) DeleteFile(ctx context.Context, localID int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM files WHERE id = ?`, localID); err != nil {
		return fmt.Errorf("store: deleting file %d: %w", localID, err)
	}

	return nil
}

// ListRemoteIDs returns the (localID, remoteID) pairs stored for the
// account. Orphan cleanup diffs this against the freshly fetched set.
func (s *Store) ListRemoteIDs(ctx context.Context, accountID string) ([]RemoteIDPair, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, remote_id FROM files WHERE account_id = ?`, accountID)
	if err != nil {
		return nil, fmt.Errorf("store: listing remote ids: %w", err)
	}
	defer rows.Close()

	var pairs []RemoteIDPair

	for rows.Next() {
		var p RemoteIDPair
		if err := rows.Scan(&p.LocalID, &p.RemoteID); err != nil {
			return nil, fmt.Errorf("store: scanning remote id row: %w", err)
		}

		pairs = append(pairs, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterating remote ids: %w", err)
	}

	return pairs, nil
}

// LastSync returns the account's last successful sync time. The zero time
// means the account has never completed a sync (full sync required).
func (s *Store) LastSync(ctx context.Context, accountID string) (time.Time, error) {
	var ts int64

	err := s.db.QueryRowContext(ctx,
		`SELECT last_sync FROM sync_state WHERE account_id = ?`, accountID).Scan(&ts)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}

	if err != nil {
		return time.Time{}, fmt.Errorf("store: loading last sync: %w", err)
	}

	return time.Unix(ts, 0), nil
}

// SetLastSync records the account's last successful sync time.
func (s *Store) SetLastSync(ctx context.Context, accountID string, t time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_state (account_id, last_sync) VALUES (?, ?)
		ON CONFLICT (account_id) DO UPDATE SET last_sync = excluded.last_sync`,
		accountID, t.Unix())
	if err != nil {
		return fmt.Errorf("store: saving last sync: %w", err)
	}

	return nil
}
