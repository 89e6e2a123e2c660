package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hostmirror/hostmirror/internal/debrid"
)

// LatestCredential returns the current credential for the account, or nil
// when the account has never logged in (or has been disconnected).
func (s *Store) LatestCredential(ctx context.Context, accountID string) (*debrid.Credential, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, access_token, refresh_token, client_id, client_secret, token_type, expires_at
		FROM credentials WHERE account_id = ?`, accountID)

	var (
		cred      debrid.Credential
		expiresAt int64
	)

	err := row.Scan(&cred.ID, &cred.AccessToken, &cred.RefreshToken,
		&cred.ClientID, &cred.ClientSecret, &cred.TokenType, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil //nolint:nilnil // sentinel for "not found"
	}

	if err != nil {
		return nil, fmt.Errorf("store: loading credential: %w", err)
	}

	cred.ExpiresAt = time.Unix(expiresAt, 0)

	return &cred, nil
}

// UpsertCredential stores the credential as the account's current one,
// replacing any previous credential. Returns the row id.
func (s *Store) UpsertCredential(ctx context.Context, accountID string, cred *debrid.Credential) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO credentials
			(account_id, access_token, refresh_token, client_id, client_secret, token_type, expires_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (account_id) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			client_id = excluded.client_id,
			client_secret = excluded.client_secret,
			token_type = excluded.token_type,
			expires_at = excluded.expires_at,
			updated_at = excluded.updated_at`,
		accountID, cred.AccessToken, cred.RefreshToken, cred.ClientID, cred.ClientSecret,
		cred.TokenType, cred.ExpiresAt.Unix(), time.Now().Unix())
	if err != nil {
		return 0, fmt.Errorf("store: upserting credential: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("store: credential row id: %w", err)
	}

	return id, nil
}

// ClearCredential removes the account's credential. Used on logout.
func (s *Store) ClearCredential(ctx context.Context, accountID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM credentials WHERE account_id = ?`, accountID); err != nil {
		return fmt.Errorf("store: clearing credential: %w", err)
	}

	return nil
}
