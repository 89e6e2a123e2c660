package debrid

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ServiceError is the caller-facing error for failed API operations. It
// carries the classifier's verdict so outer layers can render a message
// and decide on reauthentication without re-classifying.
type ServiceError struct {
	Classification
	Err error
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("debrid: %s: %v", e.Message, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// Service exposes typed operations over the resilient client. It is a
// thin facade: all retry, rate-limit, and credential logic lives in Client.
type Service struct {
	client *Client
	logger *slog.Logger
}

// NewService creates the API facade.
func NewService(client *Client, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{client: client, logger: logger}
}

// wrap converts a client failure into a ServiceError.
func wrap(err error) error {
	if err == nil {
		return nil
	}

	return &ServiceError{Classification: Classify(err), Err: err}
}

// User fetches the authenticated account.
func (s *Service) User(ctx context.Context) (*User, error) {
	resp, err := s.client.Do(ctx, "/user", Options{})
	if err != nil {
		return nil, wrap(err)
	}

	var u User
	if err := resp.Decode(&u); err != nil {
		return nil, wrap(err)
	}

	return &u, nil
}

// downloadEntry is the wire shape of the /downloads fallback listing.
// It lacks content hashes entirely.
type downloadEntry struct {
	ID        string    `json:"id"`
	Filename  string    `json:"filename"`
	Filesize  int64     `json:"filesize"`
	MimeType  string    `json:"mimetype"`
	Download  string    `json:"download"`
	Generated time.Time `json:"generated"`
}

// ListFiles fetches one page of the remote file listing. When the primary
// /files endpoint is unavailable (404), it falls back to /downloads and
// synthesizes records with an empty hash. The fallback is a compatibility
// shim for accounts on service plans without the primary listing.
func (s *Service) ListFiles(ctx context.Context, page, perPage int, search string) ([]RemoteFile, error) {
	query := url.Values{
		"page":     {strconv.Itoa(page)},
		"per_page": {strconv.Itoa(perPage)},
	}

	if search != "" {
		query.Set("search", search)
	}

	resp, err := s.client.Do(ctx, "/files", Options{Query: query})
	if errors.Is(err, ErrNotFound) {
		s.logger.Warn("primary file listing unavailable, falling back to downloads",
			slog.Int("page", page),
		)

		return s.listDownloads(ctx, query)
	}

	if err != nil {
		return nil, wrap(err)
	}

	var files []RemoteFile
	if err := resp.Decode(&files); err != nil {
		return nil, wrap(err)
	}

	return files, nil
}

// listDownloads is the fallback listing. Hashes are not available on this
// endpoint, so duplicate detection degrades to remote-id matching only.
func (s *Service) listDownloads(ctx context.Context, query url.Values) ([]RemoteFile, error) {
	resp, err := s.client.Do(ctx, "/downloads", Options{Query: query})
	if err != nil {
		return nil, wrap(err)
	}

	var entries []downloadEntry
	if err := resp.Decode(&entries); err != nil {
		return nil, wrap(err)
	}

	files := make([]RemoteFile, 0, len(entries))
	for _, e := range entries {
		files = append(files, RemoteFile{
			ID:          e.ID,
			Name:        e.Filename,
			Size:        e.Filesize,
			MimeType:    e.MimeType,
			CreatedAt:   e.Generated,
			ModifiedAt:  e.Generated,
			DownloadURL: e.Download,
		})
	}

	return files, nil
}

// ServerTime is a lightweight health probe. It bypasses the rate limiter
// so monitoring never competes with sync traffic for tokens.
func (s *Service) ServerTime(ctx context.Context) (time.Time, error) {
	resp, err := s.client.Do(ctx, "/time", Options{SkipRateLimit: true, SkipAuth: true})
	if err != nil {
		return time.Time{}, wrap(err)
	}

	raw := strings.TrimSpace(string(resp.Body))

	t, err := time.Parse("2006-01-02 15:04:05", strings.Trim(raw, `"`))
	if err != nil {
		return time.Time{}, wrap(fmt.Errorf("debrid: parsing server time %q: %w", raw, err))
	}

	return t, nil
}
