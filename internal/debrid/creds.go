package debrid

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	stdsync "sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// expiryThreshold is how close to expiry a token may be before it is
// treated as stale and refreshed proactively.
const expiryThreshold = 60 * time.Second

// CredentialStore is the persistence contract for issued credentials.
// Defined at the consumer per Go convention; the sqlite store implements it.
type CredentialStore interface {
	LatestCredential(ctx context.Context, accountID string) (*Credential, error)
	UpsertCredential(ctx context.Context, accountID string, cred *Credential) (int64, error)
	ClearCredential(ctx context.Context, accountID string) error
}

// CredentialManager resolves the current bearer token for API calls. It
// keeps a single-entry in-memory cache and refreshes stale credentials
// against the token endpoint, writing the result back to the store.
// Concurrent callers needing a refresh share one in-flight exchange.
type CredentialManager struct {
	store      CredentialStore
	accountID  string
	oauthBase  string
	httpClient *http.Client
	logger     *slog.Logger

	mu     stdsync.Mutex
	cached struct {
		token     string
		expiresAt time.Time
	}

	refreshGroup singleflight.Group

	// now is the clock, overridable in tests.
	now func() time.Time
}

// NewCredentialManager creates a manager for the given account.
// oauthBase defaults to DefaultOAuthBase when empty.
func NewCredentialManager(store CredentialStore, accountID, oauthBase string, httpClient *http.Client, logger *slog.Logger) *CredentialManager {
	if oauthBase == "" {
		oauthBase = DefaultOAuthBase
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &CredentialManager{
		store:      store,
		accountID:  accountID,
		oauthBase:  oauthBase,
		httpClient: httpClient,
		logger:     logger,
		now:        time.Now,
	}
}

// Token returns a bearer token that is good for at least expiryThreshold.
// The cached token is reused while fresh; otherwise the latest stored
// credential is loaded and, if also stale, refreshed in a single flight.
func (m *CredentialManager) Token(ctx context.Context) (string, error) {
	m.mu.Lock()
	if m.cached.token != "" && m.now().Add(expiryThreshold).Before(m.cached.expiresAt) {
		tok := m.cached.token
		m.mu.Unlock()

		return tok, nil
	}
	m.mu.Unlock()

	v, err, _ := m.refreshGroup.Do("token", func() (any, error) {
		return m.resolve(ctx)
	})
	if err != nil {
		return "", err
	}

	tok, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("debrid: unexpected refresh result type %T", v)
	}

	return tok, nil
}

// Invalidate drops the cached token. Called on disconnect and whenever the
// API reports the token as no longer valid.
func (m *CredentialManager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cached.token = ""
	m.cached.expiresAt = time.Time{}
}

// resolve loads the freshest stored credential and refreshes it when it is
// within expiryThreshold of expiry. Runs inside the singleflight group.
func (m *CredentialManager) resolve(ctx context.Context) (any, error) {
	cred, err := m.store.LatestCredential(ctx, m.accountID)
	if err != nil {
		return nil, fmt.Errorf("debrid: loading credential: %w", err)
	}

	if cred == nil {
		return nil, ErrNotLoggedIn
	}

	if m.now().Add(expiryThreshold).Before(cred.ExpiresAt) {
		m.cache(cred.AccessToken, cred.ExpiresAt)
		return cred.AccessToken, nil
	}

	refreshed, err := m.refresh(ctx, cred)
	if err != nil {
		return nil, err
	}

	if _, err := m.store.UpsertCredential(ctx, m.accountID, refreshed); err != nil {
		return nil, fmt.Errorf("debrid: persisting refreshed credential: %w", err)
	}

	m.cache(refreshed.AccessToken, refreshed.ExpiresAt)

	m.logger.Info("credential refreshed",
		slog.Time("expires_at", refreshed.ExpiresAt),
	)

	return refreshed.AccessToken, nil
}

// refresh exchanges the refresh token for a new access token using the
// per-session client credentials. The device grant is reused with the
// refresh token passed as the code parameter, per the API's OAuth contract.
func (m *CredentialManager) refresh(ctx context.Context, cred *Credential) (*Credential, error) {
	if cred.RefreshToken == "" {
		return nil, fmt.Errorf("debrid: credential has no refresh token: %w", ErrNotLoggedIn)
	}

	form := url.Values{
		"client_id":     {cred.ClientID},
		"client_secret": {cred.ClientSecret},
		"code":          {cred.RefreshToken},
		"grant_type":    {deviceGrantType},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.oauthBase+"/token", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("debrid: creating refresh request: %w", err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("debrid: refresh exchange: %w: %w", ErrNetwork, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("debrid: reading refresh response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    string(body),
			Err:        classifyStatus(resp.StatusCode),
		}
	}

	var tr tokenResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return nil, fmt.Errorf("debrid: decoding refresh response: %w", err)
	}

	return &Credential{
		AccessToken:  tr.AccessToken,
		RefreshToken: tr.RefreshToken,
		ClientID:     cred.ClientID,
		ClientSecret: cred.ClientSecret,
		TokenType:    tr.TokenType,
		ExpiresAt:    m.now().Add(time.Duration(tr.ExpiresIn) * time.Second),
	}, nil
}

func (m *CredentialManager) cache(token string, expiresAt time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cached.token = token
	m.cached.expiresAt = expiresAt
}
