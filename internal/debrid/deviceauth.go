package debrid

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Terminal flow outcomes. Once a flow ends in one of these the session is
// dead; starting over requires a fresh RequestCode.
var (
	// ErrFlowExpired means the device code's wall-clock lifetime ran out
	// before the user approved the request.
	ErrFlowExpired = errors.New("debrid: device authorization expired")

	// ErrFlowDenied means the authorization server rejected the request
	// explicitly (user declined, or the code is invalid).
	ErrFlowDenied = errors.New("debrid: device authorization denied")

	// ErrFlowTimeout means the polling attempt ceiling was exhausted.
	ErrFlowTimeout = errors.New("debrid: device authorization timed out")
)

// OAuth error codes that mean "keep polling".
const (
	oauthPending  = "authorization_pending"
	oauthSlowDown = "slow_down"
)

// defaultMaxPollAttempts bounds each polling phase. With the usual 5s
// interval this allows well over the 120s code lifetime, so wall-clock
// expiry normally fires first.
const defaultMaxPollAttempts = 120

// FlowConfig configures a device authorization flow.
type FlowConfig struct {
	OAuthBase       string // defaults to DefaultOAuthBase
	ClientID        string // defaults to DefaultClientID
	MaxPollAttempts int    // per phase, defaults to defaultMaxPollAttempts
}

// Session is the state of one device authorization attempt. ClientID and
// ClientSecret are filled in by AwaitCredentials once the user approves.
type Session struct {
	DeviceCode      string
	UserCode        string
	VerificationURL string
	IssuedAt        time.Time
	ExpiresIn       time.Duration
	PollInterval    time.Duration
	ClientID        string
	ClientSecret    string
}

// Valid reports whether the session's device code is still within its
// wall-clock lifetime.
func (s *Session) Valid(now time.Time) bool {
	return now.Before(s.IssuedAt.Add(s.ExpiresIn))
}

// Flow drives the three-phase device authorization handshake:
//
//	RequestCode → AwaitCredentials → PollToken
//
// Each polling phase sleeps at the server-suggested interval, doubles it
// on explicit throttling, and gives up at the attempt ceiling. Wall-clock
// session expiry is checked independently of attempt counts.
type Flow struct {
	cfg        FlowConfig
	httpClient *http.Client
	logger     *slog.Logger

	// sleepFunc and now are injectable for tests.
	sleepFunc func(ctx context.Context, d time.Duration) error
	now       func() time.Time
}

// NewFlow creates a device authorization flow.
func NewFlow(cfg FlowConfig, httpClient *http.Client, logger *slog.Logger) *Flow {
	if cfg.OAuthBase == "" {
		cfg.OAuthBase = DefaultOAuthBase
	}

	if cfg.ClientID == "" {
		cfg.ClientID = DefaultClientID
	}

	if cfg.MaxPollAttempts <= 0 {
		cfg.MaxPollAttempts = defaultMaxPollAttempts
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Flow{
		cfg:        cfg,
		httpClient: httpClient,
		logger:     logger,
		sleepFunc:  sleepCtx,
		now:        time.Now,
	}
}

// Authorize runs the full flow. display is called once with the session so
// the caller can show the user code and verification URL.
func (f *Flow) Authorize(ctx context.Context, display func(Session)) (*Credential, error) {
	session, err := f.RequestCode(ctx)
	if err != nil {
		return nil, err
	}

	if display != nil {
		display(*session)
	}

	if err := f.AwaitCredentials(ctx, session); err != nil {
		return nil, err
	}

	return f.PollToken(ctx, session)
}

// RequestCode issues the device code request. Failure here is terminal.
func (f *Flow) RequestCode(ctx context.Context) (*Session, error) {
	query := url.Values{
		"client_id":       {f.cfg.ClientID},
		"new_credentials": {"yes"},
	}

	status, body, err := f.get(ctx, "/device/code", query)
	if err != nil {
		return nil, fmt.Errorf("debrid: device code request: %w", err)
	}

	if status != http.StatusOK {
		return nil, &APIError{StatusCode: status, Message: string(body), Err: classifyStatus(status)}
	}

	var dc deviceCodeResponse
	if err := json.Unmarshal(body, &dc); err != nil {
		return nil, fmt.Errorf("debrid: decoding device code response: %w", err)
	}

	session := &Session{
		DeviceCode:      dc.DeviceCode,
		UserCode:        dc.UserCode,
		VerificationURL: dc.VerificationURL,
		IssuedAt:        f.now(),
		ExpiresIn:       time.Duration(dc.ExpiresIn) * time.Second,
		PollInterval:    time.Duration(dc.Interval) * time.Second,
	}

	if session.PollInterval <= 0 {
		session.PollInterval = 5 * time.Second
	}

	f.logger.Info("device code issued",
		slog.String("user_code", session.UserCode),
		slog.String("verification_url", session.VerificationURL),
		slog.Duration("expires_in", session.ExpiresIn),
	)

	return session, nil
}

// AwaitCredentials polls the credentials endpoint until the user approves
// the device in their browser, yielding the per-session client id/secret.
// 400/401/403 mean not-yet-granted; 429 doubles the poll interval; network
// and server errors are transient.
func (f *Flow) AwaitCredentials(ctx context.Context, session *Session) error {
	query := url.Values{
		"client_id": {f.cfg.ClientID},
		"code":      {session.DeviceCode},
	}

	interval := session.PollInterval

	for attempt := 0; attempt < f.cfg.MaxPollAttempts; attempt++ {
		if !session.Valid(f.now()) {
			return ErrFlowExpired
		}

		status, body, err := f.get(ctx, "/device/credentials", query)

		switch {
		case err != nil:
			if ctx.Err() != nil {
				return fmt.Errorf("debrid: device authorization canceled: %w", ctx.Err())
			}

			f.logger.Debug("transient error while awaiting credentials", slog.String("error", err.Error()))

		case status == http.StatusOK:
			var creds deviceCredentialsResponse
			if err := json.Unmarshal(body, &creds); err != nil {
				return fmt.Errorf("debrid: decoding device credentials: %w", err)
			}

			session.ClientID = creds.ClientID
			session.ClientSecret = creds.ClientSecret

			f.logger.Info("device authorized, session credentials issued")

			return nil

		case status == http.StatusTooManyRequests:
			interval *= 2
			f.logger.Debug("credential poll throttled, doubling interval", slog.Duration("interval", interval))

		case status == http.StatusBadRequest || status == http.StatusUnauthorized || status == http.StatusForbidden:
			// Not approved yet, keep waiting.

		case status >= http.StatusInternalServerError:
			f.logger.Debug("server error while awaiting credentials", slog.Int("status", status))

		default:
			return fmt.Errorf("%w: HTTP %d: %s", ErrFlowDenied, status, body)
		}

		if err := f.sleepFunc(ctx, interval); err != nil {
			return fmt.Errorf("debrid: device authorization canceled: %w", err)
		}
	}

	return ErrFlowTimeout
}

// PollToken exchanges the device code for tokens using the session's
// client credentials. authorization_pending keeps polling at the current
// interval, slow_down doubles it, any other 4xx is a terminal denial.
func (f *Flow) PollToken(ctx context.Context, session *Session) (*Credential, error) {
	form := url.Values{
		"client_id":     {session.ClientID},
		"client_secret": {session.ClientSecret},
		"code":          {session.DeviceCode},
		"grant_type":    {deviceGrantType},
	}

	interval := session.PollInterval

	for attempt := 0; attempt < f.cfg.MaxPollAttempts; attempt++ {
		if !session.Valid(f.now()) {
			return nil, ErrFlowExpired
		}

		status, body, err := f.postForm(ctx, "/token", form)

		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil, fmt.Errorf("debrid: token polling canceled: %w", ctx.Err())
			}

			f.logger.Debug("transient error while polling token", slog.String("error", err.Error()))

		case status == http.StatusOK:
			var tr tokenResponse
			if err := json.Unmarshal(body, &tr); err != nil {
				return nil, fmt.Errorf("debrid: decoding token response: %w", err)
			}

			f.logger.Info("access token issued",
				slog.String("token_type", tr.TokenType),
				slog.Int("expires_in_sec", tr.ExpiresIn),
			)

			return &Credential{
				AccessToken:  tr.AccessToken,
				RefreshToken: tr.RefreshToken,
				ClientID:     session.ClientID,
				ClientSecret: session.ClientSecret,
				TokenType:    tr.TokenType,
				ExpiresAt:    f.now().Add(time.Duration(tr.ExpiresIn) * time.Second),
			}, nil

		case status >= http.StatusBadRequest && status < http.StatusInternalServerError:
			var oe oauthErrorBody
			_ = json.Unmarshal(body, &oe)

			switch oe.Error {
			case oauthPending:
				// Keep polling at the current interval.
			case oauthSlowDown:
				interval *= 2
				f.logger.Debug("token poll throttled, doubling interval", slog.Duration("interval", interval))
			default:
				return nil, fmt.Errorf("%w: HTTP %d: %s", ErrFlowDenied, status, body)
			}

		default:
			f.logger.Debug("server error while polling token", slog.Int("status", status))
		}

		if err := f.sleepFunc(ctx, interval); err != nil {
			return nil, fmt.Errorf("debrid: token polling canceled: %w", err)
		}
	}

	return nil, ErrFlowTimeout
}

// get issues one GET against the OAuth base. Phases interpret statuses
// themselves, so non-2xx is not an error here.
func (f *Flow) get(ctx context.Context, path string, query url.Values) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.cfg.OAuthBase+path+"?"+query.Encode(), nil)
	if err != nil {
		return 0, nil, err
	}

	req.Header.Set("User-Agent", userAgent)

	return f.roundTrip(req)
}

// postForm issues one form-encoded POST against the OAuth base.
func (f *Flow) postForm(ctx context.Context, path string, form url.Values) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.cfg.OAuthBase+path, strings.NewReader(form.Encode()))
	if err != nil {
		return 0, nil, err
	}

	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	return f.roundTrip(req)
}

func (f *Flow) roundTrip(req *http.Request) (int, []byte, error) {
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %w", ErrNetwork, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: reading body: %w", ErrNetwork, err)
	}

	return resp.StatusCode, body, nil
}
