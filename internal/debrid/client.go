package debrid

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"
)

// Retry and backoff defaults. Per-call overrides are available via Options.
const (
	defaultMaxRetries    = 3
	defaultBaseDelay     = 1 * time.Second
	defaultMaxDelay      = 30 * time.Second
	defaultBackoffFactor = 2.0
	defaultTimeout       = 30 * time.Second
	userAgent            = "hostmirror/0.1"
)

// TokenSource provides bearer tokens for authenticated calls.
// *CredentialManager is the production implementation.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// tokenInvalidator is the optional interface a TokenSource implements to
// have its cache dropped when the API rejects the token.
type tokenInvalidator interface {
	Invalidate()
}

// ClientConfig holds the knobs for a Client. Zero values fall back to the
// package defaults.
type ClientConfig struct {
	BaseURL       string
	MaxRetries    int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	Jitter        bool
	Timeout       time.Duration
}

// Options describes a single API request.
type Options struct {
	Method string // defaults to GET
	Query  url.Values
	Header http.Header
	Body   []byte

	// Timeout overrides the client default for this call when > 0.
	Timeout time.Duration

	// MaxRetries overrides the client default when non-nil. Zero means a
	// single attempt.
	MaxRetries *int

	// SkipRateLimit bypasses the token bucket. Reserved for lightweight
	// health probes.
	SkipRateLimit bool

	// SkipAuth omits the Authorization header (OAuth endpoints).
	SkipAuth bool
}

// Response is a fully-read API response. The body is buffered so deduped
// callers can each decode it independently.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Decode unmarshals the response body into v.
func (r *Response) Decode(v any) error {
	if err := json.Unmarshal(r.Body, v); err != nil {
		return fmt.Errorf("debrid: decoding response: %w", err)
	}

	return nil
}

// Client is a resilient HTTP client for the REST API. It enforces the
// shared rate limit, attaches bearer credentials, retries retryable
// failures with exponential backoff, and coalesces concurrent identical
// requests into a single network call.
type Client struct {
	cfg        ClientConfig
	httpClient *http.Client
	limiter    *RateLimiter
	tokens     TokenSource
	logger     *slog.Logger

	inflight singleflight.Group

	// sleepFunc waits between retries. Tests override it to avoid delays.
	sleepFunc func(ctx context.Context, d time.Duration) error

	// randFloat feeds the jitter calculation. Tests pin it for determinism.
	randFloat func() float64
}

// NewClient creates a Client. limiter may not be nil; tokens may be nil
// only if every call sets SkipAuth.
func NewClient(cfg ClientConfig, httpClient *http.Client, limiter *RateLimiter, tokens TokenSource, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultAPIBase
	}

	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaultMaxRetries
	}

	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = defaultBaseDelay
	}

	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = defaultMaxDelay
	}

	if cfg.BackoffFactor <= 1 {
		cfg.BackoffFactor = defaultBackoffFactor
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		cfg:        cfg,
		httpClient: httpClient,
		limiter:    limiter,
		tokens:     tokens,
		logger:     logger,
		sleepFunc:  sleepCtx,
		randFloat:  rand.Float64,
	}
}

// Do executes a request against the API. Concurrent calls with an
// identical method, endpoint, and body share one network call and one
// result; the coalescing entry is dropped as soon as the shared call
// settles, successfully or not.
//
// Ordinary API failures are returned as *APIError values, never panics.
func (c *Client) Do(ctx context.Context, endpoint string, opts Options) (*Response, error) {
	if opts.Method == "" {
		opts.Method = http.MethodGet
	}

	key := requestKey(opts.Method, endpoint, opts.Query, opts.Body)

	v, err, shared := c.inflight.Do(key, func() (any, error) {
		return c.doRetry(ctx, endpoint, opts)
	})

	if shared {
		c.logger.Debug("request coalesced with identical in-flight call",
			slog.String("method", opts.Method),
			slog.String("endpoint", endpoint),
		)
	}

	if err != nil {
		return nil, err
	}

	resp, ok := v.(*Response)
	if !ok {
		return nil, fmt.Errorf("debrid: unexpected in-flight result type %T", v)
	}

	return resp, nil
}

// doRetry runs the attempt loop for a single deduplicated request.
func (c *Client) doRetry(ctx context.Context, endpoint string, opts Options) (*Response, error) {
	maxRetries := c.cfg.MaxRetries
	if opts.MaxRetries != nil {
		maxRetries = *opts.MaxRetries
	}

	var lastErr error

	for attempt := 0; attempt <= maxRetries; attempt++ {
		resp, err := c.attempt(ctx, endpoint, opts)
		if err == nil {
			return resp, nil
		}

		lastErr = err

		// The caller gave up; do not burn remaining attempts.
		if ctx.Err() != nil {
			return nil, fmt.Errorf("debrid: request canceled: %w", ctx.Err())
		}

		if !retryable(err) || attempt == maxRetries {
			break
		}

		delay := c.backoff(attempt, retryAfter(err))
		c.logger.Warn("retrying request",
			slog.String("method", opts.Method),
			slog.String("endpoint", endpoint),
			slog.Int("attempt", attempt+1),
			slog.Duration("backoff", delay),
			slog.String("error", err.Error()),
		)

		if sleepErr := c.sleepFunc(ctx, delay); sleepErr != nil {
			return nil, fmt.Errorf("debrid: request canceled: %w", sleepErr)
		}
	}

	return nil, lastErr
}

// attempt issues one network call under the per-call deadline.
func (c *Client) attempt(ctx context.Context, endpoint string, opts Options) (*Response, error) {
	timeout := c.cfg.Timeout
	if opts.Timeout > 0 {
		timeout = opts.Timeout
	}

	if !opts.SkipRateLimit && c.limiter != nil {
		if err := c.limiter.Acquire(ctx); err != nil {
			return nil, err
		}
	}

	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := c.buildRequest(attemptCtx, endpoint, opts)
	if err != nil {
		return nil, err
	}

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		if attemptCtx.Err() != nil && ctx.Err() == nil {
			return nil, fmt.Errorf("debrid: %s %s: %w", opts.Method, endpoint, ErrTimeout)
		}

		return nil, fmt.Errorf("debrid: %s %s: %w: %w", opts.Method, endpoint, ErrNetwork, err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("debrid: %s %s: reading body: %w: %w", opts.Method, endpoint, ErrNetwork, err)
	}

	if httpResp.StatusCode >= http.StatusOK && httpResp.StatusCode < http.StatusMultipleChoices {
		c.logger.Debug("request succeeded",
			slog.String("method", opts.Method),
			slog.String("endpoint", endpoint),
			slog.Int("status", httpResp.StatusCode),
		)

		return &Response{
			StatusCode: httpResp.StatusCode,
			Header:     httpResp.Header,
			Body:       body,
		}, nil
	}

	apiErr := &APIError{
		StatusCode: httpResp.StatusCode,
		Message:    string(body),
		Err:        classifyStatus(httpResp.StatusCode),
	}

	var envelope apiErrorBody
	if json.Unmarshal(body, &envelope) == nil && envelope.ErrorCode != 0 {
		apiErr.Code = envelope.ErrorCode
		apiErr.Message = envelope.Error
	}

	if ra := httpResp.Header.Get("Retry-After"); ra != "" {
		apiErr.retryAfterHeader = ra
	}

	// A rejected token means the cached credential is dead weight.
	if Classify(apiErr).RequiresReauth {
		if inv, ok := c.tokens.(tokenInvalidator); ok {
			inv.Invalidate()
		}
	}

	return nil, apiErr
}

// buildRequest constructs the http.Request for one attempt. A fresh body
// reader is created each time so retries do not reuse a drained reader.
func (c *Client) buildRequest(ctx context.Context, endpoint string, opts Options) (*http.Request, error) {
	u := c.cfg.BaseURL + endpoint
	if len(opts.Query) > 0 {
		u += "?" + opts.Query.Encode()
	}

	var bodyReader io.Reader
	if len(opts.Body) > 0 {
		bodyReader = bytes.NewReader(opts.Body)
	}

	req, err := http.NewRequestWithContext(ctx, opts.Method, u, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("debrid: creating request: %w", err)
	}

	req.Header.Set("User-Agent", userAgent)

	for k, vs := range opts.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	if !opts.SkipAuth {
		if c.tokens == nil {
			return nil, ErrNotLoggedIn
		}

		tok, err := c.tokens.Token(ctx)
		if err != nil {
			return nil, fmt.Errorf("debrid: obtaining token: %w", err)
		}

		req.Header.Set("Authorization", "Bearer "+tok)
	}

	return req, nil
}

// backoff computes the retry delay: min(base*factor^attempt, max), scaled
// by a uniform factor in [0.5, 1.0] when jitter is enabled. A Retry-After
// value from a 429 takes precedence.
func (c *Client) backoff(attempt int, retryAfter time.Duration) time.Duration {
	if retryAfter > 0 {
		return retryAfter
	}

	delay := float64(c.cfg.BaseDelay) * math.Pow(c.cfg.BackoffFactor, float64(attempt))
	if delay > float64(c.cfg.MaxDelay) {
		delay = float64(c.cfg.MaxDelay)
	}

	if c.cfg.Jitter {
		delay *= 0.5 + c.randFloat()*0.5
	}

	return time.Duration(delay)
}

// retryable reports whether an attempt failure may be retried: throttling,
// server errors, and transport-level timeouts or network failures.
func retryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return isRetryableStatus(apiErr.StatusCode)
	}

	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrNetwork)
}

// retryAfter extracts a Retry-After duration from a throttled response.
func retryAfter(err error) time.Duration {
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusTooManyRequests {
		return 0
	}

	if seconds, convErr := strconv.Atoi(apiErr.retryAfterHeader); convErr == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}

	return 0
}

// requestKey derives the deduplication key from the request identity:
// method, endpoint with query, and a digest of the body.
func requestKey(method, endpoint string, query url.Values, body []byte) string {
	u := endpoint
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	sum := sha256.Sum256(body)

	return method + " " + u + " " + hex.EncodeToString(sum[:])
}

// sleepCtx waits for d or until ctx is canceled. Default sleepFunc.
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
