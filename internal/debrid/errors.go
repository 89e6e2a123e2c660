// Package debrid provides an HTTP client for the Real-Debrid REST API
// with rate limiting, automatic retry, request deduplication, transparent
// credential refresh, and error classification.
package debrid

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for response classification.
// Use errors.Is(err, debrid.ErrUnauthorized) to check.
var (
	ErrBadRequest   = errors.New("debrid: bad request")
	ErrUnauthorized = errors.New("debrid: unauthorized")
	ErrForbidden    = errors.New("debrid: forbidden")
	ErrNotFound     = errors.New("debrid: not found")
	ErrThrottled    = errors.New("debrid: throttled")
	ErrServerError  = errors.New("debrid: server error")
	ErrTimeout      = errors.New("debrid: request timed out")
	ErrNetwork      = errors.New("debrid: network failure")
	ErrNotLoggedIn  = errors.New("debrid: not logged in (run login first)")
)

// Known API error codes returned in the JSON error body alongside the
// HTTP status. Only the codes the client acts on are listed.
const (
	apiCodeSlowDown         = 5
	apiCodeResourceNotFound = 7
	apiCodeBadToken         = 8
	apiCodePermissionDenied = 9
	apiCodeNotPremium       = 14
)

// Severity buckets for classified errors, ordered by urgency.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Classification is the caller-facing verdict on an error: what to tell
// the user, whether the operation may be retried, and whether the stored
// credential is no longer usable.
type Classification struct {
	Message        string
	Action         string
	Severity       Severity
	ShouldRetry    bool
	RequiresReauth bool
}

// APIError wraps a sentinel error with the HTTP status, the API error
// code from the response body, and the raw body for debugging.
type APIError struct {
	StatusCode int
	Code       int    // API error_code from the JSON body, 0 if absent
	Message    string // raw response body or transport error text
	Err        error  // sentinel, for errors.Is()

	// retryAfterHeader carries the Retry-After value from a throttled
	// response so the retry loop can honor it.
	retryAfterHeader string
}

func (e *APIError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("debrid: HTTP %d (error_code %d): %s", e.StatusCode, e.Code, e.Message)
	}

	return fmt.Sprintf("debrid: HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// classifyStatus maps an HTTP status code to a sentinel error.
// Returns nil for 2xx success codes.
func classifyStatus(code int) error {
	switch code {
	case http.StatusBadRequest:
		return ErrBadRequest
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusTooManyRequests:
		return ErrThrottled
	default:
		if code >= http.StatusInternalServerError {
			return ErrServerError
		}

		return nil
	}
}

// isRetryableStatus reports whether the given HTTP status should be retried.
// Only throttling and upstream failures qualify; every other 4xx is final.
func isRetryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

// Classify maps any error from the client into a Classification. It is a
// pure function over the error value: API errors are classified by their
// error code first and HTTP status second, transport errors by sentinel.
func Classify(err error) Classification {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if c, ok := classifyAPICode(apiErr.Code); ok {
			return c
		}

		return classifyHTTPStatus(apiErr.StatusCode)
	}

	switch {
	case errors.Is(err, ErrTimeout):
		return Classification{
			Message:     "The service took too long to respond.",
			Action:      "Check your connection and try again.",
			Severity:    SeverityMedium,
			ShouldRetry: true,
		}
	case errors.Is(err, ErrNetwork):
		return Classification{
			Message:     "Could not reach the service.",
			Action:      "Check your connection and try again.",
			Severity:    SeverityMedium,
			ShouldRetry: true,
		}
	}

	return Classification{
		Message:  err.Error(),
		Severity: SeverityLow,
	}
}

// classifyAPICode handles the API error codes the client has specific
// behavior for. Returns ok=false when the code carries no extra meaning
// beyond the HTTP status.
func classifyAPICode(code int) (Classification, bool) {
	switch code {
	case apiCodeBadToken:
		return Classification{
			Message:        "Your session has expired.",
			Action:         "Log in again to reconnect your account.",
			Severity:       SeverityCritical,
			RequiresReauth: true,
		}, true
	case apiCodePermissionDenied:
		return Classification{
			Message:  "Your account is not allowed to perform this action.",
			Action:   "Check your account permissions.",
			Severity: SeverityHigh,
		}, true
	case apiCodeNotPremium:
		return Classification{
			Message:  "This feature requires a premium subscription.",
			Action:   "Upgrade your plan to continue.",
			Severity: SeverityHigh,
		}, true
	case apiCodeSlowDown:
		return Classification{
			Message:     "Too many requests, slowing down.",
			Severity:    SeverityLow,
			ShouldRetry: true,
		}, true
	default:
		return Classification{}, false
	}
}

// classifyHTTPStatus is the fallback classification when the body carried
// no recognized API error code.
func classifyHTTPStatus(status int) Classification {
	switch {
	case status == http.StatusUnauthorized:
		return Classification{
			Message:        "Authentication failed.",
			Action:         "Log in again to reconnect your account.",
			Severity:       SeverityCritical,
			RequiresReauth: true,
		}
	case status == http.StatusForbidden:
		return Classification{
			Message:  "Access denied.",
			Action:   "Check your account permissions.",
			Severity: SeverityHigh,
		}
	case status == http.StatusTooManyRequests:
		return Classification{
			Message:     "Rate limit exceeded.",
			Action:      "The request will be retried automatically.",
			Severity:    SeverityLow,
			ShouldRetry: true,
		}
	case status >= http.StatusInternalServerError:
		return Classification{
			Message:     "The service is having trouble.",
			Action:      "Try again in a few minutes.",
			Severity:    SeverityMedium,
			ShouldRetry: true,
		}
	default:
		return Classification{
			Message:  fmt.Sprintf("Request failed with HTTP %d.", status),
			Severity: SeverityLow,
		}
	}
}
