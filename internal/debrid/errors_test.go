package debrid

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify_APICodes(t *testing.T) {
	tests := []struct {
		name           string
		code           int
		status         int
		severity       Severity
		shouldRetry    bool
		requiresReauth bool
	}{
		{"bad token", apiCodeBadToken, http.StatusUnauthorized, SeverityCritical, false, true},
		{"permission denied", apiCodePermissionDenied, http.StatusForbidden, SeverityHigh, false, false},
		{"not premium", apiCodeNotPremium, http.StatusForbidden, SeverityHigh, false, false},
		{"slow down", apiCodeSlowDown, http.StatusTooManyRequests, SeverityLow, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := &APIError{StatusCode: tt.status, Code: tt.code, Err: classifyStatus(tt.status)}

			c := Classify(err)
			assert.Equal(t, tt.severity, c.Severity)
			assert.Equal(t, tt.shouldRetry, c.ShouldRetry)
			assert.Equal(t, tt.requiresReauth, c.RequiresReauth)
			assert.NotEmpty(t, c.Message)
		})
	}
}

func TestClassify_HTTPStatusFallback(t *testing.T) {
	tests := []struct {
		name           string
		status         int
		severity       Severity
		shouldRetry    bool
		requiresReauth bool
	}{
		{"unauthorized", http.StatusUnauthorized, SeverityCritical, false, true},
		{"forbidden", http.StatusForbidden, SeverityHigh, false, false},
		{"throttled", http.StatusTooManyRequests, SeverityLow, true, false},
		{"server error", http.StatusInternalServerError, SeverityMedium, true, false},
		{"gateway timeout", http.StatusGatewayTimeout, SeverityMedium, true, false},
		{"teapot", http.StatusTeapot, SeverityLow, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := &APIError{StatusCode: tt.status, Err: classifyStatus(tt.status)}

			c := Classify(err)
			assert.Equal(t, tt.severity, c.Severity)
			assert.Equal(t, tt.shouldRetry, c.ShouldRetry)
			assert.Equal(t, tt.requiresReauth, c.RequiresReauth)
		})
	}
}

func TestClassify_CodeWinsOverStatus(t *testing.T) {
	// A 403 carrying the bad-token code still demands reauth.
	err := &APIError{StatusCode: http.StatusForbidden, Code: apiCodeBadToken, Err: ErrForbidden}

	c := Classify(err)
	assert.True(t, c.RequiresReauth)
	assert.Equal(t, SeverityCritical, c.Severity)
}

func TestClassify_TransportErrors(t *testing.T) {
	c := Classify(fmt.Errorf("wrapped: %w", ErrTimeout))
	assert.True(t, c.ShouldRetry)
	assert.Equal(t, SeverityMedium, c.Severity)

	c = Classify(fmt.Errorf("wrapped: %w", ErrNetwork))
	assert.True(t, c.ShouldRetry)
	assert.Equal(t, SeverityMedium, c.Severity)
}

func TestClassify_UnknownError(t *testing.T) {
	c := Classify(errors.New("something odd"))
	assert.False(t, c.ShouldRetry)
	assert.False(t, c.RequiresReauth)
	assert.Equal(t, SeverityLow, c.Severity)
	assert.Equal(t, "something odd", c.Message)
}

func TestAPIError_Unwrap(t *testing.T) {
	err := &APIError{StatusCode: http.StatusNotFound, Err: ErrNotFound}

	assert.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "HTTP 404")

	withCode := &APIError{StatusCode: http.StatusUnauthorized, Code: apiCodeBadToken, Message: "bad_token", Err: ErrUnauthorized}
	assert.Contains(t, withCode.Error(), "error_code 8")
}

func TestIsRetryableStatus(t *testing.T) {
	assert.True(t, isRetryableStatus(http.StatusTooManyRequests))
	assert.True(t, isRetryableStatus(http.StatusInternalServerError))
	assert.True(t, isRetryableStatus(http.StatusServiceUnavailable))
	assert.False(t, isRetryableStatus(http.StatusBadRequest))
	assert.False(t, isRetryableStatus(http.StatusUnauthorized))
	assert.False(t, isRetryableStatus(http.StatusNotFound))
}

func TestClassifyStatus_SuccessIsNil(t *testing.T) {
	assert.NoError(t, classifyStatus(http.StatusOK))
	assert.NoError(t, classifyStatus(http.StatusNoContent))
}
