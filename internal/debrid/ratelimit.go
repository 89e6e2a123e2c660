package debrid

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig describes the token bucket shared by all API calls.
// The API allows RequestsPerWindow calls per Window, with short spikes up
// to Burst absorbed by the bucket.
type RateLimitConfig struct {
	RequestsPerWindow int
	Window            time.Duration
	Burst             int
}

// DefaultRateLimit matches the documented API allowance of 250 requests
// per minute, with a small burst so interactive commands stay snappy.
var DefaultRateLimit = RateLimitConfig{
	RequestsPerWindow: 250,
	Window:            time.Minute,
	Burst:             10,
}

// RateLimiter is a token-bucket admission gate shared by every outbound
// API call. Refill is lazy: tokens accrue with elapsed time and are capped
// at the burst size, so 0 <= tokens <= burst always holds.
type RateLimiter struct {
	limiter *rate.Limiter
	cfg     RateLimitConfig
	logger  *slog.Logger
}

// RateLimitSnapshot is a read-only view of the bucket for observability.
// Taking a snapshot does not debit tokens.
type RateLimitSnapshot struct {
	Tokens  float64
	ResetAt time.Time // when the bucket is full again, assuming no acquisitions
	Config  RateLimitConfig
}

// NewRateLimiter creates a limiter from the given config. Zero or negative
// fields fall back to DefaultRateLimit.
func NewRateLimiter(cfg RateLimitConfig, logger *slog.Logger) *RateLimiter {
	if cfg.RequestsPerWindow <= 0 || cfg.Window <= 0 {
		cfg = DefaultRateLimit
	}

	if cfg.Burst <= 0 {
		cfg.Burst = DefaultRateLimit.Burst
	}

	if logger == nil {
		logger = slog.Default()
	}

	perSecond := float64(cfg.RequestsPerWindow) / cfg.Window.Seconds()

	logger.Debug("rate limiter created",
		slog.Float64("tokens_per_sec", perSecond),
		slog.Int("burst", cfg.Burst),
	)

	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(perSecond), cfg.Burst),
		cfg:     cfg,
		logger:  logger,
	}
}

// Acquire blocks until a token is available, then debits one. The wait is
// cooperative: it returns early with the context's error on cancellation.
func (l *RateLimiter) Acquire(ctx context.Context) error {
	if err := l.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("debrid: rate limit wait: %w", err)
	}

	return nil
}

// Snapshot returns the current bucket state without debiting tokens.
// Tokens are clamped to [0, burst] to hide the limiter's internal debt
// representation from callers.
func (l *RateLimiter) Snapshot() RateLimitSnapshot {
	tokens := l.limiter.Tokens()
	tokens = math.Max(0, math.Min(tokens, float64(l.cfg.Burst)))

	perSecond := float64(l.cfg.RequestsPerWindow) / l.cfg.Window.Seconds()
	missing := float64(l.cfg.Burst) - tokens
	refillIn := time.Duration(missing / perSecond * float64(time.Second))

	return RateLimitSnapshot{
		Tokens:  tokens,
		ResetAt: time.Now().Add(refillIn),
		Config:  l.cfg,
	}
}
