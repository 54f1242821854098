package embedding

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig bounds embedding traffic.
type RateLimitConfig struct {
	// RequestsPerWindow is the number of requests allowed in any trailing Window.
	RequestsPerWindow int
	Window            time.Duration
	// TokensPerMinute is the sustained token budget. Zero disables token limiting.
	TokensPerMinute int
}

// DefaultRateLimitConfig stays under the provider's default tier limits.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerWindow: 500,
		Window:            time.Minute,
		TokensPerMinute:   1_000_000,
	}
}

// RateLimiter combines a sliding request window with a token bucket for the token budget.
// When the window is full, Wait sleeps until the oldest request leaves it.
type RateLimiter struct {
	mu          sync.Mutex
	window      time.Duration
	maxRequests int
	stamps      []time.Time
	retryAt     time.Time
	tokens      *rate.Limiter
	now         func() time.Time
}

// NewRateLimiter creates a limiter from cfg.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	r := &RateLimiter{
		window:      cfg.Window,
		maxRequests: cfg.RequestsPerWindow,
		now:         time.Now,
	}
	if cfg.TokensPerMinute > 0 {
		r.tokens = rate.NewLimiter(rate.Limit(float64(cfg.TokensPerMinute)/60), cfg.TokensPerMinute)
	}
	return r
}

// Wait blocks until a request estimated at tokens tokens may be sent.
func (r *RateLimiter) Wait(ctx context.Context, tokens int) error {
	for {
		wait := r.reserve()
		if wait <= 0 {
			break
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	if r.tokens != nil && tokens > 0 {
		return r.tokens.WaitN(ctx, min(tokens, r.tokens.Burst()))
	}
	return nil
}

// reserve records a request and returns 0, or returns how long to wait before trying again.
func (r *RateLimiter) reserve() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if now.Before(r.retryAt) {
		return r.retryAt.Sub(now)
	}
	if r.maxRequests <= 0 || r.window <= 0 {
		return 0
	}

	expired := 0
	for expired < len(r.stamps) && now.Sub(r.stamps[expired]) >= r.window {
		expired++
	}
	r.stamps = r.stamps[expired:]

	if len(r.stamps) >= r.maxRequests {
		return r.window - now.Sub(r.stamps[0])
	}
	r.stamps = append(r.stamps, now)
	return 0
}

// RecordRateLimitError pauses all callers for retryAfter after the provider returned 429.
func (r *RateLimiter) RecordRateLimitError(retryAfter time.Duration) {
	if retryAfter <= 0 {
		retryAfter = 5 * time.Second
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if until := r.now().Add(retryAfter); until.After(r.retryAt) {
		r.retryAt = until
	}
}

// InWindow returns the number of requests in the current window.
func (r *RateLimiter) InWindow() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	n := 0
	for _, s := range r.stamps {
		if now.Sub(s) < r.window {
			n++
		}
	}
	return n
}

// estimateTokens approximates the provider's token count at four characters per token.
func estimateTokens(text string) int {
	return len([]rune(text))/4 + 1
}
