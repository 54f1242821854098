// Package embedding generates vectors for chunk and query text through a cached,
// rate-limited and retried provider.
package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"

	"github.com/hassan8537/motor-chatbot-backend-sub000/internal/cache"
	"github.com/hassan8537/motor-chatbot-backend-sub000/internal/metrics"
	"github.com/hassan8537/motor-chatbot-backend-sub000/internal/retry"
)

// Embedder checks the embedding cache, then waits on the rate limiter and calls the
// provider with retry. Identical text (after normalization) within the cache TTL is
// served without a provider call.
type Embedder struct {
	provider Provider
	model    string
	cache    cache.Backend[[]float32]
	limiter  *RateLimiter
	policy   retry.Policy
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// Option configures an Embedder.
type Option func(*Embedder)

// WithCache enables the embedding cache.
func WithCache(c cache.Backend[[]float32]) Option {
	return func(e *Embedder) { e.cache = c }
}

// WithRateLimiter bounds provider traffic.
func WithRateLimiter(l *RateLimiter) Option {
	return func(e *Embedder) { e.limiter = l }
}

// WithRetryPolicy overrides retry.DefaultPolicy.
func WithRetryPolicy(p retry.Policy) Option {
	return func(e *Embedder) { e.policy = p }
}

// WithMetrics records provider calls.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Embedder) { e.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Embedder) { e.logger = l }
}

// NewEmbedder wraps provider. model is part of the cache key so switching models never
// serves stale vectors.
func NewEmbedder(provider Provider, model string, opts ...Option) *Embedder {
	e := &Embedder{
		provider: provider,
		model:    model,
		policy:   retry.DefaultPolicy(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Embed returns the vector for text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	key := e.cacheKey(text)
	if e.cache != nil {
		if v, ok := e.cache.Get(ctx, key); ok {
			return v, nil
		}
	}

	policy := e.policy
	policy.OnRetry = func(attempt int, err error, wait time.Duration) {
		e.logger.Warn("Embedding request failed, retrying",
			"attempt", attempt, "wait", wait, "error", err)
	}

	vector, err := retry.Value(ctx, policy, func(ctx context.Context) ([]float32, error) {
		if e.limiter != nil {
			if err := e.limiter.Wait(ctx, estimateTokens(text)); err != nil {
				return nil, err
			}
		}
		v, err := e.provider.Embed(ctx, text)
		e.metrics.EmbeddingRequest(err)
		if err != nil && e.limiter != nil && IsRateLimited(err) {
			e.limiter.RecordRateLimitError(0)
		}
		return v, err
	})
	if err != nil {
		return nil, err
	}

	if e.cache != nil {
		e.cache.Set(ctx, key, vector)
	}
	return vector, nil
}

// cacheKey hashes the normalized text so long chunks make short keys.
func (e *Embedder) cacheKey(text string) string {
	sum := sha256.Sum256([]byte(cache.NormalizeQuery(text)))
	return e.model + ":" + hex.EncodeToString(sum[:])
}
