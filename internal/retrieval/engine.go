// Package retrieval searches the vector store and reranks hits with domain signals.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hassan8537/motor-chatbot-backend-sub000/internal/metrics"
	"github.com/hassan8537/motor-chatbot-backend-sub000/internal/retry"
	"github.com/hassan8537/motor-chatbot-backend-sub000/internal/storage"
)

// ErrRetrievalFailed is returned when search attempts are exhausted.
var ErrRetrievalFailed = errors.New("retrieval failed")

// DefaultFallbackThreshold is the score threshold of the second aggregation attempt.
const DefaultFallbackThreshold = 0.3

// Searcher is the read side of the vector store.
type Searcher interface {
	Search(ctx context.Context, req storage.SearchRequest) ([]storage.ScoredPoint, error)
}

// Options tunes one search. Zero values fall back to the query type's profile.
type Options struct {
	// Query is the natural-language question, used for classification.
	Query string
	// QueryType overrides classification.
	QueryType      QueryType
	Limit          int
	ScoreThreshold float32
	// Filter restricts hits by exact payload match, e.g. {"user_id": "..."}.
	Filter map[string]string
}

// Result is one reranked hit.
type Result struct {
	ID           string
	Score        float32 // boosted, capped at 1
	VectorScore  float32
	Boost        float32
	Rank         int // 1-based position after reranking
	OriginalRank int // 1-based position returned by the vector store
	Payload      map[string]any
	Annotations  *Annotations // aggregation queries only
}

// Content returns the labelled chunk text.
func (r Result) Content() string {
	if s, ok := r.Payload["content"].(string); ok {
		return s
	}
	s, _ := r.Payload["raw_content"].(string)
	return s
}

// ContentType returns the chunk's content type.
func (r Result) ContentType() string {
	s, _ := r.Payload["content_type"].(string)
	return s
}

// Filename returns the source document's file name.
func (r Result) Filename() string {
	s, _ := r.Payload["filename"].(string)
	return s
}

// HasStructuredData reports the indexing-time structured data marker.
func (r Result) HasStructuredData() bool {
	b, _ := r.Payload["has_structured_data"].(bool)
	return b
}

// MetricStrings returns the inline metrics as "name=value unit".
func (r Result) MetricStrings() []string {
	return stringList(r.Payload["metrics"])
}

// stringList accepts both freshly built payloads and ones decoded from the store.
func stringList(v any) []string {
	switch list := v.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Config holds engine settings.
type Config struct {
	Retry             retry.Policy
	FallbackThreshold float32
}

// DefaultConfig retries three times and falls back to a 0.3 threshold.
func DefaultConfig() Config {
	return Config{
		Retry:             retry.DefaultPolicy(),
		FallbackThreshold: DefaultFallbackThreshold,
	}
}

// Engine runs classified, reranked searches.
type Engine struct {
	store   Searcher
	cfg     Config
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewEngine creates an Engine.
func NewEngine(store Searcher, cfg Config, logger *slog.Logger, m *metrics.Metrics) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.FallbackThreshold <= 0 {
		cfg.FallbackThreshold = DefaultFallbackThreshold
	}
	return &Engine{store: store, cfg: cfg, metrics: m, logger: logger}
}

// Search returns hits for vector ordered by descending boosted score.
func (e *Engine) Search(ctx context.Context, vector []float32, collection string, opts Options) ([]Result, error) {
	queryType := opts.QueryType
	if queryType == "" {
		queryType = ClassifyQuery(opts.Query)
	}
	profile := ProfileFor(queryType)
	if opts.Limit > 0 {
		profile.Limit = opts.Limit
	}
	if opts.ScoreThreshold > 0 {
		profile.ScoreThreshold = opts.ScoreThreshold
	}
	e.metrics.SearchRequest(string(queryType))

	req := storage.SearchRequest{
		Collection:     collection,
		Vector:         vector,
		Limit:          profile.Limit,
		ScoreThreshold: profile.ScoreThreshold,
		Filter:         opts.Filter,
	}

	points, err := e.search(ctx, req)
	if err != nil {
		return nil, err
	}

	// Aggregation questions get one more chance at a lower threshold.
	if len(points) == 0 && queryType == QueryAggregation && req.ScoreThreshold > e.cfg.FallbackThreshold {
		e.logger.Debug("No aggregation results, retrying with lower threshold",
			"threshold", req.ScoreThreshold, "fallback", e.cfg.FallbackThreshold)
		req.ScoreThreshold = e.cfg.FallbackThreshold
		points, err = e.search(ctx, req)
		if err != nil {
			return nil, err
		}
	}

	results := rerank(points, queryType)
	if queryType == QueryAggregation {
		for i := range results {
			results[i].Annotations = annotate(results[i])
		}
	}

	e.logger.Debug("Search complete",
		"query_type", queryType,
		"limit", req.Limit,
		"threshold", req.ScoreThreshold,
		"results", len(results))
	return results, nil
}

func (e *Engine) search(ctx context.Context, req storage.SearchRequest) ([]storage.ScoredPoint, error) {
	policy := e.cfg.Retry
	policy.OnRetry = func(attempt int, err error, wait time.Duration) {
		e.logger.Warn("Search failed, retrying", "attempt", attempt, "wait", wait, "error", err)
	}
	points, err := retry.Value(ctx, policy, func(ctx context.Context) ([]storage.ScoredPoint, error) {
		return e.store.Search(ctx, req)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRetrievalFailed, err)
	}
	return points, nil
}
