// Package answer turns a question into a grounded answer: embed, retrieve, prompt, complete.
package answer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/hassan8537/motor-chatbot-backend-sub000/internal/apperr"
	"github.com/hassan8537/motor-chatbot-backend-sub000/internal/cache"
	"github.com/hassan8537/motor-chatbot-backend-sub000/internal/llm"
	"github.com/hassan8537/motor-chatbot-backend-sub000/internal/records"
	"github.com/hassan8537/motor-chatbot-backend-sub000/internal/retrieval"
)

// ErrEmptyQuestion is returned for blank questions.
var ErrEmptyQuestion = errors.New("question is empty")

// NoResultsAnswer is returned without a completion call when nothing relevant is indexed.
const NoResultsAnswer = "I could not find anything about that in the uploaded documents."

// QueryEmbedder embeds question text. embedding.Embedder satisfies it.
type QueryEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Searcher runs a retrieval. retrieval.Engine satisfies it.
type Searcher interface {
	Search(ctx context.Context, vector []float32, collection string, opts retrieval.Options) ([]retrieval.Result, error)
}

// QueryRecorder persists question history. records.SQLiteStore satisfies it.
type QueryRecorder interface {
	SaveQuery(ctx context.Context, rec records.QueryRecord) error
}

// Question is one user question.
type Question struct {
	UserID     string
	Text       string
	Collection string // defaults to Config.Collection
}

// Source is a retrieved excerpt the answer was grounded on.
type Source struct {
	Filename    string  `json:"filename"`
	ContentType string  `json:"content_type"`
	Score       float32 `json:"score"`
	ChunkIndex  int     `json:"chunk_index"`
}

// Answer is the response to a Question.
type Answer struct {
	Text        string              `json:"text"`
	QueryType   retrieval.QueryType `json:"query_type"`
	Sources     []Source            `json:"sources"`
	Stats       []MetricStat        `json:"stats,omitempty"`
	Usage       llm.Usage           `json:"usage"`
	ResultCount int                 `json:"result_count"`
	Cached      bool                `json:"cached"`
}

// clone copies a so the cache and callers never share an Answer or its slices.
func (a *Answer) clone() *Answer {
	c := *a
	c.Sources = slices.Clone(a.Sources)
	c.Stats = slices.Clone(a.Stats)
	return &c
}

// Config holds answering settings.
type Config struct {
	Collection string
	// ScopeToUser restricts retrieval to the asking user's documents.
	ScopeToUser bool
	// MaxContextChars bounds the excerpts sent to the completion model.
	MaxContextChars int
	MaxTokens       int
	Temperature     float64
}

// DefaultConfig returns the production answering settings.
func DefaultConfig() Config {
	return Config{
		ScopeToUser:     true,
		MaxContextChars: 24000,
		MaxTokens:       800,
		Temperature:     0.2,
	}
}

// Service answers questions.
type Service struct {
	embedder  QueryEmbedder
	searcher  Searcher
	completer llm.Completer
	responses cache.Backend[*Answer]
	recorder  QueryRecorder
	cfg       Config
	logger    *slog.Logger
}

// NewService creates a Service. responses and recorder may be nil.
func NewService(embedder QueryEmbedder, searcher Searcher, completer llm.Completer,
	responses cache.Backend[*Answer], recorder QueryRecorder, cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		embedder:  embedder,
		searcher:  searcher,
		completer: completer,
		responses: responses,
		recorder:  recorder,
		cfg:       cfg,
		logger:    logger,
	}
}

// Ask answers q. An identical question from the same user within the response cache TTL is
// served from cache without any provider call.
func (s *Service) Ask(ctx context.Context, q Question) (*Answer, error) {
	start := time.Now()
	text := strings.TrimSpace(q.Text)
	if text == "" {
		return nil, apperr.Validation("ask", ErrEmptyQuestion)
	}
	collection := q.Collection
	if collection == "" {
		collection = s.cfg.Collection
	}

	key := cache.ResponseKey(q.UserID, collection+"|"+text)
	if s.responses != nil {
		if cached, ok := s.responses.Get(ctx, key); ok && cached != nil {
			ans := cached.clone()
			ans.Cached = true
			ans.Usage = llm.Usage{}
			s.record(ctx, q, ans, start)
			return ans, nil
		}
	}

	vector, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}

	opts := retrieval.Options{Query: text}
	if s.cfg.ScopeToUser && q.UserID != "" {
		opts.Filter = map[string]string{"user_id": q.UserID}
	}
	results, err := s.searcher.Search(ctx, vector, collection, opts)
	if err != nil {
		return nil, err
	}

	queryType := retrieval.ClassifyQuery(text)
	ans := &Answer{
		QueryType:   queryType,
		Sources:     sources(results),
		ResultCount: len(results),
	}

	if len(results) == 0 {
		ans.Text = NoResultsAnswer
		s.record(ctx, q, ans, start)
		return ans, nil
	}

	if queryType == retrieval.QueryAggregation {
		ans.Stats = computeStats(results)
	}

	completion, err := s.completer.Complete(ctx, llm.Request{
		System:      systemPrompt,
		User:        buildPrompt(text, queryType, results, ans.Stats, s.cfg.MaxContextChars),
		MaxTokens:   s.cfg.MaxTokens,
		Temperature: s.cfg.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("complete answer: %w", err)
	}
	ans.Text = strings.TrimSpace(completion.Text)
	ans.Usage = completion.Usage

	if s.responses != nil {
		s.responses.Set(ctx, key, ans.clone())
	}
	s.record(ctx, q, ans, start)

	s.logger.Info("Answered question",
		"user_id", q.UserID,
		"query_type", queryType,
		"results", len(results),
		"total_tokens", ans.Usage.TotalTokens,
		"duration", time.Since(start),
	)
	return ans, nil
}

// record persists the exchange; failures are logged, never returned.
func (s *Service) record(ctx context.Context, q Question, ans *Answer, start time.Time) {
	if s.recorder == nil {
		return
	}
	names := make([]string, 0, len(ans.Sources))
	seen := make(map[string]bool)
	for _, src := range ans.Sources {
		if src.Filename != "" && !seen[src.Filename] {
			seen[src.Filename] = true
			names = append(names, src.Filename)
		}
	}
	err := s.recorder.SaveQuery(ctx, records.QueryRecord{
		UserID:           q.UserID,
		Question:         q.Text,
		Answer:           ans.Text,
		QueryType:        string(ans.QueryType),
		ResultCount:      ans.ResultCount,
		Sources:          names,
		PromptTokens:     ans.Usage.PromptTokens,
		CompletionTokens: ans.Usage.CompletionTokens,
		TotalTokens:      ans.Usage.TotalTokens,
		Cached:           ans.Cached,
		Duration:         time.Since(start),
	})
	if err != nil {
		s.logger.Warn("Failed to save query record", "user_id", q.UserID, "error", err)
	}
}

func sources(results []retrieval.Result) []Source {
	out := make([]Source, 0, len(results))
	for _, r := range results {
		src := Source{
			Filename:    r.Filename(),
			ContentType: r.ContentType(),
			Score:       r.Score,
		}
		switch idx := r.Payload["chunk_index"].(type) {
		case int:
			src.ChunkIndex = idx
		case int64:
			src.ChunkIndex = int(idx)
		}
		out = append(out, src)
	}
	return out
}
