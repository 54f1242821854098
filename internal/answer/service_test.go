package answer

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hassan8537/motor-chatbot-backend-sub000/internal/apperr"
	"github.com/hassan8537/motor-chatbot-backend-sub000/internal/cache"
	"github.com/hassan8537/motor-chatbot-backend-sub000/internal/llm"
	"github.com/hassan8537/motor-chatbot-backend-sub000/internal/records"
	"github.com/hassan8537/motor-chatbot-backend-sub000/internal/retrieval"
)

type fakeEmbedder struct {
	calls int
	err   error
}

func (f *fakeEmbedder) Embed(_ context.Context, _ string) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.1, 0.2}, nil
}

type fakeSearcher struct {
	calls   int
	opts    []retrieval.Options
	results []retrieval.Result
}

func (f *fakeSearcher) Search(_ context.Context, _ []float32, _ string, opts retrieval.Options) ([]retrieval.Result, error) {
	f.calls++
	f.opts = append(f.opts, opts)
	return f.results, nil
}

type fakeCompleter struct {
	calls    int
	requests []llm.Request
	err      error
}

func (f *fakeCompleter) Complete(_ context.Context, req llm.Request) (*llm.Completion, error) {
	f.calls++
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return &llm.Completion{
		Text:  " The Corolla makes 138 hp [1]. ",
		Usage: llm.Usage{PromptTokens: 120, CompletionTokens: 12, TotalTokens: 132},
	}, nil
}

type fakeRecorder struct {
	saved []records.QueryRecord
	err   error
}

func (f *fakeRecorder) SaveQuery(_ context.Context, rec records.QueryRecord) error {
	f.saved = append(f.saved, rec)
	return f.err
}

func corollaResult() retrieval.Result {
	return retrieval.Result{
		ID:    "p1",
		Score: 0.82,
		Payload: map[string]any{
			"content":      "[Engine Specs]\nThe Toyota Corolla produces 138 hp.",
			"content_type": "engine_specs",
			"filename":     "corolla.pdf",
			"chunk_index":  int64(3),
		},
	}
}

type harness struct {
	embedder  *fakeEmbedder
	searcher  *fakeSearcher
	completer *fakeCompleter
	recorder  *fakeRecorder
	service   *Service
}

func newHarness(results ...retrieval.Result) *harness {
	h := &harness{
		embedder:  &fakeEmbedder{},
		searcher:  &fakeSearcher{results: results},
		completer: &fakeCompleter{},
		recorder:  &fakeRecorder{},
	}
	cfg := DefaultConfig()
	cfg.Collection = "motor"
	responses := cache.New[*Answer]("responses", time.Minute, 10)
	h.service = NewService(h.embedder, h.searcher, h.completer, responses, h.recorder, cfg, nil)
	return h
}

func TestAsk_Answers(t *testing.T) {
	h := newHarness(corollaResult())

	ans, err := h.service.Ask(context.Background(), Question{UserID: "alice", Text: "What is the horsepower of the Corolla?"})
	require.NoError(t, err)

	assert.Equal(t, "The Corolla makes 138 hp [1].", ans.Text)
	assert.Equal(t, retrieval.QueryDomain, ans.QueryType)
	assert.False(t, ans.Cached)
	assert.Equal(t, 132, ans.Usage.TotalTokens)
	require.Len(t, ans.Sources, 1)
	assert.Equal(t, Source{Filename: "corolla.pdf", ContentType: "engine_specs", Score: 0.82, ChunkIndex: 3}, ans.Sources[0])

	require.Len(t, h.searcher.opts, 1)
	assert.Equal(t, map[string]string{"user_id": "alice"}, h.searcher.opts[0].Filter)

	require.Len(t, h.completer.requests, 1)
	prompt := h.completer.requests[0].User
	assert.Contains(t, prompt, "[1] corolla.pdf (Engine Specs, relevance 0.82)")
	assert.True(t, strings.HasSuffix(prompt, "Question: What is the horsepower of the Corolla?"))

	require.Len(t, h.recorder.saved, 1)
	assert.Equal(t, []string{"corolla.pdf"}, h.recorder.saved[0].Sources)
	assert.Equal(t, 132, h.recorder.saved[0].TotalTokens)
}

func TestAsk_RepeatedQuestionServedFromCache(t *testing.T) {
	h := newHarness(corollaResult())
	ctx := context.Background()

	first, err := h.service.Ask(ctx, Question{UserID: "alice", Text: "Torque of the Corolla?"})
	require.NoError(t, err)

	second, err := h.service.Ask(ctx, Question{UserID: "alice", Text: "  torque of the   corolla? "})
	require.NoError(t, err)

	assert.Equal(t, 1, h.embedder.calls)
	assert.Equal(t, 1, h.searcher.calls)
	assert.Equal(t, 1, h.completer.calls)

	assert.True(t, second.Cached)
	assert.False(t, first.Cached, "cached copy must not mutate the first answer")
	assert.Equal(t, first.Text, second.Text)
	assert.Zero(t, second.Usage.TotalTokens)

	require.Len(t, h.recorder.saved, 2)
	assert.True(t, h.recorder.saved[1].Cached)
}

func TestAsk_MutatingReturnedAnswerLeavesCacheIntact(t *testing.T) {
	h := newHarness(corollaResult())
	ctx := context.Background()
	q := Question{UserID: "alice", Text: "Torque of the Corolla?"}

	first, err := h.service.Ask(ctx, q)
	require.NoError(t, err)
	want := first.Text
	first.Text = "edited by caller"
	first.Sources[0].Filename = "other.pdf"

	second, err := h.service.Ask(ctx, q)
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, want, second.Text)
	assert.Equal(t, "corolla.pdf", second.Sources[0].Filename)

	second.Text = "edited again"
	third, err := h.service.Ask(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, want, third.Text)
	assert.Equal(t, 1, h.completer.calls)
}

func TestAsk_CacheIsPerUser(t *testing.T) {
	h := newHarness(corollaResult())
	ctx := context.Background()

	_, err := h.service.Ask(ctx, Question{UserID: "alice", Text: "Torque of the Corolla?"})
	require.NoError(t, err)
	_, err = h.service.Ask(ctx, Question{UserID: "bob", Text: "Torque of the Corolla?"})
	require.NoError(t, err)

	assert.Equal(t, 2, h.completer.calls)
}

func TestAsk_NoResults(t *testing.T) {
	h := newHarness()

	ans, err := h.service.Ask(context.Background(), Question{UserID: "alice", Text: "Tell me about the Sportage"})
	require.NoError(t, err)
	assert.Equal(t, NoResultsAnswer, ans.Text)
	assert.Zero(t, h.completer.calls)

	_, err = h.service.Ask(context.Background(), Question{UserID: "alice", Text: "Tell me about the Sportage"})
	require.NoError(t, err)
	assert.Equal(t, 2, h.searcher.calls, "empty answers are not cached")
}

func TestAsk_EmptyQuestion(t *testing.T) {
	h := newHarness()

	_, err := h.service.Ask(context.Background(), Question{Text: "   "})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrEmptyQuestion)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	assert.Zero(t, h.embedder.calls)
}

func TestAsk_CompletionFailure(t *testing.T) {
	h := newHarness(corollaResult())
	h.completer.err = errors.New("upstream down")

	_, err := h.service.Ask(context.Background(), Question{UserID: "alice", Text: "Torque of the Corolla?"})
	require.Error(t, err)
	assert.ErrorIs(t, err, h.completer.err)
	assert.Empty(t, h.recorder.saved)
}

func TestAsk_RecorderFailureIsNotFatal(t *testing.T) {
	h := newHarness(corollaResult())
	h.recorder.err = errors.New("disk full")

	ans, err := h.service.Ask(context.Background(), Question{UserID: "alice", Text: "Torque of the Corolla?"})
	require.NoError(t, err)
	assert.NotEmpty(t, ans.Text)
}

func TestAsk_AggregationIncludesStats(t *testing.T) {
	withMetrics := func(id, model string, hp float64) retrieval.Result {
		r := corollaResult()
		r.ID = id
		r.Annotations = &retrieval.Annotations{
			Identifiers: []string{model},
			Metrics:     []retrieval.MetricValue{{Name: "horsepower", Value: hp, Unit: "hp"}},
		}
		return r
	}
	h := newHarness(withMetrics("a", "Toyota Corolla", 138), withMetrics("b", "Honda Civic", 158))

	ans, err := h.service.Ask(context.Background(), Question{UserID: "alice", Text: "What is the average horsepower?"})
	require.NoError(t, err)

	assert.Equal(t, retrieval.QueryAggregation, ans.QueryType)
	require.Len(t, ans.Stats, 1)
	assert.Equal(t, MetricStat{Name: "horsepower", Unit: "hp", Count: 2, Min: 138, Max: 158, Mean: 148}, ans.Stats[0])

	prompt := h.completer.requests[0].User
	assert.Contains(t, prompt, "horsepower (hp): n=2, min=138, max=158, mean=148.00")
	assert.Contains(t, prompt, "Vehicles mentioned: Honda Civic, Toyota Corolla")
}
