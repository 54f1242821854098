package retrieval

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hassan8537/motor-chatbot-backend-sub000/internal/apperr"
	"github.com/hassan8537/motor-chatbot-backend-sub000/internal/retry"
	"github.com/hassan8537/motor-chatbot-backend-sub000/internal/storage"
)

type fakeSearcher struct {
	responses [][]storage.ScoredPoint
	err       error
	requests  []storage.SearchRequest
}

func (f *fakeSearcher) Search(_ context.Context, req storage.SearchRequest) ([]storage.ScoredPoint, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	if len(f.responses) == 0 {
		return nil, nil
	}
	resp := f.responses[0]
	f.responses = f.responses[1:]
	return resp, nil
}

func testEngine(s Searcher) *Engine {
	return NewEngine(s, Config{
		Retry: retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond},
	}, nil, nil)
}

func point(id string, score float32, payload map[string]any) storage.ScoredPoint {
	return storage.ScoredPoint{ID: id, Score: score, Payload: payload}
}

func TestClassifyQuery(t *testing.T) {
	tests := []struct {
		query string
		want  QueryType
	}{
		{"What is the average horsepower of all sedans?", QueryAggregation},
		{"How many models have six airbags?", QueryAggregation},
		{"Which car has the highest top speed", QueryAggregation},
		{"Compare the Civic and the Corolla", QueryComparison},
		{"Corolla vs Civic fuel economy", QueryComparison},
		{"What is the torque of the Civic?", QueryDomain},
		{"fuel consumption of the Alto", QueryDomain},
		{"0-100 time for the Elantra", QueryDomain},
		{"Tell me about the Sportage", QueryGeneral},
		{"", QueryGeneral},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyQuery(tt.query))
		})
	}
}

func TestProfiles(t *testing.T) {
	agg := ProfileFor(QueryAggregation)
	assert.GreaterOrEqual(t, agg.Limit, 50)
	assert.LessOrEqual(t, agg.ScoreThreshold, float32(0.5))

	domain := ProfileFor(QueryDomain)
	general := ProfileFor(QueryGeneral)
	assert.Less(t, domain.Limit, general.Limit)
	assert.Greater(t, domain.ScoreThreshold, general.ScoreThreshold)

	assert.Equal(t, general, ProfileFor("unknown"))
}

func TestSearch_AggregationRetriesAtLowerThreshold(t *testing.T) {
	s := &fakeSearcher{responses: [][]storage.ScoredPoint{
		nil,
		{point("a", 0.4, map[string]any{"content": "150 hp"})},
	}}

	results, err := testEngine(s).Search(context.Background(), []float32{1}, "motor", Options{Query: "average horsepower"})
	require.NoError(t, err)

	require.Len(t, s.requests, 2)
	assert.Equal(t, float32(0.5), s.requests[0].ScoreThreshold)
	assert.Equal(t, float32(DefaultFallbackThreshold), s.requests[1].ScoreThreshold)
	assert.Equal(t, 50, s.requests[1].Limit)
	assert.Len(t, results, 1)
}

func TestSearch_AggregationFallbackOnlyOnce(t *testing.T) {
	s := &fakeSearcher{}

	results, err := testEngine(s).Search(context.Background(), []float32{1}, "motor", Options{Query: "total number of variants"})
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Len(t, s.requests, 2)
}

func TestSearch_NoFallbackForOtherQueries(t *testing.T) {
	s := &fakeSearcher{}

	_, err := testEngine(s).Search(context.Background(), []float32{1}, "motor", Options{Query: "torque of the Civic"})
	require.NoError(t, err)
	require.Len(t, s.requests, 1)
	assert.Equal(t, 5, s.requests[0].Limit)
	assert.Equal(t, float32(0.75), s.requests[0].ScoreThreshold)
}

func TestSearch_OptionsOverrideProfile(t *testing.T) {
	s := &fakeSearcher{}
	filter := map[string]string{"user_id": "alice"}

	_, err := testEngine(s).Search(context.Background(), []float32{1}, "motor", Options{
		QueryType:      QueryGeneral,
		Limit:          3,
		ScoreThreshold: 0.2,
		Filter:         filter,
	})
	require.NoError(t, err)
	require.Len(t, s.requests, 1)
	assert.Equal(t, "motor", s.requests[0].Collection)
	assert.Equal(t, 3, s.requests[0].Limit)
	assert.Equal(t, float32(0.2), s.requests[0].ScoreThreshold)
	assert.Equal(t, filter, s.requests[0].Filter)
}

func TestSearch_RerankBoostsStructuredContent(t *testing.T) {
	s := &fakeSearcher{responses: [][]storage.ScoredPoint{{
		point("plain", 0.80, map[string]any{
			"content":      "[General]\nThe dealership is open on weekends.",
			"content_type": "general",
		}),
		point("spec", 0.75, map[string]any{
			"content":             "[Pricing]\nPrice: $25,000. Engine 150 hp, 200 Nm.",
			"content_type":        "pricing",
			"has_structured_data": true,
		}),
	}}}

	results, err := testEngine(s).Search(context.Background(), []float32{1}, "motor", Options{QueryType: QueryGeneral})
	require.NoError(t, err)
	require.Len(t, results, 2)

	top := results[0]
	assert.Equal(t, "spec", top.ID)
	assert.Equal(t, 1, top.Rank)
	assert.Equal(t, 2, top.OriginalRank)
	assert.InDelta(t, 0.15, top.Boost, 1e-6, "0.12 content cap + 3 technical patterns")
	assert.InDelta(t, 0.90, top.Score, 1e-6)
	assert.Equal(t, float32(0.75), top.VectorScore)

	assert.Equal(t, "plain", results[1].ID)
	assert.Zero(t, results[1].Boost)
	assert.Nil(t, top.Annotations, "only aggregation hits are annotated")
}

func TestRerank_ScoreCappedAtOne(t *testing.T) {
	results := rerank([]storage.ScoredPoint{
		point("a", 0.95, map[string]any{
			"content":             "150 hp 200 Nm 1,798 cc 16 km/l 180 km/h 6,000 rpm",
			"content_type":        "engine_specs",
			"has_structured_data": true,
		}),
	}, QueryAggregation)

	require.Len(t, results, 1)
	assert.Equal(t, float32(1.0), results[0].Score)
	assert.InDelta(t, 0.12+0.05+0.012, results[0].Boost, 1e-6)
}

func TestRerank_TiesKeepOriginalOrder(t *testing.T) {
	payload := map[string]any{"content": "same", "content_type": "general"}
	results := rerank([]storage.ScoredPoint{
		point("first", 0.7, payload),
		point("second", 0.7, payload),
		point("third", 0.7, payload),
	}, QueryGeneral)

	ids := []string{results[0].ID, results[1].ID, results[2].ID}
	assert.Equal(t, []string{"first", "second", "third"}, ids)
}

func TestSearch_RetriesThenFails(t *testing.T) {
	underlying := apperr.Transient("search", errors.New("qdrant unavailable"))
	s := &fakeSearcher{err: underlying}

	_, err := testEngine(s).Search(context.Background(), []float32{1}, "motor", Options{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRetrievalFailed)
	assert.ErrorIs(t, err, underlying)
	assert.Len(t, s.requests, 3)
}

func TestSearch_AggregationAnnotations(t *testing.T) {
	s := &fakeSearcher{responses: [][]storage.ScoredPoint{{
		point("a", 0.7, map[string]any{
			"content":      "[Engine Specs]\nThe Toyota Corolla Altis produces 138 hp and 1,798 cc displacement.",
			"content_type": "engine_specs",
			"metrics":      []any{"horsepower=138 hp", "displacement=1,798 cc"},
			"entities":     []any{"Toyota"},
		}),
	}}}

	results, err := testEngine(s).Search(context.Background(), []float32{1}, "motor", Options{Query: "average horsepower"})
	require.NoError(t, err)
	require.Len(t, results, 1)

	a := results[0].Annotations
	require.NotNil(t, a)
	assert.Equal(t, []float64{138, 1798}, a.Numbers)
	assert.Equal(t, []string{"engine_specs", "horsepower", "displacement"}, a.Categories)
	assert.Equal(t, []string{"Toyota", "Toyota Corolla Altis"}, a.Identifiers)
	assert.Equal(t, []MetricValue{
		{Name: "horsepower", Value: 138, Unit: "hp"},
		{Name: "displacement", Value: 1798, Unit: "cc"},
	}, a.Metrics)
}

func TestParseMetric(t *testing.T) {
	tests := []struct {
		in   string
		want MetricValue
		ok   bool
	}{
		{"torque=200 Nm", MetricValue{Name: "torque", Value: 200, Unit: "Nm"}, true},
		{"price=2,500,000 PKR", MetricValue{Name: "price", Value: 2500000, Unit: "PKR"}, true},
		{"airbags=6", MetricValue{Name: "airbags", Value: 6}, true},
		{"acceleration=7.9 s", MetricValue{Name: "acceleration", Value: 7.9, Unit: "s"}, true},
		{"no equals", MetricValue{}, false},
		{"seating=five", MetricValue{}, false},
	}
	for _, tt := range tests {
		got, ok := parseMetric(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}
