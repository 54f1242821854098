package indexer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hassan8537/motor-chatbot-backend-sub000/internal/apperr"
	"github.com/hassan8537/motor-chatbot-backend-sub000/internal/chunking"
	"github.com/hassan8537/motor-chatbot-backend-sub000/internal/retry"
	"github.com/hassan8537/motor-chatbot-backend-sub000/internal/storage"
)

type fakeEmbedder struct {
	failAll  bool
	delay    time.Duration
	inFlight atomic.Int32
	peak     atomic.Int32
	calls    atomic.Int32
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls.Add(1)
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.failAll || strings.Contains(text, "FAIL") {
		return nil, apperr.Validation("embed", errors.New("input rejected"))
	}
	return []float32{float32(len(text)), 1}, nil
}

type fakeVectors struct {
	mu       sync.Mutex
	upserts  [][]storage.Point
	upsertFn func(points []storage.Point) error
	deleted  []string
	calls    int
}

func (f *fakeVectors) Upsert(_ context.Context, _ string, points []storage.Point) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.upsertFn != nil {
		if err := f.upsertFn(points); err != nil {
			return err
		}
	}
	f.upserts = append(f.upserts, points)
	return nil
}

func (f *fakeVectors) DeleteByDocument(_ context.Context, _, documentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, documentID)
	return nil
}

func (f *fakeVectors) points() []storage.Point {
	f.mu.Lock()
	defer f.mu.Unlock()
	var all []storage.Point
	for _, batch := range f.upserts {
		all = append(all, batch...)
	}
	return all
}

func testChunks(n int, failAt ...int) []chunking.Chunk {
	chunks := make([]chunking.Chunk, n)
	for i := range chunks {
		content := fmt.Sprintf("[Engine Specs]\nChunk %d: 1.8 litre engine, 140 hp", i)
		for _, f := range failAt {
			if f == i {
				content = "FAIL " + content
			}
		}
		chunks[i] = chunking.Chunk{
			Index:       i,
			Total:       n,
			Content:     content,
			RawContent:  content,
			ContentType: chunking.ContentEngine,
			Metrics:     []chunking.Metric{{Name: "horsepower", Value: "140", Unit: "hp"}},
		}
	}
	return chunks
}

func fastRetry() retry.Policy {
	return retry.Policy{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func TestEmbedAndIndex_OneChunkFails(t *testing.T) {
	vectors := &fakeVectors{}
	ix := NewIndexer(&fakeEmbedder{}, vectors, Config{MaxConcurrency: 4, Retry: fastRetry()}, nil, nil)

	result, err := ix.EmbedAndIndex(context.Background(), testChunks(10, 2), "motor", Document{ID: "doc-1"})
	require.NoError(t, err)

	assert.Equal(t, 9, result.SuccessCount)
	assert.Equal(t, 1, result.ErrorCount)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, 2, result.Errors[0].Index)
	assert.Equal(t, StageEmbedding, result.Errors[0].Stage)
	assert.Contains(t, result.Errors[0].Message, "input rejected")
	assert.InDelta(t, 0.9, result.SuccessRate, 1e-9)
	assert.True(t, result.Accepted(0.5))
	assert.Len(t, vectors.points(), 9)
}

func TestEmbedAndIndex_Payload(t *testing.T) {
	vectors := &fakeVectors{}
	ix := NewIndexer(&fakeEmbedder{}, vectors, Config{Retry: fastRetry()}, nil, nil)

	doc := Document{
		ID:               "doc-1",
		SourceKey:        "uploads/corolla.pdf",
		Filename:         "corolla.pdf",
		UserID:           "alice",
		ExtractionMethod: "digital",
		QualityScore:     0.8,
		Pages:            3,
		Summary:          "Corolla spec sheet",
		Entities:         []string{"Toyota", "Corolla"},
	}
	_, err := ix.EmbedAndIndex(context.Background(), testChunks(1), "motor", doc)
	require.NoError(t, err)

	points := vectors.points()
	require.Len(t, points, 1)
	p := points[0].Payload
	assert.NotEmpty(t, points[0].ID)
	assert.Equal(t, "doc-1", p["document_id"])
	assert.Equal(t, "uploads/corolla.pdf", p["source_key"])
	assert.Equal(t, "corolla.pdf", p["filename"])
	assert.Equal(t, "alice", p["user_id"])
	assert.Equal(t, 0, p["chunk_index"])
	assert.Equal(t, 1, p["total_chunks"])
	assert.Equal(t, "engine_specs", p["content_type"])
	assert.Equal(t, []string{"horsepower=140 hp"}, p["metrics"])
	assert.Equal(t, "Corolla spec sheet", p["summary"])
	assert.Equal(t, []string{"Toyota", "Corolla"}, p["entities"])
	assert.Equal(t, "digital", p["extraction_method"])
	assert.NotContains(t, p, "title")
}

func TestEmbedAndIndex_Batches(t *testing.T) {
	vectors := &fakeVectors{}
	ix := NewIndexer(&fakeEmbedder{}, vectors, Config{BatchSize: 4, Retry: fastRetry()}, nil, nil)

	result, err := ix.EmbedAndIndex(context.Background(), testChunks(10), "motor", Document{ID: "d"})
	require.NoError(t, err)

	assert.Equal(t, 10, result.SuccessCount)
	require.Len(t, vectors.upserts, 3)
	assert.Len(t, vectors.upserts[0], 4)
	assert.Len(t, vectors.upserts[2], 2)
	assert.Equal(t, 0, vectors.upserts[0][0].Payload["chunk_index"], "uploads follow chunk order")
}

func TestEmbedAndIndex_UploadFailureRecordedPerChunk(t *testing.T) {
	vectors := &fakeVectors{upsertFn: func(points []storage.Point) error {
		if points[0].Payload["chunk_index"] == 0 {
			return apperr.Validation("upsert", errors.New("bad payload"))
		}
		return nil
	}}
	ix := NewIndexer(&fakeEmbedder{}, vectors, Config{BatchSize: 2, Retry: fastRetry()}, nil, nil)

	result, err := ix.EmbedAndIndex(context.Background(), testChunks(4), "motor", Document{ID: "d"})
	require.NoError(t, err)

	assert.Equal(t, 2, result.SuccessCount)
	require.Len(t, result.Errors, 2)
	assert.Equal(t, ChunkError{Index: 0, Stage: StageUpload, Message: result.Errors[0].Message}, result.Errors[0])
	assert.Equal(t, 1, result.Errors[1].Index)
	assert.Equal(t, 2, vectors.calls, "terminal upload error is not retried")
}

func TestEmbedAndIndex_UploadRetriesTransient(t *testing.T) {
	failures := 2
	vectors := &fakeVectors{upsertFn: func([]storage.Point) error {
		if failures > 0 {
			failures--
			return apperr.Transient("upsert", errors.New("unavailable"))
		}
		return nil
	}}
	ix := NewIndexer(&fakeEmbedder{}, vectors, Config{Retry: fastRetry()}, nil, nil)

	result, err := ix.EmbedAndIndex(context.Background(), testChunks(3), "motor", Document{ID: "d"})
	require.NoError(t, err)
	assert.Equal(t, 3, result.SuccessCount)
	assert.Equal(t, 3, vectors.calls)
}

func TestEmbedAndIndex_BoundedConcurrency(t *testing.T) {
	embedder := &fakeEmbedder{delay: 5 * time.Millisecond}
	ix := NewIndexer(embedder, &fakeVectors{}, Config{MaxConcurrency: 2, Retry: fastRetry()}, nil, nil)

	_, err := ix.EmbedAndIndex(context.Background(), testChunks(8), "motor", Document{ID: "d"})
	require.NoError(t, err)
	assert.LessOrEqual(t, embedder.peak.Load(), int32(2))
	assert.Equal(t, int32(8), embedder.calls.Load())
}

func TestEmbedAndIndex_Empty(t *testing.T) {
	ix := NewIndexer(&fakeEmbedder{}, &fakeVectors{}, Config{}, nil, nil)
	result, err := ix.EmbedAndIndex(context.Background(), nil, "motor", Document{})
	require.NoError(t, err)
	assert.Zero(t, result.SuccessCount)
	assert.False(t, result.Accepted(0.5))
}

func TestEmbedAndIndex_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ix := NewIndexer(&fakeEmbedder{}, &fakeVectors{}, Config{Retry: fastRetry()}, nil, nil)
	result, err := ix.EmbedAndIndex(ctx, testChunks(3), "motor", Document{ID: "d"})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 3, result.ErrorCount)
}
