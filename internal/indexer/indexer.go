// Package indexer embeds chunks and writes them to the vector store, and sequences a
// whole document through download, extraction, chunking, indexing and record keeping.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/hassan8537/motor-chatbot-backend-sub000/internal/chunking"
	"github.com/hassan8537/motor-chatbot-backend-sub000/internal/metrics"
	"github.com/hassan8537/motor-chatbot-backend-sub000/internal/retry"
	"github.com/hassan8537/motor-chatbot-backend-sub000/internal/storage"
)

// Failure stages recorded per chunk.
const (
	StageEmbedding = "embedding"
	StageUpload    = "upload"
)

// Embedder turns chunk text into a vector. embedding.Embedder satisfies it.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorWriter is the write side of the vector store.
type VectorWriter interface {
	Upsert(ctx context.Context, collection string, points []storage.Point) error
}

// Document carries the document-level fields copied into every chunk payload.
type Document struct {
	ID               string
	SourceKey        string
	Filename         string
	UserID           string
	ExtractionMethod string
	QualityScore     float64
	Pages            int
	Title            string
	Summary          string
	Entities         []string
}

// ChunkError records why one chunk was not indexed.
type ChunkError struct {
	Index   int    `json:"index"`
	Stage   string `json:"stage"`
	Message string `json:"message"`
}

// IndexResult reports the outcome of EmbedAndIndex. Partial success is normal.
type IndexResult struct {
	SuccessCount int
	ErrorCount   int
	Errors       []ChunkError
	SuccessRate  float64
	Duration     time.Duration
}

// Accepted reports whether enough chunks were indexed for the document to count.
func (r *IndexResult) Accepted(threshold float64) bool {
	return r.SuccessCount > 0 && r.SuccessRate >= threshold
}

// Config controls fan-out and batching.
type Config struct {
	// MaxConcurrency bounds in-flight embedding requests.
	MaxConcurrency int
	// BatchSize is the number of points per upsert request.
	BatchSize int
	// Retry wraps each upsert request.
	Retry retry.Policy
}

// DefaultConfig returns 8 concurrent embeddings and 100-point upserts.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency: 8,
		BatchSize:      100,
		Retry:          retry.DefaultPolicy(),
	}
}

// Indexer embeds chunks with bounded concurrency and upserts them in batches.
type Indexer struct {
	embedder Embedder
	store    VectorWriter
	cfg      Config
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// NewIndexer creates an Indexer.
func NewIndexer(embedder Embedder, store VectorWriter, cfg Config, logger *slog.Logger, m *metrics.Metrics) *Indexer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = DefaultConfig().MaxConcurrency
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	return &Indexer{
		embedder: embedder,
		store:    store,
		cfg:      cfg,
		metrics:  m,
		logger:   logger,
		now:      time.Now,
	}
}

// EmbedAndIndex embeds every chunk and writes the successful ones to collection.
// A failing chunk is recorded in the result and never stops its siblings. The returned
// error is non-nil only when ctx is done.
func (ix *Indexer) EmbedAndIndex(ctx context.Context, chunks []chunking.Chunk, collection string, doc Document) (*IndexResult, error) {
	start := ix.now()
	result := &IndexResult{}
	if len(chunks) == 0 {
		return result, nil
	}

	var (
		mu     sync.Mutex
		points = make([]*storage.Point, len(chunks))
	)
	fail := func(index int, stage string, err error) {
		mu.Lock()
		result.Errors = append(result.Errors, ChunkError{Index: index, Stage: stage, Message: err.Error()})
		mu.Unlock()
	}

	indexedAt := ix.now().UTC()
	g := new(errgroup.Group)
	g.SetLimit(ix.cfg.MaxConcurrency)
	for i, ch := range chunks {
		g.Go(func() error {
			if ctx.Err() != nil {
				fail(ch.Index, StageEmbedding, ctx.Err())
				return nil
			}
			vector, err := ix.embedder.Embed(ctx, ch.Content)
			if err != nil {
				ix.logger.Warn("Failed to embed chunk",
					"document_id", doc.ID, "chunk", ch.Index, "error", err)
				fail(ch.Index, StageEmbedding, err)
				return nil
			}
			points[i] = &storage.Point{
				ID:      uuid.New().String(),
				Vector:  vector,
				Payload: chunkPayload(ch, doc, indexedAt),
			}
			return nil
		})
	}
	_ = g.Wait()

	// Upload in chunk order so batches are deterministic.
	batch := make([]storage.Point, 0, ix.cfg.BatchSize)
	batchIdx := make([]int, 0, ix.cfg.BatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		err := retry.Do(ctx, ix.cfg.Retry, func(ctx context.Context) error {
			return ix.store.Upsert(ctx, collection, batch)
		})
		if err != nil {
			ix.logger.Warn("Failed to upload chunk batch",
				"document_id", doc.ID, "chunks", len(batch), "error", err)
			for _, idx := range batchIdx {
				fail(idx, StageUpload, err)
			}
		} else {
			result.SuccessCount += len(batch)
		}
		batch = make([]storage.Point, 0, ix.cfg.BatchSize)
		batchIdx = batchIdx[:0]
	}
	for i, p := range points {
		if p == nil {
			continue
		}
		batch = append(batch, *p)
		batchIdx = append(batchIdx, chunks[i].Index)
		if len(batch) == ix.cfg.BatchSize {
			flush()
		}
	}
	flush()

	sort.Slice(result.Errors, func(i, j int) bool { return result.Errors[i].Index < result.Errors[j].Index })
	result.ErrorCount = len(result.Errors)
	result.SuccessRate = float64(result.SuccessCount) / float64(len(chunks))
	result.Duration = ix.now().Sub(start)
	ix.metrics.ChunksIndexedResult(result.SuccessCount, result.ErrorCount)

	ix.logger.Info("Indexed chunks",
		"document_id", doc.ID,
		"succeeded", result.SuccessCount,
		"failed", result.ErrorCount,
		"success_rate", result.SuccessRate,
		"duration", result.Duration,
	)

	if err := ctx.Err(); err != nil {
		return result, fmt.Errorf("indexing interrupted: %w", err)
	}
	return result, nil
}

// chunkPayload is everything retrieval and answering read back without a second lookup.
func chunkPayload(ch chunking.Chunk, doc Document, indexedAt time.Time) map[string]any {
	metricStrings := make([]string, len(ch.Metrics))
	for i, m := range ch.Metrics {
		metricStrings[i] = m.String()
	}
	payload := map[string]any{
		"document_id":         doc.ID,
		"source_key":          doc.SourceKey,
		"filename":            doc.Filename,
		"user_id":             doc.UserID,
		"chunk_index":         ch.Index,
		"total_chunks":        ch.Total,
		"content_type":        string(ch.ContentType),
		"content":             ch.Content,
		"raw_content":         ch.RawContent,
		"metrics":             metricStrings,
		"section":             ch.Section,
		"has_structured_data": ch.HasStructuredData,
		"is_summary":          ch.IsSummary(),
		"extraction_method":   doc.ExtractionMethod,
		"quality_score":       doc.QualityScore,
		"pages":               doc.Pages,
		"indexed_at":          indexedAt,
	}
	if doc.Title != "" {
		payload["title"] = doc.Title
	}
	if doc.Summary != "" {
		payload["summary"] = doc.Summary
	}
	if len(doc.Entities) > 0 {
		payload["entities"] = doc.Entities
	}
	return payload
}
