// Package app wires the ingestion and question-answering components from configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/hassan8537/motor-chatbot-backend-sub000/internal/answer"
	"github.com/hassan8537/motor-chatbot-backend-sub000/internal/blob"
	"github.com/hassan8537/motor-chatbot-backend-sub000/internal/cache"
	"github.com/hassan8537/motor-chatbot-backend-sub000/internal/chunking"
	"github.com/hassan8537/motor-chatbot-backend-sub000/internal/config"
	"github.com/hassan8537/motor-chatbot-backend-sub000/internal/embedding"
	"github.com/hassan8537/motor-chatbot-backend-sub000/internal/extraction"
	"github.com/hassan8537/motor-chatbot-backend-sub000/internal/indexer"
	"github.com/hassan8537/motor-chatbot-backend-sub000/internal/llm"
	"github.com/hassan8537/motor-chatbot-backend-sub000/internal/metadata"
	"github.com/hassan8537/motor-chatbot-backend-sub000/internal/metrics"
	"github.com/hassan8537/motor-chatbot-backend-sub000/internal/records"
	"github.com/hassan8537/motor-chatbot-backend-sub000/internal/retrieval"
	"github.com/hassan8537/motor-chatbot-backend-sub000/internal/retry"
	"github.com/hassan8537/motor-chatbot-backend-sub000/internal/storage"
)

// App holds every long-lived component.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics

	Vectors   *storage.QdrantStorage
	Blobs     blob.Store
	Records   *records.SQLiteStore
	Embedder  *embedding.Embedder
	Pipeline  *indexer.Pipeline
	Retrieval *retrieval.Engine
	Answers   *answer.Service

	sweepers []sweeper
	closers  []io.Closer
}

type sweeper interface {
	Run(ctx context.Context, interval time.Duration, logger *slog.Logger)
}

// New connects to Qdrant, OpenAI, the blob store and the records database, and ensures the
// configured collection exists. Call Close when done.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *App, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	reg := prometheus.NewRegistry()
	a := &App{
		Config:   cfg,
		Logger:   logger,
		Registry: reg,
		Metrics:  metrics.New(reg),
	}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	a.Vectors, err = storage.NewQdrantStorage(ctx, storage.Config{
		Host:      cfg.Qdrant.Host,
		Port:      cfg.Qdrant.Port,
		APIKey:    cfg.Qdrant.APIKey,
		UseTLS:    cfg.Qdrant.UseTLS,
		Dimension: cfg.OpenAI.Dimension,
		Timeout:   cfg.Qdrant.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to qdrant: %w", err)
	}
	a.closers = append(a.closers, a.Vectors)

	if err = a.Vectors.EnsureCollection(ctx, cfg.Qdrant.Collection); err != nil {
		return nil, fmt.Errorf("ensure collection: %w", err)
	}

	a.Blobs, err = NewBlobStore(ctx, cfg.Blob)
	if err != nil {
		return nil, err
	}

	if cfg.Records.Path != "" {
		a.Records, err = records.Open(cfg.Records.Path)
		if err != nil {
			return nil, fmt.Errorf("open records: %w", err)
		}
		a.closers = append(a.closers, a.Records)
	}

	client, err := embedding.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.Timeout)
	if err != nil {
		return nil, err
	}

	var redisClient *redis.Client
	if cfg.Cache.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.Cache.RedisAddr})
		a.closers = append(a.closers, redisClient)
	}
	embeddingCache := newCache[[]float32](a, redisClient, "embedding", cfg.Cache.EmbeddingTTL, cfg.Cache.EmbeddingMax)
	responseCache := newCache[*answer.Answer](a, redisClient, "response", cfg.Cache.ResponseTTL, cfg.Cache.ResponseMax)

	embedPolicy := retry.Policy{
		MaxAttempts: cfg.Embedding.MaxAttempts,
		BaseDelay:   cfg.Embedding.BaseDelay,
		MaxDelay:    cfg.Embedding.MaxDelay,
	}
	a.Embedder = embedding.NewEmbedder(
		embedding.NewOpenAIProvider(client, cfg.OpenAI.EmbeddingModel),
		cfg.OpenAI.EmbeddingModel,
		embedding.WithCache(embeddingCache),
		embedding.WithRateLimiter(embedding.NewRateLimiter(embedding.RateLimitConfig{
			RequestsPerWindow: cfg.Embedding.RequestsPerWindow,
			Window:            cfg.Embedding.Window,
			TokensPerMinute:   cfg.Embedding.TokensPerMinute,
		})),
		embedding.WithRetryPolicy(embedPolicy),
		embedding.WithMetrics(a.Metrics),
		embedding.WithLogger(logger),
	)

	completer := llm.NewOpenAI(client.Client(), cfg.OpenAI.ChatModel, retry.DefaultPolicy(), logger)

	extractor, err := NewExtractor(cfg.Extraction, logger, a.Metrics)
	if err != nil {
		return nil, err
	}

	idx := indexer.NewIndexer(a.Embedder, a.Vectors, indexer.Config{
		MaxConcurrency: cfg.Embedding.MaxConcurrency,
		BatchSize:      cfg.Embedding.BatchSize,
		Retry:          embedPolicy,
	}, logger, a.Metrics)

	deps := indexer.PipelineDeps{
		Blobs:     a.Blobs,
		Extractor: extractor,
		Chunker:   chunking.NewChunker(logger),
		Indexer:   idx,
		Vectors:   a.Vectors,
		Metrics:   a.Metrics,
		Logger:    logger,
	}
	if cfg.Metadata.Enabled {
		deps.Generator = metadata.NewGenerator(completer, logger, cfg.Metadata.MaxContentTokens)
	}
	if a.Records != nil {
		deps.Records = a.Records
	}
	a.Pipeline = indexer.NewPipeline(deps, indexer.PipelineConfig{
		Collection:       cfg.Qdrant.Collection,
		MaxFileSize:      cfg.Extraction.MaxFileSize,
		SuccessThreshold: cfg.Embedding.SuccessThreshold,
		Chunking:         ChunkingOptions(cfg.Chunking),
		Download:         retry.DefaultPolicy(),
	})

	retrievalPolicy := retry.DefaultPolicy()
	retrievalPolicy.MaxAttempts = cfg.Retrieval.MaxAttempts
	a.Retrieval = retrieval.NewEngine(a.Vectors, retrieval.Config{
		Retry:             retrievalPolicy,
		FallbackThreshold: float32(cfg.Retrieval.FallbackThreshold),
	}, logger, a.Metrics)

	var recorder answer.QueryRecorder
	if a.Records != nil {
		recorder = a.Records
	}
	a.Answers = answer.NewService(a.Embedder, a.Retrieval, completer, responseCache, recorder, answer.Config{
		Collection:      cfg.Qdrant.Collection,
		ScopeToUser:     cfg.Answer.ScopeToUser,
		MaxContextChars: cfg.Answer.MaxContextChars,
		MaxTokens:       cfg.Answer.MaxTokens,
		Temperature:     cfg.Answer.Temperature,
	}, logger)

	logger.Info("Components ready",
		"collection", cfg.Qdrant.Collection,
		"blob_backend", cfg.Blob.Backend,
		"redis", cfg.Cache.RedisAddr != "",
		"records", cfg.Records.Path)
	return a, nil
}

// StartBackground runs the in-memory cache sweepers until ctx is cancelled.
func (a *App) StartBackground(ctx context.Context) {
	for _, s := range a.sweepers {
		go s.Run(ctx, a.Config.Cache.SweepInterval, a.Logger)
	}
}

// Search embeds query and runs a classified retrieval.
func (a *App) Search(ctx context.Context, query string, opts retrieval.Options) ([]retrieval.Result, error) {
	vector, err := a.Embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	opts.Query = query
	return a.Retrieval.Search(ctx, vector, a.Config.Qdrant.Collection, opts)
}

// Close releases connections in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// newCache returns a redis cache when a client is configured, otherwise an in-memory cache
// that is swept by StartBackground.
func newCache[V any](a *App, client *redis.Client, name string, ttl time.Duration, max int) cache.Backend[V] {
	if client != nil {
		return cache.NewRedis[V](client, name, ttl, a.Logger, a.Metrics)
	}
	c := cache.New[V](name, ttl, max, cache.WithObserver(a.Metrics))
	a.sweepers = append(a.sweepers, c)
	return c
}

// NewBlobStore builds the configured blob backend.
func NewBlobStore(ctx context.Context, cfg config.BlobConfig) (blob.Store, error) {
	switch cfg.Backend {
	case "s3":
		s, err := blob.NewS3Store(ctx, cfg.Bucket, cfg.Region, cfg.ReadTimeout)
		if err != nil {
			return nil, fmt.Errorf("create s3 store: %w", err)
		}
		return s, nil
	case "fs", "":
		s, err := blob.NewFSStore(cfg.Root)
		if err != nil {
			return nil, fmt.Errorf("create fs store: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown blob backend %q", cfg.Backend)
	}
}

// NewExtractor builds the extraction engine. With OCR disabled only the digital extractor runs.
func NewExtractor(cfg config.ExtractionConfig, logger *slog.Logger, m *metrics.Metrics) (*extraction.Engine, error) {
	tier, err := extraction.ParseTier(cfg.OCRTier)
	if err != nil {
		return nil, err
	}
	ecfg := extraction.DefaultConfig()
	ecfg.MinTextLength = cfg.MinTextLength
	ecfg.QualityThreshold = cfg.QualityThreshold
	ecfg.LongTextLength = cfg.LongTextLength
	ecfg.Tier = tier
	ecfg.Language = cfg.OCRLanguage
	ecfg.PageTimeout = cfg.OCRPageTimeout

	if !cfg.OCREnabled {
		return extraction.NewEngine(ecfg, extraction.NewPDFTextExtractor(), nil, nil, logger, m), nil
	}
	runner := extraction.ExecRunner{}
	return extraction.NewEngine(ecfg,
		extraction.NewPDFTextExtractor(),
		extraction.NewPopplerRasterizer(runner, cfg.TempDir),
		extraction.NewTesseract(runner),
		logger, m), nil
}

// ChunkingOptions converts configured chunking settings.
func ChunkingOptions(cfg config.ChunkingConfig) chunking.Options {
	return chunking.Options{
		Size:       cfg.Size,
		Overlap:    cfg.Overlap,
		MinLength:  cfg.MinLength,
		MaxMetrics: cfg.MaxMetrics,
	}
}
