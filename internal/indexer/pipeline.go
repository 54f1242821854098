package indexer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"path"
	"time"

	"github.com/google/uuid"

	"github.com/hassan8537/motor-chatbot-backend-sub000/internal/apperr"
	"github.com/hassan8537/motor-chatbot-backend-sub000/internal/blob"
	"github.com/hassan8537/motor-chatbot-backend-sub000/internal/chunking"
	"github.com/hassan8537/motor-chatbot-backend-sub000/internal/extraction"
	"github.com/hassan8537/motor-chatbot-backend-sub000/internal/metadata"
	"github.com/hassan8537/motor-chatbot-backend-sub000/internal/metrics"
	"github.com/hassan8537/motor-chatbot-backend-sub000/internal/records"
	"github.com/hassan8537/motor-chatbot-backend-sub000/internal/retry"
)

// Stage is a state of the processing state machine.
type Stage string

const (
	StageInit     Stage = "init"
	StageDownload Stage = "download"
	StageExtract  Stage = "extract"
	StageChunk    Stage = "chunk"
	StageEmbed    Stage = "embed"
	StageSave     Stage = "save"
	StageDone     Stage = "done"
)

// Processing outcomes.
const (
	StatusDone   = "done"
	StatusFailed = "failed"
)

var (
	ErrNotPDF         = errors.New("document is not a PDF")
	ErrTooLarge       = errors.New("document exceeds maximum size")
	ErrNoChunks       = errors.New("document produced no chunks")
	ErrBelowThreshold = errors.New("too few chunks were indexed")
)

const (
	hintTooShort         = "document content is too short or unstructured to index"
	hintIndexingDegraded = "the embedding service rejected too many chunks; retry the upload later"
)

// Extractor turns a PDF into text. extraction.Engine satisfies it.
type Extractor interface {
	Extract(ctx context.Context, data []byte) (*extraction.Result, error)
}

// MetadataGenerator summarises a document. metadata.Generator satisfies it.
type MetadataGenerator interface {
	GenerateMetadata(ctx context.Context, name, content string) (*metadata.DocumentMetadata, error)
}

// VectorCleaner removes a document's points.
type VectorCleaner interface {
	DeleteByDocument(ctx context.Context, collection, documentID string) error
}

// RecordSaver persists processed-document records. records.SQLiteStore satisfies it.
type RecordSaver interface {
	SaveDocument(ctx context.Context, rec records.DocumentRecord) error
}

// Request identifies one uploaded document.
type Request struct {
	Key        string
	UserID     string
	Filename   string // defaults to the key's base name
	Collection string // defaults to PipelineConfig.Collection
}

// ProcessResult describes a processed document. On failure Stage is the failing stage.
type ProcessResult struct {
	DocumentID string
	Key        string
	Collection string
	Status     string
	Stage      Stage
	Method     extraction.Method
	Quality    float64
	Pages      int
	Chunks     int
	Index      *IndexResult
	Duration   time.Duration
}

// PipelineConfig holds orchestrator settings.
type PipelineConfig struct {
	Collection       string
	MaxFileSize      int64
	SuccessThreshold float64
	Chunking         chunking.Options
	Download         retry.Policy
}

// Pipeline runs init → download → extract → chunk → embed → save → done for one document.
// Any failure deletes the source document from blob storage.
type Pipeline struct {
	blobs     blob.Store
	extractor Extractor
	chunker   *chunking.Chunker
	indexer   *Indexer
	generator MetadataGenerator
	vectors   VectorCleaner
	records   RecordSaver
	cfg       PipelineConfig
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// PipelineDeps are the collaborators of a Pipeline. Generator and Records are optional.
type PipelineDeps struct {
	Blobs     blob.Store
	Extractor Extractor
	Chunker   *chunking.Chunker
	Indexer   *Indexer
	Generator MetadataGenerator
	Vectors   VectorCleaner
	Records   RecordSaver
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

// NewPipeline creates a new processing pipeline with the given components.
func NewPipeline(deps PipelineDeps, cfg PipelineConfig) *Pipeline {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 0.5
	}
	if cfg.Chunking.Size == 0 {
		cfg.Chunking = chunking.DefaultOptions()
	}
	return &Pipeline{
		blobs:     deps.Blobs,
		extractor: deps.Extractor,
		chunker:   deps.Chunker,
		indexer:   deps.Indexer,
		generator: deps.Generator,
		vectors:   deps.Vectors,
		records:   deps.Records,
		cfg:       cfg,
		metrics:   deps.Metrics,
		logger:    logger,
	}
}

// run is the state of one Process call.
type run struct {
	req     Request
	result  *ProcessResult
	object  *blob.Object
	text    *extraction.Result
	chunks  []chunking.Chunk
	indexed bool
}

// Process runs the document through every stage. On failure it returns the partial
// result together with an *apperr.StageError naming the failing stage.
func (p *Pipeline) Process(ctx context.Context, req Request) (*ProcessResult, error) {
	start := time.Now()
	if req.Collection == "" {
		req.Collection = p.cfg.Collection
	}
	if req.Filename == "" {
		req.Filename = path.Base(req.Key)
	}

	r := &run{
		req: req,
		result: &ProcessResult{
			DocumentID: uuid.New().String(),
			Key:        req.Key,
			Collection: req.Collection,
			Stage:      StageInit,
		},
	}
	logger := p.logger.With("key", req.Key, "document_id", r.result.DocumentID)

	artifact := blob.Acquire(p.blobs, req.Key, logger)
	defer artifact.Close(ctx)

	stages := []struct {
		stage Stage
		fn    func(context.Context, *run) error
	}{
		{StageDownload, p.download},
		{StageExtract, p.extract},
		{StageChunk, p.chunk},
		{StageEmbed, p.embed},
		{StageSave, p.save},
	}

	for _, s := range stages {
		r.result.Stage = s.stage
		logger.Debug("Entering stage", "stage", s.stage)

		stageStart := time.Now()
		err := s.fn(ctx, r)
		p.metrics.ObserveStage(string(s.stage), time.Since(stageStart))
		if err != nil {
			r.result.Status = StatusFailed
			r.result.Duration = time.Since(start)
			stageErr := apperr.NewStageError(string(s.stage), err)
			p.removeVectors(ctx, r, logger)
			p.metrics.DocumentProcessed(StatusFailed)
			logger.Warn("Document processing failed",
				"stage", s.stage, "hint", stageErr.Hint, "error", err)
			return r.result, stageErr
		}
	}

	artifact.Keep()
	r.result.Stage = StageDone
	r.result.Status = StatusDone
	r.result.Duration = time.Since(start)
	p.metrics.DocumentProcessed(StatusDone)

	logger.Info("Processed document",
		"method", r.result.Method,
		"chunks", r.result.Chunks,
		"success_rate", r.result.Index.SuccessRate,
		"duration", r.result.Duration,
	)
	return r.result, nil
}

func (p *Pipeline) download(ctx context.Context, r *run) error {
	obj, err := retry.Value(ctx, p.cfg.Download, func(ctx context.Context) (*blob.Object, error) {
		obj, err := p.blobs.Get(ctx, r.req.Key)
		if errors.Is(err, blob.ErrNotFound) {
			return nil, apperr.NotFound("download", err)
		}
		return obj, err
	})
	if err != nil {
		return err
	}
	if err := p.validate(obj); err != nil {
		return apperr.Validation("download", err)
	}
	r.object = obj
	return nil
}

// validate checks the declared media type, the PDF signature and the size.
func (p *Pipeline) validate(obj *blob.Object) error {
	if obj.ContentType != "" {
		mediaType, _, err := mime.ParseMediaType(obj.ContentType)
		if err != nil || mediaType != "application/pdf" {
			return fmt.Errorf("%w: declared type %q", ErrNotPDF, obj.ContentType)
		}
	}
	if !bytes.HasPrefix(obj.Data, []byte("%PDF-")) {
		return fmt.Errorf("%w: missing %%PDF- header", ErrNotPDF)
	}
	if p.cfg.MaxFileSize > 0 && int64(len(obj.Data)) > p.cfg.MaxFileSize {
		return fmt.Errorf("%w: %d bytes, limit %d", ErrTooLarge, len(obj.Data), p.cfg.MaxFileSize)
	}
	return nil
}

func (p *Pipeline) extract(ctx context.Context, r *run) error {
	res, err := p.extractor.Extract(ctx, r.object.Data)
	if err != nil {
		return err
	}
	r.text = res
	r.result.Method = res.Method
	r.result.Quality = res.QualityScore
	r.result.Pages = res.Metadata.Pages
	// The raw bytes are no longer needed.
	r.object.Data = nil
	return nil
}

func (p *Pipeline) chunk(_ context.Context, r *run) error {
	chunks, err := p.chunker.Chunk(r.text.Text, p.cfg.Chunking)
	if err != nil {
		return apperr.Quality("chunk", err, hintTooShort)
	}
	if len(chunks) == 0 {
		return apperr.Quality("chunk", ErrNoChunks, hintTooShort)
	}
	r.chunks = chunks
	r.result.Chunks = len(chunks)
	return nil
}

func (p *Pipeline) embed(ctx context.Context, r *run) error {
	doc := Document{
		ID:               r.result.DocumentID,
		SourceKey:        r.req.Key,
		Filename:         r.req.Filename,
		UserID:           r.req.UserID,
		ExtractionMethod: string(r.text.Method),
		QualityScore:     r.text.QualityScore,
		Pages:            r.text.Metadata.Pages,
		Title:            r.text.Metadata.Title,
	}
	if meta := p.generateMetadata(ctx, r); meta != nil {
		if meta.Title != "" {
			doc.Title = meta.Title
		}
		doc.Summary = meta.Summary
		doc.Entities = meta.Entities
	}

	r.indexed = true
	res, err := p.indexer.EmbedAndIndex(ctx, r.chunks, r.req.Collection, doc)
	r.result.Index = res
	if err != nil {
		return err
	}
	if !res.Accepted(p.cfg.SuccessThreshold) {
		return apperr.Quality("embed",
			fmt.Errorf("%w: %d of %d succeeded (%.0f%%, need %.0f%%)", ErrBelowThreshold,
				res.SuccessCount, len(r.chunks), res.SuccessRate*100, p.cfg.SuccessThreshold*100),
			hintIndexingDegraded)
	}
	return nil
}

// generateMetadata degrades to nil on failure.
func (p *Pipeline) generateMetadata(ctx context.Context, r *run) *metadata.DocumentMetadata {
	if p.generator == nil {
		return nil
	}
	meta, err := p.generator.GenerateMetadata(ctx, r.req.Filename, r.text.Text)
	if err != nil {
		p.logger.Warn("Metadata generation failed, using empty", "key", r.req.Key, "error", err)
		return nil
	}
	return meta
}

func (p *Pipeline) save(ctx context.Context, r *run) error {
	if p.records == nil {
		return nil
	}
	idx := r.result.Index
	return p.records.SaveDocument(ctx, records.DocumentRecord{
		DocumentID:       r.result.DocumentID,
		UserID:           r.req.UserID,
		SourceKey:        r.req.Key,
		Filename:         r.req.Filename,
		Collection:       r.req.Collection,
		ExtractionMethod: string(r.result.Method),
		QualityScore:     r.result.Quality,
		Pages:            r.result.Pages,
		TotalChunks:      r.result.Chunks,
		SuccessCount:     idx.SuccessCount,
		ErrorCount:       idx.ErrorCount,
		SuccessRate:      idx.SuccessRate,
		Duration:         idx.Duration,
	})
}

// removeVectors deletes points written by a run that later failed.
func (p *Pipeline) removeVectors(ctx context.Context, r *run, logger *slog.Logger) {
	if !r.indexed || p.vectors == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	if err := p.vectors.DeleteByDocument(ctx, r.req.Collection, r.result.DocumentID); err != nil {
		logger.Error("Failed to remove indexed chunks of failed document", "error", err)
	}
}
