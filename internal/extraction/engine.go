// Package extraction turns a PDF buffer into text, choosing between the embedded text layer
// and OCR (or a combination of both) based on a quality heuristic.
package extraction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hassan8537/motor-chatbot-backend-sub000/internal/apperr"
	"github.com/hassan8537/motor-chatbot-backend-sub000/internal/metrics"
	"github.com/hassan8537/motor-chatbot-backend-sub000/internal/retry"
)

// Method records which strategy produced the final text.
type Method string

const (
	MethodDigital Method = "digital"
	MethodOCR     Method = "ocr"
	MethodHybrid  Method = "hybrid"
)

// Heading that separates digital text from OCR text in hybrid results.
const ocrSupplementHeading = "## OCR Supplemental Content"

// Metadata describes how a Result was produced.
type Metadata struct {
	Title          string
	Pages          int
	DigitalLength  int
	DigitalQuality float64
	OCRLength      int
	OCRQuality     float64
	OCRConfidence  float64
	OCRPages       int
	DroppedPages   int
	FailedPages    int
	Tier           Tier
	Duration       time.Duration
}

// Result is the text extracted from one document.
type Result struct {
	Text         string
	Method       Method
	QualityScore float64
	Metadata     Metadata
}

// Config holds extraction thresholds.
type Config struct {
	// Digital text must be longer than this to skip OCR.
	MinTextLength int
	// Digital quality above this skips OCR.
	QualityThreshold float64
	// Digital text longer than this skips OCR regardless of quality.
	LongTextLength int
	Tier           Tier
	Language       string
	PageTimeout    time.Duration
	Retry          retry.Policy
}

// DefaultConfig returns the production thresholds.
func DefaultConfig() Config {
	return Config{
		MinTextLength:    100,
		QualityThreshold: 0.7,
		LongTextLength:   1000,
		Tier:             TierBalanced,
		Language:         "eng",
		PageTimeout:      60 * time.Second,
		Retry:            retry.DefaultPolicy(),
	}
}

// Engine runs digital extraction and, when needed, OCR.
type Engine struct {
	cfg     Config
	text    TextExtractor
	raster  Rasterizer
	ocr     OCREngine
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewEngine creates an extraction engine. raster and ocr may be nil, in which case
// documents without a good text layer fail extraction.
func NewEngine(cfg Config, text TextExtractor, raster Rasterizer, ocr OCREngine, logger *slog.Logger, m *metrics.Metrics) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if _, ok := tiers[cfg.Tier]; !ok {
		cfg.Tier = TierBalanced
	}
	if cfg.PageTimeout <= 0 {
		cfg.PageTimeout = 60 * time.Second
	}
	return &Engine{
		cfg:     cfg,
		text:    text,
		raster:  raster,
		ocr:     ocr,
		logger:  logger,
		metrics: m,
	}
}

// Extract returns the best text available for data.
func (e *Engine) Extract(ctx context.Context, data []byte) (*Result, error) {
	start := time.Now()
	if len(data) == 0 {
		return nil, apperr.Validation("extract", fmt.Errorf("%w: %w", ErrExtractionFailed, ErrEmptyDocument))
	}

	digital, digitalErr := e.text.ExtractText(ctx, data)
	if errors.Is(digitalErr, ErrEmptyDocument) {
		// A zero-page document has nothing to rasterize either.
		return nil, apperr.WithHint(
			apperr.Validation("extract", fmt.Errorf("%w: %w", ErrExtractionFailed, digitalErr)),
			apperr.KindValidation, hintEmptyDocument)
	}
	if digitalErr != nil {
		e.logger.Warn("Digital extraction failed", "error", digitalErr)
		digital = nil
	}

	meta := Metadata{Tier: e.cfg.Tier}
	var digitalText string
	var digitalQuality float64
	if digital != nil {
		digitalText = digital.Text
		digitalQuality = Quality(digital.Text, digital.Pages)
		meta.Title = digital.Title
		meta.Pages = digital.Pages
		meta.DigitalLength = utf8.RuneCountInString(digital.Text)
		meta.DigitalQuality = digitalQuality

		if e.digitalIsSufficient(meta.DigitalLength, digitalQuality) {
			e.logger.Debug("Digital text is sufficient, skipping OCR",
				"length", meta.DigitalLength, "quality", digitalQuality)
			return e.finish(start, &Result{
				Text:         digitalText,
				Method:       MethodDigital,
				QualityScore: digitalQuality,
				Metadata:     meta,
			}), nil
		}
	}

	ocr, ocrErr := e.runOCR(ctx, data)
	if ocrErr != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		e.logger.Warn("OCR failed", "error", ocrErr)
	} else {
		meta.OCRLength = utf8.RuneCountInString(ocr.Text)
		meta.OCRQuality = ocr.Quality
		meta.OCRConfidence = ocr.Confidence
		meta.OCRPages = ocr.Processed
		meta.DroppedPages = ocr.Dropped
		meta.FailedPages = ocr.Failed
		if meta.Pages == 0 {
			meta.Pages = ocr.Pages
		}
	}

	hasDigital := strings.TrimSpace(digitalText) != ""
	hasOCR := ocrErr == nil

	switch {
	case hasDigital && hasOCR:
		return e.finish(start, e.combine(digitalText, digitalQuality, ocr, meta)), nil
	case hasOCR:
		return e.finish(start, &Result{
			Text:         ocr.Text,
			Method:       MethodOCR,
			QualityScore: ocr.Quality,
			Metadata:     meta,
		}), nil
	case hasDigital:
		e.logger.Info("Falling back to digital text after OCR failure", "length", meta.DigitalLength)
		return e.finish(start, &Result{
			Text:         digitalText,
			Method:       MethodDigital,
			QualityScore: digitalQuality,
			Metadata:     meta,
		}), nil
	}

	cause := digitalErr
	if cause == nil {
		cause = ocrErr
	}
	return nil, apperr.Quality("extract",
		fmt.Errorf("%w: %w", ErrExtractionFailed, cause),
		remediationHint(digitalErr))
}

func (e *Engine) digitalIsSufficient(length int, quality float64) bool {
	return length > e.cfg.MinTextLength &&
		(quality > e.cfg.QualityThreshold || length > e.cfg.LongTextLength)
}

// combine chooses between digital and OCR text when both exist.
func (e *Engine) combine(digitalText string, digitalQuality float64, ocr *ocrOutcome, meta Metadata) *Result {
	dl, ol := float64(meta.DigitalLength), float64(meta.OCRLength)

	switch {
	case dl >= 1.5*ol && digitalQuality > 0.6:
		return &Result{Text: digitalText, Method: MethodDigital, QualityScore: digitalQuality, Metadata: meta}
	case ocr.Quality-digitalQuality > 0.2:
		return &Result{Text: ocr.Text, Method: MethodOCR, QualityScore: ocr.Quality, Metadata: meta}
	}

	text := digitalText + "\n\n" + ocrSupplementHeading + "\n\n" + ocr.Text
	return &Result{
		Text:         text,
		Method:       MethodHybrid,
		QualityScore: max(digitalQuality, ocr.Quality),
		Metadata:     meta,
	}
}

func (e *Engine) finish(start time.Time, r *Result) *Result {
	r.Metadata.Duration = time.Since(start)
	e.metrics.Extraction(string(r.Method))
	e.logger.Info("Extracted document text",
		"method", r.Method,
		"length", utf8.RuneCountInString(r.Text),
		"quality", fmt.Sprintf("%.2f", r.QualityScore),
		"pages", r.Metadata.Pages)
	return r
}
