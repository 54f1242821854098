package extraction

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/hassan8537/motor-chatbot-backend-sub000/internal/apperr"
	"github.com/hassan8537/motor-chatbot-backend-sub000/internal/retry"
)

// Tier trades OCR accuracy for speed.
type Tier string

const (
	TierFast     Tier = "fast"
	TierBalanced Tier = "balanced"
	TierHigh     Tier = "high"
)

type tierSettings struct {
	DPI       int
	BatchSize int
}

var tiers = map[Tier]tierSettings{
	TierFast:     {DPI: 100, BatchSize: 4},
	TierBalanced: {DPI: 150, BatchSize: 3},
	TierHigh:     {DPI: 300, BatchSize: 2},
}

// ParseTier validates a configured tier name.
func ParseTier(s string) (Tier, error) {
	t := Tier(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := tiers[t]; !ok {
		return "", fmt.Errorf("unknown OCR tier %q", s)
	}
	return t, nil
}

const (
	// Pages with less recognized text than this are dropped.
	minPageTextLength = 10
	// OCR quality never reaches 1: recognition errors are invisible to the confidence score.
	maxOCRQuality = 0.95
)

type ocrOutcome struct {
	Text       string
	Confidence float64
	Quality    float64
	Pages      int
	Processed  int
	Dropped    int
	Failed     int
}

type pageOCR struct {
	text       string
	confidence float64
	ok         bool
	dropped    bool
}

// runOCR rasterizes and recognizes every page in tier-sized batches. A batch settles
// before the next one starts. Per-page failures are logged and skipped.
func (e *Engine) runOCR(ctx context.Context, data []byte) (*ocrOutcome, error) {
	if e.raster == nil || e.ocr == nil {
		return nil, fmt.Errorf("%w: no rasterizer or OCR engine configured", ErrToolNotFound)
	}

	pages, err := e.raster.PageCount(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("count pages: %w", err)
	}
	if pages == 0 {
		return nil, ErrEmptyDocument
	}

	settings := tiers[e.cfg.Tier]
	results := make([]pageOCR, pages)

	for start := 0; start < pages; start += settings.BatchSize {
		end := min(start+settings.BatchSize, pages)

		var g errgroup.Group
		for i := start; i < end; i++ {
			g.Go(func() error {
				results[i] = e.ocrPage(ctx, data, i+1, settings.DPI)
				return nil
			})
		}
		_ = g.Wait()

		if err := ctx.Err(); err != nil {
			return nil, err
		}
		e.logger.Debug("OCR batch complete", "from", start+1, "to", end, "pages", pages)
	}

	out := &ocrOutcome{Pages: pages}
	var (
		parts   []string
		confSum float64
	)
	for i, r := range results {
		switch {
		case r.dropped:
			out.Dropped++
		case !r.ok:
			out.Failed++
		default:
			parts = append(parts, fmt.Sprintf("## Page %d\n\n%s", i+1, r.text))
			confSum += r.confidence
			out.Processed++
		}
	}
	if out.Processed == 0 {
		return nil, ErrNoOCRText
	}

	out.Text = strings.Join(parts, "\n\n")
	out.Confidence = confSum / float64(out.Processed)
	out.Quality = min(out.Confidence/100, maxOCRQuality)
	return out, nil
}

func (e *Engine) ocrPage(ctx context.Context, data []byte, page, dpi int) pageOCR {
	pctx, cancel := context.WithTimeout(ctx, e.cfg.PageTimeout)
	defer cancel()

	policy := e.cfg.Retry
	policy.Retryable = func(err error) bool {
		return !errors.Is(err, ErrToolNotFound) && apperr.IsRetryable(err)
	}

	rec, err := retry.Value(pctx, policy, func(ctx context.Context) (*Recognition, error) {
		img, err := e.raster.Render(ctx, data, page, dpi)
		if err != nil {
			return nil, fmt.Errorf("render page: %w", err)
		}
		return e.ocr.Recognize(ctx, img, e.cfg.Language)
	})
	if err != nil {
		e.logger.Warn("OCR failed for page, skipping", "page", page, "error", err)
		return pageOCR{}
	}

	text := strings.TrimSpace(rec.Text)
	if utf8.RuneCountInString(text) < minPageTextLength {
		e.logger.Debug("Dropping page with too little OCR text", "page", page, "length", len(text))
		return pageOCR{dropped: true}
	}
	return pageOCR{text: text, confidence: rec.Confidence, ok: true}
}
