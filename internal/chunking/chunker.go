// Package chunking splits extracted document text into labelled, validated chunks ready
// for embedding.
package chunking

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/parser"
)

// ErrChunkingFailed is returned for invalid input or options.
var ErrChunkingFailed = errors.New("chunking failed")

// Chunk is one segment of a document prepared for embedding.
type Chunk struct {
	Index       int
	Total       int
	Content     string // RawContent with the content-type label and metrics prepended
	RawContent  string
	ContentType ContentType
	Metrics     []Metric
	Section     string
	// HasStructuredData marks spec-sheet style content (tables, field lists, several figures).
	HasStructuredData bool
	// Start and End are byte offsets of RawContent's span in the source text.
	// Both are -1 for the synthetic summary chunk.
	Start, End int
}

// IsSummary reports whether the chunk was synthesized rather than cut from the text.
func (c Chunk) IsSummary() bool { return c.ContentType == ContentSummary && c.Start < 0 }

// Options controls chunk size and validation.
type Options struct {
	Size       int // maximum chunk length in characters
	Overlap    int // characters shared by consecutive chunks
	MinLength  int // shorter chunks are dropped
	MaxMetrics int // inline metrics per chunk
}

// DefaultOptions returns the production chunking options.
func DefaultOptions() Options {
	return Options{Size: 1000, Overlap: 200, MinLength: 50, MaxMetrics: 10}
}

func (o Options) validate() error {
	if o.Size <= 0 {
		return fmt.Errorf("%w: size must be positive, got %d", ErrChunkingFailed, o.Size)
	}
	if o.Overlap < 0 || o.Overlap >= o.Size {
		return fmt.Errorf("%w: overlap %d must be in [0, size %d)", ErrChunkingFailed, o.Overlap, o.Size)
	}
	return nil
}

// Chunker splits text at the most structural boundary that keeps chunks under size.
type Chunker struct {
	parser goldmark.Markdown
	logger *slog.Logger
}

// NewChunker creates a chunker with a goldmark parser for heading detection.
func NewChunker(logger *slog.Logger) *Chunker {
	if logger == nil {
		logger = slog.Default()
	}
	md := goldmark.New(
		goldmark.WithParserOptions(
			parser.WithAutoHeadingID(),
		),
	)
	return &Chunker{parser: md, logger: logger}
}

// Chunk splits text into chunks. It fails only for empty text or invalid options; any
// other failure falls back to fixed-size windowing.
func (c *Chunker) Chunk(text string, opts Options) (chunks []Chunk, err error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: text is empty", ErrChunkingFailed)
	}
	if opts.MaxMetrics <= 0 {
		opts.MaxMetrics = DefaultOptions().MaxMetrics
	}

	defer func() {
		if r := recover(); r != nil {
			c.logger.Warn("Chunking failed, falling back to fixed windows", "panic", r)
			chunks, err = c.build(text, windowSplit(text, opts.Size, opts.Overlap), nil, opts), nil
		}
	}()

	sections := c.findSections([]byte(text))
	offsets := make([]int, len(sections))
	for i, s := range sections {
		offsets[i] = s.Offset
	}

	sp := &splitter{
		src:      text,
		size:     opts.Size,
		overlap:  opts.Overlap,
		sections: offsets,
		markers:  findMarkers(text),
	}
	spans := sp.split()
	if len(spans) == 0 {
		spans = windowSplit(text, opts.Size, opts.Overlap)
	}

	chunks = c.build(text, spans, sections, opts)
	c.logger.Debug("Chunked document",
		"chunks", len(chunks),
		"spans", len(spans),
		"sections", len(sections))
	return chunks, nil
}

// build turns spans into labelled chunks, drops invalid ones and prepends the summary.
func (c *Chunker) build(text string, spans []span, sections []section, opts Options) []Chunk {
	candidates := make([]Chunk, 0, len(spans))
	for _, sp := range spans {
		raw := strings.TrimSpace(text[sp.lo:sp.hi])
		if raw == "" {
			continue
		}
		candidates = append(candidates, newChunk(raw, sp.lo, sp.hi, sectionAt(sections, sp.lo, sp.hi), opts.MaxMetrics))
	}

	valid := make([]Chunk, 0, len(candidates))
	for _, ch := range candidates {
		if isValid(ch.RawContent, opts.MinLength) {
			valid = append(valid, ch)
		}
	}
	if len(valid) == 0 {
		// Keep whatever has content rather than return nothing.
		valid = candidates
		c.logger.Debug("No chunk passed validation, keeping minimally valid chunks", "chunks", len(valid))
	}

	if summary, ok := summaryChunk(text, opts.MaxMetrics); ok {
		valid = append([]Chunk{summary}, valid...)
	}

	for i := range valid {
		valid[i].Index = i
		valid[i].Total = len(valid)
	}
	return valid
}

func newChunk(raw string, start, end int, sectionTitle string, maxMetrics int) Chunk {
	ct := Classify(raw)
	metrics := ExtractMetrics(raw, maxMetrics)
	return Chunk{
		Content:           label(ct, metrics) + "\n" + raw,
		RawContent:        raw,
		ContentType:       ct,
		Metrics:           metrics,
		Section:           sectionTitle,
		HasStructuredData: hasStructuredData(raw, ct, metrics),
		Start:             start,
		End:               end,
	}
}

// label renders "[Type]" or "[Type] [Metrics: a=1 x, b=2 y]".
func label(ct ContentType, metrics []Metric) string {
	l := "[" + ct.Label() + "]"
	if len(metrics) == 0 {
		return l
	}
	parts := make([]string, len(metrics))
	for i, m := range metrics {
		parts[i] = m.String()
	}
	return l + " [Metrics: " + strings.Join(parts, ", ") + "]"
}

// isValid requires minLength characters and at least one sign of real content: a word of
// three or more letters, a digit, or sentence punctuation.
func isValid(raw string, minLength int) bool {
	if utf8.RuneCountInString(raw) < minLength {
		return false
	}
	letters := 0
	for _, r := range raw {
		switch {
		case unicode.IsLetter(r):
			letters++
			if letters >= 3 {
				return true
			}
			continue
		case unicode.IsDigit(r):
			return true
		case r == '.' || r == '!' || r == '?':
			return true
		}
		letters = 0
	}
	return false
}
