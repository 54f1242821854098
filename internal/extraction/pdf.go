package extraction

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// DigitalText is the output of structural text extraction.
type DigitalText struct {
	Text  string
	Pages int
	Title string
}

// TextExtractor pulls the embedded text layer out of a PDF.
type TextExtractor interface {
	ExtractText(ctx context.Context, data []byte) (*DigitalText, error)
}

// PDFTextExtractor reads the text layer with ledongthuc/pdf.
type PDFTextExtractor struct{}

// NewPDFTextExtractor returns a TextExtractor for PDF buffers.
func NewPDFTextExtractor() *PDFTextExtractor {
	return &PDFTextExtractor{}
}

// ExtractText returns the concatenated page text. Pages that fail to decode are skipped.
func (x *PDFTextExtractor) ExtractText(ctx context.Context, data []byte) (out *DigitalText, err error) {
	// The parser panics on some malformed cross-reference tables.
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("parse PDF: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to create PDF reader: %w", err)
	}

	pageCount := reader.NumPage()
	if pageCount == 0 {
		return nil, ErrEmptyDocument
	}

	var parts []string
	for i := 1; i <= pageCount; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		if text = strings.TrimSpace(text); text != "" {
			parts = append(parts, text)
		}
	}

	return &DigitalText{
		Text:  strings.Join(parts, "\n\n"),
		Pages: pageCount,
		Title: documentTitle(reader),
	}, nil
}

func documentTitle(r *pdf.Reader) string {
	trailer := r.Trailer()
	if trailer.IsNull() {
		return ""
	}
	return strings.TrimSpace(trailer.Key("Info").Key("Title").Text())
}
