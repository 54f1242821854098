package extraction

import (
	"bufio"
	"bytes"
	"context"
	"strconv"
	"strings"
)

// Recognition is the OCR output for one image. Confidence is in [0,100].
type Recognition struct {
	Text       string
	Confidence float64
}

// OCREngine recognizes text in an image.
type OCREngine interface {
	Recognize(ctx context.Context, image []byte, lang string) (*Recognition, error)
}

// Tesseract runs the tesseract CLI in TSV mode to obtain word-level confidences.
type Tesseract struct {
	runner CommandRunner
}

// NewTesseract returns an OCREngine backed by the tesseract binary.
func NewTesseract(runner CommandRunner) *Tesseract {
	if runner == nil {
		runner = ExecRunner{}
	}
	return &Tesseract{runner: runner}
}

// Recognize reads image from stdin and parses the TSV report.
func (t *Tesseract) Recognize(ctx context.Context, image []byte, lang string) (*Recognition, error) {
	if lang == "" {
		lang = "eng"
	}
	out, err := t.runner.Run(ctx, image, "tesseract", "stdin", "stdout", "-l", lang, "tsv")
	if err != nil {
		return nil, err
	}
	return parseTSV(out), nil
}

// TSV columns: level page_num block_num par_num line_num word_num left top width height conf text
const (
	tsvColumns  = 12
	tsvColBlock = 2
	tsvColPar   = 3
	tsvColLine  = 4
	tsvColConf  = 10
	tsvColText  = 11
)

// parseTSV rebuilds text with line and paragraph breaks and averages word confidence.
// Rows with confidence -1 are layout rows, not words.
func parseTSV(out []byte) *Recognition {
	var (
		b                            strings.Builder
		confSum                      float64
		words                        int
		lastBlock, lastPar, lastLine string
	)

	sc := bufio.NewScanner(bytes.NewReader(out))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	header := true
	for sc.Scan() {
		if header {
			header = false
			continue
		}
		cols := strings.Split(sc.Text(), "\t")
		if len(cols) < tsvColumns {
			continue
		}
		conf, err := strconv.ParseFloat(cols[tsvColConf], 64)
		if err != nil || conf < 0 {
			continue
		}
		word := strings.TrimSpace(cols[tsvColText])
		if word == "" {
			continue
		}

		block, par, line := cols[tsvColBlock], cols[tsvColPar], cols[tsvColLine]
		if b.Len() > 0 {
			switch {
			case block != lastBlock || par != lastPar:
				b.WriteString("\n\n")
			case line != lastLine:
				b.WriteString("\n")
			default:
				b.WriteString(" ")
			}
		}
		b.WriteString(word)
		lastBlock, lastPar, lastLine = block, par, line

		confSum += conf
		words++
	}

	rec := &Recognition{Text: b.String()}
	if words > 0 {
		rec.Confidence = confSum / float64(words)
	}
	return rec
}
