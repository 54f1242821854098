package extraction

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Rasterizer renders PDF pages to images.
type Rasterizer interface {
	PageCount(ctx context.Context, data []byte) (int, error)
	// Render returns a PNG of the 1-based page at dpi.
	Render(ctx context.Context, data []byte, page, dpi int) ([]byte, error)
}

// PopplerRasterizer uses pdfinfo and pdftoppm from poppler-utils.
type PopplerRasterizer struct {
	runner CommandRunner
	tmpDir string
}

// NewPopplerRasterizer returns a rasterizer that writes scratch files under tmpDir
// (os.TempDir when empty).
func NewPopplerRasterizer(runner CommandRunner, tmpDir string) *PopplerRasterizer {
	if runner == nil {
		runner = ExecRunner{}
	}
	return &PopplerRasterizer{runner: runner, tmpDir: tmpDir}
}

// PageCount parses the "Pages:" line of pdfinfo. pdfinfo reads the document from stdin
// when given "-".
func (r *PopplerRasterizer) PageCount(ctx context.Context, data []byte) (int, error) {
	out, err := r.runner.Run(ctx, data, "pdfinfo", "-")
	if err != nil {
		return 0, err
	}
	return parsePageCount(out)
}

func parsePageCount(out []byte) (int, error) {
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "Pages:") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, "Pages:")))
		if err != nil {
			return 0, fmt.Errorf("parse page count %q: %w", line, err)
		}
		return n, nil
	}
	return 0, fmt.Errorf("pdfinfo output has no page count")
}

// Render rasterizes one page. pdftoppm cannot stream a single page from stdin to stdout
// reliably across versions, so the document goes through a scratch file.
func (r *PopplerRasterizer) Render(ctx context.Context, data []byte, page, dpi int) ([]byte, error) {
	dir, err := os.MkdirTemp(r.tmpDir, "raster-*")
	if err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(dir)

	src := filepath.Join(dir, "doc.pdf")
	if err := os.WriteFile(src, data, 0o600); err != nil {
		return nil, fmt.Errorf("write scratch pdf: %w", err)
	}

	p := strconv.Itoa(page)
	out, err := r.runner.Run(ctx, nil, "pdftoppm",
		"-png", "-r", strconv.Itoa(dpi), "-f", p, "-l", p, "-singlefile",
		src, filepath.Join(dir, "page"))
	if err != nil {
		return nil, err
	}
	if len(out) > 0 {
		// Runners that capture output (tests) return the image directly.
		return out, nil
	}
	img, err := os.ReadFile(filepath.Join(dir, "page.png"))
	if err != nil {
		return nil, fmt.Errorf("read rendered page %d: %w", page, err)
	}
	return img, nil
}
