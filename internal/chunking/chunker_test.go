package chunking

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"
)

// specSheet builds a multi-model spec sheet with headings, prose and field lines.
func specSheet() string {
	var b strings.Builder
	models := []string{"Corolla", "Civic", "City", "Elantra"}
	for i, m := range models {
		fmt.Fprintf(&b, "## %s\n\n", m)
		fmt.Fprintf(&b, "The %s is powered by a %d cc engine producing %d hp and %d Nm of torque. ",
			m, 1300+i*200, 110+i*15, 140+i*20)
		b.WriteString("Independent reviewers praised the refined cabin, light steering and composed ride on broken roads.\n\n")
		fmt.Fprintf(&b, "Fuel economy: %d km/l\nKerb weight: %d kg\nPrice: Rs %d,%03d,000\n\n",
			12+i, 1150+i*40, 4+i, 250*i)
	}
	return b.String()
}

// TestChunk_CoversSource checks that chunk spans cover the whole input with overlaps
// in [0, size).
func TestChunk_CoversSource(t *testing.T) {
	text := specSheet()
	chunker := NewChunker(nil)

	for _, opts := range []Options{
		{Size: 50, Overlap: 10, MinLength: 1},
		{Size: 100, Overlap: 0, MinLength: 1},
		{Size: 200, Overlap: 50, MinLength: 1},
		{Size: 500, Overlap: 100, MinLength: 1},
	} {
		t.Run(fmt.Sprintf("size=%d/overlap=%d", opts.Size, opts.Overlap), func(t *testing.T) {
			chunks, err := chunker.Chunk(text, opts)
			if err != nil {
				t.Fatalf("Chunk failed: %v", err)
			}

			var body []Chunk
			for _, c := range chunks {
				if !c.IsSummary() {
					body = append(body, c)
				}
			}
			if len(body) == 0 {
				t.Fatal("expected chunks")
			}
			if body[0].Start != 0 {
				t.Errorf("first chunk starts at %d, want 0", body[0].Start)
			}
			if last := body[len(body)-1]; last.End != len(text) {
				t.Errorf("last chunk ends at %d, want %d", last.End, len(text))
			}

			for i, c := range body {
				if n := utf8.RuneCountInString(c.RawContent); n > opts.Size {
					t.Errorf("chunk %d has %d characters, limit %d", i, n, opts.Size)
				}
				if strings.TrimSpace(text[c.Start:c.End]) != c.RawContent {
					t.Errorf("chunk %d raw content does not match its source span", i)
				}
				if i == 0 {
					continue
				}
				prev := body[i-1]
				overlap := prev.End - c.Start
				if overlap < 0 {
					t.Errorf("gap of %d bytes between chunks %d and %d", -overlap, i-1, i)
				}
				if overlap >= opts.Size {
					t.Errorf("overlap %d between chunks %d and %d is not below size %d", overlap, i-1, i, opts.Size)
				}
			}
		})
	}
}

// TestChunk_MinLengthBoundary tests that a short trailing chunk is dropped.
func TestChunk_MinLengthBoundary(t *testing.T) {
	para := "The sedan offers a comfortable ride with a quiet cabin and supportive seats for long trips."
	text := para + "\n\nTiny note."

	chunks, err := NewChunker(nil).Chunk(text, Options{Size: 100, Overlap: 0, MinLength: 50})
	if err != nil {
		t.Fatalf("Chunk failed: %v", err)
	}

	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].RawContent != para {
		t.Errorf("unexpected chunk content %q", chunks[0].RawContent)
	}
	if chunks[0].Total != 1 || chunks[0].Index != 0 {
		t.Errorf("index/total = %d/%d, want 0/1", chunks[0].Index, chunks[0].Total)
	}
}

// TestChunk_OnlyCandidateKept tests that a short text is kept when it is the only chunk.
func TestChunk_OnlyCandidateKept(t *testing.T) {
	chunks, err := NewChunker(nil).Chunk("Hi there.", DefaultOptions())
	if err != nil {
		t.Fatalf("Chunk failed: %v", err)
	}
	if len(chunks) != 1 || chunks[0].RawContent != "Hi there." {
		t.Fatalf("expected the short text as the only chunk, got %+v", chunks)
	}
	if !strings.HasPrefix(chunks[0].Content, "[General]\n") {
		t.Errorf("expected general label, got %q", chunks[0].Content)
	}
}

// TestChunk_InvalidInput tests the only failure modes.
func TestChunk_InvalidInput(t *testing.T) {
	chunker := NewChunker(nil)
	cases := []struct {
		name string
		text string
		opts Options
	}{
		{"empty text", "", DefaultOptions()},
		{"whitespace text", " \n\t ", DefaultOptions()},
		{"overlap equals size", "some text", Options{Size: 100, Overlap: 100}},
		{"overlap above size", "some text", Options{Size: 100, Overlap: 150}},
		{"zero size", "some text", Options{Size: 0}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := chunker.Chunk(tc.text, tc.opts)
			if !errors.Is(err, ErrChunkingFailed) {
				t.Errorf("expected ErrChunkingFailed, got %v", err)
			}
		})
	}
}

// TestChunk_SectionBoundaries tests that page markers become chunk boundaries and titles.
func TestChunk_SectionBoundaries(t *testing.T) {
	text := "## Page 1\n\nThe engine is a 1.5 litre turbo unit with direct injection.\n\n" +
		"## Page 2\n\nThe showroom price starts at Rs 6,000,000 for the base trim."

	chunks, err := NewChunker(nil).Chunk(text, Options{Size: 90, Overlap: 0, MinLength: 50})
	if err != nil {
		t.Fatalf("Chunk failed: %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}

	if chunks[0].Section != "Page 1" || chunks[1].Section != "Page 2" {
		t.Errorf("sections = %q, %q", chunks[0].Section, chunks[1].Section)
	}
	if chunks[0].ContentType != ContentEngine {
		t.Errorf("chunk 0 type = %s, want %s", chunks[0].ContentType, ContentEngine)
	}
	if chunks[1].ContentType != ContentPricing {
		t.Errorf("chunk 1 type = %s, want %s", chunks[1].ContentType, ContentPricing)
	}
}

// TestChunk_CapsHeadings tests upper-case title lines as section titles.
func TestChunk_CapsHeadings(t *testing.T) {
	text := "ENGINE & TRANSMISSION\nA smooth four cylinder unit paired with a six speed automatic gearbox.\n" +
		"SAFETY\nSeven airbags, stability control and a reversing camera come as standard."

	chunks, err := NewChunker(nil).Chunk(text, Options{Size: 100, Overlap: 0, MinLength: 20})
	if err != nil {
		t.Fatalf("Chunk failed: %v", err)
	}
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	if chunks[0].Section != "ENGINE & TRANSMISSION" || chunks[1].Section != "SAFETY" {
		t.Errorf("sections = %q, %q", chunks[0].Section, chunks[1].Section)
	}
}

// TestChunk_DoesNotSplitMeasurements tests that a figure and its unit stay together.
func TestChunk_DoesNotSplitMeasurements(t *testing.T) {
	text := "The turbo engine makes 150 hp today and the other variant makes 180 hp with more boost applied."

	chunks, err := NewChunker(nil).Chunk(text, Options{Size: 30, Overlap: 0, MinLength: 1})
	if err != nil {
		t.Fatalf("Chunk failed: %v", err)
	}
	for _, c := range chunks {
		if c.IsSummary() {
			continue
		}
		if strings.HasSuffix(c.RawContent, "150") || strings.HasSuffix(c.RawContent, "180") {
			t.Errorf("chunk ends inside a measurement: %q", c.RawContent)
		}
		if strings.HasPrefix(c.RawContent, "hp") {
			t.Errorf("chunk starts inside a measurement: %q", c.RawContent)
		}
	}
}

// TestChunk_SummaryChunk tests the synthetic summary for spec-heavy documents.
func TestChunk_SummaryChunk(t *testing.T) {
	chunks, err := NewChunker(nil).Chunk(specSheet(), DefaultOptions())
	if err != nil {
		t.Fatalf("Chunk failed: %v", err)
	}

	first := chunks[0]
	if !first.IsSummary() {
		t.Fatalf("expected summary chunk first, got %s", first.ContentType)
	}
	if !strings.HasPrefix(first.Content, "[Summary] [Metrics: ") {
		t.Errorf("unexpected summary label: %q", first.Content[:40])
	}
	for _, want := range []string{"horsepower: 110 hp, 125 hp, 140 hp, 155 hp", "torque: 140 nm"} {
		if !strings.Contains(first.RawContent, want) {
			t.Errorf("summary missing %q:\n%s", want, first.RawContent)
		}
	}
	for i, c := range chunks {
		if c.Index != i || c.Total != len(chunks) {
			t.Errorf("chunk %d has index/total %d/%d", i, c.Index, c.Total)
		}
	}
}

// TestChunk_NoSummaryForSingleCategory tests that one kind of figure is not enough.
func TestChunk_NoSummaryForSingleCategory(t *testing.T) {
	text := "The base model makes 120 hp while the sport model makes 160 hp on premium fuel."
	chunks, err := NewChunker(nil).Chunk(text, DefaultOptions())
	if err != nil {
		t.Fatalf("Chunk failed: %v", err)
	}
	for _, c := range chunks {
		if c.IsSummary() {
			t.Fatal("unexpected summary chunk")
		}
	}
}

// TestChunk_MetricsCapped tests the per-chunk metric limit.
func TestChunk_MetricsCapped(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 15; i++ {
		fmt.Fprintf(&b, "Variant %d: %d hp. ", i, 100+i)
	}
	chunks, err := NewChunker(nil).Chunk(b.String(), Options{Size: 1000, Overlap: 0, MinLength: 10, MaxMetrics: 10})
	if err != nil {
		t.Fatalf("Chunk failed: %v", err)
	}
	for _, c := range chunks {
		if len(c.Metrics) > 10 {
			t.Errorf("chunk %d has %d metrics", c.Index, len(c.Metrics))
		}
	}
}

// TestWindowSplit tests the fallback splitter.
func TestWindowSplit(t *testing.T) {
	text := strings.Repeat("Alloy wheels and LED lamps. ", 40)

	spans := windowSplit(text, 100, 20)
	if len(spans) < 2 {
		t.Fatalf("expected several windows, got %d", len(spans))
	}
	if spans[0].lo != 0 || spans[len(spans)-1].hi != len(text) {
		t.Errorf("windows do not cover the text")
	}
	for i, sp := range spans {
		if sp.n > 100 {
			t.Errorf("window %d has %d characters", i, sp.n)
		}
		if i > 0 && sp.lo > spans[i-1].hi {
			t.Errorf("gap before window %d", i)
		}
		if i > 0 && sp.lo <= spans[i-1].lo {
			t.Errorf("window %d does not advance", i)
		}
	}
}
