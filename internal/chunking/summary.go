package chunking

import (
	"strings"
)

const (
	// Distinct metric names a document needs before it gets a summary chunk.
	minSummaryCategories = 2
	maxSummaryValues     = 12
	maxDocumentMetrics   = 500
)

// summaryChunk aggregates every specification figure in the document into one chunk so
// questions like "average horsepower" can match a single dense passage.
func summaryChunk(text string, maxMetrics int) (Chunk, bool) {
	all := ExtractMetrics(text, maxDocumentMetrics)

	var order []string
	byName := make(map[string][]string)
	for _, m := range all {
		if _, ok := byName[m.Name]; !ok {
			order = append(order, m.Name)
		}
		v := m.Value
		if m.Unit != "" {
			v += " " + m.Unit
		}
		if len(byName[m.Name]) < maxSummaryValues {
			byName[m.Name] = append(byName[m.Name], v)
		}
	}
	if len(order) < minSummaryCategories {
		return Chunk{}, false
	}

	var b strings.Builder
	b.WriteString("Document specification summary")
	for _, name := range order {
		b.WriteString("\n")
		b.WriteString(strings.ReplaceAll(name, "_", " "))
		b.WriteString(": ")
		b.WriteString(strings.Join(byName[name], ", "))
	}
	raw := b.String()

	metrics := all
	if len(metrics) > maxMetrics {
		metrics = metrics[:maxMetrics]
	}
	return Chunk{
		Content:           label(ContentSummary, metrics) + "\n" + raw,
		RawContent:        raw,
		ContentType:       ContentSummary,
		Metrics:           metrics,
		HasStructuredData: true,
		Start:             -1,
		End:               -1,
	}, true
}
