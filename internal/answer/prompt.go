package answer

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hassan8537/motor-chatbot-backend-sub000/internal/chunking"
	"github.com/hassan8537/motor-chatbot-backend-sub000/internal/retrieval"
)

const systemPrompt = `You are an assistant for motor-vehicle documentation: spec sheets, brochures, price lists and service manuals.
Answer only from the numbered context excerpts. Cite excerpts as [n]. Quote figures with their units.
If the context does not contain the answer, say so plainly instead of guessing.`

const aggregationInstructions = `This is a statistical question. Use the pre-computed statistics where they apply, state how many data points they are based on, and mention vehicles whose figures stand out.`

// MetricStat summarises one metric across all retrieved chunks.
type MetricStat struct {
	Name  string  `json:"name"`
	Unit  string  `json:"unit"`
	Count int     `json:"count"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Mean  float64 `json:"mean"`
}

// computeStats groups annotated metrics by name and unit.
func computeStats(results []retrieval.Result) []MetricStat {
	type key struct{ name, unit string }
	acc := make(map[key]*MetricStat)
	var sums = make(map[key]float64)

	for _, r := range results {
		if r.Annotations == nil {
			continue
		}
		for _, m := range r.Annotations.Metrics {
			k := key{m.Name, strings.ToLower(m.Unit)}
			st, ok := acc[k]
			if !ok {
				st = &MetricStat{Name: m.Name, Unit: m.Unit, Min: m.Value, Max: m.Value}
				acc[k] = st
			}
			st.Count++
			st.Min = min(st.Min, m.Value)
			st.Max = max(st.Max, m.Value)
			sums[k] += m.Value
		}
	}

	stats := make([]MetricStat, 0, len(acc))
	for k, st := range acc {
		st.Mean = sums[k] / float64(st.Count)
		stats = append(stats, *st)
	}
	sort.Slice(stats, func(i, j int) bool {
		if stats[i].Count != stats[j].Count {
			return stats[i].Count > stats[j].Count
		}
		if stats[i].Name != stats[j].Name {
			return stats[i].Name < stats[j].Name
		}
		return stats[i].Unit < stats[j].Unit
	})
	return stats
}

// buildPrompt renders the question, context excerpts and, for aggregation questions, statistics.
func buildPrompt(question string, queryType retrieval.QueryType, results []retrieval.Result, stats []MetricStat, maxChars int) string {
	var b strings.Builder

	if queryType == retrieval.QueryAggregation {
		b.WriteString(aggregationInstructions)
		b.WriteString("\n\n")
		if len(stats) > 0 {
			b.WriteString("Statistics across retrieved excerpts:\n")
			for _, st := range stats {
				fmt.Fprintf(&b, "- %s (%s): n=%d, min=%g, max=%g, mean=%.2f\n",
					st.Name, unitOrNone(st.Unit), st.Count, st.Min, st.Max, st.Mean)
			}
			b.WriteString("\n")
		}
		if ids := identifiers(results); len(ids) > 0 {
			fmt.Fprintf(&b, "Vehicles mentioned: %s\n\n", strings.Join(ids, ", "))
		}
	}

	b.WriteString("Context:\n")
	used := 0
	for i, r := range results {
		content := r.Content()
		if maxChars > 0 && used+len(content) > maxChars && i > 0 {
			break
		}
		used += len(content)
		fmt.Fprintf(&b, "[%d] %s (%s, relevance %.2f)\n%s\n\n",
			i+1, sourceName(r), chunking.ContentType(r.ContentType()).Label(), r.Score, content)
	}

	b.WriteString("Question: ")
	b.WriteString(question)
	return b.String()
}

func identifiers(results []retrieval.Result) []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range results {
		if r.Annotations == nil {
			continue
		}
		for _, id := range r.Annotations.Identifiers {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	sort.Strings(out)
	return out
}

func sourceName(r retrieval.Result) string {
	if name := r.Filename(); name != "" {
		return name
	}
	return "unknown source"
}

func unitOrNone(unit string) string {
	if unit == "" {
		return "count"
	}
	return unit
}
