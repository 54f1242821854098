package retrieval

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Annotations carry the data points of an aggregation hit for statistical synthesis.
type Annotations struct {
	// Numbers are all numeric values in the chunk text, in order of appearance.
	Numbers []float64
	// Categories are the content type and the metric names present.
	Categories []string
	// Identifiers are vehicle makes and models named in the chunk or its document metadata.
	Identifiers []string
	// Metrics are the labelled figures extracted at indexing time.
	Metrics []MetricValue
}

// MetricValue is a parsed inline metric.
type MetricValue struct {
	Name  string
	Value float64
	Unit  string
}

var knownMakes = []string{
	"Audi", "BAIC", "BMW", "BYD", "Changan", "Chery", "Chevrolet", "Daihatsu", "DFSK", "Ford",
	"GWM", "Haval", "Honda", "Hyundai", "Isuzu", "Jeep", "Kia", "Land Rover", "Lexus", "Mazda",
	"Mercedes-Benz", "MG", "Mitsubishi", "Nissan", "Peugeot", "Porsche", "Proton", "Renault",
	"Subaru", "Suzuki", "Tesla", "Toyota", "Volkswagen", "Volvo",
}

// makeModelPattern matches a known make optionally followed by a model name such as
// "Toyota Corolla" or "Honda Civic RS".
var makeModelPattern = func() *regexp.Regexp {
	quoted := make([]string, len(knownMakes))
	for i, m := range knownMakes {
		quoted[i] = regexp.QuoteMeta(m)
	}
	return regexp.MustCompile(`\b(` + strings.Join(quoted, "|") + `)\b(?:\s+([A-Z0-9][A-Za-z0-9-]*(?:\s+[A-Z][A-Za-z0-9-]*)?))?`)
}()

var metricValuePattern = regexp.MustCompile(`-?\d+(?:,\d{3})*(?:\.\d+)?`)

func annotate(r Result) *Annotations {
	text := r.Content()
	a := &Annotations{}

	for _, m := range numberPattern.FindAllString(text, maxNumbersPerHit) {
		if v, ok := parseNumber(m); ok {
			a.Numbers = append(a.Numbers, v)
		}
	}

	categories := newOrderedSet()
	if ct := r.ContentType(); ct != "" {
		categories.add(ct)
	}
	for _, s := range r.MetricStrings() {
		mv, ok := parseMetric(s)
		if !ok {
			continue
		}
		a.Metrics = append(a.Metrics, mv)
		categories.add(mv.Name)
	}
	a.Categories = categories.items

	identifiers := newOrderedSet()
	for _, m := range makeModelPattern.FindAllStringSubmatch(text, -1) {
		identifiers.add(m[1])
		if m[2] != "" {
			identifiers.add(m[1] + " " + m[2])
		}
	}
	for _, e := range stringList(r.Payload["entities"]) {
		identifiers.add(e)
	}
	a.Identifiers = identifiers.items
	sort.Strings(a.Identifiers)
	return a
}

// parseMetric parses "name=value unit".
func parseMetric(s string) (MetricValue, bool) {
	name, rest, ok := strings.Cut(s, "=")
	if !ok || name == "" {
		return MetricValue{}, false
	}
	loc := metricValuePattern.FindStringIndex(rest)
	if loc == nil {
		return MetricValue{}, false
	}
	v, ok := parseNumber(rest[loc[0]:loc[1]])
	if !ok {
		return MetricValue{}, false
	}
	unit := strings.TrimSpace(rest[loc[1]:])
	return MetricValue{Name: name, Value: v, Unit: unit}, true
}

func parseNumber(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	return v, err == nil
}

type orderedSet struct {
	seen  map[string]bool
	items []string
}

func newOrderedSet() *orderedSet {
	return &orderedSet{seen: make(map[string]bool)}
}

func (s *orderedSet) add(v string) {
	v = strings.TrimSpace(v)
	if v == "" || s.seen[strings.ToLower(v)] {
		return
	}
	s.seen[strings.ToLower(v)] = true
	s.items = append(s.items, v)
}
