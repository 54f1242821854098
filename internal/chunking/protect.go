package chunking

import (
	"regexp"
	"sort"
)

// Phrases the splitter should not cut through: figures with units, prices, ranges and
// "Field: value" specification lines.
var protectedPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\d[\d,]*(?:\.\d+)?\s?(?:hp|bhp|ps|kw|nm|lb-?ft|cc|km/l|kmpl|mpg|km/h|kph|mph|rpm|kg|mm|cm|litres?|liters?|l|seconds|sec|s|%|psi|kwh|ah)\b`),
	regexp.MustCompile(`(?i)(?:\brs\.?|\bpkr|\busd|\$)\s?\d[\d,]*(?:\.\d+)?(?:\s?(?:lakh|million|crore))?`),
	regexp.MustCompile(`\d+(?:\.\d+)?\s?(?:-|to|–)\s?\d+(?:\.\d+)?`),
	regexp.MustCompile(`(?m)^[ \t]*[A-Za-z][A-Za-z0-9 ()/\-]{1,40}:[ \t]*[^\n]{1,80}$`),
}

// marker is a protected byte range [lo, hi) of the source text.
type marker struct {
	lo, hi int
}

type markers []marker

// findMarkers returns the merged, sorted protected ranges of text.
func findMarkers(text string) markers {
	var ms markers
	for _, p := range protectedPatterns {
		for _, loc := range p.FindAllStringIndex(text, -1) {
			if loc[1] > loc[0] {
				ms = append(ms, marker{lo: loc[0], hi: loc[1]})
			}
		}
	}
	if len(ms) == 0 {
		return nil
	}

	sort.Slice(ms, func(i, j int) bool { return ms[i].lo < ms[j].lo })
	merged := ms[:1]
	for _, m := range ms[1:] {
		last := &merged[len(merged)-1]
		if m.lo <= last.hi {
			last.hi = max(last.hi, m.hi)
			continue
		}
		merged = append(merged, m)
	}
	return merged
}

// inside reports whether a cut at pos would split a protected range.
func (ms markers) inside(pos int) bool {
	i := sort.Search(len(ms), func(i int) bool { return ms[i].hi > pos })
	return i < len(ms) && ms[i].lo < pos
}

// containing returns the protected range pos falls strictly inside.
func (ms markers) containing(pos int) (marker, bool) {
	i := sort.Search(len(ms), func(i int) bool { return ms[i].hi > pos })
	if i < len(ms) && ms[i].lo < pos {
		return ms[i], true
	}
	return marker{}, false
}
