package extraction

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Quality weights. They sum to 1.
const (
	weightLength  = 0.3
	weightDensity = 0.3
	weightWords   = 0.2
	weightVariety = 0.2

	// Characters expected on a reasonably dense page.
	charsPerPage = 300
	// Sentences expected on a reasonably dense page.
	sentencesPerPage = 5
	// Distinct non-space characters expected in natural-language text.
	expectedVariety = 40

	minAvgWordLen = 3.5
	maxAvgWordLen = 8.0
)

// Quality estimates extraction fidelity in [0,1] from text length and sentence density
// relative to page count, average word length and character-set variety.
func Quality(text string, pages int) float64 {
	if pages < 1 {
		pages = 1
	}
	n := utf8.RuneCountInString(strings.TrimSpace(text))
	if n == 0 {
		return 0
	}

	lengthScore := clamp01(float64(n) / float64(pages*charsPerPage))
	densityScore := clamp01(float64(countSentences(text)) / float64(pages*sentencesPerPage))
	wordScore := avgWordLengthScore(text)
	varietyScore := clamp01(float64(distinctRunes(text)) / expectedVariety)

	return clamp01(weightLength*lengthScore +
		weightDensity*densityScore +
		weightWords*wordScore +
		weightVariety*varietyScore)
}

// countSentences counts sentence terminators and paragraph breaks.
func countSentences(text string) int {
	count := 0
	prevTerminal := false
	for _, r := range text {
		terminal := r == '.' || r == '!' || r == '?'
		if terminal && !prevTerminal {
			count++
		}
		prevTerminal = terminal
	}
	count += strings.Count(text, "\n\n")
	return count
}

func avgWordLengthScore(text string) float64 {
	words := strings.Fields(text)
	if len(words) == 0 {
		return 0
	}
	letters := 0
	for _, w := range words {
		letters += utf8.RuneCountInString(strings.TrimFunc(w, unicode.IsPunct))
	}
	avg := float64(letters) / float64(len(words))
	switch {
	case avg == 0:
		return 0
	case avg < minAvgWordLen:
		return avg / minAvgWordLen
	case avg > maxAvgWordLen:
		return maxAvgWordLen / avg
	}
	return 1
}

func distinctRunes(text string) int {
	seen := make(map[rune]struct{})
	for _, r := range text {
		if unicode.IsSpace(r) {
			continue
		}
		seen[r] = struct{}{}
	}
	return len(seen)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
