package retrieval

import (
	"regexp"
	"sort"

	"github.com/hassan8537/motor-chatbot-backend-sub000/internal/chunking"
	"github.com/hassan8537/motor-chatbot-backend-sub000/internal/storage"
)

// Boost weights. The type and structure boosts share one cap.
const (
	highValueBoost   = 0.08
	structuredBoost  = 0.06
	maxContentBoost  = 0.12
	technicalBoost   = 0.01
	maxTechnical     = 0.05
	numericBoost     = 0.002
	maxNumericBoost  = 0.03
	maxBoostedScore  = 1.0
	maxNumbersPerHit = 50
)

// Technical value patterns; each one present in a result adds technicalBoost.
var technicalPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b\d+(?:\.\d+)?\s?(?:hp|bhp|ps|kw)\b`),
	regexp.MustCompile(`(?i)\b\d+(?:\.\d+)?\s?(?:nm|lb-?ft)\b`),
	regexp.MustCompile(`(?i)\b\d+(?:[.,]\d+)?\s?(?:cc|l|litres?|liters?)\b`),
	regexp.MustCompile(`(?i)\b\d+(?:\.\d+)?\s?(?:mpg|km/l|l/100\s?km)`),
	regexp.MustCompile(`(?i)\b\d+(?:\.\d+)?\s?(?:km/h|kph|mph)\b`),
	regexp.MustCompile(`(?i)\b\d+(?:[.,]\d+)?\s?rpm\b`),
	regexp.MustCompile(`(?i)\b\d+(?:[.,]\d+)?\s?(?:kg|lbs?)\b`),
	regexp.MustCompile(`(?i)\b\d+(?:[.,]\d+)?\s?mm\b`),
	regexp.MustCompile(`(?i)(?:[$€£]|\b(?:rs\.?|pkr|usd|eur)\s?)\s?\d`),
	regexp.MustCompile(`(?i)\b\d+(?:\.\d+)?\s?(?:s|sec|seconds)\b`),
}

var numberPattern = regexp.MustCompile(`\d+(?:,\d{3})*(?:\.\d+)?`)

// rerank converts points to results, applies boosts and sorts by boosted score.
// Ties keep the vector store's order.
func rerank(points []storage.ScoredPoint, queryType QueryType) []Result {
	results := make([]Result, len(points))
	for i, p := range points {
		r := Result{
			ID:           p.ID,
			VectorScore:  p.Score,
			Payload:      p.Payload,
			OriginalRank: i + 1,
		}
		r.Boost = boostFor(r, queryType)
		r.Score = min(p.Score+r.Boost, maxBoostedScore)
		results[i] = r
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	for i := range results {
		results[i].Rank = i + 1
	}
	return results
}

func boostFor(r Result, queryType QueryType) float32 {
	var content float64
	if chunking.ContentType(r.ContentType()).HighValue() {
		content += highValueBoost
	}
	if r.HasStructuredData() {
		content += structuredBoost
	}
	boost := min(content, maxContentBoost)

	text := r.Content()
	var technical float64
	for _, p := range technicalPatterns {
		if p.MatchString(text) {
			technical += technicalBoost
		}
	}
	boost += min(technical, maxTechnical)

	if queryType == QueryAggregation {
		n := len(numberPattern.FindAllStringIndex(text, maxNumbersPerHit))
		boost += min(float64(n)*numericBoost, maxNumericBoost)
	}
	return float32(boost)
}
