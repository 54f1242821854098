package retrieval

import "regexp"

// QueryType selects a search profile.
type QueryType string

const (
	QueryAggregation QueryType = "aggregation"
	QueryComparison  QueryType = "comparison"
	QueryDomain      QueryType = "domain"
	QueryGeneral     QueryType = "general"
)

// Profile is the search breadth used for a query type.
type Profile struct {
	Limit          int
	ScoreThreshold float32
}

// Aggregation casts a wide net at a low threshold to collect data points, domain
// questions want a few precise hits.
var profiles = map[QueryType]Profile{
	QueryAggregation: {Limit: 50, ScoreThreshold: 0.5},
	QueryComparison:  {Limit: 20, ScoreThreshold: 0.6},
	QueryDomain:      {Limit: 5, ScoreThreshold: 0.75},
	QueryGeneral:     {Limit: 10, ScoreThreshold: 0.6},
}

// ProfileFor returns the search profile of t, general for unknown types.
func ProfileFor(t QueryType) Profile {
	if p, ok := profiles[t]; ok {
		return p
	}
	return profiles[QueryGeneral]
}

type queryRule struct {
	queryType QueryType
	pattern   *regexp.Regexp
}

// Evaluated in order; first match wins.
var queryRules = []queryRule{
	{QueryAggregation, regexp.MustCompile(`(?i)\b(average|avg|mean|median|total|sum|how many|count|statistics?|stats|overall|highest|lowest|maximum|minimum|max|min|most|least|range of|distribution|list all|all (?:the )?(?:cars|vehicles|models|variants))\b`)},
	{QueryComparison, regexp.MustCompile(`(?i)(\bcompare\b|\bcomparison\b|\bvs\.?(?:\s|$)|\bversus\b|\bdifference between\b|\bbetter than\b|\bwhich is better\b|\bcompared (?:to|with)\b)`)},
	{QueryDomain, regexp.MustCompile(`(?i)(\bhorse ?power\b|\bhp\b|\bbhp\b|\btorque\b|\bdisplacement\b|\bengine\b|\bfuel (?:economy|consumption|tank)\b|\bmpg\b|km/l|\btransmission\b|\bgearbox\b|0-(?:60|100)|\bacceleration\b|\btop speed\b|\bwheelbase\b|\bground clearance\b|\b(?:curb|kerb) weight\b|\btowing\b|\bairbags?\b|\bwarranty\b|\bservice interval\b|\boil\b|\btyres?\b|\btires?\b|\bprice\b|\bcost\b|\brpm\b)`)},
}

// ClassifyQuery picks a query type from lexical cues.
func ClassifyQuery(query string) QueryType {
	for _, rule := range queryRules {
		if rule.pattern.MatchString(query) {
			return rule.queryType
		}
	}
	return QueryGeneral
}
