package chunking

import (
	"fmt"
	"regexp"
	"strings"
)

// ContentType is the domain category of a chunk.
type ContentType string

const (
	ContentTable       ContentType = "table"
	ContentPricing     ContentType = "pricing"
	ContentPerformance ContentType = "performance"
	ContentEngine      ContentType = "engine_specs"
	ContentFuel        ContentType = "fuel_economy"
	ContentDimensions  ContentType = "dimensions"
	ContentSafety      ContentType = "safety"
	ContentMaintenance ContentType = "maintenance"
	ContentFeatures    ContentType = "features"
	ContentSummary     ContentType = "summary"
	ContentGeneral     ContentType = "general"
)

// Label is the bracketed tag prepended to chunk content.
func (t ContentType) Label() string {
	switch t {
	case ContentEngine:
		return "Engine Specs"
	case ContentFuel:
		return "Fuel Economy"
	case "":
		return "General"
	}
	s := string(t)
	return strings.ToUpper(s[:1]) + s[1:]
}

// HighValue reports whether chunks of this type carry the structured figures
// statistics questions are answered from.
func (t ContentType) HighValue() bool {
	switch t {
	case ContentTable, ContentPricing, ContentPerformance, ContentEngine,
		ContentFuel, ContentDimensions, ContentSummary:
		return true
	}
	return false
}

type contentRule struct {
	Type    ContentType
	Pattern *regexp.Regexp
}

// contentRules is evaluated in order; the first match wins.
var contentRules = []contentRule{
	{ContentTable, regexp.MustCompile(`(?m)(^[^\n]*\|[^\n]*\|[^\n]*$)|(^[^\n\t]+\t[^\n\t]+\t)`)},
	{ContentPricing, regexp.MustCompile(`(?i)\b(price[sd]?|pricing|msrp|ex-showroom|on-road|lakh|crore)\b|(\brs\.?|\bpkr|\busd|\$)\s?\d`)},
	{ContentPerformance, regexp.MustCompile(`(?i)\b(horsepower|b?hp|torque|nm|0\s?-\s?100|acceleration|top speed|power output|\d+\s?rpm)\b`)},
	{ContentEngine, regexp.MustCompile(`(?i)\b(engine|displacement|cylinders?|bore|stroke|compression ratio|\d+\s?cc|turbo(charged)?|dohc|sohc|valves?)\b`)},
	{ContentFuel, regexp.MustCompile(`(?i)(\bfuel (economy|efficiency|consumption|tank)\b|\bmileage\b|km/l\b|\bkmpl\b|\bmpg\b|l/100\s?km)`)},
	{ContentDimensions, regexp.MustCompile(`(?i)\b(length|width|height|wheelbase|ground clearance|kerb weight|curb weight|boot space|turning radius|dimensions?)\b`)},
	{ContentSafety, regexp.MustCompile(`(?i)\b(airbags?|abs|ebd|esp|stability control|ncap|crash|isofix|safety)\b`)},
	{ContentMaintenance, regexp.MustCompile(`(?i)\b(service interval|maintenance|oil change|warranty|inspection|replacement|tyre pressure|tire pressure)\b`)},
	{ContentFeatures, regexp.MustCompile(`(?i)\b(infotainment|sunroof|moonroof|climate control|cruise control|bluetooth|android auto|apple carplay|keyless|features?)\b`)},
}

// Classify returns the first matching content type, or ContentGeneral.
func Classify(text string) ContentType {
	for _, rule := range contentRules {
		if rule.Pattern.MatchString(text) {
			return rule.Type
		}
	}
	return ContentGeneral
}

// Metric is a named figure found in chunk text.
type Metric struct {
	Name  string
	Value string
	Unit  string
}

func (m Metric) String() string {
	if m.Unit == "" {
		return m.Name + "=" + m.Value
	}
	return fmt.Sprintf("%s=%s %s", m.Name, m.Value, m.Unit)
}

type metricRule struct {
	Name    string
	Pattern *regexp.Regexp
	Extract func(match []string) (value, unit string)
}

func valueUnit(match []string) (string, string) {
	return strings.ReplaceAll(match[1], ",", ""), strings.ToLower(match[2])
}

// metricRules is evaluated in order. Each rule contributes every match until the per-chunk cap.
var metricRules = []metricRule{
	{
		Name:    "horsepower",
		Pattern: regexp.MustCompile(`(?i)\b(\d{2,4}(?:\.\d+)?)\s?(hp|bhp|ps)\b`),
		Extract: valueUnit,
	},
	{
		Name:    "power",
		Pattern: regexp.MustCompile(`(?i)\b(\d{2,4}(?:\.\d+)?)\s?(kw)\b`),
		Extract: valueUnit,
	},
	{
		Name:    "torque",
		Pattern: regexp.MustCompile(`(?i)\b(\d{2,4}(?:\.\d+)?)\s?(nm|lb-?ft)\b`),
		Extract: valueUnit,
	},
	{
		Name:    "displacement",
		Pattern: regexp.MustCompile(`(?i)\b(\d{1,2},?\d{3}|\d{3})\s?(cc)\b`),
		Extract: valueUnit,
	},
	{
		Name:    "fuel_economy",
		Pattern: regexp.MustCompile(`(?i)\b(\d{1,2}(?:\.\d+)?)\s?(km/l|kmpl|mpg)`),
		Extract: valueUnit,
	},
	{
		Name:    "top_speed",
		Pattern: regexp.MustCompile(`(?i)top speed\D{0,20}(\d{2,3})\s?(km/h|kph|mph)`),
		Extract: valueUnit,
	},
	{
		Name:    "acceleration",
		Pattern: regexp.MustCompile(`(?i)0\s?-\s?100\s?km/h\D{0,10}(\d{1,2}(?:\.\d+)?)\s?(s|sec|seconds)\b`),
		Extract: func(m []string) (string, string) { return m[1], "s" },
	},
	{
		Name:    "weight",
		Pattern: regexp.MustCompile(`(?i)\b(\d{1,2},?\d{3}|\d{3})\s?(kg)\b`),
		Extract: valueUnit,
	},
	{
		Name:    "dimension",
		Pattern: regexp.MustCompile(`(?i)\b(\d{1,2},?\d{3}|\d{3})\s?(mm)\b`),
		Extract: valueUnit,
	},
	{
		Name:    "rpm",
		Pattern: regexp.MustCompile(`(?i)\b(\d{1,2},?\d{3})\s?(rpm)\b`),
		Extract: valueUnit,
	},
	{
		Name:    "price",
		Pattern: regexp.MustCompile(`(?i)(?:\brs\.?|\bpkr|\busd|\$)\s?(\d[\d,]*(?:\.\d+)?)(?:\s?(lakh|million|crore))?`),
		Extract: func(m []string) (string, string) {
			unit := strings.ToLower(m[2])
			return strings.ReplaceAll(m[1], ",", ""), unit
		},
	},
	{
		Name:    "airbags",
		Pattern: regexp.MustCompile(`(?i)\b(\d{1,2})\s?(airbags)\b`),
		Extract: func(m []string) (string, string) { return m[1], "" },
	},
	{
		Name:    "seating",
		Pattern: regexp.MustCompile(`(?i)\b(\d)\s?-?\s?(seater|seats)\b`),
		Extract: func(m []string) (string, string) { return m[1], "" },
	},
}

// ExtractMetrics returns up to max metrics in rule order, skipping exact duplicates.
func ExtractMetrics(text string, max int) []Metric {
	if max <= 0 {
		return nil
	}
	var out []Metric
	seen := make(map[Metric]struct{})
	for _, rule := range metricRules {
		for _, match := range rule.Pattern.FindAllStringSubmatch(text, -1) {
			value, unit := rule.Extract(match)
			m := Metric{Name: rule.Name, Value: value, Unit: unit}
			if _, dup := seen[m]; dup {
				continue
			}
			seen[m] = struct{}{}
			out = append(out, m)
			if len(out) == max {
				return out
			}
		}
	}
	return out
}

var specFieldPattern = regexp.MustCompile(`(?m)^[ \t]*[A-Za-z][A-Za-z0-9 ()/\-]{1,40}:[ \t]*\S`)

// hasStructuredData reports whether text looks like a spec sheet rather than prose.
func hasStructuredData(text string, ct ContentType, metrics []Metric) bool {
	if ct == ContentTable || ct == ContentSummary {
		return true
	}
	return len(metrics) >= 2 || len(specFieldPattern.FindAllStringIndex(text, 2)) >= 2
}
