// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package agent

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/pdiddy/research-agent/internal/consolidate"
	"github.com/pdiddy/research-agent/internal/crossref"
	"github.com/pdiddy/research-agent/pkg/types"
)

// fieldKeywords are the quantities the heuristic extractor looks for.
// The map value is the consolidated field name.
var fieldKeywords = map[string]string{
	"revenue":    "revenue",
	"market cap": "market_cap",
	"price":      "price",
	"employees":  "employees",
	"population": "population",
	"founded":    "founded",
	"valuation":  "valuation",
}

// numberPattern matches a figure with an optional scale word. Currency
// symbols and thousands separators are tolerated.
var numberPattern = regexp.MustCompile(
	`[\$€£]?\s*([0-9][0-9,]*(?:\.[0-9]+)?)\s*(trillion|billion|million|thousand)?`)

// scales maps scale words to multipliers.
var scales = map[string]float64{
	"thousand": 1e3,
	"million":  1e6,
	"billion":  1e9,
	"trillion": 1e12,
}

// keywordWindow is how far past a keyword the extractor looks for its
// figure.
const keywordWindow = 80

const (
	maxClaims          = 5
	minClaimSentence   = 30
	maxClaimSentence   = 300
	claimSourceHorizon = 5
)

// extractFields pulls keyword/figure pairs from one source's content,
// restricted to the keywords the query mentions. The result feeds the
// consolidator as this source's field map.
func extractFields(query string, src types.SourceRecord) consolidate.SourceExtraction {
	content := strings.ToLower(src.Content)
	queryLower := strings.ToLower(query)

	fields := make(map[string]any)
	for keyword, field := range fieldKeywords {
		if !strings.Contains(queryLower, keyword) {
			continue
		}
		idx := strings.Index(content, keyword)
		if idx < 0 {
			continue
		}
		window := content[idx+len(keyword):]
		if len(window) > keywordWindow {
			window = window[:keywordWindow]
		}
		if value, ok := parseFigure(window); ok {
			fields[field] = value
		}
	}
	return consolidate.SourceExtraction{URL: src.URL, Fields: fields}
}

// parseFigure finds the first number in the text and applies its scale
// word.
func parseFigure(text string) (float64, bool) {
	m := numberPattern.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	raw := strings.ReplaceAll(m[1], ",", "")
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	if mult, ok := scales[m[2]]; ok {
		value *= mult
	}
	return value, true
}

// extractClaims picks candidate factual sentences: sentences from the
// top sources that mention enough of the query's terms. Claims are
// deduplicated by normalized text and capped.
func extractClaims(query string, sources []types.SourceRecord) []string {
	terms := queryTerms(query)
	if len(terms) == 0 {
		return nil
	}
	need := len(terms) / 2
	if need < 2 {
		need = 2
	}
	if need > len(terms) {
		need = len(terms)
	}

	horizon := sources
	if len(horizon) > claimSourceHorizon {
		horizon = horizon[:claimSourceHorizon]
	}

	seen := make(map[string]bool)
	var claims []string
	for _, src := range horizon {
		for _, sentence := range splitSentences(src.Content) {
			if len(sentence) < minClaimSentence || len(sentence) > maxClaimSentence {
				continue
			}
			normalized := " " + crossref.Normalize(sentence) + " "
			found := 0
			for _, term := range terms {
				if strings.Contains(normalized, " "+term+" ") {
					found++
				}
			}
			if found < need {
				continue
			}
			key := crossref.Normalize(sentence)
			if seen[key] {
				continue
			}
			seen[key] = true
			claims = append(claims, sentence)
			if len(claims) >= maxClaims {
				return claims
			}
		}
	}
	return claims
}

// queryTerms returns the query's significant terms, longest first so
// distinctive words drive sentence selection.
func queryTerms(query string) []string {
	var terms []string
	for _, w := range strings.Fields(crossref.Normalize(query)) {
		if len(w) > 2 {
			terms = append(terms, w)
		}
	}
	sort.SliceStable(terms, func(i, j int) bool { return len(terms[i]) > len(terms[j]) })
	return terms
}

// splitSentences splits text on sentence terminators.
func splitSentences(text string) []string {
	var sentences []string
	start := 0
	for i, r := range text {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		s := strings.TrimSpace(text[start : i+1])
		if s != "" {
			sentences = append(sentences, s)
		}
		start = i + 1
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}
