// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package crossref checks per-field agreement across sources. Fields are
// resolved by exact match, numeric tolerance, fuzzy text clustering, or
// authority fallback, in that order.
package crossref

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"

	"github.com/pdiddy/research-agent/internal/authority"
	"github.com/pdiddy/research-agent/pkg/types"
)

const (
	// DefaultFuzzyThreshold is the minimum normalized similarity for two
	// strings to be treated as the same value.
	DefaultFuzzyThreshold = 0.85

	// DefaultTolerancePct is the allowed numeric variance in percent for
	// fields without a specific tolerance entry.
	DefaultTolerancePct = 5.0

	// singleSourceCap caps confidence when only one source reports a value.
	singleSourceCap = 80.0

	// exactMatchConfidence is awarded when two or more sources agree exactly.
	exactMatchConfidence = 100.0

	// fuzzyMatchConfidence is awarded when all values cluster together.
	fuzzyMatchConfidence = 95.0

	// singleSourceVerifyFloor is the authority above which a lone source
	// counts as verified.
	singleSourceVerifyFloor = 0.7
)

// defaultTolerances holds the per-field numeric variance table in percent.
var defaultTolerances = map[string]float64{
	"price":      2.0,
	"market_cap": 5.0,
	"revenue":    5.0,
	"employees":  10.0,
}

// Validator resolves field values across sources.
type Validator struct {
	resolver   *authority.Resolver
	threshold  float64
	tolerances map[string]float64
	defaultTol float64
}

// NewValidator builds a Validator. Zero config fields fall back to the
// package defaults.
func NewValidator(resolver *authority.Resolver, cfg types.ValidationConfig) *Validator {
	threshold := cfg.FuzzyThreshold
	if threshold <= 0 {
		threshold = DefaultFuzzyThreshold
	}
	defaultTol := cfg.DefaultTolerance
	if defaultTol <= 0 {
		defaultTol = DefaultTolerancePct
	}
	tolerances := make(map[string]float64, len(defaultTolerances)+len(cfg.Tolerances))
	for k, v := range defaultTolerances {
		tolerances[k] = v
	}
	for k, v := range cfg.Tolerances {
		tolerances[k] = v
	}
	return &Validator{
		resolver:   resolver,
		threshold:  threshold,
		tolerances: tolerances,
		defaultTol: defaultTol,
	}
}

// ValidateField resolves one field's value across sources. valuesBySource
// maps source URL to that source's reported value.
func (v *Validator) ValidateField(name string, valuesBySource map[string]any) types.FieldValidation {
	switch len(valuesBySource) {
	case 0:
		return types.FieldValidation{Field: name, Method: types.MethodNoData}
	case 1:
		return v.singleSource(name, valuesBySource)
	}

	urls := sortedKeys(valuesBySource)

	// Identical values across two or more sources.
	if first, same := allEqual(valuesBySource, urls); same {
		return types.FieldValidation{
			Field:      name,
			Value:      first,
			Confidence: exactMatchConfidence,
			Method:     types.MethodExactMatch,
			Verified:   true,
			Matched:    urls,
		}
	}

	// All-numeric values go through the tolerance check.
	if nums, ok := numericValues(valuesBySource, urls); ok {
		return v.validateNumeric(name, valuesBySource, urls, nums)
	}

	// All-string values go through fuzzy clustering.
	if strs, ok := stringValues(valuesBySource, urls); ok {
		return v.validateFuzzy(name, valuesBySource, urls, strs)
	}

	// Mixed types: fall back to authority resolution.
	fv := v.authorityFallback(name, valuesBySource, urls)
	fv.Conflicting = disagreeing(urls, fv.Matched)
	return fv
}

// Validate runs ValidateField for every field discovered across the full
// source map and assembles the consolidated record. dataBySource maps
// source URL to that source's extracted fields.
func (v *Validator) Validate(dataBySource map[string]map[string]any) types.ConsolidatedRecord {
	record := types.ConsolidatedRecord{
		Fields: make(map[string]types.FieldValidation),
	}

	fields := map[string]bool{}
	for _, data := range dataBySource {
		for f := range data {
			fields[f] = true
		}
	}

	var confidenceSum float64
	for _, field := range sortedKeys2(fields) {
		valuesBySource := make(map[string]any)
		for src, data := range dataBySource {
			if val, ok := data[field]; ok {
				valuesBySource[src] = val
			}
		}

		fv := v.ValidateField(field, valuesBySource)
		record.Fields[field] = fv
		confidenceSum += fv.Confidence

		if len(fv.Conflicting) > 0 {
			record.Discrepancies = append(record.Discrepancies, types.Discrepancy{
				Field:  field,
				Values: valuesBySource,
				Detail: fmt.Sprintf("resolved by %s", fv.Method),
			})
		}
		if !fv.Verified && fv.Method != types.MethodNoData {
			record.Warnings = append(record.Warnings,
				fmt.Sprintf("field %q unverified (%s, confidence %.0f)", field, fv.Method, fv.Confidence))
		}
	}

	if len(record.Fields) > 0 {
		record.Confidence = confidenceSum / float64(len(record.Fields))
	}
	return record
}

// singleSource resolves a field only one source reports. Confidence is
// the source's authority scaled to [0,100] and capped at 80; the value
// is verified only when the authority clears the floor.
func (v *Validator) singleSource(name string, valuesBySource map[string]any) types.FieldValidation {
	for u, val := range valuesBySource {
		auth := v.resolver.GetAuthority(u).Authority
		conf := auth * 100
		if conf > singleSourceCap {
			conf = singleSourceCap
		}
		return types.FieldValidation{
			Field:      name,
			Value:      val,
			Confidence: conf,
			Method:     types.MethodAuthorityBased,
			Verified:   auth > singleSourceVerifyFloor,
			Matched:    []string{u},
		}
	}
	return types.FieldValidation{Field: name, Method: types.MethodNoData}
}

// validateNumeric applies the field's percent tolerance using
// (max-min)/mean*100 as the variance measure.
func (v *Validator) validateNumeric(name string, valuesBySource map[string]any, urls []string, nums []float64) types.FieldValidation {
	min, max, sum := nums[0], nums[0], 0.0
	for _, n := range nums {
		if n < min {
			min = n
		}
		if n > max {
			max = n
		}
		sum += n
	}
	mean := sum / float64(len(nums))

	variance := 0.0
	if mean != 0 {
		variance = (max - min) / mean * 100
	}

	tolerance := v.defaultTol
	if t, ok := v.tolerances[name]; ok {
		tolerance = t
	}

	if variance <= tolerance {
		conf := exactMatchConfidence - variance
		if conf < 0 {
			conf = 0
		}
		return types.FieldValidation{
			Field:      name,
			Value:      mean,
			Confidence: conf,
			Method:     types.MethodToleranceMatch,
			Verified:   true,
			Matched:    urls,
		}
	}

	fv := v.authorityFallback(name, valuesBySource, urls)
	fv.Conflicting = disagreeing(urls, fv.Matched)
	return fv
}

// validateFuzzy greedily clusters normalized strings and accepts the
// field when one cluster covers every value.
func (v *Validator) validateFuzzy(name string, valuesBySource map[string]any, urls []string, strs []string) types.FieldValidation {
	clusters := clusterStrings(strs, v.threshold)
	if len(clusters) == 1 {
		// One cluster covers all values: pick the longest variant as the
		// most complete representative.
		best := strs[0]
		for _, s := range strs[1:] {
			if len(s) > len(best) {
				best = s
			}
		}
		return types.FieldValidation{
			Field:      name,
			Value:      best,
			Confidence: fuzzyMatchConfidence,
			Method:     types.MethodFuzzyMatch,
			Verified:   true,
			Matched:    urls,
		}
	}

	fv := v.authorityFallback(name, valuesBySource, urls)
	fv.Conflicting = disagreeing(urls, fv.Matched)
	return fv
}

// authorityFallback picks the value from the highest-authority source.
func (v *Validator) authorityFallback(name string, valuesBySource map[string]any, urls []string) types.FieldValidation {
	value, winner := v.resolver.ResolveConflict(valuesBySource)
	auth := v.resolver.GetAuthority(winner).Authority
	conf := auth * 100
	if conf > singleSourceCap {
		conf = singleSourceCap
	}
	return types.FieldValidation{
		Field:      name,
		Value:      value,
		Confidence: conf,
		Method:     types.MethodAuthorityBased,
		Verified:   false,
		Matched:    []string{winner},
	}
}

// FuzzyMatch returns the normalized similarity of two strings in [0,1].
func FuzzyMatch(a, b string) float64 {
	na, nb := Normalize(a), Normalize(b)
	if na == nb {
		return 1.0
	}
	if na == "" || nb == "" {
		return 0.0
	}
	dist := levenshtein.ComputeDistance(na, nb)
	longest := len([]rune(na))
	if l := len([]rune(nb)); l > longest {
		longest = l
	}
	return 1.0 - float64(dist)/float64(longest)
}

// Normalize lowercases s, strips punctuation, and collapses whitespace.
func Normalize(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// clusterStrings greedily groups strings whose similarity to a cluster's
// first member meets the threshold.
func clusterStrings(strs []string, threshold float64) [][]string {
	var clusters [][]string
	for _, s := range strs {
		placed := false
		for i := range clusters {
			if FuzzyMatch(s, clusters[i][0]) >= threshold {
				clusters[i] = append(clusters[i], s)
				placed = true
				break
			}
		}
		if !placed {
			clusters = append(clusters, []string{s})
		}
	}
	return clusters
}

// numericValues extracts float values in url order; ok is false if any
// value is non-numeric.
func numericValues(valuesBySource map[string]any, urls []string) ([]float64, bool) {
	nums := make([]float64, 0, len(urls))
	for _, u := range urls {
		n, ok := toFloat(valuesBySource[u])
		if !ok {
			return nil, false
		}
		nums = append(nums, n)
	}
	return nums, true
}

// stringValues extracts strings in url order; ok is false if any value
// is not a string.
func stringValues(valuesBySource map[string]any, urls []string) ([]string, bool) {
	strs := make([]string, 0, len(urls))
	for _, u := range urls {
		s, ok := valuesBySource[u].(string)
		if !ok {
			return nil, false
		}
		strs = append(strs, s)
	}
	return strs, true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func allEqual(valuesBySource map[string]any, urls []string) (any, bool) {
	first := valuesBySource[urls[0]]
	firstRepr := fmt.Sprint(first)
	for _, u := range urls[1:] {
		if fmt.Sprint(valuesBySource[u]) != firstRepr {
			return nil, false
		}
	}
	return first, true
}

func disagreeing(all, matched []string) []string {
	matchedSet := make(map[string]bool, len(matched))
	for _, m := range matched {
		matchedSet[m] = true
	}
	var out []string
	for _, u := range all {
		if !matchedSet[u] {
			out = append(out, u)
		}
	}
	return out
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedKeys2(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
