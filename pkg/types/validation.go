// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// ValidationMethod names how a field value was resolved across sources.
type ValidationMethod string

const (
	MethodExactMatch     ValidationMethod = "exact_match"
	MethodFuzzyMatch     ValidationMethod = "fuzzy_match"
	MethodToleranceMatch ValidationMethod = "tolerance_match"
	MethodAuthorityBased ValidationMethod = "authority_based"
	MethodNoData         ValidationMethod = "no_data"
)

// FieldValidation is the cross-source agreement result for one field.
type FieldValidation struct {
	// Field is the field name.
	Field string `json:"field" yaml:"field"`

	// Value is the resolved value.
	Value any `json:"value" yaml:"value"`

	// Confidence is the agreement confidence in [0,100].
	Confidence float64 `json:"confidence" yaml:"confidence"`

	// Method is how the value was resolved.
	Method ValidationMethod `json:"method" yaml:"method"`

	// Verified reports whether the sources agreed within tolerance.
	Verified bool `json:"verified" yaml:"verified"`

	// Matched lists source URLs that agree with the resolved value.
	Matched []string `json:"matched,omitempty" yaml:"matched,omitempty"`

	// Conflicting lists source URLs that disagree.
	Conflicting []string `json:"conflicting,omitempty" yaml:"conflicting,omitempty"`
}

// Discrepancy describes one field where at least two sources conflict.
type Discrepancy struct {
	// Field is the conflicted field name.
	Field string `json:"field" yaml:"field"`

	// Values maps source URL to that source's value.
	Values map[string]any `json:"values" yaml:"values"`

	// Detail explains the disagreement (e.g. numeric variance).
	Detail string `json:"detail,omitempty" yaml:"detail,omitempty"`
}

// ConsolidatedRecord is the merged view of one entity across sources.
type ConsolidatedRecord struct {
	// Fields maps field name to its validation result.
	Fields map[string]FieldValidation `json:"fields" yaml:"fields"`

	// Confidence is the mean of per-field confidences in [0,100].
	Confidence float64 `json:"confidence" yaml:"confidence"`

	// Discrepancies lists fields with conflicting source values.
	Discrepancies []Discrepancy `json:"discrepancies,omitempty" yaml:"discrepancies,omitempty"`

	// Warnings lists non-fatal validation notes.
	Warnings []string `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}
