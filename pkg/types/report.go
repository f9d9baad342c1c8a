// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// Finding is one consolidated statement in a report.
type Finding struct {
	// Field is the consolidated field or topic the finding covers.
	Field string `json:"field" yaml:"field"`

	// Statement is the finding text.
	Statement string `json:"statement" yaml:"statement"`

	// Confidence is the finding's confidence in [0,100].
	Confidence float64 `json:"confidence" yaml:"confidence"`

	// Sources lists supporting source URLs.
	Sources []string `json:"sources,omitempty" yaml:"sources,omitempty"`
}

// ExtractedEntity is one structured item pulled from source content
// during wide research (an organization, fact, date, or metric).
type ExtractedEntity struct {
	// Kind is one of organization, fact, date, metric.
	Kind string `json:"kind" yaml:"kind"`

	// Name is the entity's display name or text.
	Name string `json:"name" yaml:"name"`

	// Attributes holds additional fields by name.
	Attributes map[string]string `json:"attributes,omitempty" yaml:"attributes,omitempty"`

	// Source is the URL the entity was extracted from.
	Source string `json:"source,omitempty" yaml:"source,omitempty"`

	// Confidence is the extraction confidence in [0,1].
	Confidence float64 `json:"confidence" yaml:"confidence"`
}

// Report is the compiled output of one research run.
type Report struct {
	// RunID identifies the run that produced the report.
	RunID string `json:"run_id" yaml:"run_id"`

	// Query is the research question.
	Query string `json:"query" yaml:"query"`

	// Summary is the synthesized answer.
	Summary string `json:"summary" yaml:"summary"`

	// Findings lists consolidated statements with confidence.
	Findings []Finding `json:"findings,omitempty" yaml:"findings,omitempty"`

	// Sources lists the sources the report draws on, best first.
	Sources []SourceRecord `json:"sources,omitempty" yaml:"sources,omitempty"`

	// Claims lists claim verdicts from verification.
	Claims []ClaimVerification `json:"claims,omitempty" yaml:"claims,omitempty"`

	// Entities lists structured items aggregated during wide research.
	Entities []ExtractedEntity `json:"entities,omitempty" yaml:"entities,omitempty"`

	// Quality is the final composite confidence.
	Quality QualityScore `json:"quality" yaml:"quality"`

	// InsufficientData marks a report produced without usable sources.
	// Such a report states that no data was found and contains no
	// fabricated findings or entities.
	InsufficientData bool `json:"insufficient_data" yaml:"insufficient_data"`

	// CreatedAt is when the report was compiled.
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}
