// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// AgentMemory is one recorded research outcome, keyed by a normalized
// query pattern. The log is append-only and pruned to a bounded recent
// window.
type AgentMemory struct {
	// Pattern is the normalized query pattern (significant keywords, sorted).
	Pattern string `json:"pattern" yaml:"pattern"`

	// Strategy is the strategy that was used.
	Strategy Strategy `json:"strategy" yaml:"strategy"`

	// Success reports whether the run completed with acceptable quality.
	Success bool `json:"success" yaml:"success"`

	// Quality is the run's final overall quality in [0,1].
	Quality float64 `json:"quality" yaml:"quality"`

	// Learnings are free-form notes recorded with the outcome.
	Learnings []string `json:"learnings,omitempty" yaml:"learnings,omitempty"`

	// Domains lists the domains used, with their contribution to the outcome.
	Domains []DomainOutcome `json:"domains,omitempty" yaml:"domains,omitempty"`

	// RecordedAt is when the outcome was stored.
	RecordedAt time.Time `json:"recorded_at" yaml:"recorded_at"`
}

// DomainOutcome scores how useful one domain was in one run.
type DomainOutcome struct {
	// Domain is the source domain.
	Domain string `json:"domain" yaml:"domain"`

	// Usefulness is the run-local usefulness in [0,1].
	Usefulness float64 `json:"usefulness" yaml:"usefulness"`
}

// Recommendations is the memory store's advice for a new query.
type Recommendations struct {
	// Strategy is the best historical strategy for the pattern, if any.
	Strategy *Strategy `json:"strategy,omitempty" yaml:"strategy,omitempty"`

	// TrustedDomains lists domains with high historical usefulness.
	TrustedDomains []string `json:"trusted_domains,omitempty" yaml:"trusted_domains,omitempty"`

	// UntrustedDomains lists domains with low historical usefulness.
	UntrustedDomains []string `json:"untrusted_domains,omitempty" yaml:"untrusted_domains,omitempty"`

	// ExpectedQuality estimates the quality a run matching the pattern
	// will achieve, in [0,1]. Negative when no history exists.
	ExpectedQuality float64 `json:"expected_quality" yaml:"expected_quality"`

	// SampleCount is the number of historical runs behind the estimate.
	SampleCount int `json:"sample_count" yaml:"sample_count"`
}
