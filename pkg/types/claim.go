// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// SupportLevel is the categorical strength with which a source backs a claim.
type SupportLevel string

const (
	SupportStrong      SupportLevel = "strong"
	SupportModerate    SupportLevel = "moderate"
	SupportWeak        SupportLevel = "weak"
	SupportContradicts SupportLevel = "contradicts"
	SupportNone        SupportLevel = "none"
)

// Weight maps a support level to its contribution to claim confidence.
func (s SupportLevel) Weight() float64 {
	switch s {
	case SupportStrong:
		return 1.0
	case SupportModerate:
		return 0.6
	case SupportWeak:
		return 0.3
	case SupportContradicts:
		return -0.5
	default:
		return 0.0
	}
}

// VerificationStatus is the verdict on one factual claim.
type VerificationStatus string

const (
	StatusVerified          VerificationStatus = "verified"
	StatusPartiallyVerified VerificationStatus = "partially_verified"
	StatusUnverified        VerificationStatus = "unverified"
	StatusContradicted      VerificationStatus = "contradicted"
)

// SourceSupport records how one source relates to one claim.
type SourceSupport struct {
	// URL identifies the source.
	URL string `json:"url" yaml:"url"`

	// Level is the categorical support strength.
	Level SupportLevel `json:"level" yaml:"level"`

	// Authority is the source domain's authority at verification time.
	Authority float64 `json:"authority" yaml:"authority"`
}

// ClaimVerification is the verdict on one factual claim. Verdicts are
// cached by a fingerprint of the claim text and candidate source URLs.
// A status of verified requires at least one strong support and overall
// confidence of at least 0.8.
type ClaimVerification struct {
	// Claim is the verified claim text.
	Claim string `json:"claim" yaml:"claim"`

	// Status is the verdict.
	Status VerificationStatus `json:"status" yaml:"status"`

	// Confidence is the authority-weighted verdict confidence in [0,1].
	Confidence float64 `json:"confidence" yaml:"confidence"`

	// Supporting lists sources that back the claim.
	Supporting []SourceSupport `json:"supporting,omitempty" yaml:"supporting,omitempty"`

	// Contradicting lists sources that dispute the claim.
	Contradicting []SourceSupport `json:"contradicting,omitempty" yaml:"contradicting,omitempty"`
}
