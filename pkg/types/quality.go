// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// Weights for the overall quality score. Claim verification and accuracy
// dominate; freshness matters least. The weights sum to 1.
const (
	WeightAccuracy          = 0.25
	WeightCompleteness      = 0.20
	WeightFreshness         = 0.10
	WeightSourceQuality     = 0.20
	WeightClaimVerification = 0.25
)

// QualityScore is the composite confidence for a run, recomputed after
// each phase. Every sub-score is clamped to [0,1] and Overall is the
// weighted mean of the sub-scores using the Weight* constants.
type QualityScore struct {
	Overall           float64 `json:"overall" yaml:"overall"`
	Accuracy          float64 `json:"accuracy" yaml:"accuracy"`
	Completeness      float64 `json:"completeness" yaml:"completeness"`
	Freshness         float64 `json:"freshness" yaml:"freshness"`
	SourceQuality     float64 `json:"source_quality" yaml:"source_quality"`
	ClaimVerification float64 `json:"claim_verification" yaml:"claim_verification"`
}

// Recompute clamps every sub-score and recalculates Overall.
func (q *QualityScore) Recompute() {
	q.Accuracy = Clamp01(q.Accuracy)
	q.Completeness = Clamp01(q.Completeness)
	q.Freshness = Clamp01(q.Freshness)
	q.SourceQuality = Clamp01(q.SourceQuality)
	q.ClaimVerification = Clamp01(q.ClaimVerification)
	q.Overall = Clamp01(
		q.Accuracy*WeightAccuracy +
			q.Completeness*WeightCompleteness +
			q.Freshness*WeightFreshness +
			q.SourceQuality*WeightSourceQuality +
			q.ClaimVerification*WeightClaimVerification)
}

// Clamp01 restricts v to the [0,1] interval.
func Clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
