package canary

import "math"

// Default promotion policy values.
const (
	DefaultMinSamples = 30
	DefaultThreshold  = 0.55
)

// Policy is the configuration consumed by the promotion rule.
type Policy struct {
	// MinSamples is the number of canary samples required before deciding.
	MinSamples int64

	// Threshold is the absolute bar the canary mean must reach.
	Threshold float64

	// AutoRollback lets Check roll back a canary recommended for rollback.
	AutoRollback bool

	// AutoPromote lets Check promote a canary recommended for promotion.
	AutoPromote bool
}

// DefaultPolicy returns the default promotion policy.
func DefaultPolicy() Policy {
	return Policy{
		MinSamples:   DefaultMinSamples,
		Threshold:    DefaultThreshold,
		AutoRollback: true,
	}
}

// Validate checks the policy bounds.
func (p Policy) Validate() error {
	if p.MinSamples < 1 {
		return validationf("min_samples", "must be >= 1, got %d", p.MinSamples)
	}
	if math.IsNaN(p.Threshold) || p.Threshold < 0 || p.Threshold > 1 {
		return validationf("threshold", "must be in [0,1], got %v", p.Threshold)
	}
	return nil
}

// Recommend applies the threshold rule to the active and canary statistics.
//
// This is an explicit threshold comparison, not a significance test; the
// tracked variance is not consulted. When the active bucket has no samples
// there is no incumbent to beat and only the threshold applies.
func Recommend(active, canary Snapshot, minSamples int64, threshold float64) Recommendation {
	if canary.Count < minSamples || !canary.Valid() {
		return RecommendCollecting
	}
	if canary.Mean < threshold {
		return RecommendRollback
	}
	if !active.Valid() || canary.Mean > active.Mean {
		return RecommendPromote
	}
	return RecommendHold
}
