package canary

import (
	"math"
	"sort"
)

// weightSumTolerance absorbs float rounding when checking that weights sum to 1.
const weightSumTolerance = 1e-9

// DefaultWeights returns the default category weights.
func DefaultWeights() map[string]float64 {
	return map[string]float64{
		CategoryHeuristic:     0.20,
		CategoryAIEvaluation:  0.40,
		CategoryMLMetrics:     0.30,
		CategoryHumanFeedback: 0.10,
	}
}

// ScoreAggregator reduces per-category scores to one composite score.
// It is immutable after construction and safe for concurrent use.
type ScoreAggregator struct {
	weights    map[string]float64
	categories []string
}

// NewScoreAggregator validates the weights and returns an aggregator.
// Weights must be non-negative and sum to 1.0.
func NewScoreAggregator(weights map[string]float64) (*ScoreAggregator, error) {
	if len(weights) == 0 {
		return nil, validationf("weights", "at least one category weight is required")
	}

	sum := 0.0
	cp := make(map[string]float64, len(weights))
	categories := make([]string, 0, len(weights))
	for name, w := range weights {
		if math.IsNaN(w) || w < 0 {
			return nil, validationf("weights", "weight for %q must be >= 0, got %v", name, w)
		}
		sum += w
		cp[name] = w
		categories = append(categories, name)
	}
	if math.Abs(sum-1.0) > weightSumTolerance {
		return nil, validationf("weights", "must sum to 1.0, got %.6f", sum)
	}
	sort.Strings(categories)

	return &ScoreAggregator{weights: cp, categories: categories}, nil
}

// Weights returns a copy of the configured weights.
func (a *ScoreAggregator) Weights() map[string]float64 {
	out := make(map[string]float64, len(a.weights))
	for k, v := range a.weights {
		out[k] = v
	}
	return out
}

// Aggregate computes sum(w_i*s_i)/sum(w_i) over the categories present in scores.
//
// Absent categories are skipped and the remaining weights renormalised.
// Scores outside [0,1] and unknown categories are rejected. If no known
// category is present the result is a MissingInputError.
func (a *ScoreAggregator) Aggregate(scores map[string]float64) (float64, error) {
	var weighted, total float64
	present := 0

	for name, s := range scores {
		w, ok := a.weights[name]
		if !ok {
			return 0, validationf("category_scores", "unknown category %q (known: %v)", name, a.categories)
		}
		if math.IsNaN(s) || s < 0 || s > 1 {
			return 0, validationf("category_scores", "score for %q must be in [0,1], got %v", name, s)
		}
		weighted += w * s
		total += w
		present++
	}

	if present == 0 {
		return 0, &MissingInputError{Known: a.categories}
	}
	if total == 0 {
		// Only zero-weight categories were supplied.
		return 0, &MissingInputError{Known: a.categories}
	}

	return weighted / total, nil
}
