package scoring

import (
	"context"
	"fmt"
	"math"
	"strings"

	"mercator-hq/promptcanary/pkg/canary"
)

// Heuristic scoring constants.
const (
	OptimalPromptWords = 40
	lengthTolerance    = 60.0
	VaguenessPenalty   = 0.15
)

var vagueTerms = []string{"maybe", "sort of", "kind of", "roughly", "approximately"}

// HeuristicBreakdown holds the individual rule scores.
type HeuristicBreakdown struct {
	Length   float64 `json:"length_score"`
	Clarity  float64 `json:"clarity_score"`
	Toxicity float64 `json:"toxicity_score"`
}

// Mean returns the average of the rule scores.
func (b HeuristicBreakdown) Mean() float64 {
	return round3((b.Length + b.Clarity + b.Toxicity) / 3)
}

// HeuristicScorer is a fast, deterministic rule-based scorer. It rewards
// prompts near the optimal word count and penalises vague wording.
type HeuristicScorer struct{}

// Name implements Scorer.
func (HeuristicScorer) Name() string { return "heuristic" }

// Category implements Scorer.
func (HeuristicScorer) Category() string { return canary.CategoryHeuristic }

// Score implements Scorer.
func (h HeuristicScorer) Score(ctx context.Context, req Request) (float64, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return 0, fmt.Errorf("empty prompt")
	}
	return h.Breakdown(req.Prompt).Mean(), nil
}

// Breakdown computes the individual rule scores for a prompt.
func (HeuristicScorer) Breakdown(prompt string) HeuristicBreakdown {
	words := len(strings.Fields(prompt))
	length := clamp01(1 - math.Abs(float64(words-OptimalPromptWords))/lengthTolerance)

	lower := strings.ToLower(prompt)
	vagueness := 0
	for _, term := range vagueTerms {
		vagueness += strings.Count(lower, term)
	}
	clarity := math.Max(0, 1-VaguenessPenalty*float64(vagueness))

	return HeuristicBreakdown{
		Length:   round3(length),
		Clarity:  round3(clarity),
		Toxicity: 1.0,
	}
}

// FeedbackScore normalises a 1-5 human rating to [0,1].
func FeedbackScore(rating int) (float64, error) {
	if rating < 1 || rating > 5 {
		return 0, fmt.Errorf("rating must be 1-5, got %d", rating)
	}
	return float64(rating-1) / 4, nil
}
