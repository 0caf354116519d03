// Package canary implements canary routing and promotion for prompt versions.
//
// A Release binds a prompt to one active PromptVersion and, while a canary
// cycle runs, a second canary version that receives a configured percentage
// of traffic. The package is organised around five collaborators:
//
//   - TrafficRouter picks active or canary for each request from an injected RandSource
//   - ScoreAggregator reduces per-category scores in [0,1] to one composite
//   - StatsStore keeps Welford running mean/variance per (release, version)
//   - Recommend applies the threshold promotion rule
//   - Controller owns the Stable -> Canary -> {Promoted, RolledBack} -> Stable state machine
//
// # Decision Rule
//
// With MinSamples n and Threshold t, a canary with fewer than n samples is
// Collecting. Otherwise it is Rollback when its mean is below t, Promote when
// its mean is at least t and above the active mean, and Hold when it clears t
// without beating the active version. This is a threshold comparison and not
// a statistical significance test; variance is tracked but not consulted.
//
// # Concurrency
//
// Routing is lock-free apart from the RandSource. Statistics updates lock only
// the bucket they touch. Transitions on one release are serialised by a
// per-release lock, and evaluations hold that lock for reading so a canary
// restart cannot interleave with a statistics update.
//
// # Usage
//
//	ctrl, err := canary.NewController(canary.Options{Rand: canary.NewSeededSource(42)})
//	if err != nil {
//	    return err
//	}
//	rel, _ := ctrl.CreateRelease(ctx, "prompt-1", "Summarise the ticket.")
//	v2, _ := ctrl.CreateVersion(ctx, rel.ID, "Summarise the ticket in two sentences.")
//	_, _ = ctrl.StartCanary(ctx, rel.ID, v2.ID, 10)
//
//	sel, _ := ctrl.Route(ctx, rel.ID)
//	_, _ = ctrl.RecordEvaluation(ctx, rel.ID, sel.VersionID, map[string]float64{
//	    canary.CategoryHeuristic:    0.8,
//	    canary.CategoryAIEvaluation: 0.9,
//	})
package canary
