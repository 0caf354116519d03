package canary

import (
	"encoding/json"
	"math"
	"time"
)

// State is the lifecycle state of a release.
type State string

const (
	// StateStable means one active version serves all traffic.
	StateStable State = "stable"

	// StateCanary means a canary version receives a share of traffic.
	StateCanary State = "canary"

	// StatePromoted is the transient state a release passes through when the
	// canary replaces the active version. It is only observed in the audit trail.
	StatePromoted State = "promoted"

	// StateRolledBack is the transient state a release passes through when the
	// canary is discarded. It is only observed in the audit trail.
	StateRolledBack State = "rolled_back"
)

// PromptVersion is an immutable revision of a prompt text.
// Only IsActive may change after creation, and only through a promotion.
type PromptVersion struct {
	// ID uniquely identifies the version.
	ID string `json:"id"`

	// PromptID is the prompt that owns this version.
	PromptID string `json:"prompt_id"`

	// Number is the per-prompt sequence number, starting at 1.
	Number int `json:"number"`

	// Text is the prompt text served to callers.
	Text string `json:"text"`

	// CreatedAt is when the version was registered.
	CreatedAt time.Time `json:"created_at"`

	// IsActive is true for the single version currently live for the prompt.
	IsActive bool `json:"is_active"`
}

// Release binds a prompt to its active version and, optionally, a canary.
//
// Invariants:
//   - CanaryVersionID != "" iff State == StateCanary
//   - CanaryPercent == 0 iff no canary is running
type Release struct {
	ID              string    `json:"id"`
	PromptID        string    `json:"prompt_id"`
	ActiveVersionID string    `json:"active_version_id"`
	CanaryVersionID string    `json:"canary_version_id,omitempty"`
	CanaryPercent   int       `json:"canary_percent"`
	State           State     `json:"state"`
	CycleStartedAt  time.Time `json:"cycle_started_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// MarshalJSON omits cycle_started_at for releases that never ran a canary.
func (r Release) MarshalJSON() ([]byte, error) {
	type plain Release
	w := struct {
		plain
		CycleStartedAt *time.Time `json:"cycle_started_at,omitempty"`
	}{plain: plain(r)}
	if !r.CycleStartedAt.IsZero() {
		at := r.CycleStartedAt
		w.CycleStartedAt = &at
	}
	return json.Marshal(w)
}

// HasCanary reports whether a canary version is receiving traffic.
func (r *Release) HasCanary() bool {
	return r.CanaryVersionID != "" && r.CanaryPercent > 0
}

// Category names recognised by the default aggregator weights.
const (
	CategoryHeuristic     = "heuristic"
	CategoryAIEvaluation  = "ai_evaluation"
	CategoryMLMetrics     = "ml_metrics"
	CategoryHumanFeedback = "human_feedback"
)

// EvaluationRecord is the write-once audit entry produced for every scored request.
type EvaluationRecord struct {
	ID             string             `json:"id"`
	ReleaseID      string             `json:"release_id"`
	VersionID      string             `json:"version_id"`
	IsCanary       bool               `json:"is_canary"`
	CompositeScore float64            `json:"composite_score"`
	CategoryScores map[string]float64 `json:"category_scores"`
	Timestamp      time.Time          `json:"timestamp"`
}

// Snapshot is a point-in-time copy of a statistics bucket.
type Snapshot struct {
	Count       int64     `json:"count"`
	Mean        float64   `json:"mean"`
	Variance    float64   `json:"variance"`
	LastUpdated time.Time `json:"last_updated,omitempty"`
}

// BucketState is the persisted form of a statistics bucket.
//
// Since is when the bucket was last reset by a canary cycle; it is zero for
// the version a release was created with. A state supersedes another for the
// same bucket when it belongs to a later cycle or, within a cycle, holds more
// samples.
type BucketState struct {
	ReleaseID   string    `json:"release_id"`
	VersionID   string    `json:"version_id"`
	Since       time.Time `json:"since"`
	Count       int64     `json:"count"`
	Mean        float64   `json:"mean"`
	M2          float64   `json:"m2"`
	LastUpdated time.Time `json:"last_updated"`
}

// Supersedes reports whether b should replace other in storage.
func (b *BucketState) Supersedes(other *BucketState) bool {
	if !b.Since.Equal(other.Since) {
		return b.Since.After(other.Since)
	}
	return b.Count >= other.Count
}

// Valid reports whether the snapshot holds at least one sample.
// A snapshot with no samples has a NaN mean and must not be compared.
func (s Snapshot) Valid() bool {
	return s.Count > 0 && !math.IsNaN(s.Mean)
}

// StdDev returns the sample standard deviation.
func (s Snapshot) StdDev() float64 {
	return math.Sqrt(s.Variance)
}

// Recommendation is the outcome of the promotion rule.
type Recommendation string

const (
	// RecommendCollecting means the canary has fewer than the minimum samples.
	RecommendCollecting Recommendation = "collecting"

	// RecommendPromote means the canary clears the threshold and beats the active version.
	RecommendPromote Recommendation = "promote"

	// RecommendRollback means the canary has enough samples and misses the threshold.
	RecommendRollback Recommendation = "rollback"

	// RecommendHold means the canary clears the threshold but does not beat the active version.
	RecommendHold Recommendation = "hold"

	// RecommendNone is reported for releases with no canary running.
	RecommendNone Recommendation = "none"
)

// Trigger records who initiated a transition.
type Trigger string

const (
	// TriggerOperator is an explicit operator command backed by the data.
	TriggerOperator Trigger = "operator"

	// TriggerOverride is an operator promotion forced before enough samples were collected.
	TriggerOverride Trigger = "override"

	// TriggerAuto is a transition applied by the periodic canary check.
	TriggerAuto Trigger = "auto"
)

// EventKind identifies the transition recorded in a TransitionEvent.
type EventKind string

const (
	EventCreated       EventKind = "created"
	EventCanaryStarted EventKind = "canary_started"
	EventPercentSet    EventKind = "percent_adjusted"
	EventPromoted      EventKind = "promoted"
	EventRolledBack    EventKind = "rolled_back"
)

// TransitionEvent is the audit entry for a release state change.
type TransitionEvent struct {
	ID             string         `json:"id"`
	ReleaseID      string         `json:"release_id"`
	PromptID       string         `json:"prompt_id"`
	Kind           EventKind      `json:"kind"`
	State          State          `json:"state"`
	FromVersionID  string         `json:"from_version_id,omitempty"`
	ToVersionID    string         `json:"to_version_id,omitempty"`
	Percent        int            `json:"percent"`
	Trigger        Trigger        `json:"trigger"`
	Recommendation Recommendation `json:"recommendation,omitempty"`
	Reason         string         `json:"reason,omitempty"`
	CanaryMean     float64        `json:"canary_mean"`
	ActiveMean     float64        `json:"active_mean"`
	At             time.Time      `json:"at"`
}

// Selection is the result of routing a single request.
type Selection struct {
	Text      string `json:"text"`
	IsCanary  bool   `json:"is_canary"`
	VersionID string `json:"version_id"`
}

// RouteCounts reports how many requests were served by each side of a release.
type RouteCounts struct {
	Active int64 `json:"active"`
	Canary int64 `json:"canary"`
}

// Status is the read model returned by GetStatus.
type Status struct {
	Release        Release           `json:"release"`
	ActiveStats    Snapshot          `json:"active_stats"`
	CanaryStats    *Snapshot         `json:"canary_stats,omitempty"`
	Recommendation Recommendation    `json:"recommendation"`
	Routed         RouteCounts       `json:"routed"`
	RecentEvents   []TransitionEvent `json:"recent_events,omitempty"`
}

// PromoteOptions controls an operator promotion.
type PromoteOptions struct {
	// Force allows promotion while the canary is still collecting samples.
	Force bool

	// Reason is stored in the audit trail.
	Reason string
}
