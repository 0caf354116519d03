package canary

import "context"

// AuditSink receives the append-only audit trail.
// Implementations must not block; the controller calls them while holding
// the release lock.
type AuditSink interface {
	RecordVersion(v *PromptVersion)
	RecordRelease(r *Release)
	RecordEvaluation(rec *EvaluationRecord)
	RecordTransition(evt *TransitionEvent)
}

// StatsSink is implemented by audit sinks that also persist statistics
// buckets. The controller hands it the bucket state after every change so a
// restart does not depend on evaluation records that retention has pruned.
type StatsSink interface {
	RecordStats(st *BucketState)
}

// Observer receives telemetry about controller activity.
type Observer interface {
	ObserveRoute(releaseID string, isCanary bool)
	ObserveEvaluation(releaseID string, isCanary bool, composite float64)
	ObserveTransition(evt *TransitionEvent)
	ObserveRecommendation(releaseID string, rec Recommendation)
}

// Notifier delivers promote and rollback events to external systems.
// Delivery is best-effort and must not block the caller.
type Notifier interface {
	Notify(ctx context.Context, evt *TransitionEvent)
}

type noopAudit struct{}

func (noopAudit) RecordVersion(*PromptVersion)       {}
func (noopAudit) RecordRelease(*Release)             {}
func (noopAudit) RecordEvaluation(*EvaluationRecord) {}
func (noopAudit) RecordTransition(*TransitionEvent)  {}

type noopObserver struct{}

func (noopObserver) ObserveRoute(string, bool)                    {}
func (noopObserver) ObserveEvaluation(string, bool, float64)      {}
func (noopObserver) ObserveTransition(*TransitionEvent)           {}
func (noopObserver) ObserveRecommendation(string, Recommendation) {}

type noopNotifier struct{}

func (noopNotifier) Notify(context.Context, *TransitionEvent) {}
