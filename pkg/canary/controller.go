package canary

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// maxRecentEvents bounds the per-release in-memory event history.
const maxRecentEvents = 100

// Options configures a Controller. Nil fields fall back to defaults.
type Options struct {
	Registry Registry
	Rand     RandSource
	Policy   *Policy
	Weights  map[string]float64
	Audit    AuditSink
	Observer Observer
	Notifier Notifier
	Logger   *slog.Logger
}

// releaseEntry holds one release and the lock that serialises its transitions.
// Route, RecordEvaluation and GetStatus take the read lock; transitions take
// the write lock.
type releaseEntry struct {
	mu     sync.RWMutex
	rel    Release
	events []TransitionEvent
}

// Controller owns release state transitions and orchestrates routing,
// aggregation, statistics and the promotion rule.
//
// Controller is safe for concurrent use.
type Controller struct {
	registry Registry
	router   *TrafficRouter
	stats    *StatsStore
	counters RouteCounters
	rand     RandSource

	aggregator atomic.Pointer[ScoreAggregator]
	policy     atomic.Pointer[Policy]

	audit     AuditSink
	statsSink StatsSink
	observer  Observer
	notifier  Notifier
	logger    *slog.Logger
	now       func() time.Time

	mu       sync.RWMutex
	releases map[string]*releaseEntry
	byPrompt map[string]string
}

// CheckResult is returned by Check.
type CheckResult struct {
	ReleaseID      string         `json:"release_id"`
	Recommendation Recommendation `json:"recommendation"`
	Action         string         `json:"action"`
	Reason         string         `json:"reason"`
}

// Check actions.
const (
	ActionNone       = "none"
	ActionPromoted   = "promoted"
	ActionRolledBack = "rolled_back"
)

// NewController creates a controller from the given options.
func NewController(opts Options) (*Controller, error) {
	policy := DefaultPolicy()
	if opts.Policy != nil {
		policy = *opts.Policy
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	weights := opts.Weights
	if weights == nil {
		weights = DefaultWeights()
	}
	agg, err := NewScoreAggregator(weights)
	if err != nil {
		return nil, err
	}

	c := &Controller{
		registry: opts.Registry,
		stats:    NewStatsStore(),
		rand:     opts.Rand,
		audit:    opts.Audit,
		observer: opts.Observer,
		notifier: opts.Notifier,
		logger:   opts.Logger,
		now:      time.Now,
		releases: make(map[string]*releaseEntry),
		byPrompt: make(map[string]string),
	}
	if c.registry == nil {
		c.registry = NewMemoryRegistry()
	}
	if c.rand == nil {
		c.rand = NewRandomSource()
	}
	if c.audit == nil {
		c.audit = noopAudit{}
	}
	if sink, ok := c.audit.(StatsSink); ok {
		c.statsSink = sink
	}
	if c.observer == nil {
		c.observer = noopObserver{}
	}
	if c.notifier == nil {
		c.notifier = noopNotifier{}
	}
	if c.logger == nil {
		c.logger = slog.Default().With("component", "canary.controller")
	}
	c.router = NewTrafficRouter(c.registry)
	c.aggregator.Store(agg)
	c.policy.Store(&policy)

	return c, nil
}

// Policy returns the promotion policy currently in effect.
func (c *Controller) Policy() Policy {
	return *c.policy.Load()
}

// SetPolicy replaces the promotion policy. In-flight decisions keep the old one.
func (c *Controller) SetPolicy(p Policy) error {
	if err := p.Validate(); err != nil {
		return err
	}
	c.policy.Store(&p)
	c.logger.Info("promotion policy updated",
		"min_samples", p.MinSamples,
		"threshold", p.Threshold,
		"auto_rollback", p.AutoRollback,
		"auto_promote", p.AutoPromote,
	)
	return nil
}

// SetWeights replaces the aggregation weights.
func (c *Controller) SetWeights(weights map[string]float64) error {
	agg, err := NewScoreAggregator(weights)
	if err != nil {
		return err
	}
	c.aggregator.Store(agg)
	c.logger.Info("aggregation weights updated", "weights", weights)
	return nil
}

// Weights returns the aggregation weights currently in effect.
func (c *Controller) Weights() map[string]float64 {
	return c.aggregator.Load().Weights()
}

// Stats exposes the statistics store.
func (c *Controller) Stats() *StatsStore {
	return c.stats
}

// Registry exposes the version registry.
func (c *Controller) Registry() Registry {
	return c.registry
}

func (c *Controller) entry(releaseID string) (*releaseEntry, error) {
	c.mu.RLock()
	e, ok := c.releases[releaseID]
	c.mu.RUnlock()
	if !ok {
		return nil, &NotFoundError{Kind: "release", ID: releaseID}
	}
	return e, nil
}

// CreateRelease bootstraps a release for a prompt: version 1 is created from
// text and made active, and the release starts Stable.
func (c *Controller) CreateRelease(ctx context.Context, promptID, text string) (*Release, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.byPrompt[promptID]; ok {
		return nil, validationf("prompt_id", "prompt %q already has release %q", promptID, existing)
	}

	v, err := c.registry.CreateVersion(promptID, text)
	if err != nil {
		return nil, err
	}
	if err := c.registry.SetActive(v.ID, true); err != nil {
		return nil, err
	}
	v.IsActive = true

	now := c.now().UTC()
	e := &releaseEntry{rel: Release{
		ID:              uuid.New().String(),
		PromptID:        promptID,
		ActiveVersionID: v.ID,
		State:           StateStable,
		UpdatedAt:       now,
	}}
	c.releases[e.rel.ID] = e
	c.byPrompt[promptID] = e.rel.ID

	c.audit.RecordVersion(v)
	c.appendEvent(ctx, e, TransitionEvent{
		Kind:        EventCreated,
		State:       StateStable,
		ToVersionID: v.ID,
		Trigger:     TriggerOperator,
	})

	c.logger.Info("release created",
		"release_id", e.rel.ID,
		"prompt_id", promptID,
		"version_id", v.ID,
	)

	rel := e.rel
	return &rel, nil
}

// CreateVersion registers a new version for the release's prompt. The version
// does not receive traffic until StartCanary is called with it.
func (c *Controller) CreateVersion(ctx context.Context, releaseID, text string) (*PromptVersion, error) {
	e, err := c.entry(releaseID)
	if err != nil {
		return nil, err
	}
	e.mu.RLock()
	promptID := e.rel.PromptID
	e.mu.RUnlock()

	v, err := c.registry.CreateVersion(promptID, text)
	if err != nil {
		return nil, err
	}
	c.audit.RecordVersion(v)
	c.logger.Debug("version created", "release_id", releaseID, "version_id", v.ID, "number", v.Number)
	return v, nil
}

// GetRelease returns a copy of the release.
func (c *Controller) GetRelease(releaseID string) (*Release, error) {
	e, err := c.entry(releaseID)
	if err != nil {
		return nil, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	rel := e.rel
	return &rel, nil
}

// ListReleases returns copies of all releases ordered by ID.
func (c *Controller) ListReleases() []Release {
	c.mu.RLock()
	entries := make([]*releaseEntry, 0, len(c.releases))
	for _, e := range c.releases {
		entries = append(entries, e)
	}
	c.mu.RUnlock()

	out := make([]Release, 0, len(entries))
	for _, e := range entries {
		e.mu.RLock()
		out = append(out, e.rel)
		e.mu.RUnlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Route selects the version that serves one request.
func (c *Controller) Route(ctx context.Context, releaseID string) (Selection, error) {
	e, err := c.entry(releaseID)
	if err != nil {
		return Selection{}, err
	}

	e.mu.RLock()
	rel := e.rel
	e.mu.RUnlock()

	sel, err := c.router.Route(&rel, c.rand)
	if err != nil {
		return Selection{}, err
	}

	c.counters.Increment(releaseID, sel.IsCanary)
	c.observer.ObserveRoute(releaseID, sel.IsCanary)
	c.logger.Debug("request routed",
		"release_id", releaseID,
		"version_id", sel.VersionID,
		"is_canary", sel.IsCanary,
	)
	return sel, nil
}

// RecordEvaluation aggregates the category scores, folds the composite into
// the version's statistics and appends the evaluation to the audit trail.
// The version must be the release's active or canary version.
func (c *Controller) RecordEvaluation(ctx context.Context, releaseID, versionID string, scores map[string]float64) (*EvaluationRecord, error) {
	e, err := c.entry(releaseID)
	if err != nil {
		return nil, err
	}
	if _, err := c.registry.GetVersion(versionID); err != nil {
		return nil, err
	}

	composite, err := c.aggregator.Load().Aggregate(scores)
	if err != nil {
		return nil, err
	}

	// The read lock keeps a concurrent StartCanary from resetting the bucket
	// between the membership check and the update.
	e.mu.RLock()
	defer e.mu.RUnlock()

	isCanary := versionID == e.rel.CanaryVersionID && e.rel.State == StateCanary
	if !isCanary && versionID != e.rel.ActiveVersionID {
		return nil, validationf("version_id", "version %q is not live in release %q", versionID, releaseID)
	}

	now := c.now().UTC()
	st := c.stats.UpdateAt(releaseID, versionID, composite, now)

	cp := make(map[string]float64, len(scores))
	for k, v := range scores {
		cp[k] = v
	}
	rec := &EvaluationRecord{
		ID:             uuid.New().String(),
		ReleaseID:      releaseID,
		VersionID:      versionID,
		IsCanary:       isCanary,
		CompositeScore: composite,
		CategoryScores: cp,
		Timestamp:      now,
	}

	c.audit.RecordEvaluation(rec)
	c.recordStats(&st)
	c.observer.ObserveEvaluation(releaseID, isCanary, composite)

	out := *rec
	return &out, nil
}

// GetStatus returns statistics and the current recommendation for a release.
func (c *Controller) GetStatus(ctx context.Context, releaseID string) (*Status, error) {
	e, err := c.entry(releaseID)
	if err != nil {
		return nil, err
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	policy := c.Policy()
	st := &Status{
		Release:        e.rel,
		ActiveStats:    c.stats.Snapshot(releaseID, e.rel.ActiveVersionID),
		Recommendation: RecommendNone,
		Routed:         c.counters.Get(releaseID),
		RecentEvents:   recentEvents(e.events, 5),
	}
	if e.rel.State == StateCanary {
		cs := c.stats.Snapshot(releaseID, e.rel.CanaryVersionID)
		st.CanaryStats = &cs
		st.Recommendation = Recommend(st.ActiveStats, cs, policy.MinSamples, policy.Threshold)
	}
	c.observer.ObserveRecommendation(releaseID, st.Recommendation)
	return st, nil
}

// Events returns up to limit of the most recent transition events, newest first.
func (c *Controller) Events(releaseID string, limit int) ([]TransitionEvent, error) {
	e, err := c.entry(releaseID)
	if err != nil {
		return nil, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return recentEvents(e.events, limit), nil
}

// StartCanary moves a Stable release to Canary with the given version and split.
func (c *Controller) StartCanary(ctx context.Context, releaseID, versionID string, percent int) (*Release, error) {
	e, err := c.entry(releaseID)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.rel.State != StateStable {
		return nil, c.reject(&StateError{ReleaseID: releaseID, Operation: "start canary", State: e.rel.State})
	}
	if percent < 1 || percent > 100 {
		return nil, c.reject(validationf("percent", "must be 1-100, got %d", percent))
	}
	if versionID == e.rel.ActiveVersionID {
		return nil, c.reject(validationf("version_id", "version %q is already active", versionID))
	}
	v, err := c.registry.GetVersion(versionID)
	if err != nil {
		return nil, c.reject(err)
	}
	if v.PromptID != e.rel.PromptID {
		return nil, c.reject(validationf("version_id", "version %q belongs to prompt %q, not %q", versionID, v.PromptID, e.rel.PromptID))
	}

	now := c.now().UTC()

	// Fresh canary, fresh bucket. Active history is kept.
	st := c.stats.Reset(releaseID, versionID, now)
	c.counters.Reset(releaseID)
	c.recordStats(&st)

	e.rel.CanaryVersionID = versionID
	e.rel.CanaryPercent = percent
	e.rel.State = StateCanary
	e.rel.CycleStartedAt = now
	e.rel.UpdatedAt = now

	c.appendEvent(ctx, e, TransitionEvent{
		Kind:          EventCanaryStarted,
		State:         StateCanary,
		FromVersionID: e.rel.ActiveVersionID,
		ToVersionID:   versionID,
		Percent:       percent,
		Trigger:       TriggerOperator,
		At:            now,
	})

	c.logger.Info("canary started",
		"release_id", releaseID,
		"active_version_id", e.rel.ActiveVersionID,
		"canary_version_id", versionID,
		"percent", percent,
	)

	rel := e.rel
	return &rel, nil
}

// AdjustPercent changes the traffic split of a running canary.
func (c *Controller) AdjustPercent(ctx context.Context, releaseID string, percent int) (*Release, error) {
	e, err := c.entry(releaseID)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.rel.State != StateCanary {
		return nil, c.reject(&StateError{ReleaseID: releaseID, Operation: "adjust percent of", State: e.rel.State})
	}
	if percent < 1 || percent > 100 {
		return nil, c.reject(validationf("percent", "must be 1-100, got %d", percent))
	}

	previous := e.rel.CanaryPercent
	e.rel.CanaryPercent = percent
	e.rel.UpdatedAt = c.now().UTC()

	c.appendEvent(ctx, e, TransitionEvent{
		Kind:        EventPercentSet,
		State:       StateCanary,
		ToVersionID: e.rel.CanaryVersionID,
		Percent:     percent,
		Trigger:     TriggerOperator,
		Reason:      fmt.Sprintf("percent %d -> %d", previous, percent),
	})

	c.logger.Info("canary percent adjusted",
		"release_id", releaseID,
		"from", previous,
		"to", percent,
	)

	rel := e.rel
	return &rel, nil
}

// Promote makes the canary the new active version.
//
// Promotion is refused with an InsufficientDataError while the canary is still
// collecting samples unless opts.Force is set; forced promotions are recorded
// with TriggerOverride.
func (c *Controller) Promote(ctx context.Context, releaseID string, opts PromoteOptions) (*Release, error) {
	e, err := c.entry(releaseID)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.rel.State != StateCanary {
		return nil, c.reject(&StateError{ReleaseID: releaseID, Operation: "promote", State: e.rel.State})
	}

	policy := c.Policy()
	active, canary := c.pairStats(e)
	rec := Recommend(active, canary, policy.MinSamples, policy.Threshold)

	trigger := TriggerOperator
	if rec == RecommendCollecting {
		if !opts.Force {
			return nil, c.reject(&InsufficientDataError{
				ReleaseID:  releaseID,
				Samples:    canary.Count,
				MinSamples: policy.MinSamples,
			})
		}
		trigger = TriggerOverride
	}

	c.promoteLocked(ctx, e, trigger, rec, opts.Reason, active, canary)
	rel := e.rel
	return &rel, nil
}

// Rollback discards the canary. It is permitted at any sample count.
func (c *Controller) Rollback(ctx context.Context, releaseID, reason string) (*Release, error) {
	e, err := c.entry(releaseID)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.rel.State != StateCanary {
		return nil, c.reject(&StateError{ReleaseID: releaseID, Operation: "roll back", State: e.rel.State})
	}

	policy := c.Policy()
	active, canary := c.pairStats(e)
	rec := Recommend(active, canary, policy.MinSamples, policy.Threshold)

	c.rollbackLocked(ctx, e, TriggerOperator, rec, reason, active, canary)
	rel := e.rel
	return &rel, nil
}

// Check evaluates a canary release and applies the automatic actions enabled
// in the policy. Releases without a canary report RecommendNone.
func (c *Controller) Check(ctx context.Context, releaseID string) (*CheckResult, error) {
	e, err := c.entry(releaseID)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	res := &CheckResult{ReleaseID: releaseID, Recommendation: RecommendNone, Action: ActionNone}
	if e.rel.State != StateCanary {
		res.Reason = "no active canary"
		return res, nil
	}

	policy := c.Policy()
	active, canary := c.pairStats(e)
	rec := Recommend(active, canary, policy.MinSamples, policy.Threshold)
	res.Recommendation = rec
	c.observer.ObserveRecommendation(releaseID, rec)

	switch {
	case rec == RecommendCollecting:
		res.Reason = fmt.Sprintf("insufficient samples: %d/%d", canary.Count, policy.MinSamples)
	case rec == RecommendRollback && policy.AutoRollback:
		res.Reason = fmt.Sprintf("auto-rollback: canary mean %.3f < threshold %.2f after %d samples",
			canary.Mean, policy.Threshold, canary.Count)
		res.Action = ActionRolledBack
		c.rollbackLocked(ctx, e, TriggerAuto, rec, res.Reason, active, canary)
	case rec == RecommendPromote && policy.AutoPromote:
		res.Reason = fmt.Sprintf("auto-promote: canary mean %.3f >= threshold %.2f and beats active %.3f",
			canary.Mean, policy.Threshold, meanOrZero(active))
		res.Action = ActionPromoted
		c.promoteLocked(ctx, e, TriggerAuto, rec, res.Reason, active, canary)
	default:
		res.Reason = fmt.Sprintf("recommendation %s, no automatic action", rec)
	}

	return res, nil
}

// CheckAll runs Check for every release currently in canary.
func (c *Controller) CheckAll(ctx context.Context) []*CheckResult {
	var results []*CheckResult
	for _, rel := range c.ListReleases() {
		if rel.State != StateCanary {
			continue
		}
		if err := ctx.Err(); err != nil {
			break
		}
		res, err := c.Check(ctx, rel.ID)
		if err != nil {
			c.logger.Warn("canary check failed", "release_id", rel.ID, "error", err)
			continue
		}
		results = append(results, res)
	}
	return results
}

func (c *Controller) pairStats(e *releaseEntry) (Snapshot, Snapshot) {
	active := c.stats.Snapshot(e.rel.ID, e.rel.ActiveVersionID)
	canary := c.stats.Snapshot(e.rel.ID, e.rel.CanaryVersionID)
	return active, canary
}

// promoteLocked passes the release through Promoted and back to Stable with
// the canary as the new active version. e.mu must be held.
func (c *Controller) promoteLocked(ctx context.Context, e *releaseEntry, trigger Trigger, rec Recommendation, reason string, active, canary Snapshot) {
	oldActive := e.rel.ActiveVersionID
	newActive := e.rel.CanaryVersionID

	if err := c.registry.SetActive(newActive, true); err != nil {
		c.logger.Error("failed to activate version", "version_id", newActive, "error", err)
	}
	if err := c.registry.SetActive(oldActive, false); err != nil {
		c.logger.Error("failed to deactivate version", "version_id", oldActive, "error", err)
	}
	for _, id := range []string{newActive, oldActive} {
		if v, err := c.registry.GetVersion(id); err == nil {
			c.audit.RecordVersion(v)
		}
	}

	now := c.now().UTC()
	e.rel.ActiveVersionID = newActive
	e.rel.CanaryVersionID = ""
	e.rel.CanaryPercent = 0
	e.rel.State = StateStable
	e.rel.UpdatedAt = now

	evt := c.appendEvent(ctx, e, TransitionEvent{
		Kind:           EventPromoted,
		State:          StatePromoted,
		FromVersionID:  oldActive,
		ToVersionID:    newActive,
		Trigger:        trigger,
		Recommendation: rec,
		Reason:         reason,
		CanaryMean:     meanOrZero(canary),
		ActiveMean:     meanOrZero(active),
	})
	c.notifier.Notify(ctx, evt)

	c.logger.Info("canary promoted",
		"release_id", e.rel.ID,
		"version_id", newActive,
		"previous_version_id", oldActive,
		"trigger", trigger,
		"recommendation", rec,
		"canary_samples", canary.Count,
	)
}

// rollbackLocked passes the release through RolledBack and back to Stable with
// the original active version retained. e.mu must be held.
func (c *Controller) rollbackLocked(ctx context.Context, e *releaseEntry, trigger Trigger, rec Recommendation, reason string, active, canary Snapshot) {
	discarded := e.rel.CanaryVersionID

	e.rel.CanaryVersionID = ""
	e.rel.CanaryPercent = 0
	e.rel.State = StateStable
	e.rel.UpdatedAt = c.now().UTC()

	evt := c.appendEvent(ctx, e, TransitionEvent{
		Kind:           EventRolledBack,
		State:          StateRolledBack,
		FromVersionID:  discarded,
		ToVersionID:    e.rel.ActiveVersionID,
		Trigger:        trigger,
		Recommendation: rec,
		Reason:         reason,
		CanaryMean:     meanOrZero(canary),
		ActiveMean:     meanOrZero(active),
	})
	c.notifier.Notify(ctx, evt)

	c.logger.Info("canary rolled back",
		"release_id", e.rel.ID,
		"discarded_version_id", discarded,
		"trigger", trigger,
		"recommendation", rec,
		"reason", reason,
	)
}

// appendEvent stamps, stores and publishes a transition event along with the
// release snapshot it produced. A preset At is kept so a canary_started event
// carries the same instant as the cycle it opens. e.mu must be held.
func (c *Controller) appendEvent(ctx context.Context, e *releaseEntry, evt TransitionEvent) *TransitionEvent {
	evt.ID = uuid.New().String()
	evt.ReleaseID = e.rel.ID
	evt.PromptID = e.rel.PromptID
	if evt.At.IsZero() {
		evt.At = c.now().UTC()
	}

	e.events = append(e.events, evt)
	if len(e.events) > maxRecentEvents {
		e.events = e.events[len(e.events)-maxRecentEvents:]
	}

	rel := e.rel
	c.audit.RecordRelease(&rel)
	c.audit.RecordTransition(&evt)
	c.observer.ObserveTransition(&evt)
	return &evt
}

func (c *Controller) recordStats(st *BucketState) {
	if c.statsSink != nil {
		c.statsSink.RecordStats(st)
	}
}

func (c *Controller) reject(err error) error {
	c.logger.Warn("release command rejected", "error", err)
	return err
}

func recentEvents(events []TransitionEvent, limit int) []TransitionEvent {
	if limit <= 0 || limit > len(events) {
		limit = len(events)
	}
	out := make([]TransitionEvent, 0, limit)
	for i := len(events) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, events[i])
	}
	return out
}

func meanOrZero(s Snapshot) float64 {
	if !s.Valid() || math.IsNaN(s.Mean) {
		return 0
	}
	return s.Mean
}
