package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"mercator-hq/promptcanary/pkg/canary"
	"mercator-hq/promptcanary/pkg/config"
)

// OtherRelease is the release_id label used once the cardinality limit is hit.
const OtherRelease = "other"

// DefaultMaxReleases caps the number of distinct release_id label values.
const DefaultMaxReleases = 1000

// Collector owns the Prometheus registry and every metric the service
// exports. It implements canary.Observer so the controller can report
// routing, evaluation and transition activity directly.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	canaryMetrics  *CanaryMetrics
	requestMetrics *RequestMetrics
	scoringMetrics *ScoringMetrics

	releases *CardinalityLimiter
}

var _ canary.Observer = (*Collector)(nil)

// NewCollector creates a collector. If registry is nil a fresh registry is
// created with the Go runtime and process collectors attached.
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if cfg == nil {
		cfg = &config.MetricsConfig{Enabled: true}
	}
	if cfg.Namespace == "" {
		cfg.Namespace = config.DefaultMetricsNamespace
	}
	if registry == nil {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	return &Collector{
		config:         cfg,
		registry:       registry,
		canaryMetrics:  NewCanaryMetrics(cfg, registry),
		requestMetrics: NewRequestMetrics(cfg, registry),
		scoringMetrics: NewScoringMetrics(cfg, registry),
		releases:       NewCardinalityLimiter(DefaultMaxReleases),
	}
}

// ObserveRoute counts a served routing decision.
func (c *Collector) ObserveRoute(releaseID string, isCanary bool) {
	if !c.config.Enabled {
		return
	}
	c.canaryMetrics.RecordRoute(c.releaseLabel(releaseID), side(isCanary))
}

// ObserveEvaluation records an accepted composite score.
func (c *Collector) ObserveEvaluation(releaseID string, isCanary bool, composite float64) {
	if !c.config.Enabled {
		return
	}
	c.canaryMetrics.RecordEvaluation(c.releaseLabel(releaseID), side(isCanary), composite)
}

// ObserveTransition counts a release state transition.
func (c *Collector) ObserveTransition(evt *canary.TransitionEvent) {
	if !c.config.Enabled || evt == nil {
		return
	}
	c.canaryMetrics.RecordTransition(string(evt.Kind), string(evt.Trigger))
	c.canaryMetrics.SetCanaryPercent(c.releaseLabel(evt.ReleaseID), canaryPercent(evt))
}

// ObserveRecommendation publishes the latest recommendation for a release.
func (c *Collector) ObserveRecommendation(releaseID string, rec canary.Recommendation) {
	if !c.config.Enabled {
		return
	}
	c.canaryMetrics.SetRecommendation(c.releaseLabel(releaseID), rec)
}

// RecordHTTPRequest records a completed API request.
func (c *Collector) RecordHTTPRequest(route, method string, status int, duration time.Duration) {
	if !c.config.Enabled {
		return
	}
	c.requestMetrics.RecordRequest(route, method, status, duration)
}

// RecordScorer records the outcome of one scorer call.
func (c *Collector) RecordScorer(scorer string, ok bool, attempts int) {
	if !c.config.Enabled {
		return
	}
	c.scoringMetrics.RecordResult(scorer, ok, attempts)
}

// RegisterRecorderStats exports the audit recorder counters. stats is
// called at scrape time.
func (c *Collector) RegisterRecorderStats(stats func() (written, dropped, failed int64)) {
	if stats == nil {
		return
	}
	for _, m := range []struct {
		name string
		help string
		pick func(w, d, f int64) int64
	}{
		{"recorder_written_total", "Audit records persisted to storage", func(w, _, _ int64) int64 { return w }},
		{"recorder_dropped_total", "Audit records dropped because the buffer was full or closed", func(_, d, _ int64) int64 { return d }},
		{"recorder_failed_total", "Audit records whose storage write failed", func(_, _, f int64) int64 { return f }},
	} {
		pick := m.pick
		c.registry.MustRegister(prometheus.NewCounterFunc(
			prometheus.CounterOpts{
				Namespace: c.config.Namespace,
				Name:      m.name,
				Help:      m.help,
			},
			func() float64 { return float64(pick(stats())) },
		))
	}
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func (c *Collector) releaseLabel(releaseID string) string {
	if c.releases.Allow(releaseID) {
		return releaseID
	}
	return OtherRelease
}

func side(isCanary bool) string {
	if isCanary {
		return "canary"
	}
	return "active"
}

func canaryPercent(evt *canary.TransitionEvent) float64 {
	switch evt.Kind {
	case canary.EventCanaryStarted, canary.EventPercentSet:
		return float64(evt.Percent)
	default:
		return 0
	}
}

// CardinalityLimiter bounds the number of distinct values of a label.
type CardinalityLimiter struct {
	maxCardinality int
	current        map[string]struct{}
	mu             sync.RWMutex
}

// NewCardinalityLimiter creates a limiter admitting at most maxCardinality values.
func NewCardinalityLimiter(maxCardinality int) *CardinalityLimiter {
	return &CardinalityLimiter{
		maxCardinality: maxCardinality,
		current:        make(map[string]struct{}),
	}
}

// Allow reports whether value may be used as a label. Values already seen
// are always allowed.
func (cl *CardinalityLimiter) Allow(value string) bool {
	cl.mu.RLock()
	_, exists := cl.current[value]
	cl.mu.RUnlock()
	if exists {
		return true
	}

	cl.mu.Lock()
	defer cl.mu.Unlock()

	if _, exists := cl.current[value]; exists {
		return true
	}
	if len(cl.current) >= cl.maxCardinality {
		return false
	}
	cl.current[value] = struct{}{}
	return true
}

// Count returns the number of admitted values.
func (cl *CardinalityLimiter) Count() int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return len(cl.current)
}
