package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/promptcanary/pkg/canary"
	"mercator-hq/promptcanary/pkg/config"
)

// recommendations lists every value the recommendation gauge can take.
var recommendations = []canary.Recommendation{
	canary.RecommendCollecting,
	canary.RecommendPromote,
	canary.RecommendRollback,
	canary.RecommendHold,
	canary.RecommendNone,
}

// CanaryMetrics tracks routing, scoring and release lifecycle.
//
// Metrics:
//   - promptcanary_routes_total: Routing decisions by release and side
//   - promptcanary_evaluations_total: Accepted evaluations by release and side
//   - promptcanary_composite_score: Composite score distribution by side
//   - promptcanary_transitions_total: State transitions by kind and trigger
//   - promptcanary_canary_percent: Current canary traffic share per release
//   - promptcanary_recommendation: 1 for the current recommendation of a release
type CanaryMetrics struct {
	routesTotal      *prometheus.CounterVec
	evaluationsTotal *prometheus.CounterVec
	compositeScore   *prometheus.HistogramVec
	transitionsTotal *prometheus.CounterVec
	canaryPercent    *prometheus.GaugeVec
	recommendation   *prometheus.GaugeVec
}

// NewCanaryMetrics creates and registers canary metrics with the provided registry.
func NewCanaryMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *CanaryMetrics {
	cm := &CanaryMetrics{
		routesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "routes_total",
				Help:      "Total number of routing decisions",
			},
			[]string{"release_id", "side"},
		),

		evaluationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "evaluations_total",
				Help:      "Total number of accepted evaluations",
			},
			[]string{"release_id", "side"},
		),

		compositeScore: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Name:      "composite_score",
				Help:      "Distribution of composite evaluation scores",
				Buckets:   prometheus.LinearBuckets(0.1, 0.1, 10),
			},
			[]string{"side"},
		),

		transitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "transitions_total",
				Help:      "Total number of release state transitions",
			},
			[]string{"kind", "trigger"},
		),

		canaryPercent: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Name:      "canary_percent",
				Help:      "Share of traffic currently routed to the canary",
			},
			[]string{"release_id"},
		),

		recommendation: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Name:      "recommendation",
				Help:      "Current promotion recommendation (1 = active value)",
			},
			[]string{"release_id", "recommendation"},
		),
	}

	registry.MustRegister(
		cm.routesTotal,
		cm.evaluationsTotal,
		cm.compositeScore,
		cm.transitionsTotal,
		cm.canaryPercent,
		cm.recommendation,
	)

	return cm
}

// RecordRoute counts one routing decision.
func (cm *CanaryMetrics) RecordRoute(releaseID, side string) {
	cm.routesTotal.WithLabelValues(releaseID, side).Inc()
}

// RecordEvaluation counts one evaluation and observes its composite score.
func (cm *CanaryMetrics) RecordEvaluation(releaseID, side string, composite float64) {
	cm.evaluationsTotal.WithLabelValues(releaseID, side).Inc()
	cm.compositeScore.WithLabelValues(side).Observe(composite)
}

// RecordTransition counts one state transition.
func (cm *CanaryMetrics) RecordTransition(kind, trigger string) {
	cm.transitionsTotal.WithLabelValues(kind, trigger).Inc()
}

// SetCanaryPercent sets the canary traffic share for a release.
func (cm *CanaryMetrics) SetCanaryPercent(releaseID string, percent float64) {
	cm.canaryPercent.WithLabelValues(releaseID).Set(percent)
}

// SetRecommendation marks rec as the current recommendation for a release.
func (cm *CanaryMetrics) SetRecommendation(releaseID string, rec canary.Recommendation) {
	for _, r := range recommendations {
		v := 0.0
		if r == rec {
			v = 1
		}
		cm.recommendation.WithLabelValues(releaseID, string(r)).Set(v)
	}
}
