package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/promptcanary/pkg/config"
)

// ScoringMetrics tracks scorer outcomes.
//
// Metrics:
//   - promptcanary_scorer_results_total: Scorer calls by scorer and status
//   - promptcanary_scorer_attempts: Attempts per scorer call, including retries
type ScoringMetrics struct {
	resultsTotal *prometheus.CounterVec
	attempts     *prometheus.HistogramVec
}

// NewScoringMetrics creates and registers scorer metrics with the provided registry.
func NewScoringMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *ScoringMetrics {
	sm := &ScoringMetrics{
		resultsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "scorer_results_total",
				Help:      "Total number of scorer calls by outcome",
			},
			[]string{"scorer", "status"},
		),

		attempts: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Name:      "scorer_attempts",
				Help:      "Attempts needed per scorer call",
				Buckets:   []float64{1, 2, 3, 5, 8},
			},
			[]string{"scorer"},
		),
	}

	registry.MustRegister(sm.resultsTotal, sm.attempts)

	return sm
}

// RecordResult records one scorer call.
func (sm *ScoringMetrics) RecordResult(scorer string, ok bool, attempts int) {
	status := "success"
	if !ok {
		status = "error"
	}
	sm.resultsTotal.WithLabelValues(scorer, status).Inc()
	if attempts > 0 {
		sm.attempts.WithLabelValues(scorer).Observe(float64(attempts))
	}
}
