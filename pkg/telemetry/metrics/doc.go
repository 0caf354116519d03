// Package metrics exports Prometheus metrics for the canary service.
//
// Collector implements canary.Observer, so wiring it into the controller
// is enough to publish routing, evaluation, transition and recommendation
// metrics. The HTTP server records request metrics through
// RecordHTTPRequest and the scoring endpoint reports scorer outcomes
// through RecordScorer.
//
// release_id labels are capped by a CardinalityLimiter; releases beyond the
// cap are reported under "other".
//
//	# HELP promptcanary_routes_total Total number of routing decisions
//	# TYPE promptcanary_routes_total counter
//	promptcanary_routes_total{release_id="3f0c...",side="canary"} 112
package metrics
