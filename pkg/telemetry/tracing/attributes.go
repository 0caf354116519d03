package tracing

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys for canary spans.
const (
	AttrReleaseID      = attribute.Key("canary.release_id")
	AttrVersionID      = attribute.Key("canary.version_id")
	AttrIsCanary       = attribute.Key("canary.is_canary")
	AttrPercent        = attribute.Key("canary.percent")
	AttrRecommendation = attribute.Key("canary.recommendation")
	AttrComposite      = attribute.Key("canary.composite_score")
)

// SetRelease tags span with the release it operates on.
func SetRelease(span trace.Span, releaseID string) {
	if releaseID != "" {
		span.SetAttributes(AttrReleaseID.String(releaseID))
	}
}

// SetSelection tags span with a routing decision.
func SetSelection(span trace.Span, versionID string, isCanary bool) {
	span.SetAttributes(
		AttrVersionID.String(versionID),
		AttrIsCanary.Bool(isCanary),
	)
}
