// Package tracing provides OpenTelemetry tracing for the canary service.
//
// When telemetry.tracing.enabled is set, spans are exported over OTLP gRPC
// with a parent-based sampler ("always", "never" or "ratio"). Otherwise a
// noop tracer is used and instrumentation costs next to nothing.
//
// The HTTP middleware continues W3C trace context from callers and names
// server spans after the matched route pattern. Handlers add canary
// attributes (release, version, canary side) to the request span.
//
//	tracer, err := tracing.New(&cfg.Telemetry.Tracing, version)
//	defer tracer.Shutdown(context.Background())
//	handler = tracer.HTTPMiddleware(handler)
package tracing
