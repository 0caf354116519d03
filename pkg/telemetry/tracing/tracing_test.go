package tracing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"mercator-hq/promptcanary/pkg/config"
)

func recordingTracer(t *testing.T) (*Tracer, *tracetest.SpanRecorder) {
	t.Helper()
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return NewWithProvider(tp), sr
}

func TestNew(t *testing.T) {
	_, err := New(nil, "test")
	require.Error(t, err)

	disabled, err := New(&config.TracingConfig{Enabled: false}, "test")
	require.NoError(t, err)
	assert.False(t, disabled.Enabled())
	_, span := disabled.Start(context.Background(), "noop")
	assert.False(t, span.SpanContext().IsValid())
	span.End()
	require.NoError(t, disabled.Shutdown(context.Background()))

	_, err = New(&config.TracingConfig{Enabled: true, Sampler: "sometimes", Endpoint: "localhost:4317"}, "test")
	require.Error(t, err)

	enabled, err := New(&config.TracingConfig{
		Enabled:     true,
		Sampler:     SamplerAlways,
		Endpoint:    "localhost:4317",
		Insecure:    true,
		ServiceName: "promptcanary-test",
		Timeout:     100 * time.Millisecond,
	}, "test")
	require.NoError(t, err)
	assert.True(t, enabled.Enabled())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_ = enabled.Shutdown(ctx)
}

func TestCreateSampler(t *testing.T) {
	for _, s := range []string{SamplerAlways, SamplerNever} {
		_, err := createSampler(s, 0)
		require.NoError(t, err, s)
	}
	_, err := createSampler(SamplerRatio, 0.25)
	require.NoError(t, err)
	_, err = createSampler(SamplerRatio, 1.5)
	require.Error(t, err)
	_, err = createSampler("", 0)
	require.Error(t, err)
}

func TestSpanHelpers(t *testing.T) {
	tracer, sr := recordingTracer(t)

	ctx, span := tracer.Start(context.Background(), "canary.route")
	assert.NotEmpty(t, TraceID(ctx))
	SetRelease(span, "r1")
	SetSelection(span, "v2", true)
	SetStatus(span, errors.New("release not found"))
	span.End()

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Contains(t, spans[0].Attributes(), AttrReleaseID.String("r1"))
	assert.Contains(t, spans[0].Attributes(), AttrIsCanary.Bool(true))
	assert.Len(t, spans[0].Events(), 1)

	assert.Empty(t, TraceID(context.Background()))
}

func TestHTTPMiddleware(t *testing.T) {
	tracer, sr := recordingTracer(t)
	_, err := New(&config.TracingConfig{}, "test") // installs the propagator
	require.NoError(t, err)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/releases/{id}/route", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	h := tracer.HTTPMiddleware(mux)

	req := httptest.NewRequest(http.MethodGet, "/v1/releases/abc/route", nil)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", rec.Header().Get("X-Trace-ID"))

	spans := sr.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "GET /v1/releases/{id}/route", spans[0].Name())
	assert.Equal(t, "00f067aa0ba902b7", spans[0].Parent().SpanID().String())
	assert.Contains(t, spans[0].Attributes(), attribute.Int("http.response.status_code", http.StatusTeapot))
}
