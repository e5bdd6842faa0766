package telemetry

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// recordSpans installs a global tracer provider that keeps ended spans in
// memory for the duration of the test.
func recordSpans(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	previous := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() {
		otel.SetTracerProvider(previous)
		_ = provider.Shutdown(context.Background())
	})
	return recorder
}

func TestInitTracerDisabled(t *testing.T) {
	shutdown, err := InitTracer(context.Background(), DefaultConfig())
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
}

func TestGetSampler(t *testing.T) {
	assert.Contains(t, getSampler(Config{SamplerType: "never"}).Description(), "AlwaysOff")
	assert.Contains(t, getSampler(Config{SamplerType: "always"}).Description(), "AlwaysOn")
	assert.Contains(t, getSampler(Config{SamplerType: "ratio", SamplerRatio: 0.5}).Description(), "TraceIDRatioBased")
	assert.Contains(t, getSampler(Config{}).Description(), "AlwaysOn")
}

func TestWithSpanPropagatesError(t *testing.T) {
	boom := errors.New("boom")
	err := WithSpan(context.Background(), "review.advance", func(context.Context) error {
		return boom
	}, RunAttributes("run-1", "hackathon-debrief", "drafting", 1)...)
	assert.Equal(t, boom, err)

	called := false
	WithSpanFunc(context.Background(), "review.summary", func(context.Context) {
		called = true
	})
	assert.True(t, called)
}

func TestAttributes(t *testing.T) {
	attrs := SectionAttributes("pain_points", 2)
	assert.Equal(t, []attribute.KeyValue{
		attribute.String("section.id", "pain_points"),
		attribute.Int("section.attempt", 2),
	}, attrs)
	assert.Len(t, RunAttributes("r", "s", "p", 1), 4)
}

func TestSpanHelpers(t *testing.T) {
	recorder := recordSpans(t)
	boom := errors.New("boom")

	err := WithSpan(context.Background(), "review.advance", func(ctx context.Context) error {
		AddEvent(ctx, "section.overridden", attribute.String("section.id", "goal"))
		SetAttributes(ctx, attribute.String("run.result_phase", "finalized"))
		RecordError(ctx, boom)
		return nil
	})
	require.NoError(t, err)

	spans := recorder.Ended()
	require.Len(t, spans, 1)
	span := spans[0]
	assert.Equal(t, "review.advance", span.Name())
	assert.Contains(t, span.Attributes(), attribute.String("run.result_phase", "finalized"))

	events := span.Events()
	require.Len(t, events, 2)
	assert.Equal(t, "section.overridden", events[0].Name)
	assert.Equal(t, "exception", events[1].Name)
}
