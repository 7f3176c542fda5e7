package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// NoopMetrics is a MetricsRecorder that does nothing.
type NoopMetrics struct{}

var _ MetricsRecorder = NoopMetrics{}

func (NoopMetrics) RecordSend(_ context.Context, _, _ string, _ int) {}

func (NoopMetrics) RecordUnrouted(_ context.Context, _, _ string) {}

func (NoopMetrics) RecordDeliveryFailure(_ context.Context, _, _, _ string) {}

func (NoopMetrics) RecordHandle(_ context.Context, _, _ string, _ time.Duration, _ error) {}

func (NoopMetrics) RecordRunnerExit(_ context.Context, _ string, _ error) {}

// NoopSpanManager is a SpanManager that does nothing.
type NoopSpanManager struct{}

var _ SpanManager = NoopSpanManager{}

var noopSpan = noop.Span{}

// StartRunSpan returns the context unchanged and a no-op span.
func (NoopSpanManager) StartRunSpan(ctx context.Context, _ string) (context.Context, trace.Span) {
	return ctx, noopSpan
}

// StartHandleSpan returns the context unchanged and a no-op span.
func (NoopSpanManager) StartHandleSpan(ctx context.Context, _, _, _ string) (context.Context, trace.Span) {
	return ctx, noopSpan
}

// EndSpanWithError does nothing.
func (NoopSpanManager) EndSpanWithError(_ trace.Span, _ error) {}
