package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records eventflow metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordSend records one Send call fanning out to n destinations.
	RecordSend(ctx context.Context, producer, kind string, destinations int)

	// RecordUnrouted records a Send for a kind nobody consumes.
	RecordUnrouted(ctx context.Context, producer, kind string)

	// RecordDeliveryFailure records a failed delivery to one destination.
	RecordDeliveryFailure(ctx context.Context, producer, destination, kind string)

	// RecordHandle records one handler invocation.
	RecordHandle(ctx context.Context, runner, kind string, duration time.Duration, err error)

	// RecordRunnerExit records a runner goroutine ending.
	RecordRunnerExit(ctx context.Context, runner string, err error)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	sent             metric.Int64Counter
	delivered        metric.Int64Counter
	unrouted         metric.Int64Counter
	deliveryFailures metric.Int64Counter
	handled          metric.Int64Counter
	handleErrors     metric.Int64Counter
	handleLatency    metric.Float64Histogram
	runnerExits      metric.Int64Counter
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("eventflow")

	sent, err := meter.Int64Counter("eventflow.envelopes.sent",
		metric.WithDescription("Number of envelopes sent through a proxy"),
	)
	if err != nil {
		return nil, err
	}

	delivered, err := meter.Int64Counter("eventflow.envelopes.delivered",
		metric.WithDescription("Number of envelope deliveries attempted to destinations"),
	)
	if err != nil {
		return nil, err
	}

	unrouted, err := meter.Int64Counter("eventflow.envelopes.unrouted",
		metric.WithDescription("Number of envelopes dropped because no app consumes their kind"),
	)
	if err != nil {
		return nil, err
	}

	deliveryFailures, err := meter.Int64Counter("eventflow.delivery.failures",
		metric.WithDescription("Number of failed deliveries to a destination"),
	)
	if err != nil {
		return nil, err
	}

	handled, err := meter.Int64Counter("eventflow.handle.count",
		metric.WithDescription("Number of handler invocations"),
	)
	if err != nil {
		return nil, err
	}

	handleErrors, err := meter.Int64Counter("eventflow.handle.errors",
		metric.WithDescription("Number of handler errors"),
	)
	if err != nil {
		return nil, err
	}

	handleLatency, err := meter.Float64Histogram("eventflow.handle.latency_ms",
		metric.WithDescription("Handler latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	runnerExits, err := meter.Int64Counter("eventflow.runner.exits",
		metric.WithDescription("Number of runner goroutine exits"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		sent:             sent,
		delivered:        delivered,
		unrouted:         unrouted,
		deliveryFailures: deliveryFailures,
		handled:          handled,
		handleErrors:     handleErrors,
		handleLatency:    handleLatency,
		runnerExits:      runnerExits,
	}, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder.
//
// The recorder uses the global OTel meter provider. Configure the provider
// before calling this function:
//
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

// RecordSend records a send.
func (m *otelMetrics) RecordSend(ctx context.Context, producer, kind string, destinations int) {
	attrs := metric.WithAttributes(
		attribute.String("producer", producer),
		attribute.String("kind", kind),
	)
	m.sent.Add(ctx, 1, attrs)
	m.delivered.Add(ctx, int64(destinations), attrs)
}

// RecordUnrouted records an unrouted send.
func (m *otelMetrics) RecordUnrouted(ctx context.Context, producer, kind string) {
	m.unrouted.Add(ctx, 1, metric.WithAttributes(
		attribute.String("producer", producer),
		attribute.String("kind", kind),
	))
}

// RecordDeliveryFailure records a failed delivery.
func (m *otelMetrics) RecordDeliveryFailure(ctx context.Context, producer, destination, kind string) {
	m.deliveryFailures.Add(ctx, 1, metric.WithAttributes(
		attribute.String("producer", producer),
		attribute.String("destination", destination),
		attribute.String("kind", kind),
	))
}

// RecordHandle records a handler invocation.
func (m *otelMetrics) RecordHandle(ctx context.Context, runner, kind string, duration time.Duration, err error) {
	attrs := metric.WithAttributes(
		attribute.String("runner", runner),
		attribute.String("kind", kind),
	)
	m.handled.Add(ctx, 1, attrs)
	m.handleLatency.Record(ctx, float64(duration.Microseconds())/1000, attrs)
	if err != nil {
		m.handleErrors.Add(ctx, 1, attrs)
	}
}

// RecordRunnerExit records a runner exit.
func (m *otelMetrics) RecordRunnerExit(ctx context.Context, runner string, err error) {
	m.runnerExits.Add(ctx, 1, metric.WithAttributes(
		attribute.String("runner", runner),
		attribute.Bool("success", err == nil),
	))
}
