package eventflow

import (
	"context"
	"log/slog"

	"github.com/randalmurphal/eventflow/pkg/eventflow/config"
	"github.com/randalmurphal/eventflow/pkg/eventflow/deadletter"
	"github.com/randalmurphal/eventflow/pkg/eventflow/observability"
)

// DefaultChannelCapacity is the buffer size of each subscriber inbound channel.
const DefaultChannelCapacity = config.DefaultChannelCapacity

// engineConfig holds engine configuration.
type engineConfig struct {
	logger          *slog.Logger
	metrics         observability.MetricsRecorder
	spans           observability.SpanManager
	tracingEnabled  bool
	channelCapacity int
	deadLetters     deadletter.Store
	runID           string
	beforeStart     []func(ctx context.Context) error
	onExit          []func(ctx context.Context, err error)
}

func defaultEngineConfig() engineConfig {
	return engineConfig{
		logger:          slog.Default(),
		metrics:         observability.NoopMetrics{},
		spans:           observability.NoopSpanManager{},
		channelCapacity: DefaultChannelCapacity,
	}
}

// Option configures an Engine.
type Option func(*engineConfig)

// WithLogger sets the structured logger.
// Default: slog.Default()
//
// Runner loggers are enriched with run_id, runner, and role attributes.
func WithLogger(logger *slog.Logger) Option {
	return func(c *engineConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics enables or disables OpenTelemetry metrics.
// Metrics are recorded against the global meter provider.
func WithMetrics(enabled bool) Option {
	return func(c *engineConfig) {
		if enabled {
			c.metrics = observability.NewMetricsRecorder()
		} else {
			c.metrics = observability.NoopMetrics{}
		}
	}
}

// WithMetricsRecorder sets a custom metrics recorder.
func WithMetricsRecorder(m observability.MetricsRecorder) Option {
	return func(c *engineConfig) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithTracing enables or disables OpenTelemetry tracing.
// When enabled, Run opens an eventflow.run span and each handler
// invocation gets an eventflow.handle.<runner> child span.
func WithTracing(enabled bool) Option {
	return func(c *engineConfig) {
		c.tracingEnabled = enabled
		if enabled {
			if _, ok := c.spans.(observability.NoopSpanManager); ok {
				c.spans = observability.NewSpanManager()
			}
		}
	}
}

// WithSpanManager sets a custom span manager and enables tracing.
func WithSpanManager(sm observability.SpanManager) Option {
	return func(c *engineConfig) {
		if sm != nil {
			c.spans = sm
			c.tracingEnabled = true
		}
	}
}

// WithChannelCapacity sets the buffer size of subscriber inbound channels.
// Default: 100. Non-positive values are ignored.
func WithChannelCapacity(n int) Option {
	return func(c *engineConfig) {
		if n > 0 {
			c.channelCapacity = n
		}
	}
}

// WithDeadLetterStore records delivery and handler failures in store.
// The engine does not close the store.
func WithDeadLetterStore(store deadletter.Store) Option {
	return func(c *engineConfig) {
		c.deadLetters = store
	}
}

// WithRunID sets the run ID attached to logs and the run span.
// Default: a random UUID.
func WithRunID(id string) Option {
	return func(c *engineConfig) {
		c.runID = id
	}
}

// WithBeforeStart registers a hook run after routing is built and before
// any runner starts. A hook error aborts Run.
func WithBeforeStart(fn func(ctx context.Context) error) Option {
	return func(c *engineConfig) {
		if fn != nil {
			c.beforeStart = append(c.beforeStart, fn)
		}
	}
}

// WithOnExit registers a hook run after every runner has returned.
// It receives the error Run is about to return.
func WithOnExit(fn func(ctx context.Context, err error)) Option {
	return func(c *engineConfig) {
		if fn != nil {
			c.onExit = append(c.onExit, fn)
		}
	}
}

// WithConfig applies the engine-level fields of cfg: channel capacity,
// metrics, and tracing. Disabled metrics or tracing leave earlier options
// untouched. Logger and dead letter store are built by the caller
// (see config.Config.NewLogger and config.Config.OpenDeadLetterStore).
func WithConfig(cfg config.Config) Option {
	return func(c *engineConfig) {
		WithChannelCapacity(cfg.ChannelCapacity)(c)
		if cfg.Metrics {
			WithMetrics(true)(c)
		}
		if cfg.Tracing {
			WithTracing(true)(c)
		}
	}
}
