// Package observability provides logging, metrics, and tracing for eventflow.
package observability

import (
	"log/slog"
	"time"
)

// EnrichLogger returns a logger with runner context.
// Returns nil if logger is nil.
func EnrichLogger(logger *slog.Logger, runID, runner, role string) *slog.Logger {
	if logger == nil {
		return nil
	}
	return logger.With(
		slog.String("run_id", runID),
		slog.String("runner", runner),
		slog.String("role", role),
	)
}

// LogEngineStart logs the start of an engine run at INFO level.
func LogEngineStart(logger *slog.Logger, runID string, publishers, subscribers int) {
	if logger == nil {
		return
	}
	logger.Info("engine run starting",
		slog.String("run_id", runID),
		slog.Int("publishers", publishers),
		slog.Int("subscribers", subscribers),
	)
}

// LogEngineStop logs the end of an engine run at INFO level.
func LogEngineStop(logger *slog.Logger, runID string, durationMs float64, failed int) {
	if logger == nil {
		return
	}
	logger.Info("engine run stopped",
		slog.String("run_id", runID),
		slog.Float64("duration_ms", durationMs),
		slog.Int("failed_runners", failed),
	)
}

// LogRoute logs one resolved route at DEBUG level.
func LogRoute(logger *slog.Logger, producer, kind string, consumers []string) {
	if logger == nil {
		return
	}
	logger.Debug("route resolved",
		slog.String("producer", producer),
		slog.String("kind", kind),
		slog.Any("consumers", consumers),
	)
}

// LogUnrouted logs a send for a kind nobody consumes at DEBUG level.
// logger is expected to carry the producing runner, see EnrichLogger.
func LogUnrouted(logger *slog.Logger, kind, envelopeID string) {
	if logger == nil {
		return
	}
	logger.Debug("envelope unrouted",
		slog.String("kind", kind),
		slog.String("envelope_id", envelopeID),
	)
}

// LogRunnerStart logs a runner goroutine start at DEBUG level.
func LogRunnerStart(logger *slog.Logger) {
	if logger == nil {
		return
	}
	logger.Debug("runner starting")
}

// LogRunnerExit logs a normal runner exit at DEBUG level.
func LogRunnerExit(logger *slog.Logger, handled int64) {
	if logger == nil {
		return
	}
	logger.Debug("runner exited",
		slog.Int64("handled", handled),
	)
}

// LogRunnerError logs an abnormal runner exit at ERROR level.
func LogRunnerError(logger *slog.Logger, err error) {
	if logger == nil {
		return
	}
	logger.Error("runner failed",
		slog.String("error", err.Error()),
	)
}

// LogHandleError logs a handler error at WARN level.
// The runner keeps consuming after a handler error.
func LogHandleError(logger *slog.Logger, kind, envelopeID string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("handler failed",
		slog.String("kind", kind),
		slog.String("envelope_id", envelopeID),
		slog.String("error", err.Error()),
	)
}

// LogDeliveryFailure logs a failed delivery to one destination at WARN level.
func LogDeliveryFailure(logger *slog.Logger, destination, kind string, err error) {
	if logger == nil {
		return
	}
	logger.Warn("delivery failed",
		slog.String("destination", destination),
		slog.String("kind", kind),
		slog.String("error", err.Error()),
	)
}

// LogDeadLetterError logs a failure to record a dead letter at WARN level.
func LogDeadLetterError(logger *slog.Logger, err error) {
	if logger == nil {
		return
	}
	logger.Warn("dead letter record failed",
		slog.String("error", err.Error()),
	)
}

// TimedOperation returns a function that reports elapsed milliseconds.
func TimedOperation() func() float64 {
	start := time.Now()
	return func() float64 {
		return float64(time.Since(start).Microseconds()) / 1000
	}
}
