package tracker

import (
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/web-archive-agent/internal/archive"
	"github.com/JakeFAU/web-archive-agent/internal/progress"
)

// Option customizes a Tracker.
type Option func(*Tracker)

// WithClock overrides the clock used for timestamps and durations.
func WithClock(clock archive.Clock) Option {
	return func(t *Tracker) {
		if clock != nil {
			t.clock = clock
		}
	}
}

// WithIDGenerator overrides task id allocation.
func WithIDGenerator(ids archive.IDGenerator) Option {
	return func(t *Tracker) {
		if ids != nil {
			t.ids = ids
		}
	}
}

// WithEmitter attaches a progress emitter.
func WithEmitter(emitter progress.Emitter) Option {
	return func(t *Tracker) {
		if emitter != nil {
			t.emitter = emitter
		}
	}
}

// WithReporter attaches a failure reporter.
func WithReporter(reporter archive.FailureReporter) Option {
	return func(t *Tracker) {
		t.reporter = reporter
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(t *Tracker) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithTracer sets the tracer used for per-step spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(t *Tracker) {
		if tracer != nil {
			t.tracer = tracer
		}
	}
}
