package sinks

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/JakeFAU/web-archive-agent/internal/progress"
)

// LogSink writes task events to a zap logger. Intermediate stages log at
// debug, completed tasks at info and failed tasks at warn.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink returns a LogSink; a nil logger discards output.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs every event in batch.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		ce := s.logger.Check(levelFor(evt.Stage), "task "+string(evt.Stage))
		if ce == nil {
			continue
		}
		fields := make([]zap.Field, 0, 7)
		fields = append(fields,
			zap.String("task_id", evt.TaskID),
			zap.Int("tab_id", evt.TabID),
			zap.String("url", evt.URL),
			zap.Time("event_ts", evt.TS),
		)
		if evt.Bytes > 0 {
			fields = append(fields, zap.Int64("bytes", evt.Bytes))
		}
		if evt.Dur > 0 {
			fields = append(fields, zap.Duration("dur", evt.Dur))
		}
		if evt.Note != "" {
			fields = append(fields, zap.String("error", evt.Note))
		}
		ce.Write(fields...)
	}
	return nil
}

// Close is a no-op.
func (*LogSink) Close(context.Context) error {
	return nil
}

func levelFor(stage progress.Stage) zapcore.Level {
	switch {
	case stage.Failure():
		return zapcore.WarnLevel
	case stage.Terminal():
		return zapcore.InfoLevel
	default:
		return zapcore.DebugLevel
	}
}
