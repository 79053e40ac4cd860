package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/argushq/argus/internal/monitor"
)

// LogSink emits structured logs for debugging update streams. It is useful
// during development or audits where the SSE feed is not being watched.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each update in the batch using structured fields.
func (s *LogSink) Consume(_ context.Context, batch []monitor.Update) error {
	for _, u := range batch {
		fields := []zap.Field{
			zap.String("job_id", u.JobID.String()),
			zap.String("kind", string(u.Kind)),
			zap.String("job_status", string(u.JobStatus)),
			zap.Int64("images_done", u.Rollup.ImagesDone),
			zap.Int64("images_failed", u.Rollup.ImagesFailed),
			zap.Float64("percent", u.Rollup.PercentComplete),
		}
		if !u.Kind.JobLevel() {
			fields = append(fields, zap.String("stage_id", u.StageID.String()))
		}
		if u.Note != "" {
			fields = append(fields, zap.String("note", u.Note))
		}
		s.logger.Info("job update", fields...)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
