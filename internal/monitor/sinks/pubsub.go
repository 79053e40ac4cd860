package sinks

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/argushq/argus/internal/monitor"
	"github.com/argushq/argus/internal/publisher"
)

// PublisherSink forwards job-level updates to the external event publisher
// so downstream systems learn about lifecycle transitions without polling.
// Stage-level updates are skipped to keep broker volume proportional to
// jobs rather than images.
type PublisherSink struct {
	pub    publisher.Publisher
	logger *zap.Logger
}

// NewPublisherSink wraps a publisher as a monitor sink.
func NewPublisherSink(pub publisher.Publisher, logger *zap.Logger) *PublisherSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PublisherSink{pub: pub, logger: logger}
}

// Consume publishes every job-level update in the batch. The first publish
// failure is returned after the rest of the batch is attempted.
func (s *PublisherSink) Consume(ctx context.Context, batch []monitor.Update) error {
	var firstErr error
	for _, u := range batch {
		if !u.Kind.JobLevel() {
			continue
		}
		ev := publisher.JobEvent{
			JobID:  u.JobID,
			Status: string(u.JobStatus),
			TS:     u.TS,
			Note:   u.Note,
		}
		id, err := s.pub.PublishJobEvent(ctx, ev)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("publish job event: %w", err)
			}
			continue
		}
		s.logger.Debug("published job event",
			zap.String("job_id", u.JobID.String()),
			zap.String("status", string(u.JobStatus)),
			zap.String("message_id", id),
		)
	}
	return firstErr
}

// Close closes the wrapped publisher.
func (s *PublisherSink) Close(context.Context) error {
	return s.pub.Close()
}
