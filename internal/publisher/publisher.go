// Package publisher defines the job event notification contract. Concrete
// publishers live in the memory and pubsub subpackages.
package publisher

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// JobEvent is the notification emitted on job lifecycle transitions.
type JobEvent struct {
	JobID  uuid.UUID `json:"job_id"`
	Status string    `json:"status"`
	TS     time.Time `json:"ts"`
	Note   string    `json:"note,omitempty"`
}

// Publisher delivers job events to downstream consumers. Publish failures
// are logged by callers and never fail the recording operation.
type Publisher interface {
	// PublishJobEvent delivers the event and returns the broker message id.
	PublishJobEvent(ctx context.Context, ev JobEvent) (string, error)
	Close() error
}
