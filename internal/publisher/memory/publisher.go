// Package memory contains an in-memory job event publisher for tests and
// local development.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/argushq/argus/internal/publisher"
)

// Publisher stores published events for inspection.
type Publisher struct {
	mu     sync.RWMutex
	events []publisher.JobEvent
}

// New returns a memory Publisher.
func New() *Publisher {
	return &Publisher{}
}

// PublishJobEvent records the event and returns a pseudo ID.
func (p *Publisher) PublishJobEvent(_ context.Context, ev publisher.JobEvent) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return fmt.Sprintf("memory-%d", len(p.events)), nil
}

// Events returns the recorded publishes.
func (p *Publisher) Events() []publisher.JobEvent {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]publisher.JobEvent, len(p.events))
	copy(out, p.events)
	return out
}

// Close implements publisher.Publisher; it performs no action.
func (p *Publisher) Close() error {
	return nil
}
