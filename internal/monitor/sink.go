package monitor

import "context"

// Sink consumes batches of job updates. Implementations must be safe for
// repeated calls, honor ctx deadlines, and may be invoked concurrently.
type Sink interface {
	Consume(ctx context.Context, batch []Update) error
	Close(ctx context.Context) error
}
