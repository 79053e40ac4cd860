// Package dispatcher manages worker fan-out over the validation queue.
package dispatcher

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/argushq/argus/internal/queue"
	"github.com/argushq/argus/internal/worker"
)

// Dispatcher fans queue work out to a pool of workers.
type Dispatcher struct {
	queue   *queue.Queue
	workers []*worker.Worker
	logger  *zap.Logger
}

// New creates a Dispatcher.
func New(q *queue.Queue, workers []*worker.Worker, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		queue:   q,
		workers: workers,
		logger:  logger,
	}
}

// Run starts all workers and blocks until the context finishes.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func(wk *worker.Worker) {
			defer wg.Done()
			wk.Run(ctx)
		}(w)
	}
	<-ctx.Done()
	wg.Wait()
}

// Enqueue proxies to the underlying queue, blocking until the queue accepts
// the task or the context ends.
func (d *Dispatcher) Enqueue(ctx context.Context, task queue.Task) error {
	if err := d.queue.Enqueue(ctx, task); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}

// TryEnqueue offers the task to the queue without blocking. A full queue
// drops the task with a warning; the validation can be recomputed on demand.
func (d *Dispatcher) TryEnqueue(task queue.Task) bool {
	if d.queue.TryEnqueue(task) {
		return true
	}
	d.logger.Warn("validation queue full, dropping task",
		zap.String("result_id", task.ResultID.String()))
	return false
}
