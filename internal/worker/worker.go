// Package worker implements the background validation loop.
package worker

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/argushq/argus/internal/queue"
	"github.com/argushq/argus/internal/store"
	"github.com/argushq/argus/internal/telemetry"
)

// Validator computes and stores quality metrics for one result.
type Validator interface {
	Compute(ctx context.Context, resultID uuid.UUID) error
}

// Config controls Worker behavior.
type Config struct {
	// ComputeTimeout bounds a single validation computation.
	ComputeTimeout time.Duration
	// MaxRetries is the number of additional attempts after a failed
	// computation.
	MaxRetries int
	// RetryBackoffBase is the first retry delay; it doubles per attempt.
	RetryBackoffBase time.Duration
}

// Worker consumes validation tasks and executes the compute pipeline.
type Worker struct {
	queue     *queue.Queue
	validator Validator
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Worker.
func New(q *queue.Queue, validator Validator, cfg Config, logger *zap.Logger) *Worker {
	if cfg.ComputeTimeout <= 0 {
		cfg.ComputeTimeout = 30 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryBackoffBase <= 0 {
		cfg.RetryBackoffBase = 100 * time.Millisecond
	}
	return &Worker{
		queue:     q,
		validator: validator,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run blocks, consuming tasks until the context finishes or the queue
// closes.
func (w *Worker) Run(ctx context.Context) {
	for {
		task, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, queue.ErrClosed) {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.process(ctx, task)
	}
}

func (w *Worker) process(ctx context.Context, task queue.Task) {
	telemetry.IncActiveWorkers()
	defer telemetry.DecActiveWorkers()

	backoff := w.cfg.RetryBackoffBase
	for attempt := 0; ; attempt++ {
		err := w.compute(ctx, task.ResultID)
		if err == nil {
			return
		}
		if ctx.Err() != nil {
			return
		}
		if errors.Is(err, store.ErrNotFound) {
			w.logger.Warn("validation target missing",
				zap.String("result_id", task.ResultID.String()))
			return
		}
		if attempt >= w.cfg.MaxRetries {
			w.logger.Error("validation failed",
				zap.String("result_id", task.ResultID.String()),
				zap.Int("attempts", attempt+1),
				zap.Error(err))
			return
		}
		w.logger.Warn("validation attempt failed",
			zap.String("result_id", task.ResultID.String()),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
	}
}

func (w *Worker) compute(ctx context.Context, resultID uuid.UUID) error {
	computeCtx, cancel := context.WithTimeout(ctx, w.cfg.ComputeTimeout)
	defer cancel()
	return w.validator.Compute(computeCtx, resultID)
}
