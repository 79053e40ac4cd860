package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/argushq/argus/internal/queue"
	"github.com/argushq/argus/internal/store"
	"github.com/argushq/argus/internal/telemetry"
)

// TaskEnqueuer hands results to the background validation pool. A full
// queue drops the task; validation can be recomputed on demand.
type TaskEnqueuer interface {
	TryEnqueue(task queue.Task) bool
}

// ResultDeps bundles the collaborators NewResultService requires.
type ResultDeps struct {
	Results   store.ResultRepository
	Jobs      store.JobRepository
	Pipelines store.PipelineRepository
	Enqueuer  TaskEnqueuer
	Clock     Clock
	IDs       IDGenerator
	Logger    *zap.Logger
}

// ResultService ingests worker-produced results and serves result reads.
type ResultService struct {
	results   store.ResultRepository
	jobs      store.JobRepository
	pipelines store.PipelineRepository
	enqueuer  TaskEnqueuer
	clock     Clock
	ids       IDGenerator
	logger    *zap.Logger
}

// NewResultService wires the repositories into a result service.
func NewResultService(d ResultDeps) *ResultService {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResultService{
		results:   d.Results,
		jobs:      d.Jobs,
		pipelines: d.Pipelines,
		enqueuer:  d.Enqueuer,
		clock:     d.Clock,
		ids:       d.IDs,
		logger:    logger,
	}
}

// ResultEntry is one model output reported by a worker.
type ResultEntry struct {
	StageID      uuid.UUID
	ImageID      uuid.UUID
	ResponseText string
	Confidence   float64
	LatencyMS    int64
	Model        string
}

// Record validates and stores a batch of results for one job, then queues
// each for background validation. Terminal jobs reject new results with
// store.ErrConflict.
func (s *ResultService) Record(ctx context.Context, jobID uuid.UUID, entries []ResultEntry) ([]store.JobResult, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: at least one result is required", ErrInvalidInput)
	}
	job, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("load job: %w", err)
	}
	if job.Status.Terminal() {
		return nil, fmt.Errorf("job %s is %s: %w", jobID, job.Status, store.ErrConflict)
	}
	pipe, err := s.pipelines.GetPipeline(ctx, job.PipelineID)
	if err != nil {
		return nil, fmt.Errorf("load pipeline: %w", err)
	}
	stages := make(map[uuid.UUID]struct{}, len(pipe.Stages))
	for _, st := range pipe.Stages {
		stages[st.ID] = struct{}{}
	}

	now := s.clock.Now()
	results := make([]store.JobResult, 0, len(entries))
	for i, e := range entries {
		if _, ok := stages[e.StageID]; !ok {
			return nil, fmt.Errorf("%w: result %d: stage %s is not part of the job's pipeline", ErrInvalidInput, i, e.StageID)
		}
		inJob, err := s.jobs.JobHasImage(ctx, jobID, e.ImageID)
		if err != nil {
			return nil, fmt.Errorf("check job image: %w", err)
		}
		if !inJob {
			return nil, fmt.Errorf("%w: result %d: image %s is not in the job's snapshot", ErrInvalidInput, i, e.ImageID)
		}
		if e.Confidence < 0 || e.Confidence > 1 {
			return nil, fmt.Errorf("%w: result %d: confidence %g is outside [0, 1]", ErrInvalidInput, i, e.Confidence)
		}
		if e.LatencyMS < 0 {
			return nil, fmt.Errorf("%w: result %d: latency_ms must not be negative", ErrInvalidInput, i)
		}
		id, err := s.ids.NewRawID()
		if err != nil {
			return nil, fmt.Errorf("generate result id: %w", err)
		}
		results = append(results, store.JobResult{
			ID:           id,
			JobID:        jobID,
			StageID:      e.StageID,
			ImageID:      e.ImageID,
			ResponseText: e.ResponseText,
			Confidence:   e.Confidence,
			LatencyMS:    e.LatencyMS,
			Model:        e.Model,
			CreatedAt:    now,
		})
	}

	if err := s.results.InsertResults(ctx, results); err != nil {
		return nil, fmt.Errorf("insert results: %w", err)
	}
	telemetry.ObserveResults(len(results))
	for _, r := range results {
		s.enqueuer.TryEnqueue(queue.Task{ResultID: r.ID})
	}
	return results, nil
}

// Get loads one result.
func (s *ResultService) Get(ctx context.Context, id uuid.UUID) (store.JobResult, error) {
	return s.results.GetResult(ctx, id)
}

// ListByJob returns a job's results newest first, narrowed by filter.
func (s *ResultService) ListByJob(ctx context.Context, jobID uuid.UUID, filter store.ResultFilter, limit, offset int) ([]store.JobResult, error) {
	if _, err := s.jobs.GetJob(ctx, jobID); err != nil {
		return nil, fmt.Errorf("load job: %w", err)
	}
	return s.results.ListByJob(ctx, jobID, filter, limit, offset)
}

// JobStats aggregates result counts, confidence, and latency for one job.
func (s *ResultService) JobStats(ctx context.Context, jobID uuid.UUID) (store.JobResultStats, error) {
	if _, err := s.jobs.GetJob(ctx, jobID); err != nil {
		return store.JobResultStats{}, fmt.Errorf("load job: %w", err)
	}
	return s.results.JobStats(ctx, jobID)
}
