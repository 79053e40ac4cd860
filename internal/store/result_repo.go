package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// JobResult is one model response for one image at one stage.
type JobResult struct {
	ID      uuid.UUID
	JobID   uuid.UUID
	StageID uuid.UUID
	ImageID uuid.UUID
	// ResponseText is the raw model output.
	ResponseText string
	// Confidence is the model-reported confidence in [0, 1].
	Confidence float64
	// LatencyMS is the wall-clock model latency reported by the worker.
	LatencyMS int64
	Model     string
	CreatedAt time.Time
}

// ResultFilter narrows ListByJob.
type ResultFilter struct {
	StageID       *uuid.UUID
	ImageID       *uuid.UUID
	MinConfidence *float64
}

// StageResultStats aggregates results for one stage of a job.
type StageResultStats struct {
	StageID       uuid.UUID
	ResultCount   int64
	AvgConfidence float64
	AvgLatencyMS  float64
}

// JobResultStats aggregates results across a whole job.
type JobResultStats struct {
	JobID         uuid.UUID
	ResultCount   int64
	AvgConfidence float64
	MinConfidence float64
	MaxConfidence float64
	AvgLatencyMS  float64
	PerStage      []StageResultStats
}

// ResultRepository persists per-image stage outputs.
type ResultRepository interface {
	// InsertResults stores the batch atomically.
	InsertResults(ctx context.Context, results []JobResult) error
	// GetResult loads one result or returns ErrNotFound.
	GetResult(ctx context.Context, id uuid.UUID) (JobResult, error)
	// ListByJob returns a job's results newest first, narrowed by filter.
	ListByJob(ctx context.Context, jobID uuid.UUID, filter ResultFilter, limit, offset int) ([]JobResult, error)
	// ListSiblings returns the other results recorded for the same image in
	// the same job, excluding resultID itself.
	ListSiblings(ctx context.Context, jobID, imageID, resultID uuid.UUID) ([]JobResult, error)
	// JobStats aggregates count and confidence/latency figures per job and
	// per stage.
	JobStats(ctx context.Context, jobID uuid.UUID) (JobResultStats, error)
}
