package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Pipeline is an ordered sequence of prompt stages. Pipelines are immutable
// once created; only Archived may change afterwards.
type Pipeline struct {
	ID          uuid.UUID
	Name        string
	Description string
	Version     int
	Archived    bool
	CreatedAt   time.Time
	// Stages are loaded eagerly in position order.
	Stages []Stage
}

// Stage is one step of a pipeline: a prompt applied by one model.
type Stage struct {
	ID         uuid.UUID
	PipelineID uuid.UUID
	// Position is 1-based, dense, and unique within the pipeline.
	Position   int
	Name       string
	PromptName string
	PromptText string
	Model      string
}

// PipelineRepository persists pipelines with their stages.
type PipelineRepository interface {
	// CreatePipeline inserts the pipeline and all stages atomically.
	CreatePipeline(ctx context.Context, p Pipeline) error
	// GetPipeline loads one pipeline with stages or returns ErrNotFound.
	GetPipeline(ctx context.Context, id uuid.UUID) (Pipeline, error)
	// ListPipelines returns pipelines newest first, hiding archived rows
	// unless includeArchived is set. Stages are included.
	ListPipelines(ctx context.Context, includeArchived bool, limit, offset int) ([]Pipeline, error)
	// ArchivePipeline marks the pipeline archived. Archiving twice is a
	// no-op; unknown ids return ErrNotFound.
	ArchivePipeline(ctx context.Context, id uuid.UUID) error
}
