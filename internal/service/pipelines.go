package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/argushq/argus/internal/store"
)

// PipelineDeps bundles the collaborators NewPipelineService requires.
type PipelineDeps struct {
	Pipelines store.PipelineRepository
	Audit     *AuditService
	Clock     Clock
	IDs       IDGenerator
	Logger    *zap.Logger
}

// PipelineService manages pipeline definitions. Pipelines are immutable
// once created; retiring one means archiving it.
type PipelineService struct {
	pipelines store.PipelineRepository
	audit     *AuditService
	clock     Clock
	ids       IDGenerator
	logger    *zap.Logger
}

// NewPipelineService wires the repository into a pipeline service.
func NewPipelineService(d PipelineDeps) *PipelineService {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PipelineService{
		pipelines: d.Pipelines,
		audit:     d.Audit,
		clock:     d.Clock,
		ids:       d.IDs,
		logger:    logger,
	}
}

// StageSpec describes one stage of a new pipeline, in execution order.
type StageSpec struct {
	Name       string
	PromptName string
	PromptText string
	Model      string
}

// CreatePipelineRequest carries a new pipeline definition.
type CreatePipelineRequest struct {
	Name        string
	Description string
	Stages      []StageSpec
}

// Create stores a pipeline with its stages. Positions are assigned densely
// from the stage order in the request.
func (s *PipelineService) Create(ctx context.Context, caller Caller, req CreatePipelineRequest) (store.Pipeline, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return store.Pipeline{}, fmt.Errorf("%w: pipeline name is required", ErrInvalidInput)
	}
	if len(req.Stages) == 0 {
		return store.Pipeline{}, fmt.Errorf("%w: at least one stage is required", ErrInvalidInput)
	}
	for i, st := range req.Stages {
		if strings.TrimSpace(st.Name) == "" {
			return store.Pipeline{}, fmt.Errorf("%w: stage %d has no name", ErrInvalidInput, i+1)
		}
		if strings.TrimSpace(st.PromptText) == "" {
			return store.Pipeline{}, fmt.Errorf("%w: stage %q has no prompt text", ErrInvalidInput, st.Name)
		}
		if strings.TrimSpace(st.Model) == "" {
			return store.Pipeline{}, fmt.Errorf("%w: stage %q has no model", ErrInvalidInput, st.Name)
		}
	}

	id, err := s.ids.NewRawID()
	if err != nil {
		return store.Pipeline{}, fmt.Errorf("generate pipeline id: %w", err)
	}
	p := store.Pipeline{
		ID:          id,
		Name:        req.Name,
		Description: strings.TrimSpace(req.Description),
		Version:     1,
		CreatedAt:   s.clock.Now(),
		Stages:      make([]store.Stage, 0, len(req.Stages)),
	}
	for i, st := range req.Stages {
		stageID, err := s.ids.NewRawID()
		if err != nil {
			return store.Pipeline{}, fmt.Errorf("generate stage id: %w", err)
		}
		p.Stages = append(p.Stages, store.Stage{
			ID:         stageID,
			PipelineID: p.ID,
			Position:   i + 1,
			Name:       strings.TrimSpace(st.Name),
			PromptName: strings.TrimSpace(st.PromptName),
			PromptText: st.PromptText,
			Model:      strings.TrimSpace(st.Model),
		})
	}
	if err := s.pipelines.CreatePipeline(ctx, p); err != nil {
		return store.Pipeline{}, fmt.Errorf("create pipeline: %w", err)
	}
	s.audit.Record(ctx, caller, "pipeline.create", "pipeline", p.ID.String(), map[string]string{
		"name":   p.Name,
		"stages": strconv.Itoa(len(p.Stages)),
	})
	return p, nil
}

// Get loads one pipeline with its stages.
func (s *PipelineService) Get(ctx context.Context, id uuid.UUID) (store.Pipeline, error) {
	return s.pipelines.GetPipeline(ctx, id)
}

// List returns pipelines newest first, hiding archived ones unless asked.
func (s *PipelineService) List(ctx context.Context, includeArchived bool, limit, offset int) ([]store.Pipeline, error) {
	return s.pipelines.ListPipelines(ctx, includeArchived, limit, offset)
}

// Archive retires the pipeline from new submissions. Archiving twice is a
// no-op.
func (s *PipelineService) Archive(ctx context.Context, caller Caller, id uuid.UUID) error {
	if err := s.pipelines.ArchivePipeline(ctx, id); err != nil {
		return fmt.Errorf("archive pipeline: %w", err)
	}
	s.audit.Record(ctx, caller, "pipeline.archive", "pipeline", id.String(), nil)
	return nil
}
