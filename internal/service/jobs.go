package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/argushq/argus/internal/publisher"
	"github.com/argushq/argus/internal/store"
	"github.com/argushq/argus/internal/telemetry"
)

// JobDeps bundles the collaborators NewJobService requires.
type JobDeps struct {
	Jobs      store.JobRepository
	Pipelines store.PipelineRepository
	Libraries store.LibraryRepository
	Publisher publisher.Publisher
	Audit     *AuditService
	Clock     Clock
	IDs       IDGenerator
	Logger    *zap.Logger
}

// JobService submits and reads jobs. Lifecycle transitions after submission
// belong to the monitoring service.
type JobService struct {
	jobs      store.JobRepository
	pipelines store.PipelineRepository
	libraries store.LibraryRepository
	publisher publisher.Publisher
	audit     *AuditService
	clock     Clock
	ids       IDGenerator
	logger    *zap.Logger
}

// NewJobService wires the repositories into a job service.
func NewJobService(d JobDeps) *JobService {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JobService{
		jobs:      d.Jobs,
		pipelines: d.Pipelines,
		libraries: d.Libraries,
		publisher: d.Publisher,
		audit:     d.Audit,
		clock:     d.Clock,
		ids:       d.IDs,
		logger:    logger,
	}
}

// SubmitJobRequest carries a job submission. An empty ImageIDs list means
// every image currently in the library.
type SubmitJobRequest struct {
	PipelineID uuid.UUID
	LibraryID  uuid.UUID
	ImageIDs   []uuid.UUID
}

// Submit creates a queued job with its image snapshot fixed at submission
// time. Archived pipelines are rejected with store.ErrConflict; an empty
// snapshot is invalid input.
func (s *JobService) Submit(ctx context.Context, caller Caller, req SubmitJobRequest) (store.Job, error) {
	pipe, err := s.pipelines.GetPipeline(ctx, req.PipelineID)
	if err != nil {
		return store.Job{}, fmt.Errorf("load pipeline: %w", err)
	}
	if pipe.Archived {
		return store.Job{}, fmt.Errorf("pipeline %s is archived: %w", pipe.ID, store.ErrConflict)
	}
	if _, err := s.libraries.GetLibrary(ctx, req.LibraryID); err != nil {
		return store.Job{}, fmt.Errorf("load library: %w", err)
	}

	snapshot, err := s.resolveImages(ctx, req)
	if err != nil {
		return store.Job{}, err
	}
	if len(snapshot) == 0 {
		return store.Job{}, fmt.Errorf("%w: library %s has no images to process", ErrInvalidInput, req.LibraryID)
	}

	id, err := s.ids.NewRawID()
	if err != nil {
		return store.Job{}, fmt.Errorf("generate job id: %w", err)
	}
	now := s.clock.Now()
	job := store.Job{
		ID:          id,
		PipelineID:  req.PipelineID,
		LibraryID:   req.LibraryID,
		Status:      store.JobQueued,
		SubmittedBy: caller.actor(),
		SubmittedAt: now,
		ImageCount:  len(snapshot),
	}
	if err := s.jobs.CreateJob(ctx, job, snapshot); err != nil {
		return store.Job{}, fmt.Errorf("create job: %w", err)
	}

	telemetry.ObserveJob(string(store.JobQueued))
	if _, err := s.publisher.PublishJobEvent(ctx, publisher.JobEvent{
		JobID:  job.ID,
		Status: string(store.JobQueued),
		TS:     now,
	}); err != nil {
		s.logger.Warn("publish job event", zap.String("job_id", job.ID.String()), zap.Error(err))
	}
	s.audit.Record(ctx, caller, "job.submit", "job", job.ID.String(), map[string]string{
		"pipeline_id": req.PipelineID.String(),
		"library_id":  req.LibraryID.String(),
		"image_count": strconv.Itoa(job.ImageCount),
	})
	return job, nil
}

// Get loads one job.
func (s *JobService) Get(ctx context.Context, id uuid.UUID) (store.Job, error) {
	return s.jobs.GetJob(ctx, id)
}

// List returns jobs newest first, narrowed by filter.
func (s *JobService) List(ctx context.Context, filter store.JobFilter, limit, offset int) ([]store.Job, error) {
	return s.jobs.ListJobs(ctx, filter, limit, offset)
}

// resolveImages fixes the image snapshot: the explicit ids when given (each
// must belong to the library), otherwise every image in the library.
func (s *JobService) resolveImages(ctx context.Context, req SubmitJobRequest) ([]uuid.UUID, error) {
	if len(req.ImageIDs) == 0 {
		ids, err := s.libraries.ListImageIDs(ctx, req.LibraryID)
		if err != nil {
			return nil, fmt.Errorf("list library images: %w", err)
		}
		return ids, nil
	}

	seen := make(map[uuid.UUID]struct{}, len(req.ImageIDs))
	snapshot := make([]uuid.UUID, 0, len(req.ImageIDs))
	for _, imageID := range req.ImageIDs {
		if _, dup := seen[imageID]; dup {
			continue
		}
		seen[imageID] = struct{}{}
		img, err := s.libraries.GetImage(ctx, imageID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, fmt.Errorf("%w: image %s does not exist", ErrInvalidInput, imageID)
			}
			return nil, fmt.Errorf("load image %s: %w", imageID, err)
		}
		if img.LibraryID != req.LibraryID {
			return nil, fmt.Errorf("%w: image %s is not in library %s", ErrInvalidInput, imageID, req.LibraryID)
		}
		snapshot = append(snapshot, imageID)
	}
	return snapshot, nil
}
