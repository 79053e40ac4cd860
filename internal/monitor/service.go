package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/argushq/argus/internal/store"
	"github.com/argushq/argus/internal/telemetry"
)

// ErrInvalidEvent rejects malformed worker reports.
var ErrInvalidEvent = errors.New("invalid stage event")

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

// IDGenerator mints ids for stage error rows.
type IDGenerator interface {
	NewRawID() (uuid.UUID, error)
}

// Deps bundles the collaborators NewService requires.
type Deps struct {
	Jobs      store.JobRepository
	Pipelines store.PipelineRepository
	Progress  store.ProgressRepository
	Results   store.ResultRepository
	Hub       *Hub
	Clock     Clock
	IDs       IDGenerator
	Logger    *zap.Logger
}

// Service records worker-reported job progress, derives job completion, and
// publishes an Update through the hub for every recorded change.
type Service struct {
	jobs      store.JobRepository
	pipelines store.PipelineRepository
	progress  store.ProgressRepository
	results   store.ResultRepository
	hub       *Hub
	clock     Clock
	ids       IDGenerator
	logger    *zap.Logger
}

// NewService wires the repositories and hub into a monitoring service.
func NewService(d Deps) *Service {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		jobs:      d.Jobs,
		pipelines: d.Pipelines,
		progress:  d.Progress,
		results:   d.Results,
		hub:       d.Hub,
		clock:     d.Clock,
		ids:       d.IDs,
		logger:    logger,
	}
}

// StartJob transitions the job to running and seeds one pending stage row
// per pipeline stage. Calling it on a job already running is a no-op;
// terminal jobs return store.ErrConflict.
func (s *Service) StartJob(ctx context.Context, jobID uuid.UUID) error {
	job, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load job: %w", err)
	}
	if job.Status.Terminal() {
		return fmt.Errorf("job %s is %s: %w", jobID, job.Status, store.ErrConflict)
	}
	return s.start(ctx, job, s.clock.Now())
}

// RecordStageEvent applies one worker report. Unknown jobs or stages return
// store.ErrNotFound; terminal jobs or stages return store.ErrConflict. A
// report against a queued job starts the job first.
func (s *Service) RecordStageEvent(ctx context.Context, jobID, stageID uuid.UUID, ev StageEvent) error {
	if err := ev.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	job, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load job: %w", err)
	}
	if job.Status.Terminal() {
		return fmt.Errorf("job %s is %s: %w", jobID, job.Status, store.ErrConflict)
	}
	now := s.clock.Now()
	if job.Status == store.JobQueued {
		if err := s.start(ctx, job, now); err != nil {
			return err
		}
	}

	stage, err := s.progress.GetStage(ctx, jobID, stageID)
	if err != nil {
		return fmt.Errorf("load stage progress: %w", err)
	}
	if stage.Status.Terminal() {
		return fmt.Errorf("stage %s is %s: %w", stageID, stage.Status, store.ErrConflict)
	}

	telemetry.ObserveStageEvent(string(ev.Type))

	switch ev.Type {
	case EventStarted:
		return s.recordStarted(ctx, jobID, stageID, now)
	case EventProgress:
		return s.recordProgress(ctx, jobID, stageID, ev, now)
	case EventCompleted:
		return s.recordFinished(ctx, jobID, stageID, store.StageCompleted, nil, now)
	case EventFailed:
		msg := ev.Message
		return s.recordFinished(ctx, jobID, stageID, store.StageFailed, &msg, now)
	case EventError:
		return s.recordError(ctx, jobID, stageID, ev, now)
	}
	return nil
}

// CompleteJob applies an explicit terminal transition for termination
// reported outside the stage event flow. Non-terminal stages are marked
// canceled. Already-terminal jobs return store.ErrConflict.
func (s *Service) CompleteJob(ctx context.Context, jobID uuid.UUID, status store.JobStatus, errText string) error {
	if !status.Terminal() {
		return fmt.Errorf("status %q is not terminal", status)
	}
	job, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("load job: %w", err)
	}
	if job.Status.Terminal() {
		return fmt.Errorf("job %s is %s: %w", jobID, job.Status, store.ErrConflict)
	}
	now := s.clock.Now()
	if _, err := s.progress.CancelOpenStages(ctx, jobID, now); err != nil {
		return fmt.Errorf("cancel open stages: %w", err)
	}
	stages, err := s.progress.ListStages(ctx, jobID)
	if err != nil {
		return fmt.Errorf("list stage progress: %w", err)
	}
	var errPtr *string
	if errText != "" {
		errPtr = &errText
	}
	return s.finishJob(ctx, jobID, status, errPtr, stages, now)
}

// CancelJob cancels a queued or running job and its open stages.
func (s *Service) CancelJob(ctx context.Context, jobID uuid.UUID) error {
	return s.CompleteJob(ctx, jobID, store.JobCanceled, "")
}

// Subscribe returns the live update stream for one job.
func (s *Service) Subscribe(jobID uuid.UUID) *Subscription {
	return s.hub.Subscribe(jobID)
}

// Stages returns the job's progress rows joined with stage identity, in
// pipeline position order.
func (s *Service) Stages(ctx context.Context, jobID uuid.UUID) ([]StageSummary, error) {
	job, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("load job: %w", err)
	}
	return s.stageSummaries(ctx, job)
}

// StageErrors returns the job's accumulated error rows, newest first.
func (s *Service) StageErrors(ctx context.Context, jobID uuid.UUID, limit, offset int) ([]store.StageError, error) {
	if _, err := s.jobs.GetJob(ctx, jobID); err != nil {
		return nil, fmt.Errorf("load job: %w", err)
	}
	list, err := s.progress.ListStageErrors(ctx, jobID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list stage errors: %w", err)
	}
	return list, nil
}

// start marks the job running and seeds its stage rows. Safe to repeat.
func (s *Service) start(ctx context.Context, job store.Job, now time.Time) error {
	pipe, err := s.pipelines.GetPipeline(ctx, job.PipelineID)
	if err != nil {
		return fmt.Errorf("load pipeline: %w", err)
	}
	if err := s.jobs.MarkJobRunning(ctx, job.ID, now); err != nil {
		return fmt.Errorf("mark job running: %w", err)
	}
	stageIDs := make([]uuid.UUID, 0, len(pipe.Stages))
	for _, st := range pipe.Stages {
		stageIDs = append(stageIDs, st.ID)
	}
	if err := s.progress.SeedStages(ctx, job.ID, stageIDs, int64(job.ImageCount), now); err != nil {
		return fmt.Errorf("seed stage progress: %w", err)
	}
	if job.Status == store.JobQueued {
		telemetry.ObserveJob(string(store.JobRunning))
		s.hub.Publish(Update{
			JobID:     job.ID,
			Kind:      KindJobStarted,
			TS:        now,
			JobStatus: store.JobRunning,
			Rollup: Rollup{
				ImagesTotal: int64(job.ImageCount) * int64(len(pipe.Stages)),
				StagesTotal: len(pipe.Stages),
			},
		})
	}
	return nil
}

func (s *Service) recordStarted(ctx context.Context, jobID, stageID uuid.UUID, now time.Time) error {
	if err := s.progress.MarkStageRunning(ctx, jobID, stageID, now); err != nil {
		return fmt.Errorf("mark stage running: %w", err)
	}
	stage, stages, err := s.reloadStages(ctx, jobID, stageID)
	if err != nil {
		return err
	}
	s.hub.Publish(Update{
		JobID:     jobID,
		StageID:   stageID,
		Kind:      KindStageStarted,
		TS:        now,
		JobStatus: store.JobRunning,
		Stage:     stage,
		Rollup:    rollupFrom(stages),
	})
	return nil
}

func (s *Service) recordProgress(ctx context.Context, jobID, stageID uuid.UUID, ev StageEvent, now time.Time) error {
	updated, err := s.progress.ApplyProgress(ctx, jobID, stageID, ev.DoneDelta, ev.FailedDelta, now)
	if err != nil {
		return fmt.Errorf("apply progress: %w", err)
	}
	stages, err := s.progress.ListStages(ctx, jobID)
	if err != nil {
		return fmt.Errorf("list stage progress: %w", err)
	}
	s.hub.Publish(Update{
		JobID:     jobID,
		StageID:   stageID,
		Kind:      KindStageProgress,
		TS:        now,
		JobStatus: store.JobRunning,
		Stage:     &updated,
		Rollup:    rollupFrom(stages),
	})
	return nil
}

func (s *Service) recordFinished(ctx context.Context, jobID, stageID uuid.UUID, status store.StageStatus, lastError *string, now time.Time) error {
	updated, err := s.progress.FinishStage(ctx, jobID, stageID, status, lastError, now)
	if err != nil {
		return fmt.Errorf("finish stage: %w", err)
	}
	stages, err := s.progress.ListStages(ctx, jobID)
	if err != nil {
		return fmt.Errorf("list stage progress: %w", err)
	}
	kind := KindStageCompleted
	var note string
	if status == store.StageFailed {
		kind = KindStageFailed
		if lastError != nil {
			note = *lastError
		}
	}
	s.hub.Publish(Update{
		JobID:     jobID,
		StageID:   stageID,
		Kind:      kind,
		TS:        now,
		JobStatus: store.JobRunning,
		Stage:     &updated,
		Rollup:    rollupFrom(stages),
		Note:      note,
	})
	return s.maybeFinalize(ctx, jobID, stages, now)
}

func (s *Service) recordError(ctx context.Context, jobID, stageID uuid.UUID, ev StageEvent, now time.Time) error {
	id, err := s.ids.NewRawID()
	if err != nil {
		return fmt.Errorf("generate error id: %w", err)
	}
	var detail *string
	if ev.Detail != "" {
		detail = &ev.Detail
	}
	updated, err := s.progress.AppendStageError(ctx, store.StageError{
		ID:         id,
		JobID:      jobID,
		StageID:    stageID,
		ImageID:    ev.ImageID,
		Message:    ev.Message,
		Detail:     detail,
		OccurredAt: now,
	})
	if err != nil {
		return fmt.Errorf("append stage error: %w", err)
	}
	stages, err := s.progress.ListStages(ctx, jobID)
	if err != nil {
		return fmt.Errorf("list stage progress: %w", err)
	}
	s.hub.Publish(Update{
		JobID:     jobID,
		StageID:   stageID,
		Kind:      KindStageError,
		TS:        now,
		JobStatus: store.JobRunning,
		Stage:     &updated,
		Rollup:    rollupFrom(stages),
		Note:      ev.Message,
	})
	return nil
}

// maybeFinalize closes the job once every stage reached a terminal status:
// completed when no stage failed, failed otherwise. A concurrent finalize
// by another event is not an error.
func (s *Service) maybeFinalize(ctx context.Context, jobID uuid.UUID, stages []store.StageProgress, now time.Time) error {
	if len(stages) == 0 {
		return nil
	}
	failed := 0
	for _, st := range stages {
		if !st.Status.Terminal() {
			return nil
		}
		if st.Status == store.StageFailed {
			failed++
		}
	}
	status := store.JobCompleted
	var errText *string
	if failed > 0 {
		status = store.JobFailed
		msg := fmt.Sprintf("%d of %d stages failed", failed, len(stages))
		errText = &msg
	}
	if err := s.finishJob(ctx, jobID, status, errText, stages, now); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil
		}
		return err
	}
	return nil
}

func (s *Service) finishJob(ctx context.Context, jobID uuid.UUID, status store.JobStatus, errText *string, stages []store.StageProgress, now time.Time) error {
	if err := s.jobs.FinishJob(ctx, jobID, status, errText, now); err != nil {
		return fmt.Errorf("finish job: %w", err)
	}
	telemetry.ObserveJob(string(status))
	kind := KindJobCompleted
	switch status {
	case store.JobFailed:
		kind = KindJobFailed
	case store.JobCanceled:
		kind = KindJobCanceled
	}
	var note string
	if errText != nil {
		note = *errText
	}
	s.hub.Publish(Update{
		JobID:     jobID,
		Kind:      kind,
		TS:        now,
		JobStatus: status,
		Rollup:    rollupFrom(stages),
		Note:      note,
	})
	return nil
}

// reloadStages returns the row for stageID together with all rows of the
// job from a single read.
func (s *Service) reloadStages(ctx context.Context, jobID, stageID uuid.UUID) (*store.StageProgress, []store.StageProgress, error) {
	stages, err := s.progress.ListStages(ctx, jobID)
	if err != nil {
		return nil, nil, fmt.Errorf("list stage progress: %w", err)
	}
	for i := range stages {
		if stages[i].StageID == stageID {
			return &stages[i], stages, nil
		}
	}
	return nil, stages, nil
}
