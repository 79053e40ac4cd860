package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// StageStatus mirrors the stage_progress status column.
type StageStatus string

// Stage statuses persisted in stage_progress.status.
const (
	StagePending   StageStatus = "pending"
	StageRunning   StageStatus = "running"
	StageCompleted StageStatus = "completed"
	StageFailed    StageStatus = "failed"
	StageCanceled  StageStatus = "canceled"
)

// Terminal reports whether the status permits no further transitions.
func (s StageStatus) Terminal() bool {
	switch s {
	case StageCompleted, StageFailed, StageCanceled:
		return true
	}
	return false
}

// StageProgress models per-(job, stage) execution state reported by workers.
type StageProgress struct {
	// JobID and StageID form the primary key.
	JobID   uuid.UUID
	StageID uuid.UUID
	// Status is pending/running/completed/failed/canceled.
	Status StageStatus
	// ImagesTotal is fixed when the row is seeded at job start.
	ImagesTotal int64
	// ImagesDone and ImagesFailed are clamped into [0, ImagesTotal] and
	// never regress.
	ImagesDone   int64
	ImagesFailed int64
	// ErrorCount counts accumulated stage_errors rows.
	ErrorCount int64
	// StartedAt is nil until the stage is first marked running.
	StartedAt *time.Time
	// FinishedAt is nil until the stage reaches a terminal status.
	FinishedAt *time.Time
	// LastError holds the most recent failure message, if any.
	LastError *string
	// UpdatedAt captures the timestamp of the most recent change.
	UpdatedAt time.Time
}

// StageError is one accumulated error report against a stage.
type StageError struct {
	ID      uuid.UUID
	JobID   uuid.UUID
	StageID uuid.UUID
	// ImageID is set when the error concerns a single image.
	ImageID *uuid.UUID
	// Message is the short operator-facing description.
	Message string
	// Detail optionally carries the full worker diagnostic.
	Detail     *string
	OccurredAt time.Time
}

// ProgressRepository persists incremental stage progress.
type ProgressRepository interface {
	// SeedStages inserts one pending row per stage id with the given
	// images_total, skipping rows that already exist.
	SeedStages(ctx context.Context, jobID uuid.UUID, stageIDs []uuid.UUID, imagesTotal int64, at time.Time) error
	// GetStage loads one row or returns ErrNotFound.
	GetStage(ctx context.Context, jobID, stageID uuid.UUID) (StageProgress, error)
	// ListStages returns every row for the job in stage position order.
	ListStages(ctx context.Context, jobID uuid.UUID) ([]StageProgress, error)
	// MarkStageRunning transitions pending to running, stamping started_at
	// once. Rows already running are a no-op; unknown rows return
	// ErrNotFound and terminal rows ErrConflict.
	MarkStageRunning(ctx context.Context, jobID, stageID uuid.UUID, at time.Time) error
	// ApplyProgress adds the deltas under the clamp rules and returns the
	// updated row. Terminal rows return ErrConflict.
	ApplyProgress(ctx context.Context, jobID, stageID uuid.UUID, doneDelta, failedDelta int64, at time.Time) (StageProgress, error)
	// FinishStage applies a terminal status and returns the updated row.
	// Already-terminal rows return ErrConflict.
	FinishStage(ctx context.Context, jobID, stageID uuid.UUID, status StageStatus, lastError *string, at time.Time) (StageProgress, error)
	// CancelOpenStages marks every non-terminal row for the job canceled
	// and returns the number of rows changed.
	CancelOpenStages(ctx context.Context, jobID uuid.UUID, at time.Time) (int64, error)
	// AppendStageError stores the error, bumps the stage error_count, and
	// returns the updated progress row. Terminal rows return ErrConflict.
	AppendStageError(ctx context.Context, e StageError) (StageProgress, error)
	// ListStageErrors returns a job's errors, newest first.
	ListStageErrors(ctx context.Context, jobID uuid.UUID, limit, offset int) ([]StageError, error)
}
