package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// JobStatus mirrors the jobs status column.
type JobStatus string

// Job statuses persisted in jobs.status.
const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCanceled  JobStatus = "canceled"
)

// Terminal reports whether the status permits no further transitions.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobCompleted, JobFailed, JobCanceled:
		return true
	}
	return false
}

// ValidJobStatus reports whether s is one of the persisted statuses.
func ValidJobStatus(s JobStatus) bool {
	switch s {
	case JobQueued, JobRunning, JobCompleted, JobFailed, JobCanceled:
		return true
	}
	return false
}

// Job models one execution of a pipeline against a snapshot of library
// images. The snapshot is fixed at submission and recorded in job_images.
type Job struct {
	ID         uuid.UUID
	PipelineID uuid.UUID
	LibraryID  uuid.UUID
	Status     JobStatus
	// SubmittedBy is the authenticated subject that created the job.
	SubmittedBy string
	SubmittedAt time.Time
	// StartedAt is nil until a worker reports the job running.
	StartedAt *time.Time
	// FinishedAt is nil until the job reaches a terminal status.
	FinishedAt *time.Time
	// ErrorText optionally stores the final failure reason.
	ErrorText *string
	// ImageCount is the size of the image snapshot taken at submission.
	ImageCount int
}

// JobFilter narrows ListJobs.
type JobFilter struct {
	Status     *JobStatus
	PipelineID *uuid.UUID
}

// JobRepository persists jobs and their submission-time image snapshots.
type JobRepository interface {
	// CreateJob inserts the job and its image snapshot atomically.
	CreateJob(ctx context.Context, job Job, imageIDs []uuid.UUID) error
	// GetJob loads a single job or returns ErrNotFound.
	GetJob(ctx context.Context, id uuid.UUID) (Job, error)
	// ListJobs returns jobs newest first, narrowed by filter.
	ListJobs(ctx context.Context, filter JobFilter, limit, offset int) ([]Job, error)
	// MarkJobRunning transitions queued to running, stamping started_at
	// once. Jobs already running are a no-op; unknown ids return
	// ErrNotFound and terminal jobs ErrConflict.
	MarkJobRunning(ctx context.Context, id uuid.UUID, at time.Time) error
	// FinishJob applies a terminal status. Unknown ids return ErrNotFound
	// and already-terminal jobs ErrConflict.
	FinishJob(ctx context.Context, id uuid.UUID, status JobStatus, errText *string, at time.Time) error
	// ListJobImages returns the image snapshot recorded at submission.
	ListJobImages(ctx context.Context, jobID uuid.UUID) ([]uuid.UUID, error)
	// JobHasImage reports whether imageID belongs to the job's snapshot.
	JobHasImage(ctx context.Context, jobID, imageID uuid.UUID) (bool, error)
}
