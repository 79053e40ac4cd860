package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/argushq/argus/internal/store"
)

// JobStore implements store.JobRepository using Postgres.
type JobStore struct {
	db DB
}

// NewJobStore creates a new JobStore.
func NewJobStore(db DB) *JobStore {
	return &JobStore{db: db}
}

// CreateJob inserts the job and its image snapshot in one transaction.
func (s *JobStore) CreateJob(ctx context.Context, job store.Job, imageIDs []uuid.UUID) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin create job: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO jobs (id, pipeline_id, library_id, status, submitted_by, submitted_at, image_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7);
	`, job.ID, job.PipelineID, job.LibraryID, job.Status, job.SubmittedBy, job.SubmittedAt, job.ImageCount)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}

	if len(imageIDs) > 0 {
		_, err = tx.Exec(ctx, `
			INSERT INTO job_images (job_id, image_id)
			SELECT $1, img FROM unnest($2::uuid[]) AS img
			ON CONFLICT (job_id, image_id) DO NOTHING;
		`, job.ID, imageIDs)
		if err != nil {
			return fmt.Errorf("insert job image snapshot: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit create job: %w", err)
	}
	return nil
}

// GetJob retrieves a single job by its ID.
func (s *JobStore) GetJob(ctx context.Context, id uuid.UUID) (store.Job, error) {
	query := `
		SELECT id, pipeline_id, library_id, status, submitted_by, submitted_at, started_at, finished_at, error_text, image_count
		FROM jobs
		WHERE id = $1;
	`
	var job store.Job
	err := s.db.QueryRow(ctx, query, id).Scan(
		&job.ID,
		&job.PipelineID,
		&job.LibraryID,
		&job.Status,
		&job.SubmittedBy,
		&job.SubmittedAt,
		&job.StartedAt,
		&job.FinishedAt,
		&job.ErrorText,
		&job.ImageCount,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Job{}, store.ErrNotFound
		}
		return store.Job{}, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// ListJobs retrieves jobs newest first, with optional status and pipeline
// filtering.
func (s *JobStore) ListJobs(ctx context.Context, filter store.JobFilter, limit, offset int) ([]store.Job, error) {
	query := `
		SELECT id, pipeline_id, library_id, status, submitted_by, submitted_at, started_at, finished_at, error_text, image_count
		FROM jobs
		WHERE ($1::text IS NULL OR status = $1)
		  AND ($2::uuid IS NULL OR pipeline_id = $2)
		ORDER BY submitted_at DESC
		LIMIT $3 OFFSET $4;
	`
	rows, err := s.db.Query(ctx, query, filter.Status, filter.PipelineID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []store.Job
	for rows.Next() {
		var job store.Job
		err := rows.Scan(
			&job.ID,
			&job.PipelineID,
			&job.LibraryID,
			&job.Status,
			&job.SubmittedBy,
			&job.SubmittedAt,
			&job.StartedAt,
			&job.FinishedAt,
			&job.ErrorText,
			&job.ImageCount,
		)
		if err != nil {
			return nil, fmt.Errorf("scan job row: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}

// MarkJobRunning transitions queued to running, stamping started_at once.
// Jobs already running are a no-op.
func (s *JobStore) MarkJobRunning(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `
		UPDATE jobs
		SET status = $1, started_at = COALESCE(started_at, $2)
		WHERE id = $3 AND status IN ($4, $1);
	`
	tag, err := s.db.Exec(ctx, query, store.JobRunning, at, id, store.JobQueued)
	if err != nil {
		return fmt.Errorf("mark job running: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.missingOrConflict(ctx, id)
	}
	return nil
}

// FinishJob applies a terminal status with an optional error text.
func (s *JobStore) FinishJob(ctx context.Context, id uuid.UUID, status store.JobStatus, errText *string, at time.Time) error {
	query := `
		UPDATE jobs
		SET status = $1, error_text = $2, finished_at = $3
		WHERE id = $4 AND status IN ($5, $6);
	`
	tag, err := s.db.Exec(ctx, query, status, errText, at, id, store.JobQueued, store.JobRunning)
	if err != nil {
		return fmt.Errorf("finish job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.missingOrConflict(ctx, id)
	}
	return nil
}

// ListJobImages retrieves the image snapshot recorded at submission.
func (s *JobStore) ListJobImages(ctx context.Context, jobID uuid.UUID) ([]uuid.UUID, error) {
	query := `
		SELECT image_id
		FROM job_images
		WHERE job_id = $1
		ORDER BY image_id;
	`
	rows, err := s.db.Query(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("list job images: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan job image id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list job images: %w", err)
	}
	return ids, nil
}

// JobHasImage reports whether imageID belongs to the job's snapshot.
func (s *JobStore) JobHasImage(ctx context.Context, jobID, imageID uuid.UUID) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM job_images WHERE job_id = $1 AND image_id = $2
		);
	`
	var found bool
	if err := s.db.QueryRow(ctx, query, jobID, imageID).Scan(&found); err != nil {
		return false, fmt.Errorf("check job image: %w", err)
	}
	return found, nil
}

// missingOrConflict distinguishes an unknown job from a guarded update that
// matched zero rows because the job is already terminal.
func (s *JobStore) missingOrConflict(ctx context.Context, id uuid.UUID) error {
	var status store.JobStatus
	err := s.db.QueryRow(ctx, `SELECT status FROM jobs WHERE id = $1;`, id).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.ErrNotFound
		}
		return fmt.Errorf("check job status: %w", err)
	}
	return fmt.Errorf("job is %s: %w", status, store.ErrConflict)
}
