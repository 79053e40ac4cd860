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

// progressColumns is the scan order shared by every stage_progress read.
const progressColumns = `job_id, stage_id, status, images_total, images_done, images_failed, error_count, started_at, finished_at, last_error, updated_at`

// ProgressStore implements store.ProgressRepository using Postgres.
type ProgressStore struct {
	db DB
}

// NewProgressStore creates a new ProgressStore.
func NewProgressStore(db DB) *ProgressStore {
	return &ProgressStore{db: db}
}

// SeedStages inserts one pending row per stage id, skipping rows that
// already exist so repeated job starts stay idempotent.
func (s *ProgressStore) SeedStages(ctx context.Context, jobID uuid.UUID, stageIDs []uuid.UUID, imagesTotal int64, at time.Time) error {
	if len(stageIDs) == 0 {
		return nil
	}
	query := `
		INSERT INTO stage_progress (job_id, stage_id, status, images_total, updated_at)
		SELECT $1, sid, $3, $4, $5 FROM unnest($2::uuid[]) AS sid
		ON CONFLICT (job_id, stage_id) DO NOTHING;
	`
	if _, err := s.db.Exec(ctx, query, jobID, stageIDs, store.StagePending, imagesTotal, at); err != nil {
		return fmt.Errorf("seed stage progress: %w", err)
	}
	return nil
}

// GetStage retrieves one progress row.
func (s *ProgressStore) GetStage(ctx context.Context, jobID, stageID uuid.UUID) (store.StageProgress, error) {
	query := `SELECT ` + progressColumns + ` FROM stage_progress WHERE job_id = $1 AND stage_id = $2;`
	row, err := scanStageProgress(s.db.QueryRow(ctx, query, jobID, stageID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.StageProgress{}, store.ErrNotFound
		}
		return store.StageProgress{}, fmt.Errorf("get stage progress: %w", err)
	}
	return row, nil
}

// ListStages retrieves every progress row for the job in pipeline position
// order.
func (s *ProgressStore) ListStages(ctx context.Context, jobID uuid.UUID) ([]store.StageProgress, error) {
	query := `
		SELECT sp.job_id, sp.stage_id, sp.status, sp.images_total, sp.images_done, sp.images_failed, sp.error_count,
		       sp.started_at, sp.finished_at, sp.last_error, sp.updated_at
		FROM stage_progress sp
		JOIN pipeline_stages ps ON ps.id = sp.stage_id
		WHERE sp.job_id = $1
		ORDER BY ps.position;
	`
	rows, err := s.db.Query(ctx, query, jobID)
	if err != nil {
		return nil, fmt.Errorf("list stage progress: %w", err)
	}
	defer rows.Close()

	var out []store.StageProgress
	for rows.Next() {
		row, err := scanStageProgress(rows)
		if err != nil {
			return nil, fmt.Errorf("scan stage progress row: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list stage progress: %w", err)
	}
	return out, nil
}

// MarkStageRunning transitions pending to running, stamping started_at
// once. Rows already running are a no-op.
func (s *ProgressStore) MarkStageRunning(ctx context.Context, jobID, stageID uuid.UUID, at time.Time) error {
	query := `
		UPDATE stage_progress
		SET status = $1, started_at = COALESCE(started_at, $2), updated_at = $2
		WHERE job_id = $3 AND stage_id = $4 AND status IN ($5, $1);
	`
	tag, err := s.db.Exec(ctx, query, store.StageRunning, at, jobID, stageID, store.StagePending)
	if err != nil {
		return fmt.Errorf("mark stage running: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.missingOrConflict(ctx, jobID, stageID)
	}
	return nil
}

// ApplyProgress adds the worker deltas. Counters clamp into
// [0, images_total].
func (s *ProgressStore) ApplyProgress(ctx context.Context, jobID, stageID uuid.UUID, doneDelta, failedDelta int64, at time.Time) (store.StageProgress, error) {
	query := `
		UPDATE stage_progress
		SET images_done = LEAST(images_total, GREATEST(0, images_done + $3)),
		    images_failed = LEAST(images_total, GREATEST(0, images_failed + $4)),
		    updated_at = $5
		WHERE job_id = $1 AND stage_id = $2 AND status IN ($6, $7)
		RETURNING ` + progressColumns + `;
	`
	row, err := scanStageProgress(s.db.QueryRow(ctx, query, jobID, stageID, doneDelta, failedDelta, at, store.StagePending, store.StageRunning))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.StageProgress{}, s.missingOrConflict(ctx, jobID, stageID)
		}
		return store.StageProgress{}, fmt.Errorf("apply stage progress: %w", err)
	}
	return row, nil
}

// FinishStage applies a terminal status. A nil lastError keeps whatever the
// last error report stored.
func (s *ProgressStore) FinishStage(ctx context.Context, jobID, stageID uuid.UUID, status store.StageStatus, lastError *string, at time.Time) (store.StageProgress, error) {
	query := `
		UPDATE stage_progress
		SET status = $3, finished_at = $4, last_error = COALESCE($5, last_error), updated_at = $4
		WHERE job_id = $1 AND stage_id = $2 AND status IN ($6, $7)
		RETURNING ` + progressColumns + `;
	`
	row, err := scanStageProgress(s.db.QueryRow(ctx, query, jobID, stageID, status, at, lastError, store.StagePending, store.StageRunning))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.StageProgress{}, s.missingOrConflict(ctx, jobID, stageID)
		}
		return store.StageProgress{}, fmt.Errorf("finish stage: %w", err)
	}
	return row, nil
}

// CancelOpenStages marks every non-terminal row for the job canceled and
// reports how many rows changed.
func (s *ProgressStore) CancelOpenStages(ctx context.Context, jobID uuid.UUID, at time.Time) (int64, error) {
	query := `
		UPDATE stage_progress
		SET status = $1, finished_at = $2, updated_at = $2
		WHERE job_id = $3 AND status IN ($4, $5);
	`
	tag, err := s.db.Exec(ctx, query, store.StageCanceled, at, jobID, store.StagePending, store.StageRunning)
	if err != nil {
		return 0, fmt.Errorf("cancel open stages: %w", err)
	}
	return tag.RowsAffected(), nil
}

// AppendStageError stores the error row and bumps the stage error counter
// in one transaction, returning the updated progress row.
func (s *ProgressStore) AppendStageError(ctx context.Context, e store.StageError) (store.StageProgress, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return store.StageProgress{}, fmt.Errorf("begin append stage error: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := `
		UPDATE stage_progress
		SET error_count = error_count + 1, last_error = $3, updated_at = $4
		WHERE job_id = $1 AND stage_id = $2 AND status IN ($5, $6)
		RETURNING ` + progressColumns + `;
	`
	row, err := scanStageProgress(tx.QueryRow(ctx, query, e.JobID, e.StageID, e.Message, e.OccurredAt, store.StagePending, store.StageRunning))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.StageProgress{}, s.missingOrConflict(ctx, e.JobID, e.StageID)
		}
		return store.StageProgress{}, fmt.Errorf("bump stage error count: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO stage_errors (id, job_id, stage_id, image_id, message, detail, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7);
	`, e.ID, e.JobID, e.StageID, e.ImageID, e.Message, e.Detail, e.OccurredAt)
	if err != nil {
		return store.StageProgress{}, fmt.Errorf("insert stage error: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return store.StageProgress{}, fmt.Errorf("commit append stage error: %w", err)
	}
	return row, nil
}

// ListStageErrors retrieves a job's errors, newest first.
func (s *ProgressStore) ListStageErrors(ctx context.Context, jobID uuid.UUID, limit, offset int) ([]store.StageError, error) {
	query := `
		SELECT id, job_id, stage_id, image_id, message, detail, occurred_at
		FROM stage_errors
		WHERE job_id = $1
		ORDER BY occurred_at DESC
		LIMIT $2 OFFSET $3;
	`
	rows, err := s.db.Query(ctx, query, jobID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list stage errors: %w", err)
	}
	defer rows.Close()

	var out []store.StageError
	for rows.Next() {
		var e store.StageError
		if err := rows.Scan(&e.ID, &e.JobID, &e.StageID, &e.ImageID, &e.Message, &e.Detail, &e.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan stage error row: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list stage errors: %w", err)
	}
	return out, nil
}

// missingOrConflict distinguishes an unknown (job, stage) pair from a
// guarded update that matched zero rows because the row is terminal.
func (s *ProgressStore) missingOrConflict(ctx context.Context, jobID, stageID uuid.UUID) error {
	var status store.StageStatus
	err := s.db.QueryRow(ctx, `SELECT status FROM stage_progress WHERE job_id = $1 AND stage_id = $2;`, jobID, stageID).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.ErrNotFound
		}
		return fmt.Errorf("check stage status: %w", err)
	}
	return fmt.Errorf("stage is %s: %w", status, store.ErrConflict)
}

// scanStageProgress reads one row in progressColumns order.
func scanStageProgress(row pgx.Row) (store.StageProgress, error) {
	var sp store.StageProgress
	err := row.Scan(
		&sp.JobID,
		&sp.StageID,
		&sp.Status,
		&sp.ImagesTotal,
		&sp.ImagesDone,
		&sp.ImagesFailed,
		&sp.ErrorCount,
		&sp.StartedAt,
		&sp.FinishedAt,
		&sp.LastError,
		&sp.UpdatedAt,
	)
	if err != nil {
		return store.StageProgress{}, err
	}
	return sp, nil
}
