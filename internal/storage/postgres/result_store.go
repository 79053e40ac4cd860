package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/argushq/argus/internal/store"
)

const resultColumns = `id, job_id, stage_id, image_id, response_text, confidence, latency_ms, model, created_at`

// ResultStore implements store.ResultRepository using Postgres.
type ResultStore struct {
	db DB
}

// NewResultStore creates a new ResultStore.
func NewResultStore(db DB) *ResultStore {
	return &ResultStore{db: db}
}

// InsertResults stores the batch in one transaction so a failed insert
// leaves nothing behind.
func (s *ResultStore) InsertResults(ctx context.Context, results []store.JobResult) error {
	if len(results) == 0 {
		return nil
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin insert results: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := `
		INSERT INTO job_results (id, job_id, stage_id, image_id, response_text, confidence, latency_ms, model, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9);
	`
	for _, r := range results {
		_, err := tx.Exec(ctx, query, r.ID, r.JobID, r.StageID, r.ImageID, r.ResponseText, r.Confidence, r.LatencyMS, r.Model, r.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert result %s: %w", r.ID, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit insert results: %w", err)
	}
	return nil
}

// GetResult retrieves one result row.
func (s *ResultStore) GetResult(ctx context.Context, id uuid.UUID) (store.JobResult, error) {
	query := `SELECT ` + resultColumns + ` FROM job_results WHERE id = $1;`
	r, err := scanResult(s.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.JobResult{}, store.ErrNotFound
		}
		return store.JobResult{}, fmt.Errorf("get result: %w", err)
	}
	return r, nil
}

// ListByJob retrieves a job's results newest first. Nil filter fields
// match everything.
func (s *ResultStore) ListByJob(ctx context.Context, jobID uuid.UUID, filter store.ResultFilter, limit, offset int) ([]store.JobResult, error) {
	query := `
		SELECT ` + resultColumns + `
		FROM job_results
		WHERE job_id = $1
		  AND ($2::uuid IS NULL OR stage_id = $2)
		  AND ($3::uuid IS NULL OR image_id = $3)
		  AND ($4::double precision IS NULL OR confidence >= $4)
		ORDER BY created_at DESC, id
		LIMIT $5 OFFSET $6;
	`
	rows, err := s.db.Query(ctx, query, jobID, filter.StageID, filter.ImageID, filter.MinConfidence, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	return collectResults(rows)
}

// ListSiblings retrieves the other results for the same image within the
// same job, in stage insertion order.
func (s *ResultStore) ListSiblings(ctx context.Context, jobID, imageID, resultID uuid.UUID) ([]store.JobResult, error) {
	query := `
		SELECT ` + resultColumns + `
		FROM job_results
		WHERE job_id = $1 AND image_id = $2 AND id <> $3
		ORDER BY created_at, id;
	`
	rows, err := s.db.Query(ctx, query, jobID, imageID, resultID)
	if err != nil {
		return nil, fmt.Errorf("list sibling results: %w", err)
	}
	return collectResults(rows)
}

// JobStats aggregates the whole job plus a per-stage breakdown. A job with
// no results returns zeroed figures rather than an error.
func (s *ResultStore) JobStats(ctx context.Context, jobID uuid.UUID) (store.JobResultStats, error) {
	stats := store.JobResultStats{JobID: jobID}

	overall := `
		SELECT COUNT(*),
		       COALESCE(AVG(confidence), 0),
		       COALESCE(MIN(confidence), 0),
		       COALESCE(MAX(confidence), 0),
		       COALESCE(AVG(latency_ms), 0)
		FROM job_results
		WHERE job_id = $1;
	`
	err := s.db.QueryRow(ctx, overall, jobID).Scan(
		&stats.ResultCount,
		&stats.AvgConfidence,
		&stats.MinConfidence,
		&stats.MaxConfidence,
		&stats.AvgLatencyMS,
	)
	if err != nil {
		return store.JobResultStats{}, fmt.Errorf("aggregate job results: %w", err)
	}
	if stats.ResultCount == 0 {
		return stats, nil
	}

	perStage := `
		SELECT stage_id, COUNT(*), COALESCE(AVG(confidence), 0), COALESCE(AVG(latency_ms), 0)
		FROM job_results
		WHERE job_id = $1
		GROUP BY stage_id
		ORDER BY stage_id;
	`
	rows, err := s.db.Query(ctx, perStage, jobID)
	if err != nil {
		return store.JobResultStats{}, fmt.Errorf("aggregate stage results: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ss store.StageResultStats
		if err := rows.Scan(&ss.StageID, &ss.ResultCount, &ss.AvgConfidence, &ss.AvgLatencyMS); err != nil {
			return store.JobResultStats{}, fmt.Errorf("scan stage stats row: %w", err)
		}
		stats.PerStage = append(stats.PerStage, ss)
	}
	if err := rows.Err(); err != nil {
		return store.JobResultStats{}, fmt.Errorf("aggregate stage results: %w", err)
	}
	return stats, nil
}

func collectResults(rows pgx.Rows) ([]store.JobResult, error) {
	defer rows.Close()

	var out []store.JobResult
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, fmt.Errorf("scan result row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read result rows: %w", err)
	}
	return out, nil
}

func scanResult(row pgx.Row) (store.JobResult, error) {
	var r store.JobResult
	err := row.Scan(
		&r.ID,
		&r.JobID,
		&r.StageID,
		&r.ImageID,
		&r.ResponseText,
		&r.Confidence,
		&r.LatencyMS,
		&r.Model,
		&r.CreatedAt,
	)
	if err != nil {
		return store.JobResult{}, err
	}
	return r, nil
}
