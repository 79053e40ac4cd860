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

const validationColumns = `result_id, confidence_score, consistency_score, content_flags, overall_score, status, reviewed_by, review_note, computed_at, reviewed_at`

// ValidationStore implements store.ValidationRepository using Postgres.
type ValidationStore struct {
	db DB
}

// NewValidationStore creates a new ValidationStore.
func NewValidationStore(db DB) *ValidationStore {
	return &ValidationStore{db: db}
}

// UpsertValidation inserts or refreshes the computed metrics. A row that
// already carries a human review keeps its reviewed status; scores are
// refreshed either way.
func (s *ValidationStore) UpsertValidation(ctx context.Context, v store.ResultValidation) error {
	query := `
		INSERT INTO result_validations (result_id, confidence_score, consistency_score, content_flags, overall_score, status, computed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (result_id) DO UPDATE
		SET confidence_score = EXCLUDED.confidence_score,
		    consistency_score = EXCLUDED.consistency_score,
		    content_flags = EXCLUDED.content_flags,
		    overall_score = EXCLUDED.overall_score,
		    computed_at = EXCLUDED.computed_at,
		    status = CASE
		        WHEN result_validations.reviewed_by IS NULL THEN EXCLUDED.status
		        ELSE result_validations.status
		    END;
	`
	flags := v.ContentFlags
	if flags == nil {
		flags = []string{}
	}
	_, err := s.db.Exec(ctx, query, v.ResultID, v.ConfidenceScore, v.ConsistencyScore, flags, v.OverallScore, v.Status, v.ComputedAt)
	if err != nil {
		return fmt.Errorf("upsert validation: %w", err)
	}
	return nil
}

// GetByResult retrieves the validation row for one result.
func (s *ValidationStore) GetByResult(ctx context.Context, resultID uuid.UUID) (store.ResultValidation, error) {
	query := `SELECT ` + validationColumns + ` FROM result_validations WHERE result_id = $1;`
	v, err := scanValidation(s.db.QueryRow(ctx, query, resultID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.ResultValidation{}, store.ErrNotFound
		}
		return store.ResultValidation{}, fmt.Errorf("get validation: %w", err)
	}
	return v, nil
}

// ListByStatus retrieves rows with the given status, oldest computed first.
func (s *ValidationStore) ListByStatus(ctx context.Context, status store.ValidationStatus, limit, offset int) ([]store.ResultValidation, error) {
	query := `
		SELECT ` + validationColumns + `
		FROM result_validations
		WHERE status = $1
		ORDER BY computed_at, result_id
		LIMIT $2 OFFSET $3;
	`
	rows, err := s.db.Query(ctx, query, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list validations: %w", err)
	}
	defer rows.Close()

	var out []store.ResultValidation
	for rows.Next() {
		v, err := scanValidation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan validation row: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list validations: %w", err)
	}
	return out, nil
}

// SetReview applies a human decision to a row still awaiting one.
func (s *ValidationStore) SetReview(ctx context.Context, resultID uuid.UUID, status store.ValidationStatus, reviewer, note string, at time.Time) error {
	query := `
		UPDATE result_validations
		SET status = $2, reviewed_by = $3, review_note = $4, reviewed_at = $5
		WHERE result_id = $1 AND status IN ($6, $7);
	`
	tag, err := s.db.Exec(ctx, query, resultID, status, reviewer, note, at, store.ValidationPending, store.ValidationNeedsReview)
	if err != nil {
		return fmt.Errorf("set review: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return s.missingOrConflict(ctx, resultID)
	}
	return nil
}

// OverallScores bulk-loads overall_score for the given result ids. Results
// without a validation row are absent from the map.
func (s *ValidationStore) OverallScores(ctx context.Context, resultIDs []uuid.UUID) (map[uuid.UUID]float64, error) {
	out := make(map[uuid.UUID]float64, len(resultIDs))
	if len(resultIDs) == 0 {
		return out, nil
	}
	query := `SELECT result_id, overall_score FROM result_validations WHERE result_id = ANY($1);`
	rows, err := s.db.Query(ctx, query, resultIDs)
	if err != nil {
		return nil, fmt.Errorf("load overall scores: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id uuid.UUID
		var score float64
		if err := rows.Scan(&id, &score); err != nil {
			return nil, fmt.Errorf("scan overall score row: %w", err)
		}
		out[id] = score
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load overall scores: %w", err)
	}
	return out, nil
}

func (s *ValidationStore) missingOrConflict(ctx context.Context, resultID uuid.UUID) error {
	var status store.ValidationStatus
	err := s.db.QueryRow(ctx, `SELECT status FROM result_validations WHERE result_id = $1;`, resultID).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.ErrNotFound
		}
		return fmt.Errorf("check validation status: %w", err)
	}
	return fmt.Errorf("validation is %s: %w", status, store.ErrConflict)
}

func scanValidation(row pgx.Row) (store.ResultValidation, error) {
	var v store.ResultValidation
	err := row.Scan(
		&v.ResultID,
		&v.ConfidenceScore,
		&v.ConsistencyScore,
		&v.ContentFlags,
		&v.OverallScore,
		&v.Status,
		&v.ReviewedBy,
		&v.ReviewNote,
		&v.ComputedAt,
		&v.ReviewedAt,
	)
	if err != nil {
		return store.ResultValidation{}, err
	}
	return v, nil
}
