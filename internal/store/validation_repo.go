package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ValidationStatus mirrors the result_validations status column.
type ValidationStatus string

// Validation statuses persisted in result_validations.status.
const (
	ValidationPending     ValidationStatus = "pending"
	ValidationApproved    ValidationStatus = "approved"
	ValidationRejected    ValidationStatus = "rejected"
	ValidationNeedsReview ValidationStatus = "needs_review"
)

// ValidValidationStatus reports whether s is one of the persisted statuses.
func ValidValidationStatus(s ValidationStatus) bool {
	switch s {
	case ValidationPending, ValidationApproved, ValidationRejected, ValidationNeedsReview:
		return true
	}
	return false
}

// ResultValidation holds the derived quality metrics for one result.
type ResultValidation struct {
	ResultID uuid.UUID
	// ConfidenceScore is the model confidence clamped to [0, 1].
	ConfidenceScore float64
	// ConsistencyScore measures agreement with sibling results in [0, 1].
	ConsistencyScore float64
	// ContentFlags lists detected content problems (empty_response, ...).
	ContentFlags []string
	// OverallScore blends the component scores into [0, 1].
	OverallScore float64
	Status       ValidationStatus
	// ReviewedBy and ReviewNote are set by a human review decision.
	ReviewedBy *string
	ReviewNote *string
	ComputedAt time.Time
	ReviewedAt *time.Time
}

// ValidationRepository persists derived quality metrics.
type ValidationRepository interface {
	// UpsertValidation inserts or replaces the computed metrics. Rows that
	// already carry a human review keep their status and review fields;
	// only the scores are refreshed.
	UpsertValidation(ctx context.Context, v ResultValidation) error
	// GetByResult loads one row or returns ErrNotFound.
	GetByResult(ctx context.Context, resultID uuid.UUID) (ResultValidation, error)
	// ListByStatus returns rows with the given status, oldest computed
	// first so reviewers drain the queue in order.
	ListByStatus(ctx context.Context, status ValidationStatus, limit, offset int) ([]ResultValidation, error)
	// SetReview applies a review decision. Unknown rows return ErrNotFound;
	// rows not pending or needs_review return ErrConflict.
	SetReview(ctx context.Context, resultID uuid.UUID, status ValidationStatus, reviewer, note string, at time.Time) error
	// OverallScores bulk-loads overall_score keyed by result id. Missing
	// rows are simply absent from the map.
	OverallScores(ctx context.Context, resultIDs []uuid.UUID) (map[uuid.UUID]float64, error)
}
