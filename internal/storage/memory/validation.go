package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/argushq/argus/internal/store"
)

// UpsertValidation inserts or refreshes the computed metrics. Rows that
// already carry a human review keep their status and review fields.
func (s *Store) UpsertValidation(_ context.Context, v store.ResultValidation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	flags := cloneStrings(v.ContentFlags)
	if flags == nil {
		flags = []string{}
	}
	row := store.ResultValidation{
		ResultID:         v.ResultID,
		ConfidenceScore:  v.ConfidenceScore,
		ConsistencyScore: v.ConsistencyScore,
		ContentFlags:     flags,
		OverallScore:     v.OverallScore,
		Status:           v.Status,
		ComputedAt:       v.ComputedAt,
	}
	if cur, exists := s.validations[v.ResultID]; exists {
		row.ReviewedBy = cur.ReviewedBy
		row.ReviewNote = cur.ReviewNote
		row.ReviewedAt = cur.ReviewedAt
		if cur.ReviewedBy != nil {
			row.Status = cur.Status
		}
	}
	s.validations[v.ResultID] = row
	return nil
}

// GetByResult fetches the validation row for one result.
func (s *Store) GetByResult(_ context.Context, resultID uuid.UUID) (store.ResultValidation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.validations[resultID]
	if !ok {
		return store.ResultValidation{}, store.ErrNotFound
	}
	v.ContentFlags = cloneStrings(v.ContentFlags)
	return v, nil
}

// ListByStatus returns rows with the given status, oldest computed first.
func (s *Store) ListByStatus(_ context.Context, status store.ValidationStatus, limit, offset int) ([]store.ResultValidation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []store.ResultValidation
	for _, v := range s.validations {
		if v.Status != status {
			continue
		}
		v.ContentFlags = cloneStrings(v.ContentFlags)
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ComputedAt.Equal(out[j].ComputedAt) {
			return out[i].ComputedAt.Before(out[j].ComputedAt)
		}
		return out[i].ResultID.String() < out[j].ResultID.String()
	})
	return paginate(out, limit, offset), nil
}

// SetReview applies a review decision to a row still awaiting one.
func (s *Store) SetReview(_ context.Context, resultID uuid.UUID, status store.ValidationStatus, reviewer, note string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.validations[resultID]
	if !ok {
		return store.ErrNotFound
	}
	if v.Status != store.ValidationPending && v.Status != store.ValidationNeedsReview {
		return fmt.Errorf("validation is %s: %w", v.Status, store.ErrConflict)
	}
	v.Status = status
	v.ReviewedBy = &reviewer
	v.ReviewNote = &note
	reviewed := at
	v.ReviewedAt = &reviewed
	s.validations[resultID] = v
	return nil
}

// OverallScores bulk-loads overall_score keyed by result id.
func (s *Store) OverallScores(_ context.Context, resultIDs []uuid.UUID) (map[uuid.UUID]float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[uuid.UUID]float64, len(resultIDs))
	for _, id := range resultIDs {
		if v, ok := s.validations[id]; ok {
			out[id] = v.OverallScore
		}
	}
	return out, nil
}
