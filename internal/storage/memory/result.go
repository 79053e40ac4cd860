package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/argushq/argus/internal/store"
)

// InsertResults stores the batch. Either every result lands or none do.
func (s *Store) InsertResults(_ context.Context, results []store.JobResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range results {
		if _, exists := s.results[r.ID]; exists {
			return fmt.Errorf("result %s already exists", r.ID)
		}
	}
	for _, r := range results {
		s.results[r.ID] = r
		s.resultsByJob[r.JobID] = append(s.resultsByJob[r.JobID], r.ID)
	}
	return nil
}

// GetResult fetches one result.
func (s *Store) GetResult(_ context.Context, id uuid.UUID) (store.JobResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.results[id]
	if !ok {
		return store.JobResult{}, store.ErrNotFound
	}
	return r, nil
}

// ListByJob returns a job's results newest first, narrowed by filter.
func (s *Store) ListByJob(_ context.Context, jobID uuid.UUID, filter store.ResultFilter, limit, offset int) ([]store.JobResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []store.JobResult
	for _, id := range s.resultsByJob[jobID] {
		r := s.results[id]
		if filter.StageID != nil && r.StageID != *filter.StageID {
			continue
		}
		if filter.ImageID != nil && r.ImageID != *filter.ImageID {
			continue
		}
		if filter.MinConfidence != nil && r.Confidence < *filter.MinConfidence {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return paginate(out, limit, offset), nil
}

// ListSiblings returns the other results recorded for the same image in the
// same job, oldest first.
func (s *Store) ListSiblings(_ context.Context, jobID, imageID, resultID uuid.UUID) ([]store.JobResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []store.JobResult
	for _, id := range s.resultsByJob[jobID] {
		r := s.results[id]
		if r.ImageID != imageID || r.ID == resultID {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

// JobStats aggregates count and confidence/latency figures per job and per
// stage.
func (s *Store) JobStats(_ context.Context, jobID uuid.UUID) (store.JobResultStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := store.JobResultStats{JobID: jobID}

	perStage := make(map[uuid.UUID]*store.StageResultStats)
	var confSum, latSum float64
	for _, id := range s.resultsByJob[jobID] {
		r := s.results[id]
		stats.ResultCount++
		confSum += r.Confidence
		latSum += float64(r.LatencyMS)
		if stats.ResultCount == 1 || r.Confidence < stats.MinConfidence {
			stats.MinConfidence = r.Confidence
		}
		if r.Confidence > stats.MaxConfidence {
			stats.MaxConfidence = r.Confidence
		}

		ss, ok := perStage[r.StageID]
		if !ok {
			ss = &store.StageResultStats{StageID: r.StageID}
			perStage[r.StageID] = ss
		}
		ss.ResultCount++
		ss.AvgConfidence += r.Confidence
		ss.AvgLatencyMS += float64(r.LatencyMS)
	}
	if stats.ResultCount == 0 {
		return stats, nil
	}
	stats.AvgConfidence = confSum / float64(stats.ResultCount)
	stats.AvgLatencyMS = latSum / float64(stats.ResultCount)

	for _, ss := range perStage {
		ss.AvgConfidence /= float64(ss.ResultCount)
		ss.AvgLatencyMS /= float64(ss.ResultCount)
		stats.PerStage = append(stats.PerStage, *ss)
	}
	sort.Slice(stats.PerStage, func(i, j int) bool {
		return stats.PerStage[i].StageID.String() < stats.PerStage[j].StageID.String()
	})
	return stats, nil
}
