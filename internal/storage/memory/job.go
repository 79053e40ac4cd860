package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/argushq/argus/internal/store"
)

// CreateJob stores the job and its deduplicated image snapshot.
func (s *Store) CreateJob(_ context.Context, job store.Job, imageIDs []uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("job %s already exists", job.ID)
	}
	if _, ok := s.pipelines[job.PipelineID]; !ok {
		return fmt.Errorf("pipeline %s: %w", job.PipelineID, store.ErrNotFound)
	}
	if _, ok := s.libraries[job.LibraryID]; !ok {
		return fmt.Errorf("library %s: %w", job.LibraryID, store.ErrNotFound)
	}

	seen := make(map[uuid.UUID]struct{}, len(imageIDs))
	snapshot := make([]uuid.UUID, 0, len(imageIDs))
	for _, id := range imageIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		snapshot = append(snapshot, id)
	}
	sort.Slice(snapshot, func(i, j int) bool { return snapshot[i].String() < snapshot[j].String() })

	s.jobs[job.ID] = job
	s.jobImages[job.ID] = snapshot
	return nil
}

// GetJob fetches one job.
func (s *Store) GetJob(_ context.Context, id uuid.UUID) (store.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return store.Job{}, store.ErrNotFound
	}
	return job, nil
}

// ListJobs returns jobs newest first, narrowed by filter.
func (s *Store) ListJobs(_ context.Context, filter store.JobFilter, limit, offset int) ([]store.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []store.Job
	for _, job := range s.jobs {
		if filter.Status != nil && job.Status != *filter.Status {
			continue
		}
		if filter.PipelineID != nil && job.PipelineID != *filter.PipelineID {
			continue
		}
		out = append(out, job)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].SubmittedAt.Equal(out[j].SubmittedAt) {
			return out[i].SubmittedAt.After(out[j].SubmittedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return paginate(out, limit, offset), nil
}

// MarkJobRunning transitions queued to running, stamping started_at once.
func (s *Store) MarkJobRunning(_ context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return store.ErrNotFound
	}
	switch job.Status {
	case store.JobQueued, store.JobRunning:
		job.Status = store.JobRunning
		if job.StartedAt == nil {
			started := at
			job.StartedAt = &started
		}
		s.jobs[id] = job
		return nil
	default:
		return fmt.Errorf("job is %s: %w", job.Status, store.ErrConflict)
	}
}

// FinishJob applies a terminal status with an optional error text.
func (s *Store) FinishJob(_ context.Context, id uuid.UUID, status store.JobStatus, errText *string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return store.ErrNotFound
	}
	if job.Status != store.JobQueued && job.Status != store.JobRunning {
		return fmt.Errorf("job is %s: %w", job.Status, store.ErrConflict)
	}
	job.Status = status
	job.ErrorText = nil
	if errText != nil {
		text := *errText
		job.ErrorText = &text
	}
	finished := at
	job.FinishedAt = &finished
	s.jobs[id] = job
	return nil
}

// ListJobImages returns the image snapshot recorded at submission.
func (s *Store) ListJobImages(_ context.Context, jobID uuid.UUID) ([]uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneIDs(s.jobImages[jobID]), nil
}

// JobHasImage reports whether imageID belongs to the job's snapshot.
func (s *Store) JobHasImage(_ context.Context, jobID, imageID uuid.UUID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range s.jobImages[jobID] {
		if id == imageID {
			return true, nil
		}
	}
	return false, nil
}
