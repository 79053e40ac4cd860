package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/argushq/argus/internal/store"
)

// SeedStages inserts one pending row per stage id, skipping rows that
// already exist.
func (s *Store) SeedStages(_ context.Context, jobID uuid.UUID, stageIDs []uuid.UUID, imagesTotal int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := s.progress[jobID]
	if rows == nil {
		rows = make(map[uuid.UUID]store.StageProgress, len(stageIDs))
		s.progress[jobID] = rows
	}
	for _, stageID := range stageIDs {
		if _, exists := rows[stageID]; exists {
			continue
		}
		rows[stageID] = store.StageProgress{
			JobID:       jobID,
			StageID:     stageID,
			Status:      store.StagePending,
			ImagesTotal: imagesTotal,
			UpdatedAt:   at,
		}
	}
	return nil
}

// GetStage fetches one progress row.
func (s *Store) GetStage(_ context.Context, jobID, stageID uuid.UUID) (store.StageProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.progress[jobID][stageID]
	if !ok {
		return store.StageProgress{}, store.ErrNotFound
	}
	return row, nil
}

// ListStages returns every progress row for the job in pipeline position
// order.
func (s *Store) ListStages(_ context.Context, jobID uuid.UUID) ([]store.StageProgress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := s.progress[jobID]
	out := make([]store.StageProgress, 0, len(rows))
	for _, row := range rows {
		out = append(out, row)
	}

	positions := make(map[uuid.UUID]int, len(out))
	if job, ok := s.jobs[jobID]; ok {
		if p, ok := s.pipelines[job.PipelineID]; ok {
			for _, stage := range p.Stages {
				positions[stage.ID] = stage.Position
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		pi, pj := positions[out[i].StageID], positions[out[j].StageID]
		if pi != pj {
			return pi < pj
		}
		return out[i].StageID.String() < out[j].StageID.String()
	})
	return out, nil
}

// MarkStageRunning transitions pending to running, stamping started_at
// once. Rows already running only refresh updated_at.
func (s *Store) MarkStageRunning(_ context.Context, jobID, stageID uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, err := s.openStage(jobID, stageID)
	if err != nil {
		return err
	}
	row.Status = store.StageRunning
	if row.StartedAt == nil {
		started := at
		row.StartedAt = &started
	}
	row.UpdatedAt = at
	s.progress[jobID][stageID] = row
	return nil
}

// ApplyProgress adds the worker deltas, clamping counters into
// [0, images_total].
func (s *Store) ApplyProgress(_ context.Context, jobID, stageID uuid.UUID, doneDelta, failedDelta int64, at time.Time) (store.StageProgress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, err := s.openStage(jobID, stageID)
	if err != nil {
		return store.StageProgress{}, err
	}
	row.ImagesDone = clampCount(row.ImagesDone+doneDelta, row.ImagesTotal)
	row.ImagesFailed = clampCount(row.ImagesFailed+failedDelta, row.ImagesTotal)
	row.UpdatedAt = at
	s.progress[jobID][stageID] = row
	return row, nil
}

// FinishStage applies a terminal status. A nil lastError keeps whatever the
// last error report stored.
func (s *Store) FinishStage(_ context.Context, jobID, stageID uuid.UUID, status store.StageStatus, lastError *string, at time.Time) (store.StageProgress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, err := s.openStage(jobID, stageID)
	if err != nil {
		return store.StageProgress{}, err
	}
	row.Status = status
	finished := at
	row.FinishedAt = &finished
	if lastError != nil {
		text := *lastError
		row.LastError = &text
	}
	row.UpdatedAt = at
	s.progress[jobID][stageID] = row
	return row, nil
}

// CancelOpenStages marks every non-terminal row for the job canceled and
// reports how many rows changed.
func (s *Store) CancelOpenStages(_ context.Context, jobID uuid.UUID, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for stageID, row := range s.progress[jobID] {
		if row.Status.Terminal() {
			continue
		}
		row.Status = store.StageCanceled
		finished := at
		row.FinishedAt = &finished
		row.UpdatedAt = at
		s.progress[jobID][stageID] = row
		n++
	}
	return n, nil
}

// AppendStageError stores the error row and bumps the stage error counter.
func (s *Store) AppendStageError(_ context.Context, e store.StageError) (store.StageProgress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, err := s.openStage(e.JobID, e.StageID)
	if err != nil {
		return store.StageProgress{}, err
	}
	row.ErrorCount++
	message := e.Message
	row.LastError = &message
	row.UpdatedAt = e.OccurredAt
	s.progress[e.JobID][e.StageID] = row

	if e.ImageID != nil {
		imageID := *e.ImageID
		e.ImageID = &imageID
	}
	if e.Detail != nil {
		detail := *e.Detail
		e.Detail = &detail
	}
	s.stageErrors[e.JobID] = append(s.stageErrors[e.JobID], e)
	return row, nil
}

// ListStageErrors returns a job's errors, newest first.
func (s *Store) ListStageErrors(_ context.Context, jobID uuid.UUID, limit, offset int) ([]store.StageError, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	errsList := make([]store.StageError, len(s.stageErrors[jobID]))
	copy(errsList, s.stageErrors[jobID])
	sort.SliceStable(errsList, func(i, j int) bool {
		return errsList[i].OccurredAt.After(errsList[j].OccurredAt)
	})
	return paginate(errsList, limit, offset), nil
}

// openStage loads a row still accepting updates. Callers hold the lock.
func (s *Store) openStage(jobID, stageID uuid.UUID) (store.StageProgress, error) {
	row, ok := s.progress[jobID][stageID]
	if !ok {
		return store.StageProgress{}, store.ErrNotFound
	}
	if row.Status.Terminal() {
		return store.StageProgress{}, fmt.Errorf("stage is %s: %w", row.Status, store.ErrConflict)
	}
	return row, nil
}

func clampCount(v, total int64) int64 {
	if v < 0 {
		return 0
	}
	if v > total {
		return total
	}
	return v
}
