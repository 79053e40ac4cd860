package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/argushq/argus/internal/store"
)

// CreatePipeline stores the pipeline with its stages.
func (s *Store) CreatePipeline(_ context.Context, p store.Pipeline) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.pipelines[p.ID]; exists {
		return fmt.Errorf("pipeline %s already exists", p.ID)
	}
	p.Stages = cloneStages(p.Stages)
	s.pipelines[p.ID] = p
	return nil
}

// GetPipeline fetches one pipeline with stages in position order.
func (s *Store) GetPipeline(_ context.Context, id uuid.UUID) (store.Pipeline, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.pipelines[id]
	if !ok {
		return store.Pipeline{}, store.ErrNotFound
	}
	p.Stages = cloneStages(p.Stages)
	return p, nil
}

// ListPipelines returns pipelines newest first, hiding archived rows unless
// includeArchived is set.
func (s *Store) ListPipelines(_ context.Context, includeArchived bool, limit, offset int) ([]store.Pipeline, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []store.Pipeline
	for _, p := range s.pipelines {
		if p.Archived && !includeArchived {
			continue
		}
		p.Stages = cloneStages(p.Stages)
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return paginate(out, limit, offset), nil
}

// ArchivePipeline marks the pipeline archived.
func (s *Store) ArchivePipeline(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pipelines[id]
	if !ok {
		return store.ErrNotFound
	}
	p.Archived = true
	s.pipelines[id] = p
	return nil
}

func cloneStages(in []store.Stage) []store.Stage {
	if in == nil {
		return nil
	}
	out := make([]store.Stage, len(in))
	copy(out, in)
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out
}
