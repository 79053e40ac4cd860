package memory

import (
	"context"
	"sort"

	"github.com/argushq/argus/internal/store"
)

// UpsertEmbeddings replaces the vector for each (content_type, content_id)
// pair. Existing rows keep their original id.
func (s *Store) UpsertEmbeddings(_ context.Context, embeddings []store.Embedding) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range embeddings {
		key := embedKey{ct: e.ContentType, id: e.ContentID}
		e.Vector = cloneVector(e.Vector)
		if cur, exists := s.embeddings[key]; exists {
			e.ID = cur.ID
		}
		s.embeddings[key] = e
	}
	return nil
}

// ListByType returns every embedding of one content type within scope.
// Image embeddings scope by the image's library; result embeddings scope by
// job or by the job's library.
func (s *Store) ListByType(_ context.Context, ct store.ContentType, scope store.EmbeddingScope) ([]store.Embedding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []store.Embedding
	for key, e := range s.embeddings {
		if key.ct != ct || !s.embeddingInScope(e, scope) {
			continue
		}
		e.Vector = cloneVector(e.Vector)
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ContentID.String() < out[j].ContentID.String()
	})
	return out, nil
}

func (s *Store) embeddingInScope(e store.Embedding, scope store.EmbeddingScope) bool {
	switch e.ContentType {
	case store.ContentImage:
		if scope.LibraryID == nil {
			return true
		}
		img, ok := s.images[e.ContentID]
		return ok && img.LibraryID == *scope.LibraryID
	case store.ContentResult:
		r, ok := s.results[e.ContentID]
		if scope.JobID != nil {
			return ok && r.JobID == *scope.JobID
		}
		if scope.LibraryID != nil {
			if !ok {
				return false
			}
			job, jobOK := s.jobs[r.JobID]
			return jobOK && job.LibraryID == *scope.LibraryID
		}
		return true
	}
	return true
}
