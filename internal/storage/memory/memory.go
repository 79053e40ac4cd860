// Package memory provides in-memory repository implementations so the API
// can run without Postgres during development.
package memory

import (
	"sync"

	"github.com/google/uuid"

	"github.com/argushq/argus/internal/store"
)

type embedKey struct {
	ct store.ContentType
	id uuid.UUID
}

// Store is a single in-memory database backing every repository interface.
// One mutex guards all tables, which keeps cross-table reads consistent at
// dev scale.
type Store struct {
	mu sync.RWMutex

	libraries map[uuid.UUID]store.Library
	images    map[uuid.UUID]store.Image

	pipelines map[uuid.UUID]store.Pipeline

	jobs      map[uuid.UUID]store.Job
	jobImages map[uuid.UUID][]uuid.UUID

	progress    map[uuid.UUID]map[uuid.UUID]store.StageProgress
	stageErrors map[uuid.UUID][]store.StageError

	results      map[uuid.UUID]store.JobResult
	resultsByJob map[uuid.UUID][]uuid.UUID

	validations map[uuid.UUID]store.ResultValidation

	embeddings map[embedKey]store.Embedding

	audit []store.AuditEvent
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		libraries:    make(map[uuid.UUID]store.Library),
		images:       make(map[uuid.UUID]store.Image),
		pipelines:    make(map[uuid.UUID]store.Pipeline),
		jobs:         make(map[uuid.UUID]store.Job),
		jobImages:    make(map[uuid.UUID][]uuid.UUID),
		progress:     make(map[uuid.UUID]map[uuid.UUID]store.StageProgress),
		stageErrors:  make(map[uuid.UUID][]store.StageError),
		results:      make(map[uuid.UUID]store.JobResult),
		resultsByJob: make(map[uuid.UUID][]uuid.UUID),
		validations:  make(map[uuid.UUID]store.ResultValidation),
		embeddings:   make(map[embedKey]store.Embedding),
	}
}

// paginate slices items by limit and offset with copy-on-return.
func paginate[T any](items []T, limit, offset int) []T {
	if limit <= 0 || offset < 0 || offset >= len(items) {
		return nil
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	out := make([]T, end-offset)
	copy(out, items[offset:end])
	return out
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	return append([]string(nil), in...)
}

func cloneStringMap(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func cloneVector(in []float32) []float32 {
	if in == nil {
		return nil
	}
	return append([]float32(nil), in...)
}

func cloneIDs(in []uuid.UUID) []uuid.UUID {
	if in == nil {
		return nil
	}
	return append([]uuid.UUID(nil), in...)
}
