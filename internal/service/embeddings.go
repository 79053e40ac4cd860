package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/argushq/argus/internal/store"
)

// EmbeddingDeps bundles the collaborators NewEmbeddingService requires.
type EmbeddingDeps struct {
	Embeddings store.EmbeddingRepository
	Libraries  store.LibraryRepository
	Results    store.ResultRepository
	Clock      Clock
	IDs        IDGenerator
	Logger     *zap.Logger
}

// EmbeddingService ingests vectors computed by the external AI provider.
type EmbeddingService struct {
	embeddings store.EmbeddingRepository
	libraries  store.LibraryRepository
	results    store.ResultRepository
	clock      Clock
	ids        IDGenerator
	logger     *zap.Logger
}

// NewEmbeddingService wires the repositories into an embedding service.
func NewEmbeddingService(d EmbeddingDeps) *EmbeddingService {
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EmbeddingService{
		embeddings: d.Embeddings,
		libraries:  d.Libraries,
		results:    d.Results,
		clock:      d.Clock,
		ids:        d.IDs,
		logger:     logger,
	}
}

// EmbeddingEntry is one vector reported for an image or a result text.
type EmbeddingEntry struct {
	ContentType store.ContentType
	ContentID   uuid.UUID
	Vector      []float32
	Model       string
}

// Upsert stores a batch of vectors, replacing any prior vector per
// (content_type, content_id). Every entry must reference existing content.
func (s *EmbeddingService) Upsert(ctx context.Context, entries []EmbeddingEntry) (int, error) {
	if len(entries) == 0 {
		return 0, fmt.Errorf("%w: at least one embedding is required", ErrInvalidInput)
	}
	now := s.clock.Now()
	batch := make([]store.Embedding, 0, len(entries))
	for i, e := range entries {
		if !store.ValidContentType(e.ContentType) {
			return 0, fmt.Errorf("%w: embedding %d: unknown content type %q", ErrInvalidInput, i, e.ContentType)
		}
		if len(e.Vector) == 0 || len(e.Vector) > store.MaxVectorDims {
			return 0, fmt.Errorf("%w: embedding %d: vector must have 1 to %d dimensions", ErrInvalidInput, i, store.MaxVectorDims)
		}
		if err := s.contentExists(ctx, e.ContentType, e.ContentID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return 0, fmt.Errorf("%w: embedding %d: %s %s does not exist", ErrInvalidInput, i, e.ContentType, e.ContentID)
			}
			return 0, err
		}
		id, err := s.ids.NewRawID()
		if err != nil {
			return 0, fmt.Errorf("generate embedding id: %w", err)
		}
		batch = append(batch, store.Embedding{
			ID:          id,
			ContentType: e.ContentType,
			ContentID:   e.ContentID,
			Vector:      e.Vector,
			Model:       e.Model,
			CreatedAt:   now,
		})
	}
	if err := s.embeddings.UpsertEmbeddings(ctx, batch); err != nil {
		return 0, fmt.Errorf("upsert embeddings: %w", err)
	}
	return len(batch), nil
}

func (s *EmbeddingService) contentExists(ctx context.Context, ct store.ContentType, id uuid.UUID) error {
	switch ct {
	case store.ContentImage:
		_, err := s.libraries.GetImage(ctx, id)
		return err
	case store.ContentResult:
		_, err := s.results.GetResult(ctx, id)
		return err
	}
	return fmt.Errorf("%w: unknown content type %q", ErrInvalidInput, ct)
}
