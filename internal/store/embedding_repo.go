package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// MaxVectorDims caps embedding and query vector lengths.
const MaxVectorDims = 4096

// ContentType names the kind of content an embedding was computed from.
type ContentType string

// Embedding content types.
const (
	ContentImage  ContentType = "image"
	ContentResult ContentType = "result"
)

// ValidContentType reports whether ct is a known content type.
func ValidContentType(ct ContentType) bool {
	return ct == ContentImage || ct == ContentResult
}

// Embedding is a fixed-length vector computed by the external AI provider
// for an image or a result text. One row per (content_type, content_id).
type Embedding struct {
	ID          uuid.UUID
	ContentType ContentType
	// ContentID references images.id or job_results.id per ContentType.
	ContentID uuid.UUID
	Vector    []float32
	// Model names the embedding model that produced the vector.
	Model     string
	CreatedAt time.Time
}

// EmbeddingScope narrows ListByType. LibraryID restricts image embeddings
// to one library and result embeddings to results of jobs over that
// library; JobID restricts result embeddings to one job.
type EmbeddingScope struct {
	LibraryID *uuid.UUID
	JobID     *uuid.UUID
}

// EmbeddingRepository persists vectors for the in-memory search scans.
type EmbeddingRepository interface {
	// UpsertEmbeddings replaces the vector for each (content_type,
	// content_id) pair in the batch.
	UpsertEmbeddings(ctx context.Context, embeddings []Embedding) error
	// ListByType returns every embedding of one content type within scope.
	// Search scans these wholesale; there is no index.
	ListByType(ctx context.Context, ct ContentType, scope EmbeddingScope) ([]Embedding, error)
}
