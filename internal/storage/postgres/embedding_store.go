package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/argushq/argus/internal/store"
)

// EmbeddingStore implements store.EmbeddingRepository using Postgres.
// Vectors are stored as real[] and scanned back into []float32; similarity
// math happens in the search package, not in SQL.
type EmbeddingStore struct {
	db DB
}

// NewEmbeddingStore creates a new EmbeddingStore.
func NewEmbeddingStore(db DB) *EmbeddingStore {
	return &EmbeddingStore{db: db}
}

// UpsertEmbeddings replaces the vector for each (content_type, content_id)
// pair in one transaction.
func (s *EmbeddingStore) UpsertEmbeddings(ctx context.Context, embeddings []store.Embedding) error {
	if len(embeddings) == 0 {
		return nil
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin upsert embeddings: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := `
		INSERT INTO embeddings (id, content_type, content_id, vector, model, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (content_type, content_id) DO UPDATE
		SET vector = EXCLUDED.vector,
		    model = EXCLUDED.model,
		    created_at = EXCLUDED.created_at;
	`
	for _, e := range embeddings {
		_, err := tx.Exec(ctx, query, e.ID, e.ContentType, e.ContentID, e.Vector, e.Model, e.CreatedAt)
		if err != nil {
			return fmt.Errorf("upsert embedding for %s %s: %w", e.ContentType, e.ContentID, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit upsert embeddings: %w", err)
	}
	return nil
}

// ListByType retrieves every embedding of one content type within scope.
// Image embeddings scope by the image's library; result embeddings scope
// by job or by the job's library.
func (s *EmbeddingStore) ListByType(ctx context.Context, ct store.ContentType, scope store.EmbeddingScope) ([]store.Embedding, error) {
	const cols = `e.id, e.content_type, e.content_id, e.vector, e.model, e.created_at`

	var (
		query string
		args  []any
	)
	switch {
	case ct == store.ContentImage && scope.LibraryID != nil:
		query = `
			SELECT ` + cols + `
			FROM embeddings e
			JOIN images i ON i.id = e.content_id
			WHERE e.content_type = $1 AND i.library_id = $2;
		`
		args = []any{ct, *scope.LibraryID}
	case ct == store.ContentResult && scope.JobID != nil:
		query = `
			SELECT ` + cols + `
			FROM embeddings e
			JOIN job_results r ON r.id = e.content_id
			WHERE e.content_type = $1 AND r.job_id = $2;
		`
		args = []any{ct, *scope.JobID}
	case ct == store.ContentResult && scope.LibraryID != nil:
		query = `
			SELECT ` + cols + `
			FROM embeddings e
			JOIN job_results r ON r.id = e.content_id
			JOIN jobs j ON j.id = r.job_id
			WHERE e.content_type = $1 AND j.library_id = $2;
		`
		args = []any{ct, *scope.LibraryID}
	default:
		query = `SELECT ` + cols + ` FROM embeddings e WHERE e.content_type = $1;`
		args = []any{ct}
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list embeddings: %w", err)
	}
	defer rows.Close()

	var out []store.Embedding
	for rows.Next() {
		e, err := scanEmbedding(rows)
		if err != nil {
			return nil, fmt.Errorf("scan embedding row: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list embeddings: %w", err)
	}
	return out, nil
}

func scanEmbedding(row pgx.Row) (store.Embedding, error) {
	var e store.Embedding
	err := row.Scan(
		&e.ID,
		&e.ContentType,
		&e.ContentID,
		&e.Vector,
		&e.Model,
		&e.CreatedAt,
	)
	if err != nil {
		return store.Embedding{}, err
	}
	return e, nil
}
