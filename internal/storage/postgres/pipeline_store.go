package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/argushq/argus/internal/store"
)

// PipelineStore implements store.PipelineRepository using Postgres.
type PipelineStore struct {
	db DB
}

// NewPipelineStore creates a new PipelineStore.
func NewPipelineStore(db DB) *PipelineStore {
	return &PipelineStore{db: db}
}

// CreatePipeline inserts the pipeline and all of its stages in one
// transaction.
func (s *PipelineStore) CreatePipeline(ctx context.Context, p store.Pipeline) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin create pipeline: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO pipelines (id, name, description, version, archived, created_at)
		VALUES ($1, $2, $3, $4, $5, $6);
	`, p.ID, p.Name, p.Description, p.Version, p.Archived, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert pipeline: %w", err)
	}

	for _, st := range p.Stages {
		_, err = tx.Exec(ctx, `
			INSERT INTO pipeline_stages (id, pipeline_id, position, name, prompt_name, prompt_text, model)
			VALUES ($1, $2, $3, $4, $5, $6, $7);
		`, st.ID, st.PipelineID, st.Position, st.Name, st.PromptName, st.PromptText, st.Model)
		if err != nil {
			return fmt.Errorf("insert pipeline stage: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit create pipeline: %w", err)
	}
	return nil
}

// GetPipeline retrieves a pipeline with its stages in position order.
func (s *PipelineStore) GetPipeline(ctx context.Context, id uuid.UUID) (store.Pipeline, error) {
	query := `
		SELECT id, name, description, version, archived, created_at
		FROM pipelines
		WHERE id = $1;
	`
	var p store.Pipeline
	err := s.db.QueryRow(ctx, query, id).Scan(
		&p.ID,
		&p.Name,
		&p.Description,
		&p.Version,
		&p.Archived,
		&p.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Pipeline{}, store.ErrNotFound
		}
		return store.Pipeline{}, fmt.Errorf("get pipeline: %w", err)
	}

	stages, err := s.stagesFor(ctx, []uuid.UUID{id})
	if err != nil {
		return store.Pipeline{}, err
	}
	p.Stages = stages[id]
	return p, nil
}

// ListPipelines retrieves pipelines newest first, including their stages.
// Archived rows are hidden unless includeArchived is set.
func (s *PipelineStore) ListPipelines(ctx context.Context, includeArchived bool, limit, offset int) ([]store.Pipeline, error) {
	query := `
		SELECT id, name, description, version, archived, created_at
		FROM pipelines
		WHERE ($1 OR NOT archived)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3;
	`
	rows, err := s.db.Query(ctx, query, includeArchived, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list pipelines: %w", err)
	}
	defer rows.Close()

	var pipes []store.Pipeline
	for rows.Next() {
		var p store.Pipeline
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Version, &p.Archived, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan pipeline row: %w", err)
		}
		pipes = append(pipes, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list pipelines: %w", err)
	}
	if len(pipes) == 0 {
		return pipes, nil
	}

	ids := make([]uuid.UUID, 0, len(pipes))
	for _, p := range pipes {
		ids = append(ids, p.ID)
	}
	stages, err := s.stagesFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range pipes {
		pipes[i].Stages = stages[pipes[i].ID]
	}
	return pipes, nil
}

// ArchivePipeline marks the pipeline archived. Archiving twice is a no-op.
func (s *PipelineStore) ArchivePipeline(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `UPDATE pipelines SET archived = TRUE WHERE id = $1;`, id)
	if err != nil {
		return fmt.Errorf("archive pipeline: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// stagesFor loads the stages of every listed pipeline, grouped by pipeline
// id in position order.
func (s *PipelineStore) stagesFor(ctx context.Context, pipelineIDs []uuid.UUID) (map[uuid.UUID][]store.Stage, error) {
	query := `
		SELECT id, pipeline_id, position, name, prompt_name, prompt_text, model
		FROM pipeline_stages
		WHERE pipeline_id = ANY($1)
		ORDER BY pipeline_id, position;
	`
	rows, err := s.db.Query(ctx, query, pipelineIDs)
	if err != nil {
		return nil, fmt.Errorf("list pipeline stages: %w", err)
	}
	defer rows.Close()

	out := make(map[uuid.UUID][]store.Stage, len(pipelineIDs))
	for rows.Next() {
		var st store.Stage
		if err := rows.Scan(&st.ID, &st.PipelineID, &st.Position, &st.Name, &st.PromptName, &st.PromptText, &st.Model); err != nil {
			return nil, fmt.Errorf("scan pipeline stage row: %w", err)
		}
		out[st.PipelineID] = append(out[st.PipelineID], st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list pipeline stages: %w", err)
	}
	return out, nil
}
