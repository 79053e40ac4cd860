package postgres

import (
	"context"
	"fmt"
)

// schemaStatements is executed in order by EnsureSchema. Statements are
// idempotent so startup can run them unconditionally.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS libraries (
		id UUID PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		description TEXT NOT NULL DEFAULT '',
		owner TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS images (
		id UUID PRIMARY KEY,
		library_id UUID NOT NULL REFERENCES libraries(id) ON DELETE CASCADE,
		object_path TEXT NOT NULL,
		content_type TEXT NOT NULL DEFAULT '',
		size_bytes BIGINT NOT NULL DEFAULT 0,
		checksum TEXT NOT NULL DEFAULT '',
		width INT NOT NULL DEFAULT 0,
		height INT NOT NULL DEFAULT 0,
		labels JSONB NOT NULL DEFAULT '{}'::jsonb,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_images_library ON images (library_id, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS pipelines (
		id UUID PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		version INT NOT NULL DEFAULT 1,
		archived BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS pipeline_stages (
		id UUID PRIMARY KEY,
		pipeline_id UUID NOT NULL REFERENCES pipelines(id) ON DELETE CASCADE,
		position INT NOT NULL,
		name TEXT NOT NULL,
		prompt_name TEXT NOT NULL DEFAULT '',
		prompt_text TEXT NOT NULL DEFAULT '',
		model TEXT NOT NULL DEFAULT '',
		UNIQUE (pipeline_id, position)
	)`,
	`CREATE TABLE IF NOT EXISTS jobs (
		id UUID PRIMARY KEY,
		pipeline_id UUID NOT NULL REFERENCES pipelines(id),
		library_id UUID NOT NULL REFERENCES libraries(id),
		status TEXT NOT NULL,
		submitted_by TEXT NOT NULL DEFAULT '',
		submitted_at TIMESTAMPTZ NOT NULL,
		started_at TIMESTAMPTZ,
		finished_at TIMESTAMPTZ,
		error_text TEXT,
		image_count INT NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs (status, submitted_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_jobs_submitted ON jobs (submitted_at DESC)`,
	`CREATE TABLE IF NOT EXISTS job_images (
		job_id UUID NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
		image_id UUID NOT NULL REFERENCES images(id),
		PRIMARY KEY (job_id, image_id)
	)`,
	`CREATE TABLE IF NOT EXISTS stage_progress (
		job_id UUID NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
		stage_id UUID NOT NULL REFERENCES pipeline_stages(id),
		status TEXT NOT NULL,
		images_total BIGINT NOT NULL DEFAULT 0,
		images_done BIGINT NOT NULL DEFAULT 0,
		images_failed BIGINT NOT NULL DEFAULT 0,
		error_count BIGINT NOT NULL DEFAULT 0,
		started_at TIMESTAMPTZ,
		finished_at TIMESTAMPTZ,
		last_error TEXT,
		updated_at TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (job_id, stage_id)
	)`,
	`CREATE TABLE IF NOT EXISTS stage_errors (
		id UUID PRIMARY KEY,
		job_id UUID NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
		stage_id UUID NOT NULL,
		image_id UUID,
		message TEXT NOT NULL,
		detail TEXT,
		occurred_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_stage_errors_job ON stage_errors (job_id, occurred_at DESC)`,
	`CREATE TABLE IF NOT EXISTS job_results (
		id UUID PRIMARY KEY,
		job_id UUID NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
		stage_id UUID NOT NULL,
		image_id UUID NOT NULL,
		response_text TEXT NOT NULL DEFAULT '',
		confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
		latency_ms BIGINT NOT NULL DEFAULT 0,
		model TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_job_results_job ON job_results (job_id, created_at DESC)`,
	`CREATE INDEX IF NOT EXISTS idx_job_results_image ON job_results (job_id, image_id)`,
	`CREATE TABLE IF NOT EXISTS result_validations (
		result_id UUID PRIMARY KEY REFERENCES job_results(id) ON DELETE CASCADE,
		confidence_score DOUBLE PRECISION NOT NULL,
		consistency_score DOUBLE PRECISION NOT NULL,
		content_flags TEXT[] NOT NULL DEFAULT '{}',
		overall_score DOUBLE PRECISION NOT NULL,
		status TEXT NOT NULL,
		reviewed_by TEXT,
		review_note TEXT,
		computed_at TIMESTAMPTZ NOT NULL,
		reviewed_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_validations_status ON result_validations (status, computed_at)`,
	`CREATE TABLE IF NOT EXISTS embeddings (
		id UUID PRIMARY KEY,
		content_type TEXT NOT NULL,
		content_id UUID NOT NULL,
		vector REAL[] NOT NULL,
		model TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		UNIQUE (content_type, content_id)
	)`,
	`CREATE TABLE IF NOT EXISTS audit_events (
		id UUID PRIMARY KEY,
		actor TEXT NOT NULL,
		action TEXT NOT NULL,
		entity_type TEXT NOT NULL,
		entity_id TEXT NOT NULL DEFAULT '',
		request_id TEXT NOT NULL DEFAULT '',
		metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
		occurred_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_audit_occurred ON audit_events (occurred_at DESC)`,
}

// EnsureSchema creates every table and index the stores rely on. pgx runs
// statements over the extended protocol, so each DDL statement executes
// separately.
func EnsureSchema(ctx context.Context, db DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema statement: %w", err)
		}
	}
	return nil
}
