// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Config controls the shared Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// DB is the query surface the stores share. Both pgxpool.Pool and the
// pgxmock pool satisfy it.
type DB interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Connect builds the pgx pool every store shares and verifies connectivity.
func Connect(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

// Stores bundles every Postgres-backed repository over one pool.
type Stores struct {
	Libraries   *LibraryStore
	Pipelines   *PipelineStore
	Jobs        *JobStore
	Progress    *ProgressStore
	Results     *ResultStore
	Validations *ValidationStore
	Embeddings  *EmbeddingStore
	Audit       *AuditStore
	Stats       *StatsStore
}

// NewStores builds the full repository set on one shared DB.
func NewStores(db DB) *Stores {
	return &Stores{
		Libraries:   NewLibraryStore(db),
		Pipelines:   NewPipelineStore(db),
		Jobs:        NewJobStore(db),
		Progress:    NewProgressStore(db),
		Results:     NewResultStore(db),
		Validations: NewValidationStore(db),
		Embeddings:  NewEmbeddingStore(db),
		Audit:       NewAuditStore(db),
		Stats:       NewStatsStore(db),
	}
}
