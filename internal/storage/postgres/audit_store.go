package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/argushq/argus/internal/store"
)

// AuditStore implements store.AuditRepository using Postgres.
type AuditStore struct {
	db DB
}

// NewAuditStore creates a new AuditStore.
func NewAuditStore(db DB) *AuditStore {
	return &AuditStore{db: db}
}

// InsertAuditEvent appends one event to the trail.
func (s *AuditStore) InsertAuditEvent(ctx context.Context, ev store.AuditEvent) error {
	metaJSON, err := marshalMetadata(ev.Metadata)
	if err != nil {
		return fmt.Errorf("marshal audit metadata: %w", err)
	}
	query := `
		INSERT INTO audit_events (id, actor, action, entity_type, entity_id, request_id, metadata, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8);
	`
	_, err = s.db.Exec(ctx, query, ev.ID, ev.Actor, ev.Action, ev.EntityType, ev.EntityID, ev.RequestID, metaJSON, ev.OccurredAt)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// ListAuditEvents retrieves events newest first. Zero-valued filter fields
// match everything.
func (s *AuditStore) ListAuditEvents(ctx context.Context, filter store.AuditFilter, limit, offset int) ([]store.AuditEvent, error) {
	query := `
		SELECT id, actor, action, entity_type, entity_id, request_id, metadata, occurred_at
		FROM audit_events
		WHERE ($1 = '' OR actor = $1)
		  AND ($2 = '' OR action = $2)
		  AND ($3 = '' OR entity_type = $3)
		  AND ($4 = '' OR entity_id = $4)
		  AND ($5::timestamptz IS NULL OR occurred_at >= $5)
		ORDER BY occurred_at DESC
		LIMIT $6 OFFSET $7;
	`
	rows, err := s.db.Query(ctx, query, filter.Actor, filter.Action, filter.EntityType, filter.EntityID, filter.Since, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var out []store.AuditEvent
	for rows.Next() {
		var (
			ev       store.AuditEvent
			metaJSON []byte
		)
		err := rows.Scan(&ev.ID, &ev.Actor, &ev.Action, &ev.EntityType, &ev.EntityID, &ev.RequestID, &metaJSON, &ev.OccurredAt)
		if err != nil {
			return nil, fmt.Errorf("scan audit event row: %w", err)
		}
		if len(metaJSON) > 0 {
			if err := json.Unmarshal(metaJSON, &ev.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal audit metadata: %w", err)
			}
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	return out, nil
}

// marshalMetadata renders the metadata map as JSONB input, defaulting to {}.
func marshalMetadata(meta map[string]string) ([]byte, error) {
	if len(meta) == 0 {
		return []byte("{}"), nil
	}
	return json.Marshal(meta)
}
