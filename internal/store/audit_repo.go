package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// AuditEvent records one mutating action for the activity feed.
type AuditEvent struct {
	ID uuid.UUID
	// Actor is the authenticated subject, or "anonymous".
	Actor string
	// Action is a dotted verb such as "job.submit" or "image.delete".
	Action string
	// EntityType and EntityID name the affected record.
	EntityType string
	EntityID   string
	// RequestID links the event to the HTTP request that caused it.
	RequestID  string
	Metadata   map[string]string
	OccurredAt time.Time
}

// AuditFilter narrows ListAuditEvents. Zero values match everything.
type AuditFilter struct {
	Actor      string
	Action     string
	EntityType string
	EntityID   string
	Since      *time.Time
}

// AuditRepository persists the audit trail.
type AuditRepository interface {
	InsertAuditEvent(ctx context.Context, ev AuditEvent) error
	// ListAuditEvents returns events newest first, narrowed by filter.
	ListAuditEvents(ctx context.Context, filter AuditFilter, limit, offset int) ([]AuditEvent, error)
}
