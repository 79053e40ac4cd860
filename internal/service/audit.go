package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/argushq/argus/internal/store"
)

// AuditService records the who-did-what trail. Recording is best effort: a
// failed write is logged and never fails the operation that caused it.
type AuditService struct {
	audit  store.AuditRepository
	clock  Clock
	ids    IDGenerator
	logger *zap.Logger
}

// NewAuditService wires the audit repository.
func NewAuditService(audit store.AuditRepository, clock Clock, ids IDGenerator, logger *zap.Logger) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditService{audit: audit, clock: clock, ids: ids, logger: logger}
}

// Record stores one audit event for a mutating action.
func (s *AuditService) Record(ctx context.Context, caller Caller, action, entityType, entityID string, metadata map[string]string) {
	id, err := s.ids.NewRawID()
	if err != nil {
		s.logger.Warn("audit id generation failed", zap.String("action", action), zap.Error(err))
		return
	}
	ev := store.AuditEvent{
		ID:         id,
		Actor:      caller.actor(),
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		RequestID:  caller.RequestID,
		Metadata:   metadata,
		OccurredAt: s.clock.Now(),
	}
	if err := s.audit.InsertAuditEvent(ctx, ev); err != nil {
		s.logger.Warn("audit write failed",
			zap.String("action", action),
			zap.String("entity_type", entityType),
			zap.String("entity_id", entityID),
			zap.Error(err))
	}
}

// List returns audit events newest first, narrowed by filter.
func (s *AuditService) List(ctx context.Context, filter store.AuditFilter, limit, offset int) ([]store.AuditEvent, error) {
	return s.audit.ListAuditEvents(ctx, filter, limit, offset)
}
