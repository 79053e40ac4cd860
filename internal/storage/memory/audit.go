package memory

import (
	"context"
	"sort"

	"github.com/argushq/argus/internal/store"
)

// InsertAuditEvent appends one event to the trail.
func (s *Store) InsertAuditEvent(_ context.Context, ev store.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev.Metadata = cloneStringMap(ev.Metadata)
	s.audit = append(s.audit, ev)
	return nil
}

// ListAuditEvents returns events newest first, narrowed by filter.
func (s *Store) ListAuditEvents(_ context.Context, filter store.AuditFilter, limit, offset int) ([]store.AuditEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []store.AuditEvent
	for _, ev := range s.audit {
		if filter.Actor != "" && ev.Actor != filter.Actor {
			continue
		}
		if filter.Action != "" && ev.Action != filter.Action {
			continue
		}
		if filter.EntityType != "" && ev.EntityType != filter.EntityType {
			continue
		}
		if filter.EntityID != "" && ev.EntityID != filter.EntityID {
			continue
		}
		if filter.Since != nil && ev.OccurredAt.Before(*filter.Since) {
			continue
		}
		ev.Metadata = cloneStringMap(ev.Metadata)
		out = append(out, ev)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].OccurredAt.After(out[j].OccurredAt)
	})
	return paginate(out, limit, offset), nil
}
