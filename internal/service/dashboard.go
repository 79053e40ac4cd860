package service

import (
	"context"
	"fmt"
	"time"

	"github.com/argushq/argus/internal/store"
)

// Throughput window bounds.
const (
	defaultThroughputDays = 7
	maxThroughputDays     = 90
)

// DashboardService serves the operator dashboard aggregates.
type DashboardService struct {
	stats store.StatsRepository
	audit store.AuditRepository
	clock Clock
}

// NewDashboardService wires the aggregate repositories.
func NewDashboardService(stats store.StatsRepository, audit store.AuditRepository, clock Clock) *DashboardService {
	return &DashboardService{stats: stats, audit: audit, clock: clock}
}

// Overview returns the system-wide snapshot.
func (s *DashboardService) Overview(ctx context.Context) (store.OverviewStats, error) {
	return s.stats.Overview(ctx)
}

// Activity returns the most recent audit events.
func (s *DashboardService) Activity(ctx context.Context, limit, offset int) ([]store.AuditEvent, error) {
	return s.audit.ListAuditEvents(ctx, store.AuditFilter{}, limit, offset)
}

// Throughput returns one point per day for the trailing window, oldest
// first and zero-filled. Days defaults to 7 and caps at 90.
func (s *DashboardService) Throughput(ctx context.Context, days int) ([]store.ThroughputPoint, error) {
	if days <= 0 {
		days = defaultThroughputDays
	}
	if days > maxThroughputDays {
		days = maxThroughputDays
	}
	today := s.clock.Now().UTC().Truncate(24 * time.Hour)
	since := today.AddDate(0, 0, -(days - 1))

	points, err := s.stats.Throughput(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("load throughput: %w", err)
	}
	byDay := make(map[time.Time]store.ThroughputPoint, len(points))
	for _, p := range points {
		byDay[p.Day.UTC()] = p
	}

	out := make([]store.ThroughputPoint, 0, days)
	for day := since; !day.After(today); day = day.AddDate(0, 0, 1) {
		p, ok := byDay[day]
		if !ok {
			p = store.ThroughputPoint{Day: day}
		}
		out = append(out, p)
	}
	return out, nil
}
