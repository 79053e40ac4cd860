package postgres

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/argushq/argus/internal/store"
)

// StatsStore implements store.StatsRepository using Postgres.
type StatsStore struct {
	db DB
}

// NewStatsStore creates a new StatsStore.
func NewStatsStore(db DB) *StatsStore {
	return &StatsStore{db: db}
}

// Overview gathers the dashboard snapshot. Archived pipelines are excluded
// from the pipeline count.
func (s *StatsStore) Overview(ctx context.Context) (store.OverviewStats, error) {
	stats := store.OverviewStats{JobsByStatus: make(map[store.JobStatus]int64)}

	counts := `
		SELECT
			(SELECT COUNT(*) FROM libraries),
			(SELECT COUNT(*) FROM images),
			(SELECT COUNT(*) FROM pipelines WHERE NOT archived),
			(SELECT COUNT(*) FROM job_results),
			(SELECT COUNT(*) FROM stage_errors WHERE occurred_at >= NOW() - INTERVAL '24 hours'),
			(SELECT COUNT(*) FROM stage_progress WHERE status = $1);
	`
	err := s.db.QueryRow(ctx, counts, store.StageRunning).Scan(
		&stats.LibraryCount,
		&stats.ImageCount,
		&stats.PipelineCount,
		&stats.ResultCount,
		&stats.RecentErrors,
		&stats.RunningStages,
	)
	if err != nil {
		return store.OverviewStats{}, fmt.Errorf("count overview rows: %w", err)
	}

	rows, err := s.db.Query(ctx, `SELECT status, COUNT(*) FROM jobs GROUP BY status;`)
	if err != nil {
		return store.OverviewStats{}, fmt.Errorf("count jobs by status: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			status store.JobStatus
			n      int64
		)
		if err := rows.Scan(&status, &n); err != nil {
			return store.OverviewStats{}, fmt.Errorf("scan job status count: %w", err)
		}
		stats.JobsByStatus[status] = n
	}
	if err := rows.Err(); err != nil {
		return store.OverviewStats{}, fmt.Errorf("count jobs by status: %w", err)
	}
	return stats, nil
}

// Throughput buckets job flow per UTC day since the cutoff, oldest first.
// Days with no activity are absent; callers zero-fill.
func (s *StatsStore) Throughput(ctx context.Context, since time.Time) ([]store.ThroughputPoint, error) {
	points := make(map[time.Time]*store.ThroughputPoint)
	point := func(day time.Time) *store.ThroughputPoint {
		day = day.UTC()
		p, ok := points[day]
		if !ok {
			p = &store.ThroughputPoint{Day: day}
			points[day] = p
		}
		return p
	}

	submitted := `
		SELECT date_trunc('day', submitted_at AT TIME ZONE 'UTC'), COUNT(*)
		FROM jobs
		WHERE submitted_at >= $1
		GROUP BY 1;
	`
	rows, err := s.db.Query(ctx, submitted, since)
	if err != nil {
		return nil, fmt.Errorf("count submitted jobs: %w", err)
	}
	for rows.Next() {
		var (
			day time.Time
			n   int64
		)
		if err := rows.Scan(&day, &n); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan submitted count: %w", err)
		}
		point(day).Submitted = n
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("count submitted jobs: %w", err)
	}

	finished := `
		SELECT date_trunc('day', finished_at AT TIME ZONE 'UTC'), status, COUNT(*)
		FROM jobs
		WHERE finished_at IS NOT NULL AND finished_at >= $1 AND status IN ($2, $3)
		GROUP BY 1, 2;
	`
	rows, err = s.db.Query(ctx, finished, since, store.JobCompleted, store.JobFailed)
	if err != nil {
		return nil, fmt.Errorf("count finished jobs: %w", err)
	}
	for rows.Next() {
		var (
			day    time.Time
			status store.JobStatus
			n      int64
		)
		if err := rows.Scan(&day, &status, &n); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan finished count: %w", err)
		}
		switch status {
		case store.JobCompleted:
			point(day).Completed = n
		case store.JobFailed:
			point(day).Failed = n
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("count finished jobs: %w", err)
	}

	out := make([]store.ThroughputPoint, 0, len(points))
	for _, p := range points {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day.Before(out[j].Day) })
	return out, nil
}
