package memory

import (
	"context"
	"sort"
	"time"

	"github.com/argushq/argus/internal/store"
)

// Overview gathers the dashboard snapshot. Archived pipelines are excluded
// from the pipeline count.
func (s *Store) Overview(_ context.Context) (store.OverviewStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := store.OverviewStats{
		JobsByStatus: make(map[store.JobStatus]int64),
		LibraryCount: int64(len(s.libraries)),
		ImageCount:   int64(len(s.images)),
		ResultCount:  int64(len(s.results)),
	}
	for _, p := range s.pipelines {
		if !p.Archived {
			stats.PipelineCount++
		}
	}
	for _, job := range s.jobs {
		stats.JobsByStatus[job.Status]++
	}
	cutoff := time.Now().UTC().Add(-24 * time.Hour)
	for _, errsList := range s.stageErrors {
		for _, e := range errsList {
			if !e.OccurredAt.Before(cutoff) {
				stats.RecentErrors++
			}
		}
	}
	for _, rows := range s.progress {
		for _, row := range rows {
			if row.Status == store.StageRunning {
				stats.RunningStages++
			}
		}
	}
	return stats, nil
}

// Throughput buckets job flow per UTC day since the cutoff, oldest first.
func (s *Store) Throughput(_ context.Context, since time.Time) ([]store.ThroughputPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	points := make(map[time.Time]*store.ThroughputPoint)
	point := func(t time.Time) *store.ThroughputPoint {
		day := t.UTC().Truncate(24 * time.Hour)
		p, ok := points[day]
		if !ok {
			p = &store.ThroughputPoint{Day: day}
			points[day] = p
		}
		return p
	}

	for _, job := range s.jobs {
		if !job.SubmittedAt.Before(since) {
			point(job.SubmittedAt).Submitted++
		}
		if job.FinishedAt == nil || job.FinishedAt.Before(since) {
			continue
		}
		switch job.Status {
		case store.JobCompleted:
			point(*job.FinishedAt).Completed++
		case store.JobFailed:
			point(*job.FinishedAt).Failed++
		}
	}

	out := make([]store.ThroughputPoint, 0, len(points))
	for _, p := range points {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day.Before(out[j].Day) })
	return out, nil
}
