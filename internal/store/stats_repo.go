package store

import (
	"context"
	"time"
)

// OverviewStats is the dashboard snapshot of the whole system.
type OverviewStats struct {
	JobsByStatus  map[JobStatus]int64
	LibraryCount  int64
	ImageCount    int64
	PipelineCount int64
	ResultCount   int64
	// RecentErrors counts stage errors in the trailing 24 hours.
	RecentErrors  int64
	RunningStages int64
}

// ThroughputPoint is one day of job flow for the throughput chart.
type ThroughputPoint struct {
	// Day is midnight UTC of the bucket.
	Day       time.Time
	Submitted int64
	Completed int64
	Failed    int64
}

// StatsRepository serves the dashboard aggregates.
type StatsRepository interface {
	Overview(ctx context.Context) (OverviewStats, error)
	// Throughput returns one point per day for the trailing days window,
	// oldest first. Days without activity are zero-filled by the caller.
	Throughput(ctx context.Context, since time.Time) ([]ThroughputPoint, error)
}
