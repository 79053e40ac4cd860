package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/argushq/argus/internal/store"
)

func TestOverviewCountsEntities(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	lib := f.seedLibrary(t, "inventory")
	img := f.seedImage(t, lib.ID, "ov/a.png")
	pipe := f.seedPipeline(t, "caption")
	job := f.seedJob(t, pipe.ID, lib.ID)
	ctx := context.Background()

	_, err := f.results.Record(ctx, job.ID, []ResultEntry{{
		StageID: pipe.Stages[0].ID, ImageID: img.ID, ResponseText: "a thing", Confidence: 0.5,
	}})
	require.NoError(t, err)

	ov, err := f.dashboard.Overview(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), ov.LibraryCount)
	require.Equal(t, int64(1), ov.ImageCount)
	require.Equal(t, int64(1), ov.PipelineCount)
	require.Equal(t, int64(1), ov.ResultCount)
	require.Equal(t, int64(1), ov.JobsByStatus[store.JobQueued])
}

func TestThroughputZeroFillsWindow(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	lib := f.seedLibrary(t, "flow")
	f.seedImage(t, lib.ID, "tp/a.png")
	pipe := f.seedPipeline(t, "caption")
	f.seedJob(t, pipe.ID, lib.ID)
	ctx := context.Background()

	points, err := f.dashboard.Throughput(ctx, 0)
	require.NoError(t, err)
	require.Len(t, points, 7)
	today := f.clock.Now().UTC().Truncate(24 * time.Hour)
	require.Equal(t, today.AddDate(0, 0, -6), points[0].Day)
	require.Equal(t, today, points[6].Day)
	for _, p := range points[:6] {
		require.Zero(t, p.Submitted)
	}
	require.Equal(t, int64(1), points[6].Submitted)

	capped, err := f.dashboard.Throughput(ctx, 500)
	require.NoError(t, err)
	require.Len(t, capped, 90)
}

func TestAuditListFilters(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	lib := f.seedLibrary(t, "trail")
	f.seedImage(t, lib.ID, "au/a.png")
	f.clock.Advance(time.Hour)
	cutoff := f.clock.Now()
	other := Caller{Subject: "deputy", RequestID: "req-2"}
	f.audit.Record(context.Background(), other, "library.create", "library", lib.ID.String(), nil)
	ctx := context.Background()

	// seedLibrary and seedImage each record one event.
	all, err := f.audit.List(ctx, store.AuditFilter{}, 10, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)

	byActor, err := f.audit.List(ctx, store.AuditFilter{Actor: "deputy"}, 10, 0)
	require.NoError(t, err)
	require.Len(t, byActor, 1)
	require.Equal(t, "library.create", byActor[0].Action)
	require.Equal(t, "req-2", byActor[0].RequestID)

	byAction, err := f.audit.List(ctx, store.AuditFilter{Action: "image.register"}, 10, 0)
	require.NoError(t, err)
	require.Len(t, byAction, 1)
	require.Equal(t, "tester", byAction[0].Actor)

	since, err := f.audit.List(ctx, store.AuditFilter{Since: &cutoff}, 10, 0)
	require.NoError(t, err)
	require.Len(t, since, 1)
	require.Equal(t, "deputy", since[0].Actor)
}
