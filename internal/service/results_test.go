package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/argushq/argus/internal/store"
)

func TestRecordResultsValidatesBatch(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	lib := f.seedLibrary(t, "catalog")
	img := f.seedImage(t, lib.ID, "c/watch.png")
	pipe := f.seedPipeline(t, "caption")
	job := f.seedJob(t, pipe.ID, lib.ID)
	ctx := context.Background()
	stageID := pipe.Stages[0].ID

	_, err := f.results.Record(ctx, job.ID, nil)
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.results.Record(ctx, uuid.New(), []ResultEntry{{StageID: stageID, ImageID: img.ID}})
	require.ErrorIs(t, err, store.ErrNotFound)

	// Stages from another pipeline are rejected.
	_, err = f.results.Record(ctx, job.ID, []ResultEntry{{StageID: uuid.New(), ImageID: img.ID}})
	require.ErrorIs(t, err, ErrInvalidInput)

	// Images outside the job snapshot are rejected.
	_, err = f.results.Record(ctx, job.ID, []ResultEntry{{StageID: stageID, ImageID: uuid.New()}})
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.results.Record(ctx, job.ID, []ResultEntry{{StageID: stageID, ImageID: img.ID, Confidence: 1.2}})
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.results.Record(ctx, job.ID, []ResultEntry{{StageID: stageID, ImageID: img.ID, LatencyMS: -1}})
	require.ErrorIs(t, err, ErrInvalidInput)

	recorded, err := f.results.Record(ctx, job.ID, []ResultEntry{{
		StageID:      stageID,
		ImageID:      img.ID,
		ResponseText: "A stainless steel watch on a white background.",
		Confidence:   0.9,
		LatencyMS:    300,
		Model:        "vision-small",
	}})
	require.NoError(t, err)
	require.Len(t, recorded, 1)
	require.Equal(t, job.ID, recorded[0].JobID)

	// Each stored result is queued for validation exactly once.
	tasks := f.enqueuer.enqueued()
	require.Len(t, tasks, 1)
	require.Equal(t, recorded[0].ID, tasks[0].ResultID)
}

func TestRecordResultsRejectsTerminalJob(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	lib := f.seedLibrary(t, "closed")
	img := f.seedImage(t, lib.ID, "cl/a.png")
	pipe := f.seedPipeline(t, "caption")
	job := f.seedJob(t, pipe.ID, lib.ID)
	ctx := context.Background()

	require.NoError(t, f.repo.MarkJobRunning(ctx, job.ID, f.clock.Now()))
	require.NoError(t, f.repo.FinishJob(ctx, job.ID, store.JobCanceled, nil, f.clock.Now()))

	_, err := f.results.Record(ctx, job.ID, []ResultEntry{{
		StageID: pipe.Stages[0].ID, ImageID: img.ID, Confidence: 0.5,
	}})
	require.ErrorIs(t, err, store.ErrConflict)
}

func TestListByJobFilters(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	lib := f.seedLibrary(t, "filtering")
	img1 := f.seedImage(t, lib.ID, "fl/a.png")
	img2 := f.seedImage(t, lib.ID, "fl/b.png")
	pipe := f.seedPipeline(t, "caption", "tags")
	job := f.seedJob(t, pipe.ID, lib.ID)
	ctx := context.Background()

	_, err := f.results.Record(ctx, job.ID, []ResultEntry{
		{StageID: pipe.Stages[0].ID, ImageID: img1.ID, ResponseText: "first", Confidence: 0.9},
		{StageID: pipe.Stages[0].ID, ImageID: img2.ID, ResponseText: "second", Confidence: 0.4},
		{StageID: pipe.Stages[1].ID, ImageID: img1.ID, ResponseText: "third", Confidence: 0.7},
	})
	require.NoError(t, err)

	byStage, err := f.results.ListByJob(ctx, job.ID, store.ResultFilter{StageID: &pipe.Stages[0].ID}, 10, 0)
	require.NoError(t, err)
	require.Len(t, byStage, 2)

	byImage, err := f.results.ListByJob(ctx, job.ID, store.ResultFilter{ImageID: &img1.ID}, 10, 0)
	require.NoError(t, err)
	require.Len(t, byImage, 2)

	min := 0.8
	confident, err := f.results.ListByJob(ctx, job.ID, store.ResultFilter{MinConfidence: &min}, 10, 0)
	require.NoError(t, err)
	require.Len(t, confident, 1)
	require.Equal(t, "first", confident[0].ResponseText)

	_, err = f.results.ListByJob(ctx, uuid.New(), store.ResultFilter{}, 10, 0)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestJobStatsAggregates(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	lib := f.seedLibrary(t, "stats")
	img := f.seedImage(t, lib.ID, "stat/a.png")
	pipe := f.seedPipeline(t, "caption")
	job := f.seedJob(t, pipe.ID, lib.ID)
	ctx := context.Background()

	_, err := f.results.Record(ctx, job.ID, []ResultEntry{
		{StageID: pipe.Stages[0].ID, ImageID: img.ID, Confidence: 0.6, LatencyMS: 100},
	})
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	_, err = f.results.Record(ctx, job.ID, []ResultEntry{
		{StageID: pipe.Stages[0].ID, ImageID: img.ID, Confidence: 0.8, LatencyMS: 300},
	})
	require.NoError(t, err)

	stats, err := f.results.JobStats(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, int64(2), stats.ResultCount)
	require.InDelta(t, 0.7, stats.AvgConfidence, 1e-9)
	require.InDelta(t, 0.6, stats.MinConfidence, 1e-9)
	require.InDelta(t, 0.8, stats.MaxConfidence, 1e-9)
	require.InDelta(t, 200, stats.AvgLatencyMS, 1e-9)
}
