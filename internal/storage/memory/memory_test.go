package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/argushq/argus/internal/store"
)

func seedLibraryAndPipeline(t *testing.T, s *Store, now time.Time) (store.Library, store.Pipeline) {
	t.Helper()
	ctx := context.Background()

	lib := store.Library{ID: uuid.New(), Name: "demo-" + uuid.NewString(), CreatedAt: now}
	require.NoError(t, s.CreateLibrary(ctx, lib))

	p := store.Pipeline{ID: uuid.New(), Name: "captioning", Version: 1, CreatedAt: now}
	p.Stages = []store.Stage{
		{ID: uuid.New(), PipelineID: p.ID, Position: 1, Name: "caption"},
		{ID: uuid.New(), PipelineID: p.ID, Position: 2, Name: "tags"},
	}
	require.NoError(t, s.CreatePipeline(ctx, p))
	return lib, p
}

func TestStoreJobLifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := New()
	now := time.Unix(1700000000, 0).UTC()
	lib, p := seedLibraryAndPipeline(t, s, now)

	imageID := uuid.New()
	job := store.Job{
		ID: uuid.New(), PipelineID: p.ID, LibraryID: lib.ID,
		Status: store.JobQueued, SubmittedAt: now, ImageCount: 1,
	}
	require.NoError(t, s.CreateJob(ctx, job, []uuid.UUID{imageID, imageID}))

	snapshot, err := s.ListJobImages(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{imageID}, snapshot)

	require.NoError(t, s.MarkJobRunning(ctx, job.ID, now))
	require.NoError(t, s.MarkJobRunning(ctx, job.ID, now.Add(time.Second)))

	got, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	require.Equal(t, store.JobRunning, got.Status)
	require.NotNil(t, got.StartedAt)
	require.Equal(t, now, *got.StartedAt)

	require.NoError(t, s.FinishJob(ctx, job.ID, store.JobCompleted, nil, now.Add(time.Minute)))

	err = s.MarkJobRunning(ctx, job.ID, now)
	require.ErrorIs(t, err, store.ErrConflict)
	err = s.FinishJob(ctx, job.ID, store.JobFailed, nil, now)
	require.ErrorIs(t, err, store.ErrConflict)

	err = s.MarkJobRunning(ctx, uuid.New(), now)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestStoreProgressClampsAndGuards(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := New()
	now := time.Unix(1700000000, 0).UTC()
	lib, p := seedLibraryAndPipeline(t, s, now)

	job := store.Job{ID: uuid.New(), PipelineID: p.ID, LibraryID: lib.ID, Status: store.JobQueued, SubmittedAt: now}
	require.NoError(t, s.CreateJob(ctx, job, nil))

	stageIDs := []uuid.UUID{p.Stages[0].ID, p.Stages[1].ID}
	require.NoError(t, s.SeedStages(ctx, job.ID, stageIDs, 5, now))
	require.NoError(t, s.SeedStages(ctx, job.ID, stageIDs, 99, now))

	rows, err := s.ListStages(ctx, job.ID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, p.Stages[0].ID, rows[0].StageID)
	require.Equal(t, int64(5), rows[0].ImagesTotal)

	row, err := s.ApplyProgress(ctx, job.ID, p.Stages[0].ID, 7, 0, now)
	require.NoError(t, err)
	require.Equal(t, int64(5), row.ImagesDone)

	_, err = s.FinishStage(ctx, job.ID, p.Stages[0].ID, store.StageCompleted, nil, now)
	require.NoError(t, err)
	_, err = s.ApplyProgress(ctx, job.ID, p.Stages[0].ID, 1, 0, now)
	require.ErrorIs(t, err, store.ErrConflict)

	n, err := s.CancelOpenStages(ctx, job.ID, now)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}

func TestStoreListImagesLabelFilter(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := New()
	now := time.Unix(1700000000, 0).UTC()
	lib, _ := seedLibraryAndPipeline(t, s, now)

	match := store.Image{
		ID: uuid.New(), LibraryID: lib.ID, ObjectPath: "a.jpg",
		Labels: map[string]string{"season": "summer", "set": "beach"}, CreatedAt: now,
	}
	miss := store.Image{
		ID: uuid.New(), LibraryID: lib.ID, ObjectPath: "b.jpg",
		Labels: map[string]string{"season": "winter"}, CreatedAt: now.Add(time.Second),
	}
	require.NoError(t, s.CreateImage(ctx, match))
	require.NoError(t, s.CreateImage(ctx, miss))

	imgs, err := s.ListImages(ctx, lib.ID, map[string]string{"season": "summer"}, 10, 0)
	require.NoError(t, err)
	require.Len(t, imgs, 1)
	require.Equal(t, match.ID, imgs[0].ID)

	all, err := s.ListImages(ctx, lib.ID, nil, 10, 0)
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, miss.ID, all[0].ID)
}

func TestStoreValidationReviewSurvivesRecompute(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := New()
	now := time.Unix(1700000000, 0).UTC()
	resultID := uuid.New()

	require.NoError(t, s.UpsertValidation(ctx, store.ResultValidation{
		ResultID: resultID, OverallScore: 0.3, Status: store.ValidationNeedsReview, ComputedAt: now,
	}))
	require.NoError(t, s.SetReview(ctx, resultID, store.ValidationApproved, "reviewer", "fine", now))

	require.NoError(t, s.UpsertValidation(ctx, store.ResultValidation{
		ResultID: resultID, OverallScore: 0.2, Status: store.ValidationNeedsReview, ComputedAt: now.Add(time.Hour),
	}))

	v, err := s.GetByResult(ctx, resultID)
	require.NoError(t, err)
	require.Equal(t, store.ValidationApproved, v.Status)
	require.NotNil(t, v.ReviewedBy)
	require.Equal(t, 0.2, v.OverallScore)

	err = s.SetReview(ctx, resultID, store.ValidationRejected, "other", "", now)
	require.ErrorIs(t, err, store.ErrConflict)
}

func TestStoreEmbeddingScopes(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := New()
	now := time.Unix(1700000000, 0).UTC()
	lib, p := seedLibraryAndPipeline(t, s, now)
	otherLib := store.Library{ID: uuid.New(), Name: "other-" + uuid.NewString(), CreatedAt: now}
	require.NoError(t, s.CreateLibrary(ctx, otherLib))

	inLib := store.Image{ID: uuid.New(), LibraryID: lib.ID, ObjectPath: "a.jpg", CreatedAt: now}
	outLib := store.Image{ID: uuid.New(), LibraryID: otherLib.ID, ObjectPath: "b.jpg", CreatedAt: now}
	require.NoError(t, s.CreateImage(ctx, inLib))
	require.NoError(t, s.CreateImage(ctx, outLib))

	job := store.Job{ID: uuid.New(), PipelineID: p.ID, LibraryID: lib.ID, Status: store.JobQueued, SubmittedAt: now}
	require.NoError(t, s.CreateJob(ctx, job, nil))
	result := store.JobResult{ID: uuid.New(), JobID: job.ID, StageID: p.Stages[0].ID, ImageID: inLib.ID, CreatedAt: now}
	require.NoError(t, s.InsertResults(ctx, []store.JobResult{result}))

	require.NoError(t, s.UpsertEmbeddings(ctx, []store.Embedding{
		{ID: uuid.New(), ContentType: store.ContentImage, ContentID: inLib.ID, Vector: []float32{1, 0}, CreatedAt: now},
		{ID: uuid.New(), ContentType: store.ContentImage, ContentID: outLib.ID, Vector: []float32{0, 1}, CreatedAt: now},
		{ID: uuid.New(), ContentType: store.ContentResult, ContentID: result.ID, Vector: []float32{1, 1}, CreatedAt: now},
	}))

	images, err := s.ListByType(ctx, store.ContentImage, store.EmbeddingScope{LibraryID: &lib.ID})
	require.NoError(t, err)
	require.Len(t, images, 1)
	require.Equal(t, inLib.ID, images[0].ContentID)

	results, err := s.ListByType(ctx, store.ContentResult, store.EmbeddingScope{JobID: &job.ID})
	require.NoError(t, err)
	require.Len(t, results, 1)

	byLib, err := s.ListByType(ctx, store.ContentResult, store.EmbeddingScope{LibraryID: &otherLib.ID})
	require.NoError(t, err)
	require.Empty(t, byLib)
}

func TestStoreThroughputBucketsByDay(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := New()
	day1 := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	day2 := time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC)
	lib, p := seedLibraryAndPipeline(t, s, day1)

	finished := day2
	completed := store.Job{
		ID: uuid.New(), PipelineID: p.ID, LibraryID: lib.ID,
		Status: store.JobCompleted, SubmittedAt: day1, FinishedAt: &finished,
	}
	queued := store.Job{
		ID: uuid.New(), PipelineID: p.ID, LibraryID: lib.ID,
		Status: store.JobQueued, SubmittedAt: day2,
	}
	require.NoError(t, s.CreateJob(ctx, completed, nil))
	require.NoError(t, s.CreateJob(ctx, queued, nil))

	points, err := s.Throughput(ctx, day1.AddDate(0, 0, -1))
	require.NoError(t, err)
	require.Len(t, points, 2)
	require.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), points[0].Day)
	require.Equal(t, int64(1), points[0].Submitted)
	require.Zero(t, points[0].Completed)
	require.Equal(t, time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC), points[1].Day)
	require.Equal(t, int64(1), points[1].Submitted)
	require.Equal(t, int64(1), points[1].Completed)
}
