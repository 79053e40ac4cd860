package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/argushq/argus/internal/store"
)

func TestSubmitSnapshotsWholeLibrary(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	lib := f.seedLibrary(t, "fleet")
	f.seedImage(t, lib.ID, "fleet/a.png")
	f.seedImage(t, lib.ID, "fleet/b.png")
	pipe := f.seedPipeline(t, "detect")

	job, err := f.jobs.Submit(context.Background(), f.caller, SubmitJobRequest{
		PipelineID: pipe.ID,
		LibraryID:  lib.ID,
	})
	require.NoError(t, err)
	require.Equal(t, store.JobQueued, job.Status)
	require.Equal(t, "tester", job.SubmittedBy)
	require.Equal(t, 2, job.ImageCount)

	events := f.pub.Events()
	require.Len(t, events, 1)
	require.Equal(t, job.ID, events[0].JobID)
	require.Equal(t, string(store.JobQueued), events[0].Status)
}

func TestSubmitExplicitImageSelection(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	lib := f.seedLibrary(t, "selection")
	img1 := f.seedImage(t, lib.ID, "s/a.png")
	f.seedImage(t, lib.ID, "s/b.png")
	pipe := f.seedPipeline(t, "detect")
	ctx := context.Background()

	// Duplicates collapse into one snapshot entry.
	job, err := f.jobs.Submit(ctx, f.caller, SubmitJobRequest{
		PipelineID: pipe.ID,
		LibraryID:  lib.ID,
		ImageIDs:   []uuid.UUID{img1.ID, img1.ID},
	})
	require.NoError(t, err)
	require.Equal(t, 1, job.ImageCount)

	// Unknown images are invalid, not a missing job dependency.
	_, err = f.jobs.Submit(ctx, f.caller, SubmitJobRequest{
		PipelineID: pipe.ID,
		LibraryID:  lib.ID,
		ImageIDs:   []uuid.UUID{uuid.New()},
	})
	require.ErrorIs(t, err, ErrInvalidInput)

	// Images from another library cannot ride along.
	other := f.seedLibrary(t, "other")
	foreign := f.seedImage(t, other.ID, "o/c.png")
	_, err = f.jobs.Submit(ctx, f.caller, SubmitJobRequest{
		PipelineID: pipe.ID,
		LibraryID:  lib.ID,
		ImageIDs:   []uuid.UUID{foreign.ID},
	})
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestSubmitRejectsEmptyAndArchived(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	empty := f.seedLibrary(t, "empty")
	pipe := f.seedPipeline(t, "detect")
	ctx := context.Background()

	_, err := f.jobs.Submit(ctx, f.caller, SubmitJobRequest{PipelineID: pipe.ID, LibraryID: empty.ID})
	require.ErrorIs(t, err, ErrInvalidInput)

	lib := f.seedLibrary(t, "stocked")
	f.seedImage(t, lib.ID, "st/a.png")
	require.NoError(t, f.pipelines.Archive(ctx, f.caller, pipe.ID))
	_, err = f.jobs.Submit(ctx, f.caller, SubmitJobRequest{PipelineID: pipe.ID, LibraryID: lib.ID})
	require.ErrorIs(t, err, store.ErrConflict)

	_, err = f.jobs.Submit(ctx, f.caller, SubmitJobRequest{PipelineID: uuid.New(), LibraryID: lib.ID})
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestPipelineCreateAssignsPositions(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	_, err := f.pipelines.Create(ctx, f.caller, CreatePipelineRequest{Name: "nameless"})
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.pipelines.Create(ctx, f.caller, CreatePipelineRequest{
		Name:   "no-model",
		Stages: []StageSpec{{Name: "caption", PromptText: "describe"}},
	})
	require.ErrorIs(t, err, ErrInvalidInput)

	p, err := f.pipelines.Create(ctx, f.caller, CreatePipelineRequest{
		Name: "captioning",
		Stages: []StageSpec{
			{Name: "caption", PromptText: "describe the image", Model: "vision-small"},
			{Name: "tags", PromptText: "list the objects", Model: "vision-small"},
		},
	})
	require.NoError(t, err)
	require.Equal(t, 1, p.Version)
	require.Len(t, p.Stages, 2)
	require.Equal(t, 1, p.Stages[0].Position)
	require.Equal(t, 2, p.Stages[1].Position)
	require.Equal(t, p.ID, p.Stages[0].PipelineID)
}

func TestPipelineArchiveHidesFromListing(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	pipe := f.seedPipeline(t, "only")
	ctx := context.Background()

	require.NoError(t, f.pipelines.Archive(ctx, f.caller, pipe.ID))
	// Archiving twice is a no-op.
	require.NoError(t, f.pipelines.Archive(ctx, f.caller, pipe.ID))

	active, err := f.pipelines.List(ctx, false, 10, 0)
	require.NoError(t, err)
	require.Empty(t, active)

	all, err := f.pipelines.List(ctx, true, 10, 0)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.True(t, all[0].Archived)
}
