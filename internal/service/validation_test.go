package service

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/argushq/argus/internal/store"
)

// recordOne stores one result and returns it.
func recordOne(t *testing.T, f *fixture, jobID, stageID, imageID uuid.UUID, text string, confidence float64) store.JobResult {
	t.Helper()
	recorded, err := f.results.Record(context.Background(), jobID, []ResultEntry{{
		StageID:      stageID,
		ImageID:      imageID,
		ResponseText: text,
		Confidence:   confidence,
	}})
	require.NoError(t, err)
	return recorded[0]
}

func TestComputeApprovesCleanResult(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	lib := f.seedLibrary(t, "clean")
	img := f.seedImage(t, lib.ID, "cv/a.png")
	pipe := f.seedPipeline(t, "caption")
	job := f.seedJob(t, pipe.ID, lib.ID)
	ctx := context.Background()

	r := recordOne(t, f, job.ID, pipe.Stages[0].ID, img.ID,
		"A red sedan parked in front of a brick building.", 0.92)

	require.NoError(t, f.validations.Compute(ctx, r.ID))
	v, err := f.validations.GetByResult(ctx, r.ID)
	require.NoError(t, err)
	require.InDelta(t, 0.92, v.ConfidenceScore, 1e-9)
	// Only result for the image: fully consistent, no flags.
	require.InDelta(t, 1.0, v.ConsistencyScore, 1e-9)
	require.Empty(t, v.ContentFlags)
	require.InDelta(t, 0.5*0.92+0.3+0.2, v.OverallScore, 1e-9)
	require.Equal(t, store.ValidationApproved, v.Status)
}

func TestComputeFlagsProblemText(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		text string
		flag string
	}{
		{"empty", "   ", FlagEmptyResponse},
		{"short", "a car", FlagShortResponse},
		{"refusal", "I cannot describe this image for you today.", FlagRefusalDetected},
		{"truncated", strings.Repeat("an unterminated run-on sentence ", 200), FlagTruncatedResponse},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t)
			lib := f.seedLibrary(t, "flags")
			img := f.seedImage(t, lib.ID, "fg/a.png")
			pipe := f.seedPipeline(t, "caption")
			job := f.seedJob(t, pipe.ID, lib.ID)
			ctx := context.Background()

			r := recordOne(t, f, job.ID, pipe.Stages[0].ID, img.ID, tc.text, 0.9)
			require.NoError(t, f.validations.Compute(ctx, r.ID))
			v, err := f.validations.GetByResult(ctx, r.ID)
			require.NoError(t, err)
			require.Contains(t, v.ContentFlags, tc.flag)
		})
	}
}

func TestComputeConsistencyAgainstSiblings(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	lib := f.seedLibrary(t, "siblings")
	img := f.seedImage(t, lib.ID, "sb/a.png")
	pipe := f.seedPipeline(t, "caption", "verify")
	job := f.seedJob(t, pipe.ID, lib.ID)
	ctx := context.Background()

	recordOne(t, f, job.ID, pipe.Stages[0].ID, img.ID,
		"A golden retriever runs across the park lawn.", 0.9)
	disagreeing := recordOne(t, f, job.ID, pipe.Stages[1].ID, img.ID,
		"Stainless kitchen equipment under fluorescent lighting.", 0.1)

	require.NoError(t, f.validations.Compute(ctx, disagreeing.ID))
	v, err := f.validations.GetByResult(ctx, disagreeing.ID)
	require.NoError(t, err)
	require.InDelta(t, 0.0, v.ConsistencyScore, 1e-9)
	require.LessOrEqual(t, v.OverallScore, 0.4)
	require.Equal(t, store.ValidationNeedsReview, v.Status)
}

func TestComputeKeepsHumanReview(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	lib := f.seedLibrary(t, "sticky")
	img := f.seedImage(t, lib.ID, "sk/a.png")
	pipe := f.seedPipeline(t, "caption")
	job := f.seedJob(t, pipe.ID, lib.ID)
	ctx := context.Background()

	r := recordOne(t, f, job.ID, pipe.Stages[0].ID, img.ID, "I cannot", 0.05)
	require.NoError(t, f.validations.Compute(ctx, r.ID))
	require.NoError(t, f.validations.Review(ctx, f.caller, r.ID, true, "acceptable for this set"))

	// Recomputing refreshes scores but never overrides the human call.
	require.NoError(t, f.validations.Compute(ctx, r.ID))
	v, err := f.validations.GetByResult(ctx, r.ID)
	require.NoError(t, err)
	require.Equal(t, store.ValidationApproved, v.Status)
	require.NotNil(t, v.ReviewedBy)
	require.Equal(t, "tester", *v.ReviewedBy)

	// A second review is a conflict.
	err = f.validations.Review(ctx, f.caller, r.ID, false, "changed my mind")
	require.ErrorIs(t, err, store.ErrConflict)
}

func TestListByStatusValidatesStatus(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	_, err := f.validations.ListByStatus(context.Background(), "sideways", 10, 0)
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestUpsertEmbeddingsValidation(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	lib := f.seedLibrary(t, "vectors")
	img := f.seedImage(t, lib.ID, "vc/a.png")
	ctx := context.Background()

	_, err := f.embeddings.Upsert(ctx, nil)
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.embeddings.Upsert(ctx, []EmbeddingEntry{{
		ContentType: "video", ContentID: img.ID, Vector: []float32{1},
	}})
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.embeddings.Upsert(ctx, []EmbeddingEntry{{
		ContentType: store.ContentImage, ContentID: img.ID, Vector: nil,
	}})
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.embeddings.Upsert(ctx, []EmbeddingEntry{{
		ContentType: store.ContentImage, ContentID: img.ID, Vector: make([]float32, store.MaxVectorDims+1),
	}})
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.embeddings.Upsert(ctx, []EmbeddingEntry{{
		ContentType: store.ContentImage, ContentID: uuid.New(), Vector: []float32{1},
	}})
	require.ErrorIs(t, err, ErrInvalidInput)

	n, err := f.embeddings.Upsert(ctx, []EmbeddingEntry{{
		ContentType: store.ContentImage, ContentID: img.ID, Vector: []float32{0.1, 0.9}, Model: "embed-v2",
	}})
	require.NoError(t, err)
	require.Equal(t, 1, n)

	// Re-upserting the same content replaces the vector in place.
	n, err = f.embeddings.Upsert(ctx, []EmbeddingEntry{{
		ContentType: store.ContentImage, ContentID: img.ID, Vector: []float32{0.9, 0.1}, Model: "embed-v3",
	}})
	require.NoError(t, err)
	require.Equal(t, 1, n)

	rows, err := f.repo.ListByType(ctx, store.ContentImage, store.EmbeddingScope{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, []float32{0.9, 0.1}, rows[0].Vector)
}
