package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/argushq/argus/internal/store"
)

func TestJobStoreCreateJobSnapshotsImages(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	jobs := NewJobStore(mock)

	now := time.Unix(1700000000, 0).UTC()
	job := store.Job{
		ID:          uuid.MustParse("11111111-1111-1111-1111-111111111111"),
		PipelineID:  uuid.MustParse("22222222-2222-2222-2222-222222222222"),
		LibraryID:   uuid.MustParse("33333333-3333-3333-3333-333333333333"),
		Status:      store.JobQueued,
		SubmittedBy: "ops@example.com",
		SubmittedAt: now,
		ImageCount:  2,
	}
	imageIDs := []uuid.UUID{
		uuid.MustParse("44444444-4444-4444-4444-444444444444"),
		uuid.MustParse("55555555-5555-5555-5555-555555555555"),
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO jobs").
		WithArgs(job.ID, job.PipelineID, job.LibraryID, job.Status, job.SubmittedBy, job.SubmittedAt, job.ImageCount).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO job_images").
		WithArgs(job.ID, imageIDs).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	err = jobs.CreateJob(context.Background(), job, imageIDs)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJobStoreGetJobMissing(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	jobs := NewJobStore(mock)
	id := uuid.MustParse("11111111-1111-1111-1111-111111111111")

	mock.ExpectQuery("SELECT id, pipeline_id, library_id").
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)

	_, err = jobs.GetJob(context.Background(), id)
	require.ErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJobStoreMarkJobRunningOnTerminalJob(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	jobs := NewJobStore(mock)

	now := time.Unix(1700000000, 0).UTC()
	id := uuid.MustParse("11111111-1111-1111-1111-111111111111")

	mock.ExpectExec("UPDATE jobs").
		WithArgs(store.JobRunning, now, id, store.JobQueued).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery("SELECT status FROM jobs").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow(store.JobCompleted))

	err = jobs.MarkJobRunning(context.Background(), id, now)
	require.ErrorIs(t, err, store.ErrConflict)
	require.ErrorContains(t, err, "job is completed")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestJobStoreMarkJobRunningMissing(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	jobs := NewJobStore(mock)

	now := time.Unix(1700000000, 0).UTC()
	id := uuid.MustParse("11111111-1111-1111-1111-111111111111")

	mock.ExpectExec("UPDATE jobs").
		WithArgs(store.JobRunning, now, id, store.JobQueued).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery("SELECT status FROM jobs").
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)

	err = jobs.MarkJobRunning(context.Background(), id, now)
	require.ErrorIs(t, err, store.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
