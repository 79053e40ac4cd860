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

var progressColumnNames = []string{
	"job_id", "stage_id", "status", "images_total", "images_done", "images_failed",
	"error_count", "started_at", "finished_at", "last_error", "updated_at",
}

func TestProgressStoreApplyProgressReturnsUpdatedRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	progress := NewProgressStore(mock)

	now := time.Unix(1700000000, 0).UTC()
	jobID := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	stageID := uuid.MustParse("22222222-2222-2222-2222-222222222222")
	started := now.Add(-time.Minute)

	mock.ExpectQuery("UPDATE stage_progress").
		WithArgs(jobID, stageID, int64(3), int64(1), now, store.StagePending, store.StageRunning).
		WillReturnRows(pgxmock.NewRows(progressColumnNames).AddRow(
			jobID, stageID, store.StageRunning, int64(10), int64(7), int64(1), int64(0),
			&started, nil, nil, now,
		))

	row, err := progress.ApplyProgress(context.Background(), jobID, stageID, 3, 1, now)
	require.NoError(t, err)
	require.Equal(t, int64(7), row.ImagesDone)
	require.Equal(t, int64(1), row.ImagesFailed)
	require.Equal(t, store.StageRunning, row.Status)
	require.NotNil(t, row.StartedAt)
	require.Nil(t, row.FinishedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProgressStoreApplyProgressOnFinishedStage(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	progress := NewProgressStore(mock)

	now := time.Unix(1700000000, 0).UTC()
	jobID := uuid.MustParse("11111111-1111-1111-1111-111111111111")
	stageID := uuid.MustParse("22222222-2222-2222-2222-222222222222")

	mock.ExpectQuery("UPDATE stage_progress").
		WithArgs(jobID, stageID, int64(1), int64(0), now, store.StagePending, store.StageRunning).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("SELECT status FROM stage_progress").
		WithArgs(jobID, stageID).
		WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow(store.StageCompleted))

	_, err = progress.ApplyProgress(context.Background(), jobID, stageID, 1, 0, now)
	require.ErrorIs(t, err, store.ErrConflict)
	require.ErrorContains(t, err, "stage is completed")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProgressStoreCancelOpenStagesCountsRows(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	progress := NewProgressStore(mock)

	now := time.Unix(1700000000, 0).UTC()
	jobID := uuid.MustParse("11111111-1111-1111-1111-111111111111")

	mock.ExpectExec("UPDATE stage_progress").
		WithArgs(store.StageCanceled, now, jobID, store.StagePending, store.StageRunning).
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))

	n, err := progress.CancelOpenStages(context.Background(), jobID, now)
	require.NoError(t, err)
	require.Equal(t, int64(2), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProgressStoreSeedStagesSkipsEmptyBatch(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	progress := NewProgressStore(mock)

	err = progress.SeedStages(context.Background(), uuid.New(), nil, 10, time.Now())
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProgressStoreAppendStageErrorBumpsCounter(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	progress := NewProgressStore(mock)

	now := time.Unix(1700000000, 0).UTC()
	e := store.StageError{
		ID:         uuid.MustParse("99999999-9999-9999-9999-999999999999"),
		JobID:      uuid.MustParse("11111111-1111-1111-1111-111111111111"),
		StageID:    uuid.MustParse("22222222-2222-2222-2222-222222222222"),
		Message:    "provider timeout",
		OccurredAt: now,
	}

	mock.ExpectBegin()
	mock.ExpectQuery("UPDATE stage_progress").
		WithArgs(e.JobID, e.StageID, e.Message, e.OccurredAt, store.StagePending, store.StageRunning).
		WillReturnRows(pgxmock.NewRows(progressColumnNames).AddRow(
			e.JobID, e.StageID, store.StageRunning, int64(10), int64(4), int64(0), int64(3),
			nil, nil, &e.Message, now,
		))
	mock.ExpectExec("INSERT INTO stage_errors").
		WithArgs(e.ID, e.JobID, e.StageID, e.ImageID, e.Message, e.Detail, e.OccurredAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	row, err := progress.AppendStageError(context.Background(), e)
	require.NoError(t, err)
	require.Equal(t, int64(3), row.ErrorCount)
	require.NotNil(t, row.LastError)
	require.Equal(t, "provider timeout", *row.LastError)
	require.NoError(t, mock.ExpectationsWereMet())
}
