package monitor

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/argushq/argus/internal/store"
)

// StageSummary pairs a progress row with its pipeline stage identity.
type StageSummary struct {
	store.StageProgress
	Position int
	Name     string
}

// Summary is the aggregate view of one job, recomputed from the stored
// progress rows rather than carried as state.
type Summary struct {
	JobID           uuid.UUID
	PipelineID      uuid.UUID
	LibraryID       uuid.UUID
	Status          store.JobStatus
	SubmittedBy     string
	SubmittedAt     time.Time
	StartedAt       *time.Time
	FinishedAt      *time.Time
	ErrorText       *string
	ImagesTotal     int64
	ImagesDone      int64
	ImagesFailed    int64
	ErrorCount      int64
	PercentComplete float64
	StagesTotal     int
	StagesCompleted int
	StagesFailed    int
	StagesRunning   int
	Elapsed         time.Duration
	ImagesPerMinute float64
	EstRemaining    time.Duration
	ResultCount     int64
	AvgConfidence   float64
	LastUpdate      time.Time
	Stages          []StageSummary
}

// Summary assembles the job header, the joined stage rows, and the result
// statistics into one snapshot.
func (s *Service) Summary(ctx context.Context, jobID uuid.UUID) (Summary, error) {
	job, err := s.jobs.GetJob(ctx, jobID)
	if err != nil {
		return Summary{}, fmt.Errorf("load job: %w", err)
	}
	stages, err := s.stageSummaries(ctx, job)
	if err != nil {
		return Summary{}, err
	}
	stats, err := s.results.JobStats(ctx, jobID)
	if err != nil {
		return Summary{}, fmt.Errorf("load result stats: %w", err)
	}
	return buildSummary(job, stages, stats, s.clock.Now()), nil
}

func (s *Service) stageSummaries(ctx context.Context, job store.Job) ([]StageSummary, error) {
	pipe, err := s.pipelines.GetPipeline(ctx, job.PipelineID)
	if err != nil {
		return nil, fmt.Errorf("load pipeline: %w", err)
	}
	rows, err := s.progress.ListStages(ctx, job.ID)
	if err != nil {
		return nil, fmt.Errorf("list stage progress: %w", err)
	}
	byID := make(map[uuid.UUID]store.Stage, len(pipe.Stages))
	for _, st := range pipe.Stages {
		byID[st.ID] = st
	}
	out := make([]StageSummary, 0, len(rows))
	for _, row := range rows {
		sum := StageSummary{StageProgress: row}
		if st, ok := byID[row.StageID]; ok {
			sum.Position = st.Position
			sum.Name = st.Name
		}
		out = append(out, sum)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func buildSummary(job store.Job, stages []StageSummary, stats store.JobResultStats, now time.Time) Summary {
	rows := make([]store.StageProgress, 0, len(stages))
	for _, st := range stages {
		rows = append(rows, st.StageProgress)
	}
	roll := rollupFrom(rows)

	sum := Summary{
		JobID:           job.ID,
		PipelineID:      job.PipelineID,
		LibraryID:       job.LibraryID,
		Status:          job.Status,
		SubmittedBy:     job.SubmittedBy,
		SubmittedAt:     job.SubmittedAt,
		StartedAt:       job.StartedAt,
		FinishedAt:      job.FinishedAt,
		ErrorText:       job.ErrorText,
		ImagesTotal:     roll.ImagesTotal,
		ImagesDone:      roll.ImagesDone,
		ImagesFailed:    roll.ImagesFailed,
		ErrorCount:      roll.ErrorCount,
		PercentComplete: roll.PercentComplete,
		StagesTotal:     roll.StagesTotal,
		StagesCompleted: roll.StagesCompleted,
		StagesFailed:    roll.StagesFailed,
		StagesRunning:   roll.StagesRunning,
		ResultCount:     stats.ResultCount,
		AvgConfidence:   stats.AvgConfidence,
		LastUpdate:      job.SubmittedAt,
		Stages:          stages,
	}

	if job.StartedAt != nil {
		end := now
		if job.FinishedAt != nil {
			end = *job.FinishedAt
		}
		if end.After(*job.StartedAt) {
			sum.Elapsed = end.Sub(*job.StartedAt)
		}
	}
	if mins := sum.Elapsed.Minutes(); mins > 0 && sum.ImagesDone > 0 {
		sum.ImagesPerMinute = float64(sum.ImagesDone) / mins
	}
	if remaining := sum.ImagesTotal - sum.ImagesDone - sum.ImagesFailed; remaining > 0 && sum.ImagesPerMinute > 0 && !job.Status.Terminal() {
		sum.EstRemaining = time.Duration(float64(remaining) / sum.ImagesPerMinute * float64(time.Minute))
	}
	for _, st := range stages {
		if st.UpdatedAt.After(sum.LastUpdate) {
			sum.LastUpdate = st.UpdatedAt
		}
	}
	return sum
}
