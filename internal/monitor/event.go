package monitor

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/argushq/argus/internal/store"
)

// EventType denotes the kind of stage report submitted by a worker.
type EventType string

// Supported worker event types.
const (
	EventStarted   EventType = "started"
	EventProgress  EventType = "progress"
	EventCompleted EventType = "completed"
	EventFailed    EventType = "failed"
	EventError     EventType = "error"
)

// StageEvent is one worker report against a (job, stage) pair.
type StageEvent struct {
	Type EventType
	// DoneDelta and FailedDelta accompany progress events.
	DoneDelta   int64
	FailedDelta int64
	// ImageID optionally scopes an error report to a single image.
	ImageID *uuid.UUID
	// Message carries the failure reason for failed and error events.
	Message string
	// Detail optionally carries the full worker diagnostic for error events.
	Detail string
}

// Validate performs coarse validation on worker reports.
func (e StageEvent) Validate() error {
	switch e.Type {
	case EventStarted, EventCompleted:
	case EventProgress:
		if e.DoneDelta < 0 || e.FailedDelta < 0 {
			return errors.New("progress deltas must be >= 0")
		}
		if e.DoneDelta == 0 && e.FailedDelta == 0 {
			return errors.New("progress event requires a delta")
		}
	case EventFailed:
		if e.Message == "" {
			return errors.New("failed event requires a message")
		}
	case EventError:
		if e.Message == "" {
			return errors.New("error event requires a message")
		}
	default:
		return fmt.Errorf("unknown event type %q", e.Type)
	}
	return nil
}

// Kind denotes the type of change carried by an Update.
type Kind string

// Update kinds fanned out to subscribers and sinks.
const (
	KindJobStarted     Kind = "JOB_STARTED"
	KindJobCompleted   Kind = "JOB_COMPLETED"
	KindJobFailed      Kind = "JOB_FAILED"
	KindJobCanceled    Kind = "JOB_CANCELED"
	KindStageStarted   Kind = "STAGE_STARTED"
	KindStageProgress  Kind = "STAGE_PROGRESS"
	KindStageCompleted Kind = "STAGE_COMPLETED"
	KindStageFailed    Kind = "STAGE_FAILED"
	KindStageError     Kind = "STAGE_ERROR"
)

// JobLevel reports whether k describes a job lifecycle transition.
func (k Kind) JobLevel() bool {
	switch k {
	case KindJobStarted, KindJobCompleted, KindJobFailed, KindJobCanceled:
		return true
	}
	return false
}

// Rollup is a lightweight cross-stage aggregate refreshed on every update.
type Rollup struct {
	ImagesTotal     int64
	ImagesDone      int64
	ImagesFailed    int64
	ErrorCount      int64
	PercentComplete float64
	StagesTotal     int
	StagesCompleted int
	StagesFailed    int
	StagesRunning   int
}

// Update captures one observed change to a job. Stage carries the
// post-change row for stage-level kinds.
type Update struct {
	// JobID identifies the job the change belongs to.
	JobID uuid.UUID
	// StageID is set for stage-level kinds.
	StageID uuid.UUID
	Kind    Kind
	// TS is the UTC timestamp the change was recorded at.
	TS time.Time
	// JobStatus is the job status after the change.
	JobStatus store.JobStatus
	Stage     *store.StageProgress
	Rollup    Rollup
	// Note carries error text for failure kinds.
	Note string
}

// Validate performs coarse validation on Update payloads.
func (u Update) Validate() error {
	if u.JobID == uuid.Nil {
		return errors.New("job id is required")
	}
	if u.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch u.Kind {
	case KindJobStarted, KindJobCompleted, KindJobFailed, KindJobCanceled:
	case KindStageStarted, KindStageProgress, KindStageCompleted, KindStageFailed, KindStageError:
		if u.StageID == uuid.Nil {
			return errors.New("stage id is required")
		}
	default:
		return fmt.Errorf("unknown update kind %q", u.Kind)
	}
	return nil
}

// rollupFrom computes the aggregate across a job's stage rows.
func rollupFrom(stages []store.StageProgress) Rollup {
	r := Rollup{StagesTotal: len(stages)}
	for _, st := range stages {
		r.ImagesTotal += st.ImagesTotal
		r.ImagesDone += st.ImagesDone
		r.ImagesFailed += st.ImagesFailed
		r.ErrorCount += st.ErrorCount
		switch st.Status {
		case store.StageCompleted:
			r.StagesCompleted++
		case store.StageFailed:
			r.StagesFailed++
		case store.StageRunning:
			r.StagesRunning++
		}
	}
	if r.ImagesTotal > 0 {
		r.PercentComplete = 100 * float64(r.ImagesDone) / float64(r.ImagesTotal)
	}
	return r
}
