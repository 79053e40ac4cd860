package store

import "testing"

func TestJobStatusTerminal(t *testing.T) {
	t.Parallel()

	terminal := []JobStatus{JobCompleted, JobFailed, JobCanceled}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Fatalf("expected %s to be terminal", s)
		}
	}
	open := []JobStatus{JobQueued, JobRunning, JobStatus("bogus")}
	for _, s := range open {
		if s.Terminal() {
			t.Fatalf("expected %s to be non-terminal", s)
		}
	}
}

func TestStageStatusTerminal(t *testing.T) {
	t.Parallel()

	terminal := []StageStatus{StageCompleted, StageFailed, StageCanceled}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Fatalf("expected %s to be terminal", s)
		}
	}
	open := []StageStatus{StagePending, StageRunning}
	for _, s := range open {
		if s.Terminal() {
			t.Fatalf("expected %s to be non-terminal", s)
		}
	}
}

func TestValidJobStatus(t *testing.T) {
	t.Parallel()

	if !ValidJobStatus(JobQueued) {
		t.Fatal("queued should be valid")
	}
	if ValidJobStatus(JobStatus("paused")) {
		t.Fatal("paused is not a persisted status")
	}
}

func TestValidContentType(t *testing.T) {
	t.Parallel()

	if !ValidContentType(ContentImage) || !ValidContentType(ContentResult) {
		t.Fatal("image and result are the persisted content types")
	}
	if ValidContentType(ContentType("video")) {
		t.Fatal("video is not a persisted content type")
	}
}
