package sinks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/argushq/argus/internal/monitor"
)

// PrometheusSink exports pipeline progress metrics derived from the update
// stream. It owns the collectors for running jobs, job runtime, processed
// images, and stage outcomes; plain transition counts live in the telemetry
// package.
type PrometheusSink struct {
	jobsRunning     prometheus.Gauge
	jobRuntime      *prometheus.HistogramVec
	imagesProcessed *prometheus.CounterVec
	stageErrors     prometheus.Counter
	stagesFinished  *prometheus.CounterVec

	tracker *jobTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		jobsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "argus_pipeline_jobs_running",
			Help: "Current number of running jobs.",
		}),
		jobRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "argus_pipeline_job_runtime_seconds",
			Help:    "Wall time per finished job partitioned by terminal status.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		}, []string{"status"}),
		imagesProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "argus_pipeline_images_processed_total",
			Help: "Per-stage image completions partitioned by outcome.",
		}, []string{"outcome"}),
		stageErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "argus_pipeline_stage_errors_total",
			Help: "Total stage error reports.",
		}),
		stagesFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "argus_pipeline_stages_finished_total",
			Help: "Total stages finished partitioned by status.",
		}, []string{"status"}),
		tracker: newJobTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.jobsRunning,
		s.jobRuntime,
		s.imagesProcessed,
		s.stageErrors,
		s.stagesFinished,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register monitor collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the Prometheus collectors using the provided batch. It is
// safe for concurrent use by multiple goroutines.
func (s *PrometheusSink) Consume(_ context.Context, batch []monitor.Update) error {
	for _, u := range batch {
		s.consumeUpdate(u)
	}
	return nil
}

func (s *PrometheusSink) consumeUpdate(u monitor.Update) {
	s.applyRollup(u)
	switch u.Kind {
	case monitor.KindJobStarted:
		if s.tracker.start(u.JobID, u.TS) {
			s.jobsRunning.Inc()
		}
	case monitor.KindStageCompleted:
		s.stagesFinished.WithLabelValues("completed").Inc()
	case monitor.KindStageFailed:
		s.stagesFinished.WithLabelValues("failed").Inc()
	case monitor.KindJobCompleted, monitor.KindJobFailed, monitor.KindJobCanceled:
		s.finishJob(u)
	}
}

// applyRollup turns the cumulative per-job counters carried on every update
// into counter increments.
func (s *PrometheusSink) applyRollup(u monitor.Update) {
	done, failed, errs := s.tracker.advance(u.JobID, u.Rollup)
	if done > 0 {
		s.imagesProcessed.WithLabelValues("done").Add(float64(done))
	}
	if failed > 0 {
		s.imagesProcessed.WithLabelValues("failed").Add(float64(failed))
	}
	if errs > 0 {
		s.stageErrors.Add(float64(errs))
	}
}

func (s *PrometheusSink) finishJob(u monitor.Update) {
	started, sawStart := s.tracker.complete(u.JobID)
	if !sawStart {
		return
	}
	s.jobsRunning.Dec()
	if d := u.TS.Sub(started); d > 0 {
		s.jobRuntime.WithLabelValues(string(u.JobStatus)).Observe(d.Seconds())
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

// jobTracker remembers, per live job, the start timestamp and the last seen
// cumulative rollup counters so repeated snapshots become deltas.
type jobTracker struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*jobCounts
}

type jobCounts struct {
	startedAt time.Time
	sawStart  bool
	done      int64
	failed    int64
	errors    int64
}

func newJobTracker() *jobTracker {
	return &jobTracker{jobs: make(map[uuid.UUID]*jobCounts)}
}

func (t *jobTracker) start(id uuid.UUID, at time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	jc := t.jobs[id]
	if jc == nil {
		jc = &jobCounts{}
		t.jobs[id] = jc
	}
	if jc.sawStart {
		return false
	}
	jc.sawStart = true
	jc.startedAt = at
	return true
}

func (t *jobTracker) advance(id uuid.UUID, roll monitor.Rollup) (done, failed, errs int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	jc := t.jobs[id]
	if jc == nil {
		jc = &jobCounts{}
		t.jobs[id] = jc
	}
	done = max64(roll.ImagesDone-jc.done, 0)
	failed = max64(roll.ImagesFailed-jc.failed, 0)
	errs = max64(roll.ErrorCount-jc.errors, 0)
	if roll.ImagesDone > jc.done {
		jc.done = roll.ImagesDone
	}
	if roll.ImagesFailed > jc.failed {
		jc.failed = roll.ImagesFailed
	}
	if roll.ErrorCount > jc.errors {
		jc.errors = roll.ErrorCount
	}
	return done, failed, errs
}

func (t *jobTracker) complete(id uuid.UUID) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	jc := t.jobs[id]
	if jc == nil {
		return time.Time{}, false
	}
	delete(t.jobs, id)
	return jc.startedAt, jc.sawStart
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
