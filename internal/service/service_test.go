package service

import (
	"bytes"
	"context"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	iduuid "github.com/argushq/argus/internal/id/uuid"
	"github.com/argushq/argus/internal/publisher/memory"
	"github.com/argushq/argus/internal/queue"
	"github.com/argushq/argus/internal/storage/gcs"
	memstorage "github.com/argushq/argus/internal/storage/memory"
	"github.com/argushq/argus/internal/store"
	"github.com/argushq/argus/internal/telemetry"
)

func TestMain(m *testing.M) {
	telemetry.Init()
	os.Exit(m.Run())
}

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFixedClock() *fixedClock {
	return &fixedClock{now: time.Unix(1700000000, 0).UTC()}
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// countingSigner tracks how many URLs it actually signed so tests can
// observe the cache.
type countingSigner struct {
	mu    sync.Mutex
	calls int
	ttl   time.Duration
	clock *fixedClock
}

func (s *countingSigner) SignedReadURL(_ context.Context, objectPath string) (string, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return "https://signed.example/" + objectPath, s.clock.Now().Add(s.ttl), nil
}

func (s *countingSigner) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// stubObjects serves fixed object bytes and attributes.
type stubObjects struct {
	objects map[string][]byte
}

func (s *stubObjects) StatObject(_ context.Context, objectPath string) (gcs.ObjectInfo, error) {
	data, ok := s.objects[objectPath]
	if !ok {
		return gcs.ObjectInfo{}, store.ErrNotFound
	}
	return gcs.ObjectInfo{SizeBytes: int64(len(data)), ContentType: "image/png"}, nil
}

func (s *stubObjects) OpenObject(_ context.Context, objectPath string) (io.ReadCloser, error) {
	data, ok := s.objects[objectPath]
	if !ok {
		return nil, store.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

type stubEnqueuer struct {
	mu    sync.Mutex
	tasks []queue.Task
}

func (e *stubEnqueuer) TryEnqueue(task queue.Task) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tasks = append(e.tasks, task)
	return true
}

func (e *stubEnqueuer) enqueued() []queue.Task {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]queue.Task(nil), e.tasks...)
}

// fixture wires every service over one in-memory store.
type fixture struct {
	repo        *memstorage.Store
	clock       *fixedClock
	signer      *countingSigner
	objects     *stubObjects
	pub         *memory.Publisher
	enqueuer    *stubEnqueuer
	audit       *AuditService
	images      *ImageService
	pipelines   *PipelineService
	jobs        *JobService
	results     *ResultService
	validations *ValidationService
	embeddings  *EmbeddingService
	dashboard   *DashboardService
	caller      Caller
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	repo := memstorage.New()
	clock := newFixedClock()
	ids := iduuid.New()
	signer := &countingSigner{ttl: time.Hour, clock: clock}
	objects := &stubObjects{objects: map[string][]byte{}}
	pub := memory.New()
	enqueuer := &stubEnqueuer{}

	f := &fixture{
		repo:     repo,
		clock:    clock,
		signer:   signer,
		objects:  objects,
		pub:      pub,
		enqueuer: enqueuer,
		caller:   Caller{Subject: "tester", RequestID: "req-1"},
	}
	f.audit = NewAuditService(repo, clock, ids, nil)
	f.images = NewImageService(ImageDeps{
		Libraries: repo,
		Signer:    signer,
		Objects:   objects,
		Audit:     f.audit,
		Clock:     clock,
		IDs:       ids,
		Config:    ImageConfig{VerifyChecksums: true},
	})
	f.pipelines = NewPipelineService(PipelineDeps{Pipelines: repo, Audit: f.audit, Clock: clock, IDs: ids})
	f.jobs = NewJobService(JobDeps{
		Jobs: repo, Pipelines: repo, Libraries: repo,
		Publisher: pub, Audit: f.audit, Clock: clock, IDs: ids,
	})
	f.results = NewResultService(ResultDeps{
		Results: repo, Jobs: repo, Pipelines: repo,
		Enqueuer: enqueuer, Clock: clock, IDs: ids,
	})
	f.validations = NewValidationService(ValidationDeps{
		Validations: repo, Results: repo, Audit: f.audit, Clock: clock,
	})
	f.embeddings = NewEmbeddingService(EmbeddingDeps{
		Embeddings: repo, Libraries: repo, Results: repo, Clock: clock, IDs: ids,
	})
	f.dashboard = NewDashboardService(repo, repo, clock)
	return f
}

func (f *fixture) seedLibrary(t *testing.T, name string) store.Library {
	t.Helper()
	lib, err := f.images.CreateLibrary(context.Background(), f.caller, name, "")
	require.NoError(t, err)
	return lib
}

// seedImage registers an image backed by real object bytes.
func (f *fixture) seedImage(t *testing.T, libraryID uuid.UUID, path string) store.Image {
	t.Helper()
	f.objects.objects[path] = []byte("png bytes for " + path)
	img, err := f.images.RegisterImage(context.Background(), f.caller, libraryID, RegisterImageRequest{
		ObjectPath:  path,
		ContentType: "image/png",
		SizeBytes:   64,
	})
	require.NoError(t, err)
	return img
}

func (f *fixture) seedPipeline(t *testing.T, stageNames ...string) store.Pipeline {
	t.Helper()
	specs := make([]StageSpec, 0, len(stageNames))
	for _, name := range stageNames {
		specs = append(specs, StageSpec{Name: name, PromptText: "describe", Model: "vision-small"})
	}
	p, err := f.pipelines.Create(context.Background(), f.caller, CreatePipelineRequest{
		Name:   "pipeline-" + uuid.NewString(),
		Stages: specs,
	})
	require.NoError(t, err)
	return p
}

func (f *fixture) seedJob(t *testing.T, pipelineID, libraryID uuid.UUID) store.Job {
	t.Helper()
	job, err := f.jobs.Submit(context.Background(), f.caller, SubmitJobRequest{
		PipelineID: pipelineID,
		LibraryID:  libraryID,
	})
	require.NoError(t, err)
	return job
}
