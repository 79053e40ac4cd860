package monitor

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/argushq/argus/internal/store"
	"github.com/argushq/argus/internal/telemetry"
)

func TestMain(m *testing.M) {
	telemetry.Init()
	os.Exit(m.Run())
}

// TestHubBatchBySize verifies the hub flushes immediately once the batch size limit is reached.
func TestHubBatchBySize(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{
		BufferSize:     8,
		MaxBatchEvents: 2,
		MaxBatchWait:   time.Minute,
	}, sink)
	defer func() {
		require.NoError(t, hub.Close(context.Background()))
	}()

	u := sampleUpdate(uuid.New(), KindJobStarted)
	hub.Publish(u)
	hub.Publish(u)
	require.Eventually(t, func() bool {
		return len(sink.Batches()) == 1 && len(sink.Batches()[0]) == 2
	}, time.Second, 10*time.Millisecond)
}

// TestHubBatchByTimer verifies the timer-based flush kicks in when the batch is small.
func TestHubBatchByTimer(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{
		BufferSize:     4,
		MaxBatchEvents: 10,
		MaxBatchWait:   25 * time.Millisecond,
	}, sink)
	defer func() {
		require.NoError(t, hub.Close(context.Background()))
	}()

	hub.Publish(sampleUpdate(uuid.New(), KindJobStarted))
	require.Eventually(t, func() bool {
		return len(sink.Batches()) == 1
	}, time.Second, 5*time.Millisecond)
}

// TestHubPublishNonBlockingWithoutConsumers asserts Publish never blocks callers, even without a running hub.
func TestHubPublishNonBlockingWithoutConsumers(t *testing.T) {
	t.Parallel()

	hub := &Hub{
		cfg:         Config{},
		updates:     make(chan Update),
		logger:      zap.NewNop(),
		dropLimiter: rateLimiter{interval: dropLogInterval},
	}
	start := time.Now()
	hub.Publish(sampleUpdate(uuid.New(), KindJobStarted))
	require.Less(t, time.Since(start), 50*time.Millisecond)
}

// TestHubFlushOnClose ensures Close drains any buffered updates before returning.
func TestHubFlushOnClose(t *testing.T) {
	t.Parallel()

	sink := newStubSink()
	hub := NewHub(Config{
		BufferSize:     4,
		MaxBatchEvents: 100,
		MaxBatchWait:   time.Minute,
	}, sink)

	hub.Publish(sampleUpdate(uuid.New(), KindJobStarted))

	require.NoError(t, hub.Close(context.Background()))
	require.Len(t, sink.Batches(), 1)
	require.Len(t, sink.Batches()[0], 1)
}

// TestHubSubscribeReceivesJobUpdates checks per-job routing: a subscriber
// sees only its own job's updates, in publish order.
func TestHubSubscribeReceivesJobUpdates(t *testing.T) {
	t.Parallel()

	hub := NewHub(Config{BufferSize: 16})
	defer func() {
		require.NoError(t, hub.Close(context.Background()))
	}()

	jobID := uuid.New()
	otherID := uuid.New()
	sub := hub.Subscribe(jobID)
	defer sub.Cancel()

	hub.Publish(sampleUpdate(jobID, KindJobStarted))
	hub.Publish(sampleUpdate(otherID, KindJobStarted))
	hub.Publish(sampleUpdate(jobID, KindStageProgress))

	first := recvUpdate(t, sub.C)
	require.Equal(t, jobID, first.JobID)
	require.Equal(t, KindJobStarted, first.Kind)

	second := recvUpdate(t, sub.C)
	require.Equal(t, jobID, second.JobID)
	require.Equal(t, KindStageProgress, second.Kind)
}

// TestHubSubscriberDropsWhenFull verifies slow subscribers lose updates
// instead of blocking the fan-out loop.
func TestHubSubscriberDropsWhenFull(t *testing.T) {
	t.Parallel()

	hub := NewHub(Config{BufferSize: 16, SubscriberBuffer: 1})
	defer func() {
		require.NoError(t, hub.Close(context.Background()))
	}()

	jobID := uuid.New()
	sub := hub.Subscribe(jobID)
	defer sub.Cancel()

	hub.Publish(sampleUpdate(jobID, KindJobStarted))
	hub.Publish(sampleUpdate(jobID, KindStageProgress))
	hub.Publish(sampleUpdate(jobID, KindStageProgress))

	require.Eventually(t, func() bool {
		return sub.Dropped() == 2
	}, time.Second, 5*time.Millisecond)

	first := recvUpdate(t, sub.C)
	require.Equal(t, KindJobStarted, first.Kind)
}

// TestHubCancelClosesChannel ensures Cancel detaches the subscription and is
// safe to call twice.
func TestHubCancelClosesChannel(t *testing.T) {
	t.Parallel()

	hub := NewHub(Config{BufferSize: 16})
	defer func() {
		require.NoError(t, hub.Close(context.Background()))
	}()

	sub := hub.Subscribe(uuid.New())
	sub.Cancel()
	sub.Cancel()

	_, ok := <-sub.C
	require.False(t, ok)
}

// TestHubCloseClosesSubscriptions ensures shutdown closes every live
// subscription channel.
func TestHubCloseClosesSubscriptions(t *testing.T) {
	t.Parallel()

	hub := NewHub(Config{BufferSize: 16})
	sub := hub.Subscribe(uuid.New())

	require.NoError(t, hub.Close(context.Background()))

	_, ok := <-sub.C
	require.False(t, ok)

	late := hub.Subscribe(uuid.New())
	_, ok = <-late.C
	require.False(t, ok)

	hub.Publish(sampleUpdate(uuid.New(), KindJobStarted))
}

func recvUpdate(t *testing.T, c <-chan Update) Update {
	t.Helper()
	select {
	case u, ok := <-c:
		require.True(t, ok, "subscription channel closed early")
		return u
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for update")
		return Update{}
	}
}

type stubSink struct {
	mu      sync.Mutex
	batches [][]Update
}

func newStubSink() *stubSink {
	return &stubSink{batches: [][]Update{}}
}

func (s *stubSink) Consume(_ context.Context, batch []Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copyBatch := append([]Update(nil), batch...)
	s.batches = append(s.batches, copyBatch)
	return nil
}

func (s *stubSink) Close(context.Context) error {
	return nil
}

func (s *stubSink) Batches() [][]Update {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]Update, len(s.batches))
	for i, b := range s.batches {
		out[i] = append([]Update(nil), b...)
	}
	return out
}

func sampleUpdate(jobID uuid.UUID, kind Kind) Update {
	u := Update{
		JobID:     jobID,
		Kind:      kind,
		TS:        time.Now().UTC(),
		JobStatus: store.JobRunning,
	}
	if !kind.JobLevel() {
		u.StageID = uuid.New()
	}
	return u
}
