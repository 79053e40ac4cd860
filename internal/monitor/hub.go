package monitor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/argushq/argus/internal/telemetry"
)

// Config controls buffering, batching, and subscriber fan-out for the Hub.
//   - BufferSize: size of the internal channel (default 4096).
//   - SubscriberBuffer: per-subscription channel size (default 64).
//   - MaxBatchEvents: flush once this many updates queue (default 1000).
//   - MaxBatchWait: flush after this duration even if the batch is small (default 500ms).
//   - SinkTimeout: per-sink timeout while flushing (default 10s).
//   - BaseContext: parent context passed to sink calls (defaults to context.Background()).
//   - Logger: optional structured logger used for warnings.
type Config struct {
	BufferSize       int
	SubscriberBuffer int
	MaxBatchEvents   int
	MaxBatchWait     time.Duration
	SinkTimeout      time.Duration
	BaseContext      context.Context
	Logger           *zap.Logger
}

const (
	defaultBufferSize       = 4096
	defaultSubscriberBuffer = 64
	defaultMaxBatchEvents   = 1000
	defaultMaxBatchWait     = 500 * time.Millisecond
	defaultSinkTimeout      = 10 * time.Second
	dropLogInterval         = 5 * time.Second
)

// Hub fans job updates out to registered sinks and per-job subscribers.
// Subscribers see each update as it arrives; sinks consume batches. It is
// safe for concurrent use by multiple goroutines and never blocks publishers.
type Hub struct {
	cfg         Config
	sinks       []Sink
	updates     chan Update
	stopCh      chan struct{}
	doneCh      chan struct{}
	logger      *zap.Logger
	dropLimiter rateLimiter
	dropped     atomic.Int64
	closed      atomic.Bool

	closeOnce sync.Once
	closeCtx  context.Context

	subMu sync.Mutex
	subs  map[uuid.UUID]map[*Subscription]struct{}
}

// NewHub initializes a Hub and starts the background fan-out goroutine using
// the supplied sinks. The returned Hub is immediately ready to accept updates.
func NewHub(cfg Config, sinks ...Sink) *Hub {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}
	if cfg.SubscriberBuffer <= 0 {
		cfg.SubscriberBuffer = defaultSubscriberBuffer
	}
	if cfg.MaxBatchEvents <= 0 {
		cfg.MaxBatchEvents = defaultMaxBatchEvents
	}
	if cfg.MaxBatchWait <= 0 {
		cfg.MaxBatchWait = defaultMaxBatchWait
	}
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = defaultSinkTimeout
	}
	if cfg.BaseContext == nil {
		cfg.BaseContext = context.Background()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hub{
		cfg:         cfg,
		sinks:       append([]Sink(nil), sinks...),
		updates:     make(chan Update, cfg.BufferSize),
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
		logger:      logger,
		dropLimiter: rateLimiter{interval: dropLogInterval},
		subs:        make(map[uuid.UUID]map[*Subscription]struct{}),
	}
	go h.run()
	return h
}

// Publish enqueues an Update for fan-out. It never blocks; if the buffer is
// full the update is dropped and a rate-limited warning is logged.
func (h *Hub) Publish(u Update) {
	if h == nil {
		return
	}
	if h.closed.Load() {
		return
	}
	if err := u.Validate(); err != nil {
		h.logger.Debug("discarding invalid job update", zap.Error(err))
		return
	}
	select {
	case h.updates <- u:
	default:
		h.dropped.Add(1)
		if h.dropLimiter.Allow(time.Now()) {
			count := h.dropped.Swap(0)
			h.logger.Warn("job updates dropped due to backpressure", zap.Int64("dropped", count))
		}
	}
}

// Subscribe registers for the update stream of one job. Cancel the
// subscription when done; the channel is closed on Cancel and on hub
// shutdown. Subscribing to a closed hub yields an already-closed channel.
func (h *Hub) Subscribe(jobID uuid.UUID) *Subscription {
	sub := &Subscription{hub: h, jobID: jobID, ch: make(chan Update, h.cfg.SubscriberBuffer)}
	sub.C = sub.ch

	h.subMu.Lock()
	defer h.subMu.Unlock()
	if h.closed.Load() {
		sub.closeChan()
		return sub
	}
	set := h.subs[jobID]
	if set == nil {
		set = make(map[*Subscription]struct{})
		h.subs[jobID] = set
	}
	set[sub] = struct{}{}
	return sub
}

// Close drains remaining updates, flushes sinks, closes all subscriptions,
// and blocks until the background goroutine exits. It is safe to call
// multiple times; subsequent calls are ignored once shutdown begins.
func (h *Hub) Close(ctx context.Context) error {
	if h == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	h.closeOnce.Do(func() {
		h.closed.Store(true)
		h.closeCtx = ctx
		close(h.stopCh)
	})
	select {
	case <-h.doneCh:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("monitor hub close wait: %w", ctx.Err())
	}
}

func (h *Hub) run() {
	defer close(h.doneCh)
	batch := make([]Update, 0, h.cfg.MaxBatchEvents)
	timer := time.NewTimer(h.cfg.MaxBatchWait)
	timer.Stop()
	timerActive := false
	for {
		select {
		case u := <-h.updates:
			h.deliver(u)
			batch = h.enqueueUpdate(batch, u, timer, &timerActive)
		case <-timer.C:
			timerActive = false
			if len(batch) > 0 {
				h.flush(batch)
				batch = batch[:0]
			}
		case <-h.stopCh:
			h.handleStop(batch, timer, &timerActive)
			return
		}
	}
}

func (h *Hub) enqueueUpdate(batch []Update, u Update, timer *time.Timer, timerActive *bool) []Update {
	batch = append(batch, u)
	if len(batch) >= h.cfg.MaxBatchEvents {
		h.flush(batch)
		batch = batch[:0]
		h.stopTimer(timer, timerActive)
	} else if h.cfg.MaxBatchWait > 0 {
		h.resetTimer(timer, timerActive)
	}
	return batch
}

func (h *Hub) handleStop(batch []Update, timer *time.Timer, timerActive *bool) {
	h.stopTimer(timer, timerActive)
	for {
		select {
		case u := <-h.updates:
			h.deliver(u)
			batch = append(batch, u)
			if len(batch) >= h.cfg.MaxBatchEvents {
				h.flush(batch)
				batch = batch[:0]
			}
		default:
			if len(batch) > 0 {
				h.flush(batch)
			}
			h.closeSinks()
			h.closeSubs()
			return
		}
	}
}

// deliver hands the update to every subscriber of its job without blocking.
// Sends and channel closes are serialized by subMu.
func (h *Hub) deliver(u Update) {
	h.subMu.Lock()
	defer h.subMu.Unlock()
	for sub := range h.subs[u.JobID] {
		select {
		case sub.ch <- u:
		default:
			sub.dropped.Add(1)
			telemetry.ObserveSubscriberDrop()
		}
	}
}

func (h *Hub) removeSub(s *Subscription) {
	h.subMu.Lock()
	defer h.subMu.Unlock()
	if set, ok := h.subs[s.jobID]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(h.subs, s.jobID)
		}
	}
	s.closeChan()
}

func (h *Hub) closeSubs() {
	h.subMu.Lock()
	defer h.subMu.Unlock()
	for _, set := range h.subs {
		for sub := range set {
			sub.closeChan()
		}
	}
	h.subs = make(map[uuid.UUID]map[*Subscription]struct{})
}

func (h *Hub) resetTimer(timer *time.Timer, timerActive *bool) {
	if h.cfg.MaxBatchWait <= 0 {
		return
	}
	if *timerActive {
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
	}
	timer.Reset(h.cfg.MaxBatchWait)
	*timerActive = true
}

func (h *Hub) stopTimer(timer *time.Timer, timerActive *bool) {
	if !*timerActive {
		return
	}
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
	*timerActive = false
}

func (h *Hub) flush(batch []Update) {
	if len(batch) == 0 {
		return
	}
	copyBatch := append([]Update(nil), batch...)
	baseCtx := h.cfg.BaseContext
	for _, sink := range h.sinks {
		if sink == nil {
			continue
		}
		ctx := baseCtx
		cancel := func() {}
		if h.cfg.SinkTimeout > 0 {
			ctx, cancel = context.WithTimeout(baseCtx, h.cfg.SinkTimeout)
		}
		if err := sink.Consume(ctx, copyBatch); err != nil {
			h.logger.Warn("monitor sink consume failed", zap.Error(err))
		}
		cancel()
	}
}

func (h *Hub) closeSinks() {
	ctx := h.closeCtx
	if ctx == nil {
		ctx = context.Background()
	}
	for _, sink := range h.sinks {
		if sink == nil {
			continue
		}
		if err := sink.Close(ctx); err != nil {
			h.logger.Warn("monitor sink close failed", zap.Error(err))
		}
	}
}

// Subscription receives the update stream for one job. Updates are dropped
// per-subscription when C is full so slow consumers never block recording.
type Subscription struct {
	// C yields updates until the subscription is canceled or the hub
	// shuts down.
	C <-chan Update

	hub     *Hub
	jobID   uuid.UUID
	ch      chan Update
	dropped atomic.Int64
	once    sync.Once
}

// Dropped reports how many updates were discarded because C was full.
func (s *Subscription) Dropped() int64 {
	return s.dropped.Load()
}

// Cancel detaches the subscription and closes C. It is safe to call more
// than once.
func (s *Subscription) Cancel() {
	if s == nil {
		return
	}
	s.hub.removeSub(s)
}

// closeChan must only be called with the hub's subMu held.
func (s *Subscription) closeChan() {
	s.once.Do(func() { close(s.ch) })
}

type rateLimiter struct {
	interval time.Duration
	last     atomic.Int64
}

func (r *rateLimiter) Allow(now time.Time) bool {
	if r == nil || r.interval <= 0 {
		return true
	}
	nano := now.UnixNano()
	last := r.last.Load()
	if nano-last < r.interval.Nanoseconds() {
		return false
	}
	return r.last.CompareAndSwap(last, nano)
}
