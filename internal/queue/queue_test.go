package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestQueueEnqueueDequeue(t *testing.T) {
	t.Parallel()

	q := New(1)
	result := make(chan Task, 1)
	errCh := make(chan error, 1)

	go func() {
		task, err := q.Dequeue(context.Background())
		if err != nil {
			errCh <- err
			return
		}
		result <- task
	}()

	time.Sleep(10 * time.Millisecond) // allow goroutine to start
	task := Task{ResultID: uuid.New()}
	if err := q.Enqueue(context.Background(), task); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	select {
	case err := <-errCh:
		t.Fatalf("Dequeue() error = %v", err)
	case got := <-result:
		if got.ResultID != task.ResultID {
			t.Fatalf("expected %s, got %+v", task.ResultID, got)
		}
	case <-time.After(time.Second):
		t.Fatal("dequeue did not return task")
	}
}

func TestQueueTryEnqueueDropsWhenFull(t *testing.T) {
	t.Parallel()

	q := New(1)
	if !q.TryEnqueue(Task{ResultID: uuid.New()}) {
		t.Fatal("expected first TryEnqueue to be accepted")
	}
	if q.TryEnqueue(Task{ResultID: uuid.New()}) {
		t.Fatal("expected TryEnqueue on a full queue to be rejected")
	}
	if _, err := q.Dequeue(context.Background()); err != nil {
		t.Fatalf("Dequeue() error = %v", err)
	}
	if !q.TryEnqueue(Task{ResultID: uuid.New()}) {
		t.Fatal("expected TryEnqueue after drain to be accepted")
	}
}

func TestQueueCancelationErrors(t *testing.T) {
	t.Parallel()

	qDequeue := New(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := qDequeue.Dequeue(ctx); err == nil ||
		err.Error() != "dequeue canceled: context canceled" {
		t.Fatalf("expected dequeue cancel error, got %v", err)
	}

	qEnqueue := New(1)
	if err := qEnqueue.Enqueue(context.Background(), Task{ResultID: uuid.New()}); err != nil {
		t.Fatalf("failed to prime enqueue queue: %v", err)
	}
	ctx, cancel = context.WithCancel(context.Background())
	cancel()
	if err := qEnqueue.Enqueue(ctx, Task{}); err == nil ||
		err.Error() != "enqueue canceled: context canceled" {
		t.Fatalf("expected enqueue cancel error, got %v", err)
	}
}

func TestQueueClose(t *testing.T) {
	t.Parallel()

	q := New(1)
	q.Close()
	if _, err := q.Dequeue(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	// Closing twice should be safe.
	q.Close()
}
