package queue

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryQueueFIFO(t *testing.T) {
	q := NewMemoryQueue(4)
	defer q.Close()

	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		if err := q.Enqueue(ctx, ScanTask{JobID: id}); err != nil {
			t.Fatalf("Enqueue(%s): %v", id, err)
		}
	}
	for _, want := range []string{"a", "b", "c"} {
		task, err := q.Dequeue(ctx)
		if err != nil {
			t.Fatalf("Dequeue: %v", err)
		}
		if task.JobID != want {
			t.Errorf("dequeued %q, want %q", task.JobID, want)
		}
	}
}

func TestMemoryQueueDequeueHonorsContext(t *testing.T) {
	q := NewMemoryQueue(1)
	defer q.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := q.Dequeue(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Dequeue error = %v, want deadline exceeded", err)
	}
}

func TestMemoryQueueCloseUnblocksFullEnqueue(t *testing.T) {
	q := NewMemoryQueue(1)
	ctx := context.Background()

	if err := q.Enqueue(ctx, ScanTask{JobID: "fill"}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	// Second producer parks on the full channel.
	result := make(chan error, 1)
	go func() {
		defer func() {
			if v := recover(); v != nil {
				result <- errors.New("Enqueue panicked")
			}
		}()
		result <- q.Enqueue(ctx, ScanTask{JobID: "blocked"})
	}()

	time.Sleep(10 * time.Millisecond)
	if err := q.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	select {
	case err := <-result:
		if !errors.Is(err, ErrClosed) {
			t.Fatalf("blocked Enqueue returned %v, want ErrClosed", err)
		}
	case <-time.After(time.Second):
		t.Fatal("blocked Enqueue never returned after Close")
	}

	// The task accepted before Close still drains.
	if task, err := q.Dequeue(ctx); err != nil || task.JobID != "fill" {
		t.Fatalf("drain = %+v, %v", task, err)
	}
}

func TestMemoryQueueClose(t *testing.T) {
	q := NewMemoryQueue(2)
	ctx := context.Background()

	if err := q.Enqueue(ctx, ScanTask{JobID: "last"}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := q.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := q.Enqueue(ctx, ScanTask{JobID: "late"}); !errors.Is(err, ErrClosed) {
		t.Errorf("Enqueue after close = %v, want ErrClosed", err)
	}

	// Queued tasks drain, then ErrClosed.
	if task, err := q.Dequeue(ctx); err != nil || task.JobID != "last" {
		t.Fatalf("drain = %+v, %v", task, err)
	}
	if _, err := q.Dequeue(ctx); !errors.Is(err, ErrClosed) {
		t.Errorf("Dequeue after drain = %v, want ErrClosed", err)
	}
}
