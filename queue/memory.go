package queue

import (
	"context"
	"errors"
	"sync"
)

// ErrClosed is returned once a closed MemoryQueue is drained or enqueued to.
var ErrClosed = errors.New("queue: closed")

// MemoryQueue is an in-process FIFO for single-binary deployments and
// tests. The task channel is never closed; Close signals through done so a
// producer parked on a full queue unblocks with ErrClosed instead of
// panicking on a closed-channel send.
type MemoryQueue struct {
	tasks chan ScanTask
	done  chan struct{}
	once  sync.Once
}

func NewMemoryQueue(capacity int) *MemoryQueue {
	if capacity <= 0 {
		capacity = 128
	}
	return &MemoryQueue{
		tasks: make(chan ScanTask, capacity),
		done:  make(chan struct{}),
	}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, task ScanTask) error {
	select {
	case <-q.done:
		return ErrClosed
	default:
	}
	select {
	case q.tasks <- task:
		return nil
	case <-q.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dequeue returns queued tasks until the queue is both closed and drained.
func (q *MemoryQueue) Dequeue(ctx context.Context) (ScanTask, error) {
	// Drain ahead of the close signal.
	select {
	case task := <-q.tasks:
		return task, nil
	default:
	}
	select {
	case task := <-q.tasks:
		return task, nil
	case <-q.done:
		select {
		case task := <-q.tasks:
			return task, nil
		default:
			return ScanTask{}, ErrClosed
		}
	case <-ctx.Done():
		return ScanTask{}, ctx.Err()
	}
}

// Close stops accepting tasks; queued tasks can still be drained.
func (q *MemoryQueue) Close() error {
	q.once.Do(func() { close(q.done) })
	return nil
}
