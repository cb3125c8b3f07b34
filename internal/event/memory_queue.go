package event

import (
	"context"
	"sync"

	apperrors "slacknotes/internal/errors"
)

// MemoryQueue moves envelopes through a buffered channel. It is the default
// driver for single-process deployments and for tests.
type MemoryQueue struct {
	ch     chan Envelope
	mu     sync.Mutex
	closed bool
}

// NewMemoryQueue creates a memory queue with the given buffer size.
func NewMemoryQueue(size int) *MemoryQueue {
	if size <= 0 {
		size = 64
	}
	return &MemoryQueue{ch: make(chan Envelope, size)}
}

// Publish enqueues one envelope, blocking while the buffer is full.
func (q *MemoryQueue) Publish(ctx context.Context, env Envelope) error {
	q.mu.Lock()
	closed := q.closed
	q.mu.Unlock()
	if closed {
		return apperrors.New(apperrors.CodeQueueFailure, "memory queue is closed")
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case q.ch <- env:
		return nil
	}
}

// Consume runs workerCount goroutines over the channel until the context
// ends, then waits for in-flight handlers to finish.
func (q *MemoryQueue) Consume(ctx context.Context, workerCount int, handler Handler) error {
	if workerCount <= 0 {
		workerCount = 1
	}
	var wg sync.WaitGroup
	for i := 0; i < workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case env, ok := <-q.ch:
					if !ok {
						return
					}
					_ = handler(ctx, env)
				}
			}
		}()
	}
	<-ctx.Done()
	wg.Wait()
	return ctx.Err()
}

// Close shuts the channel. Publish after Close fails.
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	if !q.closed {
		close(q.ch)
		q.closed = true
	}
	q.mu.Unlock()
	return nil
}
