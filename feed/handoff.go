// Package feed implements the time-slice pipeline: the bounded hand-off
// queue, the fan-out exchange, the per-subscription reader and the backtest
// and live feed drivers.
package feed

import (
	"context"
	"errors"
	"sync"

	"github.com/aricooperman/golean/tools"
)

var ErrAddingCompleted = errors.New("adding completed")

// manualResetEvent is a wait handle that stays signalled until reset.
type manualResetEvent struct {
	mu  sync.Mutex
	ch  chan struct{}
	set bool
}

func newManualResetEvent(set bool) *manualResetEvent {
	e := &manualResetEvent{ch: make(chan struct{}), set: set}
	if set {
		close(e.ch)
	}
	return e
}

func (e *manualResetEvent) Set() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.set {
		e.set = true
		close(e.ch)
	}
}

func (e *manualResetEvent) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.set {
		e.set = false
		e.ch = make(chan struct{})
	}
}

func (e *manualResetEvent) Wait(ctx context.Context) error {
	e.mu.Lock()
	ch := e.ch
	e.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// HandoffQueue is the single-producer single-consumer bounded queue between
// the feed driver and the algorithm manager. Its idle handle reports the
// moments when no item is queued and no item is in transit; the producer
// lock linearises the busy/idle transitions so WaitIdle cannot observe an
// in-flight item.
type HandoffQueue[T any] struct {
	mu        sync.Mutex // producer-synchronising lock
	items     chan T
	idle      *manualResetEvent
	completed bool
}

func NewHandoffQueue[T any](capacity int) *HandoffQueue[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &HandoffQueue[T]{
		items: make(chan T, capacity),
		idle:  newManualResetEvent(true),
	}
}

// Add enqueues item, blocking while the queue is full. The idle handle is
// reset under the producer lock before the item becomes visible.
func (q *HandoffQueue[T]) Add(ctx context.Context, item T) error {
	q.mu.Lock()
	if q.completed {
		q.mu.Unlock()
		return ErrAddingCompleted
	}
	q.idle.Reset()

	// fast path while holding the lock keeps reset+enqueue atomic
	select {
	case q.items <- item:
		q.mu.Unlock()
		return nil
	default:
	}
	q.mu.Unlock()

	select {
	case q.items <- item:
		return nil
	case <-ctx.Done():
		// nothing was published; restore idle if the queue is drained
		q.mu.Lock()
		if len(q.items) == 0 {
			q.idle.Set()
		}
		q.mu.Unlock()
		return ctx.Err()
	}
}

// CompleteAdding declares the end of the sequence; later Adds fail.
func (q *HandoffQueue[T]) CompleteAdding() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.completed {
		return
	}
	q.completed = true
	close(q.items)
}

// Take removes the next item, blocking while the queue is empty until the
// producer completes adding or ctx is cancelled. ok is false when the
// sequence ended.
func (q *HandoffQueue[T]) Take(ctx context.Context) (T, bool) {
	var zero T

	select {
	case item, open := <-q.items:
		if !open {
			q.idle.Set()
			return zero, false
		}
		return item, true
	default:
	}

	// Mark idle only under the producer lock and after re-checking
	// emptiness, so a concurrent Add either sees the reset or we see its
	// item.
	q.mu.Lock()
	if len(q.items) == 0 {
		q.idle.Set()
	}
	q.mu.Unlock()

	select {
	case item, open := <-q.items:
		if !open {
			q.idle.Set()
			return zero, false
		}
		return item, true
	case <-ctx.Done():
		return zero, false
	}
}

// Consume yields items until the queue is drained and adding completed, or
// ctx is cancelled. Cancellation ends the sequence cleanly.
func (q *HandoffQueue[T]) Consume(ctx context.Context) tools.Enumerator[T] {
	return tools.NewFuncEnumerator(func() (T, bool) {
		return q.Take(ctx)
	})
}

// WaitIdle blocks until the queue reports idle.
func (q *HandoffQueue[T]) WaitIdle(ctx context.Context) error {
	return q.idle.Wait(ctx)
}

// Len is the number of queued items.
func (q *HandoffQueue[T]) Len() int { return len(q.items) }
