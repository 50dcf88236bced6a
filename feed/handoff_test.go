package feed

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandoffQueueBoundedProducer(t *testing.T) {
	ctx := context.Background()
	queue := NewHandoffQueue[int](2)

	var produced int32
	go func() {
		for i := 0; i < 5; i++ {
			if err := queue.Add(ctx, i); err != nil {
				return
			}
			atomic.AddInt32(&produced, 1)
		}
		queue.CompleteAdding()
	}()

	// with no consumer the producer stalls at capacity
	time.Sleep(50 * time.Millisecond)
	assert.LessOrEqual(t, atomic.LoadInt32(&produced), int32(3))
	assert.LessOrEqual(t, queue.Len(), 2)

	var taken []int
	enumerator := queue.Consume(ctx)
	for enumerator.MoveNext() {
		assert.LessOrEqual(t, queue.Len(), 2)
		taken = append(taken, enumerator.Current())
	}
	require.Equal(t, []int{0, 1, 2, 3, 4}, taken)

	waitCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	require.NoError(t, queue.WaitIdle(waitCtx))
}

func TestHandoffQueueIdleHandle(t *testing.T) {
	ctx := context.Background()
	queue := NewHandoffQueue[string](1)

	// a fresh queue is idle
	idleCtx, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	require.NoError(t, queue.WaitIdle(idleCtx))
	cancel()

	require.NoError(t, queue.Add(ctx, "a"))

	// queued item keeps the handle busy
	busyCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	assert.Error(t, queue.WaitIdle(busyCtx))
	cancel()

	item, ok := queue.Take(ctx)
	require.True(t, ok)
	assert.Equal(t, "a", item)

	// the next empty take observes idle again
	done := make(chan struct{})
	go func() {
		takeCtx, cancel := context.WithTimeout(ctx, 200*time.Millisecond)
		defer cancel()
		queue.Take(takeCtx)
		close(done)
	}()

	idleCtx, cancel = context.WithTimeout(ctx, time.Second)
	defer cancel()
	assert.NoError(t, queue.WaitIdle(idleCtx))
	<-done
}

func TestHandoffQueueAddAfterComplete(t *testing.T) {
	queue := NewHandoffQueue[int](1)
	queue.CompleteAdding()
	assert.ErrorIs(t, queue.Add(context.Background(), 1), ErrAddingCompleted)

	_, ok := queue.Take(context.Background())
	assert.False(t, ok)
}
