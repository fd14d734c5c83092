package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orchids/event-stream/internal/domain"
)

func TestDequeueOrdersByPriority(t *testing.T) {
	q := NewPriorityQueue(100)

	low := domain.NewQueuedMessage([]byte("low"), domain.PriorityLow, 0)
	critical := domain.NewQueuedMessage([]byte("critical"), domain.PriorityCritical, 0)
	normal := domain.NewQueuedMessage([]byte("normal"), domain.PriorityNormal, 0)

	require.True(t, q.Enqueue(low, "work"))
	require.True(t, q.Enqueue(critical, "work"))
	require.True(t, q.Enqueue(normal, "work"))

	ctx := context.Background()
	assert.Equal(t, critical.ID, q.Dequeue(ctx, "work", time.Second).ID)
	assert.Equal(t, normal.ID, q.Dequeue(ctx, "work", time.Second).ID)
	assert.Equal(t, low.ID, q.Dequeue(ctx, "work", time.Second).ID)
}

func TestEqualPriorityPreservesArrivalOrder(t *testing.T) {
	q := NewPriorityQueue(100)

	first := domain.NewQueuedMessage([]byte("1"), domain.PriorityNormal, 0)
	second := domain.NewQueuedMessage([]byte("2"), domain.PriorityNormal, 0)
	third := domain.NewQueuedMessage([]byte("3"), domain.PriorityNormal, 0)

	require.True(t, q.Enqueue(first, "work"))
	require.True(t, q.Enqueue(second, "work"))
	require.True(t, q.Enqueue(third, "work"))

	ctx := context.Background()
	assert.Equal(t, first.ID, q.Dequeue(ctx, "work", time.Second).ID)
	assert.Equal(t, second.ID, q.Dequeue(ctx, "work", time.Second).ID)
	assert.Equal(t, third.ID, q.Dequeue(ctx, "work", time.Second).ID)
}

func TestEnqueueRejectsAtCapacity(t *testing.T) {
	q := NewPriorityQueue(2)

	require.True(t, q.Enqueue(domain.NewQueuedMessage(nil, domain.PriorityNormal, 0), "work"))
	require.True(t, q.Enqueue(domain.NewQueuedMessage(nil, domain.PriorityNormal, 0), "work"))
	assert.False(t, q.Enqueue(domain.NewQueuedMessage(nil, domain.PriorityCritical, 0), "work"))
	assert.Equal(t, 2, q.Depth("work"))

	// Other named queues are unaffected.
	assert.True(t, q.Enqueue(domain.NewQueuedMessage(nil, domain.PriorityNormal, 0), "other"))
}

func TestDequeueTimesOutOnEmptyQueue(t *testing.T) {
	q := NewPriorityQueue(10)

	start := time.Now()
	msg := q.Dequeue(context.Background(), "empty", 50*time.Millisecond)
	elapsed := time.Since(start)

	assert.Nil(t, msg)
	assert.GreaterOrEqual(t, elapsed, 40*time.Millisecond)
	assert.Less(t, elapsed, 500*time.Millisecond)
}

func TestDequeueWakesOnEnqueue(t *testing.T) {
	q := NewPriorityQueue(10)

	done := make(chan *domain.QueuedMessage, 1)
	go func() {
		done <- q.Dequeue(context.Background(), "work", time.Second)
	}()

	time.Sleep(20 * time.Millisecond)
	msg := domain.NewQueuedMessage([]byte("x"), domain.PriorityHigh, 0)
	require.True(t, q.Enqueue(msg, "work"))

	select {
	case got := <-done:
		require.NotNil(t, got)
		assert.Equal(t, msg.ID, got.ID)
	case <-time.After(time.Second):
		t.Fatal("dequeue never woke up")
	}
}

func TestConcurrentWaitersAllReceive(t *testing.T) {
	q := NewPriorityQueue(10)

	const waiters = 3
	got := make(chan *domain.QueuedMessage, waiters)
	for i := 0; i < waiters; i++ {
		go func() {
			got <- q.Dequeue(context.Background(), "work", 2*time.Second)
		}()
	}

	time.Sleep(20 * time.Millisecond)
	for i := 0; i < waiters; i++ {
		require.True(t, q.Enqueue(domain.NewQueuedMessage(nil, domain.PriorityNormal, 0), "work"))
	}

	seen := make(map[string]bool)
	for i := 0; i < waiters; i++ {
		select {
		case msg := <-got:
			require.NotNil(t, msg, "a waiter timed out with live messages in the heap")
			seen[msg.ID] = true
		case <-time.After(3 * time.Second):
			t.Fatal("a waiter never returned")
		}
	}
	assert.Len(t, seen, waiters)
	assert.Equal(t, 0, q.Depth("work"))
}

func TestDequeueRespectsCancellation(t *testing.T) {
	q := NewPriorityQueue(10)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan *domain.QueuedMessage, 1)
	go func() {
		done <- q.Dequeue(ctx, "work", time.Minute)
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case got := <-done:
		assert.Nil(t, got)
	case <-time.After(time.Second):
		t.Fatal("dequeue ignored cancellation")
	}
}

func TestExpiredMessagesAreDiscarded(t *testing.T) {
	q := NewPriorityQueue(10)

	expired := domain.NewQueuedMessage([]byte("stale"), domain.PriorityCritical, 10*time.Millisecond)
	live := domain.NewQueuedMessage([]byte("fresh"), domain.PriorityLow, 0)
	require.True(t, q.Enqueue(expired, "work"))
	require.True(t, q.Enqueue(live, "work"))

	time.Sleep(30 * time.Millisecond)

	got := q.Dequeue(context.Background(), "work", 50*time.Millisecond)
	require.NotNil(t, got)
	assert.Equal(t, live.ID, got.ID)

	stats := q.Stats()
	require.Len(t, stats, 1)
	assert.Equal(t, int64(1), stats[0].Expired)
}

func TestDequeueBatchDrainsInOrder(t *testing.T) {
	q := NewPriorityQueue(10)

	low := domain.NewQueuedMessage(nil, domain.PriorityLow, 0)
	high := domain.NewQueuedMessage(nil, domain.PriorityHigh, 0)
	normal := domain.NewQueuedMessage(nil, domain.PriorityNormal, 0)
	require.True(t, q.Enqueue(low, "work"))
	require.True(t, q.Enqueue(high, "work"))
	require.True(t, q.Enqueue(normal, "work"))

	batch := q.DequeueBatch("work", 2)
	require.Len(t, batch, 2)
	assert.Equal(t, high.ID, batch[0].ID)
	assert.Equal(t, normal.ID, batch[1].ID)
	assert.Equal(t, 1, q.Depth("work"))

	rest := q.DequeueBatch("work", 10)
	require.Len(t, rest, 1)
	assert.Equal(t, low.ID, rest[0].ID)
	assert.Empty(t, q.DequeueBatch("work", 10))
}

func TestTotalDepthSpansQueues(t *testing.T) {
	q := NewPriorityQueue(10)

	require.True(t, q.Enqueue(domain.NewQueuedMessage(nil, domain.PriorityNormal, 0), "a"))
	require.True(t, q.Enqueue(domain.NewQueuedMessage(nil, domain.PriorityNormal, 0), "b"))
	require.True(t, q.Enqueue(domain.NewQueuedMessage(nil, domain.PriorityNormal, 0), "b"))

	assert.Equal(t, 3, q.TotalDepth())
}
