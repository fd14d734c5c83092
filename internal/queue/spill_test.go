package queue

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orchids/event-stream/internal/domain"
	"github.com/orchids/event-stream/pkg/logger"
)

// memStore is an in-memory Store with the same ordering law as RedisStore.
type memStore struct {
	mu   sync.Mutex
	msgs map[string][]*domain.QueuedMessage
}

func newMemStore() *memStore {
	return &memStore{msgs: make(map[string][]*domain.QueuedMessage)}
}

func (s *memStore) Push(_ context.Context, queueName string, msg *domain.QueuedMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs[queueName] = append(s.msgs[queueName], msg)
	sort.SliceStable(s.msgs[queueName], func(i, j int) bool {
		a, b := s.msgs[queueName][i], s.msgs[queueName][j]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		return a.EnqueuedAt.Before(b.EnqueuedAt)
	})
	return nil
}

func (s *memStore) Pop(ctx context.Context, queueName string, timeout time.Duration) (*domain.QueuedMessage, error) {
	deadline := time.Now().Add(timeout)
	for {
		s.mu.Lock()
		if pending := s.msgs[queueName]; len(pending) > 0 {
			msg := pending[0]
			s.msgs[queueName] = pending[1:]
			s.mu.Unlock()
			return msg, nil
		}
		s.mu.Unlock()

		if time.Now().After(deadline) || ctx.Err() != nil {
			return nil, nil
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func (s *memStore) PopBatch(ctx context.Context, queueName string, batchSize int) ([]*domain.QueuedMessage, error) {
	var out []*domain.QueuedMessage
	for len(out) < batchSize {
		msg, err := s.Pop(ctx, queueName, 0)
		if err != nil || msg == nil {
			return out, err
		}
		out = append(out, msg)
	}
	return out, nil
}

func (s *memStore) depth(queueName string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.msgs[queueName])
}

func TestSpilloverDrainsIntoQueue(t *testing.T) {
	store := newMemStore()
	q := NewPriorityQueue(10)
	spill := NewSpillover(store, q, "work", logger.New("test", "error"))

	parked := domain.NewQueuedMessage([]byte("parked"), domain.PriorityHigh, 0)
	require.NoError(t, spill.Offload(context.Background(), parked))
	require.Equal(t, 1, store.depth("work"))

	spill.Start(context.Background())
	defer spill.Stop()

	require.Eventually(t, func() bool {
		return q.Depth("work") == 1
	}, 2*time.Second, 10*time.Millisecond)

	got := q.Dequeue(context.Background(), "work", time.Second)
	require.NotNil(t, got)
	assert.Equal(t, parked.ID, got.ID)
	assert.Equal(t, 0, store.depth("work"))
}

func TestSpilloverWaitsForHeadroom(t *testing.T) {
	store := newMemStore()
	q := NewPriorityQueue(1)
	spill := NewSpillover(store, q, "work", logger.New("test", "error"))

	blocker := domain.NewQueuedMessage([]byte("blocker"), domain.PriorityNormal, 0)
	require.True(t, q.Enqueue(blocker, "work"))

	parked := domain.NewQueuedMessage([]byte("parked"), domain.PriorityNormal, 0)
	require.NoError(t, spill.Offload(context.Background(), parked))

	spill.Start(context.Background())
	defer spill.Stop()

	// Queue is full, so the parked message stays in the store.
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, store.depth("work"))

	// Freeing the slot lets the drain move it over.
	got := q.Dequeue(context.Background(), "work", time.Second)
	require.NotNil(t, got)
	assert.Equal(t, blocker.ID, got.ID)

	require.Eventually(t, func() bool {
		return q.Depth("work") == 1 && store.depth("work") == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSpilloverDiscardsExpiredMessages(t *testing.T) {
	store := newMemStore()
	q := NewPriorityQueue(10)
	spill := NewSpillover(store, q, "work", logger.New("test", "error"))

	stale := domain.NewQueuedMessage([]byte("stale"), domain.PriorityNormal, 10*time.Millisecond)
	require.NoError(t, spill.Offload(context.Background(), stale))
	time.Sleep(30 * time.Millisecond)

	spill.Start(context.Background())
	defer spill.Stop()

	require.Eventually(t, func() bool {
		return store.depth("work") == 0
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, q.Depth("work"))
}
