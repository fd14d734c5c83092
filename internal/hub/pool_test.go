package hub

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orchids/event-stream/internal/domain"
)

func TestPoolAddRemoveCount(t *testing.T) {
	pool := NewPool(10)

	c1 := domain.NewConnection("task-1", "user-a")
	c2 := domain.NewConnection("task-1", "user-b")
	c3 := domain.NewConnection("task-2", "user-a")

	require.True(t, pool.Add(c1))
	require.True(t, pool.Add(c2))
	require.True(t, pool.Add(c3))

	assert.Equal(t, 3, pool.Count())
	assert.Equal(t, 2, pool.CountBySubject("task-1"))
	assert.Equal(t, 2, pool.CountByOwner("user-a"))

	removed := pool.Remove(c2.ID)
	require.NotNil(t, removed)
	assert.False(t, removed.IsAlive)
	assert.Equal(t, 2, pool.Count())
	assert.Equal(t, 1, pool.CountBySubject("task-1"))

	// Idempotent removal.
	assert.Nil(t, pool.Remove(c2.ID))
	assert.Equal(t, 2, pool.Count())
}

func TestPoolMaxSizeRejectsWithoutMutation(t *testing.T) {
	pool := NewPool(2)

	require.True(t, pool.Add(domain.NewConnection("s", "o")))
	require.True(t, pool.Add(domain.NewConnection("s", "o")))

	extra := domain.NewConnection("s", "o")
	assert.False(t, pool.Add(extra))
	assert.Equal(t, 2, pool.Count())
	assert.Equal(t, 2, pool.CountBySubject("s"))

	_, found := pool.ByID(extra.ID)
	assert.False(t, found)
}

func TestPoolSecondaryIndexConsistency(t *testing.T) {
	pool := NewPool(100)

	conns := make([]*domain.Connection, 0, 20)
	for i := 0; i < 20; i++ {
		conn := domain.NewConnection("task-1", "user-1")
		require.True(t, pool.Add(conn))
		conns = append(conns, conn)
	}
	for i := 0; i < 10; i++ {
		pool.Remove(conns[i].ID)
	}

	for _, conn := range pool.BySubject("task-1") {
		_, ok := pool.ByID(conn.ID)
		assert.True(t, ok, "subject index entry missing from primary map")
	}
	for _, conn := range pool.ByOwner("user-1") {
		_, ok := pool.ByID(conn.ID)
		assert.True(t, ok, "owner index entry missing from primary map")
	}
	assert.Equal(t, 10, pool.Count())
}

func TestPoolOptionalIdentifiers(t *testing.T) {
	pool := NewPool(10)

	anon := domain.NewConnection("", "")
	require.True(t, pool.Add(anon))

	assert.Equal(t, 0, pool.CountBySubject(""))
	assert.Equal(t, 0, pool.CountByOwner(""))

	pool.Remove(anon.ID)
	assert.Equal(t, 0, pool.Count())
}

func TestPoolIdleIDsOrdering(t *testing.T) {
	pool := NewPool(10)
	now := time.Now()

	fresh := domain.NewConnection("s", "o")
	stale := domain.NewConnection("s", "o")
	stalest := domain.NewConnection("s", "o")
	require.True(t, pool.Add(fresh))
	require.True(t, pool.Add(stale))
	require.True(t, pool.Add(stalest))

	pool.Touch(fresh.ID, now)
	pool.Touch(stale.ID, now.Add(-2*time.Minute))
	pool.Touch(stalest.ID, now.Add(-5*time.Minute))

	idle := pool.IdleIDs(now, time.Minute)
	require.Len(t, idle, 2)
	assert.Equal(t, stalest.ID, idle[0])
	assert.Equal(t, stale.ID, idle[1])
}

func TestPoolDeadIDs(t *testing.T) {
	pool := NewPool(10)

	alive := domain.NewConnection("s", "o")
	dead := domain.NewConnection("s", "o")
	require.True(t, pool.Add(alive))
	require.True(t, pool.Add(dead))
	dead.IsAlive = false

	ids := pool.DeadIDs()
	require.Len(t, ids, 1)
	assert.Equal(t, dead.ID, ids[0])
}
