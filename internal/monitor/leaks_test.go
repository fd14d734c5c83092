package monitor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orchids/event-stream/internal/domain"
	"github.com/orchids/event-stream/pkg/logger"
)

func newTestDetector() *LeakDetector {
	return NewLeakDetector(logger.New("test", "error"))
}

func TestDetectLeaksFlagsStaleResource(t *testing.T) {
	d := newTestDetector()

	d.Track("conn-1", "connection", map[string]string{"subject_id": "deploy-7"})
	d.Track("conn-2", "connection", nil)

	time.Sleep(60 * time.Millisecond)
	d.Touch("conn-2")

	leaks := d.DetectLeaks(50*time.Millisecond, 1)
	require.Len(t, leaks, 1)
	assert.Equal(t, "conn-1", leaks[0].ResourceID)
	assert.Equal(t, "connection", leaks[0].ResourceType)
	assert.Equal(t, domain.LeakLevelWarning, leaks[0].Level)
	assert.Equal(t, 1, leaks[0].OccurrenceCount)
}

func TestDetectLeaksEscalatesWithAge(t *testing.T) {
	d := newTestDetector()
	d.Track("conn-1", "connection", nil)

	timeout := 100 * time.Millisecond

	time.Sleep(120 * time.Millisecond)
	leaks := d.DetectLeaks(timeout, 1)
	require.Len(t, leaks, 1)
	assert.Equal(t, domain.LeakLevelWarning, leaks[0].Level)

	// Past 1.5x the timeout.
	time.Sleep(50 * time.Millisecond)
	leaks = d.DetectLeaks(timeout, 1)
	require.Len(t, leaks, 1)
	assert.Equal(t, domain.LeakLevelError, leaks[0].Level)
	assert.Equal(t, 2, leaks[0].OccurrenceCount)

	// Past 2x the timeout.
	time.Sleep(60 * time.Millisecond)
	leaks = d.DetectLeaks(timeout, 1)
	require.Len(t, leaks, 1)
	assert.Equal(t, domain.LeakLevelCritical, leaks[0].Level)
	assert.Equal(t, 3, leaks[0].OccurrenceCount)
}

func TestReleasedResourceIsNotALeak(t *testing.T) {
	d := newTestDetector()

	d.Track("conn-1", "connection", nil)
	require.Equal(t, 1, d.TrackedCount())
	d.Release("conn-1")
	require.Equal(t, 0, d.TrackedCount())

	time.Sleep(40 * time.Millisecond)
	assert.Empty(t, d.DetectLeaks(30*time.Millisecond, 1))
}

func TestTouchedResourceIsNotALeak(t *testing.T) {
	d := newTestDetector()
	d.Track("goroutine-1", "goroutine", nil)

	// Keep the resource active past its nominal lifetime.
	for i := 0; i < 4; i++ {
		time.Sleep(15 * time.Millisecond)
		d.Touch("goroutine-1")
	}

	assert.Empty(t, d.DetectLeaks(30*time.Millisecond, 1))
}

func TestDetectLeaksFiltersByOccurrenceCount(t *testing.T) {
	d := newTestDetector()
	d.Track("conn-1", "connection", nil)

	time.Sleep(40 * time.Millisecond)

	assert.Empty(t, d.DetectLeaks(30*time.Millisecond, 2))
	// Second detection reaches the floor.
	leaks := d.DetectLeaks(30*time.Millisecond, 2)
	require.Len(t, leaks, 1)
	assert.Equal(t, 2, leaks[0].OccurrenceCount)
}

func TestLeakReportAggregates(t *testing.T) {
	d := newTestDetector()

	d.Track("conn-1", "connection", nil)
	d.Track("conn-2", "connection", nil)
	d.Track("timer-1", "timer", nil)

	time.Sleep(40 * time.Millisecond)
	require.Len(t, d.DetectLeaks(30*time.Millisecond, 1), 3)

	report := d.Report()
	assert.Equal(t, 3, report.TotalLeaks)
	assert.Equal(t, 2, report.CountByType["connection"])
	assert.Equal(t, 1, report.CountByType["timer"])
	assert.Equal(t, 3, report.CountByLevel[domain.LeakLevelWarning])
	assert.Len(t, report.RecentLeaks, 3)
	assert.False(t, report.GeneratedAt.IsZero())
}

func TestStartWatchForwardsLeaks(t *testing.T) {
	d := newTestDetector()
	d.Track("conn-1", "connection", nil)

	var mu sync.Mutex
	var seen []string
	d.StartWatch(context.Background(), 20*time.Millisecond, 30*time.Millisecond, func(leak domain.ResourceLeak) {
		mu.Lock()
		seen = append(seen, leak.ResourceID)
		mu.Unlock()
	})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) > 0
	}, 2*time.Second, 10*time.Millisecond)

	d.StopWatch()

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, seen, "conn-1")
}
