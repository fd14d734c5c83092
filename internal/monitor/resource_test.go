package monitor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orchids/event-stream/internal/domain"
)

type fakeConns struct {
	count   int
	maxSize int
}

func (c *fakeConns) Count() int   { return c.count }
func (c *fakeConns) MaxSize() int { return c.maxSize }

type fakeDepther struct {
	depth    int
	capacity int
}

func (d *fakeDepther) TotalDepth() int { return d.depth }
func (d *fakeDepther) Capacity() int   { return d.capacity }

func newTestMonitor(t *testing.T, conns *fakeConns, queue *fakeDepther) *ResourceMonitor {
	t.Helper()

	cfg := ResourceMonitorConfig{
		MemoryThresholdMB: 512,
		CPUThresholdPct:   80,
		HistorySize:       10,
	}
	m, err := NewResourceMonitor(cfg, conns, queue)
	require.NoError(t, err)
	return m
}

func TestCheckThresholdsAllClear(t *testing.T) {
	m := newTestMonitor(t, &fakeConns{count: 10, maxSize: 100}, &fakeDepther{depth: 5, capacity: 100})

	critical, warnings := m.CheckThresholds(domain.Metrics{
		MemoryMB:          100,
		CPUPercent:        20,
		ActiveConnections: 10,
		QueuedMessages:    5,
	})

	assert.False(t, critical)
	assert.Empty(t, warnings)
}

func TestCheckThresholdsReportsEachViolation(t *testing.T) {
	m := newTestMonitor(t, &fakeConns{count: 95, maxSize: 100}, &fakeDepther{depth: 95, capacity: 100})

	critical, warnings := m.CheckThresholds(domain.Metrics{
		MemoryMB:          600,
		CPUPercent:        90,
		ActiveConnections: 95,
		QueuedMessages:    95,
	})

	assert.True(t, critical)
	require.Len(t, warnings, 4)
	assert.Contains(t, warnings[0], "memory usage")
	assert.Contains(t, warnings[1], "CPU usage")
	assert.Contains(t, warnings[2], "connection count")
	assert.Contains(t, warnings[3], "queue depth")
}

func TestCheckThresholdsSingleViolation(t *testing.T) {
	m := newTestMonitor(t, &fakeConns{count: 10, maxSize: 100}, &fakeDepther{depth: 5, capacity: 100})

	critical, warnings := m.CheckThresholds(domain.Metrics{
		MemoryMB:   600,
		CPUPercent: 20,
	})

	assert.True(t, critical)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "memory usage")
}

func TestSamplePopulatesGauges(t *testing.T) {
	conns := &fakeConns{count: 7, maxSize: 100}
	queue := &fakeDepther{depth: 3, capacity: 100}
	m := newTestMonitor(t, conns, queue)

	metrics, err := m.Sample()
	require.NoError(t, err)

	assert.Equal(t, 7, metrics.ActiveConnections)
	assert.Equal(t, 3, metrics.QueuedMessages)
	assert.Greater(t, metrics.MemoryMB, 0.0)
	assert.Greater(t, metrics.Goroutines, 0)
	assert.False(t, metrics.Timestamp.IsZero())
}

func TestWindowedAverage(t *testing.T) {
	conns := &fakeConns{count: 4, maxSize: 100}
	m := newTestMonitor(t, conns, &fakeDepther{capacity: 100})

	for i := 0; i < 3; i++ {
		_, err := m.Sample()
		require.NoError(t, err)
	}

	avg := m.WindowedAverage(3)
	assert.Equal(t, 4, avg.ActiveConnections)
	assert.Greater(t, avg.MemoryMB, 0.0)

	// Asking for more samples than held falls back to everything held.
	assert.Equal(t, 4, m.WindowedAverage(50).ActiveConnections)
}

func TestWindowedAverageEmptyHistory(t *testing.T) {
	m := newTestMonitor(t, &fakeConns{maxSize: 100}, &fakeDepther{capacity: 100})

	avg := m.WindowedAverage(5)
	assert.Zero(t, avg.ActiveConnections)
	assert.Zero(t, avg.CPUPercent)
}
