package monitor

import (
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	gopsnet "github.com/shirou/gopsutil/v3/net"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/orchids/event-stream/internal/domain"
)

// ConnectionCounter reports live connection count and the configured cap.
type ConnectionCounter interface {
	Count() int
	MaxSize() int
}

// QueueDepther reports pending messages and per-queue capacity.
type QueueDepther interface {
	TotalDepth() int
	Capacity() int
}

type ResourceMonitorConfig struct {
	MemoryThresholdMB float64
	CPUThresholdPct   float64
	HistorySize       int
}

// ResourceMonitor samples process and host metrics and evaluates hard
// thresholds. A bounded ring of samples supports windowed averages.
type ResourceMonitor struct {
	cfg   ResourceMonitorConfig
	conns ConnectionCounter
	queue QueueDepther
	proc  *process.Process

	mu         sync.Mutex
	history    []domain.Metrics
	historyPos int
	historyLen int

	lastNetBytes  uint64
	lastNetSample time.Time
}

func NewResourceMonitor(cfg ResourceMonitorConfig, conns ConnectionCounter, queue QueueDepther) (*ResourceMonitor, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, fmt.Errorf("failed to open own process handle: %w", err)
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 1000
	}
	return &ResourceMonitor{
		cfg:     cfg,
		conns:   conns,
		queue:   queue,
		proc:    proc,
		history: make([]domain.Metrics, cfg.HistorySize),
	}, nil
}

// Sample reads current CPU, resident-set memory, connection and queue
// gauges plus a coarse bandwidth estimate, and appends the result to the
// history ring.
func (m *ResourceMonitor) Sample() (domain.Metrics, error) {
	metrics := domain.Metrics{
		ActiveConnections: m.conns.Count(),
		QueuedMessages:    m.queue.TotalDepth(),
		Goroutines:        runtime.NumGoroutine(),
		Timestamp:         time.Now(),
	}

	cpuPercent, err := cpu.Percent(0, false)
	if err != nil {
		return metrics, fmt.Errorf("failed to sample CPU usage: %w", err)
	}
	if len(cpuPercent) > 0 {
		metrics.CPUPercent = cpuPercent[0]
	}

	// Resident-set size in MB; this is the process footprint the memory
	// threshold is defined against.
	memInfo, err := m.proc.MemoryInfo()
	if err != nil {
		return metrics, fmt.Errorf("failed to sample process memory: %w", err)
	}
	metrics.MemoryMB = float64(memInfo.RSS) / (1024 * 1024)

	vm, err := mem.VirtualMemory()
	if err != nil {
		return metrics, fmt.Errorf("failed to sample host memory: %w", err)
	}
	metrics.MemoryPercent = vm.UsedPercent

	metrics.EstimatedBandwidthMbps = m.estimateBandwidth()

	m.mu.Lock()
	m.history[m.historyPos] = metrics
	m.historyPos = (m.historyPos + 1) % len(m.history)
	if m.historyLen < len(m.history) {
		m.historyLen++
	}
	m.mu.Unlock()

	return metrics, nil
}

// estimateBandwidth derives Mbps from the delta of cumulative interface
// counters. Diagnostic only; never feeds correctness decisions.
func (m *ResourceMonitor) estimateBandwidth() float64 {
	counters, err := gopsnet.IOCounters(false)
	if err != nil || len(counters) == 0 {
		return 0
	}
	total := counters[0].BytesSent + counters[0].BytesRecv
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	defer func() {
		m.lastNetBytes = total
		m.lastNetSample = now
	}()

	if m.lastNetSample.IsZero() || total < m.lastNetBytes {
		return 0
	}
	elapsed := now.Sub(m.lastNetSample).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(total-m.lastNetBytes) * 8 / elapsed / 1e6
}

// CheckThresholds evaluates each hard limit independently. Any single
// violation flips isCritical; the warnings list can name several at once.
func (m *ResourceMonitor) CheckThresholds(metrics domain.Metrics) (bool, []string) {
	var warnings []string

	if metrics.MemoryMB > m.cfg.MemoryThresholdMB {
		warnings = append(warnings, fmt.Sprintf(
			"memory usage %.1fMB exceeds threshold %.1fMB", metrics.MemoryMB, m.cfg.MemoryThresholdMB))
	}
	if metrics.CPUPercent > m.cfg.CPUThresholdPct {
		warnings = append(warnings, fmt.Sprintf(
			"CPU usage %.1f%% exceeds threshold %.1f%%", metrics.CPUPercent, m.cfg.CPUThresholdPct))
	}
	if max := m.conns.MaxSize(); max > 0 {
		if ratio := float64(metrics.ActiveConnections) / float64(max); ratio > 0.9 {
			warnings = append(warnings, fmt.Sprintf(
				"connection count %d is %.0f%% of cap %d", metrics.ActiveConnections, ratio*100, max))
		}
	}
	if capacity := m.queue.Capacity(); capacity > 0 {
		if ratio := float64(metrics.QueuedMessages) / float64(capacity); ratio > 0.9 {
			warnings = append(warnings, fmt.Sprintf(
				"queue depth %d is %.0f%% of capacity %d", metrics.QueuedMessages, ratio*100, capacity))
		}
	}

	return len(warnings) > 0, warnings
}

// WindowedAverage averages the most recent n samples, or everything held
// when n exceeds the history length.
func (m *ResourceMonitor) WindowedAverage(n int) domain.Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()

	if n <= 0 || n > m.historyLen {
		n = m.historyLen
	}
	if n == 0 {
		return domain.Metrics{}
	}

	var avg domain.Metrics
	start := m.historyPos - n
	if start < 0 {
		start += len(m.history)
	}
	for i := 0; i < n; i++ {
		s := m.history[(start+i)%len(m.history)]
		avg.CPUPercent += s.CPUPercent
		avg.MemoryMB += s.MemoryMB
		avg.MemoryPercent += s.MemoryPercent
		avg.ActiveConnections += s.ActiveConnections
		avg.QueuedMessages += s.QueuedMessages
		avg.EstimatedBandwidthMbps += s.EstimatedBandwidthMbps
		avg.Goroutines += s.Goroutines
	}
	fn := float64(n)
	avg.CPUPercent /= fn
	avg.MemoryMB /= fn
	avg.MemoryPercent /= fn
	avg.ActiveConnections /= n
	avg.QueuedMessages /= n
	avg.EstimatedBandwidthMbps /= fn
	avg.Goroutines /= n
	avg.Timestamp = time.Now()
	return avg
}
