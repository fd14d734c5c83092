package monitor

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/orchids/event-stream/internal/domain"
	"github.com/orchids/event-stream/pkg/logger"
)

const leakRetention = time.Hour

type trackedResource struct {
	resourceType string
	metadata     map[string]string
	createdAt    time.Time
	lastSeen     time.Time
	accessCount  int64
}

// LeakFunc receives each newly detected or escalated leak.
type LeakFunc func(leak domain.ResourceLeak)

// LeakDetector tracks named resources of any type and classifies the ones
// that were neither released nor touched within their expected lifetime.
// Detection never reclaims the resource; forced reclamation of an unknown
// resource type is unsafe.
type LeakDetector struct {
	log *logger.Logger

	mu      sync.Mutex
	tracked map[string]*trackedResource
	leaks   map[string]*domain.ResourceLeak

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewLeakDetector(log *logger.Logger) *LeakDetector {
	return &LeakDetector{
		log:     log,
		tracked: make(map[string]*trackedResource),
		leaks:   make(map[string]*domain.ResourceLeak),
	}
}

func (d *LeakDetector) Track(resourceID, resourceType string, metadata map[string]string) {
	now := time.Now()

	d.mu.Lock()
	defer d.mu.Unlock()
	d.tracked[resourceID] = &trackedResource{
		resourceType: resourceType,
		metadata:     metadata,
		createdAt:    now,
		lastSeen:     now,
	}
}

func (d *LeakDetector) Touch(resourceID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if r, ok := d.tracked[resourceID]; ok {
		r.lastSeen = time.Now()
		r.accessCount++
	}
}

func (d *LeakDetector) Release(resourceID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.tracked, resourceID)
}

func (d *LeakDetector) TrackedCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.tracked)
}

// DetectLeaks classifies every resource older than timeout and untouched
// for longer than timeout. Repeat detections bump the occurrence count; the
// severity escalates with age and never drops for the same leak. Leaks not
// re-detected within the retention window are pruned. minCount filters the
// result to leaks observed at least that many times.
func (d *LeakDetector) DetectLeaks(timeout time.Duration, minCount int) []domain.ResourceLeak {
	now := time.Now()

	d.mu.Lock()
	defer d.mu.Unlock()

	for id, leak := range d.leaks {
		if now.Sub(leak.LastDetected) > leakRetention {
			delete(d.leaks, id)
		}
	}

	var out []domain.ResourceLeak
	for id, r := range d.tracked {
		age := now.Sub(r.createdAt)
		if age <= timeout || now.Sub(r.lastSeen) <= timeout {
			continue
		}

		level := leakLevel(age, timeout)
		leak, ok := d.leaks[id]
		if !ok {
			leak = &domain.ResourceLeak{
				ResourceType:  r.resourceType,
				ResourceID:    id,
				Level:         level,
				FirstDetected: now,
			}
			d.leaks[id] = leak
		} else if levelRank(level) > levelRank(leak.Level) {
			leak.Level = level
		}
		leak.LastDetected = now
		leak.OccurrenceCount++

		if leak.OccurrenceCount >= minCount {
			out = append(out, *leak)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ResourceID < out[j].ResourceID })
	return out
}

func leakLevel(age, timeout time.Duration) domain.LeakLevel {
	switch {
	case age > 2*timeout:
		return domain.LeakLevelCritical
	case age > timeout+timeout/2:
		return domain.LeakLevelError
	default:
		return domain.LeakLevelWarning
	}
}

func levelRank(level domain.LeakLevel) int {
	switch level {
	case domain.LeakLevelInfo:
		return 0
	case domain.LeakLevelWarning:
		return 1
	case domain.LeakLevelError:
		return 2
	case domain.LeakLevelCritical:
		return 3
	default:
		return 0
	}
}

// Report aggregates known leaks by type and level and includes the ten
// most recently detected.
func (d *LeakDetector) Report() domain.LeakReport {
	d.mu.Lock()
	defer d.mu.Unlock()

	report := domain.LeakReport{
		TotalLeaks:   len(d.leaks),
		CountByType:  make(map[string]int),
		CountByLevel: make(map[domain.LeakLevel]int),
		GeneratedAt:  time.Now(),
	}

	all := make([]domain.ResourceLeak, 0, len(d.leaks))
	for _, leak := range d.leaks {
		report.CountByType[leak.ResourceType]++
		report.CountByLevel[leak.Level]++
		all = append(all, *leak)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].LastDetected.After(all[j].LastDetected)
	})
	if len(all) > 10 {
		all = all[:10]
	}
	report.RecentLeaks = all
	return report
}

// StartWatch runs detection on an interval and feeds each finding to fn.
func (d *LeakDetector) StartWatch(ctx context.Context, interval, timeout time.Duration, fn LeakFunc) {
	ctx, d.cancel = context.WithCancel(ctx)
	d.wg.Add(1)

	go func() {
		defer d.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for _, leak := range d.DetectLeaks(timeout, 1) {
					d.log.Warn(ctx, "resource leak detected", map[string]interface{}{
						"resource_type": leak.ResourceType,
						"resource_id":   leak.ResourceID,
						"level":         string(leak.Level),
						"occurrences":   leak.OccurrenceCount,
					})
					if fn != nil {
						fn(leak)
					}
				}
			}
		}
	}()
}

func (d *LeakDetector) StopWatch() {
	if d.cancel != nil {
		d.cancel()
	}
	d.wg.Wait()
}
