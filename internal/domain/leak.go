package domain

import "time"

type LeakLevel string

const (
	LeakLevelInfo     LeakLevel = "info"
	LeakLevelWarning  LeakLevel = "warning"
	LeakLevelError    LeakLevel = "error"
	LeakLevelCritical LeakLevel = "critical"
)

// ResourceLeak describes a tracked resource that was not released or
// touched within its expected lifetime. Severity escalates with age and
// never de-escalates for the same leak.
type ResourceLeak struct {
	ResourceType    string    `json:"resource_type"`
	ResourceID      string    `json:"resource_id"`
	Level           LeakLevel `json:"level"`
	FirstDetected   time.Time `json:"first_detected"`
	LastDetected    time.Time `json:"last_detected"`
	OccurrenceCount int       `json:"occurrence_count"`
}

type LeakReport struct {
	TotalLeaks   int                  `json:"total_leaks"`
	CountByType  map[string]int       `json:"count_by_type"`
	CountByLevel map[LeakLevel]int    `json:"count_by_level"`
	RecentLeaks  []ResourceLeak       `json:"recent_leaks"`
	GeneratedAt  time.Time            `json:"generated_at"`
}
