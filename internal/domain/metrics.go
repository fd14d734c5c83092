package domain

import "time"

type Metrics struct {
	CPUPercent             float64   `json:"cpu_percent"`
	MemoryMB               float64   `json:"memory_mb"`
	MemoryPercent          float64   `json:"memory_percent"`
	ActiveConnections      int       `json:"active_connections"`
	QueuedMessages         int       `json:"queued_messages"`
	EstimatedBandwidthMbps float64   `json:"estimated_bandwidth_mbps"`
	Goroutines             int       `json:"goroutines"`
	Timestamp              time.Time `json:"timestamp"`
}

type PoolHealth string

const (
	PoolHealthy    PoolHealth = "healthy"
	PoolDegraded   PoolHealth = "degraded"
	PoolOverloaded PoolHealth = "overloaded"
	PoolCritical   PoolHealth = "critical"
)

type GovernorReport struct {
	Health              PoolHealth    `json:"health"`
	ActiveConnections   int           `json:"active_connections"`
	MaxConnections      int           `json:"max_connections"`
	Utilization         float64       `json:"utilization"`
	EmergencyCleanups   int64         `json:"emergency_cleanups"`
	ConnectionsReclaimed int64        `json:"connections_reclaimed"`
	AvgConnectionLifetime time.Duration `json:"avg_connection_lifetime"`
	Warnings            []string      `json:"warnings,omitempty"`
	CheckedAt           time.Time     `json:"checked_at"`
}

type CacheStats struct {
	Hits        int64   `json:"hits"`
	Misses      int64   `json:"misses"`
	Evictions   int64   `json:"evictions"`
	Entries     int     `json:"entries"`
	MemoryBytes int64   `json:"memory_bytes"`
	HitRate     float64 `json:"hit_rate"`
}

type QueueStats struct {
	Name     string `json:"name"`
	Depth    int    `json:"depth"`
	Capacity int    `json:"capacity"`
	Enqueued int64  `json:"enqueued"`
	Dequeued int64  `json:"dequeued"`
	Rejected int64  `json:"rejected"`
	Expired  int64  `json:"expired"`
}
