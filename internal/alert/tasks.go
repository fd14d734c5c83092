package alert

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/orchids/event-stream/internal/domain"
)

const (
	TypeLeakAlert      = "alert:leak"
	TypeThresholdAlert = "alert:threshold"
)

type LeakAlertPayload struct {
	ResourceType    string    `json:"resource_type"`
	ResourceID      string    `json:"resource_id"`
	Level           string    `json:"level"`
	FirstDetected   time.Time `json:"first_detected"`
	OccurrenceCount int       `json:"occurrence_count"`
}

type ThresholdAlertPayload struct {
	Warnings          []string  `json:"warnings"`
	CPUPercent        float64   `json:"cpu_percent"`
	MemoryMB          float64   `json:"memory_mb"`
	ActiveConnections int       `json:"active_connections"`
	QueuedMessages    int       `json:"queued_messages"`
	ObservedAt        time.Time `json:"observed_at"`
}

func NewLeakAlertTask(leak domain.ResourceLeak) (*asynq.Task, error) {
	payload := LeakAlertPayload{
		ResourceType:    leak.ResourceType,
		ResourceID:      leak.ResourceID,
		Level:           string(leak.Level),
		FirstDetected:   leak.FirstDetected,
		OccurrenceCount: leak.OccurrenceCount,
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal leak alert payload: %w", err)
	}
	return asynq.NewTask(TypeLeakAlert, payloadBytes), nil
}

func ParseLeakAlertPayload(task *asynq.Task) (*LeakAlertPayload, error) {
	var payload LeakAlertPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal leak alert payload: %w", err)
	}
	return &payload, nil
}

func NewThresholdAlertTask(warnings []string, metrics domain.Metrics) (*asynq.Task, error) {
	payload := ThresholdAlertPayload{
		Warnings:          warnings,
		CPUPercent:        metrics.CPUPercent,
		MemoryMB:          metrics.MemoryMB,
		ActiveConnections: metrics.ActiveConnections,
		QueuedMessages:    metrics.QueuedMessages,
		ObservedAt:        metrics.Timestamp,
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal threshold alert payload: %w", err)
	}
	return asynq.NewTask(TypeThresholdAlert, payloadBytes), nil
}

func ParseThresholdAlertPayload(task *asynq.Task) (*ThresholdAlertPayload, error) {
	var payload ThresholdAlertPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return nil, fmt.Errorf("failed to unmarshal threshold alert payload: %w", err)
	}
	return &payload, nil
}
