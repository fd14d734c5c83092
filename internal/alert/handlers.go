package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/orchids/event-stream/pkg/logger"
)

const (
	recentAlertsKey = "alerts:recent"
	recentAlertsMax = 100
)

// LeakAlertHandler records detected leaks in the shared recent-alerts list
// so operators can inspect them without scraping logs.
type LeakAlertHandler struct {
	redis  *redis.Client
	logger *logger.Logger
}

func NewLeakAlertHandler(redisClient *redis.Client, logger *logger.Logger) *LeakAlertHandler {
	return &LeakAlertHandler{
		redis:  redisClient,
		logger: logger,
	}
}

func (h *LeakAlertHandler) ProcessTask(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseLeakAlertPayload(task)
	if err != nil {
		h.logger.Error(ctx, "failed to parse leak alert payload", err, nil)
		return fmt.Errorf("parse payload: %w", err)
	}

	h.logger.Warn(ctx, "resource leak alert", map[string]interface{}{
		"resource_type": payload.ResourceType,
		"resource_id":   payload.ResourceID,
		"level":         payload.Level,
		"occurrences":   payload.OccurrenceCount,
	})

	if err := h.recordAlert(ctx, "leak", task.Payload()); err != nil {
		return fmt.Errorf("record leak alert: %w", err)
	}
	return nil
}

type ThresholdAlertHandler struct {
	redis  *redis.Client
	logger *logger.Logger
}

func NewThresholdAlertHandler(redisClient *redis.Client, logger *logger.Logger) *ThresholdAlertHandler {
	return &ThresholdAlertHandler{
		redis:  redisClient,
		logger: logger,
	}
}

func (h *ThresholdAlertHandler) ProcessTask(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseThresholdAlertPayload(task)
	if err != nil {
		h.logger.Error(ctx, "failed to parse threshold alert payload", err, nil)
		return fmt.Errorf("parse payload: %w", err)
	}

	h.logger.Warn(ctx, "resource threshold alert", map[string]interface{}{
		"warnings":           payload.Warnings,
		"cpu_percent":        payload.CPUPercent,
		"memory_mb":          payload.MemoryMB,
		"active_connections": payload.ActiveConnections,
		"queued_messages":    payload.QueuedMessages,
	})

	if err := h.recordAlert(ctx, "threshold", task.Payload()); err != nil {
		return fmt.Errorf("record threshold alert: %w", err)
	}
	return nil
}

type recordedAlert struct {
	Kind       string          `json:"kind"`
	Payload    json.RawMessage `json:"payload"`
	RecordedAt time.Time       `json:"recorded_at"`
}

func (h *LeakAlertHandler) recordAlert(ctx context.Context, kind string, payload []byte) error {
	return recordAlert(ctx, h.redis, kind, payload)
}

func (h *ThresholdAlertHandler) recordAlert(ctx context.Context, kind string, payload []byte) error {
	return recordAlert(ctx, h.redis, kind, payload)
}

func recordAlert(ctx context.Context, client *redis.Client, kind string, payload []byte) error {
	entry, err := json.Marshal(recordedAlert{
		Kind:       kind,
		Payload:    payload,
		RecordedAt: time.Now(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal alert record: %w", err)
	}

	pipe := client.Pipeline()
	pipe.LPush(ctx, recentAlertsKey, entry)
	pipe.LTrim(ctx, recentAlertsKey, 0, recentAlertsMax-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record alert: %w", err)
	}
	return nil
}
