package alert

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/orchids/event-stream/internal/domain"
	"github.com/orchids/event-stream/pkg/logger"
)

// Client enqueues alert tasks for the worker process. Leak severity maps
// to queue priority so critical alerts are drained first.
type Client struct {
	client *asynq.Client
	logger *logger.Logger
}

func NewClient(redisAddr string, logger *logger.Logger) *Client {
	client := asynq.NewClient(asynq.RedisClientOpt{Addr: redisAddr})
	return &Client{
		client: client,
		logger: logger,
	}
}

func (c *Client) Close() error {
	return c.client.Close()
}

func (c *Client) EnqueueLeakAlert(ctx context.Context, leak domain.ResourceLeak) error {
	task, err := NewLeakAlertTask(leak)
	if err != nil {
		return fmt.Errorf("failed to create leak alert task: %w", err)
	}

	opts := []asynq.Option{
		asynq.MaxRetry(3),
		asynq.Timeout(1 * time.Minute),
		asynq.Queue(queueNameForLevel(leak.Level)),
	}

	info, err := c.client.EnqueueContext(ctx, task, opts...)
	if err != nil {
		c.logger.Error(ctx, "failed to enqueue leak alert", err, map[string]interface{}{
			"resource_id": leak.ResourceID,
		})
		return fmt.Errorf("failed to enqueue task: %w", err)
	}

	c.logger.Info(ctx, "leak alert enqueued", map[string]interface{}{
		"resource_id": leak.ResourceID,
		"level":       string(leak.Level),
		"task_id":     info.ID,
		"queue":       info.Queue,
	})
	return nil
}

func (c *Client) EnqueueThresholdAlert(ctx context.Context, warnings []string, metrics domain.Metrics) error {
	task, err := NewThresholdAlertTask(warnings, metrics)
	if err != nil {
		return fmt.Errorf("failed to create threshold alert task: %w", err)
	}

	opts := []asynq.Option{
		asynq.MaxRetry(2),
		asynq.Timeout(1 * time.Minute),
		asynq.Queue("critical"),
	}

	info, err := c.client.EnqueueContext(ctx, task, opts...)
	if err != nil {
		c.logger.Error(ctx, "failed to enqueue threshold alert", err, map[string]interface{}{
			"warnings": warnings,
		})
		return fmt.Errorf("failed to enqueue task: %w", err)
	}

	c.logger.Info(ctx, "threshold alert enqueued", map[string]interface{}{
		"task_id": info.ID,
		"queue":   info.Queue,
	})
	return nil
}

func queueNameForLevel(level domain.LeakLevel) string {
	switch level {
	case domain.LeakLevelCritical:
		return "critical"
	case domain.LeakLevelInfo:
		return "low"
	default:
		return "default"
	}
}
