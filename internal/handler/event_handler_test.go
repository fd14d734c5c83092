package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orchids/event-stream/internal/cache"
	"github.com/orchids/event-stream/internal/domain"
	"github.com/orchids/event-stream/internal/queue"
	"github.com/orchids/event-stream/pkg/logger"
)

func newEventTestServer(t *testing.T, q *queue.PriorityQueue, messageTTL time.Duration) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := logger.New("test", "error")
	results := cache.New(10, 1<<20, time.Minute, cache.StrategyLRU)
	processor := queue.NewBatchProcessor(queue.BatchProcessorConfig{
		QueueName:   "events",
		BatchSize:   1,
		MaxWaitTime: 10 * time.Millisecond,
		WorkerCount: 1,
		ResultTTL:   time.Minute,
	}, q, results, nil, log)

	h := NewEventHandler(q, "events", processor, nil, messageTTL, log)
	engine := gin.New()
	engine.POST("/api/events", h.Publish)
	return engine
}

func publishEvent(t *testing.T, engine *gin.Engine, payload map[string]interface{}) *httptest.ResponseRecorder {
	t.Helper()

	body, err := json.Marshal(payload)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/events", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	engine.ServeHTTP(w, req)
	return w
}

func TestPublishQueuesWithConfiguredTTL(t *testing.T) {
	q := queue.NewPriorityQueue(10)
	engine := newEventTestServer(t, q, time.Minute)

	w := publishEvent(t, engine, map[string]interface{}{
		"event_type": string(domain.EventTypeDeploymentStatus),
		"subject_id": "deploy-1",
		"priority":   "high",
	})
	require.Equal(t, http.StatusAccepted, w.Code)

	msg := q.Dequeue(context.Background(), "events", time.Second)
	require.NotNil(t, msg)
	assert.Equal(t, domain.PriorityHigh, msg.Priority)
	assert.Equal(t, time.Minute, msg.TTL)
	assert.False(t, msg.Expired(time.Now()))
}

func TestPublishedMessagePastTTLIsNotDelivered(t *testing.T) {
	q := queue.NewPriorityQueue(10)
	engine := newEventTestServer(t, q, 20*time.Millisecond)

	w := publishEvent(t, engine, map[string]interface{}{
		"event_type": string(domain.EventTypePlatformHealth),
	})
	require.Equal(t, http.StatusAccepted, w.Code)
	require.Equal(t, 1, q.Depth("events"))

	time.Sleep(40 * time.Millisecond)

	assert.Nil(t, q.Dequeue(context.Background(), "events", 30*time.Millisecond))

	stats := q.Stats()
	require.Len(t, stats, 1)
	assert.Equal(t, int64(1), stats[0].Expired)
}

func TestPublishRejectsBadRequests(t *testing.T) {
	q := queue.NewPriorityQueue(10)
	engine := newEventTestServer(t, q, time.Minute)

	// event_type is required.
	w := publishEvent(t, engine, map[string]interface{}{"subject_id": "deploy-1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = publishEvent(t, engine, map[string]interface{}{
		"event_type": string(domain.EventTypeDeploymentStatus),
		"subject_id": "not valid!",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 0, q.Depth("events"))
}
