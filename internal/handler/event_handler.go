package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/orchids/event-stream/internal/domain"
	"github.com/orchids/event-stream/internal/queue"
	"github.com/orchids/event-stream/pkg/logger"
	"github.com/orchids/event-stream/pkg/response"
	"github.com/orchids/event-stream/pkg/validator"
)

// EventHandler is the ingress for publishers: events are queued with a
// priority and fanned out by the batch processor, so a burst of publishes
// never blocks the HTTP path.
type EventHandler struct {
	queue      *queue.PriorityQueue
	queueName  string
	processor  *queue.BatchProcessor
	spill      *queue.Spillover
	messageTTL time.Duration
	log        *logger.Logger
}

type publishRequest struct {
	EventType string                 `json:"event_type" binding:"required"`
	SubjectID string                 `json:"subject_id"`
	OwnerID   string                 `json:"owner_id"`
	Data      map[string]interface{} `json:"data"`
	Priority  string                 `json:"priority"`
}

func NewEventHandler(q *queue.PriorityQueue, queueName string, processor *queue.BatchProcessor, spill *queue.Spillover, messageTTL time.Duration, log *logger.Logger) *EventHandler {
	return &EventHandler{
		queue:      q,
		queueName:  queueName,
		processor:  processor,
		spill:      spill,
		messageTTL: messageTTL,
		log:        log,
	}
}

func (h *EventHandler) Publish(c *gin.Context) {
	ctx := c.Request.Context()

	var req publishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid publish request")
		return
	}
	if err := validator.ValidateIdentifier(req.SubjectID); err != nil {
		response.BadRequest(c, "Invalid subject identifier")
		return
	}
	if err := validator.ValidateIdentifier(req.OwnerID); err != nil {
		response.BadRequest(c, "Invalid owner identifier")
		return
	}

	envelope := domain.EventEnvelope{
		EventType: domain.EventType(req.EventType),
		SubjectID: req.SubjectID,
		OwnerID:   req.OwnerID,
		Data:      req.Data,
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		response.InternalError(c, "Failed to encode event")
		return
	}

	msg := domain.NewQueuedMessage(payload, domain.ParsePriority(req.Priority), h.messageTTL)
	deferred := false
	if !h.queue.Enqueue(msg, h.queueName) {
		if h.spill == nil {
			response.TooManyRequests(c, "Event queue is full")
			return
		}
		if err := h.spill.Offload(ctx, msg); err != nil {
			h.log.Error(ctx, "event rejected, queue full and spillover failed", err, map[string]interface{}{
				"queue":      h.queueName,
				"event_type": req.EventType,
			})
			response.TooManyRequests(c, "Event queue is full")
			return
		}
		deferred = true
		h.log.Warn(ctx, "event spilled to backing store", map[string]interface{}{
			"queue":      h.queueName,
			"event_type": req.EventType,
			"message_id": msg.ID,
		})
	}

	response.Success(c, http.StatusAccepted, gin.H{
		"message_id": msg.ID,
		"priority":   msg.Priority.String(),
		"deferred":   deferred,
	})
}

// GetResult returns the cached fan-out result for a published event.
func (h *EventHandler) GetResult(c *gin.Context) {
	messageID := c.Param("id")
	if _, err := validator.ValidateUUID(messageID); err != nil {
		response.BadRequest(c, "Invalid message ID format")
		return
	}

	result, ok := h.processor.Result(messageID)
	if !ok {
		response.NotFound(c, "No result for message")
		return
	}
	response.Success(c, http.StatusOK, result)
}
