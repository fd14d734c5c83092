package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type MessageType string

const (
	MessageTypePing           MessageType = "ping"
	MessageTypePong           MessageType = "pong"
	MessageTypeSubscribe      MessageType = "subscribe"
	MessageTypeUnsubscribe    MessageType = "unsubscribe"
	MessageTypeGetStatus      MessageType = "get_status"
	MessageTypeEvent          MessageType = "event"
	MessageTypeError          MessageType = "error"
	MessageTypeProgressUpdate MessageType = "progress_update"
	MessageTypeLogMessage     MessageType = "log_message"
	MessageTypeNotification   MessageType = "notification"
	MessageTypeMetric         MessageType = "metric"
	MessageTypeHeartbeat      MessageType = "heartbeat"
	MessageTypeConnection     MessageType = "connection"
)

var knownMessageTypes = map[MessageType]bool{
	MessageTypePing:           true,
	MessageTypePong:           true,
	MessageTypeSubscribe:      true,
	MessageTypeUnsubscribe:    true,
	MessageTypeGetStatus:      true,
	MessageTypeEvent:          true,
	MessageTypeError:          true,
	MessageTypeProgressUpdate: true,
	MessageTypeLogMessage:     true,
	MessageTypeNotification:   true,
	MessageTypeMetric:         true,
	MessageTypeHeartbeat:      true,
	MessageTypeConnection:     true,
}

func (t MessageType) IsValid() bool {
	return knownMessageTypes[t]
}

type EventType string

const (
	EventTypeDeploymentStatus EventType = "deployment_status"
	EventTypePlatformHealth   EventType = "platform_health"
	EventTypeAlertTriggered   EventType = "alert_triggered"
)

// Frame is the unit of the wire protocol. Every inbound and outbound
// message carries a Type discriminator; Event frames additionally carry
// EventType and Data, error frames carry Code and Message.
type Frame struct {
	Type       MessageType            `json:"type"`
	EventType  EventType              `json:"event_type,omitempty"`
	Data       map[string]interface{} `json:"data,omitempty"`
	EventTypes []string               `json:"event_types,omitempty"`
	Code       string                 `json:"code,omitempty"`
	Message    string                 `json:"message,omitempty"`
	Timestamp  time.Time              `json:"timestamp,omitempty"`
}

func NewEventFrame(eventType EventType, data map[string]interface{}) Frame {
	return Frame{
		Type:      MessageTypeEvent,
		EventType: eventType,
		Data:      data,
		Timestamp: time.Now(),
	}
}

func NewErrorFrame(code, message string) Frame {
	return Frame{
		Type:      MessageTypeError,
		Code:      code,
		Message:   message,
		Timestamp: time.Now(),
	}
}

func NewHeartbeatFrame() Frame {
	return Frame{
		Type:      MessageTypeHeartbeat,
		Timestamp: time.Now(),
	}
}

func (f Frame) Encode() ([]byte, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}
	return data, nil
}

func DecodeFrame(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("failed to decode frame: %w", err)
	}
	return f, nil
}

type Priority int

// Lower numeric value dequeues first.
const (
	PriorityCritical Priority = 0
	PriorityHigh     Priority = 1
	PriorityNormal   Priority = 2
	PriorityLow      Priority = 3
)

func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "critical"
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	case PriorityLow:
		return "low"
	default:
		return "unknown"
	}
}

type QueuedMessage struct {
	ID         string
	Payload    []byte
	Priority   Priority
	EnqueuedAt time.Time
	TTL        time.Duration
	RetryCount int
	MaxRetries int
}

func NewQueuedMessage(payload []byte, priority Priority, ttl time.Duration) *QueuedMessage {
	return &QueuedMessage{
		ID:         uuid.New().String(),
		Payload:    payload,
		Priority:   priority,
		EnqueuedAt: time.Now(),
		TTL:        ttl,
		MaxRetries: 3,
	}
}

func (m *QueuedMessage) Expired(now time.Time) bool {
	if m.TTL <= 0 {
		return false
	}
	return now.Sub(m.EnqueuedAt) > m.TTL
}
