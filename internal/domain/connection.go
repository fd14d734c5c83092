package domain

import (
	"time"

	"github.com/google/uuid"
)

const recentMessageCapacity = 16

// Connection is one live client session in the broadcast layer. The pool
// owns every Connection exclusively; other components refer to it by ID.
type Connection struct {
	ID              string
	OwnerID         string
	SubjectID       string
	CreatedAt       time.Time
	LastHeartbeatAt time.Time
	IsAlive         bool
	Metadata        map[string]string

	// recentMessages is a diagnostic ring of the most recent frame types
	// seen on this connection. Never used for replay.
	recentMessages []string
	recentNext     int
	recentCount    int
}

func NewConnection(subjectID, ownerID string) *Connection {
	now := time.Now()
	return &Connection{
		ID:              uuid.New().String(),
		OwnerID:         ownerID,
		SubjectID:       subjectID,
		CreatedAt:       now,
		LastHeartbeatAt: now,
		IsAlive:         true,
		Metadata:        make(map[string]string),
		recentMessages:  make([]string, recentMessageCapacity),
	}
}

func (c *Connection) Touch(now time.Time) {
	c.LastHeartbeatAt = now
}

func (c *Connection) IdleSince(now time.Time) time.Duration {
	return now.Sub(c.LastHeartbeatAt)
}

func (c *Connection) RecordMessage(direction string, msgType MessageType) {
	c.recentMessages[c.recentNext] = direction + ":" + string(msgType)
	c.recentNext = (c.recentNext + 1) % len(c.recentMessages)
	if c.recentCount < len(c.recentMessages) {
		c.recentCount++
	}
}

// RecentMessages returns the diagnostic ring oldest-first.
func (c *Connection) RecentMessages() []string {
	out := make([]string, 0, c.recentCount)
	start := c.recentNext - c.recentCount
	if start < 0 {
		start += len(c.recentMessages)
	}
	for i := 0; i < c.recentCount; i++ {
		out = append(out, c.recentMessages[(start+i)%len(c.recentMessages)])
	}
	return out
}

type ConnectionStatus struct {
	ID              string    `json:"id"`
	SubjectID       string    `json:"subject_id,omitempty"`
	OwnerID         string    `json:"owner_id,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	LastHeartbeatAt time.Time `json:"last_heartbeat_at"`
	Subscriptions   []string  `json:"subscriptions,omitempty"`
	RecentMessages  []string  `json:"recent_messages,omitempty"`
}
