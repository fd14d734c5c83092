package domain

// EventEnvelope is the payload of a queued broadcast request. SubjectID or
// OwnerID scope the fan-out; with both empty the event goes to every
// connection subscribed to its type.
type EventEnvelope struct {
	EventType EventType              `json:"event_type"`
	SubjectID string                 `json:"subject_id,omitempty"`
	OwnerID   string                 `json:"owner_id,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

func ParsePriority(s string) Priority {
	switch s {
	case "critical":
		return PriorityCritical
	case "high":
		return PriorityHigh
	case "low":
		return PriorityLow
	default:
		return PriorityNormal
	}
}
