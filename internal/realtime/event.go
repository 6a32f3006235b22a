// Package realtime provides the in-process publish/subscribe primitive the
// lite-profile Fan-out Bus builds on; the Redis pub/sub bus for cross-replica
// delivery lives in internal/fanout.
package realtime

import (
	"time"

	"github.com/google/uuid"
)

// Event represents a real-time event broadcast to subscribers.
type Event struct {
	// Type is the event type (one of the EventType constants below)
	Type string `json:"type"`

	// ID is a unique event ID (UUID)
	ID string `json:"id"`

	// Data is the event payload (varies by event type)
	Data map[string]interface{} `json:"data"`

	// Timestamp is when the event occurred
	Timestamp time.Time `json:"timestamp"`

	// Source is the event source (one of the EventSource constants below)
	Source string `json:"source"`

	// Sequence is a sequence number for event ordering (monotonically increasing)
	Sequence int64 `json:"sequence"`
}

// EventType constants for session lifecycle and state-change events.
const (
	// state-changed topic (§4.2). fanout.LocalBus publishes EventTypeCycleSwitched
	// for every non-delete state change and EventTypeSessionDeleted for a
	// delete; it does not publish the other session types.
	EventTypeSessionCreated  = "session_created"
	EventTypeSessionStarted  = "session_started"
	EventTypeCycleSwitched   = "cycle_switched"
	EventTypeSessionPaused   = "session_paused"
	EventTypeSessionResumed  = "session_resumed"
	EventTypeSessionComplete = "session_completed"
	EventTypeSessionDeleted  = "session_deleted"

	// System events, not tied to a single session.
	EventTypeSystemNotification = "system_notification"
)

// EventSource constants.
const (
	EventSourceSyncEngine   = "sync_engine"
	EventSourceAuditPipeline = "audit_pipeline"
	EventSourceSystem        = "system"
)

// NewEvent creates a new Event with the given type, data, and source.
func NewEvent(eventType string, data map[string]interface{}, source string) *Event {
	return &Event{
		Type:      eventType,
		ID:        generateEventID(),
		Data:      data,
		Timestamp: time.Now(),
		Source:    source,
		Sequence:  0, // Will be set by EventBus
	}
}

// generateEventID generates a unique event ID (UUID).
func generateEventID() string {
	return uuid.New().String()
}
