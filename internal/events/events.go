package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType names a task lifecycle transition.
type EventType string

const (
	TaskCreated    EventType = "task_created"
	TaskProcessing EventType = "task_processing"
	TaskCompleted  EventType = "task_completed"
	TaskError      EventType = "task_error"
)

// Event is a lifecycle notification for one task.
type Event struct {
	// ID is a unique identifier for this event
	ID uuid.UUID `json:"id"`

	// Type indicates which transition happened
	Type EventType `json:"type"`

	// TaskID is the task the event is about
	TaskID string `json:"taskId"`

	// Target is the session that should receive the event. Empty means broadcast.
	Target string `json:"target,omitempty"`

	// Exclude is a session skipped by a broadcast.
	Exclude string `json:"exclude,omitempty"`

	// Payload is the encoded wire message delivered to clients
	Payload json.RawMessage `json:"payload"`

	// CreatedAt is the timestamp when the event was created
	CreatedAt time.Time `json:"createdAt"`
}

// Broadcast reports whether the event is addressed to every session.
func (e *Event) Broadcast() bool {
	return e.Target == ""
}

// UnmarshalPayload decodes the event payload into the provided structure.
func (e *Event) UnmarshalPayload(v interface{}) error {
	return json.Unmarshal(e.Payload, v)
}

// NewEvent creates a broadcast event with the given payload serialized as JSON.
func NewEvent(eventType EventType, taskID string, payload interface{}) (*Event, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:        uuid.New(),
		Type:      eventType,
		TaskID:    taskID,
		Payload:   payloadBytes,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// Targeted returns a copy of the event addressed to a single session.
func (e *Event) Targeted(sessionID string) *Event {
	c := *e
	c.ID = uuid.New()
	c.Target = sessionID
	c.Exclude = ""
	return &c
}

// Excluding returns a broadcast copy of the event that skips one session.
func (e *Event) Excluding(sessionID string) *Event {
	c := *e
	c.ID = uuid.New()
	c.Target = ""
	c.Exclude = sessionID
	return &c
}

// EventHandler defines an interface for components that can handle events.
type EventHandler interface {
	// HandleEvent processes the given event within the provided context.
	HandleEvent(ctx context.Context, event *Event) error
}

// EventHandlerFunc adapts a function to the EventHandler interface.
type EventHandlerFunc func(ctx context.Context, event *Event) error

// HandleEvent calls f(ctx, event).
func (f EventHandlerFunc) HandleEvent(ctx context.Context, event *Event) error {
	return f(ctx, event)
}

// EventEmitter defines an interface for components that can emit events.
// This allows the dispatcher to publish events without knowing about sessions.
type EventEmitter interface {
	// EmitEvent publishes the given event to all registered handlers.
	EmitEvent(ctx context.Context, event *Event) error
}
