package wire

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedMessage is returned for input that is not a recognised message.
var ErrMalformedMessage = errors.New("malformed message")

// MessageType is the value of the "type" field.
type MessageType string

const (
	TypeTaskRequest    MessageType = "task_request"
	TypeTaskCreated    MessageType = "task_created"
	TypeTaskProcessing MessageType = "task_processing"
	TypeTaskCompleted  MessageType = "task_completed"
	TypeTaskError      MessageType = "task_error"
	TypeStatusRequest  MessageType = "status_request"
	TypeStatus         MessageType = "status"
	TypePing           MessageType = "ping"
	TypePong           MessageType = "pong"
	TypeError          MessageType = "error"
)

type envelope struct {
	Type MessageType `json:"type"`
}

// TaskRequest asks for a new task.
type TaskRequest struct {
	Type     MessageType `json:"type"`
	Content  string      `json:"content"`
	Priority string      `json:"priority,omitempty"`
	Category string      `json:"category,omitempty"`
}

// TaskCreated acknowledges a TaskRequest.
type TaskCreated struct {
	Type                 MessageType `json:"type"`
	TaskID               string      `json:"taskId"`
	QueuePosition        int         `json:"queuePosition"`
	EstimatedWaitSeconds int         `json:"estimatedWaitSeconds"`
}

// TaskProcessing announces that a task left the queue.
type TaskProcessing struct {
	Type   MessageType `json:"type"`
	TaskID string      `json:"taskId"`
}

// TaskCompleted announces a successful task.
type TaskCompleted struct {
	Type             MessageType `json:"type"`
	TaskID           string      `json:"taskId"`
	ProcessingTimeMs int64       `json:"processingTimeMs"`
	Result           string      `json:"result"`
}

// TaskError announces a failed task.
type TaskError struct {
	Type    MessageType `json:"type"`
	TaskID  string      `json:"taskId"`
	Message string      `json:"message"`
}

// StatusRequest asks for a Status reply.
type StatusRequest struct {
	Type MessageType `json:"type"`
}

// Stats summarises the task store.
type Stats struct {
	TotalTasks          int            `json:"totalTasks"`
	ByStatus            map[string]int `json:"byStatus"`
	ByPriority          map[string]int `json:"byPriority"`
	AverageProcessingMs int64          `json:"averageProcessingMs"`
	Processed           int            `json:"processed"`
	Failed              int            `json:"failed"`
	IntegrityValid      int            `json:"integrityValid"`
	IntegrityInvalid    int            `json:"integrityInvalid"`
}

// Status reports the queue and store state.
type Status struct {
	Type             MessageType `json:"type"`
	QueueLength      int         `json:"queueLength"`
	IsProcessing     bool        `json:"isProcessing"`
	ConnectedClients int         `json:"connectedClients"`
	Stats            Stats       `json:"stats"`
	UptimeMs         int64       `json:"uptimeMs"`
}

// Ping is a client heartbeat.
type Ping struct {
	Type MessageType `json:"type"`
}

// Pong answers a Ping. Timestamp is milliseconds since the Unix epoch.
type Pong struct {
	Type      MessageType `json:"type"`
	Timestamp int64       `json:"timestamp"`
}

// Error reports a request that could not be handled.
type Error struct {
	Type    MessageType `json:"type"`
	Message string      `json:"message"`
}

// NewTaskCreated builds a task_created message.
func NewTaskCreated(taskID string, position, waitSeconds int) TaskCreated {
	return TaskCreated{
		Type:                 TypeTaskCreated,
		TaskID:               taskID,
		QueuePosition:        position,
		EstimatedWaitSeconds: waitSeconds,
	}
}

// NewTaskProcessing builds a task_processing message.
func NewTaskProcessing(taskID string) TaskProcessing {
	return TaskProcessing{Type: TypeTaskProcessing, TaskID: taskID}
}

// NewTaskCompleted builds a task_completed message. processingMs is in milliseconds.
func NewTaskCompleted(taskID string, processingMs int64, result string) TaskCompleted {
	return TaskCompleted{
		Type:             TypeTaskCompleted,
		TaskID:           taskID,
		ProcessingTimeMs: processingMs,
		Result:           result,
	}
}

// NewTaskError builds a task_error message.
func NewTaskError(taskID, message string) TaskError {
	return TaskError{Type: TypeTaskError, TaskID: taskID, Message: message}
}

// NewPong builds a pong message.
func NewPong(timestampMs int64) Pong {
	return Pong{Type: TypePong, Timestamp: timestampMs}
}

// NewError builds an error message.
func NewError(message string) Error {
	return Error{Type: TypeError, Message: message}
}

// Parse decodes an inbound client message. It returns one of *TaskRequest,
// *StatusRequest or *Ping. Anything else, including server-to-client
// message types, is ErrMalformedMessage.
func Parse(data []byte) (interface{}, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	var msg interface{}
	switch env.Type {
	case TypeTaskRequest:
		msg = &TaskRequest{}
	case TypeStatusRequest:
		msg = &StatusRequest{}
	case TypePing:
		msg = &Ping{}
	case "":
		return nil, fmt.Errorf("%w: missing type", ErrMalformedMessage)
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrMalformedMessage, env.Type)
	}

	if err := json.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	return msg, nil
}

// Encode serializes an outbound message.
func Encode(msg interface{}) ([]byte, error) {
	return json.Marshal(msg)
}
