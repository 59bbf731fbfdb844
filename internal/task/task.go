package task

import (
	"errors"
	"fmt"
	"time"

	"github.com/phrazzld/scry-tasks/internal/domain"
	"github.com/phrazzld/scry-tasks/internal/store"
)

var (
	// ErrDispatcherStopped is returned for commands sent after the loop exited.
	ErrDispatcherStopped = errors.New("dispatcher is stopped")

	// ErrDispatcherRunning is returned by Start when the loop is already running.
	ErrDispatcherRunning = errors.New("dispatcher is already running")

	// ErrTaskInProgress is returned when removing the task being processed.
	ErrTaskInProgress = errors.New("task is in progress")

	// ErrProcessingFailed marks a task whose processing step failed.
	ErrProcessingFailed = errors.New("task processing failed")
)

// ProcessingError wraps the failure of a Processor for one task.
type ProcessingError struct {
	TaskID string
	Err    error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("processing %s failed: %v", e.TaskID, e.Err)
}

func (e *ProcessingError) Unwrap() error {
	return e.Err
}

// Is makes every ProcessingError match ErrProcessingFailed.
func (e *ProcessingError) Is(target error) bool {
	return target == ErrProcessingFailed
}

// Request is a task submission.
type Request struct {
	Content string
	// Priority and Category override the classifier when set.
	Priority string
	Category string
	// SessionID receives the targeted lifecycle events. Empty for requests
	// that did not arrive over a session.
	SessionID string
}

// Receipt acknowledges an enqueued task.
type Receipt struct {
	TaskID               string `json:"taskId"`
	QueuePosition        int    `json:"queuePosition"`
	EstimatedWaitSeconds int    `json:"estimatedWaitSeconds"`
	// DuplicateOf names the live task this request resembled, if any.
	DuplicateOf string `json:"duplicateOf,omitempty"`
}

// Stats summarises the repository and the dispatcher's history.
type Stats struct {
	TotalTasks          int                       `json:"totalTasks"`
	ByStatus            map[domain.TaskStatus]int `json:"byStatus"`
	ByPriority          map[domain.Priority]int   `json:"byPriority"`
	AverageProcessingMs int64                     `json:"averageProcessingMs"`
	Processed           int                       `json:"processed"`
	Failed              int                       `json:"failed"`
	LastIntegrity       *store.IntegrityReport    `json:"lastIntegrity,omitempty"`
}

// Snapshot is the dispatcher state reported to status requests.
type Snapshot struct {
	// QueueLength counts unfinished tasks: those waiting plus the one in flight.
	QueueLength  int           `json:"queueLength"`
	Waiting      int           `json:"waiting"`
	IsProcessing bool          `json:"isProcessing"`
	CurrentTask  string        `json:"currentTask,omitempty"`
	Uptime       time.Duration `json:"uptime"`
	Stats        Stats         `json:"stats"`
}

// Filter selects index entries by status. A zero Filter matches everything.
type Filter struct {
	Status domain.TaskStatus
}

func (f Filter) match(e store.IndexEntry) bool {
	return f.Status == "" || e.Status == f.Status
}
