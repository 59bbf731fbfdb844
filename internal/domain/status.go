package domain

import (
	"fmt"
	"strings"
)

// TaskStatus represents the lifecycle state of a task.
type TaskStatus string

// Possible task status values
const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusError      TaskStatus = "error"
)

// Valid reports whether s is a known status.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusInProgress, TaskStatusCompleted, TaskStatusError:
		return true
	default:
		return false
	}
}

// Terminal reports whether the status is absorbing.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusError
}

// CanTransition reports whether a task may move from one status to another.
// The lifecycle is pending -> in_progress -> completed | error. A pending
// task may also fail directly, which is how a task interrupted by a restart
// is closed out during recovery.
func CanTransition(from, to TaskStatus) bool {
	switch from {
	case TaskStatusPending:
		return to == TaskStatusInProgress || to == TaskStatusError
	case TaskStatusInProgress:
		return to == TaskStatusCompleted || to == TaskStatusError
	default:
		return false
	}
}

// Statuses lists every known status in lifecycle order.
func Statuses() []TaskStatus {
	return []TaskStatus{TaskStatusPending, TaskStatusInProgress, TaskStatusCompleted, TaskStatusError}
}

// ParseStatus converts a status name to a TaskStatus, case-insensitively.
func ParseStatus(s string) (TaskStatus, error) {
	status := TaskStatus(strings.ToLower(strings.TrimSpace(s)))
	if !status.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
	return status, nil
}
