package domain

import (
	"fmt"
	"strings"
)

// Priority is the urgency level assigned to a task request.
type Priority string

// Known priority levels, highest first.
const (
	PriorityUrgent Priority = "urgent"
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// DefaultPriority is used when neither the request nor the classifier
// provides a priority.
const DefaultPriority = PriorityMedium

// Weight returns the ordering weight of the priority. Higher weights are
// dispatched first. Unknown priorities weigh zero.
func (p Priority) Weight() int {
	switch p {
	case PriorityUrgent:
		return 4
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	default:
		return 0
	}
}

// Valid reports whether p is one of the known priority levels.
func (p Priority) Valid() bool {
	return p.Weight() > 0
}

// ParsePriority converts a case-insensitive string into a Priority.
func ParsePriority(s string) (Priority, error) {
	p := Priority(strings.ToLower(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidPriority, s)
	}
	return p, nil
}

// Priorities lists every known priority, highest first.
func Priorities() []Priority {
	return []Priority{PriorityUrgent, PriorityHigh, PriorityMedium, PriorityLow}
}
