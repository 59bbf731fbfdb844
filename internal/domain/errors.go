package domain

import "errors"

// Common domain errors used across the application.
var (
	// ErrValidation is returned when a domain entity fails validation.
	// This is often wrapped with a more specific error message.
	ErrValidation = errors.New("validation failed")

	// ErrEmptyContent is returned when a task request has no content.
	ErrEmptyContent = errors.New("content cannot be empty")

	// ErrEmptyTaskID is returned when a task record has no identifier.
	ErrEmptyTaskID = errors.New("task ID cannot be empty")

	// ErrInvalidPriority is returned when a priority is not one of the known levels.
	ErrInvalidPriority = errors.New("invalid task priority")

	// ErrInvalidStatus is returned when a task status is not valid.
	ErrInvalidStatus = errors.New("invalid task status")

	// ErrInvalidTransition is returned when a status change is not permitted
	// by the task lifecycle, for example leaving a terminal state.
	ErrInvalidTransition = errors.New("invalid status transition")
)
