package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/phrazzld/scry-tasks/internal/auth"
	"github.com/phrazzld/scry-tasks/internal/domain"
	"github.com/phrazzld/scry-tasks/internal/store"
	"github.com/phrazzld/scry-tasks/internal/task"
	"github.com/phrazzld/scry-tasks/internal/wire"
)

// MapErrorToStatusCode maps internal errors to appropriate HTTP status codes
// based on the error type. This prevents leaking internal error types or
// messages to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	// Authentication errors
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrTokenNotYetValid),
		errors.Is(err, auth.ErrMissingToken),
		errors.Is(err, auth.ErrWrongTokenType):
		return http.StatusUnauthorized

	// Not found errors
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound

	// Conflict errors
	case errors.Is(err, task.ErrTaskInProgress),
		errors.Is(err, store.ErrDuplicate):
		return http.StatusConflict

	// Bad request errors
	case errors.Is(err, domain.ErrEmptyContent),
		errors.Is(err, domain.ErrInvalidPriority),
		errors.Is(err, domain.ErrInvalidStatus),
		errors.Is(err, domain.ErrValidation),
		errors.Is(err, wire.ErrMalformedMessage):
		return http.StatusBadRequest

	// Unavailable
	case errors.Is(err, task.ErrDispatcherStopped):
		return http.StatusServiceUnavailable

	// Default: internal server error
	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-friendly error message
// based on the error type. This prevents leaking sensitive internal details.
func GetSafeErrorMessage(err error) string {
	// Handle nil error
	if err == nil {
		return "An unexpected error occurred"
	}

	switch {
	case errors.Is(err, auth.ErrExpiredToken):
		return "Token expired"

	case errors.Is(err, auth.ErrMissingToken):
		return "Authorization header required"

	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrTokenNotYetValid),
		errors.Is(err, auth.ErrWrongTokenType):
		return "Invalid token"

	case errors.Is(err, store.ErrTaskNotFound):
		return "Task not found"

	case errors.Is(err, store.ErrNotFound):
		return "Not found"

	case errors.Is(err, task.ErrTaskInProgress):
		return "Task is being processed"

	case errors.Is(err, domain.ErrEmptyContent):
		return "Content cannot be empty"

	case errors.Is(err, domain.ErrInvalidPriority):
		return "Priority must be one of urgent, high, medium, low"

	case errors.Is(err, domain.ErrInvalidStatus):
		return "Status must be one of pending, in_progress, completed, error"

	case errors.Is(err, wire.ErrMalformedMessage):
		return "Malformed message"

	case errors.Is(err, task.ErrDispatcherStopped):
		return "Service is shutting down"

	case errors.Is(err, store.ErrIO):
		return "Storage failure"

	default:
		return "An unexpected error occurred"
	}
}

// SanitizeValidationError removes sensitive details from validation errors
// and returns a user-friendly message.
func SanitizeValidationError(err error) string {
	errMsg := err.Error()

	// Check if this is likely a validation error message
	if strings.Contains(errMsg, "Field validation") {
		// Example format: "Key: 'CreateTaskRequest.Content' Error:Field validation for 'Content' failed on the 'required' tag"
		parts := strings.Split(errMsg, "Error:")
		if len(parts) >= 2 {
			fieldParts := strings.Split(parts[1], "'")
			if len(fieldParts) >= 3 {
				field := fieldParts[1]
				var tag string
				if len(fieldParts) >= 5 {
					tag = fieldParts[3]
				}

				if tag != "" {
					return fmt.Sprintf("Invalid %s: %s", field, getValidationTagMessage(tag))
				}
				return fmt.Sprintf("Invalid %s", field)
			}
		}
	}

	// Fall back to a generic validation error message
	return "Validation error"
}

// getValidationTagMessage maps validation tags to user-friendly error messages
func getValidationTagMessage(tag string) string {
	switch tag {
	case "required":
		return "required field"
	case "min":
		return "too short"
	case "max":
		return "too long"
	case "oneof":
		return "invalid value"
	default:
		return "validation failed"
	}
}
