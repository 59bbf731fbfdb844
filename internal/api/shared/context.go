package shared

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

// Key type for context values
type ContextKey string

// Context keys for various values
const (
	// TraceIDKey is the key for the trace ID in the request context
	TraceIDKey ContextKey = "traceID"

	// AdminSubjectKey is the key for the subject of a validated admin token
	AdminSubjectKey ContextKey = "adminSubject"
)

// SetTraceID adds a fresh trace ID to the context.
// This is useful for correlating logs and error responses.
func SetTraceID(ctx context.Context) context.Context {
	return context.WithValue(ctx, TraceIDKey, generateTraceID())
}

// GetTraceID retrieves the trace ID from the context.
// If no trace ID exists, it returns an empty string.
func GetTraceID(ctx context.Context) string {
	traceID, ok := ctx.Value(TraceIDKey).(string)
	if !ok {
		return ""
	}
	return traceID
}

// SetAdminSubject records the subject of the admin token on the context.
func SetAdminSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, AdminSubjectKey, subject)
}

// GetAdminSubject returns the admin subject stored by the auth middleware.
func GetAdminSubject(ctx context.Context) (string, bool) {
	subject, ok := ctx.Value(AdminSubjectKey).(string)
	return subject, ok
}

// generateTraceID returns a random 32-character hex string.
func generateTraceID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
