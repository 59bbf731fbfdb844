package shared

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/phrazzld/scry-tasks/internal/platform/logger"
	"github.com/phrazzld/scry-tasks/internal/redact"
	"github.com/phrazzld/scry-tasks/internal/store"
)

// ErrorResponse is the body of every error reply. TaskID is set on routes
// that address a single task.
type ErrorResponse struct {
	Error   string `json:"error"`
	TaskID  string `json:"taskId,omitempty"`
	TraceID string `json:"traceId,omitempty"`
}

// RespondWithJSON writes data as JSON with the given status. A 204 carries
// no body.
func RespondWithJSON(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if status == http.StatusNoContent {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.FromContext(r.Context()).Error("failed to encode JSON response", "error", err)
	}
}

// RespondWithError writes an error reply with a message that is safe to show
// to clients.
func RespondWithError(w http.ResponseWriter, r *http.Request, status int, message string) {
	RespondWithErrorAndLog(w, r, status, message, nil)
}

// RespondWithErrorAndLog writes an error reply carrying only userMessage and
// logs err, redacted, next to it.
func RespondWithErrorAndLog(w http.ResponseWriter, r *http.Request, status int, userMessage string, err error) {
	resp := ErrorResponse{
		Error:   userMessage,
		TaskID:  chi.URLParam(r, "id"),
		TraceID: GetTraceID(r.Context()),
	}

	attrs := []slog.Attr{
		slog.String("path", r.URL.Path),
		slog.String("method", r.Method),
		slog.Int("status_code", status),
		slog.String("user_message", userMessage),
	}
	if resp.TaskID != "" {
		attrs = append(attrs, slog.String("task_id", resp.TaskID))
	}
	if err != nil {
		attrs = append(attrs,
			slog.String("error", redact.Error(err)),
			slog.String("error_type", fmt.Sprintf("%T", err)))
	}

	logger.FromContext(r.Context()).LogAttrs(r.Context(), errorLevel(status, err), "API error response", attrs...)
	RespondWithJSON(w, r, status, resp)
}

// errorLevel picks the log level of an error reply. Storage and integrity
// failures are errors whatever status they map to; rejected admin
// credentials are warnings; other client errors are debug noise.
func errorLevel(status int, err error) slog.Level {
	switch {
	case status >= http.StatusInternalServerError,
		errors.Is(err, store.ErrIO),
		errors.Is(err, store.ErrChecksumMismatch):
		return slog.LevelError
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return slog.LevelWarn
	default:
		return slog.LevelDebug
	}
}
