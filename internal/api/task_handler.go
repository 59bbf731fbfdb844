package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/phrazzld/scry-tasks/internal/api/shared"
	"github.com/phrazzld/scry-tasks/internal/domain"
	"github.com/phrazzld/scry-tasks/internal/platform/logger"
	"github.com/phrazzld/scry-tasks/internal/task"
)

// TaskHandler handles the public task endpoints.
type TaskHandler struct {
	tasks    TaskService
	sessions SessionRegistry
}

// NewTaskHandler creates a new TaskHandler. sessions may be nil, in which
// case status responses report zero connected clients.
func NewTaskHandler(tasks TaskService, sessions SessionRegistry) *TaskHandler {
	return &TaskHandler{
		tasks:    tasks,
		sessions: sessions,
	}
}

// CreateTask handles POST /api/tasks requests.
func (h *TaskHandler) CreateTask(w http.ResponseWriter, r *http.Request) {
	var req CreateTaskRequest
	if err := shared.DecodeJSON(w, r, &req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid request format", err)
		return
	}

	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, SanitizeValidationError(err), err)
		return
	}

	receipt, err := h.tasks.Enqueue(r.Context(), task.Request{
		Content:  req.Content,
		Priority: req.Priority,
		Category: req.Category,
	})
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	logger.FromContext(r.Context()).Info("task accepted over http",
		"task_id", receipt.TaskID,
		"queue_position", receipt.QueuePosition)

	// 202 Accepted since processing happens asynchronously
	shared.RespondWithJSON(w, r, http.StatusAccepted, receipt)
}

// ListTasks handles GET /api/tasks requests. An optional status query
// parameter filters the listing.
func (h *TaskHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	var filter task.Filter
	if raw := r.URL.Query().Get("status"); raw != "" {
		status, err := domain.ParseStatus(raw)
		if err != nil {
			respondWithServiceError(w, r, err)
			return
		}
		filter.Status = status
	}

	entries, err := h.tasks.List(r.Context(), filter)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, TaskListResponse{
		Tasks: entries,
		Count: len(entries),
	})
}

// GetTask handles GET /api/tasks/{id} requests. A record whose checksum
// does not match is still returned, flagged as invalid.
func (h *TaskHandler) GetTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	result, entry, err := h.tasks.Get(r.Context(), id)
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	if !result.Valid {
		logger.FromContext(r.Context()).Warn("serving task with checksum mismatch",
			"task_id", id,
			"stored_checksum", result.StoredChecksum,
			"actual_checksum", result.ActualChecksum)
	}

	shared.RespondWithJSON(w, r, http.StatusOK, TaskResponse{
		Task:  result.Record,
		Valid: result.Valid,
		Entry: entry,
	})
}

// Status handles GET /api/status requests.
func (h *TaskHandler) Status(w http.ResponseWriter, r *http.Request) {
	snap, err := h.tasks.Status(r.Context())
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	clients := 0
	if h.sessions != nil {
		clients = h.sessions.Count()
	}

	shared.RespondWithJSON(w, r, http.StatusOK, BuildStatus(snap, clients))
}

// Health handles GET /health requests.
func (h *TaskHandler) Health(w http.ResponseWriter, r *http.Request) {
	shared.RespondWithJSON(w, r, http.StatusOK, HealthResponse{Status: "ok"})
}

// respondWithServiceError maps err to a status code and a safe message.
func respondWithServiceError(w http.ResponseWriter, r *http.Request, err error) {
	shared.RespondWithErrorAndLog(w, r, MapErrorToStatusCode(err), GetSafeErrorMessage(err), err)
}
