package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/phrazzld/scry-tasks/internal/api/shared"
	"github.com/phrazzld/scry-tasks/internal/platform/logger"
)

// AdminHandler handles maintenance endpoints. Routes are expected to sit
// behind the admin auth middleware.
type AdminHandler struct {
	admin AdminService
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(admin AdminService) *AdminHandler {
	return &AdminHandler{admin: admin}
}

// DeleteTask handles DELETE /api/tasks/{id} requests.
func (h *AdminHandler) DeleteTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.admin.Remove(r.Context(), id); err != nil {
		respondWithServiceError(w, r, err)
		return
	}

	subject, _ := shared.GetAdminSubject(r.Context())
	logger.FromContext(r.Context()).Info("task removed", "task_id", id, "admin", subject)

	w.WriteHeader(http.StatusNoContent)
}

// Verify handles POST /api/admin/verify requests.
func (h *AdminHandler) Verify(w http.ResponseWriter, r *http.Request) {
	report, err := h.admin.Verify(r.Context())
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, report)
}

// Compact handles POST /api/admin/compact requests.
func (h *AdminHandler) Compact(w http.ResponseWriter, r *http.Request) {
	report, err := h.admin.Compact(r.Context())
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, compactToResponse(report))
}

// Reindex handles POST /api/admin/reindex requests.
func (h *AdminHandler) Reindex(w http.ResponseWriter, r *http.Request) {
	n, err := h.admin.Reindex(r.Context())
	if err != nil {
		respondWithServiceError(w, r, err)
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, ReindexResponse{Entries: n})
}
