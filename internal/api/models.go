package api

import (
	"github.com/phrazzld/scry-tasks/internal/domain"
	"github.com/phrazzld/scry-tasks/internal/store"
)

// CreateTaskRequest is the body of POST /api/tasks.
type CreateTaskRequest struct {
	Content string `json:"content" validate:"required,max=20000"`
	// Priority and Category override the classifier when set.
	Priority string `json:"priority,omitempty" validate:"omitempty,max=16"`
	Category string `json:"category,omitempty" validate:"omitempty,max=64"`
}

// TaskResponse carries a stored record together with its integrity flag.
type TaskResponse struct {
	Task  *domain.TaskRecord `json:"task"`
	Valid bool               `json:"valid"`
	Entry store.IndexEntry   `json:"entry"`
}

// TaskListResponse lists index entries.
type TaskListResponse struct {
	Tasks []store.IndexEntry `json:"tasks"`
	Count int                `json:"count"`
}

// CompactResponse reports the outcome of a compaction.
type CompactResponse struct {
	Records     int `json:"records"`
	BytesBefore int `json:"bytesBefore"`
	BytesAfter  int `json:"bytesAfter"`
	Reclaimed   int `json:"reclaimed"`
}

// ReindexResponse reports the number of entries rebuilt by a reindex.
type ReindexResponse struct {
	Entries int `json:"entries"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

func compactToResponse(report store.CompactionReport) CompactResponse {
	return CompactResponse{
		Records:     report.Records,
		BytesBefore: report.BytesBefore,
		BytesAfter:  report.BytesAfter,
		Reclaimed:   report.Reclaimed(),
	}
}
