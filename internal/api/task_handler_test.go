package api

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/phrazzld/scry-tasks/internal/api/shared"
	"github.com/phrazzld/scry-tasks/internal/domain"
	"github.com/phrazzld/scry-tasks/internal/store"
	"github.com/phrazzld/scry-tasks/internal/task"
	"github.com/phrazzld/scry-tasks/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateTask(t *testing.T) {
	t.Parallel()

	t.Run("accepted", func(t *testing.T) {
		t.Parallel()

		tasks := &fakeTasks{receipt: task.Receipt{TaskID: "task-000001", QueuePosition: 1, EstimatedWaitSeconds: 2}}
		rr := doRequest(t, newTestRouter(tasks, nil), http.MethodPost, "/api/tasks", CreateTaskRequest{
			Content:  "urgent: fix login bug",
			Priority: "high",
		})

		require.Equal(t, http.StatusAccepted, rr.Code)
		var receipt task.Receipt
		decodeBody(t, rr, &receipt)
		assert.Equal(t, tasks.receipt, receipt)

		requests := tasks.Requests()
		require.Len(t, requests, 1)
		assert.Equal(t, "urgent: fix login bug", requests[0].Content)
		assert.Equal(t, "high", requests[0].Priority)
		assert.Empty(t, requests[0].SessionID)
	})

	tests := []struct {
		name       string
		body       interface{}
		enqueueErr error
		wantStatus int
		wantError  string
	}{
		{
			name:       "invalid json",
			body:       `{"content":`,
			wantStatus: http.StatusBadRequest,
			wantError:  "Invalid request format",
		},
		{
			name:       "unknown field",
			body:       `{"content":"x","owner":"me"}`,
			wantStatus: http.StatusBadRequest,
			wantError:  "Invalid request format",
		},
		{
			name:       "missing content",
			body:       `{"priority":"low"}`,
			wantStatus: http.StatusBadRequest,
			wantError:  "Invalid Content: required field",
		},
		{
			name:       "blank content rejected by dispatcher",
			body:       `{"content":"   "}`,
			enqueueErr: domain.ErrEmptyContent,
			wantStatus: http.StatusBadRequest,
			wantError:  "Content cannot be empty",
		},
		{
			name:       "dispatcher stopped",
			body:       `{"content":"write docs"}`,
			enqueueErr: task.ErrDispatcherStopped,
			wantStatus: http.StatusServiceUnavailable,
			wantError:  "Service is shutting down",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			tasks := &fakeTasks{enqueueErr: tt.enqueueErr}
			rr := doRequest(t, newTestRouter(tasks, nil), http.MethodPost, "/api/tasks", tt.body)

			assert.Equal(t, tt.wantStatus, rr.Code)
			var resp shared.ErrorResponse
			decodeBody(t, rr, &resp)
			assert.Equal(t, tt.wantError, resp.Error)
		})
	}
}

func TestListTasks(t *testing.T) {
	t.Parallel()

	entries := []store.IndexEntry{
		{ID: "task-000001", Status: domain.TaskStatusPending, Priority: domain.PriorityHigh},
		{ID: "task-000002", Status: domain.TaskStatusPending, Priority: domain.PriorityLow},
	}

	t.Run("with filter", func(t *testing.T) {
		t.Parallel()

		tasks := &fakeTasks{entries: entries}
		rr := doRequest(t, newTestRouter(tasks, nil), http.MethodGet, "/api/tasks?status=PENDING", nil)

		require.Equal(t, http.StatusOK, rr.Code)
		var resp TaskListResponse
		decodeBody(t, rr, &resp)
		assert.Equal(t, 2, resp.Count)
		assert.Equal(t, "task-000002", resp.Tasks[1].ID)
		require.Len(t, tasks.filters, 1)
		assert.Equal(t, domain.TaskStatusPending, tasks.filters[0].Status)
	})

	t.Run("invalid status", func(t *testing.T) {
		t.Parallel()

		tasks := &fakeTasks{entries: entries}
		rr := doRequest(t, newTestRouter(tasks, nil), http.MethodGet, "/api/tasks?status=done", nil)

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Empty(t, tasks.filters)
	})
}

func TestGetTask(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, time.May, 2, 9, 0, 0, 0, time.UTC)
	record, err := domain.NewTaskRecord("task-000001", "write docs", domain.PriorityMedium, "docs", now)
	require.NoError(t, err)

	t.Run("invalid checksum still served", func(t *testing.T) {
		t.Parallel()

		tasks := &fakeTasks{
			result: store.ReadResult{Record: record, Valid: false, StoredChecksum: "aa", ActualChecksum: "bb"},
			entry:  store.IndexEntry{ID: "task-000001", Offset: 0, Size: 120},
		}
		rr := doRequest(t, newTestRouter(tasks, nil), http.MethodGet, "/api/tasks/task-000001", nil)

		require.Equal(t, http.StatusOK, rr.Code)
		var resp TaskResponse
		decodeBody(t, rr, &resp)
		assert.False(t, resp.Valid)
		require.NotNil(t, resp.Task)
		assert.Equal(t, "write docs", resp.Task.Description)
		assert.Equal(t, 120, resp.Entry.Size)
	})

	t.Run("not found", func(t *testing.T) {
		t.Parallel()

		tasks := &fakeTasks{getErr: store.ErrTaskNotFound}
		rr := doRequest(t, newTestRouter(tasks, nil), http.MethodGet, "/api/tasks/task-000404", nil)

		assert.Equal(t, http.StatusNotFound, rr.Code)
		assert.True(t, strings.Contains(rr.Body.String(), "Task not found"))
	})
}

func TestStatusEndpoint(t *testing.T) {
	t.Parallel()

	tasks := &fakeTasks{snapshot: task.Snapshot{
		QueueLength:  3,
		Waiting:      2,
		IsProcessing: true,
		Uptime:       1500 * time.Millisecond,
		Stats: task.Stats{
			TotalTasks: 5,
			ByStatus:   map[domain.TaskStatus]int{domain.TaskStatusPending: 2, domain.TaskStatusCompleted: 3},
			ByPriority: map[domain.Priority]int{domain.PriorityUrgent: 1},
			Processed:  3,
			LastIntegrity: &store.IntegrityReport{
				Valid:   4,
				Invalid: 1,
			},
		},
	}}
	rr := doRequest(t, newTestRouter(tasks, nil), http.MethodGet, "/api/status", nil)

	require.Equal(t, http.StatusOK, rr.Code)
	var status wire.Status
	decodeBody(t, rr, &status)
	assert.Equal(t, wire.TypeStatus, status.Type)
	assert.Equal(t, 3, status.QueueLength)
	assert.True(t, status.IsProcessing)
	assert.Equal(t, int64(1500), status.UptimeMs)
	assert.Equal(t, 2, status.Stats.ByStatus["pending"])
	assert.Equal(t, 1, status.Stats.ByPriority["urgent"])
	assert.Equal(t, 4, status.Stats.IntegrityValid)
	assert.Equal(t, 1, status.Stats.IntegrityInvalid)
	assert.Zero(t, status.ConnectedClients)
}

func TestHealth(t *testing.T) {
	t.Parallel()

	rr := doRequest(t, newTestRouter(&fakeTasks{}, nil), http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp HealthResponse
	decodeBody(t, rr, &resp)
	assert.Equal(t, "ok", resp.Status)
}
