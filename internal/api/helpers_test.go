package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/phrazzld/scry-tasks/internal/store"
	"github.com/phrazzld/scry-tasks/internal/task"
	"github.com/stretchr/testify/require"
)

type fakeTasks struct {
	mu       sync.Mutex
	requests []task.Request
	filters  []task.Filter

	receipt    task.Receipt
	enqueueErr error
	onEnqueue  func(task.Request)

	snapshot  task.Snapshot
	statusErr error

	result store.ReadResult
	entry  store.IndexEntry
	getErr error

	entries []store.IndexEntry
	listErr error
}

func (f *fakeTasks) Enqueue(_ context.Context, req task.Request) (task.Receipt, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.enqueueErr != nil {
		return task.Receipt{}, f.enqueueErr
	}
	if f.onEnqueue != nil {
		f.onEnqueue(req)
	}
	return f.receipt, nil
}

func (f *fakeTasks) Status(context.Context) (task.Snapshot, error) {
	return f.snapshot, f.statusErr
}

func (f *fakeTasks) Get(context.Context, string) (store.ReadResult, store.IndexEntry, error) {
	return f.result, f.entry, f.getErr
}

func (f *fakeTasks) List(_ context.Context, filter task.Filter) ([]store.IndexEntry, error) {
	f.mu.Lock()
	f.filters = append(f.filters, filter)
	f.mu.Unlock()
	return f.entries, f.listErr
}

func (f *fakeTasks) Requests() []task.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]task.Request(nil), f.requests...)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestRouter mounts the handlers the way the server does, without auth.
func newTestRouter(tasks TaskService, admin AdminService) http.Handler {
	r := chi.NewRouter()
	th := NewTaskHandler(tasks, nil)
	r.Get("/health", th.Health)
	r.Get("/api/status", th.Status)
	r.Post("/api/tasks", th.CreateTask)
	r.Get("/api/tasks", th.ListTasks)
	r.Get("/api/tasks/{id}", th.GetTask)
	if admin != nil {
		ah := NewAdminHandler(admin)
		r.Delete("/api/tasks/{id}", ah.DeleteTask)
		r.Post("/api/admin/verify", ah.Verify)
		r.Post("/api/admin/compact", ah.Compact)
		r.Post("/api/admin/reindex", ah.Reindex)
	}
	return r
}

func doRequest(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewBuffer(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), v), "body: %s", rr.Body.String())
}
