package api

import (
	"context"

	"github.com/phrazzld/scry-tasks/internal/session"
	"github.com/phrazzld/scry-tasks/internal/store"
	"github.com/phrazzld/scry-tasks/internal/task"
)

// TaskService is the part of the dispatcher used by the public endpoints.
type TaskService interface {
	Enqueue(ctx context.Context, req task.Request) (task.Receipt, error)
	Status(ctx context.Context) (task.Snapshot, error)
	Get(ctx context.Context, id string) (store.ReadResult, store.IndexEntry, error)
	List(ctx context.Context, filter task.Filter) ([]store.IndexEntry, error)
}

// AdminService is the part of the dispatcher used by the admin endpoints.
type AdminService interface {
	Remove(ctx context.Context, id string) error
	Verify(ctx context.Context) (store.IntegrityReport, error)
	Compact(ctx context.Context) (store.CompactionReport, error)
	Reindex(ctx context.Context) (int, error)
}

// SessionRegistry tracks websocket sessions.
type SessionRegistry interface {
	Register(conn session.Conn) string
	Unregister(id string) bool
	Touch(id string) bool
	Send(id string, data []byte) error
	Count() int
}

// Compile-time checks
var (
	_ TaskService     = (*task.Dispatcher)(nil)
	_ AdminService    = (*task.Dispatcher)(nil)
	_ SessionRegistry = (*session.Registry)(nil)
)
