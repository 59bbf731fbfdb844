package mocks

import (
	"context"
	"sync"

	"github.com/phrazzld/scry-tasks/internal/store"
)

// MockAdminService implements the dispatcher's maintenance operations for
// testing the admin endpoints.
type MockAdminService struct {
	RemoveFn  func(ctx context.Context, id string) error
	VerifyFn  func(ctx context.Context) (store.IntegrityReport, error)
	CompactFn func(ctx context.Context) (store.CompactionReport, error)
	ReindexFn func(ctx context.Context) (int, error)

	// Default values used when functions aren't explicitly defined
	Report     store.IntegrityReport
	Compaction store.CompactionReport
	Reindexed  int
	Err        error

	mu      sync.Mutex
	removed []string
}

// Remove records id and returns Err unless RemoveFn is set.
func (m *MockAdminService) Remove(ctx context.Context, id string) error {
	if m.RemoveFn != nil {
		return m.RemoveFn(ctx, id)
	}
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	m.removed = append(m.removed, id)
	m.mu.Unlock()
	return nil
}

// Removed returns the ids passed to successful Remove calls.
func (m *MockAdminService) Removed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.removed...)
}

// Verify returns Report and Err unless VerifyFn is set.
func (m *MockAdminService) Verify(ctx context.Context) (store.IntegrityReport, error) {
	if m.VerifyFn != nil {
		return m.VerifyFn(ctx)
	}
	return m.Report, m.Err
}

// Compact returns Compaction and Err unless CompactFn is set.
func (m *MockAdminService) Compact(ctx context.Context) (store.CompactionReport, error) {
	if m.CompactFn != nil {
		return m.CompactFn(ctx)
	}
	return m.Compaction, m.Err
}

// Reindex returns Reindexed and Err unless ReindexFn is set.
func (m *MockAdminService) Reindex(ctx context.Context) (int, error) {
	if m.ReindexFn != nil {
		return m.ReindexFn(ctx)
	}
	return m.Reindexed, m.Err
}
