package store

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/phrazzld/scry-tasks/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testOptions(dir string) Options {
	return Options{Dir: dir, LogFile: "tasks.bin", IndexFile: "index.json"}
}

// openTestRepository opens a repository in dir and closes it when the test ends.
func openTestRepository(t *testing.T, dir string) *Repository {
	t.Helper()
	repo, err := Open(testOptions(dir), discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func newTestRecord(t *testing.T, id, content string, priority domain.Priority) *domain.TaskRecord {
	t.Helper()
	record, err := domain.NewTaskRecord(id, content, priority, "general",
		time.Date(2025, time.April, 1, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	return record
}
