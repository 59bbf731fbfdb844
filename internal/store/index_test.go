package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/scry-tasks/internal/domain"
)

func testEntry(id string, offset, size int) IndexEntry {
	return IndexEntry{
		ID:           id,
		Offset:       offset,
		Size:         size,
		Status:       domain.TaskStatusPending,
		Priority:     domain.PriorityMedium,
		Category:     "general",
		CreatedAt:    time.Date(2025, time.April, 1, 12, 0, 0, 0, time.UTC),
		LastModified: time.Date(2025, time.April, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestIndex_PutGetDeleteOrder(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "index.json")
	ix, found, err := OpenIndex(path, discardLogger())
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, ix.Put(testEntry("task-000001", 0, 100)))
	require.NoError(t, ix.Put(testEntry("task-000002", 100, 120)))
	require.NoError(t, ix.Put(testEntry("task-000003", 220, 90)))

	got, ok := ix.Get("task-000002")
	require.True(t, ok)
	assert.Equal(t, 100, got.Offset)

	// Re-putting moves the id to the end.
	require.NoError(t, ix.Put(testEntry("task-000001", 310, 110)))
	ids := func() []string {
		var out []string
		for _, e := range ix.All() {
			out = append(out, e.ID)
		}
		return out
	}
	assert.Equal(t, []string{"task-000002", "task-000003", "task-000001"}, ids())

	deleted, err := ix.Delete("task-000003")
	require.NoError(t, err)
	assert.True(t, deleted)
	deleted, err = ix.Delete("task-000003")
	require.NoError(t, err)
	assert.False(t, deleted)
	assert.Equal(t, []string{"task-000002", "task-000001"}, ids())
	assert.Equal(t, 2, ix.Len())
}

func TestIndex_FileFormat(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "index.json")
	ix, _, err := OpenIndex(path, discardLogger())
	require.NoError(t, err)

	id := ix.AllocateID()
	assert.Equal(t, "task-000001", id)
	require.NoError(t, ix.Put(testEntry(id, 0, 64)))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var raw struct {
		Version     int                 `json:"version"`
		NextID      int64               `json:"nextId"`
		TotalTasks  int                 `json:"totalTasks"`
		LastUpdated time.Time           `json:"lastUpdated"`
		Entries     [][]json.RawMessage `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, IndexVersion, raw.Version)
	assert.Equal(t, int64(1), raw.NextID)
	assert.Equal(t, 1, raw.TotalTasks)
	assert.False(t, raw.LastUpdated.IsZero())
	require.Len(t, raw.Entries, 1)
	require.Len(t, raw.Entries[0], 2)

	var key string
	require.NoError(t, json.Unmarshal(raw.Entries[0][0], &key))
	assert.Equal(t, id, key)

	var entry IndexEntry
	require.NoError(t, json.Unmarshal(raw.Entries[0][1], &entry))
	assert.Equal(t, 64, entry.Size)
}

func TestIndex_ReopenKeepsCounterMonotonic(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "index.json")
	ix, _, err := OpenIndex(path, discardLogger())
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		require.NoError(t, ix.Put(testEntry(ix.AllocateID(), i*50, 50)))
	}
	_, err = ix.Delete("task-000003")
	require.NoError(t, err)

	reopened, found, err := OpenIndex(path, discardLogger())
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 2, reopened.Len())
	assert.Equal(t, "task-000004", reopened.AllocateID())
}

func TestIndex_ResetRaisesCounterToHighestID(t *testing.T) {
	t.Parallel()

	ix, _, err := OpenIndex(filepath.Join(t.TempDir(), "index.json"), discardLogger())
	require.NoError(t, err)
	require.NoError(t, ix.Reset([]IndexEntry{testEntry("task-000041", 0, 50), testEntry("task-000007", 50, 50)}))
	assert.Equal(t, int64(41), ix.NextID())
	assert.Equal(t, "task-000042", ix.AllocateID())
}

func TestParseTaskID(t *testing.T) {
	t.Parallel()

	n, ok := ParseTaskID(FormatTaskID(1234567))
	assert.True(t, ok)
	assert.Equal(t, int64(1234567), n)

	_, ok = ParseTaskID("memo-000001")
	assert.False(t, ok)
	_, ok = ParseTaskID("task-abc")
	assert.False(t, ok)
}
