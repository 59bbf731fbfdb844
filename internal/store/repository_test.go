package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phrazzld/scry-tasks/internal/domain"
)

func createRecords(t *testing.T, repo *Repository, contents ...string) []*domain.TaskRecord {
	t.Helper()
	records := make([]*domain.TaskRecord, 0, len(contents))
	for _, content := range contents {
		record := newTestRecord(t, repo.NextID(), content, domain.PriorityMedium)
		_, err := repo.Create(record)
		require.NoError(t, err)
		records = append(records, record)
	}
	return records
}

func TestRepository_CreateAndGet(t *testing.T) {
	t.Parallel()

	repo := openTestRepository(t, t.TempDir())
	record := newTestRecord(t, repo.NextID(), "urgent: fix login bug", domain.PriorityUrgent)

	entry, err := repo.Create(record)
	require.NoError(t, err)
	assert.Equal(t, record.ID, entry.ID)
	assert.Equal(t, domain.PriorityUrgent, entry.Priority)
	assert.Equal(t, domain.TaskStatusPending, entry.Status)

	res, got, err := repo.Get(record.ID)
	require.NoError(t, err)
	assert.True(t, res.Valid)
	assert.Equal(t, record, res.Record)
	assert.Equal(t, entry, got)

	_, err = repo.Create(record)
	assert.ErrorIs(t, err, ErrTaskExists)

	_, _, err = repo.Get("task-999999")
	assert.ErrorIs(t, err, ErrTaskNotFound)
	assert.True(t, IsNotFoundError(err))
}

func TestRepository_CreateRejectsInvalidRecord(t *testing.T) {
	t.Parallel()

	repo := openTestRepository(t, t.TempDir())
	_, err := repo.Create(&domain.TaskRecord{ID: "task-000001", Status: domain.TaskStatusPending})
	assert.ErrorIs(t, err, ErrInvalidEntity)
	assert.ErrorIs(t, err, domain.ErrInvalidPriority)
	assert.Zero(t, repo.LogSize())
}

func TestRepository_UpdateKeepsIndexConsistent(t *testing.T) {
	t.Parallel()

	repo := openTestRepository(t, t.TempDir())
	records := createRecords(t, repo, "alpha", "bravo", "charlie")
	target := records[0]
	before, ok := repo.Entry(target.ID)
	require.True(t, ok)

	require.NoError(t, target.Start(target.CreatedAt))
	entry, err := repo.Update(target)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusInProgress, entry.Status)
	assert.NotEqual(t, before.Offset, entry.Offset)

	// The index points at the new serialization of the updated record...
	res, err := repo.ReadAt(entry.Offset, entry.Size)
	require.NoError(t, err)
	assert.Equal(t, target, res.Record)

	// ...and every other record is still readable at its (shifted) offset.
	for _, other := range records[1:] {
		res, _, err := repo.Get(other.ID)
		require.NoError(t, err)
		assert.Equal(t, other, res.Record)
	}

	// The old offset is no longer listed for the id.
	for _, e := range repo.List() {
		if e.ID == target.ID {
			assert.Equal(t, entry.Offset, e.Offset)
		}
	}
	assert.Equal(t, 3, repo.Len())
	assert.True(t, repo.consistent())
}

func TestRepository_RemoveShiftsLaterRecords(t *testing.T) {
	t.Parallel()

	repo := openTestRepository(t, t.TempDir())
	records := createRecords(t, repo, "first", "second, somewhat longer", "third", "fourth")

	require.NoError(t, repo.Remove(records[1].ID))

	_, _, err := repo.Get(records[1].ID)
	assert.ErrorIs(t, err, ErrTaskNotFound)

	for _, r := range []*domain.TaskRecord{records[0], records[2], records[3]} {
		res, _, err := repo.Get(r.ID)
		require.NoError(t, err, r.ID)
		assert.True(t, res.Valid)
		assert.Equal(t, r, res.Record)
	}

	report := repo.Verify()
	assert.Equal(t, 3, report.Valid)
	assert.Zero(t, report.Invalid)

	assert.ErrorIs(t, repo.Remove(records[1].ID), ErrTaskNotFound)
}

func TestRepository_CorruptRecordSurvivesUnrelatedMutations(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	repo, err := Open(testOptions(dir), discardLogger())
	require.NoError(t, err)
	records := createRecords(t, repo, "alpha", "bravo", "charlie", "delta")
	corrupt := records[0]

	// Break the opening brace of the payload so not even the id can be read.
	entry, ok := repo.Entry(corrupt.ID)
	require.True(t, ok)
	damaged := append([]byte(nil), repo.log.buf...)
	damaged[entry.Offset+HeaderSize] ^= 0xff
	require.NoError(t, repo.log.Replace(damaged))
	require.Equal(t, 1, repo.Verify().Invalid)

	require.NoError(t, records[2].Start(records[2].CreatedAt))
	_, err = repo.Update(records[2])
	require.NoError(t, err)
	require.NoError(t, repo.Remove(records[1].ID))

	report := repo.Verify()
	assert.Equal(t, 2, report.Valid)
	assert.Equal(t, 1, report.Invalid)
	assert.Equal(t, []string{corrupt.ID}, report.Corrupt)
	_, ok = repo.Entry(corrupt.ID)
	assert.True(t, ok, "corrupt record dropped from the index")

	for _, r := range []*domain.TaskRecord{records[2], records[3]} {
		res, _, err := repo.Get(r.ID)
		require.NoError(t, err, r.ID)
		assert.True(t, res.Valid)
		assert.Equal(t, r, res.Record)
	}

	// Reopening must not reindex the corrupt record away either.
	require.NoError(t, repo.Close())
	reopened := openTestRepository(t, dir)
	assert.Equal(t, 3, reopened.Len())
	assert.Equal(t, 1, reopened.Verify().Invalid)
}

func TestRepository_RecordsSurviveReopen(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	repo, err := Open(testOptions(dir), discardLogger())
	require.NoError(t, err)
	records := createRecords(t, repo, "one", "two")
	require.NoError(t, repo.Remove(records[0].ID))
	require.NoError(t, repo.Close())

	reopened := openTestRepository(t, dir)
	res, _, err := reopened.Get(records[1].ID)
	require.NoError(t, err)
	assert.Equal(t, records[1], res.Record)
	assert.Equal(t, "task-000003", reopened.NextID())
}

func TestRepository_OpenReindexesStaleIndex(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	repo, err := Open(testOptions(dir), discardLogger())
	require.NoError(t, err)
	records := createRecords(t, repo, "one", "two", "three")
	staleIndex, err := os.ReadFile(filepath.Join(dir, "index.json"))
	require.NoError(t, err)

	require.NoError(t, records[0].Start(records[0].CreatedAt))
	_, err = repo.Update(records[0])
	require.NoError(t, err)
	require.NoError(t, repo.Close())

	// Simulate a crash between the log write and the index write.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.json"), staleIndex, 0o644))

	reopened := openTestRepository(t, dir)
	for _, r := range records {
		res, entry, err := reopened.Get(r.ID)
		require.NoError(t, err)
		assert.Equal(t, r, res.Record)
		assert.Equal(t, r.Status, entry.Status)
	}
}

func TestRepository_OpenRecoversUnindexedAppend(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	repo, err := Open(testOptions(dir), discardLogger())
	require.NoError(t, err)
	records := createRecords(t, repo, "indexed")
	indexBefore, err := os.ReadFile(filepath.Join(dir, "index.json"))
	require.NoError(t, err)
	records = append(records, createRecords(t, repo, "appended before crash")...)
	require.NoError(t, repo.Close())
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.json"), indexBefore, 0o644))

	reopened := openTestRepository(t, dir)
	assert.Equal(t, 2, reopened.Len())
	res, _, err := reopened.Get(records[1].ID)
	require.NoError(t, err)
	assert.Equal(t, records[1], res.Record)
}

func TestRepository_CompactDropsUnreachableBytes(t *testing.T) {
	t.Parallel()

	repo := openTestRepository(t, t.TempDir())
	records := createRecords(t, repo, "keep me", "keep me too")

	// A torn tail: half a header that no frame scan can read.
	garbage := append(append([]byte(nil), repo.log.buf...), 0, 0, 0, 9)
	require.NoError(t, repo.log.Replace(garbage))

	report, err := repo.Compact()
	require.NoError(t, err)
	assert.Equal(t, 2, report.Records)
	assert.Equal(t, 4, report.Reclaimed())

	frames, err := repo.log.Frames()
	require.NoError(t, err)
	assert.Len(t, frames, 2)
	for _, r := range records {
		res, _, err := repo.Get(r.ID)
		require.NoError(t, err)
		assert.Equal(t, r, res.Record)
	}
}

func TestRepository_ReindexRebuildsSummaryFields(t *testing.T) {
	t.Parallel()

	repo := openTestRepository(t, t.TempDir())
	records := createRecords(t, repo, "a", "b")
	require.NoError(t, repo.index.Reset(nil))
	assert.Zero(t, repo.Len())

	n, err := repo.Reindex()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	for _, r := range records {
		entry, ok := repo.Entry(r.ID)
		require.True(t, ok)
		assert.Equal(t, r.Priority, entry.Priority)
		assert.Equal(t, r.Category, entry.Category)
	}
}

func TestRepository_ReadOnlyOpenDoesNotWrite(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	repo, err := Open(testOptions(dir), discardLogger())
	require.NoError(t, err)
	createRecords(t, repo, "one")
	require.NoError(t, repo.Close())
	require.NoError(t, os.Remove(filepath.Join(dir, "index.json")))

	opts := testOptions(dir)
	opts.ReadOnly = true
	ro, err := Open(opts, discardLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = ro.Close() })

	assert.Equal(t, 1, ro.Len())
	_, err = os.Stat(filepath.Join(dir, "index.json"))
	assert.True(t, os.IsNotExist(err))
}
