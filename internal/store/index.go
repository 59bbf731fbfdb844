package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/phrazzld/scry-tasks/internal/domain"
)

// IndexVersion is written into every index file.
const IndexVersion = 1

// TaskIDPrefix prefixes every generated task id.
const TaskIDPrefix = "task-"

// IndexEntry locates the live frame of one task and carries the summary
// fields needed to list tasks without decoding them.
type IndexEntry struct {
	ID           string            `json:"id"`
	Offset       int               `json:"offset"`
	Size         int               `json:"size"`
	Status       domain.TaskStatus `json:"status"`
	Priority     domain.Priority   `json:"priority"`
	Category     string            `json:"category"`
	CreatedAt    time.Time         `json:"createdAt"`
	LastModified time.Time         `json:"lastModified"`
}

// Index maps task ids to index entries. Iteration follows insertion order;
// re-putting an existing id moves it to the end, mirroring the log where an
// updated record is appended after every other frame.
//
// Every mutation is written through to the index file.
type Index struct {
	path     string
	readOnly bool
	entries  map[string]IndexEntry
	order    []string
	nextID   int64
	updated  time.Time
	logger   *slog.Logger
	now      func() time.Time
}

type indexFile struct {
	Version     int         `json:"version"`
	NextID      int64       `json:"nextId"`
	TotalTasks  int         `json:"totalTasks"`
	LastUpdated time.Time   `json:"lastUpdated"`
	Entries     []indexPair `json:"entries"`
}

// indexPair serializes as a two element array: [id, entry].
type indexPair struct {
	ID    string
	Entry IndexEntry
}

func (p indexPair) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{p.ID, p.Entry})
}

func (p *indexPair) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) != 2 {
		return fmt.Errorf("index entry has %d elements, want 2", len(raw))
	}
	if err := json.Unmarshal(raw[0], &p.ID); err != nil {
		return err
	}
	return json.Unmarshal(raw[1], &p.Entry)
}

// OpenIndex loads the index file at path. A missing file yields an empty
// index; the second return value reports whether a file was found.
func OpenIndex(path string, logger *slog.Logger) (*Index, bool, error) {
	if logger == nil {
		logger = slog.Default()
	}
	ix := &Index{
		path:    path,
		entries: make(map[string]IndexEntry),
		logger:  logger.With("component", "record_index"),
		now:     time.Now,
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return ix, false, nil
	}
	if err != nil {
		return nil, false, ioError("index", "load", path, err)
	}

	var file indexFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, true, NewStoreError("index", "load", path, fmt.Errorf("%w: %v", ErrMalformedFrame, err))
	}
	if file.Version != IndexVersion {
		ix.logger.Warn("index version differs", "found", file.Version, "expected", IndexVersion)
	}
	for _, pair := range file.Entries {
		if _, seen := ix.entries[pair.ID]; seen {
			ix.logger.Warn("duplicate id in index file, keeping last", "task_id", pair.ID)
			ix.order = slices.DeleteFunc(ix.order, func(id string) bool { return id == pair.ID })
		}
		ix.entries[pair.ID] = pair.Entry
		ix.order = append(ix.order, pair.ID)
	}
	ix.nextID = max(file.NextID, ix.highestID())
	ix.updated = file.LastUpdated
	return ix, true, nil
}

// AllocateID reserves the next task id. The counter is persisted with the
// next write, so an id burnt by a failed append is never handed out again
// within the process.
func (ix *Index) AllocateID() string {
	ix.nextID++
	return FormatTaskID(ix.nextID)
}

// Get returns the entry for id.
func (ix *Index) Get(id string) (IndexEntry, bool) {
	e, ok := ix.entries[id]
	return e, ok
}

// Put inserts or replaces the entry for entry.ID and persists the index.
func (ix *Index) Put(entry IndexEntry) error {
	prevEntry, existed := ix.entries[entry.ID]
	prevOrder := slices.Clone(ix.order)

	if existed {
		ix.order = slices.DeleteFunc(ix.order, func(id string) bool { return id == entry.ID })
	}
	ix.entries[entry.ID] = entry
	ix.order = append(ix.order, entry.ID)

	if err := ix.save(); err != nil {
		if existed {
			ix.entries[entry.ID] = prevEntry
		} else {
			delete(ix.entries, entry.ID)
		}
		ix.order = prevOrder
		return err
	}
	return nil
}

// Delete removes id from the index and persists it. It reports whether the
// id was present.
func (ix *Index) Delete(id string) (bool, error) {
	prev, ok := ix.entries[id]
	if !ok {
		return false, nil
	}
	prevOrder := slices.Clone(ix.order)
	delete(ix.entries, id)
	ix.order = slices.DeleteFunc(ix.order, func(x string) bool { return x == id })
	if err := ix.save(); err != nil {
		ix.entries[id] = prev
		ix.order = prevOrder
		return false, err
	}
	return true, nil
}

// Reset replaces every entry, keeping the id counter monotonic, and persists
// the index.
func (ix *Index) Reset(entries []IndexEntry) error {
	prevEntries, prevOrder, prevNext := ix.entries, ix.order, ix.nextID

	ix.entries = make(map[string]IndexEntry, len(entries))
	ix.order = make([]string, 0, len(entries))
	for _, e := range entries {
		if _, seen := ix.entries[e.ID]; seen {
			ix.order = slices.DeleteFunc(ix.order, func(id string) bool { return id == e.ID })
		}
		ix.entries[e.ID] = e
		ix.order = append(ix.order, e.ID)
	}
	ix.nextID = max(ix.nextID, ix.highestID())

	if err := ix.save(); err != nil {
		ix.entries, ix.order, ix.nextID = prevEntries, prevOrder, prevNext
		return err
	}
	return nil
}

// All returns every entry in insertion order.
func (ix *Index) All() []IndexEntry {
	out := make([]IndexEntry, 0, len(ix.order))
	for _, id := range ix.order {
		out = append(out, ix.entries[id])
	}
	return out
}

// Len returns the number of live entries.
func (ix *Index) Len() int {
	return len(ix.order)
}

// NextID returns the current value of the id counter.
func (ix *Index) NextID() int64 {
	return ix.nextID
}

// LastUpdated returns when the index was last written.
func (ix *Index) LastUpdated() time.Time {
	return ix.updated
}

// Flush persists the index without changing it.
func (ix *Index) Flush() error {
	return ix.save()
}

func (ix *Index) save() error {
	updated := ix.now().UTC()
	if ix.readOnly {
		ix.updated = updated
		return nil
	}
	file := indexFile{
		Version:     IndexVersion,
		NextID:      ix.nextID,
		TotalTasks:  len(ix.order),
		LastUpdated: updated,
		Entries:     make([]indexPair, 0, len(ix.order)),
	}
	for _, id := range ix.order {
		file.Entries = append(file.Entries, indexPair{ID: id, Entry: ix.entries[id]})
	}

	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return NewStoreError("index", "persist", ix.path, err)
	}
	if err := writeFileAtomic(ix.path, data, filePerm); err != nil {
		ix.logger.Error("index write failed", "error", err, "path", ix.path, "entries", len(ix.order))
		return ioError("index", "persist", ix.path, err)
	}
	ix.updated = updated
	return nil
}

func (ix *Index) highestID() int64 {
	var highest int64
	for id := range ix.entries {
		if n, ok := ParseTaskID(id); ok && n > highest {
			highest = n
		}
	}
	return highest
}

// FormatTaskID renders the n-th task id.
func FormatTaskID(n int64) string {
	return fmt.Sprintf("%s%06d", TaskIDPrefix, n)
}

// ParseTaskID extracts the counter from an id produced by FormatTaskID.
func ParseTaskID(id string) (int64, bool) {
	rest, ok := strings.CutPrefix(id, TaskIDPrefix)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
