package store

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/phrazzld/scry-tasks/internal/domain"
)

// Options locates the files of a repository.
type Options struct {
	Dir       string
	LogFile   string
	IndexFile string
	ReadOnly  bool
}

// CompactionReport summarizes a compaction pass.
type CompactionReport struct {
	Records     int `json:"records"`
	BytesBefore int `json:"bytesBefore"`
	BytesAfter  int `json:"bytesAfter"`
}

// Reclaimed returns the number of bytes dropped by compaction.
func (r CompactionReport) Reclaimed() int {
	return r.BytesBefore - r.BytesAfter
}

// Repository keeps the log and the index in step. Every operation mutates
// the log first and the index second, so a crash in between leaves an index
// that points at a valid but stale record; Open detects that and reindexes.
//
// Removing a frame shifts every later frame down, so after each removal the
// repository shifts all later offsets and checks them against a rescan.
type Repository struct {
	log    *Log
	index  *Index
	logger *slog.Logger
	now    func() time.Time
}

// Open opens the log and index described by opts and reconciles them.
func Open(opts Options, logger *slog.Logger) (*Repository, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logPath := filepath.Join(opts.Dir, opts.LogFile)
	indexPath := filepath.Join(opts.Dir, opts.IndexFile)

	var (
		log *Log
		err error
	)
	if opts.ReadOnly {
		log, err = OpenLogReadOnly(logPath, logger)
	} else {
		log, err = OpenLog(logPath, logger)
	}
	if err != nil {
		return nil, err
	}

	index, found, err := OpenIndex(indexPath, logger)
	if err != nil {
		// An unreadable index is rebuilt from the log rather than fatal.
		logger.Error("index unreadable, rebuilding from log", "error", err, "path", indexPath)
		index = &Index{
			path:    indexPath,
			entries: make(map[string]IndexEntry),
			logger:  logger.With("component", "record_index"),
			now:     time.Now,
		}
		found = false
	}
	index.readOnly = opts.ReadOnly

	r := NewRepository(log, index, logger)
	if !found || !r.consistent() {
		logger.Warn("index does not match record log, reindexing",
			"index_found", found,
			"index_entries", index.Len(),
			"log_bytes", log.Len())
		if _, err := r.Reindex(); err != nil {
			_ = log.Close()
			return nil, fmt.Errorf("reindex on open: %w", err)
		}
	}
	return r, nil
}

// NewRepository wires an already opened log and index together.
func NewRepository(log *Log, index *Index, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{
		log:    log,
		index:  index,
		logger: logger.With("component", "record_repository"),
		now:    time.Now,
	}
}

// NextID reserves a fresh task id.
func (r *Repository) NextID() string {
	return r.index.AllocateID()
}

// Create appends a new record and registers it in the index.
func (r *Repository) Create(record *domain.TaskRecord) (IndexEntry, error) {
	if err := record.Validate(); err != nil {
		return IndexEntry{}, fmt.Errorf("%w: %w", ErrInvalidEntity, err)
	}
	if _, exists := r.index.Get(record.ID); exists {
		return IndexEntry{}, fmt.Errorf("%w: %s", ErrTaskExists, record.ID)
	}

	offset, size, err := r.log.Append(record)
	if err != nil {
		return IndexEntry{}, fmt.Errorf("append %s: %w", record.ID, err)
	}
	entry := r.entryFor(record, offset, size)
	if err := r.index.Put(entry); err != nil {
		return IndexEntry{}, fmt.Errorf("index %s: %w", record.ID, err)
	}

	r.logger.Debug("record created",
		"task_id", record.ID,
		"offset", offset,
		"size", size)
	return entry, nil
}

// Get reads the live record for id.
func (r *Repository) Get(id string) (ReadResult, IndexEntry, error) {
	entry, ok := r.index.Get(id)
	if !ok {
		return ReadResult{}, IndexEntry{}, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	res, err := r.log.Read(entry.Offset, entry.Size)
	if err != nil {
		return ReadResult{}, entry, fmt.Errorf("read %s: %w", id, err)
	}
	return res, entry, nil
}

// Entry returns the index entry for id.
func (r *Repository) Entry(id string) (IndexEntry, bool) {
	return r.index.Get(id)
}

// Update stores a new serialization of an existing record. The old frame is
// removed and the new one appended; offsets of every other record are then
// rebuilt.
func (r *Repository) Update(record *domain.TaskRecord) (IndexEntry, error) {
	if err := record.Validate(); err != nil {
		return IndexEntry{}, fmt.Errorf("%w: %w", ErrInvalidEntity, err)
	}
	old, ok := r.index.Get(record.ID)
	if !ok {
		return IndexEntry{}, fmt.Errorf("%w: %s", ErrTaskNotFound, record.ID)
	}

	offset, size, err := r.log.Update(old.Offset, old.Size, record)
	if err != nil {
		return IndexEntry{}, fmt.Errorf("update %s: %w", record.ID, err)
	}

	updated := r.entryFor(record, offset, size)
	if err := r.rebuildAfterRemoval(old, &updated); err != nil {
		return IndexEntry{}, fmt.Errorf("index %s: %w", record.ID, err)
	}
	entry, _ := r.index.Get(record.ID)
	return entry, nil
}

// Remove deletes the live record for id.
func (r *Repository) Remove(id string) error {
	old, ok := r.index.Get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	if err := r.log.Remove(old.Offset, old.Size); err != nil {
		return fmt.Errorf("remove %s: %w", id, err)
	}
	if err := r.rebuildAfterRemoval(old, nil); err != nil {
		return fmt.Errorf("index after removing %s: %w", id, err)
	}
	r.logger.Info("record removed", "task_id", id, "offset", old.Offset, "size", old.Size)
	return nil
}

// List returns every index entry in insertion order.
func (r *Repository) List() []IndexEntry {
	return r.index.All()
}

// Entries implements RecordSource.
func (r *Repository) Entries() []IndexEntry {
	return r.index.All()
}

// ReadAt implements RecordSource.
func (r *Repository) ReadAt(offset, size int) (ReadResult, error) {
	return r.log.Read(offset, size)
}

// Len returns the number of live records.
func (r *Repository) Len() int {
	return r.index.Len()
}

// LogSize returns the size of the log in bytes.
func (r *Repository) LogSize() int {
	return r.log.Len()
}

// Verify runs an integrity sweep over every indexed record.
func (r *Repository) Verify() IntegrityReport {
	return NewIntegrityChecker(r, r.logger).Verify()
}

// Reindex rebuilds the whole index by decoding every frame in the log. It
// returns the number of records indexed. Frames whose payload cannot be
// parsed are skipped and left for compaction to drop.
func (r *Repository) Reindex() (int, error) {
	frames, scanErr := r.log.Frames()
	if scanErr != nil {
		r.logger.Error("record log has an unreadable tail, indexing the readable prefix",
			"error", scanErr,
			"frames", len(frames))
	}

	now := r.now().UTC()
	entries := make([]IndexEntry, 0, len(frames))
	for _, f := range frames {
		res, err := r.log.Read(f.Offset, f.Size)
		if err != nil {
			r.logger.Warn("skipping unparseable frame", "offset", f.Offset, "size", f.Size, "error", err)
			continue
		}
		entry := r.entryFor(res.Record, f.Offset, f.Size)
		if prev, ok := r.index.Get(res.Record.ID); ok && prev.Status == entry.Status {
			entry.LastModified = prev.LastModified
		} else {
			entry.LastModified = now
		}
		entries = append(entries, entry)
	}

	if err := r.index.Reset(entries); err != nil {
		return 0, err
	}
	r.logger.Info("index rebuilt", "records", r.index.Len(), "frames", len(frames))
	return r.index.Len(), nil
}

// Compact rewrites the log so it holds only the live frames named by the
// index, in index order, and rewrites the index to match.
func (r *Repository) Compact() (CompactionReport, error) {
	report := CompactionReport{BytesBefore: r.log.Len()}

	entries := r.index.All()
	buf := make([]byte, 0, r.log.Len())
	compacted := make([]IndexEntry, 0, len(entries))
	for _, e := range entries {
		frame, err := r.log.slice(e.Offset, e.Size)
		if err != nil {
			r.logger.Error("dropping index entry with invalid range", "task_id", e.ID, "error", err)
			continue
		}
		e.Offset = len(buf)
		buf = append(buf, frame...)
		compacted = append(compacted, e)
	}

	if err := r.log.Replace(buf); err != nil {
		return report, fmt.Errorf("compact log: %w", err)
	}
	if err := r.index.Reset(compacted); err != nil {
		return report, fmt.Errorf("compact index: %w", err)
	}

	report.Records = len(compacted)
	report.BytesAfter = len(buf)
	r.logger.Info("record log compacted",
		"records", report.Records,
		"bytes_before", report.BytesBefore,
		"bytes_after", report.BytesAfter)
	return report, nil
}

// Close releases the log lock and flushes the index.
func (r *Repository) Close() error {
	flushErr := r.index.Flush()
	closeErr := r.log.Close()
	return errors.Join(flushErr, closeErr)
}

// rebuildAfterRemoval re-derives every offset after the frame described by
// removed has been cut out of the log. When updated is non-nil it is the new
// entry of the record that was re-appended.
//
// Offsets are shifted arithmetically so every entry survives, including
// entries whose payload is too corrupt to name its id. The log is then
// rescanned to check that each entry still starts on a frame boundary and to
// pick up frames that no entry covers.
func (r *Repository) rebuildAfterRemoval(removed IndexEntry, updated *IndexEntry) error {
	entries := shiftedEntries(r.index.All(), removed, updated)

	frames, scanErr := r.log.Frames()
	if scanErr != nil {
		r.logger.Error("record log has an unreadable tail, keeping shifted offsets", "error", scanErr)
		return r.index.Reset(entries)
	}

	sizes := make(map[int]int, len(frames))
	for _, f := range frames {
		sizes[f.Offset] = f.Size
	}
	covered := make(map[int]bool, len(entries))
	indexed := make(map[string]bool, len(entries))
	for _, e := range entries {
		indexed[e.ID] = true
		if size, ok := sizes[e.Offset]; !ok || size != e.Size {
			// kept so the next integrity sweep reports it
			r.logger.Error("index entry is off a frame boundary after removal",
				"task_id", e.ID,
				"offset", e.Offset,
				"size", e.Size)
			continue
		}
		covered[e.Offset] = true
	}

	for _, f := range frames {
		if covered[f.Offset] {
			continue
		}
		res, err := r.log.Read(f.Offset, f.Size)
		if err != nil {
			r.logger.Warn("unindexed frame cannot be parsed", "offset", f.Offset, "size", f.Size, "error", err)
			continue
		}
		if id := res.Record.ID; id == removed.ID || indexed[id] {
			r.logger.Warn("stale frame left in log", "task_id", id, "offset", f.Offset)
			continue
		}
		r.logger.Warn("recovered record missing from index", "task_id", res.Record.ID)
		entries = append(entries, r.entryFor(res.Record, f.Offset, f.Size))
		indexed[res.Record.ID] = true
	}
	return r.index.Reset(entries)
}

// shiftedEntries drops removed from entries and moves every entry that sat
// after it down by its size. updated, when non-nil, is appended last.
func shiftedEntries(entries []IndexEntry, removed IndexEntry, updated *IndexEntry) []IndexEntry {
	out := make([]IndexEntry, 0, len(entries)+1)
	for _, e := range entries {
		if e.ID == removed.ID {
			continue
		}
		if e.Offset > removed.Offset {
			e.Offset -= removed.Size
		}
		out = append(out, e)
	}
	if updated != nil {
		out = append(out, *updated)
	}
	return out
}

// consistent reports whether every index entry names a frame boundary in the
// log holding that entry's id, and whether every frame is indexed.
func (r *Repository) consistent() bool {
	frames, err := r.log.Frames()
	if err != nil {
		return false
	}
	if len(frames) != r.index.Len() {
		return false
	}
	sizes := make(map[int]int, len(frames))
	for _, f := range frames {
		sizes[f.Offset] = f.Size
	}
	for _, e := range r.index.All() {
		if size, ok := sizes[e.Offset]; !ok || size != e.Size {
			return false
		}
		// an unreadable payload is the integrity checker's concern, not a
		// reason to rebuild the index without it
		frame, _ := r.log.slice(e.Offset, e.Size)
		if id, err := peekID(frame); err == nil && id != e.ID {
			return false
		}
	}
	return true
}

func (r *Repository) entryFor(record *domain.TaskRecord, offset, size int) IndexEntry {
	return IndexEntry{
		ID:           record.ID,
		Offset:       offset,
		Size:         size,
		Status:       record.Status,
		Priority:     record.Priority,
		Category:     record.Category,
		CreatedAt:    record.CreatedAt,
		LastModified: r.now().UTC(),
	}
}
