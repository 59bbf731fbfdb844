package store

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/phrazzld/scry-tasks/internal/domain"
)

const filePerm = 0o644

// ReadResult carries a decoded record together with its integrity verdict.
// When Valid is false the record was decoded from a payload whose checksum
// did not match; it is returned so the caller can decide whether to use it.
type ReadResult struct {
	Record         *domain.TaskRecord
	Valid          bool
	StoredChecksum string
	ActualChecksum string
}

// Frame locates one frame inside the log.
type Frame struct {
	Offset int
	Size   int
}

// Log is the append-only record log. The whole log lives in memory and every
// mutating call rewrites the backing file before returning (write-through):
// durability is preferred over write throughput, and because the file is
// replaced atomically a concurrent reader only ever sees a complete log.
//
// A Log holds an exclusive lock on "<path>.lock" for as long as it is open,
// so only one writer process can use a data directory at a time.
type Log struct {
	path     string
	buf      []byte
	lock     *flock.Flock
	readOnly bool
	logger   *slog.Logger
}

// OpenLog opens (or creates) the log at path for reading and writing.
func OpenLog(path string, logger *slog.Logger) (*Log, error) {
	return openLog(path, false, logger)
}

// OpenLogReadOnly opens the log at path for inspection. It takes a shared
// lock, so it fails while a writer holds the log.
func OpenLogReadOnly(path string, logger *slog.Logger) (*Log, error) {
	return openLog(path, true, logger)
}

func openLog(path string, readOnly bool, logger *slog.Logger) (*Log, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, ioError("log", "open", path, err)
	}

	lock := flock.New(path + ".lock")
	var (
		ok  bool
		err error
	)
	if readOnly {
		ok, err = lock.TryRLock()
	} else {
		ok, err = lock.TryLock()
	}
	if err != nil {
		return nil, ioError("log", "lock", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLocked, path)
	}

	buf, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		_ = lock.Unlock()
		return nil, ioError("log", "load", path, err)
	}

	l := &Log{
		path:     path,
		buf:      buf,
		lock:     lock,
		readOnly: readOnly,
		logger:   logger.With("component", "record_log"),
	}
	l.logger.Debug("record log opened", "path", path, "bytes", len(buf), "read_only", readOnly)
	return l, nil
}

// Path returns the backing file path.
func (l *Log) Path() string {
	return l.path
}

// Len returns the size of the log in bytes.
func (l *Log) Len() int {
	return len(l.buf)
}

// Append encodes record, adds its frame to the end of the log and persists
// the log. It returns where the frame starts and how long it is.
func (l *Log) Append(record *domain.TaskRecord) (offset, size int, err error) {
	if l.readOnly {
		return 0, 0, ErrReadOnly
	}
	frame, err := Encode(record)
	if err != nil {
		return 0, 0, err
	}

	offset = len(l.buf)
	prev := l.buf
	l.buf = append(l.buf[:offset:offset], frame...)
	if err := l.persist(); err != nil {
		l.buf = prev
		l.logger.Error("append aborted",
			"error", err,
			"task_id", record.ID,
			"offset", offset,
			"frame_bytes", len(frame))
		return 0, 0, err
	}
	return offset, len(frame), nil
}

// Read decodes the frame at [offset, offset+size). A checksum mismatch is
// not an error: it is logged and reported through ReadResult.Valid.
func (l *Log) Read(offset, size int) (ReadResult, error) {
	frame, err := l.slice(offset, size)
	if err != nil {
		return ReadResult{}, err
	}

	record, err := Decode(frame)
	var ce *ChecksumError
	switch {
	case err == nil:
		sum := string(frame[checksumOffset:HeaderSize])
		return ReadResult{Record: record, Valid: true, StoredChecksum: sum, ActualChecksum: sum}, nil
	case errors.As(err, &ce):
		l.logger.Warn("checksum mismatch on read",
			"task_id", record.ID,
			"offset", offset,
			"stored_checksum", ce.Stored,
			"actual_checksum", ce.Actual,
			"payload_bytes", ce.Length)
		return ReadResult{Record: record, Valid: false, StoredChecksum: ce.Stored, ActualChecksum: ce.Actual}, nil
	default:
		return ReadResult{}, fmt.Errorf("read at offset %d: %w", offset, err)
	}
}

// Remove cuts the byte range [offset, offset+size) out of the log and
// persists the result. Every frame after the range moves down by size
// bytes; callers must re-derive offsets afterwards.
func (l *Log) Remove(offset, size int) error {
	if l.readOnly {
		return ErrReadOnly
	}
	if _, err := l.slice(offset, size); err != nil {
		return err
	}

	prev := l.buf
	next := make([]byte, 0, len(l.buf)-size)
	next = append(next, l.buf[:offset]...)
	next = append(next, l.buf[offset+size:]...)
	l.buf = next
	if err := l.persist(); err != nil {
		l.buf = prev
		l.logger.Error("remove aborted", "error", err, "offset", offset, "size", size)
		return err
	}
	return nil
}

// Update replaces the frame at [oldOffset, oldOffset+oldSize) with a new
// serialization of record appended at the end of the log. Serialized records
// vary in length, so this is always remove then append, never a byte patch.
// Both steps land in a single persisted write.
func (l *Log) Update(oldOffset, oldSize int, record *domain.TaskRecord) (offset, size int, err error) {
	if l.readOnly {
		return 0, 0, ErrReadOnly
	}
	if _, err := l.slice(oldOffset, oldSize); err != nil {
		return 0, 0, err
	}
	frame, err := Encode(record)
	if err != nil {
		return 0, 0, err
	}

	prev := l.buf
	next := make([]byte, 0, len(l.buf)-oldSize+len(frame))
	next = append(next, l.buf[:oldOffset]...)
	next = append(next, l.buf[oldOffset+oldSize:]...)
	offset = len(next)
	next = append(next, frame...)
	l.buf = next
	if err := l.persist(); err != nil {
		l.buf = prev
		l.logger.Error("update aborted",
			"error", err,
			"task_id", record.ID,
			"old_offset", oldOffset,
			"old_size", oldSize)
		return 0, 0, err
	}
	return offset, len(frame), nil
}

// Frames walks the log header by header. If the tail of the log cannot be
// parsed as a frame, the frames before it are returned along with an error.
func (l *Log) Frames() ([]Frame, error) {
	var frames []Frame
	for pos := 0; pos < len(l.buf); {
		size, err := FrameSize(l.buf, pos)
		if err != nil {
			return frames, err
		}
		frames = append(frames, Frame{Offset: pos, Size: size})
		pos += size
	}
	return frames, nil
}

// Replace swaps the whole log for buf and persists it. It is used by
// compaction, which rebuilds the log from live frames only.
func (l *Log) Replace(buf []byte) error {
	if l.readOnly {
		return ErrReadOnly
	}
	prev := l.buf
	l.buf = buf
	if err := l.persist(); err != nil {
		l.buf = prev
		l.logger.Error("replace aborted", "error", err, "bytes", len(buf))
		return err
	}
	return nil
}

// Close releases the directory lock.
func (l *Log) Close() error {
	if l.lock == nil {
		return nil
	}
	if err := l.lock.Unlock(); err != nil {
		return ioError("log", "unlock", l.path, err)
	}
	return nil
}

func (l *Log) slice(offset, size int) ([]byte, error) {
	if offset < 0 || size < HeaderSize || offset+size > len(l.buf) {
		return nil, fmt.Errorf("%w: offset %d size %d in %d-byte log", ErrOutOfRange, offset, size, len(l.buf))
	}
	return l.buf[offset : offset+size], nil
}

func (l *Log) persist() error {
	if err := writeFileAtomic(l.path, l.buf, filePerm); err != nil {
		return ioError("log", "persist", l.path, err)
	}
	return nil
}
