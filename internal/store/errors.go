package store

import (
	"errors"
	"fmt"
)

// Common store errors used across the record store.
var (
	// ErrNotFound is returned when a requested entity does not exist in the store.
	ErrNotFound = errors.New("entity not found")

	// ErrDuplicate is returned when an operation would create a second live
	// record for an id that already exists.
	ErrDuplicate = errors.New("entity already exists")

	// ErrInvalidEntity is returned when an entity fails validation before
	// being stored. Check the wrapped error for specific validation details.
	ErrInvalidEntity = errors.New("invalid entity")

	// ErrIO is returned when reading or writing the backing files fails.
	// The operation that hit it was aborted and in-memory state rolled back.
	ErrIO = errors.New("storage i/o failure")

	// ErrChecksumMismatch indicates that a frame's payload does not match the
	// checksum stored in its header.
	ErrChecksumMismatch = errors.New("checksum mismatch")

	// ErrMalformedFrame is returned when a byte range cannot be interpreted as
	// a frame: too short, wrong declared length or an unparseable payload.
	ErrMalformedFrame = errors.New("malformed frame")

	// ErrOutOfRange is returned when an offset/size pair falls outside the log.
	ErrOutOfRange = errors.New("byte range out of bounds")

	// ErrLocked is returned when another process holds the data directory lock.
	ErrLocked = errors.New("record log is locked by another process")

	// ErrReadOnly is returned when a mutation is attempted on a log opened
	// for reading only.
	ErrReadOnly = errors.New("record log is read-only")

	// ErrTaskNotFound indicates that no live record exists for the task id.
	ErrTaskNotFound = fmt.Errorf("%w: task", ErrNotFound)

	// ErrTaskExists indicates that a live record already exists for the task id.
	ErrTaskExists = fmt.Errorf("%w: task", ErrDuplicate)
)

// IsNotFoundError checks if the error is any kind of "not found" error.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// StoreError is a custom error type for store-specific errors with additional context.
type StoreError struct {
	Entity    string // The entity type (e.g., "log", "index")
	Operation string // The operation that failed (e.g., "append", "persist")
	Message   string // Error message
	Err       error  // Original error
}

// Error implements the error interface for StoreError.
func (e *StoreError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s operation on %s failed: %s: %v", e.Operation, e.Entity, e.Message, e.Err)
	}
	return fmt.Sprintf("%s operation on %s failed: %s", e.Operation, e.Entity, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError creates a new StoreError with the given entity, operation, message, and wrapped error.
func NewStoreError(entity, operation, message string, err error) *StoreError {
	return &StoreError{
		Entity:    entity,
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}

// ioError wraps an underlying filesystem error so that it matches both ErrIO
// and the original cause.
func ioError(entity, operation, path string, err error) error {
	return NewStoreError(entity, operation, path, fmt.Errorf("%w: %w", ErrIO, err))
}

// ChecksumError describes a frame whose payload digest differs from the
// digest recorded in its header.
type ChecksumError struct {
	Stored string
	Actual string
	Length int
}

// Error implements the error interface for ChecksumError.
func (e *ChecksumError) Error() string {
	return fmt.Sprintf("checksum mismatch: stored %s, computed %s over %d bytes", e.Stored, e.Actual, e.Length)
}

// Unwrap lets errors.Is match ErrChecksumMismatch.
func (e *ChecksumError) Unwrap() error {
	return ErrChecksumMismatch
}
