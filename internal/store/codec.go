package store

import (
	"crypto/md5"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/phrazzld/scry-tasks/internal/domain"
)

// Frame layout, all integers big-endian:
//
//	[0:4)   payload length L
//	[4:8)   reserved, zero
//	[8:40)  hex MD5 of the payload
//	[40:40+L) JSON payload
const (
	lengthOffset   = 0
	reservedOffset = 4
	checksumOffset = 8
	checksumSize   = 32

	// HeaderSize is the fixed size of a frame header in bytes.
	HeaderSize = checksumOffset + checksumSize
)

// Encode serializes a record into a checksummed frame.
func Encode(record *domain.TaskRecord) ([]byte, error) {
	if record == nil {
		return nil, fmt.Errorf("%w: nil record", ErrInvalidEntity)
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("%w: encode payload: %v", ErrInvalidEntity, err)
	}
	if uint64(len(payload)) > uint64(^uint32(0)) {
		return nil, fmt.Errorf("%w: payload of %d bytes exceeds frame limit", ErrInvalidEntity, len(payload))
	}

	frame := make([]byte, HeaderSize+len(payload))
	binary.BigEndian.PutUint32(frame[lengthOffset:], uint32(len(payload)))
	binary.BigEndian.PutUint32(frame[reservedOffset:], 0)
	copy(frame[checksumOffset:HeaderSize], checksum(payload))
	copy(frame[HeaderSize:], payload)
	return frame, nil
}

// Decode parses a frame produced by Encode. The frame must be exactly one
// frame long.
//
// Decoding is lenient: when the payload parses but its digest does not match
// the header, Decode returns the record together with a *ChecksumError so the
// caller can decide whether to trust it.
func Decode(frame []byte) (*domain.TaskRecord, error) {
	payload, stored, err := splitFrame(frame)
	if err != nil {
		return nil, err
	}

	var record domain.TaskRecord
	if err := json.Unmarshal(payload, &record); err != nil {
		return nil, fmt.Errorf("%w: payload: %v", ErrMalformedFrame, err)
	}

	if actual := checksum(payload); actual != stored {
		return &record, &ChecksumError{Stored: stored, Actual: actual, Length: len(payload)}
	}
	return &record, nil
}

// FrameSize returns the total size of the frame starting at offset in buf,
// reading only its header.
func FrameSize(buf []byte, offset int) (int, error) {
	if offset < 0 || offset+HeaderSize > len(buf) {
		return 0, fmt.Errorf("%w: header at %d exceeds %d bytes", ErrMalformedFrame, offset, len(buf))
	}
	size := HeaderSize + int(binary.BigEndian.Uint32(buf[offset+lengthOffset:]))
	if offset+size > len(buf) {
		return 0, fmt.Errorf("%w: frame at %d declares %d bytes, %d available",
			ErrMalformedFrame, offset, size, len(buf)-offset)
	}
	return size, nil
}

// IsChecksumError reports whether err carries a checksum mismatch.
func IsChecksumError(err error) bool {
	var ce *ChecksumError
	return errors.As(err, &ce)
}

// peekID extracts only the record id from a frame payload. Reindexing uses it
// so a rescan does not need to materialize every record.
func peekID(frame []byte) (string, error) {
	payload, _, err := splitFrame(frame)
	if err != nil {
		return "", err
	}
	var head struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(payload, &head); err != nil {
		return "", fmt.Errorf("%w: payload: %v", ErrMalformedFrame, err)
	}
	if head.ID == "" {
		return "", fmt.Errorf("%w: payload has no id", ErrMalformedFrame)
	}
	return head.ID, nil
}

func splitFrame(frame []byte) (payload []byte, stored string, err error) {
	if len(frame) < HeaderSize {
		return nil, "", fmt.Errorf("%w: %d bytes is shorter than the header", ErrMalformedFrame, len(frame))
	}
	length := int(binary.BigEndian.Uint32(frame[lengthOffset:]))
	if HeaderSize+length != len(frame) {
		return nil, "", fmt.Errorf("%w: header declares %d payload bytes, frame holds %d",
			ErrMalformedFrame, length, len(frame)-HeaderSize)
	}
	return frame[HeaderSize:], string(frame[checksumOffset:HeaderSize]), nil
}

func checksum(payload []byte) string {
	sum := md5.Sum(payload)
	return hex.EncodeToString(sum[:])
}
