package zlog

import (
	"errors"
	"fmt"

	"github.com/hupe1980/zlog/backend"
	"github.com/hupe1980/zlog/internal/header"
	"github.com/hupe1980/zlog/projection"
	"github.com/hupe1980/zlog/sequencer"
)

var (
	// ErrNotFound is returned when opening a log that does not exist.
	ErrNotFound = errors.New("log not found")

	// ErrExists is returned when creating a log that already exists.
	ErrExists = errors.New("log already exists")

	// ErrClosed is returned by operations on a closed log.
	ErrClosed = errors.New("log closed")

	// ErrInvalidWidth is returned for a stripe width below one.
	ErrInvalidWidth = errors.New("stripe width must be positive")

	// ErrReconfigureNotSupported is returned by Reconfigure when the
	// sequencer cannot change epochs.
	ErrReconfigureNotSupported = errors.New("sequencer does not support reconfiguration")

	// ErrExhausted is returned by ReadNext when the cursor is past the last
	// known stream position.
	ErrExhausted = errors.New("stream exhausted")

	// ErrNotStreamEntry is returned for a well-formed entry that belongs to no
	// stream.
	ErrNotStreamEntry = errors.New("not a stream entry")

	// ErrInvalidHeader is returned for a truncated, oversized or malformed
	// entry header.
	ErrInvalidHeader = header.ErrInvalid

	// ErrStaleEpoch is returned when a request's epoch is older than the
	// storage object's or sequencer's. The log handles it internally.
	ErrStaleEpoch = backend.ErrStaleEpoch

	// ErrReadOnly is returned when writing a position that is already
	// written or filled.
	ErrReadOnly = backend.ErrReadOnly

	// ErrNotWritten is returned when reading a position that was never
	// written.
	ErrNotWritten = backend.ErrNotWritten

	// ErrInvalidated is returned when reading a filled or trimmed position.
	ErrInvalidated = backend.ErrInvalidated

	// ErrConflict is returned by Reconfigure when another reconfiguration
	// committed the same epoch first.
	ErrConflict = projection.ErrConflict
)

// errNotMember is the cause of an IntegrityError for an entry that does not
// list the stream.
var errNotMember = errors.New("entry does not declare stream membership")

// IntegrityError reports a known stream position whose entry fails to decode
// or does not declare membership in the stream.
//
// The underlying error can be accessed via errors.Unwrap.
type IntegrityError struct {
	StreamID uint64
	Position uint64
	cause    error
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("stream %d: integrity error at position %d: %v", e.StreamID, e.Position, e.cause)
}

func (e *IntegrityError) Unwrap() error { return e.cause }

func translateError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, projection.ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	if errors.Is(err, sequencer.ErrStaleEpoch) {
		return fmt.Errorf("%w: %w", ErrStaleEpoch, err)
	}

	return err
}

// isStale reports whether err asks the caller to refresh its projection.
func isStale(err error) bool {
	return errors.Is(err, backend.ErrStaleEpoch) || errors.Is(err, sequencer.ErrStaleEpoch)
}
