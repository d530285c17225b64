package backend

import (
	"context"
	"errors"
)

var (
	// ErrStaleEpoch is returned when a request's epoch is older than the
	// object's sealed epoch.
	ErrStaleEpoch = errors.New("stale epoch")

	// ErrReadOnly is returned when a slot is already written or filled.
	// Fill reports a slot holding data with this error ("already resolved").
	ErrReadOnly = errors.New("position is read-only")

	// ErrNotWritten is returned when reading a slot that was never written.
	ErrNotWritten = errors.New("position not written")

	// ErrInvalidated is returned when reading a filled or trimmed slot.
	ErrInvalidated = errors.New("position invalidated")

	// ErrNotFound is returned when a key or byte object does not exist.
	ErrNotFound = errors.New("not found")
)

// Backend is the object storage a log is striped over.
type Backend interface {
	// Write stores data at position in object oid if epoch is current and
	// the slot is empty.
	Write(ctx context.Context, oid string, epoch, position uint64, data []byte) error

	// Read returns the bytes stored at position.
	Read(ctx context.Context, oid string, position uint64) ([]byte, error)

	// Fill tombstones an empty slot. Filling a tombstone succeeds.
	Fill(ctx context.Context, oid string, epoch, position uint64) error

	// Trim tombstones a slot whatever it holds.
	Trim(ctx context.Context, oid string, epoch, position uint64) error

	// Seal raises the object's epoch. epoch must be greater than the
	// current one.
	Seal(ctx context.Context, oid string, epoch uint64) error

	// MaxPosition returns the largest occupied position in oid. ok is false
	// if the object holds no slots.
	MaxPosition(ctx context.Context, oid string) (pos uint64, ok bool, err error)

	// Close releases resources held by the backend.
	Close() error
}

// KVStore is implemented by backends that offer an ordered key-value space
// per object. Used by benchmark workloads.
type KVStore interface {
	// SetKeys atomically sets kvs on object oid.
	SetKeys(ctx context.Context, oid string, kvs map[string][]byte) error
	// GetKey returns the value of key on object oid.
	GetKey(ctx context.Context, oid, key string) ([]byte, error)
}

// ByteStore is implemented by backends that offer plain byte objects.
// Used by benchmark workloads.
type ByteStore interface {
	// WriteFull replaces the object's content.
	WriteFull(ctx context.Context, oid string, data []byte) error
	// WriteAt writes data at offset off, growing the object as needed.
	WriteAt(ctx context.Context, oid string, off int64, data []byte) error
	// AppendObject appends data to the object.
	AppendObject(ctx context.Context, oid string, data []byte) error
	// ReadObject returns the object's content.
	ReadObject(ctx context.Context, oid string) ([]byte, error)
}
