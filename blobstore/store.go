package blobstore

import (
	"context"
	"errors"
	"os"
)

// ErrNotFound is returned when a blob does not exist.
//
// Implementations should return an error that satisfies `errors.Is(err, ErrNotFound)`.
// The default maps to `os.ErrNotExist`.
var ErrNotFound = os.ErrNotExist

// ErrExists is returned by PutIfAbsent when the blob already exists.
var ErrExists = os.ErrExist

// ErrNotConditional is returned when a conditional create is requested from a
// store that cannot provide one.
var ErrNotConditional = errors.New("blobstore: conditional create not supported")

// BlobStore is an abstraction for reading and writing small named blobs
// (projections and their pointers).
// Implementations must be safe for concurrent use.
type BlobStore interface {
	// Get returns the blob's content.
	Get(ctx context.Context, name string) ([]byte, error)
	// Put writes a blob atomically, replacing any previous content.
	Put(ctx context.Context, name string, data []byte) error
	// Delete removes a blob. Deleting a missing blob succeeds.
	Delete(ctx context.Context, name string) error
	// List returns the sorted names of blobs starting with prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}

// ConditionalStore is implemented by stores that can create a blob only if it
// does not exist yet. This is the compare-and-swap projection commits rely on.
type ConditionalStore interface {
	BlobStore
	// PutIfAbsent writes the blob unless it exists, in which case it
	// returns ErrExists.
	PutIfAbsent(ctx context.Context, name string, data []byte) error
}
