package cache

import "context"

// Kind separates key spaces.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindEntry        // log entries keyed by position
	KindBlob         // immutable blobs keyed by name
)

// Key identifies a cached value.
type Key struct {
	Kind Kind
	// Name identifies the source, e.g. a log or blob name.
	Name string
	// Offset is a position or block index within Name.
	Offset uint64
}

// Cache is a byte-oriented cache for immutable values.
// Returned slices must be treated as read-only.
type Cache interface {
	// Get returns a cached value. ok=false if missing.
	Get(ctx context.Context, key Key) (b []byte, ok bool)
	// Set caches a value. Implementations may retain b; callers must treat it as immutable.
	Set(ctx context.Context, key Key, b []byte)
	// Delete removes a single entry.
	Delete(key Key)
	// Invalidate removes entries matching the predicate.
	Invalidate(predicate func(key Key) bool)
	// Stats returns cache statistics.
	Stats() (hits, misses int64)
}
