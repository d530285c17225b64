// Package cache provides size-bounded LRU caches for immutable bytes.
//
// Log handles cache written entries by position; written positions never
// change, so only trims need to invalidate. Projection stores cache blobs
// that are never rewritten.
//
// ShardedLRU spreads keys over 64 shards with maphash to keep lock
// contention low under parallel readers. Both caches can share a
// resource.Controller to enforce a global memory limit.
package cache
