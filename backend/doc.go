// Package backend defines the storage capability a shared log runs on.
//
// A Backend stores log entries in named objects. Every object carries a
// sealed epoch: requests tagged with an older epoch are rejected with
// ErrStaleEpoch, which is how a reconfiguration fences writers that still
// hold an outdated projection. Inside an object each position is a write-once
// slot that is either empty, holds entry bytes, or holds a tombstone.
//
//	Write  empty -> data        occupied -> ErrReadOnly
//	Fill   empty -> tombstone   tombstone -> ok, data -> ErrReadOnly
//	Trim   any   -> tombstone
//	Read   data  -> bytes       empty -> ErrNotWritten, tombstone -> ErrInvalidated
//
// # Built-in Implementations
//
//   - MemoryBackend: in-process, for tests and benchmarks
//   - bolt.Backend: single node, durable, on bbolt
//   - dynamodb.Backend: DynamoDB conditional writes
//
// Implementations must be safe for concurrent use.
package backend
