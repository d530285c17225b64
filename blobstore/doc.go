// Package blobstore provides storage abstraction for zlog's projections.
//
// A projection store keeps one immutable blob per epoch plus a mutable
// CURRENT pointer. Creating the blob for a new epoch must be conditional so
// that two concurrent reconfigurations cannot both win; stores that support
// this implement ConditionalStore.
//
// # Built-in Implementations
//
//   - MemoryStore: in-process, for tests
//   - LocalStore: local filesystem, create-if-absent via hard links
//   - CachingStore: read cache for immutable blobs over any store
//   - s3.Store: Amazon S3, create-if-absent via If-None-Match
//   - s3.DDBCommitStore: S3 content with DynamoDB conditional commits
//   - minio.Store: S3-compatible storage (best effort create-if-absent)
//
// # Custom Implementations
//
// Implement the BlobStore interface to support custom storage backends:
//
//	type BlobStore interface {
//	    Get(ctx, name) ([]byte, error)
//	    Put(ctx, name, data) error         // Atomic write
//	    Delete(ctx, name) error
//	    List(ctx, prefix) ([]string, error)
//	}
package blobstore
