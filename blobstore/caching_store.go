package blobstore

import (
	"context"

	"github.com/hupe1980/zlog/internal/cache"
)

// CachingStore wraps a BlobStore and caches reads of immutable blobs.
// Blobs for which immutable returns false (mutable pointers such as CURRENT)
// always go to the inner store.
type CachingStore struct {
	inner     BlobStore
	cache     cache.Cache
	immutable func(name string) bool
}

// NewCachingStore creates a new CachingStore.
func NewCachingStore(inner BlobStore, c cache.Cache, immutable func(name string) bool) *CachingStore {
	return &CachingStore{
		inner:     inner,
		cache:     c,
		immutable: immutable,
	}
}

func blobKey(name string) cache.Key {
	return cache.Key{Kind: cache.KindBlob, Name: name}
}

// Get returns the blob, serving immutable blobs from the cache.
func (s *CachingStore) Get(ctx context.Context, name string) ([]byte, error) {
	if !s.immutable(name) {
		return s.inner.Get(ctx, name)
	}
	if data, ok := s.cache.Get(ctx, blobKey(name)); ok {
		return clone(data), nil
	}

	data, err := s.inner.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	s.cache.Set(ctx, blobKey(name), clone(data))
	return data, nil
}

// Put writes through and drops any cached copy.
func (s *CachingStore) Put(ctx context.Context, name string, data []byte) error {
	s.cache.Delete(blobKey(name))
	return s.inner.Put(ctx, name, data)
}

// PutIfAbsent writes through when the inner store supports conditional
// creates.
func (s *CachingStore) PutIfAbsent(ctx context.Context, name string, data []byte) error {
	cs, ok := s.inner.(ConditionalStore)
	if !ok {
		return ErrNotConditional
	}
	return cs.PutIfAbsent(ctx, name, data)
}

// Delete removes the blob and its cached copy.
func (s *CachingStore) Delete(ctx context.Context, name string) error {
	s.cache.Delete(blobKey(name))
	return s.inner.Delete(ctx, name)
}

// List passes through to the inner store.
func (s *CachingStore) List(ctx context.Context, prefix string) ([]string, error) {
	return s.inner.List(ctx, prefix)
}

var _ ConditionalStore = (*CachingStore)(nil)
