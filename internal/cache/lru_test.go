package cache

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hupe1980/zlog/internal/resource"
)

func TestLRU_Eviction(t *testing.T) {
	c := NewLRU(10, nil)
	ctx := context.Background()

	c.Set(ctx, Key{Kind: KindEntry, Offset: 1}, []byte("aaaa"))
	c.Set(ctx, Key{Kind: KindEntry, Offset: 2}, []byte("bbbb"))
	// Touch 1 so 2 is the oldest.
	_, ok := c.Get(ctx, Key{Kind: KindEntry, Offset: 1})
	assert.True(t, ok)

	c.Set(ctx, Key{Kind: KindEntry, Offset: 3}, []byte("cccc"))

	_, ok = c.Get(ctx, Key{Kind: KindEntry, Offset: 2})
	assert.False(t, ok)
	_, ok = c.Get(ctx, Key{Kind: KindEntry, Offset: 1})
	assert.True(t, ok)
	assert.Equal(t, int64(8), c.Size())
	assert.Equal(t, 2, c.Len())
}

func TestLRU_EdgeCases(t *testing.T) {
	rc := resource.NewController(resource.Config{MemoryLimitBytes: 100})
	c := NewLRU(50, rc)
	ctx := context.Background()
	k := Key{Kind: KindEntry, Name: "log", Offset: 1}

	// Larger than capacity.
	c.Set(ctx, k, make([]byte, 60))
	_, ok := c.Get(ctx, k)
	assert.False(t, ok)

	c.Set(ctx, k, make([]byte, 10))
	assert.Equal(t, int64(10), c.Size())
	c.Set(ctx, k, make([]byte, 20))
	assert.Equal(t, int64(20), c.Size())
	c.Set(ctx, k, make([]byte, 5))
	assert.Equal(t, int64(5), c.Size())
	assert.Equal(t, int64(5), rc.MemoryUsage())

	// Growth denied by the controller keeps the old value.
	rc2 := resource.NewController(resource.Config{MemoryLimitBytes: 10})
	c2 := NewLRU(50, rc2)
	c2.Set(ctx, k, make([]byte, 8))
	c2.Set(ctx, k, make([]byte, 12))

	val, ok := c2.Get(ctx, k)
	assert.True(t, ok)
	assert.Len(t, val, 8)
}

func TestLRU_Stats(t *testing.T) {
	c := NewLRU(100, nil)
	ctx := context.Background()
	c.Set(ctx, Key{Offset: 1}, []byte{1})
	c.Get(ctx, Key{Offset: 1})
	c.Get(ctx, Key{Offset: 2})

	hits, misses := c.Stats()
	assert.Equal(t, int64(1), hits)
	assert.Equal(t, int64(1), misses)
}

func TestLRU_DeleteAndInvalidate(t *testing.T) {
	rc := resource.NewController(resource.Config{})
	c := NewLRU(100, rc)
	ctx := context.Background()
	c.Set(ctx, Key{Kind: KindEntry, Name: "a", Offset: 1}, []byte("a"))
	c.Set(ctx, Key{Kind: KindEntry, Name: "a", Offset: 2}, []byte("b"))
	c.Set(ctx, Key{Kind: KindBlob, Name: "b", Offset: 0}, []byte("c"))

	c.Delete(Key{Kind: KindEntry, Name: "a", Offset: 2})
	_, ok := c.Get(ctx, Key{Kind: KindEntry, Name: "a", Offset: 2})
	assert.False(t, ok)

	c.Invalidate(func(k Key) bool { return k.Kind == KindEntry })
	_, ok = c.Get(ctx, Key{Kind: KindEntry, Name: "a", Offset: 1})
	assert.False(t, ok)
	_, ok = c.Get(ctx, Key{Kind: KindBlob, Name: "b"})
	assert.True(t, ok)

	assert.Equal(t, int64(1), rc.MemoryUsage())
}
