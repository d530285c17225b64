package cache

import (
	"context"
	"encoding/binary"
	"hash/maphash"
	"sync"

	"github.com/hupe1980/zlog/internal/resource"
)

const numShards = 64

// ShardedLRU is a sharded LRU cache for high-concurrency workloads.
// It distributes entries across 64 shards to reduce lock contention.
type ShardedLRU struct {
	shards [numShards]*LRU
	seed   maphash.Seed
}

// NewShardedLRU creates a new sharded LRU cache.
// The capacity is divided evenly across all shards.
func NewShardedLRU(capacity int64, rc *resource.Controller) *ShardedLRU {
	shardCapacity := capacity / numShards
	if shardCapacity < 1 {
		shardCapacity = 1
	}

	s := &ShardedLRU{
		seed: maphash.MakeSeed(),
	}

	for i := range numShards {
		s.shards[i] = NewLRU(shardCapacity, rc)
	}

	return s
}

// shard returns the shard for a given key.
func (s *ShardedLRU) shard(key Key) *LRU {
	var h maphash.Hash
	h.SetSeed(s.seed)

	var buf [9]byte
	buf[0] = byte(key.Kind)
	binary.LittleEndian.PutUint64(buf[1:], key.Offset)
	_, _ = h.Write(buf[:])
	_, _ = h.WriteString(key.Name)

	return s.shards[h.Sum64()%numShards]
}

// Get returns a cached value.
func (s *ShardedLRU) Get(ctx context.Context, key Key) ([]byte, bool) {
	return s.shard(key).Get(ctx, key)
}

// Set caches a value.
func (s *ShardedLRU) Set(ctx context.Context, key Key, b []byte) {
	s.shard(key).Set(ctx, key, b)
}

// Delete removes a single entry.
func (s *ShardedLRU) Delete(key Key) {
	s.shard(key).Delete(key)
}

// Invalidate removes entries matching the predicate.
// This iterates all shards, which is expensive but rare.
func (s *ShardedLRU) Invalidate(predicate func(key Key) bool) {
	var wg sync.WaitGroup
	wg.Add(numShards)

	for i := range numShards {
		go func(shard *LRU) {
			defer wg.Done()
			shard.Invalidate(predicate)
		}(s.shards[i])
	}

	wg.Wait()
}

// Stats returns aggregated hit/miss statistics.
func (s *ShardedLRU) Stats() (hits, misses int64) {
	for i := range numShards {
		h, m := s.shards[i].Stats()
		hits += h
		misses += m
	}
	return hits, misses
}

// Size returns the total size across all shards.
func (s *ShardedLRU) Size() int64 {
	var total int64
	for i := range numShards {
		total += s.shards[i].Size()
	}
	return total
}

// Len returns the number of entries across all shards.
func (s *ShardedLRU) Len() int {
	var total int
	for i := range numShards {
		total += s.shards[i].Len()
	}
	return total
}

type shardStats struct {
	ShardID int
	Size    int64
	Hits    int64
	Misses  int64
}

// ShardStats returns per-shard statistics.
func (s *ShardedLRU) ShardStats() []shardStats {
	stats := make([]shardStats, numShards)
	for i := range numShards {
		h, m := s.shards[i].Stats()
		stats[i] = shardStats{
			ShardID: i,
			Size:    s.shards[i].Size(),
			Hits:    h,
			Misses:  m,
		}
	}
	return stats
}

var _ Cache = (*ShardedLRU)(nil)
