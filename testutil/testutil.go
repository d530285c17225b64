package testutil

import (
	"context"
	"math"
	"math/rand"
	"sync"

	"github.com/hupe1980/zlog/backend"
	"github.com/hupe1980/zlog/blobstore"
	"github.com/hupe1980/zlog/sequencer"
)

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// Uint64 returns a pseudo-random uint64.
func (r *RNG) Uint64() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Uint64()
}

// Payload returns n pseudo-random bytes.
func (r *RNG) Payload(n int) []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	b := make([]byte, n)
	_, _ = r.rand.Read(b)
	return b
}

// Payloads returns num payloads of size bytes each.
func (r *RNG) Payloads(num, size int) [][]byte {
	out := make([][]byte, num)
	for i := range out {
		out[i] = r.Payload(size)
	}
	return out
}

// Zipf returns a Zipfian-distributed value in [0, n).
// Uses Zipf's law: P(k) ∝ 1/k^s where s is the skew parameter.
// s=1.0 gives standard Zipf, s=1.5 gives heavy-tail (80/20 rule).
func (r *RNG) Zipf(n int, s float64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.zipfLocked(n, s)
}

// zipfLocked is the internal implementation (caller must hold lock).
func (r *RNG) zipfLocked(n int, s float64) int {
	if n <= 1 {
		return 0
	}

	// Compute normalization constant (harmonic number with exponent s)
	var hns float64
	for i := 1; i <= n; i++ {
		hns += 1.0 / math.Pow(float64(i), s)
	}

	// Sample from uniform and use inverse transform
	u := r.rand.Float64() * hns
	var cumulative float64
	for k := 1; k <= n; k++ {
		cumulative += 1.0 / math.Pow(float64(k), s)
		if u <= cumulative {
			return k - 1 // 0-indexed
		}
	}

	return n - 1
}

// Harness is an in-process cluster: a memory backend, a local sequencer and
// a memory projection store.
type Harness struct {
	Backend     *backend.MemoryBackend
	Projections *blobstore.MemoryStore
	Sequencer   *sequencer.Sequencer
}

// NewHarness creates an empty in-process cluster.
func NewHarness(opts ...sequencer.Option) *Harness {
	return &Harness{
		Backend:     backend.NewMemoryBackend(),
		Projections: blobstore.NewMemoryStore(),
		Sequencer:   sequencer.New(opts...),
	}
}

// RestartSequencer replaces the sequencer with a fresh one at epoch that has
// recovered its tail from objects. Stream backpointers are lost, as after a
// sequencer crash.
func (h *Harness) RestartSequencer(ctx context.Context, epoch uint64, objects []string) error {
	seq := sequencer.New(sequencer.WithEpoch(epoch))
	if err := seq.Recover(ctx, h.Backend, objects); err != nil {
		return err
	}
	h.Sequencer = seq
	return nil
}
