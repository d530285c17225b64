// Package backendtest provides a conformance suite for backend.Backend
// implementations.
package backendtest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/hupe1980/zlog/backend"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns a fresh, empty backend for one subtest.
type Factory func(t *testing.T) backend.Backend

// Run exercises the slot and fencing rules every Backend must follow.
func Run(t *testing.T, newBackend Factory) {
	t.Helper()
	ctx := context.Background()

	t.Run("WriteRead", func(t *testing.T) {
		b := newBackend(t)
		require.NoError(t, b.Write(ctx, "log.0", 0, 4, []byte("four")))

		data, err := b.Read(ctx, "log.0", 4)
		require.NoError(t, err)
		assert.Equal(t, []byte("four"), data)
	})

	t.Run("WriteOnce", func(t *testing.T) {
		b := newBackend(t)
		require.NoError(t, b.Write(ctx, "log.0", 0, 1, []byte("a")))
		assert.ErrorIs(t, b.Write(ctx, "log.0", 0, 1, []byte("b")), backend.ErrReadOnly)

		data, err := b.Read(ctx, "log.0", 1)
		require.NoError(t, err)
		assert.Equal(t, []byte("a"), data)
	})

	t.Run("ReadUnwritten", func(t *testing.T) {
		b := newBackend(t)
		_, err := b.Read(ctx, "missing", 0)
		assert.ErrorIs(t, err, backend.ErrNotWritten)

		require.NoError(t, b.Write(ctx, "log.0", 0, 0, []byte("x")))
		_, err = b.Read(ctx, "log.0", 2)
		assert.ErrorIs(t, err, backend.ErrNotWritten)
	})

	t.Run("Fill", func(t *testing.T) {
		b := newBackend(t)
		require.NoError(t, b.Fill(ctx, "log.0", 0, 3))
		_, err := b.Read(ctx, "log.0", 3)
		assert.ErrorIs(t, err, backend.ErrInvalidated)

		// Idempotent on tombstones, rejected on data.
		require.NoError(t, b.Fill(ctx, "log.0", 0, 3))
		assert.ErrorIs(t, b.Write(ctx, "log.0", 0, 3, []byte("late")), backend.ErrReadOnly)

		require.NoError(t, b.Write(ctx, "log.0", 0, 5, []byte("five")))
		assert.ErrorIs(t, b.Fill(ctx, "log.0", 0, 5), backend.ErrReadOnly)
	})

	t.Run("Trim", func(t *testing.T) {
		b := newBackend(t)
		require.NoError(t, b.Write(ctx, "log.1", 0, 7, []byte("seven")))
		require.NoError(t, b.Trim(ctx, "log.1", 0, 7))
		_, err := b.Read(ctx, "log.1", 7)
		assert.ErrorIs(t, err, backend.ErrInvalidated)

		require.NoError(t, b.Trim(ctx, "log.1", 0, 9))
		_, err = b.Read(ctx, "log.1", 9)
		assert.ErrorIs(t, err, backend.ErrInvalidated)
	})

	t.Run("SealFencesOlderEpochs", func(t *testing.T) {
		b := newBackend(t)
		require.NoError(t, b.Write(ctx, "log.0", 0, 0, []byte("e0")))
		require.NoError(t, b.Seal(ctx, "log.0", 2))

		assert.ErrorIs(t, b.Write(ctx, "log.0", 1, 1, []byte("old")), backend.ErrStaleEpoch)
		assert.ErrorIs(t, b.Fill(ctx, "log.0", 1, 1), backend.ErrStaleEpoch)
		assert.ErrorIs(t, b.Trim(ctx, "log.0", 1, 0), backend.ErrStaleEpoch)
		assert.ErrorIs(t, b.Seal(ctx, "log.0", 2), backend.ErrStaleEpoch)
		assert.ErrorIs(t, b.Seal(ctx, "log.0", 1), backend.ErrStaleEpoch)

		require.NoError(t, b.Write(ctx, "log.0", 2, 1, []byte("new")))
		require.NoError(t, b.Write(ctx, "log.0", 3, 2, []byte("newer")))

		// Reads are not fenced.
		data, err := b.Read(ctx, "log.0", 0)
		require.NoError(t, err)
		assert.Equal(t, []byte("e0"), data)

		// Other objects keep their own epoch.
		require.NoError(t, b.Write(ctx, "log.1", 0, 3, []byte("other")))
	})

	t.Run("SealNewObject", func(t *testing.T) {
		b := newBackend(t)
		require.NoError(t, b.Seal(ctx, "log.5", 1))
		assert.ErrorIs(t, b.Write(ctx, "log.5", 0, 5, nil), backend.ErrStaleEpoch)
		_, ok, err := b.MaxPosition(ctx, "log.5")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("MaxPosition", func(t *testing.T) {
		b := newBackend(t)
		_, ok, err := b.MaxPosition(ctx, "log.0")
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, b.Write(ctx, "log.0", 0, 2, []byte("2")))
		require.NoError(t, b.Write(ctx, "log.0", 0, 300, []byte("300")))
		require.NoError(t, b.Fill(ctx, "log.0", 0, 1000))
		require.NoError(t, b.Write(ctx, "log.0", 0, 10, []byte("10")))

		pos, ok, err := b.MaxPosition(ctx, "log.0")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, uint64(1000), pos)
	})

	t.Run("ConcurrentWritersSingleWinner", func(t *testing.T) {
		b := newBackend(t)

		const writers = 8
		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			wins int
		)
		for i := 0; i < writers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				err := b.Write(ctx, "log.0", 0, 42, []byte(fmt.Sprintf("w%d", i)))
				if err == nil {
					mu.Lock()
					wins++
					mu.Unlock()
					return
				}
				assert.ErrorIs(t, err, backend.ErrReadOnly)
			}(i)
		}
		wg.Wait()
		assert.Equal(t, 1, wins)
	})

	t.Run("EmptyPayload", func(t *testing.T) {
		b := newBackend(t)
		require.NoError(t, b.Write(ctx, "log.0", 0, 0, nil))
		data, err := b.Read(ctx, "log.0", 0)
		require.NoError(t, err)
		assert.Empty(t, data)
	})
}

// RunKV exercises a KVStore.
func RunKV(t *testing.T, kv backend.KVStore) {
	t.Helper()
	ctx := context.Background()

	_, err := kv.GetKey(ctx, "kv.0", "missing")
	assert.ErrorIs(t, err, backend.ErrNotFound)

	require.NoError(t, kv.SetKeys(ctx, "kv.0", map[string][]byte{"1": []byte("one"), "2": []byte("two")}))
	require.NoError(t, kv.SetKeys(ctx, "kv.0", map[string][]byte{"2": []byte("deux")}))

	v, err := kv.GetKey(ctx, "kv.0", "1")
	require.NoError(t, err)
	assert.Equal(t, []byte("one"), v)

	v, err = kv.GetKey(ctx, "kv.0", "2")
	require.NoError(t, err)
	assert.Equal(t, []byte("deux"), v)
}

// RunBytes exercises a ByteStore.
func RunBytes(t *testing.T, bs backend.ByteStore) {
	t.Helper()
	ctx := context.Background()

	_, err := bs.ReadObject(ctx, "obj")
	assert.ErrorIs(t, err, backend.ErrNotFound)

	require.NoError(t, bs.WriteFull(ctx, "obj", []byte("hello")))
	require.NoError(t, bs.AppendObject(ctx, "obj", []byte(" world")))
	require.NoError(t, bs.WriteAt(ctx, "obj", 0, []byte("J")))
	require.NoError(t, bs.WriteAt(ctx, "obj", 13, []byte("!")))

	data, err := bs.ReadObject(ctx, "obj")
	require.NoError(t, err)
	assert.Equal(t, []byte("Jello world\x00\x00!"), data)

	require.NoError(t, bs.WriteFull(ctx, "obj", []byte("reset")))
	data, err = bs.ReadObject(ctx, "obj")
	require.NoError(t, err)
	assert.Equal(t, []byte("reset"), data)
}
