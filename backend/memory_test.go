package backend_test

import (
	"context"
	"testing"

	"github.com/hupe1980/zlog/backend"
	"github.com/hupe1980/zlog/backend/backendtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBackend(t *testing.T) {
	backendtest.Run(t, func(t *testing.T) backend.Backend {
		return backend.NewMemoryBackend()
	})
}

func TestMemoryBackend_KV(t *testing.T) {
	backendtest.RunKV(t, backend.NewMemoryBackend())
}

func TestMemoryBackend_Bytes(t *testing.T) {
	backendtest.RunBytes(t, backend.NewMemoryBackend())
}

func TestMemoryBackend_WriteHook(t *testing.T) {
	ctx := context.Background()
	b := backend.NewMemoryBackend()

	var seen []uint64
	b.SetWriteHook(func(oid string, epoch, position uint64) {
		seen = append(seen, position)
	})
	require.NoError(t, b.Write(ctx, "log.0", 0, 3, []byte("x")))
	b.SetWriteHook(nil)
	require.NoError(t, b.Write(ctx, "log.0", 0, 4, []byte("y")))

	assert.Equal(t, []uint64{3}, seen)
}

func TestMemoryBackend_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	b := backend.NewMemoryBackend()
	assert.ErrorIs(t, b.Write(ctx, "log.0", 0, 0, nil), context.Canceled)
	_, err := b.Read(ctx, "log.0", 0)
	assert.ErrorIs(t, err, context.Canceled)
}
