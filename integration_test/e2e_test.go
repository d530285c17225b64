package integration_test

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/zlog"
	"github.com/hupe1980/zlog/backend/bolt"
	"github.com/hupe1980/zlog/blobstore"
	"github.com/hupe1980/zlog/internal/compress"
	"github.com/hupe1980/zlog/projection"
	"github.com/hupe1980/zlog/sequencer"
	"github.com/hupe1980/zlog/testutil"
)

func openDurable(t *testing.T, dir string, seq *sequencer.Sequencer) zlog.Cluster {
	t.Helper()
	be, err := bolt.Open(filepath.Join(dir, "zlog.db"), bolt.WithCompression(compress.LZ4))
	require.NoError(t, err)
	ps, err := blobstore.NewLocalStore(filepath.Join(dir, "projections"))
	require.NoError(t, err)
	return zlog.Cluster{Backend: be, Projections: ps, Sequencer: seq}
}

func TestE2E_Restart(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	// 1. Create, append and reconfigure.
	c := openDurable(t, dir, sequencer.New())
	l, err := zlog.Create(ctx, c, "events", 3)
	require.NoError(t, err)

	for i := range 5 {
		pos, err := l.MultiAppend(ctx, []byte(fmt.Sprintf("e%d", i)), []uint64{uint64(i % 2)})
		require.NoError(t, err)
		require.Equal(t, uint64(i), pos)
	}
	_, err = l.Reconfigure(ctx, 5)
	require.NoError(t, err)
	pos, err := l.Append(ctx, []byte("e5"))
	require.NoError(t, err)
	require.Equal(t, uint64(5), pos)

	require.NoError(t, l.Close())
	require.NoError(t, c.Close())

	// 2. Reopen with a sequencer recovered from the backend.
	p, err := projection.NewStore(must(blobstore.NewLocalStore(filepath.Join(dir, "projections"))), "events").Load(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(1), p.Epoch)

	seq := sequencer.New(sequencer.WithEpoch(p.Epoch))
	c = openDurable(t, dir, seq)
	defer func() { require.NoError(t, c.Close()) }()

	l, err = zlog.Open(ctx, c, "events")
	require.NoError(t, err)
	defer l.Close()
	require.NoError(t, seq.Recover(ctx, c.Backend, l.Objects()))

	tail, err := l.CheckTail(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(6), tail)

	for i := range 6 {
		data, err := l.Read(ctx, uint64(i))
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("e%d", i), string(data))
	}

	streams, err := l.StreamMembership(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, []uint64{1}, streams)

	pos, err = l.Append(ctx, []byte("e6"))
	require.NoError(t, err)
	assert.Equal(t, uint64(6), pos)
	assert.Equal(t, []projection.Stripe{{Epoch: 0, Start: 0, Width: 3}, {Epoch: 1, Start: 5, Width: 5}}, l.StripeHistory())
}

func TestE2E_ConcurrentReconfigure(t *testing.T) {
	ctx := context.Background()
	h := testutil.NewHarness()
	c := zlog.Cluster{Backend: h.Backend, Projections: h.Projections, Sequencer: h.Sequencer}

	admin, err := zlog.Create(ctx, c, "shared", 2)
	require.NoError(t, err)
	defer admin.Close()

	const (
		writers   = 4
		perWriter = 50
		streams   = 3
	)

	var (
		mu      sync.Mutex
		written = make(map[uint64]string)
	)

	g, gctx := errgroup.WithContext(ctx)
	for w := range writers {
		g.Go(func() error {
			l, err := zlog.Open(gctx, c, "shared")
			if err != nil {
				return err
			}
			defer l.Close()

			for i := range perWriter {
				payload := fmt.Sprintf("w%d-%d", w, i)
				pos, err := l.MultiAppend(gctx, []byte(payload), []uint64{uint64(i % streams)})
				if err != nil {
					return err
				}
				mu.Lock()
				_, dup := written[pos]
				written[pos] = payload
				mu.Unlock()
				if dup {
					return fmt.Errorf("position %d assigned twice", pos)
				}
			}
			return nil
		})
	}
	g.Go(func() error {
		for _, width := range []uint32{4, 3, 6} {
			if _, err := admin.Reconfigure(gctx, width); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, g.Wait())
	require.Len(t, written, writers*perWriter)

	reader, err := zlog.Open(ctx, c, "shared")
	require.NoError(t, err)
	defer reader.Close()
	assert.Equal(t, uint64(3), reader.Epoch())

	for pos, payload := range written {
		data, err := reader.Read(ctx, pos)
		require.NoError(t, err, pos)
		assert.Equal(t, payload, string(data))
	}

	// Every stream sees exactly its entries, in order. Positions abandoned
	// by the reconfigurations are filled along the way.
	total := 0
	for id := range uint64(streams) {
		s := reader.OpenStream(id)
		require.NoError(t, s.Sync(ctx))

		var last uint64
		for n := 0; ; n++ {
			pos, data, err := s.ReadNext(ctx)
			if err != nil {
				require.ErrorIs(t, err, zlog.ErrExhausted)
				break
			}
			if n > 0 {
				assert.Greater(t, pos, last)
			}
			last = pos
			assert.Equal(t, written[pos], string(data))
			total++
		}
	}
	assert.Equal(t, writers*perWriter, total)
}

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}
