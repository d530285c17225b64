package stripe

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistory(t *testing.T) {
	t.Run("Add", func(t *testing.T) {
		h := &History{}
		require.True(t, h.Empty())

		require.NoError(t, h.Add(Stripe{Epoch: 0, Start: 0, Width: 4}))
		require.NoError(t, h.Add(Stripe{Epoch: 2, Start: 100, Width: 8}))
		assert.Equal(t, 2, h.Len())
		assert.Equal(t, Stripe{Epoch: 2, Start: 100, Width: 8}, h.Latest())
	})

	t.Run("RejectsInvalid", func(t *testing.T) {
		h, err := NewHistory(Stripe{Epoch: 1, Start: 10, Width: 2})
		require.NoError(t, err)

		assert.ErrorIs(t, h.Add(Stripe{Epoch: 2, Start: 20, Width: 0}), ErrInvalidStripe)
		assert.ErrorIs(t, h.Add(Stripe{Epoch: 1, Start: 20, Width: 2}), ErrInvalidStripe)
		assert.ErrorIs(t, h.Add(Stripe{Epoch: 3, Start: 5, Width: 2}), ErrInvalidStripe)
		assert.Equal(t, 1, h.Len())
	})

	t.Run("FindStripe", func(t *testing.T) {
		h, err := NewHistory(
			Stripe{Epoch: 0, Start: 0, Width: 2},
			Stripe{Epoch: 1, Start: 10, Width: 3},
			Stripe{Epoch: 4, Start: 10, Width: 5},
			Stripe{Epoch: 5, Start: 40, Width: 7},
		)
		require.NoError(t, err)

		assert.Equal(t, uint32(2), h.FindStripe(0).Width)
		assert.Equal(t, uint32(2), h.FindStripe(9).Width)
		// Two stripes starting at the same position: the later one wins.
		assert.Equal(t, uint32(5), h.FindStripe(10).Width)
		assert.Equal(t, uint32(5), h.FindStripe(39).Width)
		assert.Equal(t, uint32(7), h.FindStripe(40).Width)
		assert.Equal(t, uint32(7), h.FindStripe(1<<40).Width)
		assert.Equal(t, uint32(7), h.MaxWidth())
	})

	t.Run("EmptyPanics", func(t *testing.T) {
		h := &History{}
		assert.Panics(t, func() { h.FindStripe(1) })
		assert.Panics(t, func() { h.Latest() })
	})

	t.Run("CloneIsIndependent", func(t *testing.T) {
		h, err := NewHistory(Stripe{Epoch: 0, Start: 0, Width: 1})
		require.NoError(t, err)
		c := h.Clone()
		require.NoError(t, c.Add(Stripe{Epoch: 1, Start: 5, Width: 2}))
		assert.Equal(t, 1, h.Len())
		assert.Equal(t, 2, c.Len())
	})
}

func TestMapper(t *testing.T) {
	t.Run("WidthFour", func(t *testing.T) {
		h, err := NewHistory(Stripe{Epoch: 0, Start: 0, Width: 4})
		require.NoError(t, err)
		m := NewMapper("log", h)

		want := []uint32{0, 1, 2, 3, 0, 1, 2, 3}
		for pos, slot := range want {
			assert.Equal(t, m.SlotToOID(slot), m.FindObject(uint64(pos)), "position %d", pos)
		}
	})

	t.Run("Deterministic", func(t *testing.T) {
		h, err := NewHistory(Stripe{Epoch: 0, Start: 0, Width: 7})
		require.NoError(t, err)
		m := NewMapper("log", h)

		for pos := uint64(0); pos < 1000; pos += 13 {
			first := m.FindObject(pos)
			assert.Equal(t, first, m.FindObject(pos))
			assert.Equal(t, fmt.Sprintf("log.%d", pos%7), first)
		}
	})

	t.Run("LatestObjectSet", func(t *testing.T) {
		for _, width := range []uint32{1, 3, 16} {
			h, err := NewHistory(Stripe{Epoch: 0, Start: 0, Width: 2}, Stripe{Epoch: 1, Start: 8, Width: width})
			require.NoError(t, err)
			m := NewMapper("l", h)

			objects := m.LatestObjectSet()
			require.Len(t, objects, int(width))
			seen := make(map[string]struct{})
			for i, oid := range objects {
				assert.Equal(t, m.SlotToOID(uint32(i)), oid)
				seen[oid] = struct{}{}
			}
			assert.Len(t, seen, int(width))
		}
	})

	t.Run("AcrossStripes", func(t *testing.T) {
		h, err := NewHistory(Stripe{Epoch: 0, Start: 0, Width: 2}, Stripe{Epoch: 3, Start: 6, Width: 5})
		require.NoError(t, err)
		m := NewMapper("l", h)

		assert.Equal(t, "l.1", m.FindObject(5))
		assert.Equal(t, "l.1", m.FindObject(6))
		assert.Equal(t, "l.4", m.FindObject(9))
		assert.Len(t, m.AllObjects(), 5)
	})
}
