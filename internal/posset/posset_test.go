package posset

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSet(t *testing.T) {
	t.Run("Empty", func(t *testing.T) {
		s := New()
		assert.True(t, s.IsEmpty())
		_, ok := s.Min()
		assert.False(t, ok)
		_, ok = s.Max()
		assert.False(t, ok)
		_, ok = s.After(0)
		assert.False(t, ok)
		assert.Empty(t, s.Slice())
	})

	t.Run("Ordered", func(t *testing.T) {
		s := New(9, 2, 5, 2)
		assert.Equal(t, 3, s.Len())
		assert.Equal(t, []uint64{2, 5, 9}, s.Slice())
		assert.Equal(t, []uint64{2, 5, 9}, slices.Collect(s.All()))

		lo, _ := s.Min()
		hi, _ := s.Max()
		assert.Equal(t, uint64(2), lo)
		assert.Equal(t, uint64(9), hi)
	})

	t.Run("After", func(t *testing.T) {
		s := New(2, 5, 9, 1<<40)

		next, ok := s.After(2)
		assert.True(t, ok)
		assert.Equal(t, uint64(5), next)

		next, ok = s.After(6)
		assert.True(t, ok)
		assert.Equal(t, uint64(9), next)

		next, ok = s.After(9)
		assert.True(t, ok)
		assert.Equal(t, uint64(1<<40), next)

		_, ok = s.After(1 << 40)
		assert.False(t, ok)
		_, ok = s.After(^uint64(0))
		assert.False(t, ok)
	})

	t.Run("Union", func(t *testing.T) {
		s := New(1, 4)
		s.Union(New(4, 3, 8))
		assert.Equal(t, []uint64{1, 3, 4, 8}, s.Slice())
		assert.True(t, s.Contains(3))
		assert.False(t, s.Contains(2))
	})
}
