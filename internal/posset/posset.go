// Package posset provides an ordered set of log positions.
package posset

import (
	"iter"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
)

// Set is an ordered set of positions backed by a 64-bit roaring bitmap.
// It is not safe for concurrent use.
type Set struct {
	rb *roaring64.Bitmap
}

// New creates a set holding positions.
func New(positions ...uint64) *Set {
	s := &Set{rb: roaring64.New()}
	s.rb.AddMany(positions)
	return s
}

// Add inserts a position.
func (s *Set) Add(pos uint64) {
	s.rb.Add(pos)
}

// Union merges other into s.
func (s *Set) Union(other *Set) {
	s.rb.Or(other.rb)
}

// Contains reports whether pos is in the set.
func (s *Set) Contains(pos uint64) bool {
	return s.rb.Contains(pos)
}

// IsEmpty returns true if the set is empty.
func (s *Set) IsEmpty() bool {
	return s.rb.IsEmpty()
}

// Len returns the number of positions.
func (s *Set) Len() int {
	return int(s.rb.GetCardinality()) //nolint:gosec
}

// Min returns the smallest position. ok is false for an empty set.
func (s *Set) Min() (pos uint64, ok bool) {
	if s.rb.IsEmpty() {
		return 0, false
	}
	return s.rb.Minimum(), true
}

// Max returns the largest position. ok is false for an empty set.
func (s *Set) Max() (pos uint64, ok bool) {
	if s.rb.IsEmpty() {
		return 0, false
	}
	return s.rb.Maximum(), true
}

// After returns the smallest position strictly greater than pos.
func (s *Set) After(pos uint64) (uint64, bool) {
	if pos == ^uint64(0) {
		return 0, false
	}
	it := s.rb.Iterator()
	it.AdvanceIfNeeded(pos + 1)
	if !it.HasNext() {
		return 0, false
	}
	return it.Next(), true
}

// Slice returns the positions in ascending order.
func (s *Set) Slice() []uint64 {
	return s.rb.ToArray()
}

// All iterates the positions in ascending order.
func (s *Set) All() iter.Seq[uint64] {
	return func(yield func(uint64) bool) {
		it := s.rb.Iterator()
		for it.HasNext() {
			if !yield(it.Next()) {
				return
			}
		}
	}
}
