package stripe

import (
	"errors"
	"fmt"
	"sort"
)

// ErrInvalidStripe is returned when a stripe would break the history ordering.
var ErrInvalidStripe = errors.New("invalid stripe")

// Stripe describes the object layout used from a given position onwards.
type Stripe struct {
	// Epoch is the configuration generation that opened the stripe.
	Epoch uint64
	// Start is the first position mapped with this stripe.
	Start uint64
	// Width is the number of objects positions are spread across.
	Width uint32
}

// History is an append-only, ordered sequence of stripes.
// The zero value is an empty history.
type History struct {
	stripes []Stripe
}

// NewHistory creates a history from stripes, validating their ordering.
func NewHistory(stripes ...Stripe) (*History, error) {
	h := &History{}
	for _, s := range stripes {
		if err := h.Add(s); err != nil {
			return nil, err
		}
	}
	return h, nil
}

// Add appends a stripe. Epochs must strictly increase and starts must not
// decrease.
func (h *History) Add(s Stripe) error {
	if s.Width < 1 {
		return fmt.Errorf("%w: width %d", ErrInvalidStripe, s.Width)
	}
	if n := len(h.stripes); n > 0 {
		last := h.stripes[n-1]
		if s.Epoch <= last.Epoch {
			return fmt.Errorf("%w: epoch %d not after %d", ErrInvalidStripe, s.Epoch, last.Epoch)
		}
		if s.Start < last.Start {
			return fmt.Errorf("%w: start %d before %d", ErrInvalidStripe, s.Start, last.Start)
		}
	}
	h.stripes = append(h.stripes, s)
	return nil
}

// Empty reports whether the history has no stripes.
func (h *History) Empty() bool {
	return h == nil || len(h.stripes) == 0
}

// Len returns the number of stripes.
func (h *History) Len() int {
	if h == nil {
		return 0
	}
	return len(h.stripes)
}

// Latest returns the most recently added stripe.
// It panics on an empty history.
func (h *History) Latest() Stripe {
	if h.Empty() {
		panic("stripe: latest stripe of empty history")
	}
	return h.stripes[len(h.stripes)-1]
}

// FindStripe returns the stripe covering position.
// It panics on an empty history.
func (h *History) FindStripe(position uint64) Stripe {
	if h.Empty() {
		panic("stripe: find stripe in empty history")
	}
	// First stripe starting after position; the one before it covers it.
	i := sort.Search(len(h.stripes), func(i int) bool {
		return h.stripes[i].Start > position
	})
	if i == 0 {
		// Positions before the first stripe's start belong to it.
		return h.stripes[0]
	}
	return h.stripes[i-1]
}

// MaxWidth returns the widest stripe ever used, which bounds the set of
// object slots that may hold entries.
func (h *History) MaxWidth() uint32 {
	var w uint32
	if h == nil {
		return w
	}
	for _, s := range h.stripes {
		if s.Width > w {
			w = s.Width
		}
	}
	return w
}

// Stripes returns a copy of the stripes in order.
func (h *History) Stripes() []Stripe {
	if h == nil {
		return nil
	}
	out := make([]Stripe, len(h.stripes))
	copy(out, h.stripes)
	return out
}

// Clone returns an independent copy of the history.
func (h *History) Clone() *History {
	return &History{stripes: h.Stripes()}
}
