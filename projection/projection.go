package projection

import (
	"fmt"
	"time"

	"github.com/hupe1980/zlog/internal/stripe"
)

// CurrentVersion is the version of the projection format.
const CurrentVersion = 1

// Stripe describes the object layout used from a given position onwards.
type Stripe = stripe.Stripe

// Projection is the configuration a log handle fences its operations with:
// the current epoch and every stripe the log has used.
type Projection struct {
	Version   int
	LogName   string
	Epoch     uint64
	CreatedAt time.Time
	Stripes   []Stripe
}

// New returns the epoch 0 projection of a new log striped over width objects.
func New(logName string, width uint32) (*Projection, error) {
	p := &Projection{
		Version:   CurrentVersion,
		LogName:   logName,
		Epoch:     0,
		CreatedAt: time.Now(),
		Stripes:   []Stripe{{Epoch: 0, Start: 0, Width: width}},
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Next returns the projection of the following epoch. Its new stripe maps
// positions from start onwards across width objects.
func (p *Projection) Next(start uint64, width uint32) (*Projection, error) {
	epoch := p.Epoch + 1
	next := &Projection{
		Version:   CurrentVersion,
		LogName:   p.LogName,
		Epoch:     epoch,
		CreatedAt: time.Now(),
		Stripes:   append(append([]Stripe(nil), p.Stripes...), Stripe{Epoch: epoch, Start: start, Width: width}),
	}
	if err := next.Validate(); err != nil {
		return nil, err
	}
	return next, nil
}

// History returns the stripe history of the projection.
func (p *Projection) History() (*stripe.History, error) {
	return stripe.NewHistory(p.Stripes...)
}

// Validate checks that the stripes form a valid history whose latest stripe
// was opened by the projection's epoch.
func (p *Projection) Validate() error {
	if p.LogName == "" {
		return fmt.Errorf("%w: empty log name", ErrCorrupt)
	}
	if len(p.Stripes) == 0 {
		return fmt.Errorf("%w: no stripes", ErrCorrupt)
	}
	if _, err := p.History(); err != nil {
		return fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	if latest := p.Stripes[len(p.Stripes)-1]; latest.Epoch != p.Epoch {
		return fmt.Errorf("%w: latest stripe epoch %d, projection epoch %d", ErrCorrupt, latest.Epoch, p.Epoch)
	}
	return nil
}

// Clone returns a deep copy of the projection.
func (p *Projection) Clone() *Projection {
	c := *p
	c.Stripes = append([]Stripe(nil), p.Stripes...)
	return &c
}
