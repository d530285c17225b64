// Package sequencer allocates log positions and tracks per-stream
// backpointers.
//
// A Sequencer is fenced by an epoch: callers holding an older epoch are
// rejected with ErrStaleEpoch and must refresh their projection before
// retrying.
package sequencer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/zlog/backend"
)

// DefaultMaxBackpointers is the number of recent positions kept per stream.
const DefaultMaxBackpointers = 10

// ErrStaleEpoch is returned when the caller's epoch is older than the
// sequencer's.
var ErrStaleEpoch = errors.New("sequencer: stale epoch")

// Client is the sequencer capability the log engine depends on.
type Client interface {
	// CheckTail returns the tail of the log and, for every stream id, the
	// backpointer list (oldest first). With allocate set, a new position is
	// reserved and returned, and each list excludes it. Without allocate,
	// the returned position is the next one to be allocated.
	CheckTail(ctx context.Context, epoch uint64, streamIDs []uint64, allocate bool) (uint64, map[uint64][]uint64, error)
}

// Reconfigurer is implemented by sequencers that can be moved to a new epoch
// by an administrative reconfiguration.
type Reconfigurer interface {
	// Reconfigure adopts epoch and returns the next position to allocate,
	// which is at least floor.
	Reconfigure(epoch, floor uint64) (uint64, error)
}

type options struct {
	maxBackpointers int
	epoch           uint64
	next            uint64
}

// Option configures a Sequencer.
type Option func(*options)

// WithMaxBackpointers bounds the per-stream backpointer history.
func WithMaxBackpointers(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxBackpointers = n
		}
	}
}

// WithEpoch sets the starting epoch.
func WithEpoch(epoch uint64) Option {
	return func(o *options) {
		o.epoch = epoch
	}
}

// WithStartPosition sets the first position to allocate.
func WithStartPosition(pos uint64) Option {
	return func(o *options) {
		o.next = pos
	}
}

// Sequencer is an in-process Client.
// Thread-safe for concurrent use.
type Sequencer struct {
	mu              sync.Mutex
	epoch           uint64
	next            uint64
	streams         map[uint64][]uint64
	maxBackpointers int
}

// New creates a sequencer.
func New(optFns ...Option) *Sequencer {
	opts := options{maxBackpointers: DefaultMaxBackpointers}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Sequencer{
		epoch:           opts.epoch,
		next:            opts.next,
		streams:         make(map[uint64][]uint64),
		maxBackpointers: opts.maxBackpointers,
	}
}

// CheckTail implements Client.
func (s *Sequencer) CheckTail(ctx context.Context, epoch uint64, streamIDs []uint64, allocate bool) (uint64, map[uint64][]uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if epoch < s.epoch {
		return 0, nil, ErrStaleEpoch
	}

	var ptrs map[uint64][]uint64
	if len(streamIDs) > 0 {
		ptrs = make(map[uint64][]uint64, len(streamIDs))
		for _, id := range streamIDs {
			ptrs[id] = append([]uint64{}, s.streams[id]...)
		}
	}

	if !allocate {
		return s.next, ptrs, nil
	}

	pos := s.next
	s.next++
	for _, id := range streamIDs {
		s.push(id, pos)
	}
	return pos, ptrs, nil
}

func (s *Sequencer) push(id, pos uint64) {
	list := s.streams[id]
	if n := len(list); n > 0 && list[n-1] == pos {
		// Duplicate id in one request.
		return
	}
	list = append(list, pos)
	if len(list) > s.maxBackpointers {
		list = append(list[:0:0], list[len(list)-s.maxBackpointers:]...)
	}
	s.streams[id] = list
}

// Epoch returns the sequencer's epoch.
func (s *Sequencer) Epoch() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch
}

// Reconfigure moves the sequencer to epoch and makes sure no position below
// floor is allocated afterwards. It returns the next position to allocate.
// Reconfiguring to the current epoch is allowed so an interrupted
// reconfiguration can be resumed.
func (s *Sequencer) Reconfigure(epoch, floor uint64) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if epoch < s.epoch {
		return 0, ErrStaleEpoch
	}
	s.epoch = epoch
	if floor > s.next {
		s.next = floor
	}
	return s.next, nil
}

// Recover raises the next position above the largest position written to
// any of objects. Stream backpointers are not recovered.
func (s *Sequencer) Recover(ctx context.Context, b backend.Backend, objects []string) error {
	maxPos, ok, err := MaxPosition(ctx, b, objects)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if maxPos+1 > s.next {
		s.next = maxPos + 1
	}
	return nil
}

// MaxPosition returns the largest occupied position across objects, queried
// in parallel.
func MaxPosition(ctx context.Context, b backend.Backend, objects []string) (uint64, bool, error) {
	var (
		mu     sync.Mutex
		maxPos uint64
		found  bool
	)

	g, ctx := errgroup.WithContext(ctx)
	for _, oid := range objects {
		g.Go(func() error {
			pos, ok, err := b.MaxPosition(ctx, oid)
			if err != nil {
				return fmt.Errorf("max position of %s: %w", oid, err)
			}
			if !ok {
				return nil
			}
			mu.Lock()
			defer mu.Unlock()
			if !found || pos > maxPos {
				maxPos, found = pos, true
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, false, err
	}
	return maxPos, found, nil
}

var (
	_ Client       = (*Sequencer)(nil)
	_ Reconfigurer = (*Sequencer)(nil)
)
