package zlog

import (
	"bytes"
	"context"
	"errors"
	"time"

	"github.com/hupe1980/zlog/internal/header"
	"github.com/hupe1980/zlog/internal/posset"
)

// Stream is a cursor over the positions of one stream multiplexed in a log.
//
// Known positions are discovered by Sync and only ever grow. A Stream is not
// safe for concurrent use.
type Stream interface {
	// ID returns the stream id.
	ID() uint64

	// Append appends data to the log as a member of this stream. It does
	// not add the position to the known set; Sync discovers it.
	Append(ctx context.Context, data []byte) (uint64, error)

	// ReadNext returns the entry at the cursor and advances it. It returns
	// ErrExhausted once every known position has been delivered.
	ReadNext(ctx context.Context) (uint64, []byte, error)

	// Reset moves the cursor back to the smallest known position.
	Reset()

	// Sync discovers the stream positions written since the last Sync.
	// Positions that were reserved but never written are filled.
	Sync(ctx context.Context) error

	// History returns the known positions in ascending order.
	History() []uint64
}

type stream struct {
	log *Log
	id  uint64

	known *posset.Set

	// current is the next position to deliver unless atEnd.
	current uint64
	atEnd   bool

	// previous is the last delivered position if hasPrevious.
	previous    uint64
	hasPrevious bool
}

func newStream(l *Log, id uint64) *stream {
	return &stream{
		log:   l,
		id:    id,
		known: posset.New(),
		atEnd: true,
	}
}

func (s *stream) ID() uint64 {
	return s.id
}

func (s *stream) Append(ctx context.Context, data []byte) (uint64, error) {
	return s.log.MultiAppend(ctx, data, []uint64{s.id})
}

func (s *stream) ReadNext(ctx context.Context) (uint64, []byte, error) {
	if s.atEnd {
		return 0, nil, ErrExhausted
	}
	if s.log.closed.Load() {
		return 0, nil, ErrClosed
	}

	pos := s.current
	start := time.Now()
	raw, err := s.log.readRaw(ctx, pos)
	s.log.metrics.RecordRead(time.Since(start), err)
	if err != nil {
		return 0, nil, err
	}

	h, payload, err := header.Decode(raw)
	if err != nil {
		return 0, nil, &IntegrityError{StreamID: s.id, Position: pos, cause: err}
	}
	if !h.Contains(s.id) {
		return 0, nil, &IntegrityError{StreamID: s.id, Position: pos, cause: errNotMember}
	}

	s.previous, s.hasPrevious = pos, true
	s.current, s.atEnd = s.after(pos)
	return pos, bytes.Clone(payload), nil
}

// after returns the known position following pos; atEnd is true if there is
// none.
func (s *stream) after(pos uint64) (next uint64, atEnd bool) {
	next, ok := s.known.After(pos)
	return next, !ok
}

func (s *stream) Reset() {
	first, ok := s.known.Min()
	s.current, s.atEnd = first, !ok
}

func (s *stream) History() []uint64 {
	return s.known.Slice()
}

func (s *stream) Sync(ctx context.Context) error {
	if s.log.closed.Load() {
		return ErrClosed
	}

	start := time.Now()
	scanned, discovered, err := s.sync(ctx)
	s.log.metrics.RecordSync(time.Since(start), scanned, discovered, err)
	s.log.logger.LogSync(ctx, s.id, scanned, discovered, err)
	return err
}

func (s *stream) sync(ctx context.Context) (scanned, discovered int, err error) {
	_, ptrs, err := s.log.checkTail(ctx, []uint64{s.id})
	if err != nil {
		return 0, 0, err
	}

	backpointers := ptrs[s.id]
	if len(backpointers) == 0 {
		return 0, 0, nil
	}
	tail := backpointers[0]
	for _, p := range backpointers[1:] {
		tail = max(tail, p)
	}

	knownTail, hasKnown := s.known.Max()
	if hasKnown && knownTail >= tail {
		return 0, 0, nil
	}

	updates := posset.New()
	for pos := tail; ; pos-- {
		if hasKnown && pos == knownTail {
			break
		}
		if err := ctx.Err(); err != nil {
			return scanned, updates.Len(), err
		}

		scanned++
		member, err := s.resolve(ctx, pos)
		if err != nil {
			return scanned, updates.Len(), err
		}
		if member {
			updates.Add(pos)
		}

		if pos == 0 {
			break
		}
	}

	if updates.IsEmpty() {
		return scanned, 0, nil
	}
	s.known.Union(updates)

	if s.atEnd {
		if s.hasPrevious {
			s.current, s.atEnd = s.after(s.previous)
		} else {
			s.Reset()
		}
	}
	return scanned, updates.Len(), nil
}

// resolve reports whether pos belongs to the stream. Unwritten positions are
// filled; a fill that loses to a concurrent write or fill is followed by
// another read.
func (s *stream) resolve(ctx context.Context, pos uint64) (bool, error) {
	for {
		h, err := s.log.membership(ctx, pos)
		switch {
		case err == nil:
			return h.Contains(s.id), nil
		case errors.Is(err, ErrNotStreamEntry), errors.Is(err, ErrInvalidHeader), errors.Is(err, ErrInvalidated):
			return false, nil
		case errors.Is(err, ErrNotWritten):
			ferr := s.log.Fill(ctx, pos)
			if ferr == nil {
				return false, nil
			}
			if !errors.Is(ferr, ErrReadOnly) {
				return false, ferr
			}
		default:
			return false, err
		}
	}
}
