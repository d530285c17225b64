package zlog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/zlog/backend"
	"github.com/hupe1980/zlog/internal/cache"
	"github.com/hupe1980/zlog/internal/header"
	"github.com/hupe1980/zlog/internal/resource"
	"github.com/hupe1980/zlog/internal/stripe"
	"github.com/hupe1980/zlog/projection"
	"github.com/hupe1980/zlog/sequencer"
)

// Entry is a log entry together with its stream membership.
type Entry struct {
	Position uint64
	// Streams maps each stream the entry belongs to onto the backpointers
	// recorded for it, oldest first. It is empty for plain entries.
	Streams map[uint64][]uint64
	Payload []byte
}

// Log is a handle on a shared log. It caches the log's projection and fences
// every write with the cached epoch.
//
// A Log is safe for concurrent use.
type Log struct {
	name        string
	backend     backend.Backend
	projections *projection.Store
	seq         sequencer.Client

	// mu guards proj and mapper. Refresh takes the write lock.
	mu     sync.RWMutex
	proj   *projection.Projection
	mapper *stripe.Mapper

	cache cache.Cache
	// cacheMu orders cache fills against Trim. A fill is dropped if
	// trimGen moved since its backend read started.
	cacheMu sync.Mutex
	trimGen uint64

	logger  *Logger
	metrics MetricsCollector
	closed  atomic.Bool
}

// Open opens an existing log. It returns ErrNotFound if no projection has
// been committed for name.
func Open(ctx context.Context, c Cluster, name string, optFns ...Option) (*Log, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}

	store := projection.NewStore(c.Projections, name)
	p, err := store.Load(ctx)
	if err != nil {
		return nil, translateError(err)
	}
	return newLog(c, store, p, applyOptions(optFns))
}

// Create creates a log striped over width objects. It returns ErrExists if
// the log already exists.
func Create(ctx context.Context, c Cluster, name string, width uint32, optFns ...Option) (*Log, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}
	if width < 1 {
		return nil, ErrInvalidWidth
	}

	p, err := projection.New(name, width)
	if err != nil {
		return nil, err
	}
	store := projection.NewStore(c.Projections, name)
	if err := store.Save(ctx, p); err != nil {
		if errors.Is(err, projection.ErrConflict) {
			return nil, fmt.Errorf("%w: %s", ErrExists, name)
		}
		return nil, err
	}
	return newLog(c, store, p, applyOptions(optFns))
}

// OpenOrCreate opens the log, creating it with width objects if it does not
// exist.
func OpenOrCreate(ctx context.Context, c Cluster, name string, width uint32, optFns ...Option) (*Log, error) {
	l, err := Open(ctx, c, name, optFns...)
	if !errors.Is(err, ErrNotFound) {
		return l, err
	}
	l, err = Create(ctx, c, name, width, optFns...)
	if errors.Is(err, ErrExists) {
		// Lost a creation race.
		return Open(ctx, c, name, optFns...)
	}
	return l, err
}

func newLog(c Cluster, store *projection.Store, p *projection.Projection, o options) (*Log, error) {
	l := &Log{
		name:        p.LogName,
		backend:     c.Backend,
		projections: store,
		seq:         c.Sequencer,
		logger:      o.logger.WithLog(p.LogName),
		metrics:     o.metricsCollector,
	}
	if o.cacheSize > 0 {
		var rc *resource.Controller
		if o.cacheBudget != nil {
			rc = o.cacheBudget.rc
		}
		l.cache = cache.NewShardedLRU(o.cacheSize, rc)
	}
	if err := l.install(p); err != nil {
		return nil, err
	}
	return l, nil
}

// install replaces the cached projection. Callers hold mu or own l.
func (l *Log) install(p *projection.Projection) error {
	history, err := p.History()
	if err != nil {
		return err
	}
	l.proj = p
	l.mapper = stripe.NewMapper(l.name, history)
	return nil
}

// view returns the cached epoch and mapper. The mapper is never mutated
// after install.
func (l *Log) view() (uint64, *stripe.Mapper) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.proj.Epoch, l.mapper
}

// refresh reloads the projection unless it moved past seen since the caller
// read it.
func (l *Log) refresh(ctx context.Context, seen uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	old := l.proj.Epoch
	if old > seen {
		return nil
	}

	p, err := l.projections.Load(ctx)
	if err == nil && p.Epoch > old {
		err = l.install(p)
	}
	l.metrics.RecordRefresh(l.proj.Epoch, err)
	l.logger.LogRefresh(ctx, old, l.proj.Epoch, err)
	return translateError(err)
}

// RefreshProjection reloads the epoch and stripe history.
func (l *Log) RefreshProjection(ctx context.Context) error {
	if l.closed.Load() {
		return ErrClosed
	}
	epoch, _ := l.view()
	return l.refresh(ctx, epoch)
}

// Append appends a plain entry and returns its position.
func (l *Log) Append(ctx context.Context, data []byte) (uint64, error) {
	return l.MultiAppend(ctx, data, nil)
}

// MultiAppend appends an entry belonging to every stream in streamIDs and
// returns its position.
//
// A stale epoch abandons the reserved position, refreshes the projection
// and starts over. The loop only ends on success, on ctx cancellation or on
// an error other than a stale epoch; in particular ErrReadOnly is returned
// without retrying.
func (l *Log) MultiAppend(ctx context.Context, data []byte, streamIDs []uint64) (uint64, error) {
	if l.closed.Load() {
		return 0, ErrClosed
	}

	start := time.Now()
	pos, retries, err := l.multiAppend(ctx, data, streamIDs)
	l.metrics.RecordAppend(time.Since(start), retries, err)
	l.logger.LogAppend(ctx, pos, streamIDs, retries, err)
	return pos, err
}

func (l *Log) multiAppend(ctx context.Context, data []byte, streamIDs []uint64) (uint64, int, error) {
	for retries := 0; ; retries++ {
		if err := ctx.Err(); err != nil {
			return 0, retries, err
		}

		epoch, mapper := l.view()
		pos, ptrs, err := l.seq.CheckTail(ctx, epoch, streamIDs, true)
		if err != nil {
			if isStale(err) {
				if err := l.refresh(ctx, epoch); err != nil {
					return 0, retries, err
				}
				continue
			}
			return 0, retries, err
		}

		h := make(header.Header, len(streamIDs))
		for _, id := range streamIDs {
			h[id] = ptrs[id]
		}
		entry, err := header.Encode(h, data)
		if err != nil {
			return 0, retries, err
		}

		gen := l.cacheGen()
		err = l.backend.Write(ctx, mapper.FindObject(pos), epoch, pos, entry)
		switch {
		case err == nil:
			l.cacheEntry(ctx, pos, entry, gen)
			return pos, retries, nil
		case isStale(err):
			if err := l.refresh(ctx, epoch); err != nil {
				return 0, retries, err
			}
		default:
			return 0, retries, fmt.Errorf("write position %d: %w", pos, err)
		}
	}
}

// CheckTail returns the next position the sequencer will allocate.
func (l *Log) CheckTail(ctx context.Context) (uint64, error) {
	if l.closed.Load() {
		return 0, ErrClosed
	}
	pos, _, err := l.checkTail(ctx, nil)
	return pos, err
}

// checkTail queries the sequencer without allocating, refreshing on a stale
// epoch.
func (l *Log) checkTail(ctx context.Context, streamIDs []uint64) (uint64, map[uint64][]uint64, error) {
	for {
		if err := ctx.Err(); err != nil {
			return 0, nil, err
		}
		epoch, _ := l.view()
		pos, ptrs, err := l.seq.CheckTail(ctx, epoch, streamIDs, false)
		if !isStale(err) {
			return pos, ptrs, err
		}
		if err := l.refresh(ctx, epoch); err != nil {
			return 0, nil, err
		}
	}
}

func (l *Log) cacheKey(pos uint64) cache.Key {
	return cache.Key{Kind: cache.KindEntry, Name: l.name, Offset: pos}
}

// cacheGen returns the trim generation to pass to cacheEntry.
func (l *Log) cacheGen() uint64 {
	l.cacheMu.Lock()
	defer l.cacheMu.Unlock()
	return l.trimGen
}

// cacheEntry caches entry unless a trim ran since gen was taken.
func (l *Log) cacheEntry(ctx context.Context, pos uint64, entry []byte, gen uint64) {
	if l.cache == nil {
		return
	}
	l.cacheMu.Lock()
	defer l.cacheMu.Unlock()
	if gen == l.trimGen {
		l.cache.Set(ctx, l.cacheKey(pos), entry)
	}
}

// uncache drops pos and rejects fills that started before the call.
func (l *Log) uncache(pos uint64) {
	if l.cache == nil {
		return
	}
	l.cacheMu.Lock()
	defer l.cacheMu.Unlock()
	l.trimGen++
	l.cache.Delete(l.cacheKey(pos))
}

// readRaw returns the stored entry bytes at pos. The result may be shared
// with the cache and must not be modified.
func (l *Log) readRaw(ctx context.Context, pos uint64) ([]byte, error) {
	if l.cache != nil {
		if b, ok := l.cache.Get(ctx, l.cacheKey(pos)); ok {
			return b, nil
		}
	}

	gen := l.cacheGen()
	epoch, mapper := l.view()
	b, err := l.backend.Read(ctx, mapper.FindObject(pos), pos)
	if errors.Is(err, backend.ErrNotWritten) && pos >= mapper.History().Latest().Start {
		// A newer stripe may map pos to an object this handle does not
		// know about yet.
		if rerr := l.refresh(ctx, epoch); rerr != nil {
			return nil, rerr
		}
		if newEpoch, newMapper := l.view(); newEpoch != epoch {
			b, err = l.backend.Read(ctx, newMapper.FindObject(pos), pos)
		}
	}
	if err != nil {
		return nil, err
	}

	l.cacheEntry(ctx, pos, b, gen)
	return b, nil
}

// Read returns the payload stored at pos.
func (l *Log) Read(ctx context.Context, pos uint64) ([]byte, error) {
	e, err := l.ReadEntry(ctx, pos)
	if err != nil {
		return nil, err
	}
	return e.Payload, nil
}

// ReadEntry returns the entry stored at pos. It returns ErrNotWritten for a
// position that was never written and ErrInvalidated for a filled or
// trimmed one.
func (l *Log) ReadEntry(ctx context.Context, pos uint64) (*Entry, error) {
	if l.closed.Load() {
		return nil, ErrClosed
	}

	start := time.Now()
	raw, err := l.readRaw(ctx, pos)
	l.metrics.RecordRead(time.Since(start), err)
	if err != nil {
		return nil, err
	}

	h, payload, err := header.Decode(raw)
	if err != nil {
		return nil, err
	}
	return &Entry{
		Position: pos,
		Streams:  h,
		Payload:  bytes.Clone(payload),
	}, nil
}

// membership returns the decoded header of the entry at pos. It returns
// ErrNotStreamEntry for plain entries.
func (l *Log) membership(ctx context.Context, pos uint64) (header.Header, error) {
	raw, err := l.readRaw(ctx, pos)
	if err != nil {
		return nil, err
	}
	h, _, err := header.Decode(raw)
	if err != nil {
		return nil, err
	}
	if len(h) == 0 {
		return nil, ErrNotStreamEntry
	}
	return h, nil
}

// StreamMembership returns the ascending ids of the streams the entry at pos
// belongs to. It returns ErrNotStreamEntry for plain entries and
// ErrInvalidHeader for malformed ones.
func (l *Log) StreamMembership(ctx context.Context, pos uint64) ([]uint64, error) {
	if l.closed.Load() {
		return nil, ErrClosed
	}
	h, err := l.membership(ctx, pos)
	if err != nil {
		return nil, err
	}
	return h.Streams(), nil
}

// Fill invalidates pos if it was never written. Filling an invalidated
// position succeeds; filling a written one returns ErrReadOnly.
func (l *Log) Fill(ctx context.Context, pos uint64) error {
	return l.tombstone(ctx, "fill", pos, l.backend.Fill)
}

// Trim invalidates pos whatever it holds.
func (l *Log) Trim(ctx context.Context, pos uint64) error {
	l.uncache(pos)
	err := l.tombstone(ctx, "trim", pos, l.backend.Trim)
	l.uncache(pos)
	return err
}

type tombstoneFunc func(ctx context.Context, oid string, epoch, pos uint64) error

func (l *Log) tombstone(ctx context.Context, op string, pos uint64, fn tombstoneFunc) error {
	if l.closed.Load() {
		return ErrClosed
	}

	start := time.Now()
	var err error
	for {
		if err = ctx.Err(); err != nil {
			break
		}
		epoch, mapper := l.view()
		err = fn(ctx, mapper.FindObject(pos), epoch, pos)
		if !isStale(err) {
			break
		}
		if err = l.refresh(ctx, epoch); err != nil {
			break
		}
	}
	l.metrics.RecordFill(time.Since(start), err)
	l.logger.LogFill(ctx, op, pos, err)
	return err
}

// Reconfigure moves the log to a new epoch whose stripe spreads positions
// across width objects. It seals every object of the current history at the
// new epoch, advances the sequencer past the highest written position and
// commits the new projection. The new stripe starts at the sequencer's next
// position.
//
// A reconfiguration that failed part way can be repeated. If another
// reconfiguration commits the epoch first, Reconfigure returns ErrConflict.
func (l *Log) Reconfigure(ctx context.Context, width uint32) (*projection.Projection, error) {
	if l.closed.Load() {
		return nil, ErrClosed
	}
	if width < 1 {
		return nil, ErrInvalidWidth
	}
	r, ok := l.seq.(sequencer.Reconfigurer)
	if !ok {
		return nil, ErrReconfigureNotSupported
	}

	if err := l.RefreshProjection(ctx); err != nil {
		return nil, err
	}
	l.mu.RLock()
	cur, mapper := l.proj, l.mapper
	l.mu.RUnlock()

	epoch := cur.Epoch + 1
	next, err := l.reconfigure(ctx, r, cur, mapper, epoch, width)
	if err != nil {
		l.logger.LogReconfigure(ctx, epoch, 0, width, err)
		return nil, err
	}
	l.logger.LogReconfigure(ctx, epoch, next.Stripes[len(next.Stripes)-1].Start, width, nil)
	return next.Clone(), nil
}

func (l *Log) reconfigure(ctx context.Context, r sequencer.Reconfigurer, cur *projection.Projection, mapper *stripe.Mapper, epoch uint64, width uint32) (*projection.Projection, error) {
	objects := mapper.AllObjects()

	g, gctx := errgroup.WithContext(ctx)
	for _, oid := range objects {
		g.Go(func() error {
			err := l.backend.Seal(gctx, oid, epoch)
			if errors.Is(err, backend.ErrStaleEpoch) {
				// Already sealed by a concurrent or earlier attempt.
				return nil
			}
			if err != nil {
				return fmt.Errorf("seal %s: %w", oid, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	maxPos, found, err := sequencer.MaxPosition(ctx, l.backend, objects)
	if err != nil {
		return nil, err
	}
	floor := mapper.History().Latest().Start
	if found && maxPos+1 > floor {
		floor = maxPos + 1
	}

	start, err := r.Reconfigure(epoch, floor)
	if err != nil {
		return nil, translateError(err)
	}

	next, err := cur.Next(start, width)
	if err != nil {
		return nil, err
	}
	if err := l.projections.Save(ctx, next); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if next.Epoch > l.proj.Epoch {
		if err := l.install(next); err != nil {
			return nil, err
		}
	}
	return next, nil
}

// OpenStream returns a stream handle for id. The handle starts with no known
// positions; call Sync to discover them.
func (l *Log) OpenStream(id uint64) Stream {
	return newStream(l, id)
}

// Name returns the log's name.
func (l *Log) Name() string {
	return l.name
}

// Epoch returns the cached epoch.
func (l *Log) Epoch() uint64 {
	epoch, _ := l.view()
	return epoch
}

// Projection returns a copy of the cached projection.
func (l *Log) Projection() *projection.Projection {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.proj.Clone()
}

// StripeHistory returns the cached stripes, oldest first.
func (l *Log) StripeHistory() []projection.Stripe {
	_, mapper := l.view()
	return mapper.History().Stripes()
}

// FindObject returns the object that stores pos under the cached projection.
func (l *Log) FindObject(pos uint64) string {
	_, mapper := l.view()
	return mapper.FindObject(pos)
}

// LatestObjectSet returns the objects of the current stripe, slot 0 first.
func (l *Log) LatestObjectSet() []string {
	_, mapper := l.view()
	return mapper.LatestObjectSet()
}

// Objects returns every object any stripe of the log maps positions to.
func (l *Log) Objects() []string {
	_, mapper := l.view()
	return mapper.AllObjects()
}

// Close releases the handle. It does not close the cluster.
func (l *Log) Close() error {
	if !l.closed.CompareAndSwap(false, true) {
		return nil
	}
	if l.cache != nil {
		l.cache.Invalidate(func(cache.Key) bool { return true })
	}
	return nil
}
