package projection

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"slices"
	"strconv"
	"strings"

	"github.com/hupe1980/zlog/blobstore"
)

const (
	ProjectionFileName = "PROJECTION"
	CurrentFileName    = "CURRENT"
)

// IsProjectionBlob reports whether name is an immutable per-epoch projection
// blob. Such blobs are safe to cache, CURRENT pointers are not.
func IsProjectionBlob(name string) bool {
	base := path.Base(name)
	return strings.HasPrefix(base, ProjectionFileName+"-") && strings.HasSuffix(base, ".bin")
}

// Store persists the projections of a single log. Each epoch is written once
// to its own blob; CURRENT points at the latest commit and is only a hint.
type Store struct {
	store   blobstore.ConditionalStore
	logName string
}

// NewStore creates a projection store for the named log.
func NewStore(store blobstore.ConditionalStore, logName string) *Store {
	return &Store{store: store, logName: logName}
}

// LogName returns the log the store manages.
func (s *Store) LogName() string {
	return s.logName
}

func (s *Store) epochName(epoch uint64) string {
	return fmt.Sprintf("%s/%s-%06d.bin", s.logName, ProjectionFileName, epoch)
}

func (s *Store) currentName() string {
	return s.logName + "/" + CurrentFileName
}

func (s *Store) parseEpoch(name string) (uint64, bool) {
	base := path.Base(name)
	if !IsProjectionBlob(base) {
		return 0, false
	}
	digits := strings.TrimSuffix(strings.TrimPrefix(base, ProjectionFileName+"-"), ".bin")
	epoch, err := strconv.ParseUint(digits, 10, 64)
	if err != nil {
		return 0, false
	}
	return epoch, true
}

// Load returns the latest committed projection. It returns ErrNotFound when
// the log has none.
func (s *Store) Load(ctx context.Context) (*Projection, error) {
	p, err := s.loadHint(ctx)
	if err != nil {
		return nil, err
	}
	if p == nil {
		epochs, err := s.ListEpochs(ctx)
		if err != nil {
			return nil, err
		}
		if len(epochs) == 0 {
			return nil, ErrNotFound
		}
		if p, err = s.LoadEpoch(ctx, epochs[len(epochs)-1]); err != nil {
			return nil, err
		}
	}

	// CURRENT lags behind a commit whose pointer update failed.
	for {
		next, err := s.LoadEpoch(ctx, p.Epoch+1)
		if errors.Is(err, ErrNotFound) {
			return p, nil
		}
		if err != nil {
			return nil, err
		}
		p = next
	}
}

// loadHint loads the projection CURRENT points at. It returns nil when the
// pointer or its target is missing.
func (s *Store) loadHint(ctx context.Context) (*Projection, error) {
	content, err := s.store.Get(ctx, s.currentName())
	if errors.Is(err, blobstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	epoch, ok := s.parseEpoch(string(content))
	if !ok {
		return nil, nil
	}
	p, err := s.LoadEpoch(ctx, epoch)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return p, err
}

// LoadEpoch loads the projection committed for epoch.
func (s *Store) LoadEpoch(ctx context.Context, epoch uint64) (*Projection, error) {
	name := s.epochName(epoch)
	data, err := s.store.Get(ctx, name)
	if errors.Is(err, blobstore.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read projection %s: %w", name, err)
	}

	p, err := ReadBinary(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("projection %s: %w", name, err)
	}
	if p.Epoch != epoch || p.LogName != s.logName {
		return nil, fmt.Errorf("%w: %s holds %s epoch %d", ErrCorrupt, name, p.LogName, p.Epoch)
	}
	return p, nil
}

// ListEpochs returns the committed epochs in ascending order.
func (s *Store) ListEpochs(ctx context.Context) ([]uint64, error) {
	names, err := s.store.List(ctx, s.logName+"/"+ProjectionFileName+"-")
	if err != nil {
		return nil, err
	}
	var epochs []uint64
	for _, name := range names {
		if epoch, ok := s.parseEpoch(name); ok {
			epochs = append(epochs, epoch)
		}
	}
	slices.Sort(epochs)
	return epochs, nil
}

// Save commits p. The commit succeeds only if no projection exists for
// p.Epoch yet; otherwise it returns ErrConflict.
func (s *Store) Save(ctx context.Context, p *Projection) error {
	if p.LogName != s.logName {
		return fmt.Errorf("projection for log %q saved to store of %q", p.LogName, s.logName)
	}
	if err := p.Validate(); err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := p.WriteBinary(&buf); err != nil {
		return err
	}

	name := s.epochName(p.Epoch)
	if err := s.store.PutIfAbsent(ctx, name, buf.Bytes()); err != nil {
		if errors.Is(err, blobstore.ErrExists) {
			return fmt.Errorf("%w: epoch %d", ErrConflict, p.Epoch)
		}
		return err
	}

	if err := s.store.Put(ctx, s.currentName(), []byte(name)); err != nil {
		return fmt.Errorf("epoch %d committed, update %s: %w", p.Epoch, CurrentFileName, err)
	}
	return nil
}

// DeleteEpoch deletes the projection blob of epoch.
func (s *Store) DeleteEpoch(ctx context.Context, epoch uint64) error {
	return s.store.Delete(ctx, s.epochName(epoch))
}
