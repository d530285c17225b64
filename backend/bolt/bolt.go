// Package bolt implements a single-node durable backend on bbolt.
//
// Each object is a top-level bucket holding its sealed epoch, a slots
// sub-bucket keyed by big-endian position, and the optional key-value and
// byte-object spaces used by the benchmark workloads.
package bolt

import (
	"context"
	"encoding/binary"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/hupe1980/zlog/backend"
	"github.com/hupe1980/zlog/internal/compress"
)

const (
	slotData      byte = 1
	slotTombstone byte = 2
)

var (
	slotsBucket = []byte("slots")
	kvBucket    = []byte("kv")
	epochKey    = []byte("epoch")
	bytesKey    = []byte("bytes")
)

type options struct {
	compression compress.Type
	noSync      bool
	timeout     time.Duration
}

// Option configures a Backend.
type Option func(*options)

// WithCompression sets the compression applied to slot payloads.
// Defaults to compress.None.
func WithCompression(t compress.Type) Option {
	return func(o *options) {
		o.compression = t
	}
}

// WithNoSync skips fsync on commit. Only useful for benchmarks.
func WithNoSync(noSync bool) Option {
	return func(o *options) {
		o.noSync = noSync
	}
}

// WithTimeout bounds how long Open waits for the file lock.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// Backend stores log objects in a bbolt database file.
type Backend struct {
	db   *bolt.DB
	opts options
}

// Open opens (or creates) the database at path.
func Open(path string, optFns ...Option) (*Backend, error) {
	opts := options{
		compression: compress.None,
		timeout:     time.Second,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: opts.timeout})
	if err != nil {
		return nil, fmt.Errorf("bolt: open %s: %w", path, err)
	}
	db.NoSync = opts.noSync

	return &Backend{db: db, opts: opts}, nil
}

// Path returns the database file path.
func (b *Backend) Path() string {
	return b.db.Path()
}

func positionKey(pos uint64) []byte {
	var k [8]byte
	binary.BigEndian.PutUint64(k[:], pos)
	return k[:]
}

func objectEpoch(obj *bolt.Bucket) uint64 {
	v := obj.Get(epochKey)
	if len(v) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(v)
}

// fencedSlots opens oid for a mutation at epoch and returns its slots bucket.
func fencedSlots(tx *bolt.Tx, oid string, epoch uint64) (*bolt.Bucket, error) {
	obj, err := tx.CreateBucketIfNotExists([]byte(oid))
	if err != nil {
		return nil, err
	}
	if epoch < objectEpoch(obj) {
		return nil, backend.ErrStaleEpoch
	}
	return obj.CreateBucketIfNotExists(slotsBucket)
}

// Write implements backend.Backend.
func (b *Backend) Write(ctx context.Context, oid string, epoch, position uint64, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	block, err := compress.Encode(data, b.opts.compression)
	if err != nil {
		return fmt.Errorf("bolt: compress: %w", err)
	}
	value := make([]byte, 1+len(block))
	value[0] = slotData
	copy(value[1:], block)

	return b.db.Update(func(tx *bolt.Tx) error {
		slots, err := fencedSlots(tx, oid, epoch)
		if err != nil {
			return err
		}
		key := positionKey(position)
		if slots.Get(key) != nil {
			return backend.ErrReadOnly
		}
		return slots.Put(key, value)
	})
}

// Read implements backend.Backend.
func (b *Backend) Read(ctx context.Context, oid string, position uint64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		obj := tx.Bucket([]byte(oid))
		if obj == nil {
			return backend.ErrNotWritten
		}
		slots := obj.Bucket(slotsBucket)
		if slots == nil {
			return backend.ErrNotWritten
		}
		v := slots.Get(positionKey(position))
		if v == nil {
			return backend.ErrNotWritten
		}
		if v[0] == slotTombstone {
			return backend.ErrInvalidated
		}
		// Decode copies out of the mmap'd page.
		data, err := compress.Decode(v[1:])
		if err != nil {
			return fmt.Errorf("bolt: %s@%d: %w", oid, position, err)
		}
		out = data
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Fill implements backend.Backend.
func (b *Backend) Fill(ctx context.Context, oid string, epoch, position uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return b.db.Update(func(tx *bolt.Tx) error {
		slots, err := fencedSlots(tx, oid, epoch)
		if err != nil {
			return err
		}
		key := positionKey(position)
		if v := slots.Get(key); v != nil {
			if v[0] == slotTombstone {
				return nil
			}
			return backend.ErrReadOnly
		}
		return slots.Put(key, []byte{slotTombstone})
	})
}

// Trim implements backend.Backend.
func (b *Backend) Trim(ctx context.Context, oid string, epoch, position uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return b.db.Update(func(tx *bolt.Tx) error {
		slots, err := fencedSlots(tx, oid, epoch)
		if err != nil {
			return err
		}
		return slots.Put(positionKey(position), []byte{slotTombstone})
	})
}

// Seal implements backend.Backend.
func (b *Backend) Seal(ctx context.Context, oid string, epoch uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return b.db.Update(func(tx *bolt.Tx) error {
		obj, err := tx.CreateBucketIfNotExists([]byte(oid))
		if err != nil {
			return err
		}
		if epoch <= objectEpoch(obj) {
			return backend.ErrStaleEpoch
		}
		return obj.Put(epochKey, positionKey(epoch))
	})
}

// MaxPosition implements backend.Backend.
func (b *Backend) MaxPosition(ctx context.Context, oid string) (uint64, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}

	var (
		pos uint64
		ok  bool
	)
	err := b.db.View(func(tx *bolt.Tx) error {
		obj := tx.Bucket([]byte(oid))
		if obj == nil {
			return nil
		}
		slots := obj.Bucket(slotsBucket)
		if slots == nil {
			return nil
		}
		k, _ := slots.Cursor().Last()
		if k == nil {
			return nil
		}
		pos, ok = binary.BigEndian.Uint64(k), true
		return nil
	})
	return pos, ok, err
}

// SetKeys implements backend.KVStore.
func (b *Backend) SetKeys(ctx context.Context, oid string, kvs map[string][]byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return b.db.Update(func(tx *bolt.Tx) error {
		obj, err := tx.CreateBucketIfNotExists([]byte(oid))
		if err != nil {
			return err
		}
		kv, err := obj.CreateBucketIfNotExists(kvBucket)
		if err != nil {
			return err
		}
		for k, v := range kvs {
			if err := kv.Put([]byte(k), v); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetKey implements backend.KVStore.
func (b *Backend) GetKey(ctx context.Context, oid, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		obj := tx.Bucket([]byte(oid))
		if obj == nil {
			return backend.ErrNotFound
		}
		kv := obj.Bucket(kvBucket)
		if kv == nil {
			return backend.ErrNotFound
		}
		v := kv.Get([]byte(key))
		if v == nil {
			return backend.ErrNotFound
		}
		out = append([]byte(nil), v...)
		return nil
	})
	return out, err
}

// The byte object is stored with a one byte marker so an empty object is
// distinguishable from a missing one.
func (b *Backend) updateBytes(ctx context.Context, oid string, fn func(cur []byte) []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return b.db.Update(func(tx *bolt.Tx) error {
		obj, err := tx.CreateBucketIfNotExists([]byte(oid))
		if err != nil {
			return err
		}
		var cur []byte
		if v := obj.Get(bytesKey); len(v) > 0 {
			cur = append([]byte(nil), v[1:]...)
		}
		next := fn(cur)
		value := make([]byte, 1+len(next))
		copy(value[1:], next)
		return obj.Put(bytesKey, value)
	})
}

// WriteFull implements backend.ByteStore.
func (b *Backend) WriteFull(ctx context.Context, oid string, data []byte) error {
	return b.updateBytes(ctx, oid, func([]byte) []byte {
		return data
	})
}

// WriteAt implements backend.ByteStore.
func (b *Backend) WriteAt(ctx context.Context, oid string, off int64, data []byte) error {
	return b.updateBytes(ctx, oid, func(cur []byte) []byte {
		end := int(off) + len(data)
		if end > len(cur) {
			grown := make([]byte, end)
			copy(grown, cur)
			cur = grown
		}
		copy(cur[off:], data)
		return cur
	})
}

// AppendObject implements backend.ByteStore.
func (b *Backend) AppendObject(ctx context.Context, oid string, data []byte) error {
	return b.updateBytes(ctx, oid, func(cur []byte) []byte {
		return append(cur, data...)
	})
}

// ReadObject implements backend.ByteStore.
func (b *Backend) ReadObject(ctx context.Context, oid string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var out []byte
	err := b.db.View(func(tx *bolt.Tx) error {
		obj := tx.Bucket([]byte(oid))
		if obj == nil {
			return backend.ErrNotFound
		}
		v := obj.Get(bytesKey)
		if len(v) == 0 {
			return backend.ErrNotFound
		}
		out = append([]byte{}, v[1:]...)
		return nil
	})
	return out, err
}

// Close implements backend.Backend.
func (b *Backend) Close() error {
	return b.db.Close()
}

var (
	_ backend.Backend   = (*Backend)(nil)
	_ backend.KVStore   = (*Backend)(nil)
	_ backend.ByteStore = (*Backend)(nil)
)
