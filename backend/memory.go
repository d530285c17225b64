package backend

import (
	"context"
	"sync"

	"github.com/google/btree"
)

// MemoryBackend is an in-memory Backend implementation for testing.
// It also implements KVStore and ByteStore.
// Thread-safe for concurrent use.
type MemoryBackend struct {
	mu      sync.Mutex
	objects map[string]*memoryObject

	hookMu    sync.RWMutex
	writeHook func(oid string, epoch, position uint64)
}

type memorySlot struct {
	pos         uint64
	data        []byte
	invalidated bool
}

type memoryKV struct {
	key   string
	value []byte
}

type memoryObject struct {
	epoch uint64
	slots *btree.BTreeG[memorySlot]
	keys  *btree.BTreeG[memoryKV]
	bytes []byte
}

func newMemoryObject() *memoryObject {
	return &memoryObject{
		slots: btree.NewG(16, func(a, b memorySlot) bool { return a.pos < b.pos }),
		keys:  btree.NewG(16, func(a, b memoryKV) bool { return a.key < b.key }),
	}
}

// NewMemoryBackend creates a new in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		objects: make(map[string]*memoryObject),
	}
}

// SetWriteHook installs fn to run before every Write, outside the backend's
// lock. Tests use it to interleave reconfigurations with appends.
func (m *MemoryBackend) SetWriteHook(fn func(oid string, epoch, position uint64)) {
	m.hookMu.Lock()
	defer m.hookMu.Unlock()
	m.writeHook = fn
}

func (m *MemoryBackend) object(oid string) *memoryObject {
	obj, ok := m.objects[oid]
	if !ok {
		obj = newMemoryObject()
		m.objects[oid] = obj
	}
	return obj
}

// Write implements Backend.
func (m *MemoryBackend) Write(ctx context.Context, oid string, epoch, position uint64, data []byte) error {
	m.hookMu.RLock()
	hook := m.writeHook
	m.hookMu.RUnlock()
	if hook != nil {
		hook(oid, epoch, position)
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	obj := m.object(oid)
	if epoch < obj.epoch {
		return ErrStaleEpoch
	}
	if _, ok := obj.slots.Get(memorySlot{pos: position}); ok {
		return ErrReadOnly
	}

	// Copy to prevent external mutation
	copied := make([]byte, len(data))
	copy(copied, data)
	obj.slots.ReplaceOrInsert(memorySlot{pos: position, data: copied})
	return nil
}

// Read implements Backend.
func (m *MemoryBackend) Read(ctx context.Context, oid string, position uint64) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	obj, ok := m.objects[oid]
	if !ok {
		return nil, ErrNotWritten
	}
	slot, ok := obj.slots.Get(memorySlot{pos: position})
	if !ok {
		return nil, ErrNotWritten
	}
	if slot.invalidated {
		return nil, ErrInvalidated
	}

	copied := make([]byte, len(slot.data))
	copy(copied, slot.data)
	return copied, nil
}

// Fill implements Backend.
func (m *MemoryBackend) Fill(ctx context.Context, oid string, epoch, position uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	obj := m.object(oid)
	if epoch < obj.epoch {
		return ErrStaleEpoch
	}
	if slot, ok := obj.slots.Get(memorySlot{pos: position}); ok {
		if slot.invalidated {
			return nil
		}
		return ErrReadOnly
	}
	obj.slots.ReplaceOrInsert(memorySlot{pos: position, invalidated: true})
	return nil
}

// Trim implements Backend.
func (m *MemoryBackend) Trim(ctx context.Context, oid string, epoch, position uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	obj := m.object(oid)
	if epoch < obj.epoch {
		return ErrStaleEpoch
	}
	obj.slots.ReplaceOrInsert(memorySlot{pos: position, invalidated: true})
	return nil
}

// Seal implements Backend.
func (m *MemoryBackend) Seal(ctx context.Context, oid string, epoch uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	obj := m.object(oid)
	if epoch <= obj.epoch {
		return ErrStaleEpoch
	}
	obj.epoch = epoch
	return nil
}

// MaxPosition implements Backend.
func (m *MemoryBackend) MaxPosition(ctx context.Context, oid string) (uint64, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	obj, ok := m.objects[oid]
	if !ok {
		return 0, false, nil
	}
	slot, ok := obj.slots.Max()
	if !ok {
		return 0, false, nil
	}
	return slot.pos, true, nil
}

// SetKeys implements KVStore.
func (m *MemoryBackend) SetKeys(ctx context.Context, oid string, kvs map[string][]byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	obj := m.object(oid)
	for k, v := range kvs {
		copied := make([]byte, len(v))
		copy(copied, v)
		obj.keys.ReplaceOrInsert(memoryKV{key: k, value: copied})
	}
	return nil
}

// GetKey implements KVStore.
func (m *MemoryBackend) GetKey(ctx context.Context, oid, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	obj, ok := m.objects[oid]
	if !ok {
		return nil, ErrNotFound
	}
	kv, ok := obj.keys.Get(memoryKV{key: key})
	if !ok {
		return nil, ErrNotFound
	}
	copied := make([]byte, len(kv.value))
	copy(copied, kv.value)
	return copied, nil
}

// WriteFull implements ByteStore.
func (m *MemoryBackend) WriteFull(ctx context.Context, oid string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	obj := m.object(oid)
	obj.bytes = make([]byte, len(data))
	copy(obj.bytes, data)
	return nil
}

// WriteAt implements ByteStore.
func (m *MemoryBackend) WriteAt(ctx context.Context, oid string, off int64, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	obj := m.object(oid)
	end := int(off) + len(data)
	if end > len(obj.bytes) {
		grown := make([]byte, end)
		copy(grown, obj.bytes)
		obj.bytes = grown
	}
	copy(obj.bytes[off:], data)
	return nil
}

// AppendObject implements ByteStore.
func (m *MemoryBackend) AppendObject(ctx context.Context, oid string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	obj := m.object(oid)
	obj.bytes = append(obj.bytes, data...)
	return nil
}

// ReadObject implements ByteStore.
func (m *MemoryBackend) ReadObject(ctx context.Context, oid string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	obj, ok := m.objects[oid]
	if !ok || obj.bytes == nil {
		return nil, ErrNotFound
	}
	copied := make([]byte, len(obj.bytes))
	copy(copied, obj.bytes)
	return copied, nil
}

// Close implements Backend.
func (m *MemoryBackend) Close() error {
	return nil
}

var (
	_ Backend   = (*MemoryBackend)(nil)
	_ KVStore   = (*MemoryBackend)(nil)
	_ ByteStore = (*MemoryBackend)(nil)
)
