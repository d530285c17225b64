package bench

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/hupe1980/zlog"
	"github.com/hupe1980/zlog/backend"
)

// Workload names accepted by NewWorkload.
const (
	WorkloadMapN1              = "map_n1"
	WorkloadMap11              = "map_11"
	WorkloadByteStream11       = "bytestream_11"
	WorkloadByteStreamN1Write  = "bytestream_n1_write"
	WorkloadByteStreamN1Append = "bytestream_n1_append"
	WorkloadLogAppend          = "log_append"
)

// ErrUnsupported is returned when the backend lacks the capability a
// workload needs.
var ErrUnsupported = errors.New("bench: workload not supported by backend")

// ErrVerify is returned when a read-back does not match the written entry.
var ErrVerify = errors.New("bench: read-back mismatch")

// Workload issues one operation per sequence number.
type Workload interface {
	// Name returns the workload's name.
	Name() string
	// Op performs operation seq writing data.
	Op(ctx context.Context, seq uint64, data []byte) error
}

// WorkloadConfig selects and parameterizes a workload.
type WorkloadConfig struct {
	// Name is one of the Workload* constants.
	Name string
	// Prefix is prepended to every object id.
	Prefix string
	// Width is the number of objects striped workloads spread entries over.
	Width int
	// Backend serves the object-level workloads.
	Backend backend.Backend
	// Log serves the log_append workload.
	Log *zlog.Log
	// Streams, if positive, makes log_append entries members of stream
	// seq % Streams.
	Streams int
	// Verify reads back every log_append entry.
	Verify bool
}

// NewWorkload returns the workload named by cfg.Name.
func NewWorkload(cfg WorkloadConfig) (Workload, error) {
	width := uint64(max(cfg.Width, 1))

	switch cfg.Name {
	case WorkloadMapN1, WorkloadMap11:
		kv, ok := cfg.Backend.(backend.KVStore)
		if !ok {
			return nil, fmt.Errorf("%w: %s needs a key-value store", ErrUnsupported, cfg.Name)
		}
		if cfg.Name == WorkloadMapN1 {
			return &mapN1{kv: kv, prefix: cfg.Prefix, width: width}, nil
		}
		return &map11{kv: kv, prefix: cfg.Prefix}, nil
	case WorkloadByteStream11, WorkloadByteStreamN1Write, WorkloadByteStreamN1Append:
		bs, ok := cfg.Backend.(backend.ByteStore)
		if !ok {
			return nil, fmt.Errorf("%w: %s needs a byte store", ErrUnsupported, cfg.Name)
		}
		switch cfg.Name {
		case WorkloadByteStream11:
			return &byteStream11{bs: bs, prefix: cfg.Prefix}, nil
		case WorkloadByteStreamN1Write:
			return &byteStreamN1Write{bs: bs, prefix: cfg.Prefix, width: width}, nil
		default:
			return &byteStreamN1Append{bs: bs, prefix: cfg.Prefix, width: width}, nil
		}
	case WorkloadLogAppend:
		if cfg.Log == nil {
			return nil, fmt.Errorf("%w: %s needs a log", ErrUnsupported, cfg.Name)
		}
		return &logAppend{log: cfg.Log, streams: uint64(max(cfg.Streams, 0)), verify: cfg.Verify}, nil
	default:
		return nil, fmt.Errorf("bench: unknown workload %q", cfg.Name)
	}
}

// mapN1 stores entry seq under key seq of object seq % width.
type mapN1 struct {
	kv     backend.KVStore
	prefix string
	width  uint64
}

func (w *mapN1) Name() string { return WorkloadMapN1 }

func (w *mapN1) Op(ctx context.Context, seq uint64, data []byte) error {
	oid := w.prefix + "log_mapN1." + strconv.FormatUint(seq%w.width, 10)
	return w.kv.SetKeys(ctx, oid, map[string][]byte{strconv.FormatUint(seq, 10): data})
}

// map11 stores every entry in its own object under the key "entry".
type map11 struct {
	kv     backend.KVStore
	prefix string
}

func (w *map11) Name() string { return WorkloadMap11 }

func (w *map11) Op(ctx context.Context, seq uint64, data []byte) error {
	oid := w.prefix + "log_map11." + strconv.FormatUint(seq, 10)
	return w.kv.SetKeys(ctx, oid, map[string][]byte{"entry": data})
}

// byteStream11 writes every entry as the full content of its own object.
type byteStream11 struct {
	bs     backend.ByteStore
	prefix string
}

func (w *byteStream11) Name() string { return WorkloadByteStream11 }

func (w *byteStream11) Op(ctx context.Context, seq uint64, data []byte) error {
	oid := w.prefix + "log_bytestream11." + strconv.FormatUint(seq, 10)
	return w.bs.WriteFull(ctx, oid, data)
}

// byteStreamN1Write writes entry seq at a fixed offset of object seq % width.
type byteStreamN1Write struct {
	bs     backend.ByteStore
	prefix string
	width  uint64
}

func (w *byteStreamN1Write) Name() string { return WorkloadByteStreamN1Write }

func (w *byteStreamN1Write) Op(ctx context.Context, seq uint64, data []byte) error {
	oid := w.prefix + "log_bytestreamN1write." + strconv.FormatUint(seq%w.width, 10)
	off := int64(seq/w.width) * int64(len(data))
	return w.bs.WriteAt(ctx, oid, off, data)
}

// byteStreamN1Append appends entry seq to object seq % width.
type byteStreamN1Append struct {
	bs     backend.ByteStore
	prefix string
	width  uint64
}

func (w *byteStreamN1Append) Name() string { return WorkloadByteStreamN1Append }

func (w *byteStreamN1Append) Op(ctx context.Context, seq uint64, data []byte) error {
	oid := w.prefix + "log_bytestreamN1append." + strconv.FormatUint(seq%w.width, 10)
	return w.bs.AppendObject(ctx, oid, data)
}

// logAppend appends entries through the log.
type logAppend struct {
	log     *zlog.Log
	streams uint64
	verify  bool
}

func (w *logAppend) Name() string { return WorkloadLogAppend }

func (w *logAppend) Op(ctx context.Context, seq uint64, data []byte) error {
	var ids []uint64
	if w.streams > 0 {
		ids = []uint64{seq % w.streams}
	}
	pos, err := w.log.MultiAppend(ctx, data, ids)
	if err != nil {
		return err
	}
	if !w.verify {
		return nil
	}

	got, err := w.log.Read(ctx, pos)
	if err != nil {
		return fmt.Errorf("verify position %d: %w", pos, err)
	}
	if !bytes.Equal(got, data) {
		return fmt.Errorf("%w at position %d", ErrVerify, pos)
	}
	return nil
}
