// Package compress implements the self-describing value compression used by
// storage backends for entry bytes at rest.
//
// Block format:
//
//	[Type:1][UncompressedSize:4 little-endian][Data...]
//
// Values that do not shrink are stored with Type None.
package compress

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Type defines the compression algorithm used for a block.
type Type uint8

const (
	// None stores the value as is.
	None Type = 0
	// LZ4 uses LZ4 block compression (fast, good for hot data).
	LZ4 Type = 1
	// ZSTD uses ZSTD compression (better ratio).
	ZSTD Type = 2
)

func (t Type) String() string {
	switch t {
	case None:
		return "none"
	case LZ4:
		return "lz4"
	case ZSTD:
		return "zstd"
	default:
		return fmt.Sprintf("compress.Type(%d)", uint8(t))
	}
}

// ParseType returns the Type named s.
func ParseType(s string) (Type, error) {
	switch s {
	case "", "none":
		return None, nil
	case "lz4":
		return LZ4, nil
	case "zstd":
		return ZSTD, nil
	default:
		return None, fmt.Errorf("unknown compression %q", s)
	}
}

const headerSize = 5

// MaxDecodedSize bounds the uncompressed size a block may declare.
const MaxDecodedSize = 64 << 20

// lz4MaxRatio is the largest expansion an LZ4 block can encode per input byte.
const lz4MaxRatio = 255

// ErrCorrupt is returned when a block cannot be decoded.
var ErrCorrupt = errors.New("corrupt compressed block")

// ZSTD encoder/decoder pools for efficiency
var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

// Encode compresses data with t and returns the framed block.
func Encode(data []byte, t Type) ([]byte, error) {
	if len(data) > MaxDecodedSize {
		return nil, fmt.Errorf("value of %d bytes exceeds %d", len(data), MaxDecodedSize)
	}

	var (
		compressed []byte
		err        error
	)

	switch t {
	case None:
	case LZ4:
		compressed, err = encodeLZ4(data)
	case ZSTD:
		enc := getZstdEncoder()
		compressed = enc.EncodeAll(data, nil)
		zstdEncoderPool.Put(enc)
	default:
		return nil, fmt.Errorf("unsupported compression %v", t)
	}
	if err != nil {
		return nil, err
	}

	// If compression doesn't help (ratio > 0.9), store uncompressed
	if len(compressed) == 0 || float64(len(compressed)) > float64(len(data))*0.9 {
		t = None
		compressed = data
	}

	block := make([]byte, headerSize+len(compressed))
	block[0] = byte(t)
	binary.LittleEndian.PutUint32(block[1:], uint32(len(data))) //nolint:gosec
	copy(block[headerSize:], compressed)
	return block, nil
}

func encodeLZ4(data []byte) ([]byte, error) {
	buf := make([]byte, lz4.CompressBlockBound(len(data)))
	n, err := lz4.CompressBlock(data, buf, nil)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil // incompressible
	}
	return buf[:n], nil
}

// Decode returns the original bytes of a block produced by Encode.
func Decode(block []byte) ([]byte, error) {
	if len(block) < headerSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrCorrupt, len(block))
	}
	t := Type(block[0])
	size := binary.LittleEndian.Uint32(block[1:])
	data := block[headerSize:]
	if size > MaxDecodedSize {
		return nil, fmt.Errorf("%w: declared size %d exceeds %d", ErrCorrupt, size, MaxDecodedSize)
	}

	switch t {
	case None:
		if uint32(len(data)) != size { //nolint:gosec
			return nil, fmt.Errorf("%w: size mismatch", ErrCorrupt)
		}
		out := make([]byte, len(data))
		copy(out, data)
		return out, nil

	case LZ4:
		if uint64(size) > uint64(len(data))*lz4MaxRatio+16 {
			return nil, fmt.Errorf("%w: declared size %d too large for %d bytes", ErrCorrupt, size, len(data))
		}
		out := make([]byte, size)
		n, err := lz4.UncompressBlock(data, out)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
		}
		if uint32(n) != size { //nolint:gosec
			return nil, fmt.Errorf("%w: decompressed size mismatch", ErrCorrupt)
		}
		return out, nil

	case ZSTD:
		dec := getZstdDecoder()
		defer zstdDecoderPool.Put(dec)

		// DecodeAll grows the buffer as needed; the header only hints.
		out, err := dec.DecodeAll(data, make([]byte, 0, min(int(size), 4*len(data)+64)))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
		}
		if uint32(len(out)) != size { //nolint:gosec
			return nil, fmt.Errorf("%w: decompressed size mismatch", ErrCorrupt)
		}
		return out, nil

	default:
		return nil, fmt.Errorf("%w: unknown type %d", ErrCorrupt, t)
	}
}
