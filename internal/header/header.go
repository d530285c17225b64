// Package header encodes the metadata prefixed to every log entry.
//
// Entry layout:
//
//	[HeaderLen:4 big-endian][Header:HeaderLen][Payload]
//
// The header is a protobuf EntryHeader message:
//
//	message StreamBackPointer {
//	  required uint64 id = 1;
//	  repeated uint64 backpointer = 2;
//	}
//	message EntryHeader {
//	  repeated StreamBackPointer stream_backpointers = 1;
//	}
//
// An entry whose header lists no streams is a plain log entry.
package header

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"

	"google.golang.org/protobuf/encoding/protowire"
)

// MaxLen is the largest accepted encoded header.
const MaxLen = 512

const prefixLen = 4

const (
	fieldStreamBackpointers protowire.Number = 1

	fieldStreamID    protowire.Number = 1
	fieldBackpointer protowire.Number = 2
)

// ErrInvalid is returned for truncated, oversized or malformed headers.
var ErrInvalid = errors.New("invalid entry header")

// Header maps stream ids to their backpointers, oldest first.
type Header map[uint64][]uint64

// Streams returns the stream ids in ascending order.
func (h Header) Streams() []uint64 {
	ids := make([]uint64, 0, len(h))
	for id := range h {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Contains reports whether the header declares membership in stream id.
func (h Header) Contains(id uint64) bool {
	_, ok := h[id]
	return ok
}

// Encode returns the entry bytes for h followed by payload.
func Encode(h Header, payload []byte) ([]byte, error) {
	hdr := marshal(h)
	if len(hdr) > MaxLen {
		return nil, fmt.Errorf("%w: header length %d exceeds %d", ErrInvalid, len(hdr), MaxLen)
	}

	buf := make([]byte, prefixLen, prefixLen+len(hdr)+len(payload))
	binary.BigEndian.PutUint32(buf, uint32(len(hdr))) //nolint:gosec // bounded by MaxLen
	buf = append(buf, hdr...)
	buf = append(buf, payload...)
	return buf, nil
}

// Decode parses an entry and returns its header and payload. The payload
// aliases entry.
func Decode(entry []byte) (Header, []byte, error) {
	if len(entry) < prefixLen {
		return nil, nil, fmt.Errorf("%w: entry of %d bytes has no length prefix", ErrInvalid, len(entry))
	}

	hdrLen := binary.BigEndian.Uint32(entry)
	if hdrLen > MaxLen {
		return nil, nil, fmt.Errorf("%w: header length %d exceeds %d", ErrInvalid, hdrLen, MaxLen)
	}
	if uint64(prefixLen)+uint64(hdrLen) > uint64(len(entry)) {
		return nil, nil, fmt.Errorf("%w: header length %d exceeds entry of %d bytes", ErrInvalid, hdrLen, len(entry))
	}

	end := prefixLen + int(hdrLen)
	h, err := unmarshal(entry[prefixLen:end])
	if err != nil {
		return nil, nil, err
	}
	return h, entry[end:], nil
}

func marshal(h Header) []byte {
	var b []byte
	for _, id := range h.Streams() {
		var inner []byte
		inner = protowire.AppendTag(inner, fieldStreamID, protowire.VarintType)
		inner = protowire.AppendVarint(inner, id)
		for _, pos := range h[id] {
			inner = protowire.AppendTag(inner, fieldBackpointer, protowire.VarintType)
			inner = protowire.AppendVarint(inner, pos)
		}
		b = protowire.AppendTag(b, fieldStreamBackpointers, protowire.BytesType)
		b = protowire.AppendBytes(b, inner)
	}
	return b
}

func unmarshal(b []byte) (Header, error) {
	h := make(Header)
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, malformed(n)
		}
		b = b[n:]

		if num == fieldStreamBackpointers && typ == protowire.BytesType {
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, malformed(n)
			}
			id, ptrs, err := unmarshalStream(v)
			if err != nil {
				return nil, err
			}
			if prev, ok := h[id]; ok {
				ptrs = append(prev, ptrs...)
			}
			h[id] = ptrs
			b = b[n:]
			continue
		}

		n = protowire.ConsumeFieldValue(num, typ, b)
		if n < 0 {
			return nil, malformed(n)
		}
		b = b[n:]
	}
	return h, nil
}

func unmarshalStream(b []byte) (uint64, []uint64, error) {
	var (
		id    uint64
		hasID bool
	)
	ptrs := []uint64{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return 0, nil, malformed(n)
		}
		b = b[n:]

		switch {
		case num == fieldStreamID && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return 0, nil, malformed(n)
			}
			id, hasID = v, true
			b = b[n:]
		case num == fieldBackpointer && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return 0, nil, malformed(n)
			}
			ptrs = append(ptrs, v)
			b = b[n:]
		case num == fieldBackpointer && typ == protowire.BytesType:
			// packed encoding
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return 0, nil, malformed(n)
			}
			for len(v) > 0 {
				p, m := protowire.ConsumeVarint(v)
				if m < 0 {
					return 0, nil, malformed(m)
				}
				ptrs = append(ptrs, p)
				v = v[m:]
			}
			b = b[n:]
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return 0, nil, malformed(n)
			}
			b = b[n:]
		}
	}
	if !hasID {
		return 0, nil, fmt.Errorf("%w: stream backpointer without id", ErrInvalid)
	}
	return id, ptrs, nil
}

func malformed(n int) error {
	return fmt.Errorf("%w: %w", ErrInvalid, protowire.ParseError(n))
}
