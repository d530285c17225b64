package projection

import (
	"encoding/binary"
	"fmt"
	"io"
	"time"

	"github.com/hupe1980/zlog/internal/hash"
)

const (
	binaryMagic   = 0x5a4c4f47 // "ZLOG"
	binaryVersion = CurrentVersion

	headerSize = 16
	stripeSize = 8 + 8 + 4
)

// WriteBinary writes the projection in binary format.
// Format:
// Magic (4 bytes)
// Version (4 bytes)
// Checksum (4 bytes) - CRC32C of payload
// PayloadLength (4 bytes)
// Payload:
//
//	LogName (string)
//	Epoch (8 bytes)
//	CreatedAt (8 bytes) - UnixNano
//	NumStripes (4 bytes)
//	Stripes...
//	  Epoch (8 bytes)
//	  Start (8 bytes)
//	  Width (4 bytes)
func (p *Projection) WriteBinary(w io.Writer) error {
	buf := make([]byte, 0, 2+len(p.LogName)+20+len(p.Stripes)*stripeSize)
	pb := newPayloadBuffer(buf)

	pb.writeString(p.LogName)
	pb.writeUint64(p.Epoch)
	pb.writeUint64(uint64(p.CreatedAt.UnixNano()))
	pb.writeUint32(uint32(len(p.Stripes)))

	for _, s := range p.Stripes {
		pb.writeUint64(s.Epoch)
		pb.writeUint64(s.Start)
		pb.writeUint32(s.Width)
	}

	if pb.err != nil {
		return pb.err
	}

	payload := pb.buf
	checksum := hash.CRC32C(payload)

	header := make([]byte, headerSize)
	binary.LittleEndian.PutUint32(header[0:4], binaryMagic)
	binary.LittleEndian.PutUint32(header[4:8], binaryVersion)
	binary.LittleEndian.PutUint32(header[8:12], checksum)
	binary.LittleEndian.PutUint32(header[12:16], uint32(len(payload)))

	if _, err := w.Write(header); err != nil {
		return err
	}
	if _, err := w.Write(payload); err != nil {
		return err
	}
	return nil
}

// ReadBinary reads a projection from binary format and validates it.
func ReadBinary(r io.Reader) (*Projection, error) {
	header := make([]byte, headerSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}

	magic := binary.LittleEndian.Uint32(header[0:4])
	if magic != binaryMagic {
		return nil, fmt.Errorf("%w: invalid magic %x", ErrCorrupt, magic)
	}
	version := binary.LittleEndian.Uint32(header[4:8])
	if version != binaryVersion {
		return nil, fmt.Errorf("%w: %d", ErrIncompatibleVersion, version)
	}
	checksum := binary.LittleEndian.Uint32(header[8:12])
	length := binary.LittleEndian.Uint32(header[12:16])

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}

	if hash.CRC32C(payload) != checksum {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	}

	pb := newPayloadBuffer(payload)
	p := &Projection{Version: int(version)}

	p.LogName = pb.readString()
	p.Epoch = pb.readUint64()
	p.CreatedAt = time.Unix(0, int64(pb.readUint64()))

	numStripes := pb.readUint32()
	if pb.err == nil && int(numStripes) > pb.remaining()/stripeSize {
		return nil, fmt.Errorf("%w: %d stripes in %d bytes", ErrCorrupt, numStripes, pb.remaining())
	}
	p.Stripes = make([]Stripe, numStripes)
	for i := range p.Stripes {
		p.Stripes[i].Epoch = pb.readUint64()
		p.Stripes[i].Start = pb.readUint64()
		p.Stripes[i].Width = pb.readUint32()
	}

	if pb.err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, pb.err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	return p, nil
}

type payloadBuffer struct {
	buf []byte
	pos int
	err error
}

func newPayloadBuffer(b []byte) *payloadBuffer {
	return &payloadBuffer{buf: b}
}

func (p *payloadBuffer) remaining() int {
	return len(p.buf) - p.pos
}

func (p *payloadBuffer) writeUint64(v uint64) {
	if p.err != nil {
		return
	}
	p.buf = binary.LittleEndian.AppendUint64(p.buf, v)
}

func (p *payloadBuffer) writeUint32(v uint32) {
	if p.err != nil {
		return
	}
	p.buf = binary.LittleEndian.AppendUint32(p.buf, v)
}

func (p *payloadBuffer) writeString(s string) {
	if p.err != nil {
		return
	}
	if len(s) > 65535 {
		p.err = fmt.Errorf("string too long: %d", len(s))
		return
	}
	p.buf = binary.LittleEndian.AppendUint16(p.buf, uint16(len(s)))
	p.buf = append(p.buf, s...)
}

func (p *payloadBuffer) readUint64() uint64 {
	if p.err != nil {
		return 0
	}
	if p.pos+8 > len(p.buf) {
		p.err = io.ErrUnexpectedEOF
		return 0
	}
	v := binary.LittleEndian.Uint64(p.buf[p.pos:])
	p.pos += 8
	return v
}

func (p *payloadBuffer) readUint32() uint32 {
	if p.err != nil {
		return 0
	}
	if p.pos+4 > len(p.buf) {
		p.err = io.ErrUnexpectedEOF
		return 0
	}
	v := binary.LittleEndian.Uint32(p.buf[p.pos:])
	p.pos += 4
	return v
}

func (p *payloadBuffer) readString() string {
	if p.err != nil {
		return ""
	}
	if p.pos+2 > len(p.buf) {
		p.err = io.ErrUnexpectedEOF
		return ""
	}
	l := binary.LittleEndian.Uint16(p.buf[p.pos:])
	p.pos += 2

	if p.pos+int(l) > len(p.buf) {
		p.err = io.ErrUnexpectedEOF
		return ""
	}
	s := string(p.buf[p.pos : p.pos+int(l)])
	p.pos += int(l)
	return s
}
