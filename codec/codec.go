// Package codec implements the canonical, deterministic byte encoding
// used for content addressing: fixed-size integers little-endian,
// variable-length sequences prefixed with a 4-byte length, structs as
// the concatenation of their fields in declaration order, and enums as
// a 1-byte tag followed by the variant payload.
package codec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/causality-fw/causality/types"
)

// ErrShortBuffer is returned when a decoder runs out of input.
var ErrShortBuffer = errors.New("codec: short buffer")

// maxSequenceLen bounds decoded sequence lengths so corrupt input
// cannot force huge allocations.
const maxSequenceLen = 1 << 30

// Encodable is implemented by every type with a canonical encoding.
type Encodable interface {
	EncodeTo(*Encoder)
}

// Encode returns the canonical encoding of x.
func Encode(x Encodable) []byte {
	e := NewEncoder()
	x.EncodeTo(e)
	return e.Bytes()
}

// Encoder accumulates a canonical encoding.
type Encoder struct {
	buf bytes.Buffer
}

// NewEncoder returns an empty Encoder.
func NewEncoder() *Encoder { return &Encoder{} }

// Bytes returns the accumulated encoding.
func (e *Encoder) Bytes() []byte { return e.buf.Bytes() }

// WriteTag writes a 1-byte enum tag.
func (e *Encoder) WriteTag(t byte) { e.buf.WriteByte(t) }

// WriteBool writes a bool as a single 0/1 byte.
func (e *Encoder) WriteBool(b bool) {
	if b {
		e.buf.WriteByte(1)
	} else {
		e.buf.WriteByte(0)
	}
}

// WriteUint8 writes a single byte.
func (e *Encoder) WriteUint8(v uint8) { e.buf.WriteByte(v) }

// WriteUint16 writes v little-endian.
func (e *Encoder) WriteUint16(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	e.buf.Write(b[:])
}

// WriteUint32 writes v little-endian.
func (e *Encoder) WriteUint32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	e.buf.Write(b[:])
}

// WriteUint64 writes v little-endian.
func (e *Encoder) WriteUint64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	e.buf.Write(b[:])
}

// WriteInt64 writes v as its two's complement little-endian bytes.
func (e *Encoder) WriteInt64(v int64) { e.WriteUint64(uint64(v)) }

// WriteFixed writes b with no length prefix; the length must be implied
// by the schema.
func (e *Encoder) WriteFixed(b []byte) { e.buf.Write(b) }

// WriteHash writes the raw 32 bytes of h.
func (e *Encoder) WriteHash(h types.Hash) { e.buf.Write(h[:]) }

// WriteBytes writes b prefixed with its 4-byte little-endian length.
func (e *Encoder) WriteBytes(b []byte) {
	e.WriteUint32(uint32(len(b)))
	e.buf.Write(b)
}

// WriteString writes s prefixed with its 4-byte little-endian length.
func (e *Encoder) WriteString(s string) {
	e.WriteUint32(uint32(len(s)))
	e.buf.WriteString(s)
}

// Decoder reads a canonical encoding.
type Decoder struct {
	data []byte
	off  int
}

// NewDecoder returns a Decoder over data.
func NewDecoder(data []byte) *Decoder { return &Decoder{data: data} }

// Remaining returns the number of unread bytes.
func (d *Decoder) Remaining() int { return len(d.data) - d.off }

// Finish returns an error if the decoder has unread trailing bytes.
func (d *Decoder) Finish() error {
	if d.off != len(d.data) {
		return fmt.Errorf("codec: %d trailing bytes", len(d.data)-d.off)
	}
	return nil
}

func (d *Decoder) take(n int) ([]byte, error) {
	if d.Remaining() < n {
		return nil, ErrShortBuffer
	}
	b := d.data[d.off : d.off+n]
	d.off += n
	return b, nil
}

// ReadTag reads a 1-byte enum tag.
func (d *Decoder) ReadTag() (byte, error) {
	b, err := d.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadBool reads a 0/1 byte.
func (d *Decoder) ReadBool() (bool, error) {
	b, err := d.take(1)
	if err != nil {
		return false, err
	}
	switch b[0] {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, fmt.Errorf("codec: invalid bool byte %#x", b[0])
	}
}

// ReadUint8 reads a single byte.
func (d *Decoder) ReadUint8() (uint8, error) {
	b, err := d.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadUint16 reads a little-endian uint16.
func (d *Decoder) ReadUint16() (uint16, error) {
	b, err := d.take(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

// ReadUint32 reads a little-endian uint32.
func (d *Decoder) ReadUint32() (uint32, error) {
	b, err := d.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// ReadUint64 reads a little-endian uint64.
func (d *Decoder) ReadUint64() (uint64, error) {
	b, err := d.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// ReadInt64 reads a little-endian two's complement int64.
func (d *Decoder) ReadInt64() (int64, error) {
	v, err := d.ReadUint64()
	return int64(v), err
}

// ReadFixed reads exactly n raw bytes.
func (d *Decoder) ReadFixed(n int) ([]byte, error) {
	b, err := d.take(n)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, b)
	return out, nil
}

// ReadHash reads 32 raw bytes into a Hash.
func (d *Decoder) ReadHash() (types.Hash, error) {
	b, err := d.take(types.HashSize)
	if err != nil {
		return types.Hash{}, err
	}
	var h types.Hash
	copy(h[:], b)
	return h, nil
}

// ReadBytes reads a 4-byte length prefix and then that many bytes.
func (d *Decoder) ReadBytes() ([]byte, error) {
	n, err := d.ReadUint32()
	if err != nil {
		return nil, err
	}
	if n > maxSequenceLen {
		return nil, fmt.Errorf("codec: sequence length %d too large", n)
	}
	return d.ReadFixed(int(n))
}

// ReadString reads a 4-byte length prefix and then that many bytes as a
// string.
func (d *Decoder) ReadString() (string, error) {
	b, err := d.ReadBytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}
