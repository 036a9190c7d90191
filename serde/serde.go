package serde

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Encoding is Big Endian for every fixed-width integer in a record
var Encoding = binary.BigEndian

// ErrShortBuffer is reported by a Decoder that ran past the end of its input.
var ErrShortBuffer = errors.New("short buffer")

// Encoder appends encoded values to a growing byte slice
type Encoder struct {
	b []byte
}

// NewEncoder creates a new Encoder with room for sizeHint bytes
func NewEncoder(sizeHint int) Encoder {
	return Encoder{b: make([]byte, 0, sizeHint)}
}

// PutInt8 encodes a uint8 value
func (e *Encoder) PutInt8(i uint8) {
	e.b = append(e.b, i)
}

// PutInt32 encodes a uint32 value
func (e *Encoder) PutInt32(i uint32) {
	e.b = Encoding.AppendUint32(e.b, i)
}

// PutInt64 encodes a uint64 value
func (e *Encoder) PutInt64(i uint64) {
	e.b = Encoding.AppendUint64(e.b, i)
}

// PutUvarint encodes an unsigned varint
func (e *Encoder) PutUvarint(i uint64) {
	e.b = binary.AppendUvarint(e.b, i)
}

// PutVarint encodes a signed varint
func (e *Encoder) PutVarint(i int64) {
	e.b = binary.AppendVarint(e.b, i)
}

// PutBytes appends raw bytes with no length
func (e *Encoder) PutBytes(b []byte) {
	e.b = append(e.b, b...)
}

// PutNullableBytes encodes a varint length followed by the content; nil is encoded as length -1
func (e *Encoder) PutNullableBytes(b []byte) {
	if b == nil {
		e.PutVarint(-1)
		return
	}
	e.PutVarint(int64(len(b)))
	e.PutBytes(b)
}

// PutCompactString encodes a string as uvarint length + content
func (e *Encoder) PutCompactString(s string) {
	e.PutUvarint(uint64(len(s)))
	e.b = append(e.b, s...)
}

// Len is the number of bytes encoded so far
func (e *Encoder) Len() int {
	return len(e.b)
}

// Bytes returns the encoded data as a byte slice
func (e *Encoder) Bytes() []byte {
	return e.b
}

// Decoder reads values from a byte slice. The first out-of-bounds read sets a sticky
// error; later reads return zero values.
type Decoder struct {
	b      []byte
	Offset int
	err    error
}

// NewDecoder creates a new Decoder from a byte slice
func NewDecoder(b []byte) Decoder {
	return Decoder{b: b}
}

// Err returns the first decoding error, if any
func (d *Decoder) Err() error {
	return d.err
}

// Remaining is the number of bytes left to decode
func (d *Decoder) Remaining() int {
	return len(d.b) - d.Offset
}

func (d *Decoder) need(n int) bool {
	if d.err != nil {
		return false
	}
	if n < 0 || n > d.Remaining() {
		d.err = fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrShortBuffer, n, d.Offset, d.Remaining())
		return false
	}
	return true
}

// UInt8 decodes a uint8 value
func (d *Decoder) UInt8() uint8 {
	if !d.need(1) {
		return 0
	}
	res := d.b[d.Offset]
	d.Offset++
	return res
}

// UInt32 decodes a uint32 value
func (d *Decoder) UInt32() uint32 {
	if !d.need(4) {
		return 0
	}
	res := Encoding.Uint32(d.b[d.Offset:])
	d.Offset += 4
	return res
}

// UInt64 decodes a uint64 value
func (d *Decoder) UInt64() uint64 {
	if !d.need(8) {
		return 0
	}
	res := Encoding.Uint64(d.b[d.Offset:])
	d.Offset += 8
	return res
}

// Uvarint decodes an unsigned varint
func (d *Decoder) Uvarint() uint64 {
	if d.err != nil {
		return 0
	}
	v, n := binary.Uvarint(d.b[d.Offset:])
	if n <= 0 {
		d.err = fmt.Errorf("%w: bad uvarint at offset %d", ErrShortBuffer, d.Offset)
		return 0
	}
	d.Offset += n
	return v
}

// Varint decodes a signed varint
func (d *Decoder) Varint() int64 {
	if d.err != nil {
		return 0
	}
	v, n := binary.Varint(d.b[d.Offset:])
	if n <= 0 {
		d.err = fmt.Errorf("%w: bad varint at offset %d", ErrShortBuffer, d.Offset)
		return 0
	}
	d.Offset += n
	return v
}

// GetNBytes decodes `n` bytes, returning a copy
func (d *Decoder) GetNBytes(n int) []byte {
	if !d.need(n) {
		return nil
	}
	res := make([]byte, n)
	copy(res, d.b[d.Offset:d.Offset+n])
	d.Offset += n
	return res
}

// NullableBytes decodes bytes written by PutNullableBytes
func (d *Decoder) NullableBytes() []byte {
	l := d.Varint()
	if d.err != nil || l == -1 {
		return nil
	}
	if l < -1 || l > int64(d.Remaining()) {
		d.err = fmt.Errorf("%w: bytes length %d at offset %d", ErrShortBuffer, l, d.Offset)
		return nil
	}
	return d.GetNBytes(int(l))
}

// CompactString decodes a string written by PutCompactString
func (d *Decoder) CompactString() string {
	l := d.Uvarint()
	if d.err != nil {
		return ""
	}
	if l > uint64(d.Remaining()) {
		d.err = fmt.Errorf("%w: string length %d at offset %d", ErrShortBuffer, l, d.Offset)
		return ""
	}
	res := string(d.b[d.Offset : d.Offset+int(l)])
	d.Offset += int(l)
	return res
}
