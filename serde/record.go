package serde

import (
	"bytes"
	"fmt"
	"hash/crc32"

	"github.com/CefBoud/monkafs/types"
)

// RecordMagic is the first byte of every record body.
const RecordMagic byte = 0x6D

// a record is framed as: length (4 bytes) | body | separator
// the body is: magic (1) | crc32c of the rest (4) | value | key | timestamp | headers | partition | offset
const frameLengthSize = 4

var crcTable = crc32.MakeTable(crc32.Castagnoli)

func encodeBody(m types.Message) []byte {
	size := 1 + 4 + len(m.Value) + len(m.Key) + 32
	for _, h := range m.Headers {
		size += len(h.Key) + len(h.Value) + 10
	}
	encoder := NewEncoder(size)
	encoder.PutInt8(RecordMagic)
	encoder.PutInt32(0) // crc placeholder
	encoder.PutNullableBytes(m.Value)
	encoder.PutNullableBytes(m.Key)
	encoder.PutInt8(uint8(m.Timestamp.Type))
	encoder.PutInt64(uint64(m.Timestamp.Millis))
	encoder.PutUvarint(uint64(len(m.Headers)))
	for _, h := range m.Headers {
		encoder.PutCompactString(h.Key)
		encoder.PutNullableBytes(h.Value)
	}
	encoder.PutInt32(uint32(m.Partition))
	encoder.PutInt64(uint64(m.Offset))

	body := encoder.Bytes()
	Encoding.PutUint32(body[1:], crc32.Checksum(body[5:], crcTable))
	return body
}

// EncodeRecord encodes a message into a length-prefixed record, without separator.
func EncodeRecord(m types.Message) []byte {
	body := encodeBody(m)
	framed := make([]byte, frameLengthSize, frameLengthSize+len(body))
	Encoding.PutUint32(framed, uint32(len(body)))
	return append(framed, body...)
}

// AppendRecord appends the encoded record followed by sep to dst.
func AppendRecord(dst []byte, m types.Message, sep []byte) []byte {
	body := encodeBody(m)
	dst = Encoding.AppendUint32(dst, uint32(len(body)))
	dst = append(dst, body...)
	return append(dst, sep...)
}

// DecodeRecord decodes a record body (without length prefix and separator).
func DecodeRecord(body []byte) (types.Message, error) {
	var m types.Message
	decoder := NewDecoder(body)
	if magic := decoder.UInt8(); decoder.Err() == nil && magic != RecordMagic {
		return m, fmt.Errorf("%w: bad magic 0x%02x", types.ErrMalformedRecord, magic)
	}
	crc := decoder.UInt32()
	if decoder.Err() == nil && crc != crc32.Checksum(body[5:], crcTable) {
		return m, fmt.Errorf("%w: crc mismatch", types.ErrMalformedRecord)
	}
	m.Value = decoder.NullableBytes()
	m.Key = decoder.NullableBytes()
	m.Timestamp.Type = types.TimestampType(decoder.UInt8())
	m.Timestamp.Millis = int64(decoder.UInt64())
	n := decoder.Uvarint()
	if decoder.Err() == nil && n > uint64(decoder.Remaining()) {
		return m, fmt.Errorf("%w: header count %d", types.ErrMalformedRecord, n)
	}
	if n > 0 {
		m.Headers = make([]types.Header, 0, n)
	}
	for i := uint64(0); i < n && decoder.Err() == nil; i++ {
		key := decoder.CompactString()
		m.Headers = append(m.Headers, types.Header{Key: key, Value: decoder.NullableBytes()})
	}
	m.Partition = int32(decoder.UInt32())
	m.Offset = int64(decoder.UInt64())
	if err := decoder.Err(); err != nil {
		return types.Message{}, fmt.Errorf("%w: %v", types.ErrMalformedRecord, err)
	}
	if decoder.Remaining() != 0 {
		return types.Message{}, fmt.Errorf("%w: %d trailing bytes", types.ErrMalformedRecord, decoder.Remaining())
	}
	return m, nil
}

// RecordIterator walks the separator-terminated records of a segment in stored order.
type RecordIterator struct {
	data []byte
	sep  []byte
	pos  int
	msg  types.Message
	err  error
}

// NewRecordIterator iterates over data, a concatenation of records each followed by sep.
func NewRecordIterator(data, sep []byte) *RecordIterator {
	return &RecordIterator{data: data, sep: sep}
}

// Next decodes the next record. It returns false at the end of data or on error.
func (it *RecordIterator) Next() bool {
	if it.err != nil || it.pos >= len(it.data) {
		return false
	}
	remaining := len(it.data) - it.pos
	if remaining < frameLengthSize {
		it.err = fmt.Errorf("%w: truncated length at byte %d", types.ErrMalformedRecord, it.pos)
		return false
	}
	bodyLen := int(Encoding.Uint32(it.data[it.pos:]))
	if bodyLen > remaining-frameLengthSize-len(it.sep) {
		it.err = fmt.Errorf("%w: truncated record at byte %d", types.ErrMalformedRecord, it.pos)
		return false
	}
	bodyStart := it.pos + frameLengthSize
	bodyEnd := bodyStart + bodyLen
	if !bytes.Equal(it.data[bodyEnd:bodyEnd+len(it.sep)], it.sep) {
		it.err = fmt.Errorf("%w: missing separator at byte %d", types.ErrMalformedRecord, bodyEnd)
		return false
	}
	msg, err := DecodeRecord(it.data[bodyStart:bodyEnd])
	if err != nil {
		it.err = fmt.Errorf("record at byte %d: %w", it.pos, err)
		return false
	}
	it.msg = msg
	it.pos = bodyEnd + len(it.sep)
	return true
}

// Message returns the record decoded by the last successful Next.
func (it *RecordIterator) Message() types.Message {
	return it.msg
}

// Err returns the error that stopped the iteration, if any.
func (it *RecordIterator) Err() error {
	return it.err
}

// DecodeSegment decodes every record of a segment.
func DecodeSegment(data, sep []byte) ([]types.Message, error) {
	var messages []types.Message
	it := NewRecordIterator(data, sep)
	for it.Next() {
		messages = append(messages, it.Message())
	}
	return messages, it.Err()
}
