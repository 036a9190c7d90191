package serde

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEncoderDecoder(t *testing.T) {
	encoder := NewEncoder(0)
	encoder.PutInt8(7)
	encoder.PutInt32(1 << 30)
	encoder.PutInt64(1 << 40)
	encoder.PutVarint(-42)
	encoder.PutUvarint(300)
	encoder.PutCompactString("name")
	encoder.PutNullableBytes(nil)
	encoder.PutNullableBytes([]byte{})
	encoder.PutNullableBytes([]byte("abc"))

	decoder := NewDecoder(encoder.Bytes())
	assert.Equal(t, uint8(7), decoder.UInt8())
	assert.Equal(t, uint32(1<<30), decoder.UInt32())
	assert.Equal(t, uint64(1<<40), decoder.UInt64())
	assert.Equal(t, int64(-42), decoder.Varint())
	assert.Equal(t, uint64(300), decoder.Uvarint())
	assert.Equal(t, "name", decoder.CompactString())
	assert.Nil(t, decoder.NullableBytes())
	empty := decoder.NullableBytes()
	assert.NotNil(t, empty)
	assert.Len(t, empty, 0)
	assert.Equal(t, []byte("abc"), decoder.NullableBytes())
	assert.NoError(t, decoder.Err())
	assert.Equal(t, 0, decoder.Remaining())
}

func TestDecoderShortBuffer(t *testing.T) {
	decoder := NewDecoder([]byte{1, 2})
	assert.Equal(t, uint32(0), decoder.UInt32())
	assert.True(t, errors.Is(decoder.Err(), ErrShortBuffer))
	// sticky: later reads do not panic and keep the first error
	assert.Equal(t, uint8(0), decoder.UInt8())
	assert.Nil(t, decoder.NullableBytes())
	assert.True(t, errors.Is(decoder.Err(), ErrShortBuffer))
}

func TestDecoderRejectsOversizedLength(t *testing.T) {
	encoder := NewEncoder(0)
	encoder.PutVarint(1000)
	encoder.PutBytes([]byte("xy"))
	decoder := NewDecoder(encoder.Bytes())
	assert.Nil(t, decoder.NullableBytes())
	assert.Error(t, decoder.Err())
}
