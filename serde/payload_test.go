package serde

import (
	"errors"
	"testing"

	"github.com/CefBoud/monkafs/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePayloadType(t *testing.T) {
	for in, want := range map[string]PayloadType{"bytes": Bytes, "STR": Str, "json": JSON, "": Str} {
		got, err := ParsePayloadType(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParsePayloadType("avro")
	assert.True(t, errors.Is(err, types.ErrInvalidConfig))
}

func TestPayloadEncode(t *testing.T) {
	b, err := JSON.Encode(map[string]any{"name": "cake"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"name": "cake"}`, string(b))

	b, err = Bytes.Encode("plain")
	require.NoError(t, err)
	assert.Equal(t, []byte("plain"), b)

	b, err = Str.Encode(nil)
	require.NoError(t, err)
	assert.Nil(t, b)
}

func TestPayloadDecode(t *testing.T) {
	raw := []byte(`{"name": "timtam", "calories": 80.0}`)

	v, err := Str.Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, string(raw), v)

	v, err = JSON.Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"name": "timtam", "calories": 80.0}, v)

	v, err = Bytes.Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, raw, v)

	_, err = JSON.Decode([]byte("not json"))
	assert.Error(t, err)
}
