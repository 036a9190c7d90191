package serde

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/CefBoud/monkafs/types"
)

// PayloadType selects how keys and values are converted to and from raw bytes.
type PayloadType uint8

// Supported payload types
const (
	Bytes PayloadType = iota
	Str
	JSON
)

// ParsePayloadType accepts "bytes", "str" and "json" in any case.
func ParsePayloadType(s string) (PayloadType, error) {
	switch strings.ToLower(s) {
	case "bytes":
		return Bytes, nil
	case "str", "":
		return Str, nil
	case "json":
		return JSON, nil
	}
	return 0, fmt.Errorf("%w: only json, str or bytes supported, got %q", types.ErrInvalidConfig, s)
}

func (t PayloadType) String() string {
	switch t {
	case Bytes:
		return "bytes"
	case Str:
		return "str"
	case JSON:
		return "json"
	}
	return fmt.Sprintf("PayloadType(%d)", uint8(t))
}

// Encode converts a payload to bytes. Strings and byte slices pass through for every
// type; other values are JSON encoded. nil stays nil.
func (t PayloadType) Encode(v any) ([]byte, error) {
	switch p := v.(type) {
	case nil:
		return nil, nil
	case []byte:
		return p, nil
	case string:
		return []byte(p), nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", t, err)
	}
	return b, nil
}

// Decode converts raw bytes into a string, a JSON value or the bytes themselves.
func (t PayloadType) Decode(b []byte) (any, error) {
	if b == nil {
		return nil, nil
	}
	switch t {
	case Str:
		return string(b), nil
	case JSON:
		var v any
		if err := json.Unmarshal(b, &v); err != nil {
			return nil, fmt.Errorf("decode json payload: %w", err)
		}
		return v, nil
	}
	return b, nil
}
