// Package compress holds the whole-segment codecs a topic can be created with.
package compress

import (
	"fmt"
	"sort"
	"strings"
)

// CompressionType represents one of the supported compression types
type CompressionType uint8

// Segment compression types
const (
	NONE   CompressionType = 0
	GZIP   CompressionType = 1
	SNAPPY CompressionType = 2
	LZ4    CompressionType = 3
	ZSTD   CompressionType = 4
)

var names = map[string]CompressionType{
	"none":   NONE,
	"gzip":   GZIP,
	"snappy": SNAPPY,
	"lz4":    LZ4,
	"zstd":   ZSTD,
}

var codecs = map[CompressionType]Codec{
	NONE:   noneCodec{},
	GZIP:   gzipCodec{},
	SNAPPY: snappyCodec{},
	LZ4:    lz4Codec{},
	ZSTD:   zstdCodec{},
}

// Codec turns a whole segment into its stored form and back. Both methods append to dst
// and return the extended slice, so callers can recycle buffers across segments.
type Codec interface {
	Type() CompressionType
	AppendEncoded(dst, segment []byte) ([]byte, error)
	AppendDecoded(dst, stored []byte) ([]byte, error)
}

// Lookup returns the codec registered under name. An empty name means "none".
func Lookup(name string) (Codec, error) {
	if name == "" {
		return codecs[NONE], nil
	}
	t, ok := names[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unknown compression %q, expected one of %v", name, Names())
	}
	return codecs[t], nil
}

// Names lists the accepted compression names.
func Names() []string {
	res := make([]string, 0, len(names))
	for n := range names {
		res = append(res, n)
	}
	sort.Strings(res)
	return res
}

// Compress returns the stored form of segment under the named compression.
func Compress(name string, segment []byte) ([]byte, error) {
	c, err := Lookup(name)
	if err != nil {
		return nil, err
	}
	return c.AppendEncoded(nil, segment)
}

// Decompress reverses Compress.
func Decompress(name string, stored []byte) ([]byte, error) {
	c, err := Lookup(name)
	if err != nil {
		return nil, err
	}
	return c.AppendDecoded(nil, stored)
}

type noneCodec struct{}

func (noneCodec) Type() CompressionType { return NONE }

func (noneCodec) AppendEncoded(dst, segment []byte) ([]byte, error) {
	return append(dst, segment...), nil
}

func (noneCodec) AppendDecoded(dst, stored []byte) ([]byte, error) {
	return append(dst, stored...), nil
}
