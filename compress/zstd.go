package compress

import (
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

type zstdCodec struct{}

// encoders and decoders are expensive to build, so they are pooled
var zstdEncoders, zstdDecoders sync.Pool

func (zstdCodec) Type() CompressionType { return ZSTD }

func (zstdCodec) AppendEncoded(dst, segment []byte) ([]byte, error) {
	enc, ok := zstdEncoders.Get().(*zstd.Encoder)
	if !ok {
		var err error
		// empty segments still get a frame
		if enc, err = zstd.NewWriter(nil, zstd.WithZeroFrames(true)); err != nil {
			return dst, fmt.Errorf("zstd encoder: %w", err)
		}
	}
	defer zstdEncoders.Put(enc)
	return enc.EncodeAll(segment, dst), nil
}

func (zstdCodec) AppendDecoded(dst, stored []byte) ([]byte, error) {
	dec, ok := zstdDecoders.Get().(*zstd.Decoder)
	if !ok {
		var err error
		if dec, err = zstd.NewReader(nil); err != nil {
			return dst, fmt.Errorf("zstd decoder: %w", err)
		}
	}
	defer zstdDecoders.Put(dec)
	res, err := dec.DecodeAll(stored, dst)
	if err != nil {
		return dst, fmt.Errorf("zstd: %w", err)
	}
	return res, nil
}
