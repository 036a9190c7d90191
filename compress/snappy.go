package compress

import (
	"fmt"

	snappy "github.com/eapache/go-xerial-snappy"
)

// snappyCodec writes the xerial framing, 32KB blocks each prefixed by its length.
// Raw snappy blocks decode as well.
type snappyCodec struct{}

func (snappyCodec) Type() CompressionType { return SNAPPY }

func (snappyCodec) AppendEncoded(dst, segment []byte) ([]byte, error) {
	if len(dst) == 0 {
		return snappy.EncodeStream(dst, segment), nil
	}
	// EncodeStream only appends to its own output
	return append(dst, snappy.EncodeStream(nil, segment)...), nil
}

func (snappyCodec) AppendDecoded(dst, stored []byte) ([]byte, error) {
	res, err := snappy.Decode(stored)
	if err != nil {
		return dst, fmt.Errorf("snappy: %w", err)
	}
	return append(dst, res...), nil
}
