package compress

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/pierrec/lz4/v4"
)

type lz4Codec struct{}

// frame writers and readers carry large block buffers
var (
	lz4Writers = sync.Pool{New: func() any { return lz4.NewWriter(nil) }}
	lz4Readers = sync.Pool{New: func() any { return lz4.NewReader(nil) }}
)

func (lz4Codec) Type() CompressionType { return LZ4 }

func (lz4Codec) AppendEncoded(dst, segment []byte) ([]byte, error) {
	buf := bytes.NewBuffer(dst)
	w := lz4Writers.Get().(*lz4.Writer)
	defer lz4Writers.Put(w)
	w.Reset(buf)
	if _, err := w.Write(segment); err != nil {
		return dst, fmt.Errorf("lz4: %w", err)
	}
	if err := w.Close(); err != nil {
		return dst, fmt.Errorf("lz4: %w", err)
	}
	return buf.Bytes(), nil
}

func (lz4Codec) AppendDecoded(dst, stored []byte) ([]byte, error) {
	r := lz4Readers.Get().(*lz4.Reader)
	defer lz4Readers.Put(r)
	r.Reset(bytes.NewReader(stored))

	buf := bytes.NewBuffer(dst)
	if _, err := buf.ReadFrom(r); err != nil {
		return dst, fmt.Errorf("lz4: %w", err)
	}
	return buf.Bytes(), nil
}
