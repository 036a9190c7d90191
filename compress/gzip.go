package compress

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/klauspost/compress/gzip"
)

type gzipCodec struct{}

var (
	gzipWriters = sync.Pool{New: func() any { return gzip.NewWriter(nil) }}
	// gzip.NewReader fails on a bad header, so the pool has no New
	gzipReaders sync.Pool
)

func (gzipCodec) Type() CompressionType { return GZIP }

func (gzipCodec) AppendEncoded(dst, segment []byte) ([]byte, error) {
	buf := bytes.NewBuffer(dst)
	w := gzipWriters.Get().(*gzip.Writer)
	defer gzipWriters.Put(w)
	w.Reset(buf)
	if _, err := w.Write(segment); err != nil {
		return dst, fmt.Errorf("gzip: %w", err)
	}
	if err := w.Close(); err != nil {
		return dst, fmt.Errorf("gzip: %w", err)
	}
	return buf.Bytes(), nil
}

func (gzipCodec) AppendDecoded(dst, stored []byte) ([]byte, error) {
	src := bytes.NewReader(stored)
	r, ok := gzipReaders.Get().(*gzip.Reader)
	var err error
	if ok {
		err = r.Reset(src)
	} else {
		r, err = gzip.NewReader(src)
	}
	if err != nil {
		return dst, fmt.Errorf("gzip: %w", err)
	}
	defer gzipReaders.Put(r)

	buf := bytes.NewBuffer(dst)
	if _, err := buf.ReadFrom(r); err != nil {
		return dst, fmt.Errorf("gzip: %w", err)
	}
	return buf.Bytes(), nil
}
