package store

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/gzip"
)

// GzipEncode compresses data the way the write path stores gzip-encoded
// content. Trial compressions elsewhere use the same codec so that size
// measurements match what would actually be persisted.
func GzipEncode(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(data); err != nil {
		zw.Close()
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// GzipDecode inflates gzip-compressed data.
func GzipDecode(data []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	return io.ReadAll(zr)
}
