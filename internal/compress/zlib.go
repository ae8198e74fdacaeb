package compress

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
)

// ErrSizeMismatch is returned when a decoded payload does not have the
// length recorded next to it.
var ErrSizeMismatch = errors.New("compress: decoded size mismatch")

// Deflate returns data as a zlib stream at the given level.
func Deflate(data []byte, level int) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(len(data)/2 + 64)
	zw, err := zlib.NewWriterLevel(&buf, level)
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

// maxInflateRatio bounds how far a deflate stream can expand: each
// output byte costs at least 1/1032 of an input byte.
const maxInflateRatio = 1032

// Inflate decodes a zlib stream that must expand to exactly rawSize bytes.
// Trailing bytes after the stream end are ignored.
//
// Output is buffered as it is decoded, so a rawSize that the stream cannot
// back costs no more memory than the stream itself produces.
func Inflate(data []byte, rawSize int) ([]byte, error) {
	if rawSize < 0 || int64(rawSize) > int64(len(data))*maxInflateRatio {
		return nil, fmt.Errorf("%w: %d compressed bytes cannot hold %d", ErrSizeMismatch, len(data), rawSize)
	}
	zr, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	var buf bytes.Buffer
	buf.Grow(min(rawSize, 4*len(data)+512))
	if _, err := buf.ReadFrom(io.LimitReader(zr, int64(rawSize)+1)); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: want %d bytes", ErrSizeMismatch, rawSize)
		}
		return nil, err
	}
	switch n := buf.Len(); {
	case n < rawSize:
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrSizeMismatch, n, rawSize)
	case n > rawSize:
		return nil, fmt.Errorf("%w: stream longer than %d bytes", ErrSizeMismatch, rawSize)
	}
	return buf.Bytes(), nil
}
