package compress

import (
	"fmt"

	"github.com/pierrec/lz4/v4"
)

// LZ4Encode compresses data as a single lz4 block. It returns nil when the
// data is incompressible.
func LZ4Encode(data []byte) ([]byte, error) {
	dst := make([]byte, lz4.CompressBlockBound(len(data)))
	n, err := lz4.CompressBlock(data, dst, nil)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	return dst[:n], nil
}

// LZ4Decode decodes an lz4 block that must expand to exactly rawSize bytes.
func LZ4Decode(data []byte, rawSize int) ([]byte, error) {
	out := make([]byte, rawSize)
	n, err := lz4.UncompressBlock(data, out)
	if err != nil {
		return nil, err
	}
	if n != rawSize {
		return nil, fmt.Errorf("%w: got %d want %d", ErrSizeMismatch, n, rawSize)
	}
	return out, nil
}
