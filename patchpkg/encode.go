package patchpkg

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/beamguides/beam-patcher/integrity"
	"github.com/beamguides/beam-patcher/internal/beamtype"
	"github.com/beamguides/beam-patcher/internal/compress"
)

// ErrInvalidRecord is returned by Encode for a record that cannot be
// represented.
var ErrInvalidRecord = errors.New("patchpkg: invalid record")

// Encode builds a BEAM package from records in order.
func Encode(records []Record, opts ...EncodeOption) ([]byte, error) {
	e := newEncoder(opts)
	alg, ok := digestAlgorithm(e.version)
	if !ok {
		return nil, &beamtype.UnsupportedVersionError{Format: "beam package", Version: uint32(e.version)}
	}
	if uint64(len(records)) > math.MaxUint32 {
		return nil, fmt.Errorf("%w: too many records", ErrInvalidRecord)
	}

	var flags uint16
	if e.checksum {
		flags |= flagChecksum
	}

	var buf bytes.Buffer
	buf.Write(magic[:])
	buf.Write(binary.LittleEndian.AppendUint16(nil, e.version))
	buf.Write(binary.LittleEndian.AppendUint16(nil, flags))
	buf.Write(binary.LittleEndian.AppendUint32(nil, uint32(len(records))))

	var scratch []byte
	for i, r := range records {
		if err := validateRecord(r); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		tag, stored, err := e.compress(r.Path, r.Data)
		if err != nil {
			return nil, fmt.Errorf("record %d (%s): %w", i, r.Path, err)
		}

		scratch = scratch[:0]
		scratch = binary.LittleEndian.AppendUint16(scratch, uint16(len(r.Path)))
		scratch = append(scratch, r.Path...)
		scratch = append(scratch, byte(tag))
		scratch = binary.LittleEndian.AppendUint32(scratch, uint32(len(r.Data)))
		scratch = binary.LittleEndian.AppendUint32(scratch, uint32(len(stored)))
		buf.Write(scratch)
		buf.Write(stored)
		buf.Write(integrity.Compute(alg, r.Data).Sum)
	}

	if e.checksum {
		sum := sha256.Sum256(buf.Bytes())
		buf.Write(sum[:])
	}
	return buf.Bytes(), nil
}

func validateRecord(r Record) error {
	switch {
	case r.Remove:
		return fmt.Errorf("%w: removals cannot be encoded", ErrInvalidRecord)
	case r.Path == "":
		return fmt.Errorf("%w: empty path", ErrInvalidRecord)
	case len(r.Path) > math.MaxUint16:
		return fmt.Errorf("%w: path longer than %d bytes", ErrInvalidRecord, math.MaxUint16)
	case strings.IndexByte(r.Path, 0) >= 0:
		return fmt.Errorf("%w: NUL in path", ErrInvalidRecord)
	case uint64(len(r.Data)) > math.MaxUint32:
		return fmt.Errorf("%w: payload exceeds 4 GiB", ErrInvalidRecord)
	}
	return nil
}

// compress returns the tag and stored bytes for one payload.
func (e *encoder) compress(path string, data []byte) (Compression, []byte, error) {
	if e.compression == None || compress.ShouldSkip(path, len(data), e.skip) {
		return None, data, nil
	}

	var (
		packed []byte
		err    error
	)
	switch e.compression {
	case Zlib:
		packed, err = compress.Deflate(data, e.zlibLevel)
	case Zstd:
		packed, err = compress.ZstdEncode(data, e.zstdLevel)
	case LZ4:
		packed, err = compress.LZ4Encode(data)
	default:
		return None, nil, fmt.Errorf("patchpkg: unknown compression %d", e.compression)
	}
	if err != nil {
		return None, nil, err
	}
	if packed == nil || len(packed) >= len(data) {
		return None, data, nil
	}
	return e.compression, packed, nil
}
