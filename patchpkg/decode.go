package patchpkg

import (
	"bytes"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/beamguides/beam-patcher/integrity"
	"github.com/beamguides/beam-patcher/internal/beamtype"
	"github.com/beamguides/beam-patcher/internal/compress"
)

// Decode parses and verifies a BEAM package. It never returns a partial
// package: any structural problem is an ErrFormat, and a payload that fails
// to decompress or match its digest is a *beamtype.CorruptError naming the
// record.
func Decode(data []byte, opts ...DecodeOption) (*Package, error) {
	return newDecoder(opts).decode(data, true)
}

// VerifyAll runs every check Decode runs without retaining payloads.
func VerifyAll(data []byte, opts ...DecodeOption) error {
	_, err := newDecoder(opts).decode(data, false)
	return err
}

// RecordCount returns the record count from a BEAM header, or zero when
// data has no header. The count is only trustworthy once VerifyAll or
// Decode accepted data.
func RecordCount(data []byte) int {
	if len(data) < headerSize || !IsBEAM(data) {
		return 0
	}
	return int(binary.LittleEndian.Uint32(data[8:12]))
}

// IsBEAM reports whether data starts with the BEAM magic.
func IsBEAM(data []byte) bool {
	return len(data) >= len(magic) && bytes.Equal(data[:len(magic)], magic[:])
}

func (d *decoder) decode(data []byte, keep bool) (*Package, error) {
	if len(data) < headerSize {
		return nil, &beamtype.FormatError{What: "package header truncated"}
	}
	if !IsBEAM(data) {
		return nil, &beamtype.FormatError{What: "bad package magic"}
	}
	version := binary.LittleEndian.Uint16(data[4:6])
	flags := binary.LittleEndian.Uint16(data[6:8])
	count := binary.LittleEndian.Uint32(data[8:12])

	alg, ok := digestAlgorithm(version)
	if !ok {
		return nil, &beamtype.UnsupportedVersionError{Format: "beam package", Version: uint32(version)}
	}
	if flags&^knownFlags != 0 {
		return nil, &beamtype.FormatError{What: fmt.Sprintf("unknown package flags %#x", flags)}
	}

	body := data
	if flags&flagChecksum != 0 {
		if len(data) < headerSize+sha256.Size {
			return nil, &beamtype.FormatError{What: "package checksum truncated"}
		}
		body = data[:len(data)-sha256.Size]
		want := data[len(data)-sha256.Size:]
		got := sha256.Sum256(body)
		if subtle.ConstantTimeCompare(got[:], want) != 1 {
			return nil, &beamtype.CorruptError{Record: -1, Err: errors.New("package checksum mismatch")}
		}
	}
	if uint64(count) > uint64(d.maxRecords) {
		return nil, &beamtype.FormatError{What: fmt.Sprintf("%d records exceeds limit %d", count, d.maxRecords)}
	}

	pkg := &Package{Format: FormatBEAM, Version: version}
	if keep {
		pkg.Records = make([]Record, 0, count)
	}
	r := &byteReader{buf: body, pos: headerSize}
	for i := 0; i < int(count); i++ {
		rec, err := d.readRecord(r, i, alg)
		if err != nil {
			return nil, err
		}
		if keep {
			pkg.Records = append(pkg.Records, rec)
		}
	}
	if r.remaining() != 0 {
		return nil, &beamtype.FormatError{What: fmt.Sprintf("%d trailing bytes after last record", r.remaining())}
	}
	return pkg, nil
}

func (d *decoder) readRecord(r *byteReader, i int, alg integrity.Algorithm) (Record, error) {
	truncated := func() error {
		return &beamtype.FormatError{What: fmt.Sprintf("record %d truncated", i)}
	}

	pathLen, ok := r.u16()
	if !ok {
		return Record{}, truncated()
	}
	if pathLen == 0 || int(pathLen) > d.maxPathLen {
		return Record{}, &beamtype.FormatError{What: fmt.Sprintf("record %d: path length %d", i, pathLen)}
	}
	pathBytes, ok := r.next(int(pathLen))
	if !ok {
		return Record{}, truncated()
	}
	if !utf8.Valid(pathBytes) || bytes.IndexByte(pathBytes, 0) >= 0 {
		return Record{}, &beamtype.FormatError{What: fmt.Sprintf("record %d: invalid path", i)}
	}
	path := string(pathBytes)

	tag, ok := r.u8()
	if !ok {
		return Record{}, truncated()
	}
	rawLen, ok := r.u32()
	if !ok {
		return Record{}, truncated()
	}
	storedLen, ok := r.u32()
	if !ok {
		return Record{}, truncated()
	}
	if uint64(rawLen) > d.maxRecordSize {
		return Record{}, &beamtype.FormatError{What: fmt.Sprintf("record %d: size %d exceeds limit", i, rawLen)}
	}
	stored, ok := r.next(int(storedLen))
	if !ok {
		return Record{}, truncated()
	}
	sum, ok := r.next(alg.Size())
	if !ok {
		return Record{}, truncated()
	}

	raw, err := d.decompress(Compression(tag), stored, int(rawLen))
	if err != nil {
		return Record{}, &beamtype.CorruptError{Record: i, Path: path, Err: err}
	}
	want := integrity.Digest{Algorithm: alg, Sum: bytes.Clone(sum)}
	if !want.Matches(integrity.Compute(alg, raw).Sum) {
		return Record{}, &beamtype.CorruptError{Record: i, Path: path, Err: errors.New("digest mismatch")}
	}
	return Record{Path: path, Data: raw, Digest: want}, nil
}

func (d *decoder) decompress(tag Compression, stored []byte, rawLen int) ([]byte, error) {
	switch tag {
	case None:
		if len(stored) != rawLen {
			return nil, fmt.Errorf("%w: stored %d want %d", compress.ErrSizeMismatch, len(stored), rawLen)
		}
		return bytes.Clone(stored), nil
	case Zlib:
		return compress.Inflate(stored, rawLen)
	case Zstd:
		return d.zstd.Decode(stored, rawLen)
	case LZ4:
		return compress.LZ4Decode(stored, rawLen)
	default:
		return nil, fmt.Errorf("unknown compression tag %d", tag)
	}
}

// byteReader is a bounds-checked cursor over a package body.
type byteReader struct {
	buf []byte
	pos int
}

func (r *byteReader) remaining() int { return len(r.buf) - r.pos }

func (r *byteReader) next(n int) ([]byte, bool) {
	if n < 0 || n > r.remaining() {
		return nil, false
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, true
}

func (r *byteReader) u8() (byte, bool) {
	b, ok := r.next(1)
	if !ok {
		return 0, false
	}
	return b[0], true
}

func (r *byteReader) u16() (uint16, bool) {
	b, ok := r.next(2)
	if !ok {
		return 0, false
	}
	return binary.LittleEndian.Uint16(b), true
}

func (r *byteReader) u32() (uint32, bool) {
	b, ok := r.next(4)
	if !ok {
		return 0, false
	}
	return binary.LittleEndian.Uint32(b), true
}
