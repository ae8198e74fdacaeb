package patchpkg

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/klauspost/compress/gzip"
	"golang.org/x/text/encoding/korean"

	"github.com/beamguides/beam-patcher/integrity"
	"github.com/beamguides/beam-patcher/internal/beamtype"
)

// thorMagic opens every THOR patch. The rest of the file is a gzip stream.
var thorMagic = []byte("ASSF (C) 2007 Aeomin DEV\x1a\x04\x0c\x00")

var errEmptyName = errors.New("empty name")

const (
	thorAdd    = 0x01
	thorRemove = 0x02

	rgzFile = 'f'
	rgzDir  = 'd'
	rgzEnd  = 'e'
)

// IsTHOR reports whether data starts with the THOR magic.
func IsTHOR(data []byte) bool {
	return bytes.HasPrefix(data, thorMagic)
}

// DecodeTHOR reads a THOR patch: a stream of add (0x01) and remove (0x02)
// records behind a fixed magic. Record digests are computed on decode.
func DecodeTHOR(data []byte, opts ...DecodeOption) (*Package, error) {
	if !IsTHOR(data) {
		return nil, &beamtype.FormatError{What: "bad thor magic"}
	}
	d := newDecoder(opts)
	zr, err := gzip.NewReader(bytes.NewReader(data[len(thorMagic):]))
	if err != nil {
		return nil, &beamtype.FormatError{What: "thor stream", Err: err}
	}
	defer zr.Close()

	pkg := &Package{Format: FormatTHOR}
	br := bufio.NewReader(zr)
	for i := 0; ; i++ {
		mode, err := br.ReadByte()
		if errors.Is(err, io.EOF) {
			return pkg, nil
		}
		if err != nil {
			return nil, streamError(i, err)
		}
		if i >= d.maxRecords {
			return nil, &beamtype.FormatError{What: fmt.Sprintf("more than %d records", d.maxRecords)}
		}
		name, err := readShortName(br)
		if err != nil {
			return nil, streamError(i, err)
		}

		switch mode {
		case thorAdd:
			data, err := d.readSized(br, i)
			if err != nil {
				return nil, err
			}
			pkg.Records = append(pkg.Records, newRecord(name, data))
		case thorRemove:
			pkg.Records = append(pkg.Records, Record{Path: name, Remove: true})
		default:
			return nil, &beamtype.FormatError{What: fmt.Sprintf("record %d: unknown thor mode %#x", i, mode)}
		}
	}
}

// DecodeRGZ reads an RGZ patch: a gzip stream of file ('f'), directory
// ('d') and end ('e') records. Directory records carry no content and are
// dropped.
func DecodeRGZ(data []byte, opts ...DecodeOption) (*Package, error) {
	d := newDecoder(opts)
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, &beamtype.FormatError{What: "rgz stream", Err: err}
	}
	defer zr.Close()

	pkg := &Package{Format: FormatRGZ}
	br := bufio.NewReader(zr)
	for i := 0; ; i++ {
		kind, err := br.ReadByte()
		if errors.Is(err, io.EOF) {
			return pkg, nil
		}
		if err != nil {
			return nil, streamError(i, err)
		}
		if i >= d.maxRecords {
			return nil, &beamtype.FormatError{What: fmt.Sprintf("more than %d records", d.maxRecords)}
		}

		switch kind {
		case rgzFile:
			name, err := readShortName(br)
			if err != nil {
				return nil, streamError(i, err)
			}
			data, err := d.readSized(br, i)
			if err != nil {
				return nil, err
			}
			pkg.Records = append(pkg.Records, newRecord(name, data))
		case rgzDir:
			if _, err := readShortName(br); err != nil {
				return nil, streamError(i, err)
			}
		case rgzEnd:
			return pkg, nil
		default:
			return nil, &beamtype.FormatError{What: fmt.Sprintf("record %d: unknown rgz record %q", i, kind)}
		}
	}
}

func newRecord(name string, data []byte) Record {
	return Record{
		Path:   name,
		Data:   data,
		Digest: integrity.Compute(integrity.SHA256, data),
	}
}

// readShortName reads a u8-length-prefixed name.
func readShortName(br *bufio.Reader) (string, error) {
	n, err := br.ReadByte()
	if err != nil {
		return "", err
	}
	if n == 0 {
		return "", errEmptyName
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(br, buf); err != nil {
		return "", err
	}
	return decodeLegacyName(buf), nil
}

// readSized reads a u32-length-prefixed payload.
func (d *decoder) readSized(br *bufio.Reader, i int) ([]byte, error) {
	var sizeBuf [4]byte
	if _, err := io.ReadFull(br, sizeBuf[:]); err != nil {
		return nil, streamError(i, err)
	}
	size := binary.LittleEndian.Uint32(sizeBuf[:])
	if uint64(size) > d.maxRecordSize {
		return nil, &beamtype.FormatError{What: fmt.Sprintf("record %d: size %d exceeds limit", i, size)}
	}
	data := make([]byte, size)
	if _, err := io.ReadFull(br, data); err != nil {
		return nil, streamError(i, err)
	}
	return data, nil
}

// decodeLegacyName returns name as UTF-8. Legacy tools write EUC-KR.
func decodeLegacyName(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	out, err := korean.EUCKR.NewDecoder().Bytes(b)
	if err != nil {
		return string(bytes.ToValidUTF8(b, []byte("�")))
	}
	return string(out)
}

// streamError classifies a read failure inside a gzip-wrapped record
// stream. Truncation is structural; checksum and inflate failures mean the
// payload is damaged.
func streamError(i int, err error) error {
	switch {
	case errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, io.EOF):
		return &beamtype.FormatError{What: fmt.Sprintf("record %d truncated", i)}
	case errors.Is(err, errEmptyName):
		return &beamtype.FormatError{What: fmt.Sprintf("record %d", i), Err: err}
	default:
		return &beamtype.CorruptError{Record: i, Err: err}
	}
}
