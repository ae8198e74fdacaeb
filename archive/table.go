package archive

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"

	"github.com/beamguides/beam-patcher/internal/beamtype"
	"github.com/beamguides/beam-patcher/internal/compress"
)

const (
	// entryFieldsSize is the fixed part of a table entry after its name.
	entryFieldsSize = 4 + 4 + 4 + 1 + 4

	// maxNameLen bounds a single table name.
	maxNameLen = 4096

	// maxTableSize bounds the decompressed 0x200 table.
	maxTableSize = 256 << 20
)

// rawEntry is a table row with its name in on-disk encoding (EUC-KR,
// cipher removed).
type rawEntry struct {
	name        []byte
	compSize    uint32
	alignedSize uint32
	rawSize     uint32
	flags       uint8
	offset      uint32
}

func (e *rawEntry) readFields(b []byte) {
	e.compSize = binary.LittleEndian.Uint32(b[0:4])
	e.alignedSize = binary.LittleEndian.Uint32(b[4:8])
	e.rawSize = binary.LittleEndian.Uint32(b[8:12])
	e.flags = b[12]
	e.offset = binary.LittleEndian.Uint32(b[13:17])
}

func (e *rawEntry) appendFields(b []byte) []byte {
	b = binary.LittleEndian.AppendUint32(b, e.compSize)
	b = binary.LittleEndian.AppendUint32(b, e.alignedSize)
	b = binary.LittleEndian.AppendUint32(b, e.rawSize)
	b = append(b, e.flags)
	return binary.LittleEndian.AppendUint32(b, e.offset)
}

// tableCodec reads and writes the entry table of one container version.
type tableCodec interface {
	// readTable decodes count entries from the table starting at tableStart
	// (absolute). size is the container length.
	readTable(r io.ReaderAt, size int64, tableStart int64, count uint32) ([]rawEntry, error)

	// encodeTable returns the bytes written at the table offset.
	encodeTable(entries []rawEntry) ([]byte, error)

	// countDriven reports whether readTable needs the header entry count.
	countDriven() bool
}

// legacyTable is the uncompressed table used by 0x101 through 0x103.
type legacyTable struct {
	names nameCipher
}

func (t legacyTable) countDriven() bool { return true }

func (t legacyTable) readTable(r io.ReaderAt, size, tableStart int64, count uint32) ([]rawEntry, error) {
	if tableStart > size {
		return nil, &beamtype.FormatError{What: "table offset beyond end of file"}
	}
	br := bufio.NewReader(io.NewSectionReader(r, tableStart, size-tableStart))

	entries := make([]rawEntry, 0, min(count, 1<<16))
	var lenBuf [4]byte
	var fields [entryFieldsSize]byte
	for i := uint32(0); i < count; i++ {
		if _, err := io.ReadFull(br, lenBuf[:]); err != nil {
			return nil, truncatedTable(i, err)
		}
		n := binary.LittleEndian.Uint32(lenBuf[:])
		if n == 0 || n > maxNameLen {
			return nil, &beamtype.FormatError{What: fmt.Sprintf("table entry %d: name length %d", i, n)}
		}
		name := make([]byte, n)
		if _, err := io.ReadFull(br, name); err != nil {
			return nil, truncatedTable(i, err)
		}
		if _, err := io.ReadFull(br, fields[:]); err != nil {
			return nil, truncatedTable(i, err)
		}
		e := rawEntry{name: t.names.decrypt(name)}
		e.readFields(fields[:])
		entries = append(entries, e)
	}
	return entries, nil
}

func (t legacyTable) encodeTable(entries []rawEntry) ([]byte, error) {
	var b []byte
	for _, e := range entries {
		if len(e.name) > maxNameLen {
			return nil, fmt.Errorf("%w: name longer than %d bytes", ErrInvalidPath, maxNameLen)
		}
		b = binary.LittleEndian.AppendUint32(b, uint32(len(e.name)))
		b = append(b, t.names.encrypt(e.name)...)
		b = e.appendFields(b)
	}
	return b, nil
}

// compressedTable is the 0x200 table: a size prefix followed by a zlib
// stream of NUL-terminated names and fixed fields.
type compressedTable struct{}

func (compressedTable) countDriven() bool { return false }

func (compressedTable) readTable(r io.ReaderAt, size, tableStart int64, _ uint32) ([]rawEntry, error) {
	var prefix [8]byte
	if _, err := r.ReadAt(prefix[:], tableStart); err != nil {
		return nil, &beamtype.FormatError{What: "table header out of bounds", Err: err}
	}
	compLen := int64(binary.LittleEndian.Uint32(prefix[0:4]))
	rawLen := int64(binary.LittleEndian.Uint32(prefix[4:8]))
	if tableStart+8+compLen > size {
		return nil, &beamtype.FormatError{What: "table out of bounds"}
	}
	if rawLen > maxTableSize {
		return nil, &beamtype.FormatError{What: fmt.Sprintf("table size %d exceeds limit", rawLen)}
	}

	packed := make([]byte, compLen)
	if _, err := r.ReadAt(packed, tableStart+8); err != nil {
		return nil, &beamtype.FormatError{What: "read table", Err: err}
	}
	table, err := compress.Inflate(packed, int(rawLen))
	if err != nil {
		return nil, &beamtype.FormatError{What: "inflate table", Err: err}
	}

	var entries []rawEntry
	for pos := 0; pos < len(table); {
		end := bytes.IndexByte(table[pos:], 0)
		if end < 0 {
			return nil, &beamtype.FormatError{What: fmt.Sprintf("table entry %d: unterminated name", len(entries))}
		}
		if end == 0 || end > maxNameLen {
			return nil, &beamtype.FormatError{What: fmt.Sprintf("table entry %d: name length %d", len(entries), end)}
		}
		name := table[pos : pos+end]
		pos += end + 1
		if pos+entryFieldsSize > len(table) {
			return nil, truncatedTable(uint32(len(entries)), io.ErrUnexpectedEOF)
		}
		e := rawEntry{name: bytes.Clone(name)}
		e.readFields(table[pos : pos+entryFieldsSize])
		pos += entryFieldsSize
		entries = append(entries, e)
	}
	return entries, nil
}

func (compressedTable) encodeTable(entries []rawEntry) ([]byte, error) {
	var table []byte
	for _, e := range entries {
		if len(e.name) > maxNameLen || bytes.IndexByte(e.name, 0) >= 0 {
			return nil, fmt.Errorf("%w: bad table name %q", ErrInvalidPath, e.name)
		}
		table = append(table, e.name...)
		table = append(table, 0)
		table = e.appendFields(table)
	}
	packed, err := compress.Deflate(table, zlib.BestCompression)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, 8+len(packed))
	out = binary.LittleEndian.AppendUint32(out, uint32(len(packed)))
	out = binary.LittleEndian.AppendUint32(out, uint32(len(table)))
	return append(out, packed...), nil
}

func truncatedTable(i uint32, err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return &beamtype.FormatError{What: fmt.Sprintf("table truncated at entry %d", i)}
	}
	return &beamtype.FormatError{What: fmt.Sprintf("table entry %d", i), Err: err}
}
