package archive

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/beamguides/beam-patcher/internal/beamtype"
)

const (
	// headerSize is the fixed header length. Entry and table offsets are
	// relative to the end of the header.
	headerSize = 46

	// countBias is added to the entry count (together with the seed) when
	// the count is stored in the header.
	countBias = 7
)

var (
	magic = [16]byte{'M', 'a', 's', 't', 'e', 'r', ' ', 'o', 'f', ' ', 'M', 'a', 'g', 'i', 'c', 0}

	defaultKey = [14]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14}
)

// header is the decoded fixed-size container header.
type header struct {
	key         [14]byte
	tableOffset uint32
	seed        uint32
	storedCount uint32
	version     Version
}

// count returns the entry count recorded in the header.
func (h header) count() (uint32, bool) {
	bias := uint64(h.seed) + countBias
	if uint64(h.storedCount) < bias {
		return 0, false
	}
	return uint32(uint64(h.storedCount) - bias), true
}

func newHeader(v Version, tableOffset uint32, count int) header {
	return header{
		key:         defaultKey,
		tableOffset: tableOffset,
		storedCount: uint32(count) + countBias,
		version:     v,
	}
}

// readHeader decodes the header at the start of r. Only the first 15 magic
// bytes are compared; some writers leave garbage in the terminator.
func readHeader(r io.ReaderAt) (header, error) {
	var buf [headerSize]byte
	if _, err := r.ReadAt(buf[:], 0); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return header{}, &beamtype.FormatError{What: "truncated header"}
		}
		return header{}, err
	}
	if !bytes.Equal(buf[:15], magic[:15]) {
		return header{}, &beamtype.FormatError{What: "bad magic"}
	}

	var h header
	copy(h.key[:], buf[16:30])
	h.tableOffset = binary.LittleEndian.Uint32(buf[30:34])
	h.seed = binary.LittleEndian.Uint32(buf[34:38])
	h.storedCount = binary.LittleEndian.Uint32(buf[38:42])
	h.version = Version(binary.LittleEndian.Uint32(buf[42:46]))
	return h, nil
}

// encode returns the 46-byte wire form of h.
func (h header) encode() []byte {
	buf := make([]byte, headerSize)
	copy(buf[0:16], magic[:])
	copy(buf[16:30], h.key[:])
	binary.LittleEndian.PutUint32(buf[30:34], h.tableOffset)
	binary.LittleEndian.PutUint32(buf[34:38], h.seed)
	binary.LittleEndian.PutUint32(buf[38:42], h.storedCount)
	binary.LittleEndian.PutUint32(buf[42:46], uint32(h.version))
	return buf
}

func (h header) String() string {
	n, _ := h.count()
	return fmt.Sprintf("version=%s table=%d entries=%d", h.version, h.tableOffset, n)
}
