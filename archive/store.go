package archive

import (
	"bytes"
	"cmp"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/gofrs/flock"
	"github.com/klauspost/compress/zlib"

	"github.com/beamguides/beam-patcher/integrity"
	"github.com/beamguides/beam-patcher/internal/beamtype"
	"github.com/beamguides/beam-patcher/internal/compress"
)

var (
	// ErrLocked is returned when another process holds the container lock.
	ErrLocked = errors.New("archive: locked by another process")

	// ErrReadOnly is returned by mutating calls on a read-only Store.
	ErrReadOnly = errors.New("archive: opened read-only")

	// ErrClosed is returned by calls on a closed Store.
	ErrClosed = errors.New("archive: closed")

	// ErrTooLarge is returned when an entry or the container would exceed
	// the 32-bit offsets of the on-disk format.
	ErrTooLarge = errors.New("archive: exceeds 4 GiB format limit")
)

// FlagCompressed marks an entry whose stored bytes are a zlib stream.
const FlagCompressed uint8 = 0x01

// Entry describes one archive member.
type Entry struct {
	// Path is the member name as stored, with backslash separators.
	Path string

	// Size is the decompressed length.
	Size uint32

	// CompressedSize is the stored length.
	CompressedSize uint32

	// AlignedSize is the stored length padded to 8 bytes.
	AlignedSize uint32

	Flags uint8

	// Offset is relative to the end of the header.
	Offset uint32

	// Digest is the sha256 of the content for entries written in this
	// session. It is zero for entries loaded from disk.
	Digest integrity.Digest

	// rawName holds the on-disk name bytes; Save writes them back as-is.
	rawName []byte
}

// Compressed reports whether the entry is stored zlib-compressed.
func (e Entry) Compressed() bool { return e.Flags&FlagCompressed != 0 }

// staged is a pending insert, replacement, or removal.
type staged struct {
	entry  Entry
	data   []byte
	remove bool
}

// Store is an open archive container.
//
// Get, Entries and the other accessors are safe for concurrent use.
// Mutations are serialized with them.
type Store struct {
	mu sync.RWMutex

	path    string
	version Version
	codec   tableCodec
	file    *os.File
	lock    *flock.Flock

	// committed state
	dataEnd uint32
	entries map[string]Entry
	order   []string

	pending      map[string]*staged
	pendingOrder []string

	created bool
	closed  bool

	readOnly bool
	noLock   bool
	level    int
	skip     []compress.SkipFunc
	logger   *slog.Logger
}

func newStore(path string, opts []Option) *Store {
	s := &Store{
		path:    path,
		entries: make(map[string]Entry),
		pending: make(map[string]*staged),
		level:   zlib.DefaultCompression,
		skip:    []compress.SkipFunc{compress.DefaultSkip(DefaultCompressThreshold)},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open opens an existing container and loads its entry table.
//
// It fails with ErrFormat for a bad header or table, ErrUnsupportedVersion
// for versions without a codec, and ErrLocked when another Store holds the
// container.
func Open(path string, opts ...Option) (*Store, error) {
	s := newStore(path, opts)
	if err := s.acquire(); err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		s.release()
		return nil, &beamtype.IOError{Op: "open", Path: path, Err: err}
	}
	s.file = f
	if err := s.load(); err != nil {
		f.Close()
		s.release()
		return nil, err
	}
	s.log().Debug("archive opened",
		slog.String("path", path),
		slog.String("version", s.version.String()),
		slog.Int("entries", len(s.entries)))
	return s, nil
}

// Create returns an empty Store for a container that does not exist yet.
// Nothing is written until Save.
func Create(path string, version Version, opts ...Option) (*Store, error) {
	codec, err := codecFor(version)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); err == nil {
		return nil, &beamtype.IOError{Op: "create", Path: path, Err: fs.ErrExist}
	}
	s := newStore(path, opts)
	if s.readOnly {
		return nil, ErrReadOnly
	}
	s.version = version
	s.codec = codec
	s.created = true
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, &beamtype.IOError{Op: "create directory", Path: path, Err: err}
	}
	if err := s.acquire(); err != nil {
		return nil, err
	}
	return s, nil
}

// OpenOrCreate opens path, or creates an empty container of the given
// version when it does not exist.
func OpenOrCreate(path string, version Version, opts ...Option) (*Store, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return Create(path, version, opts...)
	}
	return Open(path, opts...)
}

func (s *Store) acquire() error {
	if s.noLock {
		return nil
	}
	s.lock = flock.New(s.path + ".lock")
	var (
		ok  bool
		err error
	)
	if s.readOnly {
		ok, err = s.lock.TryRLock()
	} else {
		ok, err = s.lock.TryLock()
	}
	if err != nil {
		return &beamtype.IOError{Op: "lock", Path: s.path, Err: err}
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrLocked, s.path)
	}
	return nil
}

func (s *Store) release() error {
	if s.lock == nil {
		return nil
	}
	return s.lock.Unlock()
}

// load reads the header and table from s.file and replaces the committed
// state.
func (s *Store) load() error {
	info, err := s.file.Stat()
	if err != nil {
		return &beamtype.IOError{Op: "stat", Path: s.path, Err: err}
	}
	size := info.Size()

	hdr, err := readHeader(s.file)
	if err != nil {
		return err
	}
	codec, err := codecFor(hdr.version)
	if err != nil {
		return err
	}
	tableStart := int64(headerSize) + int64(hdr.tableOffset)
	if tableStart > size {
		return &beamtype.FormatError{What: fmt.Sprintf("table offset %d beyond end of file", hdr.tableOffset)}
	}

	count, countOK := hdr.count()
	if codec.countDriven() && !countOK {
		return &beamtype.FormatError{What: "entry count below seed bias"}
	}
	raw, err := codec.readTable(s.file, size, tableStart, count)
	if err != nil {
		return err
	}
	if countOK && uint32(len(raw)) != count {
		s.log().Warn("archive entry count differs from header",
			slog.String("path", s.path),
			slog.Int("table", len(raw)),
			slog.Uint64("header", uint64(count)))
	}

	entries := make(map[string]Entry, len(raw))
	order := make([]string, 0, len(raw))
	for i, r := range raw {
		if uint64(r.offset)+uint64(r.compSize) > uint64(hdr.tableOffset) {
			return &beamtype.FormatError{What: fmt.Sprintf("table entry %d: data out of bounds", i)}
		}
		name := decodeName(r.name)
		key := NormalizePath(name)
		if key == "" {
			return &beamtype.FormatError{What: fmt.Sprintf("table entry %d: empty name", i)}
		}
		if _, dup := entries[key]; !dup {
			order = append(order, key)
		}
		// Later rows win.
		entries[key] = Entry{
			Path:           name,
			Size:           r.rawSize,
			CompressedSize: r.compSize,
			AlignedSize:    r.alignedSize,
			Flags:          r.flags,
			Offset:         r.offset,
			rawName:        r.name,
		}
	}
	if err := checkOverlap(entries); err != nil {
		return err
	}

	s.version = hdr.version
	s.codec = codec
	s.dataEnd = hdr.tableOffset
	s.entries = entries
	s.order = order
	return nil
}

// checkOverlap fails when the stored bytes of two live entries intersect.
func checkOverlap(entries map[string]Entry) error {
	spans := make([]Entry, 0, len(entries))
	for _, e := range entries {
		if e.CompressedSize > 0 {
			spans = append(spans, e)
		}
	}
	slices.SortFunc(spans, func(a, b Entry) int {
		return cmp.Compare(a.Offset, b.Offset)
	})
	for i := 1; i < len(spans); i++ {
		prev, cur := spans[i-1], spans[i]
		if uint64(prev.Offset)+uint64(prev.CompressedSize) > uint64(cur.Offset) {
			return &beamtype.FormatError{What: fmt.Sprintf("entries %q and %q overlap", prev.Path, cur.Path)}
		}
	}
	return nil
}

// Get returns the decompressed content of path, including staged changes.
func (s *Store) Get(path string) ([]byte, error) {
	key := NormalizePath(path)

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	if st, ok := s.pending[key]; ok {
		if st.remove {
			return nil, &beamtype.NotFoundError{Path: path}
		}
		return decodeEntry(st.entry, st.data)
	}
	e, ok := s.entries[key]
	if !ok {
		return nil, &beamtype.NotFoundError{Path: path}
	}
	stored := make([]byte, e.CompressedSize)
	if _, err := s.file.ReadAt(stored, headerSize+int64(e.Offset)); err != nil {
		return nil, &beamtype.IOError{Op: "read", Path: e.Path, Err: err}
	}
	return decodeEntry(e, stored)
}

func decodeEntry(e Entry, stored []byte) ([]byte, error) {
	var (
		out []byte
		err error
	)
	if e.Compressed() {
		out, err = compress.Inflate(stored, int(e.Size))
		if err != nil {
			return nil, &beamtype.CorruptError{Record: -1, Path: e.Path, Err: err}
		}
	} else {
		if len(stored) != int(e.Size) {
			return nil, &beamtype.CorruptError{
				Record: -1,
				Path:   e.Path,
				Err:    fmt.Errorf("stored %d bytes, want %d", len(stored), e.Size),
			}
		}
		out = stored
	}
	if !e.Digest.IsZero() && !e.Digest.Matches(integrity.Compute(e.Digest.Algorithm, out).Sum) {
		return nil, &beamtype.CorruptError{Record: -1, Path: e.Path, Err: errors.New("digest mismatch")}
	}
	return out, nil
}

// Contains reports whether path resolves to an entry, including staged
// changes.
func (s *Store) Contains(path string) bool {
	key := NormalizePath(path)
	s.mu.RLock()
	defer s.mu.RUnlock()
	if st, ok := s.pending[key]; ok {
		return !st.remove
	}
	_, ok := s.entries[key]
	return ok
}

// Put stages an insert or replacement of path. Nothing is written until
// Save.
func (s *Store) Put(path string, data []byte) error {
	name, err := storedName(path)
	if err != nil {
		return err
	}
	rawName, err := encodeName(name)
	if err != nil {
		return err
	}
	if uint64(len(data)) > math.MaxUint32-7 {
		return fmt.Errorf("%w: %s is %d bytes", ErrTooLarge, name, len(data))
	}

	stored, flags, err := s.encodePayload(name, data)
	if err != nil {
		return err
	}
	e := Entry{
		Path:           name,
		Size:           uint32(len(data)),
		CompressedSize: uint32(len(stored)),
		AlignedSize:    alignUp(uint32(len(stored))),
		Flags:          flags,
		Digest:         integrity.Compute(integrity.SHA256, data),
		rawName:        rawName,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writable(); err != nil {
		return err
	}
	s.stage(NormalizePath(name), &staged{entry: e, data: stored})
	return nil
}

// encodePayload returns the bytes to store for data and their flags.
func (s *Store) encodePayload(name string, data []byte) ([]byte, uint8, error) {
	if compress.ShouldSkip(name, len(data), s.skip) {
		return bytes.Clone(data), 0, nil
	}
	packed, err := compress.Deflate(data, s.level)
	if err != nil {
		return nil, 0, fmt.Errorf("archive: compress %s: %w", name, err)
	}
	if len(packed) >= len(data) {
		return bytes.Clone(data), 0, nil
	}
	return packed, FlagCompressed, nil
}

// Remove stages the removal of path. The entry's bytes stay in the data
// region until Compact.
func (s *Store) Remove(path string) error {
	key := NormalizePath(path)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writable(); err != nil {
		return err
	}

	if st, ok := s.pending[key]; ok {
		if st.remove {
			return &beamtype.NotFoundError{Path: path}
		}
		if _, committed := s.entries[key]; !committed {
			s.unstage(key)
			return nil
		}
	} else if _, ok := s.entries[key]; !ok {
		return &beamtype.NotFoundError{Path: path}
	}
	s.stage(key, &staged{entry: s.entries[key], remove: true})
	return nil
}

func (s *Store) stage(key string, st *staged) {
	if _, ok := s.pending[key]; !ok {
		s.pendingOrder = append(s.pendingOrder, key)
	}
	s.pending[key] = st
}

func (s *Store) unstage(key string) {
	delete(s.pending, key)
	if i := slices.Index(s.pendingOrder, key); i >= 0 {
		s.pendingOrder = slices.Delete(s.pendingOrder, i, i+1)
	}
}

// Discard drops all staged changes.
func (s *Store) Discard() {
	s.mu.Lock()
	defer s.mu.Unlock()
	clear(s.pending)
	s.pendingOrder = nil
}

func (s *Store) writable() error {
	switch {
	case s.closed:
		return ErrClosed
	case s.readOnly:
		return ErrReadOnly
	}
	return nil
}

// Entries returns the committed entries in table order.
func (s *Store) Entries() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, 0, len(s.order))
	for _, key := range s.order {
		out = append(out, s.entries[key])
	}
	return out
}

// Len returns the number of committed entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Pending returns the number of staged changes.
func (s *Store) Pending() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pending)
}

// Usage describes how the committed data region is used.
type Usage struct {
	// Data is the length of the data region.
	Data uint64
	// Live is the aligned stored size of the committed entries.
	Live uint64
}

// Dead returns the bytes held by replaced or removed entries.
func (u Usage) Dead() uint64 {
	if u.Live >= u.Data {
		return 0
	}
	return u.Data - u.Live
}

// DeadRatio returns Dead as a fraction of Data.
func (u Usage) DeadRatio() float64 {
	if u.Data == 0 {
		return 0
	}
	return float64(u.Dead()) / float64(u.Data)
}

// Usage reports committed data region usage. Staged changes are not
// counted.
func (s *Store) Usage() Usage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u := Usage{Data: uint64(s.dataEnd)}
	for _, e := range s.entries {
		u.Live += uint64(alignUp(e.CompressedSize))
	}
	return u
}

// Dirty reports whether Save would write anything.
func (s *Store) Dirty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dirty()
}

func (s *Store) dirty() bool { return s.created || len(s.pending) > 0 }

// Version returns the container version.
func (s *Store) Version() Version { return s.version }

// Path returns the container path.
func (s *Store) Path() string { return s.path }

// Close releases the file handle and the lock. Staged changes that were
// not saved are dropped.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if len(s.pending) > 0 {
		s.log().Warn("archive closed with unsaved changes",
			slog.String("path", s.path),
			slog.Int("pending", len(s.pending)))
	}

	var errs []error
	if s.file != nil {
		if err := s.file.Close(); err != nil {
			errs = append(errs, &beamtype.IOError{Op: "close", Path: s.path, Err: err})
		}
		s.file = nil
	}
	if err := s.release(); err != nil {
		errs = append(errs, &beamtype.IOError{Op: "unlock", Path: s.path, Err: err})
	}
	return errors.Join(errs...)
}

// log returns the configured logger or a discard logger if none is set.
func (s *Store) log() *slog.Logger {
	if s.logger != nil {
		return s.logger
	}
	return slog.New(slog.DiscardHandler)
}

func alignUp(n uint32) uint32 {
	return (n + 7) &^ 7
}
