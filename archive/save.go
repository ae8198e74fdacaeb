package archive

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/beamguides/beam-patcher/internal/beamtype"
)

// Save commits staged changes.
//
// The committed data region is copied verbatim into a temp file in the same
// directory, staged payloads are appended, and a new table and header are
// written. The temp file is synced and renamed over the container, so a
// crash leaves either the old or the new container on disk. Space held by
// replaced or removed entries is kept; see Compact.
//
// Save is a no-op when nothing is staged.
func (s *Store) Save() error {
	return s.commit(false)
}

// Compact rewrites the container with only live entries, applying staged
// changes on the way. It uses the same atomic sequence as Save.
func (s *Store) Compact() error {
	return s.commit(true)
}

func (s *Store) commit(compact bool) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.writable(); err != nil {
		return err
	}
	if !compact && !s.dirty() {
		return nil
	}
	start := time.Now()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return &beamtype.IOError{Op: "create directory", Path: dir, Err: err}
	}
	tmp, err := os.CreateTemp(dir, ".beam-archive-*")
	if err != nil {
		return &beamtype.IOError{Op: "create temp file", Path: dir, Err: err}
	}
	tmpPath := tmp.Name()
	tmpOpen := true
	defer func() {
		if err == nil {
			return
		}
		if tmpOpen {
			tmp.Close()
		}
		os.Remove(tmpPath)
	}()

	w := &containerWriter{bw: bufio.NewWriterSize(tmp, 1<<20)}
	if err := w.write(make([]byte, headerSize)); err != nil {
		return &beamtype.IOError{Op: "write", Path: tmpPath, Err: err}
	}

	entries, order, table, err := s.writeData(w, compact)
	if err != nil {
		return err
	}
	tableOffset := w.dataPos()
	if tableOffset > math.MaxUint32 {
		return fmt.Errorf("%w: %s", ErrTooLarge, s.path)
	}

	tableBytes, err := s.codec.encodeTable(table)
	if err != nil {
		return fmt.Errorf("archive: encode table: %w", err)
	}
	if err := w.write(tableBytes); err != nil {
		return &beamtype.IOError{Op: "write", Path: tmpPath, Err: err}
	}
	if err := w.bw.Flush(); err != nil {
		return &beamtype.IOError{Op: "write", Path: tmpPath, Err: err}
	}
	hdr := newHeader(s.version, uint32(tableOffset), len(table))
	if _, err := tmp.WriteAt(hdr.encode(), 0); err != nil {
		return &beamtype.IOError{Op: "write header", Path: tmpPath, Err: err}
	}
	if err := tmp.Sync(); err != nil {
		return &beamtype.IOError{Op: "sync", Path: tmpPath, Err: err}
	}
	tmpOpen = false
	if err := tmp.Close(); err != nil {
		return &beamtype.IOError{Op: "close", Path: tmpPath, Err: err}
	}

	// The old handle is closed before the rename so the replace also works
	// where open files cannot be renamed over.
	if s.file != nil {
		s.file.Close()
		s.file = nil
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		s.reopen()
		return &beamtype.IOError{Op: "rename", Path: s.path, Err: err}
	}
	if err := syncDir(dir); err != nil {
		s.log().Debug("directory sync failed", slog.String("dir", dir), slog.Any("error", err))
	}

	s.entries = entries
	s.order = order
	s.dataEnd = uint32(tableOffset)
	clear(s.pending)
	s.pendingOrder = nil
	s.created = false

	if err := s.reopen(); err != nil {
		return err
	}
	s.log().Info("archive saved",
		slog.String("path", s.path),
		slog.Bool("compact", compact),
		slog.Int("entries", len(entries)),
		slog.Int64("size", w.n),
		slog.Duration("elapsed", time.Since(start)))
	return nil
}

// writeData writes the data region and returns the resulting committed
// state and table rows. Entries keep table order; new entries follow in
// staging order.
func (s *Store) writeData(w *containerWriter, compact bool) (map[string]Entry, []string, []rawEntry, error) {
	if !compact && s.file != nil && s.dataEnd > 0 {
		region := io.NewSectionReader(s.file, headerSize, int64(s.dataEnd))
		if err := w.copy(region); err != nil {
			return nil, nil, nil, &beamtype.IOError{Op: "copy data", Path: s.path, Err: err}
		}
	}

	entries := make(map[string]Entry, len(s.entries)+len(s.pending))
	order := make([]string, 0, len(s.order)+len(s.pendingOrder))
	table := make([]rawEntry, 0, cap(order))

	add := func(key string, e Entry) error {
		if e.rawName == nil {
			name, err := encodeName(e.Path)
			if err != nil {
				return err
			}
			e.rawName = name
		}
		entries[key] = e
		order = append(order, key)
		table = append(table, rawEntry{
			name:        e.rawName,
			compSize:    e.CompressedSize,
			alignedSize: e.AlignedSize,
			rawSize:     e.Size,
			flags:       e.Flags,
			offset:      e.Offset,
		})
		return nil
	}
	appendStaged := func(key string, st *staged) error {
		e := st.entry
		off, err := w.payload(st.data)
		if err != nil {
			return err
		}
		e.Offset = off
		return add(key, e)
	}

	for _, key := range s.order {
		if st, ok := s.pending[key]; ok {
			if st.remove {
				continue
			}
			if err := appendStaged(key, st); err != nil {
				return nil, nil, nil, err
			}
			continue
		}
		e := s.entries[key]
		if compact {
			stored := make([]byte, e.CompressedSize)
			if _, err := s.file.ReadAt(stored, headerSize+int64(e.Offset)); err != nil {
				return nil, nil, nil, &beamtype.IOError{Op: "read", Path: e.Path, Err: err}
			}
			off, err := w.payload(stored)
			if err != nil {
				return nil, nil, nil, err
			}
			e.Offset = off
			e.AlignedSize = alignUp(e.CompressedSize)
		}
		if err := add(key, e); err != nil {
			return nil, nil, nil, err
		}
	}
	for _, key := range s.pendingOrder {
		if _, committed := s.entries[key]; committed {
			continue
		}
		st := s.pending[key]
		if st.remove {
			continue
		}
		if err := appendStaged(key, st); err != nil {
			return nil, nil, nil, err
		}
	}
	return entries, order, table, nil
}

func (s *Store) reopen() error {
	f, err := os.Open(s.path)
	if err != nil {
		return &beamtype.IOError{Op: "reopen", Path: s.path, Err: err}
	}
	s.file = f
	return nil
}

// containerWriter tracks the write position of a container being built.
type containerWriter struct {
	bw *bufio.Writer
	n  int64
}

var padding [8]byte

func (w *containerWriter) write(p []byte) error {
	n, err := w.bw.Write(p)
	w.n += int64(n)
	return err
}

func (w *containerWriter) copy(r io.Reader) error {
	n, err := io.Copy(w.bw, r)
	w.n += n
	return err
}

// dataPos returns the position relative to the end of the header.
func (w *containerWriter) dataPos() int64 { return w.n - headerSize }

// payload writes stored bytes padded to 8 and returns their offset.
func (w *containerWriter) payload(stored []byte) (uint32, error) {
	off := w.dataPos()
	if off+int64(alignUp(uint32(len(stored)))) > math.MaxUint32 {
		return 0, ErrTooLarge
	}
	if err := w.write(stored); err != nil {
		return 0, &beamtype.IOError{Op: "write", Path: "payload", Err: err}
	}
	if pad := int(alignUp(uint32(len(stored)))) - len(stored); pad > 0 {
		if err := w.write(padding[:pad]); err != nil {
			return 0, &beamtype.IOError{Op: "write", Path: "payload", Err: err}
		}
	}
	return uint32(off), nil
}

// syncDir flushes the directory entry after a rename.
func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}
