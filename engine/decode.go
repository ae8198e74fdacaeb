package engine

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/beamguides/beam-patcher/archive"
	"github.com/beamguides/beam-patcher/integrity"
	"github.com/beamguides/beam-patcher/internal/beamtype"
	"github.com/beamguides/beam-patcher/patchpkg"
)

// PatchFormat returns the package format implied by a file extension.
func PatchFormat(name string) (patchpkg.Format, bool) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".beam":
		return patchpkg.FormatBEAM, true
	case ".thor":
		return patchpkg.FormatTHOR, true
	case ".rgz":
		return patchpkg.FormatRGZ, true
	case ".gpf":
		return patchpkg.FormatGPF, true
	default:
		return 0, false
	}
}

// verifyFile checks a staged patch against the manifest digest.
func verifyFile(path string, want integrity.Digest) error {
	got, err := integrity.ComputeFile(want.Algorithm, path)
	if err != nil {
		return &beamtype.IOError{Op: "read", Path: path, Err: err}
	}
	if !got.Equal(want) {
		return &beamtype.CorruptError{
			Record: -1,
			Path:   filepath.Base(path),
			Err:    fmt.Errorf("digest mismatch: want %s, got %s", want, got),
		}
	}
	return nil
}

// DecodeFile reads and fully verifies the patch at path. The format is
// chosen by extension as in PatchFormat.
func DecodeFile(path string, opts ...patchpkg.DecodeOption) (*patchpkg.Package, error) {
	return decodeFile(path, slog.New(slog.DiscardHandler), opts)
}

func (e *Engine) decodePatch(path string) (*patchpkg.Package, error) {
	return decodeFile(path, e.log(), e.decodeOpts)
}

func decodeFile(path string, log *slog.Logger, opts []patchpkg.DecodeOption) (*patchpkg.Package, error) {
	format, ok := PatchFormat(path)
	if !ok {
		return nil, &beamtype.FormatError{What: fmt.Sprintf("unknown patch type %q", filepath.Ext(path))}
	}
	if format == patchpkg.FormatGPF {
		return readContainerPatch(path, log)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &beamtype.IOError{Op: "read", Path: path, Err: err}
	}
	switch format {
	case patchpkg.FormatTHOR:
		return patchpkg.DecodeTHOR(data, opts...)
	case patchpkg.FormatRGZ:
		return patchpkg.DecodeRGZ(data, opts...)
	default:
		return patchpkg.Decode(data, opts...)
	}
}

// readContainerPatch loads every member of a container patch. Each member
// is decompressed before the package is returned.
func readContainerPatch(path string, log *slog.Logger) (*patchpkg.Package, error) {
	src, err := archive.Open(path, archive.WithReadOnly(), archive.WithoutLock(), archive.WithLogger(log))
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := src.Close(); cerr != nil {
			log.Warn("close container patch", "path", path, "error", cerr)
		}
	}()

	entries := src.Entries()
	pkg := &patchpkg.Package{
		Format:  patchpkg.FormatGPF,
		Version: uint16(src.Version()),
		Records: make([]patchpkg.Record, 0, len(entries)),
	}
	for i, entry := range entries {
		data, err := src.Get(entry.Path)
		if err != nil {
			return nil, fmt.Errorf("container member %d: %w", i, err)
		}
		pkg.Records = append(pkg.Records, patchpkg.Record{
			Path:   entry.Path,
			Data:   data,
			Digest: integrity.Compute(integrity.SHA256, data),
		})
	}
	return pkg, nil
}
