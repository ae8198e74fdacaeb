package status

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/beamguides/beam-patcher/integrity"
)

// FileManifest is the game file manifest: the files a complete client
// install holds, with their digests.
type FileManifest struct {
	Files []FileEntry `json:"files"`
}

// FileEntry is one file in a FileManifest.
type FileEntry struct {
	// Path is relative to the game directory, with either separator.
	Path string `json:"path"`
	// Checksum is a bare-hex or tagged digest string.
	Checksum string `json:"checksum"`
	// Size is the expected length in bytes, or zero when not listed.
	Size int64 `json:"size,omitempty"`
}

// ParseFileManifest decodes a file manifest. Every entry needs a path
// inside the game directory and a parsable checksum.
func ParseFileManifest(data []byte) (*FileManifest, error) {
	doc, err := parseDocument("file manifest", data)
	if err != nil {
		return nil, err
	}
	items, err := doc.requiredArray("files")
	if err != nil {
		return nil, err
	}
	m := &FileManifest{Files: make([]FileEntry, 0, len(items))}
	for i, item := range items {
		entry, err := parseFileEntry(fmt.Sprintf("file manifest entry %d", i), item)
		if err != nil {
			return nil, err
		}
		m.Files = append(m.Files, entry)
	}
	return m, nil
}

func parseFileEntry(name string, data []byte) (FileEntry, error) {
	doc, err := parseDocument(name, data)
	if err != nil {
		return FileEntry{}, err
	}
	var e FileEntry
	if e.Path, err = doc.requiredString("path"); err != nil {
		return FileEntry{}, err
	}
	if !filepath.IsLocal(LocalPath(e.Path)) {
		return FileEntry{}, doc.fieldError("path", "must stay inside the game directory")
	}
	if e.Checksum, err = doc.requiredString("checksum"); err != nil {
		return FileEntry{}, err
	}
	if _, err := integrity.Parse(e.Checksum); err != nil {
		return FileEntry{}, doc.fieldError("checksum", err.Error())
	}
	if e.Size, err = doc.optionalInt64("size"); err != nil {
		return FileEntry{}, err
	}
	if e.Size < 0 {
		return FileEntry{}, doc.fieldError("size", "must not be negative")
	}
	return e, nil
}

// LocalPath converts a manifest path to the host separator.
func LocalPath(p string) string {
	return filepath.FromSlash(strings.ReplaceAll(p, "\\", "/"))
}
