package engine

import (
	"bufio"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/beamguides/beam-patcher/integrity"
	"github.com/beamguides/beam-patcher/internal/beamtype"
)

// maxManifestLine bounds a single manifest line.
const maxManifestLine = 64 << 10

// PatchEntry is one manifest line.
type PatchEntry struct {
	// Filename is relative to every mirror's base URL.
	Filename string

	// Digest is the expected digest of the whole patch file. It is zero
	// when the manifest does not list one.
	Digest integrity.Digest

	// Line is the 1-based manifest line the entry came from.
	Line int
}

// Manifest is the ordered list of patches published by the server. Order
// is application order.
type Manifest struct {
	Entries []PatchEntry
}

// Len returns the number of entries.
func (m *Manifest) Len() int { return len(m.Entries) }

// Index returns the position of filename, or -1.
func (m *Manifest) Index(filename string) int {
	for i, e := range m.Entries {
		if strings.EqualFold(e.Filename, filename) {
			return i
		}
	}
	return -1
}

// ParseManifest reads "filename [digest]" lines. Blank lines and lines
// starting with '#' are ignored.
func ParseManifest(r io.Reader) (*Manifest, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 4096), maxManifestLine)

	m := &Manifest{}
	seen := make(map[string]int)
	line := 0
	for sc.Scan() {
		line++
		text := sc.Text()
		if line == 1 {
			text = strings.TrimPrefix(text, "\ufeff")
		}
		text = strings.TrimSpace(text)
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		entry, err := parseManifestLine(text, line)
		if err != nil {
			return nil, err
		}
		key := strings.ToLower(entry.Filename)
		if prev, dup := seen[key]; dup {
			return nil, &beamtype.ManifestError{
				Line:   line,
				Reason: fmt.Sprintf("duplicate filename %q (first on line %d)", entry.Filename, prev),
			}
		}
		seen[key] = line
		m.Entries = append(m.Entries, entry)
	}
	if err := sc.Err(); err != nil {
		return nil, &beamtype.ManifestError{Line: line + 1, Reason: err.Error()}
	}
	return m, nil
}

func parseManifestLine(text string, line int) (PatchEntry, error) {
	fields := strings.Fields(text)
	if len(fields) > 2 {
		return PatchEntry{}, &beamtype.ManifestError{
			Line:   line,
			Reason: fmt.Sprintf("expected \"filename [digest]\", got %d fields", len(fields)),
		}
	}

	name := fields[0]
	if len(fields) == 1 {
		if _, err := integrity.Parse(name); err == nil {
			return PatchEntry{}, &beamtype.ManifestError{Line: line, Reason: "digest without a filename"}
		}
	}
	if reason := checkFilename(name); reason != "" {
		return PatchEntry{}, &beamtype.ManifestError{Line: line, Reason: fmt.Sprintf("%s: %q", reason, name)}
	}

	entry := PatchEntry{Filename: name, Line: line}
	if len(fields) == 2 {
		d, err := integrity.Parse(fields[1])
		if err != nil {
			return PatchEntry{}, &beamtype.ManifestError{Line: line, Reason: err.Error()}
		}
		entry.Digest = d
	}
	return entry, nil
}

// checkFilename returns why name cannot be staged, or "".
func checkFilename(name string) string {
	slashed := strings.ReplaceAll(name, "\\", "/")
	switch {
	case strings.ContainsRune(name, 0):
		return "filename contains NUL"
	case path.IsAbs(slashed):
		return "absolute filename"
	case len(slashed) >= 2 && slashed[1] == ':':
		return "filename with a drive letter"
	}
	for _, part := range strings.Split(slashed, "/") {
		if part == ".." {
			return "filename escapes the staging directory"
		}
	}
	if cleaned := path.Clean(slashed); cleaned == "." {
		return "empty filename"
	}
	return ""
}
