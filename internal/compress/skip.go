// Package compress holds the payload codecs shared by archive entries and
// patch packages, plus the policy deciding when compression is skipped.
package compress

import (
	"path"
	"strings"
)

// SkipFunc returns true when a payload should be stored uncompressed.
// It is called once per payload and should be inexpensive.
type SkipFunc func(name string, size int) bool

// DefaultSkip returns a SkipFunc that skips payloads not larger than
// minSize and names with an already-compressed extension.
func DefaultSkip(minSize int) SkipFunc {
	return func(name string, size int) bool {
		if size <= minSize {
			return true
		}
		return AlreadyCompressed(name)
	}
}

// ShouldSkip checks if any predicate returns true for the payload.
func ShouldSkip(name string, size int, predicates []SkipFunc) bool {
	for _, fn := range predicates {
		if fn == nil {
			continue
		}
		if fn(name, size) {
			return true
		}
	}
	return false
}

// AlreadyCompressed reports whether name carries the extension of a
// format that is compressed on its own. Both separators are accepted.
func AlreadyCompressed(name string) bool {
	name = strings.ReplaceAll(name, "\\", "/")
	_, ok := compressedExts[strings.ToLower(path.Ext(name))]
	return ok
}

var compressedExts = map[string]struct{}{
	".7z":   {},
	".bik":  {},
	".br":   {},
	".bz2":  {},
	".gif":  {},
	".gpf":  {},
	".grf":  {},
	".gz":   {},
	".jpeg": {},
	".jpg":  {},
	".lz4":  {},
	".mp3":  {},
	".mp4":  {},
	".ogg":  {},
	".png":  {},
	".rar":  {},
	".rgz":  {},
	".thor": {},
	".tgz":  {},
	".webm": {},
	".webp": {},
	".xz":   {},
	".zip":  {},
	".zst":  {},
}
