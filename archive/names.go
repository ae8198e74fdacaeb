package archive

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/encoding/korean"
)

// ErrInvalidPath is returned when a path is empty, escapes the archive root,
// or cannot be represented in the on-disk name encoding.
var ErrInvalidPath = errors.New("archive: invalid path")

// NormalizePath converts a user-provided path to its lookup key.
//
// It performs the following transformations:
//   - Converts backslashes to slashes: "data\sprite" → "data/sprite"
//   - Strips leading and trailing separators
//   - Collapses consecutive separators: "data//sprite" → "data/sprite"
//   - Lower-cases the result: lookups are case-insensitive
//
// The empty string is returned for a path with no elements.
func NormalizePath(p string) string {
	return strings.ToLower(strings.Join(splitPath(p), "/"))
}

// splitPath returns the non-empty elements of p under either separator.
func splitPath(p string) []string {
	p = strings.ReplaceAll(p, "\\", "/")
	parts := strings.Split(p, "/")
	result := parts[:0]
	for _, part := range parts {
		if part != "" {
			result = append(result, part)
		}
	}
	return result
}

// storedName returns the display form of p as written to the table:
// backslash separators with the original case kept.
func storedName(p string) (string, error) {
	parts := splitPath(p)
	if len(parts) == 0 {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}
	for _, part := range parts {
		if part == "." || part == ".." {
			return "", fmt.Errorf("%w: %q", ErrInvalidPath, p)
		}
		if strings.ContainsRune(part, 0) {
			return "", fmt.Errorf("%w: NUL in %q", ErrInvalidPath, p)
		}
	}
	return strings.Join(parts, "\\"), nil
}

// encodeName converts a UTF-8 name to the EUC-KR bytes stored on disk.
func encodeName(name string) ([]byte, error) {
	if isASCII(name) {
		return []byte(name), nil
	}
	b, err := korean.EUCKR.NewEncoder().Bytes([]byte(name))
	if err != nil {
		return nil, fmt.Errorf("%w: %q not representable: %v", ErrInvalidPath, name, err)
	}
	return b, nil
}

// decodeName converts stored EUC-KR bytes to UTF-8. Invalid sequences are
// replaced rather than rejected so damaged names stay addressable.
func decodeName(b []byte) string {
	if isASCII(string(b)) {
		return string(b)
	}
	out, err := korean.EUCKR.NewDecoder().Bytes(b)
	if err != nil {
		return strings.ToValidUTF8(string(b), "�")
	}
	return string(out)
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= 0x80 {
			return false
		}
	}
	return true
}

// nameCipher transforms table names between their on-disk and plain forms.
type nameCipher interface {
	decrypt(b []byte) []byte
	encrypt(b []byte) []byte
}

// plainNames stores names as-is.
type plainNames struct{}

func (plainNames) decrypt(b []byte) []byte { return b }
func (plainNames) encrypt(b []byte) []byte { return b }

// nibbleSwapNames swaps the high and low nibble of every name byte. The
// transform is its own inverse.
type nibbleSwapNames struct{}

func (nibbleSwapNames) decrypt(b []byte) []byte { return swapNibbles(b) }
func (nibbleSwapNames) encrypt(b []byte) []byte { return swapNibbles(b) }

func swapNibbles(b []byte) []byte {
	out := make([]byte, len(b))
	for i, c := range b {
		out[i] = c<<4 | c>>4
	}
	return out
}
