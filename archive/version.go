package archive

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/beamguides/beam-patcher/internal/beamtype"
)

// Version is the on-disk format version stored in the header.
type Version uint32

// Known container versions.
const (
	V101 Version = 0x101
	V102 Version = 0x102
	V103 Version = 0x103
	V200 Version = 0x200
	V300 Version = 0x300
)

// DefaultVersion is used by Create when no version is given.
const DefaultVersion = V200

// String returns the version tag with a short description.
func (v Version) String() string {
	switch v {
	case V101:
		return "0x101 (legacy)"
	case V102:
		return "0x102 (legacy, obfuscated names)"
	case V103:
		return "0x103 (legacy, obfuscated names)"
	case V200:
		return "0x200 (compressed table)"
	case V300:
		return "0x300 (custom encryption)"
	default:
		return fmt.Sprintf("%#x (unknown)", uint32(v))
	}
}

// codecs maps every decodable version to its table codec.
var codecs = map[Version]tableCodec{
	V101: legacyTable{names: plainNames{}},
	V102: legacyTable{names: nibbleSwapNames{}},
	V103: legacyTable{names: nibbleSwapNames{}},
	V200: compressedTable{},
}

// undecodable lists versions seen in the wild whose table scheme is not
// defined. They are rejected with a reason instead of being guessed.
var undecodable = map[Version]string{
	V300: "custom table encryption",
}

// codecFor returns the table codec for v.
func codecFor(v Version) (tableCodec, error) {
	if c, ok := codecs[v]; ok {
		return c, nil
	}
	return nil, &beamtype.UnsupportedVersionError{
		Format:  "archive",
		Version: uint32(v),
		Reason:  undecodable[v],
	}
}

// Supported reports whether v can be read and written.
func Supported(v Version) bool {
	_, ok := codecs[v]
	return ok
}

// SupportedVersions returns the decodable versions in ascending order.
func SupportedVersions() []Version {
	return []Version{V101, V102, V103, V200}
}

// ParseVersion parses a version tag such as "0x200" or "512". Unknown and
// undecodable versions are rejected.
func ParseVersion(s string) (Version, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(s), 0, 32)
	if err != nil {
		return 0, fmt.Errorf("archive: invalid version %q: %w", s, err)
	}
	v := Version(n)
	if _, err := codecFor(v); err != nil {
		return 0, err
	}
	return v, nil
}
