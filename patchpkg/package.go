package patchpkg

import (
	"fmt"

	"github.com/beamguides/beam-patcher/integrity"
)

const (
	// Version1 records carry md5 digests.
	Version1 uint16 = 1
	// Version2 records carry sha256 digests.
	Version2 uint16 = 2

	// DefaultVersion is the version written by Encode.
	DefaultVersion = Version2
)

const (
	headerSize = 4 + 2 + 2 + 4

	// flagChecksum marks a trailing sha256 over the whole package.
	flagChecksum uint16 = 1 << 0

	knownFlags = flagChecksum
)

var magic = [4]byte{'B', 'E', 'A', 'M'}

// Compression identifies how a record payload is stored.
type Compression uint8

const (
	None Compression = 0
	Zlib Compression = 1
	Zstd Compression = 2
	LZ4  Compression = 3
)

func (c Compression) String() string {
	switch c {
	case None:
		return "none"
	case Zlib:
		return "zlib"
	case Zstd:
		return "zstd"
	case LZ4:
		return "lz4"
	default:
		return fmt.Sprintf("compression(%d)", uint8(c))
	}
}

// ParseCompression maps a configuration name to a Compression.
func ParseCompression(s string) (Compression, error) {
	switch s {
	case "none", "":
		return None, nil
	case "zlib":
		return Zlib, nil
	case "zstd":
		return Zstd, nil
	case "lz4":
		return LZ4, nil
	}
	return None, fmt.Errorf("patchpkg: unknown compression %q", s)
}

// Format identifies the container a Package was decoded from.
type Format uint8

const (
	FormatBEAM Format = iota
	FormatTHOR
	FormatRGZ

	// FormatGPF marks a package read from a container patch file.
	FormatGPF
)

func (f Format) String() string {
	switch f {
	case FormatBEAM:
		return "beam"
	case FormatTHOR:
		return "thor"
	case FormatRGZ:
		return "rgz"
	case FormatGPF:
		return "gpf"
	default:
		return "unknown"
	}
}

// Record is one file in a package.
type Record struct {
	// Path is the archive path the record applies to.
	Path string

	// Data is the raw payload. It is nil for removals.
	Data []byte

	// Digest covers Data. Decoders always fill it in.
	Digest integrity.Digest

	// Remove marks a deletion of Path from the archive.
	Remove bool
}

// Package is a decoded, fully verified patch package.
type Package struct {
	Format  Format
	Version uint16
	Records []Record
}

// Size returns the total raw payload size.
func (p *Package) Size() int64 {
	var n int64
	for _, r := range p.Records {
		n += int64(len(r.Data))
	}
	return n
}

// digestAlgorithm returns the per-record digest algorithm for a version.
func digestAlgorithm(version uint16) (integrity.Algorithm, bool) {
	switch version {
	case Version1:
		return integrity.MD5, true
	case Version2:
		return integrity.SHA256, true
	}
	return "", false
}
