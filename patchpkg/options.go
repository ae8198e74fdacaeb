package patchpkg

import (
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"

	"github.com/beamguides/beam-patcher/internal/compress"
)

// Default decode limits.
const (
	DefaultMaxRecords       = 1 << 20
	DefaultMaxPathLen       = 1024
	DefaultMaxRecordSize    = 1 << 30
	DefaultMaxDecoderMemory = 512 << 20
	DefaultMinCompressSize  = 64
)

type encoder struct {
	version     uint16
	compression Compression
	checksum    bool
	zlibLevel   int
	zstdLevel   zstd.EncoderLevel
	skip        []compress.SkipFunc
}

// EncodeOption configures Encode.
type EncodeOption func(*encoder)

func newEncoder(opts []EncodeOption) *encoder {
	e := &encoder{
		version:     DefaultVersion,
		compression: Zstd,
		checksum:    true,
		zlibLevel:   zlib.DefaultCompression,
		zstdLevel:   zstd.SpeedDefault,
		skip:        []compress.SkipFunc{compress.DefaultSkip(DefaultMinCompressSize)},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// WithVersion selects the package version (and with it the digest).
func WithVersion(v uint16) EncodeOption {
	return func(e *encoder) {
		e.version = v
	}
}

// WithCompression sets the algorithm tried for each record.
//
// Records that match a skip predicate, or do not shrink, are stored as-is.
func WithCompression(c Compression) EncodeOption {
	return func(e *encoder) {
		e.compression = c
	}
}

// WithZstdLevel sets the zstd encoder level.
func WithZstdLevel(level zstd.EncoderLevel) EncodeOption {
	return func(e *encoder) {
		e.zstdLevel = level
	}
}

// WithZlibLevel sets the zlib compression level.
func WithZlibLevel(level int) EncodeOption {
	return func(e *encoder) {
		e.zlibLevel = level
	}
}

// WithChecksum enables or disables the trailing package checksum.
// It is enabled by default.
func WithChecksum(enabled bool) EncodeOption {
	return func(e *encoder) {
		e.checksum = enabled
	}
}

// WithSkipCompression replaces the predicates that decide whether a record
// is stored uncompressed.
func WithSkipCompression(fns ...compress.SkipFunc) EncodeOption {
	return func(e *encoder) {
		e.skip = fns
	}
}

type decoder struct {
	maxRecords    int
	maxPathLen    int
	maxRecordSize uint64
	zstd          *compress.DecoderPool
	maxMemory     uint64
}

// DecodeOption configures Decode, VerifyAll and the legacy readers.
type DecodeOption func(*decoder)

func newDecoder(opts []DecodeOption) *decoder {
	d := &decoder{
		maxRecords:    DefaultMaxRecords,
		maxPathLen:    DefaultMaxPathLen,
		maxRecordSize: DefaultMaxRecordSize,
		maxMemory:     DefaultMaxDecoderMemory,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.zstd == nil {
		d.zstd = compress.NewDecoderPool(d.maxMemory)
	}
	return d
}

// WithMaxRecords limits the number of records in a package.
func WithMaxRecords(n int) DecodeOption {
	return func(d *decoder) {
		if n > 0 {
			d.maxRecords = n
		}
	}
}

// WithMaxPathLen limits record path length in bytes.
func WithMaxPathLen(n int) DecodeOption {
	return func(d *decoder) {
		if n > 0 {
			d.maxPathLen = n
		}
	}
}

// WithMaxRecordSize limits the raw size of a single record.
func WithMaxRecordSize(n uint64) DecodeOption {
	return func(d *decoder) {
		if n > 0 {
			d.maxRecordSize = n
		}
	}
}

// WithMaxDecoderMemory limits zstd decoder memory.
func WithMaxDecoderMemory(n uint64) DecodeOption {
	return func(d *decoder) {
		d.maxMemory = n
	}
}

// WithDecoderPool shares a zstd decoder pool across calls.
func WithDecoderPool(p *compress.DecoderPool) DecodeOption {
	return func(d *decoder) {
		d.zstd = p
	}
}
