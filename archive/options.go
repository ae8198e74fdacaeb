package archive

import (
	"log/slog"

	"github.com/klauspost/compress/zlib"

	"github.com/beamguides/beam-patcher/internal/compress"
)

// DefaultCompressThreshold is the payload size at or below which Put stores
// data uncompressed.
const DefaultCompressThreshold = 1024

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger for store operations.
// If not set, logging is disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithReadOnly opens the container for reading. Put, Remove, Save and
// Compact fail, and the lock is shared so concurrent readers may coexist.
func WithReadOnly() Option {
	return func(s *Store) {
		s.readOnly = true
	}
}

// WithCompressionLevel sets the zlib level used for staged entries.
func WithCompressionLevel(level int) Option {
	return func(s *Store) {
		if level >= zlib.HuffmanOnly && level <= zlib.BestCompression {
			s.level = level
		}
	}
}

// WithSkipCompression replaces the predicates that decide whether a staged
// payload is stored uncompressed.
//
// The default skips payloads of at most DefaultCompressThreshold bytes and
// already-compressed extensions.
func WithSkipCompression(fns ...compress.SkipFunc) Option {
	return func(s *Store) {
		s.skip = fns
	}
}

// WithoutLock disables the container lock file. Intended for read-only
// inspection of files on media where lock files cannot be created.
func WithoutLock() Option {
	return func(s *Store) {
		s.noLock = true
	}
}
