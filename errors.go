package beam

import (
	"errors"

	"github.com/beamguides/beam-patcher/archive"
	"github.com/beamguides/beam-patcher/internal/beamtype"
)

// Error categories. Every error returned by this module that belongs to a
// category matches its sentinel with errors.Is.
var (
	// ErrFormat is returned for structurally invalid archives, packages
	// and patch files.
	ErrFormat = beamtype.ErrFormat

	// ErrCorrupt is returned when content fails a digest or decompression
	// check.
	ErrCorrupt = beamtype.ErrCorrupt

	// ErrNotFound is returned for missing archive members.
	ErrNotFound = beamtype.ErrNotFound

	// ErrIO is returned for local filesystem failures.
	ErrIO = beamtype.ErrIO

	// ErrNetwork is returned for transport failures and unexpected HTTP
	// statuses.
	ErrNetwork = beamtype.ErrNetwork

	// ErrManifest is returned for invalid patch manifests.
	ErrManifest = beamtype.ErrManifest

	// ErrUnsupportedVersion is returned for archive or package versions
	// with no codec.
	ErrUnsupportedVersion = beamtype.ErrUnsupportedVersion

	// ErrCanceled is returned when a context ends an operation.
	ErrCanceled = beamtype.ErrCanceled
)

// Errors re-exported from archive.
var (
	// ErrLocked is returned when another process holds the archive.
	ErrLocked = archive.ErrLocked

	// ErrReadOnly is returned when writing through a read-only handle.
	ErrReadOnly = archive.ErrReadOnly
)

// ErrManualPatchDisabled is returned by ApplyLocal when the configuration
// forbids manual patches.
var ErrManualPatchDisabled = errors.New("beam: manual patching is disabled")

// Typed errors carrying detail.
type (
	FormatError             = beamtype.FormatError
	CorruptError            = beamtype.CorruptError
	NotFoundError           = beamtype.NotFoundError
	IOError                 = beamtype.IOError
	NetworkError            = beamtype.NetworkError
	ManifestError           = beamtype.ManifestError
	UnsupportedVersionError = beamtype.UnsupportedVersionError
)

// ErrorKind classifies an error.
type ErrorKind = beamtype.ErrorKind

// Kind returns the most specific classification for err.
func Kind(err error) ErrorKind { return beamtype.Kind(err) }

// IsRetryable reports whether err is a network error worth retrying.
func IsRetryable(err error) bool { return beamtype.IsRetryable(err) }
