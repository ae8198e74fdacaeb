package beamtype

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors. Every typed error below reports true for errors.Is
// against exactly one of these.
var (
	// ErrFormat is returned when a container or package has a bad magic,
	// header, or table.
	ErrFormat = errors.New("beam: invalid format")

	// ErrCorrupt is returned when content does not match its digest or
	// fails to decompress.
	ErrCorrupt = errors.New("beam: corrupt content")

	// ErrNotFound is returned when an archive entry does not exist.
	ErrNotFound = errors.New("beam: not found")

	// ErrIO is returned when a filesystem operation fails.
	ErrIO = errors.New("beam: i/o failure")

	// ErrNetwork is returned when a transfer fails.
	ErrNetwork = errors.New("beam: network failure")

	// ErrManifest is returned when a patch manifest cannot be parsed.
	ErrManifest = errors.New("beam: invalid manifest")

	// ErrUnsupportedVersion is returned for unknown or undecodable format versions.
	ErrUnsupportedVersion = errors.New("beam: unsupported version")

	// ErrCanceled is returned when work stops because its context was canceled.
	ErrCanceled = errors.New("beam: canceled")
)

// FormatError describes a structural problem in a container or package.
type FormatError struct {
	What string
	Err  error
}

func (e *FormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("beam: invalid format: %s: %v", e.What, e.Err)
	}
	return "beam: invalid format: " + e.What
}

func (e *FormatError) Unwrap() error        { return e.Err }
func (e *FormatError) Is(target error) bool { return target == ErrFormat }

// CorruptError reports a digest or decompression failure. Record is the
// zero-based record index inside a patch package, or -1 when the failure
// is not tied to a record.
type CorruptError struct {
	Record int
	Path   string
	Err    error
}

func (e *CorruptError) Error() string {
	var msg string
	switch {
	case e.Record >= 0 && e.Path != "":
		msg = fmt.Sprintf("beam: corrupt record %d (%s)", e.Record, e.Path)
	case e.Record >= 0:
		msg = fmt.Sprintf("beam: corrupt record %d", e.Record)
	case e.Path != "":
		msg = "beam: corrupt content: " + e.Path
	default:
		msg = "beam: corrupt content"
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *CorruptError) Unwrap() error        { return e.Err }
func (e *CorruptError) Is(target error) bool { return target == ErrCorrupt }

// NotFoundError reports a missing archive entry.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string        { return "beam: not found: " + e.Path }
func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// IOError wraps a filesystem failure with the operation and path involved.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("beam: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error        { return e.Err }
func (e *IOError) Is(target error) bool { return target == ErrIO }

// NetworkError describes a failed transfer. Retryable errors may succeed on
// another attempt against the same origin; fatal ones will not.
type NetworkError struct {
	URL       string
	Status    int
	Retryable bool
	Err       error
}

func (e *NetworkError) Error() string {
	kind := "fatal"
	if e.Retryable {
		kind = "retryable"
	}
	switch {
	case e.Status != 0 && e.Err != nil:
		return fmt.Sprintf("beam: %s network error: %s: status %d: %v", kind, e.URL, e.Status, e.Err)
	case e.Status != 0:
		return fmt.Sprintf("beam: %s network error: %s: status %d", kind, e.URL, e.Status)
	default:
		return fmt.Sprintf("beam: %s network error: %s: %v", kind, e.URL, e.Err)
	}
}

func (e *NetworkError) Unwrap() error        { return e.Err }
func (e *NetworkError) Is(target error) bool { return target == ErrNetwork }

// ManifestError points at the offending manifest line (1-based).
type ManifestError struct {
	Line   int
	Reason string
}

func (e *ManifestError) Error() string {
	return fmt.Sprintf("beam: invalid manifest: line %d: %s", e.Line, e.Reason)
}

func (e *ManifestError) Is(target error) bool { return target == ErrManifest }

// UnsupportedVersionError reports a version tag with no defined codec.
type UnsupportedVersionError struct {
	Format  string
	Version uint32
	Reason  string
}

func (e *UnsupportedVersionError) Error() string {
	msg := fmt.Sprintf("beam: unsupported %s version %#x", e.Format, e.Version)
	if e.Reason != "" {
		msg += " (" + e.Reason + ")"
	}
	return msg
}

func (e *UnsupportedVersionError) Is(target error) bool { return target == ErrUnsupportedVersion }

// ErrorKind classifies an error for structured results.
type ErrorKind uint8

const (
	KindUnknown ErrorKind = iota
	KindFormat
	KindCorrupt
	KindNotFound
	KindIO
	KindNetwork
	KindManifest
	KindUnsupportedVersion
	KindCanceled
)

// String returns the lower-case name of the kind.
func (k ErrorKind) String() string {
	switch k {
	case KindFormat:
		return "format"
	case KindCorrupt:
		return "corrupt"
	case KindNotFound:
		return "not found"
	case KindIO:
		return "io"
	case KindNetwork:
		return "network"
	case KindManifest:
		return "manifest"
	case KindUnsupportedVersion:
		return "unsupported version"
	case KindCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Kind returns the most specific classification for err.
func Kind(err error) ErrorKind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrCanceled), errors.Is(err, context.Canceled):
		return KindCanceled
	case errors.Is(err, ErrCorrupt):
		return KindCorrupt
	case errors.Is(err, ErrUnsupportedVersion):
		return KindUnsupportedVersion
	case errors.Is(err, ErrFormat):
		return KindFormat
	case errors.Is(err, ErrManifest):
		return KindManifest
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrNetwork):
		return KindNetwork
	case errors.Is(err, ErrIO):
		return KindIO
	default:
		return KindUnknown
	}
}

// IsRetryable reports whether err is a retryable network error.
func IsRetryable(err error) bool {
	var netErr *NetworkError
	return errors.As(err, &netErr) && netErr.Retryable
}

// Canceled wraps a context error so it matches both ErrCanceled and the
// original context sentinel.
func Canceled(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrCanceled, err)
}
