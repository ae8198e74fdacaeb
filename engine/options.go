package engine

import (
	"log/slog"
	"time"

	"github.com/beamguides/beam-patcher/internal/beamtype"
	"github.com/beamguides/beam-patcher/patchpkg"
)

// maxManifestSize bounds the manifest response body.
const maxManifestSize = 8 << 20

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. By default nothing is logged.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithProgress sets a callback for verify, apply and save events.
// Download events are configured on the Fetcher.
func WithProgress(fn beamtype.ProgressFunc) Option {
	return func(e *Engine) {
		e.progress = fn
	}
}

// WithTargetName sets the key the watermark is stored under. It defaults
// to the archive path.
func WithTargetName(name string) Option {
	return func(e *Engine) {
		e.targetName = name
	}
}

// WithVerifyChecksums controls whether manifest digests are checked
// before decoding. Record digests inside packages are always checked.
func WithVerifyChecksums(enabled bool) Option {
	return func(e *Engine) {
		e.verifyChecksums = enabled
	}
}

// WithKeepStaged keeps downloaded patch files after they are applied.
func WithKeepStaged(keep bool) Option {
	return func(e *Engine) {
		e.keepStaged = keep
	}
}

// WithDecodeOptions passes limits to the patch decoders.
func WithDecodeOptions(opts ...patchpkg.DecodeOption) Option {
	return func(e *Engine) {
		e.decodeOpts = append(e.decodeOpts, opts...)
	}
}

// WithClock overrides the time source for applied timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}
