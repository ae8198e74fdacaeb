package fetch

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/beamguides/beam-patcher/internal/beamtype"
)

// Defaults for a Fetcher.
const (
	DefaultWorkers         = 4
	DefaultMaxAttempts     = 3
	DefaultInitialBackoff  = 500 * time.Millisecond
	DefaultMaxBackoff      = 10 * time.Second
	DefaultUserAgent       = "beam-patcher"
	defaultCopyBufferBytes = 64 << 10
)

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithWorkers sets the number of concurrent transfers.
func WithWorkers(n int) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.workers = n
		}
	}
}

// WithMaxAttempts sets how many times a retryable failure is tried against
// one mirror before moving to the next.
func WithMaxAttempts(n int) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.maxAttempts = n
		}
	}
}

// WithBackoff sets the initial and maximum retry interval.
func WithBackoff(initial, maxInterval time.Duration) Option {
	return func(f *Fetcher) {
		if initial > 0 {
			f.initialBackoff = initial
		}
		if maxInterval > 0 {
			f.maxBackoff = maxInterval
		}
	}
}

// WithClient sets the HTTP client used for requests.
func WithClient(client *http.Client) Option {
	return func(f *Fetcher) {
		f.client = client
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(f *Fetcher) {
		f.userAgent = ua
	}
}

// WithProgress sets a callback for download progress.
func WithProgress(fn beamtype.ProgressFunc) Option {
	return func(f *Fetcher) {
		f.progress = fn
	}
}

// WithLogger sets the logger for fetch operations.
// If not set, logging is disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Fetcher) {
		f.logger = logger
	}
}
