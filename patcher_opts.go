package beam

import (
	"errors"
	"log/slog"
	"net/http"
)

// Option configures a Patcher.
type Option func(*Patcher) error

// WithLogger sets the logger shared by the archive, fetcher and engine.
// If not set, logging is disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Patcher) error {
		p.logger = logger
		return nil
	}
}

// WithProgress sets a callback for download and apply progress.
// The callback may be invoked from multiple goroutines.
func WithProgress(fn ProgressFunc) Option {
	return func(p *Patcher) error {
		p.progress = fn
		return nil
	}
}

// WithHTTPClient sets the HTTP client for the manifest and mirrors.
// The configured download timeout is not applied to a supplied client.
func WithHTTPClient(client *http.Client) Option {
	return func(p *Patcher) error {
		if client == nil {
			return errors.New("beam: nil http client")
		}
		p.httpClient = client
		return nil
	}
}

// WithoutState keeps watermarks and history in memory instead of the state
// database. Every run of a fresh Patcher then starts from an unknown
// watermark.
func WithoutState() Option {
	return func(p *Patcher) error {
		p.memoryState = true
		return nil
	}
}
