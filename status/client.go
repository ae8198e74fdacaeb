package status

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/beamguides/beam-patcher/internal/beamtype"
)

const (
	// maxDocumentSize bounds a status response body.
	maxDocumentSize = 1 << 20
	// maxFileManifestSize bounds a file manifest, which lists every game
	// file.
	maxFileManifestSize = 32 << 20
)

// FetchVersion downloads and parses the version-check document.
func FetchVersion(ctx context.Context, client *http.Client, url string) (*VersionInfo, error) {
	data, err := fetch(ctx, client, url, maxDocumentSize)
	if err != nil {
		return nil, err
	}
	return ParseVersion(data)
}

// FetchServerStatus downloads and parses the server status document.
func FetchServerStatus(ctx context.Context, client *http.Client, url string) (*ServerStatus, error) {
	data, err := fetch(ctx, client, url, maxDocumentSize)
	if err != nil {
		return nil, err
	}
	return ParseServerStatus(data)
}

// FetchFileManifest downloads and parses a game file manifest.
func FetchFileManifest(ctx context.Context, client *http.Client, url string) (*FileManifest, error) {
	data, err := fetch(ctx, client, url, maxFileManifestSize)
	if err != nil {
		return nil, err
	}
	return ParseFileManifest(data)
}

func fetch(ctx context.Context, client *http.Client, url string, limit int64) ([]byte, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &beamtype.NetworkError{URL: url, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, beamtype.Canceled(ctx.Err())
		}
		return nil, &beamtype.NetworkError{URL: url, Retryable: true, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &beamtype.NetworkError{URL: url, Status: resp.StatusCode, Retryable: resp.StatusCode >= 500}
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, &beamtype.NetworkError{URL: url, Retryable: true, Err: err}
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: document larger than %d bytes", ErrMalformed, limit)
	}
	return data, nil
}
