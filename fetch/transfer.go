package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/beamguides/beam-patcher/internal/beamtype"
)

// transfer performs one GET of url into part, resuming from the current part
// size. It returns the attempt record; a nil Attempt.Err means part now
// holds the complete file.
func (f *Fetcher) transfer(ctx context.Context, url, part string, onBytes func(done, total int64)) (att Attempt) {
	start := time.Now()
	att.URL = url
	defer func() { att.Duration = time.Since(start) }()

	offset, err := partSize(part)
	if err != nil {
		att.Err = &beamtype.IOError{Op: "stat", Path: part, Err: err}
		return att
	}
	att.Offset = offset

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		att.Err = &beamtype.NetworkError{URL: url, Err: err}
		return att
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept-Encoding", "identity")
	if offset > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := f.client.Do(req)
	if err != nil {
		att.Err = requestError(ctx, url, err)
		return att
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10)) //nolint:errcheck // best-effort drain for connection reuse
		_ = resp.Body.Close()
	}()
	att.Status = resp.StatusCode

	var (
		flags = os.O_WRONLY | os.O_CREATE
		total = int64(-1)
		done  = offset
	)
	switch resp.StatusCode {
	case http.StatusPartialContent:
		if offset == 0 {
			att.Err = &beamtype.NetworkError{URL: url, Status: resp.StatusCode, Retryable: true,
				Err: errors.New("partial content without a range request")}
			return att
		}
		first, size, err := parseContentRange(resp.Header.Get("Content-Range"))
		if err != nil || first != offset {
			att.Err = &beamtype.NetworkError{URL: url, Status: resp.StatusCode, Retryable: true,
				Err: fmt.Errorf("unexpected Content-Range %q for offset %d", resp.Header.Get("Content-Range"), offset)}
			return att
		}
		total = size
		flags |= os.O_APPEND
	case http.StatusOK:
		// Full body: the server ignored the range or none was sent.
		flags |= os.O_TRUNC
		done = 0
		if resp.ContentLength >= 0 {
			total = resp.ContentLength
		}
	case http.StatusRequestedRangeNotSatisfiable:
		_, size, err := parseContentRange(resp.Header.Get("Content-Range"))
		if err == nil && offset > 0 && size == offset {
			onBytes(offset, offset)
			return att
		}
		// The part file does not match the remote; start over.
		if err := os.Remove(part); err != nil && !errors.Is(err, fs.ErrNotExist) {
			att.Err = &beamtype.IOError{Op: "remove", Path: part, Err: err}
			return att
		}
		att.Err = &beamtype.NetworkError{URL: url, Status: resp.StatusCode, Retryable: true,
			Err: errors.New("stale partial download discarded")}
		return att
	default:
		att.Err = &beamtype.NetworkError{URL: url, Status: resp.StatusCode, Retryable: retryableStatus(resp.StatusCode)}
		return att
	}

	out, err := os.OpenFile(part, flags, 0o600)
	if err != nil {
		att.Err = &beamtype.IOError{Op: "open", Path: part, Err: err}
		return att
	}
	w := &progressWriter{w: out, done: done, total: total, report: onBytes}
	n, copyErr := io.CopyBuffer(w, resp.Body, make([]byte, defaultCopyBufferBytes))
	att.Bytes = n
	syncErr := out.Sync()
	closeErr := out.Close()

	switch {
	case copyErr != nil && ctx.Err() != nil:
		att.Err = beamtype.Canceled(ctx.Err())
	case copyErr != nil:
		if errors.As(copyErr, new(*fs.PathError)) {
			att.Err = &beamtype.IOError{Op: "write", Path: part, Err: copyErr}
		} else {
			att.Err = &beamtype.NetworkError{URL: url, Status: resp.StatusCode, Retryable: true, Err: copyErr}
		}
	case syncErr != nil:
		att.Err = &beamtype.IOError{Op: "sync", Path: part, Err: syncErr}
	case closeErr != nil:
		att.Err = &beamtype.IOError{Op: "close", Path: part, Err: closeErr}
	case total >= 0 && w.done != total:
		att.Err = &beamtype.NetworkError{URL: url, Status: resp.StatusCode, Retryable: true,
			Err: fmt.Errorf("short body: have %d of %d bytes", w.done, total)}
	}
	return att
}

// requestError classifies a failure to get a response.
func requestError(ctx context.Context, url string, err error) error {
	if ctx.Err() != nil {
		return beamtype.Canceled(ctx.Err())
	}
	// Transport failures (timeouts, resets, refused connections) are
	// worth another try.
	return &beamtype.NetworkError{URL: url, Retryable: true, Err: err}
}

// retryableStatus reports whether a response status may succeed later.
func retryableStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout, http.StatusTooEarly, http.StatusTooManyRequests:
		return true
	}
	return code >= 500 && code <= 599
}

func partSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// progressWriter counts bytes written to the part file.
type progressWriter struct {
	w      io.Writer
	done   int64
	total  int64
	report func(done, total int64)
}

func (p *progressWriter) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	p.done += int64(n)
	if n > 0 {
		p.report(p.done, p.total)
	}
	return n, err
}

// parseContentRange extracts the first byte and the total size from a
// Content-Range header value. It accepts "bytes first-last/size" and the
// unsatisfied form "bytes */size", for which first is -1.
func parseContentRange(value string) (first, size int64, err error) {
	value = strings.TrimSpace(value)
	if !strings.HasPrefix(value, "bytes ") {
		return 0, 0, fmt.Errorf("invalid Content-Range %q", value)
	}
	parts := strings.SplitN(strings.TrimPrefix(value, "bytes "), "/", 2)
	if len(parts) != 2 || parts[1] == "*" {
		return 0, 0, fmt.Errorf("invalid Content-Range %q", value)
	}
	size, err = strconv.ParseInt(parts[1], 10, 64)
	if err != nil || size < 0 {
		return 0, 0, fmt.Errorf("invalid Content-Range %q", value)
	}
	if parts[0] == "*" {
		return -1, size, nil
	}
	span := strings.SplitN(parts[0], "-", 2)
	if len(span) != 2 {
		return 0, 0, fmt.Errorf("invalid Content-Range %q", value)
	}
	first, err = strconv.ParseInt(span[0], 10, 64)
	if err != nil || first < 0 {
		return 0, 0, fmt.Errorf("invalid Content-Range %q", value)
	}
	return first, size, nil
}
