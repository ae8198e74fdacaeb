package gamefiles

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/beamguides/beam-patcher/integrity"
	"github.com/beamguides/beam-patcher/internal/beamtype"
	"github.com/beamguides/beam-patcher/status"
)

// DefaultWorkers is the number of files hashed concurrently.
const DefaultWorkers = 4

const copyBufferSize = 64 << 10

// Outcome is the result of checking one file.
type Outcome uint8

const (
	Verified Outcome = iota
	Corrupted
	Missing
)

func (o Outcome) String() string {
	switch o {
	case Verified:
		return "verified"
	case Corrupted:
		return "corrupted"
	case Missing:
		return "missing"
	default:
		return fmt.Sprintf("outcome(%d)", uint8(o))
	}
}

// FileResult is the check of one manifest entry.
type FileResult struct {
	Path    string
	Outcome Outcome
	// Reason describes a corrupted file.
	Reason string
	Size   int64
}

// Report summarizes a check. Corrupted and Missing keep manifest order.
type Report struct {
	Total     int
	Verified  int
	Corrupted []string
	Missing   []string
	Files     []FileResult
}

// OK reports whether every file verified.
func (r *Report) OK() bool { return r.Verified == r.Total }

// Checker verifies files under a game directory.
type Checker struct {
	root    string
	workers int
	logger  *slog.Logger
}

// Option configures a Checker.
type Option func(*Checker)

// WithWorkers sets how many files are hashed at once.
func WithWorkers(n int) Option {
	return func(c *Checker) {
		if n > 0 {
			c.workers = n
		}
	}
}

// WithLogger sets the logger for check operations.
// If not set, logging is disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Checker) {
		c.logger = logger
	}
}

// New returns a Checker rooted at the game directory root.
func New(root string, opts ...Option) *Checker {
	c := &Checker{root: root, workers: DefaultWorkers}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Verify checks files and returns the report. Only cancellation and
// entries whose path or checksum is invalid fail the call; everything
// else is recorded in the report.
func (c *Checker) Verify(ctx context.Context, files []status.FileEntry) (*Report, error) {
	start := time.Now()
	results := make([]FileResult, len(files))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(c.workers)
	for i, file := range files {
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return beamtype.Canceled(err)
			}
			res, err := c.check(file)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, beamtype.Canceled(ctx.Err())
		}
		return nil, err
	}

	rep := &Report{Total: len(files), Files: results}
	for _, res := range results {
		switch res.Outcome {
		case Verified:
			rep.Verified++
		case Corrupted:
			rep.Corrupted = append(rep.Corrupted, res.Path)
			c.log().Warn("corrupted file", slog.String("path", res.Path), slog.String("reason", res.Reason))
		case Missing:
			rep.Missing = append(rep.Missing, res.Path)
			c.log().Warn("missing file", slog.String("path", res.Path))
		}
	}
	c.log().Info("game files checked",
		slog.String("root", c.root),
		slog.Int("total", rep.Total),
		slog.Int("verified", rep.Verified),
		slog.Int("corrupted", len(rep.Corrupted)),
		slog.Int("missing", len(rep.Missing)),
		slog.Duration("elapsed", time.Since(start)))
	return rep, nil
}

// check hashes one file. The error is reserved for invalid entries.
func (c *Checker) check(file status.FileEntry) (FileResult, error) {
	res := FileResult{Path: file.Path}
	rel := status.LocalPath(file.Path)
	if !filepath.IsLocal(rel) {
		return res, fmt.Errorf("gamefiles: %q is outside the game directory", file.Path)
	}
	var want integrity.Digest
	if file.Checksum != "" {
		d, err := integrity.Parse(file.Checksum)
		if err != nil {
			return res, fmt.Errorf("gamefiles: %s: %w", file.Path, err)
		}
		want = d
	}

	f, err := os.Open(filepath.Join(c.root, rel))
	if errors.Is(err, fs.ErrNotExist) {
		res.Outcome = Missing
		return res, nil
	}
	if err != nil {
		return corrupted(res, err.Error()), nil
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return corrupted(res, err.Error()), nil
	}
	if info.IsDir() {
		return corrupted(res, "is a directory"), nil
	}
	res.Size = info.Size()
	if file.Size > 0 && info.Size() != file.Size {
		return corrupted(res, fmt.Sprintf("size %d, want %d", info.Size(), file.Size)), nil
	}
	if want.IsZero() {
		res.Outcome = Verified
		return res, nil
	}

	v := integrity.NewVerifier(want)
	if _, err := io.CopyBuffer(v, f, make([]byte, copyBufferSize)); err != nil {
		return corrupted(res, err.Error()), nil
	}
	if !v.Verified() {
		return corrupted(res, fmt.Sprintf("%s digest mismatch over %d bytes", want.Algorithm, v.Written())), nil
	}
	c.log().Debug("file verified", slog.String("path", file.Path), slog.Int64("size", v.Written()))
	res.Outcome = Verified
	return res, nil
}

func corrupted(res FileResult, reason string) FileResult {
	res.Outcome = Corrupted
	res.Reason = reason
	return res
}

// log returns the configured logger or a discard logger if none is set.
func (c *Checker) log() *slog.Logger {
	if c.logger != nil {
		return c.logger
	}
	return slog.New(slog.DiscardHandler)
}
