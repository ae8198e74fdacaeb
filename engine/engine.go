package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/beamguides/beam-patcher/fetch"
	"github.com/beamguides/beam-patcher/integrity"
	"github.com/beamguides/beam-patcher/internal/beamtype"
	"github.com/beamguides/beam-patcher/patchpkg"
)

// Archive is the target a run writes to. *archive.Store implements it.
type Archive interface {
	Put(path string, data []byte) error
	Remove(path string) error
	Save() error
	Discard()
	Path() string
}

// Checkpoint is one patch committed to a target.
type Checkpoint struct {
	Target    string
	Patch     string
	Digest    string
	Records   int
	RunID     string
	AppliedAt time.Time
}

// Watermarks persists the last committed patch per target.
type Watermarks interface {
	// Watermark returns the last committed patch, or "" if none.
	Watermark(ctx context.Context, target string) (string, error)
	Advance(ctx context.Context, c Checkpoint) error
}

// Engine drives patch runs against one target archive. Runs are
// serialized; the archive is only touched from the goroutine calling Run
// or ApplyLocal.
type Engine struct {
	manifestURL string
	fetcher     *fetch.Fetcher
	target      Archive
	marks       Watermarks

	targetName      string
	logger          *slog.Logger
	progress        beamtype.ProgressFunc
	decodeOpts      []patchpkg.DecodeOption
	verifyChecksums bool
	keepStaged      bool
	now             func() time.Time

	runMu   sync.Mutex
	machine machine
}

// New creates an Engine. A nil marks keeps watermarks in memory.
func New(manifestURL string, fetcher *fetch.Fetcher, target Archive, marks Watermarks, opts ...Option) *Engine {
	e := &Engine{
		manifestURL:     manifestURL,
		fetcher:         fetcher,
		target:          target,
		marks:           marks,
		verifyChecksums: true,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.marks == nil {
		e.marks = NewMemoryWatermarks()
	}
	if e.targetName == "" {
		e.targetName = target.Path()
	}
	return e
}

// State returns the current state and, when Failed, the error that caused it.
func (e *Engine) State() (State, error) { return e.machine.current() }

// Trace returns the states visited by the current or last run.
func (e *Engine) Trace() []State { return e.machine.trace() }

// Target returns the key watermarks are stored under.
func (e *Engine) Target() string { return e.targetName }

// Discover fetches and parses the manifest.
func (e *Engine) Discover(ctx context.Context) (*Manifest, error) {
	if e.fetcher == nil {
		return nil, errors.New("engine: no fetcher configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.manifestURL, nil)
	if err != nil {
		return nil, &beamtype.NetworkError{URL: e.manifestURL, Err: err}
	}
	req.Header.Set("User-Agent", e.fetcher.UserAgent())

	resp, err := e.fetcher.Client().Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, beamtype.Canceled(ctx.Err())
		}
		return nil, &beamtype.NetworkError{URL: e.manifestURL, Retryable: true, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &beamtype.NetworkError{
			URL:       e.manifestURL,
			Status:    resp.StatusCode,
			Retryable: resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests,
		}
	}
	m, err := ParseManifest(io.LimitReader(resp.Body, maxManifestSize))
	if err != nil {
		if ctx.Err() != nil {
			return nil, beamtype.Canceled(ctx.Err())
		}
		return nil, err
	}
	e.log().Debug("manifest fetched", "url", e.manifestURL, "entries", m.Len())
	return m, nil
}

// Plan is the set of patches a run will apply.
type Plan struct {
	Manifest *Manifest

	// Watermark is the persisted last committed patch.
	Watermark string

	// Known is false when Watermark is set but absent from the manifest.
	Known bool

	Pending []PatchEntry
}

// Plan reads the watermark once and selects the entries after it.
func (e *Engine) Plan(ctx context.Context, m *Manifest) (*Plan, error) {
	mark, err := e.marks.Watermark(ctx, e.targetName)
	if err != nil {
		return nil, fmt.Errorf("read watermark: %w", err)
	}
	p := &Plan{Manifest: m, Watermark: mark, Known: true}
	if mark == "" {
		p.Pending = m.Entries
		return p, nil
	}
	idx := m.Index(mark)
	if idx < 0 {
		e.log().Warn("watermark not in manifest, applying every patch",
			"target", e.targetName, "watermark", mark)
		p.Known = false
		p.Pending = m.Entries
		return p, nil
	}
	p.Pending = m.Entries[idx+1:]
	return p, nil
}

// Run discovers, downloads and applies every pending patch in order. The
// returned error is Result.Err; the Result is non-nil unless another run
// is active.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	if err := e.machine.reset(); err != nil {
		return nil, err
	}

	res := &Result{RunID: uuid.NewString(), Target: e.targetName}
	log := e.log().With("run", res.RunID, "target", e.targetName)
	log.Info("patch run started", "manifest", e.manifestURL)

	if err := e.machine.to(Discovering); err != nil {
		return nil, err
	}
	e.emit(beamtype.ProgressEvent{Stage: beamtype.StageDiscovering, Path: e.manifestURL})

	m, err := e.Discover(ctx)
	if err != nil {
		return e.stop(log, res, e.manifestURL, err, nil)
	}
	plan, err := e.Plan(ctx, m)
	if err != nil {
		return e.stop(log, res, e.manifestURL, err, nil)
	}
	res.Watermark = plan.Watermark
	if len(plan.Pending) == 0 {
		if err := e.machine.to(Completed); err != nil {
			return nil, err
		}
		res.finish()
		log.Info("archive up to date", "watermark", plan.Watermark)
		return res, nil
	}

	files := make([]fetch.File, len(plan.Pending))
	for i, p := range plan.Pending {
		files[i] = fetch.File{Name: p.Filename}
	}
	if err := e.machine.to(Downloading); err != nil {
		return nil, err
	}
	job := e.fetcher.Start(ctx, files)
	defer func() {
		job.Cancel()
		<-job.Done()
	}()

	for i, p := range plan.Pending {
		rest := names(plan.Pending[i+1:])
		if err := ctx.Err(); err != nil {
			return e.stop(log, res, p.Filename, beamtype.Canceled(err), names(plan.Pending[i:]))
		}
		if err := e.machine.to(Downloading); err != nil {
			return nil, err
		}
		dl, err := job.Wait(ctx, p.Filename)
		if err != nil {
			job.Cancel()
			return e.stop(log, res, p.Filename, err, rest)
		}

		records, err := e.applyPatch(ctx, dl.Path, p.Filename, p.Digest, i, len(plan.Pending))
		if err != nil {
			job.Cancel()
			if errors.Is(err, beamtype.ErrCorrupt) {
				e.removeStaged(dl.Path)
			}
			return e.stop(log, res, p.Filename, err, rest)
		}

		// The archive is saved; record it even if ctx was canceled meanwhile.
		cp := Checkpoint{
			Target:    e.targetName,
			Patch:     p.Filename,
			Digest:    p.Digest.String(),
			Records:   records,
			RunID:     res.RunID,
			AppliedAt: e.now().UTC(),
		}
		if err := e.marks.Advance(context.WithoutCancel(ctx), cp); err != nil {
			job.Cancel()
			return e.stop(log, res, p.Filename, fmt.Errorf("advance watermark: %w", err), rest)
		}
		res.Applied = append(res.Applied, p.Filename)
		res.Watermark = p.Filename
		log.Info("patch applied", "patch", p.Filename, "records", records)

		if !e.keepStaged {
			e.removeStaged(dl.Path)
		}
	}

	if err := e.machine.to(Completed); err != nil {
		return nil, err
	}
	res.finish()
	log.Info("patch run finished", "outcome", res.Outcome, "applied", len(res.Applied))
	return res, nil
}

// ApplyLocal applies one patch file from disk. The watermark is not
// changed.
func (e *Engine) ApplyLocal(ctx context.Context, path string) (*Result, error) {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	if err := e.machine.reset(); err != nil {
		return nil, err
	}

	name := filepath.Base(path)
	res := &Result{RunID: uuid.NewString(), Target: e.targetName}
	log := e.log().With("run", res.RunID, "target", e.targetName)
	if mark, err := e.marks.Watermark(ctx, e.targetName); err != nil {
		log.Warn("read watermark", "error", err)
	} else {
		res.Watermark = mark
	}

	records, err := e.applyPatch(ctx, path, name, integrity.Digest{}, 0, 1)
	if err != nil {
		return e.stop(log, res, name, err, nil)
	}
	if err := e.machine.to(Completed); err != nil {
		return nil, err
	}
	res.Applied = []string{name}
	res.finish()
	log.Info("local patch applied", "patch", path, "records", records)
	return res, nil
}

// applyPatch verifies, decodes, applies and saves one patch. On error the
// archive's staged changes are discarded.
func (e *Engine) applyPatch(ctx context.Context, path, name string, want integrity.Digest, index, total int) (int, error) {
	if err := e.machine.to(Verifying); err != nil {
		return 0, err
	}
	e.emit(beamtype.ProgressEvent{
		Stage:      beamtype.StageVerifying,
		Path:       name,
		FilesDone:  index,
		FilesTotal: total,
		Percent:    patchPercent(index, total, 0),
	})
	if e.verifyChecksums && !want.IsZero() {
		if err := verifyFile(path, want); err != nil {
			return 0, err
		}
	}
	pkg, err := e.decodePatch(path)
	if err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, beamtype.Canceled(err)
	}

	if err := e.machine.to(Applying); err != nil {
		return 0, err
	}
	if err := e.apply(ctx, pkg, name, index, total); err != nil {
		e.target.Discard()
		return 0, err
	}

	e.emit(beamtype.ProgressEvent{
		Stage:      beamtype.StageSaving,
		Path:       name,
		FilesDone:  index,
		FilesTotal: total,
		Percent:    patchPercent(index, total, 1),
	})
	if err := e.target.Save(); err != nil {
		e.target.Discard()
		return 0, fmt.Errorf("save %s: %w", e.target.Path(), err)
	}
	return len(pkg.Records), nil
}

// apply stages every record of pkg. Cancellation is checked between
// records.
func (e *Engine) apply(ctx context.Context, pkg *patchpkg.Package, name string, index, total int) error {
	n := len(pkg.Records)
	for i, rec := range pkg.Records {
		if err := ctx.Err(); err != nil {
			return beamtype.Canceled(err)
		}
		if rec.Remove {
			err := e.target.Remove(rec.Path)
			switch {
			case errors.Is(err, beamtype.ErrNotFound):
				e.log().Debug("remove of missing member", "patch", name, "path", rec.Path)
			case err != nil:
				return fmt.Errorf("remove %s: %w", rec.Path, err)
			}
		} else if err := e.target.Put(rec.Path, rec.Data); err != nil {
			return fmt.Errorf("put %s: %w", rec.Path, err)
		}
		e.emit(beamtype.ProgressEvent{
			Stage:      beamtype.StageApplying,
			Path:       rec.Path,
			BytesDone:  uint64(len(rec.Data)),
			BytesTotal: uint64(len(rec.Data)),
			FilesDone:  i + 1,
			FilesTotal: n,
			Percent:    patchPercent(index, total, float64(i+1)/float64(n)),
		})
	}
	return nil
}

// stop records a failure, moves to Failed and builds the final Result.
func (e *Engine) stop(log *slog.Logger, res *Result, file string, err error, skipped []string) (*Result, error) {
	stage, _ := e.machine.current()
	e.machine.fail(err)
	res.Failed = append(res.Failed, Failure{
		File:  file,
		Stage: stage,
		Kind:  beamtype.Kind(err),
		Err:   err,
	})
	res.Skipped = skipped
	res.finish()
	log.Error("patch run failed", "file", file, "stage", stage, "kind", beamtype.Kind(err),
		"applied", len(res.Applied), "error", err)
	return res, res.Err()
}

func (e *Engine) removeStaged(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		e.log().Warn("remove staged patch", "path", path, "error", err)
	}
}

func (e *Engine) emit(ev beamtype.ProgressEvent) {
	if e.progress != nil {
		e.progress(ev)
	}
}

// log returns the configured logger or a discard logger if none is set.
func (e *Engine) log() *slog.Logger {
	if e.logger != nil {
		return e.logger
	}
	return slog.New(slog.DiscardHandler)
}

// patchPercent is the run-wide completion with frac of patch index done.
func patchPercent(index, total int, frac float64) float64 {
	if total <= 0 {
		return 0
	}
	return (float64(index) + frac) * 100 / float64(total)
}

func names(entries []PatchEntry) []string {
	if len(entries) == 0 {
		return nil
	}
	out := make([]string, len(entries))
	for i, p := range entries {
		out[i] = p.Filename
	}
	return out
}
