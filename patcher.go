package beam

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/beamguides/beam-patcher/archive"
	"github.com/beamguides/beam-patcher/engine"
	"github.com/beamguides/beam-patcher/fetch"
	"github.com/beamguides/beam-patcher/internal/state"
)

// Patcher keeps one target archive up to date. It holds the archive's
// exclusive lock from Open until Close.
type Patcher struct {
	cfg *Config

	logger      *slog.Logger
	progress    ProgressFunc
	httpClient  *http.Client
	memoryState bool

	archive *archive.Store
	state   *state.Store
	memory  *engine.MemoryWatermarks
	fetcher *fetch.Fetcher
	engine  *engine.Engine
}

// Open validates cfg, opens the state database and opens or creates the
// target archive.
func Open(cfg *Config, opts ...Option) (*Patcher, error) {
	if cfg == nil {
		return nil, errors.New("beam: nil config")
	}
	p := &Patcher{cfg: cfg}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	version, err := archive.ParseVersion(cfg.Patcher.ArchiveVersion)
	if err != nil {
		return nil, err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	var marks engine.Watermarks
	if p.memoryState {
		p.memory = engine.NewMemoryWatermarks()
		marks = p.memory
	} else {
		p.state, err = state.Open(cfg.Paths.StateDB)
		if err != nil {
			return nil, err
		}
		marks = stateMarks{p.state}
	}

	p.archive, err = archive.OpenOrCreate(cfg.TargetPath(), version, archive.WithLogger(p.logger))
	if err != nil {
		return nil, errors.Join(err, p.state.Close())
	}

	p.fetcher = fetch.New(p.mirrors(), cfg.Paths.StagingDir, p.fetchOptions()...)
	p.engine = engine.New(cfg.Patcher.ManifestURL, p.fetcher, p.archive, marks,
		engine.WithLogger(p.logger),
		engine.WithProgress(p.progress),
		engine.WithTargetName(cfg.TargetPath()),
		engine.WithVerifyChecksums(cfg.Patcher.VerifyChecksums),
		engine.WithKeepStaged(cfg.Patcher.KeepStaged),
	)

	p.log().Debug("patcher opened",
		"target", cfg.TargetPath(),
		"version", p.archive.Version(),
		"entries", p.archive.Len(),
		"mirrors", len(cfg.Mirrors))
	return p, nil
}

func (p *Patcher) mirrors() *fetch.MirrorSet {
	mirrors := make([]fetch.Mirror, len(p.cfg.Mirrors))
	for i, m := range p.cfg.Mirrors {
		mirrors[i] = fetch.Mirror{Name: m.Name, BaseURL: m.URL, Priority: m.Priority}
	}
	set := fetch.NewMirrorSet(mirrors...)
	for _, m := range set.Skipped() {
		p.log().Warn("mirror has no url, skipping", "mirror", m.Name)
	}
	return set
}

func (p *Patcher) fetchOptions() []fetch.Option {
	initial, maxBackoff := p.cfg.Backoff()
	client := p.httpClient
	if client == nil {
		client = &http.Client{Timeout: p.cfg.Timeout()}
	}
	return []fetch.Option{
		fetch.WithWorkers(p.cfg.Download.Workers),
		fetch.WithMaxAttempts(p.cfg.Download.MaxAttempts),
		fetch.WithBackoff(initial, maxBackoff),
		fetch.WithUserAgent(p.cfg.Download.UserAgent),
		fetch.WithClient(client),
		fetch.WithProgress(p.progress),
		fetch.WithLogger(p.logger),
	}
}

// Config returns the configuration the Patcher was opened with.
func (p *Patcher) Config() *Config { return p.cfg }

// Archive returns the target archive. Writes through it bypass the
// watermark.
func (p *Patcher) Archive() *archive.Store { return p.archive }

// Target returns the target archive path.
func (p *Patcher) Target() string { return p.engine.Target() }

// State returns the engine state and, when Failed, its cause.
func (p *Patcher) State() (State, error) { return p.engine.State() }

// Run downloads and applies every patch after the watermark. The run is
// recorded in the state database. When patches were applied and the dead
// space in the archive reaches the configured compact threshold, the
// archive is compacted. The returned error is Result.Err.
func (p *Patcher) Run(ctx context.Context) (*Result, error) {
	started := time.Now()
	res, err := p.engine.Run(ctx)
	if res == nil {
		return nil, err
	}
	p.record(ctx, res, started)
	p.maybeCompact(res)
	return res, err
}

// ApplyLocal applies one patch file from disk without touching the
// watermark. It fails with ErrManualPatchDisabled unless the configuration
// allows manual patches.
func (p *Patcher) ApplyLocal(ctx context.Context, path string) (*Result, error) {
	if !p.cfg.Patcher.AllowManualPatch {
		return nil, ErrManualPatchDisabled
	}
	started := time.Now()
	res, err := p.engine.ApplyLocal(ctx, path)
	if res == nil {
		return nil, err
	}
	p.record(ctx, res, started)
	p.maybeCompact(res)
	return res, err
}

// Compact rewrites the target archive with only its live entries and
// returns the data region usage before and after.
func (p *Patcher) Compact() (before, after ArchiveUsage, err error) {
	before = p.archive.Usage()
	if err := p.archive.Compact(); err != nil {
		return before, before, err
	}
	after = p.archive.Usage()
	p.log().Info("archive compacted",
		"target", p.Target(),
		"before", before.Data,
		"after", after.Data)
	return before, after, nil
}

// maybeCompact compacts after a run that applied patches once the dead
// space ratio reaches the configured threshold. Failures are logged; the
// archive stays valid either way.
func (p *Patcher) maybeCompact(res *Result) {
	threshold := p.cfg.Patcher.CompactThreshold
	if threshold <= 0 || len(res.Applied) == 0 {
		return
	}
	usage := p.archive.Usage()
	if usage.DeadRatio() < threshold {
		return
	}
	p.log().Debug("dead space over threshold",
		"target", p.Target(),
		"dead", usage.Dead(),
		"ratio", usage.DeadRatio(),
		"threshold", threshold)
	if _, _, err := p.Compact(); err != nil {
		p.log().Warn("automatic compaction failed", "target", p.Target(), "error", err)
	}
}

// Check fetches the manifest and reports what a run would apply without
// downloading anything.
func (p *Patcher) Check(ctx context.Context) (*Plan, error) {
	m, err := p.engine.Discover(ctx)
	if err != nil {
		return nil, err
	}
	return p.engine.Plan(ctx, m)
}

// Watermark returns the last committed patch, or "" if none.
func (p *Patcher) Watermark(ctx context.Context) (string, error) {
	if p.state == nil {
		return p.memory.Watermark(ctx, p.Target())
	}
	return p.state.Watermark(ctx, p.Target())
}

// History returns up to limit applied patches, newest first. A limit of
// zero returns all of them.
func (p *Patcher) History(ctx context.Context, limit int) ([]AppliedPatch, error) {
	if p.state == nil {
		cps := p.memory.History()
		out := make([]AppliedPatch, 0, len(cps))
		for i := len(cps) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
			out = append(out, state.Applied(cps[i]))
		}
		return out, nil
	}
	return p.state.History(ctx, p.Target(), limit)
}

// LastRun returns the most recent recorded run, or nil.
func (p *Patcher) LastRun(ctx context.Context) (*RunRecord, error) {
	if p.state == nil {
		return nil, nil
	}
	return p.state.LastRun(ctx, p.Target())
}

// Reset clears the watermark so the next run applies every patch again.
func (p *Patcher) Reset(ctx context.Context) error {
	if p.state == nil {
		return p.memory.Reset(ctx, p.Target())
	}
	if err := p.state.Reset(ctx, p.Target()); err != nil {
		return err
	}
	p.log().Info("watermark reset", "target", p.Target())
	return nil
}

// Close releases the archive lock and the state database.
func (p *Patcher) Close() error {
	return errors.Join(p.archive.Close(), p.state.Close())
}

func (p *Patcher) record(ctx context.Context, res *Result, started time.Time) {
	if p.state == nil {
		return
	}
	run := state.Run{
		ID:         res.RunID,
		Target:     res.Target,
		StartedAt:  started,
		FinishedAt: time.Now(),
		Outcome:    res.Outcome.String(),
		Applied:    len(res.Applied),
		Failed:     len(res.Failed),
	}
	if err := res.Err(); err != nil {
		run.ErrorMessage = err.Error()
	}
	if err := p.state.RecordRun(context.WithoutCancel(ctx), run); err != nil {
		p.log().Warn("record run", "run", res.RunID, "error", err)
	}
}

func (p *Patcher) log() *slog.Logger {
	if p.logger != nil {
		return p.logger
	}
	return slog.New(slog.DiscardHandler)
}

// stateMarks stores watermarks in the state database.
type stateMarks struct {
	store *state.Store
}

func (m stateMarks) Watermark(ctx context.Context, target string) (string, error) {
	return m.store.Watermark(ctx, target)
}

func (m stateMarks) Advance(ctx context.Context, c engine.Checkpoint) error {
	return m.store.Advance(ctx, state.Applied(c))
}
