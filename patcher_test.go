package beam

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beamguides/beam-patcher/archive"
	"github.com/beamguides/beam-patcher/integrity"
	"github.com/beamguides/beam-patcher/patchpkg"
)

type mirror struct {
	*httptest.Server

	mu       sync.Mutex
	manifest string
	files    map[string][]byte
}

func newMirror(t *testing.T) *mirror {
	t.Helper()
	m := &mirror{files: make(map[string][]byte)}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		defer m.mu.Unlock()
		if r.URL.Path == "/patchlist.txt" {
			_, _ = w.Write([]byte(m.manifest))
			return
		}
		data, ok := m.files[strings.TrimPrefix(r.URL.Path, "/")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(data)
	}))
	t.Cleanup(m.Close)
	return m
}

func (m *mirror) publish(t *testing.T, name string, data []byte) {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[name] = data
	m.manifest += name + " " + integrity.Compute(integrity.SHA256, data).String() + "\n"
}

func encodePatch(t *testing.T, path, content string) []byte {
	t.Helper()
	data, err := patchpkg.Encode([]patchpkg.Record{{Path: path, Data: []byte(content)}})
	require.NoError(t, err)
	return data
}

func testConfig(t *testing.T, m *mirror) *Config {
	t.Helper()
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Mirrors = []Mirror{
		{Name: "empty", Priority: 0},
		{Name: "primary", URL: m.URL, Priority: 1},
	}
	cfg.Patcher.ManifestURL = m.URL + "/patchlist.txt"
	cfg.Patcher.GameDir = dir
	cfg.Paths.StagingDir = filepath.Join(dir, "staging")
	cfg.Paths.StateDB = filepath.Join(dir, "state", "state.db")
	cfg.Download.MaxAttempts = 1
	return &cfg
}

func TestOpen_InvalidConfig(t *testing.T) {
	t.Parallel()

	_, err := Open(nil)
	require.Error(t, err)

	cfg := DefaultConfig()
	_, err = Open(&cfg)
	require.ErrorContains(t, err, "mirror")

	m := newMirror(t)
	bad := testConfig(t, m)
	bad.Patcher.ArchiveVersion = "0x300"
	_, err = Open(bad)
	require.ErrorIs(t, err, ErrUnsupportedVersion)

	_, err = Open(testConfig(t, m), WithHTTPClient(nil))
	require.Error(t, err)
}

func TestPatcher_RunRecordsState(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	m := newMirror(t)
	m.publish(t, "2024-01-01.beam", encodePatch(t, "data\\a.txt", "one"))
	m.publish(t, "2024-01-02.beam", encodePatch(t, "data\\a.txt", "two"))
	cfg := testConfig(t, m)

	var (
		mu     sync.Mutex
		stages = map[ProgressStage]int{}
	)
	p, err := Open(cfg, WithProgress(func(ev ProgressEvent) {
		mu.Lock()
		stages[ev.Stage]++
		mu.Unlock()
	}))
	require.NoError(t, err)

	plan, err := p.Check(ctx)
	require.NoError(t, err)
	assert.Empty(t, plan.Watermark)
	assert.Len(t, plan.Pending, 2)

	res, err := p.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSuccess, res.Outcome)
	assert.Equal(t, []string{"2024-01-01.beam", "2024-01-02.beam"}, res.Applied)

	mark, err := p.Watermark(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-02.beam", mark)

	history, err := p.History(ctx, 0)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "2024-01-02.beam", history[0].Patch)
	assert.Equal(t, res.RunID, history[0].RunID)

	last, err := p.LastRun(ctx)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, res.RunID, last.ID)
	assert.Equal(t, "success", last.Outcome)
	assert.Equal(t, 2, last.Applied)

	got, err := p.Archive().Get("data\\a.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("two"), got)
	require.NoError(t, p.Close())

	mu.Lock()
	assert.Positive(t, stages[StageApplying])
	assert.Positive(t, stages[StageSaving])
	mu.Unlock()

	// A second Patcher sees the persisted watermark.
	p, err = Open(cfg)
	require.NoError(t, err)
	defer p.Close()

	plan, err = p.Check(ctx)
	require.NoError(t, err)
	assert.True(t, plan.Known)
	assert.Empty(t, plan.Pending)

	require.NoError(t, p.Reset(ctx))
	plan, err = p.Check(ctx)
	require.NoError(t, err)
	assert.Len(t, plan.Pending, 2)
}

func TestPatcher_ArchiveLocked(t *testing.T) {
	t.Parallel()

	m := newMirror(t)
	cfg := testConfig(t, m)
	p, err := Open(cfg, WithoutState())
	require.NoError(t, err)
	defer p.Close()

	_, err = Open(cfg, WithoutState())
	require.ErrorIs(t, err, ErrLocked)
}

func TestPatcher_ApplyLocal(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	m := newMirror(t)
	cfg := testConfig(t, m)
	local := filepath.Join(t.TempDir(), "manual.beam")
	require.NoError(t, os.WriteFile(local, encodePatch(t, "data\\manual.txt", "by hand"), 0o644))

	cfg.Patcher.AllowManualPatch = false
	p, err := Open(cfg, WithoutState())
	require.NoError(t, err)
	_, err = p.ApplyLocal(ctx, local)
	require.ErrorIs(t, err, ErrManualPatchDisabled)
	require.NoError(t, p.Close())

	cfg.Patcher.AllowManualPatch = true
	p, err = Open(cfg, WithoutState())
	require.NoError(t, err)
	defer p.Close()

	res, err := p.ApplyLocal(ctx, local)
	require.NoError(t, err)
	assert.Equal(t, []string{"manual.beam"}, res.Applied)

	mark, err := p.Watermark(ctx)
	require.NoError(t, err)
	assert.Empty(t, mark)

	got, err := p.Archive().Get("data\\manual.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("by hand"), got)
}

func TestPatcher_PartialRun(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	m := newMirror(t)
	m.publish(t, "a.beam", encodePatch(t, "data\\a.txt", "a"))
	m.mu.Lock()
	m.files["b.beam"] = []byte("not a package")
	m.manifest += "b.beam " + integrity.Compute(integrity.SHA256, []byte("something else")).String() + "\n"
	m.mu.Unlock()

	cfg := testConfig(t, m)
	p, err := Open(cfg)
	require.NoError(t, err)
	defer p.Close()

	res, err := p.Run(ctx)
	require.ErrorIs(t, err, ErrCorrupt)
	require.NotNil(t, res)
	assert.Equal(t, OutcomePartial, res.Outcome)
	assert.Equal(t, []string{"a.beam"}, res.Applied)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, "b.beam", res.Failed[0].File)

	last, err := p.LastRun(ctx)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, "partial", last.Outcome)
	assert.Equal(t, 1, last.Failed)
	assert.Contains(t, last.ErrorMessage, "b.beam")

	history, err := p.History(ctx, 1)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "a.beam", history[0].Patch)
}

func TestPatcher_MemoryHistory(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	m := newMirror(t)
	m.publish(t, "1.beam", encodePatch(t, "x", "1"))
	m.publish(t, "2.beam", encodePatch(t, "x", "2"))
	m.publish(t, "3.beam", encodePatch(t, "x", "3"))

	p, err := Open(testConfig(t, m), WithoutState())
	require.NoError(t, err)
	defer p.Close()

	_, err = p.Run(ctx)
	require.NoError(t, err)

	history, err := p.History(ctx, 2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "3.beam", history[0].Patch)
	assert.Equal(t, "2.beam", history[1].Patch)

	last, err := p.LastRun(ctx)
	require.NoError(t, err)
	assert.Nil(t, last)

	require.NoError(t, p.Reset(ctx))
	mark, err := p.Watermark(ctx)
	require.NoError(t, err)
	assert.Empty(t, mark)
	assert.Equal(t, archive.V200, p.Archive().Version())
}

func publishReplacements(t *testing.T, m *mirror, n, size int) {
	t.Helper()
	for i := range n {
		data, err := patchpkg.Encode([]patchpkg.Record{{
			Path: "data\\texture\\bg.jpg",
			Data: bytes.Repeat([]byte{byte(i + 1)}, size),
		}})
		require.NoError(t, err)
		m.publish(t, fmt.Sprintf("%02d.beam", i+1), data)
	}
}

func TestPatcher_Compact(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	const size = 16 << 10
	m := newMirror(t)
	publishReplacements(t, m, 4, size)
	cfg := testConfig(t, m)
	cfg.Patcher.CompactThreshold = 0

	p, err := Open(cfg, WithoutState())
	require.NoError(t, err)
	defer p.Close()

	_, err = p.Run(ctx)
	require.NoError(t, err)
	usage := p.Archive().Usage()
	assert.Equal(t, uint64(3*size), usage.Dead())

	before, after, err := p.Compact()
	require.NoError(t, err)
	assert.Equal(t, usage, before)
	assert.Zero(t, after.Dead())
	assert.Equal(t, uint64(size), after.Data)

	got, err := p.Archive().Get("data/texture/bg.jpg")
	require.NoError(t, err)
	assert.Equal(t, bytes.Repeat([]byte{4}, size), got)
}

func TestPatcher_RunCompactsOverThreshold(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	const size = 16 << 10
	m := newMirror(t)
	publishReplacements(t, m, 4, size)
	cfg := testConfig(t, m)
	cfg.Patcher.CompactThreshold = 0.5

	p, err := Open(cfg, WithoutState())
	require.NoError(t, err)
	defer p.Close()

	res, err := p.Run(ctx)
	require.NoError(t, err)
	assert.Len(t, res.Applied, 4)
	assert.Zero(t, p.Archive().Usage().Dead())

	info, err := os.Stat(cfg.TargetPath())
	require.NoError(t, err)
	assert.Less(t, info.Size(), int64(2*size))
}
