package gamefiles

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beamguides/beam-patcher/integrity"
	"github.com/beamguides/beam-patcher/internal/beamtype"
	"github.com/beamguides/beam-patcher/status"
)

func writeGameFile(t *testing.T, root, rel string, data []byte) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func TestVerifyFromServedManifest(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	exe := []byte("MZ client executable")
	info := []byte("<clientinfo/>")
	lub := []byte("tbl = {}")
	writeGameFile(t, root, "Ragnarok.exe", exe)
	writeGameFile(t, root, "data/clientinfo.xml", []byte("<tampered/>"))
	writeGameFile(t, root, "System/iteminfo.lub", lub)

	manifest := `{"files": [
		{"path": "Ragnarok.exe", "checksum": "` + integrity.Compute(integrity.SHA256, exe).Hex() + `", "size": 20},
		{"path": "data\\clientinfo.xml", "checksum": "` + integrity.Compute(integrity.SHA256, info).String() + `"},
		{"path": "System\\iteminfo.lub", "checksum": "` + integrity.Compute(integrity.BLAKE3, lub).String() + `"},
		{"path": "BGM/01.mp3", "checksum": "` + integrity.Compute(integrity.MD5, nil).Hex() + `"}
	]}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(manifest))
	}))
	t.Cleanup(srv.Close)

	m, err := status.FetchFileManifest(context.Background(), srv.Client(), srv.URL+"/files.json")
	require.NoError(t, err)

	rep, err := New(root, WithWorkers(2)).Verify(context.Background(), m.Files)
	require.NoError(t, err)
	assert.Equal(t, 4, rep.Total)
	assert.Equal(t, 2, rep.Verified)
	assert.Equal(t, []string{"data\\clientinfo.xml"}, rep.Corrupted)
	assert.Equal(t, []string{"BGM/01.mp3"}, rep.Missing)
	assert.False(t, rep.OK())

	require.Len(t, rep.Files, 4)
	assert.Equal(t, Verified, rep.Files[0].Outcome)
	assert.Contains(t, rep.Files[1].Reason, "digest mismatch")
	assert.Equal(t, Missing, rep.Files[3].Outcome)
}

func TestVerifySizeAndPresence(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	data := []byte("0123456789")
	writeGameFile(t, root, "a.bin", data)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "dir"), 0o755))

	rep, err := New(root).Verify(context.Background(), []status.FileEntry{
		{Path: "a.bin", Checksum: integrity.Compute(integrity.SHA256, data).String(), Size: 11},
		{Path: "a.bin"},
		{Path: "dir"},
		{Path: "Ragnarok.exe"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Verified)
	assert.Equal(t, []string{"a.bin", "dir"}, rep.Corrupted)
	assert.Equal(t, []string{"Ragnarok.exe"}, rep.Missing)
	assert.Contains(t, rep.Files[0].Reason, "size 10, want 11")

	rep, err = New(root).Verify(context.Background(), nil)
	require.NoError(t, err)
	assert.True(t, rep.OK())
}

func TestVerifyRejectsInvalidEntries(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	_, err := New(root).Verify(context.Background(), []status.FileEntry{{Path: "../outside"}})
	require.ErrorContains(t, err, "outside the game directory")

	_, err = New(root).Verify(context.Background(), []status.FileEntry{{Path: "a", Checksum: "nope"}})
	require.ErrorIs(t, err, integrity.ErrInvalidDigest)
}

func TestVerifyCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(t.TempDir()).Verify(ctx, []status.FileEntry{{Path: "a"}})
	require.ErrorIs(t, err, beamtype.ErrCanceled)
}
