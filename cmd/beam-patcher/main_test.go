package main

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beamguides/beam-patcher/archive"
	"github.com/beamguides/beam-patcher/integrity"
	"github.com/beamguides/beam-patcher/patchpkg"
)

type cliTestEnv struct {
	baseDir    string
	gameDir    string
	configPath string
	server     *httptest.Server
	files      map[string][]byte
	manifest   string
	// fileManifest is served at /files.json.
	fileManifest string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	env := &cliTestEnv{
		baseDir: base,
		gameDir: filepath.Join(base, "game"),
		files:   make(map[string][]byte),
	}
	require.NoError(t, os.MkdirAll(env.gameDir, 0o755))

	env.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/patchlist.txt":
			_, _ = w.Write([]byte(env.manifest))
		case "/version.json":
			_, _ = w.Write([]byte(`{"version": "2.0.0", "download_url": "https://example.com/dl", "required": true}`))
		case "/status.json":
			_, _ = w.Write([]byte(`{"login_online": true, "char_online": true, "map_online": false, "players": 12}`))
		case "/files.json":
			_, _ = w.Write([]byte(env.fileManifest))
		default:
			data, ok := env.files[strings.TrimPrefix(r.URL.Path, "/patches/")]
			if !ok {
				http.NotFound(w, r)
				return
			}
			_, _ = w.Write(data)
		}
	}))
	t.Cleanup(env.server.Close)

	env.configPath = filepath.Join(base, "config.toml")
	cfg := fmt.Sprintf(`
[[mirrors]]
name = "test"
url = %q

[patcher]
manifest_url = %q
game_dir = %q
target_archive = "data.grf"
allow_manual_patch = true
compact_threshold = 0.0

[download]
max_attempts = 1

[paths]
staging_dir = %q
state_db = %q

[status]
version_url = %q
server_status_url = %q

[verify]
manifest_url = %q
critical = ["Ragnarok.exe"]
`,
		env.server.URL+"/patches",
		env.server.URL+"/patchlist.txt",
		env.gameDir,
		filepath.Join(base, "staging"),
		filepath.Join(base, "state.db"),
		env.server.URL+"/version.json",
		env.server.URL+"/status.json",
		env.server.URL+"/files.json",
	)
	require.NoError(t, os.WriteFile(env.configPath, []byte(cfg), 0o644))
	return env
}

// publish must be called before any request is served.
func (env *cliTestEnv) publish(t *testing.T, name string, records ...patchpkg.Record) {
	t.Helper()
	data, err := patchpkg.Encode(records)
	require.NoError(t, err)
	env.files[name] = data
	env.manifest += name + " " + integrity.Compute(integrity.SHA256, data).String() + "\n"
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestCLIPatchCheckHistory(t *testing.T) {
	env := setupCLITestEnv(t)
	env.publish(t, "2024-01-01.beam", patchpkg.Record{Path: "data\\a.txt", Data: []byte("one")})
	env.publish(t, "2024-01-02.beam", patchpkg.Record{Path: "data\\b.txt", Data: []byte("two")})

	out, _, err := runCLI(t, []string{"check"}, env.configPath)
	require.NoError(t, err)
	assert.Contains(t, out, "No patches applied yet")
	assert.Contains(t, out, "2 of 2 patches pending")

	out, _, err = runCLI(t, []string{"patch"}, env.configPath)
	require.NoError(t, err)
	assert.Contains(t, out, "SUCCESS")

	out, _, err = runCLI(t, []string{"check", "--json"}, env.configPath)
	require.NoError(t, err)
	assert.Contains(t, out, `"watermark": "2024-01-02.beam"`)
	assert.Contains(t, out, `"pending": []`)

	out, _, err = runCLI(t, []string{"history"}, env.configPath)
	require.NoError(t, err)
	assert.Contains(t, out, "success, 2 applied, 0 failed")
	assert.Contains(t, out, "2024-01-01.beam")

	out, _, err = runCLI(t, []string{"list", "--filter", "data/b"}, env.configPath)
	require.NoError(t, err)
	assert.Contains(t, out, "data\\b.txt")
	assert.NotContains(t, out, "data\\a.txt")

	out, _, err = runCLI(t, []string{"reset"}, env.configPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Watermark cleared")

	out, _, err = runCLI(t, []string{"check"}, env.configPath)
	require.NoError(t, err)
	assert.Contains(t, out, "2 of 2 patches pending")
}

func TestCLIPackVerifyApplyExtract(t *testing.T) {
	env := setupCLITestEnv(t)

	src := filepath.Join(env.baseDir, "src")
	require.NoError(t, os.MkdirAll(filepath.Join(src, "data", "texture"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "data", "texture", "logo.bmp"), []byte("pixels"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "data", "clientinfo.xml"), []byte("<info/>"), 0o644))

	beamPath := filepath.Join(env.baseDir, "manual.beam")
	out, _, err := runCLI(t, []string{"pack", src, beamPath, "--compression", "zlib"}, env.configPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Packed 2 records")
	assert.Contains(t, out, "manual.beam sha256:")

	sum, err := integrity.ComputeFile(integrity.SHA256, beamPath)
	require.NoError(t, err)
	out, _, err = runCLI(t, []string{"verify", beamPath, "--digest", sum.String()}, "")
	require.NoError(t, err)
	assert.Contains(t, out, "beam")
	assert.Contains(t, out, "ok")

	out, _, err = runCLI(t, []string{"apply", beamPath}, env.configPath)
	require.NoError(t, err)
	assert.Contains(t, out, "SUCCESS")

	outDir := filepath.Join(env.baseDir, "out")
	out, _, err = runCLI(t, []string{"extract", "--all", "--out", outDir}, env.configPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Extracted 2 files")
	got, err := os.ReadFile(filepath.Join(outDir, "data", "texture", "logo.bmp"))
	require.NoError(t, err)
	assert.Equal(t, []byte("pixels"), got)

	gpfPath := filepath.Join(env.baseDir, "bundle.gpf")
	_, _, err = runCLI(t, []string{"pack", src, gpfPath}, env.configPath)
	require.NoError(t, err)
	store, err := archive.Open(gpfPath, archive.WithReadOnly())
	require.NoError(t, err)
	assert.Equal(t, 2, store.Len())
	require.NoError(t, store.Close())
}

func TestCLIVerifyRejectsDamagedPatch(t *testing.T) {
	dir := t.TempDir()
	data, err := patchpkg.Encode([]patchpkg.Record{{Path: "a.txt", Data: []byte("content")}})
	require.NoError(t, err)
	data[len(data)-1] ^= 0xFF
	path := filepath.Join(dir, "bad.beam")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	out, _, err := runCLI(t, []string{"verify", path}, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 1 files failed")
	assert.Contains(t, out, "FAIL")

	_, _, err = runCLI(t, []string{"verify", path, "--digest", "sha256:" + strings.Repeat("0", 64)}, "")
	require.Error(t, err)
}

func TestCLIStatus(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"status", "--current", "1.9.0"}, env.configPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Latest launcher: 2.0.0 (installed 1.9.0)")
	assert.Contains(t, out, "A required update is available")
	assert.Contains(t, out, "offline")

	out, _, err = runCLI(t, []string{"status", "--current", "2.0.0", "--json"}, env.configPath)
	require.NoError(t, err)
	assert.Contains(t, out, `"update_available": false`)
	assert.Contains(t, out, `"players": 12`)
}

func TestCLIConfigInitAndValidate(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"config", "validate"}, env.configPath)
	require.NoError(t, err)
	assert.Contains(t, out, "Configuration valid")

	target := filepath.Join(t.TempDir(), "config.toml")
	out, _, err = runCLI(t, []string{"config", "init", "--path", target}, "")
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote sample configuration")
	_, err = os.Stat(target)
	require.NoError(t, err)

	_, _, err = runCLI(t, []string{"config", "init", "--path", target}, "")
	require.ErrorContains(t, err, "already exists")

	_, _, err = runCLI(t, []string{"config", "init", "--path", target, "--overwrite"}, "")
	require.NoError(t, err)
}

func TestCLICompact(t *testing.T) {
	env := setupCLITestEnv(t)
	for i := range 3 {
		env.publish(t, fmt.Sprintf("%02d.beam", i+1), patchpkg.Record{
			Path: "data\\bg.jpg",
			Data: bytes.Repeat([]byte{byte(i)}, 16<<10),
		})
	}

	_, _, err := runCLI(t, []string{"patch"}, env.configPath)
	require.NoError(t, err)

	out, _, err := runCLI(t, []string{"compact", "--min-ratio", "0.9"}, env.configPath)
	require.NoError(t, err)
	assert.Contains(t, out, "below --min-ratio")

	_, _, err = runCLI(t, []string{"compact", "--min-ratio", "1.5"}, env.configPath)
	require.ErrorContains(t, err, "--min-ratio")

	out, _, err = runCLI(t, []string{"compact"}, env.configPath)
	require.NoError(t, err)
	assert.Contains(t, out, "reclaimed 32 KiB")
	assert.Contains(t, out, "48 KiB")

	out, _, err = runCLI(t, []string{"list"}, env.configPath)
	require.NoError(t, err)
	assert.Contains(t, out, "data\\bg.jpg")
	assert.Contains(t, out, "16 KiB")
	assert.Contains(t, out, "1 entries")
}

func TestCLIVerifyFiles(t *testing.T) {
	env := setupCLITestEnv(t)
	good := []byte("<clientinfo/>")
	require.NoError(t, os.MkdirAll(filepath.Join(env.gameDir, "data"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(env.gameDir, "data", "clientinfo.xml"), good, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(env.gameDir, "data", "sprite.spr"), []byte("edited"), 0o644))
	env.fileManifest = `{"files": [
		{"path": "data\\clientinfo.xml", "checksum": "` + integrity.Compute(integrity.SHA256, good).String() + `", "size": 13},
		{"path": "data\\sprite.spr", "checksum": "` + integrity.Compute(integrity.SHA256, []byte("original")).Hex() + `"}
	]}`

	out, _, err := runCLI(t, []string{"verify-files"}, env.configPath)
	require.ErrorContains(t, err, "1 corrupted and 1 missing of 3 files")
	assert.Contains(t, out, "data\\sprite.spr")
	assert.Contains(t, out, "Ragnarok.exe")
	assert.NotContains(t, out, "clientinfo.xml")
	assert.Contains(t, out, "1 of 3 files verified")

	require.NoError(t, os.WriteFile(filepath.Join(env.gameDir, "Ragnarok.exe"), []byte("MZ"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(env.gameDir, "data", "sprite.spr"), []byte("original"), 0o644))
	out, _, err = runCLI(t, []string{"verify-files", "--json", "--all"}, env.configPath)
	require.NoError(t, err)
	assert.Contains(t, out, `"verified": 3`)
	assert.Contains(t, out, `"missing": []`)
}

func TestCLIPackRejectsVersion(t *testing.T) {
	env := setupCLITestEnv(t)
	src := filepath.Join(env.baseDir, "src")
	require.NoError(t, os.MkdirAll(src, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "a.txt"), []byte("a"), 0o644))

	out := filepath.Join(env.baseDir, "a.beam")
	for _, v := range []string{"65537", "0", "3", "-1"} {
		_, _, err := runCLI(t, []string{"pack", src, out, "--version=" + v}, env.configPath)
		require.ErrorContains(t, err, "--version must be 1 or 2", v)
	}
	_, err := os.Stat(out)
	require.ErrorIs(t, err, os.ErrNotExist)

	_, _, err = runCLI(t, []string{"pack", src, out, "--version", "1"}, env.configPath)
	require.NoError(t, err)
}

func TestExtractPathRejectsEscapes(t *testing.T) {
	_, err := extractPath("out", "..\\..\\etc\\passwd")
	require.Error(t, err)

	got, err := extractPath("out", "data\\a.txt")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("out", "data", "a.txt"), got)
}

func TestDigestText(t *testing.T) {
	assert.Equal(t, "-", digestText(""))
	assert.Equal(t, "md5:abc", digestText("md5:abc"))
	assert.Equal(t, "sha256:0123456789abcdef", digestText("sha256:0123456789abcdef0123"))
}
