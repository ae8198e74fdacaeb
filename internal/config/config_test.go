package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beamguides/beam-patcher/internal/config"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestSampleConfigLoads(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	path := filepath.Join(home, "cfg", "config.toml")
	require.NoError(t, config.CreateSample(path))

	cfg, resolved, exists, err := config.Load(path)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Equal(t, path, resolved)

	require.Len(t, cfg.Mirrors, 2)
	assert.Equal(t, "primary", cfg.Mirrors[0].Name)
	assert.Equal(t, filepath.Join(home, "Games", "RO"), cfg.Patcher.GameDir)
	assert.Equal(t, filepath.Join(home, "Games", "RO", "data.grf"), cfg.TargetPath())
	assert.Equal(t, filepath.Join(home, ".local", "share", "beam-patcher", "staging"), cfg.Paths.StagingDir)
	assert.Equal(t, 4, cfg.Download.Workers)
	assert.InDelta(t, 0.5, cfg.Patcher.CompactThreshold, 1e-9)
	assert.Empty(t, cfg.Verify.ManifestURL)

	initial, maxInterval := cfg.Backoff()
	assert.Equal(t, 500*time.Millisecond, initial)
	assert.Equal(t, 10*time.Second, maxInterval)
	assert.Zero(t, cfg.Timeout())

	err = config.CreateSample(path)
	assert.Error(t, err, "existing config is not overwritten")
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg, resolved, exists, err := config.LoadUnvalidated(filepath.Join(home, "absent.toml"))
	require.NoError(t, err)
	assert.False(t, exists)
	assert.Equal(t, filepath.Join(home, "absent.toml"), resolved)
	assert.Equal(t, "data.grf", cfg.Patcher.TargetArchive)
	assert.True(t, cfg.Patcher.VerifyChecksums)
	assert.Equal(t, "console", cfg.Logging.Format)
	require.NoError(t, cfg.ValidateLocal())

	_, _, _, err = config.Load(filepath.Join(home, "absent.toml"))
	assert.ErrorContains(t, err, "mirror")
}

func TestLoadTOMLOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	path := writeFile(t, dir, "beam.toml", `
[[mirrors]]
url = " https://a.example.com/p "

[patcher]
manifest_url = "https://a.example.com/list.txt"
target_archive = "/abs/rdata.grf"
archive_version = "0x103"

[download]
workers = 8
timeout_seconds = 30

[logging]
format = "JSON"
level = "Debug"
`)

	cfg, _, _, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://a.example.com/p", cfg.Mirrors[0].URL)
	assert.Equal(t, "/abs/rdata.grf", cfg.TargetPath())
	assert.Equal(t, "0x103", cfg.Patcher.ArchiveVersion)
	assert.Equal(t, 8, cfg.Download.Workers)
	assert.Equal(t, 3, cfg.Download.MaxAttempts)
	assert.Equal(t, 30*time.Second, cfg.Timeout())
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	path := writeFile(t, dir, "beam.toml", "[patcher]\ntarget_grf = \"data.grf\"\n")

	_, _, _, err := config.Load(path)
	assert.ErrorContains(t, err, "target_grf")
}

func TestLoadLegacyYAML(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	game := filepath.Join(dir, "ro")
	path := writeFile(t, dir, "config.yml", `
app:
  name: "Beam Patcher"
  client_exe: "Ragnarok.exe"
  game_directory: "`+game+`"
patcher:
  mirrors:
    - name: "Primary Mirror"
      url: "https://patch.example.com"
      priority: 1
  patch_list_url: "https://patch.example.com/patchlist.txt"
  target_grf: "rdata.grf"
  allow_manual_patch: false
  verify_checksums: true
ui:
  theme: "default"
  server_status_url: "https://status.example.com/status.json"
updater:
  enabled: true
  check_url: "https://patch.example.com/version.json"
`)

	cfg, _, exists, err := config.Load(path)
	require.NoError(t, err)
	assert.True(t, exists)
	require.Len(t, cfg.Mirrors, 1)
	assert.Equal(t, "Primary Mirror", cfg.Mirrors[0].Name)
	assert.Equal(t, "https://patch.example.com/patchlist.txt", cfg.Patcher.ManifestURL)
	assert.Equal(t, filepath.Join(game, "rdata.grf"), cfg.TargetPath())
	assert.False(t, cfg.Patcher.AllowManualPatch)
	assert.Equal(t, "https://patch.example.com/version.json", cfg.Status.VersionURL)
	assert.Equal(t, "https://status.example.com/status.json", cfg.Status.ServerStatusURL)
	assert.Equal(t, []string{"Ragnarok.exe"}, cfg.Verify.Critical)
}

func TestGameDirFromEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("BEAM_GAME_DIR", filepath.Join(dir, "client"))

	cfg, _, _, err := config.LoadUnvalidated(filepath.Join(dir, "absent.toml"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "client", "data.grf"), cfg.TargetPath())
}

func TestValidate(t *testing.T) {
	t.Parallel()

	valid := func() config.Config {
		cfg := config.Default()
		cfg.Mirrors = []config.Mirror{{Name: "a", URL: "https://a.example.com"}}
		cfg.Patcher.ManifestURL = "https://a.example.com/list.txt"
		return cfg
	}
	base := valid()
	require.NoError(t, base.Validate())

	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"no mirrors", func(c *config.Config) { c.Mirrors = nil }, "at least one mirror"},
		{"only empty mirrors", func(c *config.Config) { c.Mirrors = []config.Mirror{{Name: "x"}} }, "at least one mirror"},
		{"bad mirror scheme", func(c *config.Config) { c.Mirrors[0].URL = "ftp://a" }, "mirrors[0].url"},
		{"no manifest", func(c *config.Config) { c.Patcher.ManifestURL = "" }, "manifest_url"},
		{"relative manifest", func(c *config.Config) { c.Patcher.ManifestURL = "list.txt" }, "manifest_url"},
		{"no target", func(c *config.Config) { c.Patcher.TargetArchive = "" }, "target_archive"},
		{"encrypted version", func(c *config.Config) { c.Patcher.ArchiveVersion = "0x300" }, "archive_version"},
		{"zero workers", func(c *config.Config) { c.Download.Workers = 0 }, "workers"},
		{"zero attempts", func(c *config.Config) { c.Download.MaxAttempts = 0 }, "max_attempts"},
		{"inverted backoff", func(c *config.Config) { c.Download.BackoffMaxMS = 1 }, "backoff_max_ms"},
		{"negative timeout", func(c *config.Config) { c.Download.TimeoutSeconds = -1 }, "timeout_seconds"},
		{"log format", func(c *config.Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"log level", func(c *config.Config) { c.Logging.Level = "trace" }, "logging.level"},
		{"pack version", func(c *config.Config) { c.Pack.Version = 3 }, "pack.version"},
		{"pack compression", func(c *config.Config) { c.Pack.Compression = "brotli" }, "pack.compression"},
		{"negative compact threshold", func(c *config.Config) { c.Patcher.CompactThreshold = -0.1 }, "compact_threshold"},
		{"full compact threshold", func(c *config.Config) { c.Patcher.CompactThreshold = 1 }, "compact_threshold"},
		{"file manifest scheme", func(c *config.Config) { c.Verify.ManifestURL = "file:///x.json" }, "verify.manifest_url"},
		{"critical escapes", func(c *config.Config) { c.Verify.Critical = []string{"..\\Windows\\a.dll"} }, "verify.critical[0]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := valid()
			tt.mutate(&cfg)
			assert.ErrorContains(t, cfg.Validate(), tt.want)
		})
	}
}
