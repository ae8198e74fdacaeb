package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Mirror is one download origin.
type Mirror struct {
	Name     string `toml:"name"`
	URL      string `toml:"url"`
	Priority int    `toml:"priority"`
}

// Patcher holds the target archive and patch policy.
type Patcher struct {
	ManifestURL      string `toml:"manifest_url"`
	GameDir          string `toml:"game_dir"`
	TargetArchive    string `toml:"target_archive"`
	ArchiveVersion   string `toml:"archive_version"`
	AllowManualPatch bool   `toml:"allow_manual_patch"`
	VerifyChecksums  bool   `toml:"verify_checksums"`
	KeepStaged       bool   `toml:"keep_staged"`
	// CompactThreshold is the dead-space fraction of the archive data
	// region that triggers a compaction after a run. Zero disables it.
	CompactThreshold float64 `toml:"compact_threshold"`
}

// Download tunes the mirror fetcher.
type Download struct {
	Workers        int    `toml:"workers"`
	MaxAttempts    int    `toml:"max_attempts"`
	BackoffMillis  int    `toml:"backoff_ms"`
	BackoffMaxMS   int    `toml:"backoff_max_ms"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	UserAgent      string `toml:"user_agent"`
}

// Paths holds local state locations.
type Paths struct {
	StagingDir string `toml:"staging_dir"`
	StateDB    string `toml:"state_db"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Status holds the optional launcher documents.
type Status struct {
	VersionURL      string `toml:"version_url"`
	ServerStatusURL string `toml:"server_status_url"`
}

// Verify holds the game file check settings.
type Verify struct {
	ManifestURL string   `toml:"manifest_url"`
	Critical    []string `toml:"critical"`
}

// Pack holds defaults for building BEAM packages.
type Pack struct {
	Version     int    `toml:"version"`
	Compression string `toml:"compression"`
	Checksum    bool   `toml:"checksum"`
}

// Config encapsulates all configuration values for beam-patcher.
type Config struct {
	Mirrors  []Mirror `toml:"mirrors"`
	Patcher  Patcher  `toml:"patcher"`
	Download Download `toml:"download"`
	Paths    Paths    `toml:"paths"`
	Logging  Logging  `toml:"logging"`
	Status   Status   `toml:"status"`
	Verify   Verify   `toml:"verify"`
	Pack     Pack     `toml:"pack"`
}

// DefaultConfigPath returns the absolute path of the default configuration
// file.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/beam-patcher/config.toml")
}

// Load locates, parses, and validates a configuration file. It returns the
// config, the resolved path, and whether that file existed. Paths ending
// in .yml or .yaml are read as legacy launcher configs.
func Load(path string) (*Config, string, bool, error) {
	cfg, resolved, exists, err := load(path)
	if err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}
	return cfg, resolved, exists, nil
}

// LoadUnvalidated is Load without Validate, for commands that only need
// local paths.
func LoadUnvalidated(path string) (*Config, string, bool, error) {
	return load(path)
}

func load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolved, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		if isLegacy(resolved) {
			err = loadLegacy(resolved, &cfg)
		} else {
			err = decodeTOML(resolved, &cfg)
		}
		if err != nil {
			return nil, "", false, err
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolved, exists, nil
}

func decodeTOML(path string, cfg *Config) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	decoder := toml.NewDecoder(file)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return fmt.Errorf("parse config: %s", strict.String())
		}
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

func isLegacy(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yml" || ext == ".yaml"
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	candidates := []string{defaultPath}
	for _, local := range []string{"beam-patcher.toml", "config.yml"} {
		abs, err := filepath.Abs(local)
		if err != nil {
			return "", false, err
		}
		candidates = append(candidates, abs)
	}
	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, true, nil
		}
	}
	return defaultPath, false, nil
}

// TargetPath returns the absolute path of the target archive.
func (c *Config) TargetPath() string {
	if filepath.IsAbs(c.Patcher.TargetArchive) {
		return c.Patcher.TargetArchive
	}
	return filepath.Join(c.Patcher.GameDir, filepath.FromSlash(c.Patcher.TargetArchive))
}

// Backoff returns the initial and maximum retry intervals.
func (c *Config) Backoff() (time.Duration, time.Duration) {
	return time.Duration(c.Download.BackoffMillis) * time.Millisecond,
		time.Duration(c.Download.BackoffMaxMS) * time.Millisecond
}

// Timeout returns the per-request HTTP timeout, or zero for none.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Download.TimeoutSeconds) * time.Second
}

// EnsureDirectories creates the staging and state directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StagingDir, filepath.Dir(c.Paths.StateDB)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to path.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config already exists: %s", path)
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
