package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeMirrors()
	c.normalizeDownload()
	c.normalizeLogging()
	c.normalizePack()
	c.normalizeVerify()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if value, ok := os.LookupEnv("BEAM_GAME_DIR"); ok && strings.TrimSpace(value) != "" {
		c.Patcher.GameDir = value
	}
	if strings.TrimSpace(c.Patcher.GameDir) == "" {
		c.Patcher.GameDir = defaultGameDir
	}
	if c.Patcher.GameDir, err = expandPath(c.Patcher.GameDir); err != nil {
		return fmt.Errorf("patcher.game_dir: %w", err)
	}
	c.Patcher.TargetArchive = strings.TrimSpace(c.Patcher.TargetArchive)
	c.Patcher.ManifestURL = strings.TrimSpace(c.Patcher.ManifestURL)
	c.Patcher.ArchiveVersion = strings.TrimSpace(c.Patcher.ArchiveVersion)
	if c.Patcher.ArchiveVersion == "" {
		c.Patcher.ArchiveVersion = defaultArchiveVersion
	}

	if strings.TrimSpace(c.Paths.StagingDir) == "" {
		c.Paths.StagingDir = defaultStagingDir
	}
	if c.Paths.StagingDir, err = expandPath(c.Paths.StagingDir); err != nil {
		return fmt.Errorf("paths.staging_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDB) == "" {
		c.Paths.StateDB = defaultStateDB
	}
	if c.Paths.StateDB, err = expandPath(c.Paths.StateDB); err != nil {
		return fmt.Errorf("paths.state_db: %w", err)
	}
	return nil
}

func (c *Config) normalizeMirrors() {
	for i := range c.Mirrors {
		c.Mirrors[i].Name = strings.TrimSpace(c.Mirrors[i].Name)
		c.Mirrors[i].URL = strings.TrimSpace(c.Mirrors[i].URL)
	}
}

func (c *Config) normalizeDownload() {
	if c.Download.Workers == 0 {
		c.Download.Workers = defaultWorkers
	}
	if c.Download.MaxAttempts == 0 {
		c.Download.MaxAttempts = defaultMaxAttempts
	}
	c.Download.UserAgent = strings.TrimSpace(c.Download.UserAgent)
	if c.Download.UserAgent == "" {
		c.Download.UserAgent = defaultUserAgent
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func (c *Config) normalizePack() {
	c.Pack.Compression = strings.ToLower(strings.TrimSpace(c.Pack.Compression))
	if c.Pack.Compression == "" {
		c.Pack.Compression = defaultPackCompress
	}
	if c.Pack.Version == 0 {
		c.Pack.Version = defaultPackVersion
	}
}

func (c *Config) normalizeVerify() {
	c.Verify.ManifestURL = strings.TrimSpace(c.Verify.ManifestURL)
	critical := c.Verify.Critical[:0]
	for _, name := range c.Verify.Critical {
		if name = strings.TrimSpace(name); name != "" {
			critical = append(critical, name)
		}
	}
	c.Verify.Critical = critical
}
