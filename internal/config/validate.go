package config

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/beamguides/beam-patcher/archive"
	"github.com/beamguides/beam-patcher/patchpkg"
)

// Validate ensures the configuration is usable for a patch run.
func (c *Config) Validate() error {
	if err := c.validateMirrors(); err != nil {
		return err
	}
	if err := c.validatePatcher(); err != nil {
		return err
	}
	if err := c.ValidateLocal(); err != nil {
		return err
	}
	return nil
}

// ValidateLocal checks the settings that do not involve the network.
func (c *Config) ValidateLocal() error {
	if err := c.validateArchive(); err != nil {
		return err
	}
	if err := c.validateDownload(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	if err := c.validatePack(); err != nil {
		return err
	}
	if err := c.validateVerify(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateMirrors() error {
	usable := 0
	for i, m := range c.Mirrors {
		if m.URL == "" {
			continue
		}
		if err := validateHTTPURL(m.URL); err != nil {
			return fmt.Errorf("mirrors[%d].url: %w", i, err)
		}
		usable++
	}
	if usable == 0 {
		return errors.New("at least one mirror with a url must be configured")
	}
	return nil
}

func (c *Config) validatePatcher() error {
	if c.Patcher.ManifestURL == "" {
		return errors.New("patcher.manifest_url must be set")
	}
	if err := validateHTTPURL(c.Patcher.ManifestURL); err != nil {
		return fmt.Errorf("patcher.manifest_url: %w", err)
	}
	return nil
}

func (c *Config) validateArchive() error {
	if c.Patcher.TargetArchive == "" {
		return errors.New("patcher.target_archive must be set")
	}
	if _, err := archive.ParseVersion(c.Patcher.ArchiveVersion); err != nil {
		return fmt.Errorf("patcher.archive_version: %w", err)
	}
	if c.Patcher.CompactThreshold < 0 || c.Patcher.CompactThreshold >= 1 {
		return fmt.Errorf("patcher.compact_threshold must be in [0, 1), got %g", c.Patcher.CompactThreshold)
	}
	return nil
}

func (c *Config) validateDownload() error {
	if c.Download.Workers < 1 {
		return errors.New("download.workers must be at least 1")
	}
	if c.Download.MaxAttempts < 1 {
		return errors.New("download.max_attempts must be at least 1")
	}
	if c.Download.BackoffMillis < 0 || c.Download.BackoffMaxMS < 0 {
		return errors.New("download backoff intervals must not be negative")
	}
	if c.Download.BackoffMaxMS < c.Download.BackoffMillis {
		return errors.New("download.backoff_max_ms must be at least download.backoff_ms")
	}
	if c.Download.TimeoutSeconds < 0 {
		return errors.New("download.timeout_seconds must not be negative")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	return nil
}

func (c *Config) validatePack() error {
	if c.Pack.Version != int(patchpkg.Version1) && c.Pack.Version != int(patchpkg.Version2) {
		return fmt.Errorf("pack.version must be %d or %d", patchpkg.Version1, patchpkg.Version2)
	}
	if _, err := patchpkg.ParseCompression(c.Pack.Compression); err != nil {
		return fmt.Errorf("pack.compression: %w", err)
	}
	return nil
}

func (c *Config) validateVerify() error {
	if c.Verify.ManifestURL != "" {
		if err := validateHTTPURL(c.Verify.ManifestURL); err != nil {
			return fmt.Errorf("verify.manifest_url: %w", err)
		}
	}
	for i, name := range c.Verify.Critical {
		if !filepath.IsLocal(filepath.FromSlash(strings.ReplaceAll(name, "\\", "/"))) {
			return fmt.Errorf("verify.critical[%d]: %q is not a path inside the game directory", i, name)
		}
	}
	return nil
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}
