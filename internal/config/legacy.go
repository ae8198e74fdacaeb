package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// legacyConfig is the subset of the launcher's config.yml the patcher
// understands. Other sections (ui, sso, server) are ignored.
type legacyConfig struct {
	App struct {
		GameDirectory string `yaml:"game_directory"`
		ClientExe     string `yaml:"client_exe"`
	} `yaml:"app"`
	Patcher struct {
		Mirrors []struct {
			Name     string `yaml:"name"`
			URL      string `yaml:"url"`
			Priority int    `yaml:"priority"`
		} `yaml:"mirrors"`
		PatchListURL     string `yaml:"patch_list_url"`
		TargetGRF        string `yaml:"target_grf"`
		AllowManualPatch *bool  `yaml:"allow_manual_patch"`
		VerifyChecksums  *bool  `yaml:"verify_checksums"`
	} `yaml:"patcher"`
	UI struct {
		ServerStatusURL string `yaml:"server_status_url"`
	} `yaml:"ui"`
	Updater struct {
		CheckURL string `yaml:"check_url"`
	} `yaml:"updater"`
}

func loadLegacy(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("open config: %w", err)
	}
	var legacy legacyConfig
	if err := yaml.Unmarshal(data, &legacy); err != nil {
		return fmt.Errorf("parse legacy config: %w", err)
	}
	legacy.apply(cfg)
	return nil
}

func (l *legacyConfig) apply(cfg *Config) {
	for _, m := range l.Patcher.Mirrors {
		cfg.Mirrors = append(cfg.Mirrors, Mirror{Name: m.Name, URL: m.URL, Priority: m.Priority})
	}
	if l.App.GameDirectory != "" {
		cfg.Patcher.GameDir = l.App.GameDirectory
	}
	cfg.Patcher.ManifestURL = l.Patcher.PatchListURL
	if l.Patcher.TargetGRF != "" {
		cfg.Patcher.TargetArchive = l.Patcher.TargetGRF
	}
	if l.Patcher.AllowManualPatch != nil {
		cfg.Patcher.AllowManualPatch = *l.Patcher.AllowManualPatch
	}
	if l.Patcher.VerifyChecksums != nil {
		cfg.Patcher.VerifyChecksums = *l.Patcher.VerifyChecksums
	}
	if l.App.ClientExe != "" {
		cfg.Verify.Critical = append(cfg.Verify.Critical, l.App.ClientExe)
	}
	cfg.Status.VersionURL = l.Updater.CheckURL
	cfg.Status.ServerStatusURL = l.UI.ServerStatusURL
}
