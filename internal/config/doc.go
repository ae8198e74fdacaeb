// Package config loads, normalizes, and validates beam-patcher
// configuration.
//
// The native format is TOML. Launcher-style config.yml files from older
// installations are read through a legacy YAML mapping so existing game
// directories keep working. Load applies defaults, expands "~" in paths,
// and validates the result before returning it.
package config
