package beam

import (
	"github.com/beamguides/beam-patcher/archive"
	"github.com/beamguides/beam-patcher/engine"
	"github.com/beamguides/beam-patcher/internal/config"
	"github.com/beamguides/beam-patcher/internal/state"
)

// --- Re-exports from config ---

// Config is the patcher configuration.
type Config = config.Config

// Mirror is one configured download origin.
type Mirror = config.Mirror

// DefaultConfig returns a configuration with defaults and no mirrors.
func DefaultConfig() Config { return config.Default() }

// LoadConfig reads and validates a configuration file. See
// [config.Load] for the lookup rules when path is empty.
func LoadConfig(path string) (*Config, string, bool, error) { return config.Load(path) }

// --- Re-exports from engine ---

// Result is the terminal report of a run.
type Result = engine.Result

// Outcome is the overall result of a run.
type Outcome = engine.Outcome

// Failure describes the patch that stopped a run.
type Failure = engine.Failure

// State is the phase of a run.
type State = engine.State

// Plan is the set of patches a run would apply.
type Plan = engine.Plan

// Outcome constants.
const (
	OutcomeSuccess = engine.OutcomeSuccess
	OutcomePartial = engine.OutcomePartial
	OutcomeFailure = engine.OutcomeFailure
)

// --- Re-exports from archive and state ---

// Entry describes one archive member.
type Entry = archive.Entry

// ArchiveUsage describes live and dead space in the archive data region.
type ArchiveUsage = archive.Usage

// AppliedPatch is one row of the applied history.
type AppliedPatch = state.Applied

// RunRecord summarizes a past run.
type RunRecord = state.Run
