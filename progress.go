package beam

import "github.com/beamguides/beam-patcher/internal/beamtype"

// Re-export progress types.
type (
	// ProgressEvent represents a progress update during a patch run.
	ProgressEvent = beamtype.ProgressEvent

	// ProgressStage identifies the current phase of a run.
	ProgressStage = beamtype.ProgressStage

	// ProgressFunc receives progress updates.
	// Implementations must be safe for concurrent calls.
	ProgressFunc = beamtype.ProgressFunc
)

// Re-export progress stage constants.
const (
	// StageDiscovering indicates the manifest is being fetched.
	StageDiscovering = beamtype.StageDiscovering

	// StageDownloading indicates patch files are being transferred.
	StageDownloading = beamtype.StageDownloading

	// StageVerifying indicates a downloaded patch is being checked.
	StageVerifying = beamtype.StageVerifying

	// StageApplying indicates patch records are being written.
	StageApplying = beamtype.StageApplying

	// StageSaving indicates the archive is being persisted.
	StageSaving = beamtype.StageSaving
)
