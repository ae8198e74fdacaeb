package beamtype

// ProgressEvent represents a progress update during download, verification,
// or application of patches.
type ProgressEvent struct {
	// Stage identifies the current phase of the operation.
	Stage ProgressStage

	// Path is the patch file currently being processed, if applicable.
	Path string

	// BytesDone is the number of bytes completed for Path.
	BytesDone uint64

	// BytesTotal is the total bytes for Path.
	// Zero indicates the total is unknown.
	BytesTotal uint64

	// FilesDone is the number of files completed in the current stage.
	FilesDone int

	// FilesTotal is the total number of files in the current stage.
	FilesTotal int

	// Percent is the job-wide completion in the range [0, 100].
	Percent float64
}

// ProgressStage identifies the current phase of an operation.
type ProgressStage uint8

// Progress stages for a patch run.
const (
	// StageDiscovering indicates the manifest is being fetched.
	StageDiscovering ProgressStage = iota

	// StageDownloading indicates patch files are being transferred.
	StageDownloading

	// StageVerifying indicates a downloaded patch is being checked.
	StageVerifying

	// StageApplying indicates patch records are being written to the archive.
	StageApplying

	// StageSaving indicates the archive is being persisted.
	StageSaving
)

// String returns the string representation of the stage.
func (s ProgressStage) String() string {
	switch s {
	case StageDiscovering:
		return "discovering"
	case StageDownloading:
		return "downloading"
	case StageVerifying:
		return "verifying"
	case StageApplying:
		return "applying"
	case StageSaving:
		return "saving"
	default:
		return "unknown"
	}
}

// ProgressFunc receives progress updates during operations.
// Implementations must be safe for concurrent calls.
type ProgressFunc func(ProgressEvent)

// Percent returns done/total as a percentage, or 0 when total is unknown.
func Percent(done, total uint64) float64 {
	if total == 0 {
		return 0
	}
	if done >= total {
		return 100
	}
	return float64(done) * 100 / float64(total)
}
