package fetch

import "time"

// File names one file to download.
type File struct {
	// Name is the file name relative to each mirror's base URL and to the
	// staging directory.
	Name string

	// Size is the expected size, used for progress before the first
	// response. Zero means unknown.
	Size int64
}

// TaskState is the lifecycle state of one download.
type TaskState uint8

const (
	Pending TaskState = iota
	InProgress
	Completed
	FailedRetryable
	FailedFatal
)

func (s TaskState) String() string {
	switch s {
	case Pending:
		return "pending"
	case InProgress:
		return "in progress"
	case Completed:
		return "completed"
	case FailedRetryable:
		return "failed (retryable)"
	case FailedFatal:
		return "failed"
	default:
		return "unknown"
	}
}

// Attempt records one request against one mirror.
type Attempt struct {
	Mirror string
	URL    string

	// Offset is the resume offset sent with the request.
	Offset int64

	// Status is the HTTP status, or zero when no response arrived.
	Status int

	// Bytes is the number of bytes written during the attempt.
	Bytes int64

	Err      error
	Duration time.Duration
}

// Result is the terminal outcome of one file.
type Result struct {
	Name string

	// Path is the staged file. It is set only when State is Completed.
	Path string

	State TaskState
	Size  int64

	// Resumed is true when the final attempt continued a part file.
	Resumed bool

	// Cached is true when the staged file already existed.
	Cached bool

	Attempts []Attempt
	Err      error
}

// Task is the state of one download. A worker owns its Task until the
// Result is published; Job.Tasks returns copies.
type Task struct {
	File File

	// URL is the address of the current or last attempt.
	URL string

	// StagingPath is the final path; bytes are written to StagingPath+".part".
	StagingPath string

	// ResumeOffset is the part file size at the start of the current attempt.
	ResumeOffset int64

	Attempts []Attempt
	State    TaskState
}
