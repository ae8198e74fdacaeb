package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/beamguides/beam-patcher/internal/beamtype"
)

// Outcome is the overall result of a run.
type Outcome uint8

const (
	// OutcomeSuccess means every pending patch was applied.
	OutcomeSuccess Outcome = iota

	// OutcomePartial means some patches were applied before one failed.
	OutcomePartial

	// OutcomeFailure means nothing was applied and a patch failed.
	OutcomeFailure
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomePartial:
		return "partial"
	case OutcomeFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// Failure describes the patch that stopped a run.
type Failure struct {
	File string

	// Stage is the state the run was in when File failed.
	Stage State

	Kind beamtype.ErrorKind
	Err  error
}

func (f Failure) Error() string {
	return fmt.Sprintf("%s: %s: %v", f.File, f.Stage, f.Err)
}

func (f Failure) Unwrap() error { return f.Err }

// Result is the terminal report of a run.
type Result struct {
	RunID   string
	Target  string
	Outcome Outcome

	// Applied lists committed patches in application order.
	Applied []string

	// Failed holds the failure that ended the run, if any.
	Failed []Failure

	// Skipped lists pending patches never attempted because of a failure.
	Skipped []string

	// Watermark is the last committed patch after the run.
	Watermark string
}

// Err joins the failures, or returns nil on success.
func (r *Result) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	errs := make([]error, 0, len(r.Failed))
	for _, f := range r.Failed {
		errs = append(errs, f)
	}
	return errors.Join(errs...)
}

// Summary returns a one-line description for logs and the CLI.
func (r *Result) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %d applied", r.Outcome, len(r.Applied))
	if len(r.Failed) > 0 {
		fmt.Fprintf(&b, ", %d failed", len(r.Failed))
	}
	if len(r.Skipped) > 0 {
		fmt.Fprintf(&b, ", %d skipped", len(r.Skipped))
	}
	if r.Watermark != "" {
		fmt.Fprintf(&b, " (at %s)", r.Watermark)
	}
	return b.String()
}

func (r *Result) finish() {
	switch {
	case len(r.Failed) == 0:
		r.Outcome = OutcomeSuccess
	case len(r.Applied) > 0:
		r.Outcome = OutcomePartial
	default:
		r.Outcome = OutcomeFailure
	}
}
