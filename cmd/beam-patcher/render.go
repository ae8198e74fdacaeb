package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	beam "github.com/beamguides/beam-patcher"
)

func outcomeColor(o beam.Outcome, enabled bool) *color.Color {
	var c *color.Color
	switch o {
	case beam.OutcomeSuccess:
		c = color.New(color.FgGreen, color.Bold)
	case beam.OutcomePartial:
		c = color.New(color.FgYellow, color.Bold)
	default:
		c = color.New(color.FgRed, color.Bold)
	}
	if enabled {
		c.EnableColor()
	} else {
		c.DisableColor()
	}
	return c
}

// printResult writes a run summary and, on failure, a table of failed
// patches.
func printResult(out io.Writer, res *beam.Result) {
	c := outcomeColor(res.Outcome, isTerminal(out))
	fmt.Fprintf(out, "%s %s\n", c.Sprint(strings.ToUpper(res.Outcome.String())), res.Summary())
	if len(res.Failed) > 0 {
		t := newTable(textCol("Patch"), textCol("Stage"), textCol("Kind"), textCol("Error"))
		for _, f := range res.Failed {
			t.add(f.File, f.Stage.String(), f.Kind.String(), errorText(f.Err))
		}
		fmt.Fprintln(out, t.render())
	}
	if len(res.Skipped) > 0 {
		fmt.Fprintf(out, "Skipped: %s\n", strings.Join(res.Skipped, ", "))
	}
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
