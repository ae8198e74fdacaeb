package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	beam "github.com/beamguides/beam-patcher"
)

func newPatchCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:     "patch",
		Aliases: []string{"run", "update"},
		Short:   "Download and apply pending patches",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withPatcher(cmd, func(p *beam.Patcher) error {
				res, err := p.Run(cmd.Context())
				if res != nil {
					printResult(cmd.OutOrStdout(), res)
				}
				return err
			})
		},
	}
}

func newApplyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "apply FILE",
		Short: "Apply a local patch file without moving the watermark",
		Long: "Apply a .beam, .thor, .rgz or .gpf file from disk. The file is verified " +
			"before anything is written. Requires patcher.allow_manual_patch.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withPatcher(cmd, func(p *beam.Patcher) error {
				res, err := p.ApplyLocal(cmd.Context(), args[0])
				if res != nil {
					printResult(cmd.OutOrStdout(), res)
				}
				return err
			})
		},
	}
}

func newCheckCommand(ctx *commandContext) *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Show the patches the next run would apply",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withPatcher(cmd, func(p *beam.Patcher) error {
				plan, err := p.Check(cmd.Context())
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(cmd, planView(plan))
				}

				out := cmd.OutOrStdout()
				switch {
				case !plan.Known:
					fmt.Fprintf(out, "Watermark %q is not in the manifest; every patch is pending\n", plan.Watermark)
				case plan.Watermark == "":
					fmt.Fprintln(out, "No patches applied yet")
				default:
					fmt.Fprintf(out, "Watermark: %s\n", plan.Watermark)
				}
				if len(plan.Pending) == 0 {
					fmt.Fprintln(out, "Archive is up to date")
					return nil
				}
				t := newTable(countCol("#"), textCol("Patch"), textCol("Digest"))
				for i, e := range plan.Pending {
					t.add(i+1, e.Filename, digestText(e.Digest.String()))
				}
				fmt.Fprintln(out, t.render())
				fmt.Fprintf(out, "%d of %d patches pending\n", len(plan.Pending), plan.Manifest.Len())
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output JSON")
	return cmd
}

type planJSON struct {
	Watermark string   `json:"watermark"`
	Known     bool     `json:"known"`
	Total     int      `json:"total"`
	Pending   []string `json:"pending"`
}

func planView(plan *beam.Plan) planJSON {
	v := planJSON{
		Watermark: plan.Watermark,
		Known:     plan.Known,
		Total:     plan.Manifest.Len(),
		Pending:   make([]string, 0, len(plan.Pending)),
	}
	for _, e := range plan.Pending {
		v.Pending = append(v.Pending, e.Filename)
	}
	return v
}

// digestText shortens a digest for tables.
func digestText(d string) string {
	if d == "" {
		return "-"
	}
	alg, hex, ok := strings.Cut(d, ":")
	if !ok || len(hex) <= 16 {
		return d
	}
	return alg + ":" + hex[:16]
}
