package main

import (
	"fmt"

	"github.com/spf13/cobra"

	beam "github.com/beamguides/beam-patcher"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show applied patches and the last run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withPatcher(cmd, func(p *beam.Patcher) error {
				out := cmd.OutOrStdout()
				last, err := p.LastRun(cmd.Context())
				if err != nil {
					return err
				}
				if last != nil {
					fmt.Fprintf(out, "Last run %s at %s: %s, %d applied, %d failed\n",
						last.ID, formatTime(last.StartedAt), last.Outcome, last.Applied, last.Failed)
					if last.ErrorMessage != "" {
						fmt.Fprintf(out, "  %s\n", last.ErrorMessage)
					}
				}

				history, err := p.History(cmd.Context(), limit)
				if err != nil {
					return err
				}
				if len(history) == 0 {
					fmt.Fprintln(out, "No patches applied")
					return nil
				}
				t := newTable(textCol("Applied"), textCol("Patch"), countCol("Records"), textCol("Digest"))
				for _, a := range history {
					t.add(formatTime(a.AppliedAt), a.Patch, a.Records, digestText(a.Digest))
				}
				fmt.Fprintln(out, t.render())
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum rows to show (0 for all)")
	return cmd
}

func newResetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Forget the watermark so the next run applies every patch",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withPatcher(cmd, func(p *beam.Patcher) error {
				if err := p.Reset(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Watermark cleared for %s\n", p.Target())
				return nil
			})
		},
	}
}
