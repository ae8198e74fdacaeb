package main

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	beam "github.com/beamguides/beam-patcher"
	"github.com/beamguides/beam-patcher/gamefiles"
	"github.com/beamguides/beam-patcher/status"
)

func newCompactCommand(ctx *commandContext) *cobra.Command {
	var minRatio float64

	cmd := &cobra.Command{
		Use:   "compact",
		Short: "Reclaim space held by replaced archive members",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if minRatio < 0 || minRatio >= 1 {
				return fmt.Errorf("--min-ratio must be in [0, 1), got %g", minRatio)
			}
			return ctx.withPatcher(cmd, func(p *beam.Patcher) error {
				out := cmd.OutOrStdout()
				usage := p.Archive().Usage()
				if usage.DeadRatio() < minRatio {
					fmt.Fprintf(out, "%s has %s dead space (%.0f%%), below --min-ratio\n",
						p.Target(), humanize.IBytes(usage.Dead()), usage.DeadRatio()*100)
					return nil
				}
				before, after, err := p.Compact()
				if err != nil {
					return err
				}
				t := newTable(textCol("Data region"), bytesCol("Before"), bytesCol("After"))
				t.add("Live", before.Live, after.Live)
				t.add("Dead", before.Dead(), after.Dead())
				t.total("Total", before.Data, after.Data)
				fmt.Fprintln(out, t.render())
				fmt.Fprintf(out, "Compacted %s, reclaimed %s\n", p.Target(), humanize.IBytes(before.Data-after.Data))
				return nil
			})
		},
	}
	cmd.Flags().Float64Var(&minRatio, "min-ratio", 0, "Only compact when at least this fraction of the data is dead")
	return cmd
}

func newVerifyFilesCommand(ctx *commandContext) *cobra.Command {
	var manifestURL string
	var all, jsonOut bool

	cmd := &cobra.Command{
		Use:   "verify-files",
		Short: "Check installed game files against the file manifest",
		Long: "Check every file listed by the file manifest (verify.manifest_url) and " +
			"the critical files (verify.critical) in the game directory. Missing and " +
			"corrupted files are listed; the command fails when any are found.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if manifestURL == "" {
				manifestURL = cfg.Verify.ManifestURL
			}
			if manifestURL == "" && len(cfg.Verify.Critical) == 0 {
				return errors.New("verify.manifest_url and verify.critical are not configured")
			}
			log := ctx.logger(cmd)

			var files []status.FileEntry
			if manifestURL != "" {
				m, err := status.FetchFileManifest(cmd.Context(), &http.Client{Timeout: cfg.Timeout()}, manifestURL)
				if err != nil {
					return err
				}
				files = m.Files
			}
			for _, name := range cfg.Verify.Critical {
				files = append(files, status.FileEntry{Path: name})
			}

			checker := gamefiles.New(cfg.Patcher.GameDir,
				gamefiles.WithWorkers(cfg.Download.Workers),
				gamefiles.WithLogger(log))
			rep, err := checker.Verify(cmd.Context(), files)
			if err != nil {
				return err
			}
			if jsonOut {
				if err := writeJSON(cmd, reportView(rep)); err != nil {
					return err
				}
			} else {
				printReport(cmd, rep, all)
			}
			if !rep.OK() {
				return fmt.Errorf("%d corrupted and %d missing of %d files", len(rep.Corrupted), len(rep.Missing), rep.Total)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&manifestURL, "manifest", "", "File manifest URL (default: verify.manifest_url)")
	cmd.Flags().BoolVar(&all, "all", false, "List verified files too")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output JSON")
	return cmd
}

type reportJSON struct {
	Total     int      `json:"total"`
	Verified  int      `json:"verified"`
	Corrupted []string `json:"corrupted"`
	Missing   []string `json:"missing"`
}

func reportView(rep *gamefiles.Report) reportJSON {
	view := reportJSON{
		Total:     rep.Total,
		Verified:  rep.Verified,
		Corrupted: rep.Corrupted,
		Missing:   rep.Missing,
	}
	if view.Corrupted == nil {
		view.Corrupted = []string{}
	}
	if view.Missing == nil {
		view.Missing = []string{}
	}
	return view
}

func printReport(cmd *cobra.Command, rep *gamefiles.Report, all bool) {
	out := cmd.OutOrStdout()
	t := newTable(textCol("File"), textCol("Result"), bytesCol("Size"), textCol("Detail"))
	var rows int
	for _, f := range rep.Files {
		if f.Outcome == gamefiles.Verified && !all {
			continue
		}
		var size any = "-"
		if f.Outcome != gamefiles.Missing {
			size = f.Size
		}
		t.add(f.Path, f.Outcome.String(), size, f.Reason)
		rows++
	}
	if rows > 0 {
		fmt.Fprintln(out, t.render())
	}
	fmt.Fprintf(out, "%d of %d files verified, %d corrupted, %d missing\n",
		rep.Verified, rep.Total, len(rep.Corrupted), len(rep.Missing))
}
