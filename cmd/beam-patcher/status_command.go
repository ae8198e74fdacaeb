package main

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/beamguides/beam-patcher/status"
)

// version is the launcher release, set at build time with -ldflags.
var launcherVersion = "dev"

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var current string
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the launcher version check and game server status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if cfg.Status.VersionURL == "" && cfg.Status.ServerStatusURL == "" {
				return errors.New("status.version_url and status.server_status_url are not configured")
			}
			client := &http.Client{Timeout: cfg.Timeout()}
			log := ctx.logger(cmd)

			view := statusJSON{Current: current}
			if cfg.Status.VersionURL != "" {
				info, err := status.FetchVersion(cmd.Context(), client, cfg.Status.VersionURL)
				if err != nil {
					log.Warn("version check failed", "url", cfg.Status.VersionURL, "error", err)
				} else {
					view.Version = info
					view.UpdateAvailable = info.NewerThan(current)
				}
			}
			if cfg.Status.ServerStatusURL != "" {
				st, err := status.FetchServerStatus(cmd.Context(), client, cfg.Status.ServerStatusURL)
				if err != nil {
					log.Warn("server status failed", "url", cfg.Status.ServerStatusURL, "error", err)
				} else {
					view.Server = st
				}
			}
			if view.Version == nil && view.Server == nil {
				return errors.New("no status document could be read")
			}
			if jsonOut {
				return writeJSON(cmd, view)
			}
			printStatus(cmd, view)
			return nil
		},
	}
	cmd.Flags().StringVar(&current, "current", launcherVersion, "Installed launcher version to compare against")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output JSON")
	return cmd
}

type statusJSON struct {
	Current         string               `json:"current"`
	UpdateAvailable bool                 `json:"update_available"`
	Version         *status.VersionInfo  `json:"version,omitempty"`
	Server          *status.ServerStatus `json:"server,omitempty"`
}

func printStatus(cmd *cobra.Command, view statusJSON) {
	out := cmd.OutOrStdout()
	if v := view.Version; v != nil {
		fmt.Fprintf(out, "Latest launcher: %s (installed %s)\n", v.Version, view.Current)
		switch {
		case view.UpdateAvailable && v.Required:
			fmt.Fprintln(out, "A required update is available")
		case view.UpdateAvailable:
			fmt.Fprintln(out, "An update is available")
		}
		if v.DownloadURL != "" && view.UpdateAvailable {
			fmt.Fprintf(out, "Download: %s\n", v.DownloadURL)
		}
		if v.Changelog != "" {
			fmt.Fprintf(out, "Changes: %s\n", v.Changelog)
		}
	}
	if s := view.Server; s != nil {
		t := newTable(textCol("Server"), textCol("Status"))
		t.add("Login", onlineText(s.LoginOnline))
		t.add("Character", onlineText(s.CharOnline))
		t.add("Map", onlineText(s.MapOnline))
		if s.Players > 0 {
			t.add("Players", s.Players)
		}
		if !s.CheckedAt.IsZero() {
			t.add("Checked", formatTime(s.CheckedAt))
		}
		fmt.Fprintln(out, t.render())
		if s.Message != "" {
			fmt.Fprintln(out, s.Message)
		}
	}
}

func onlineText(up bool) string {
	if up {
		return "online"
	}
	return "offline"
}
