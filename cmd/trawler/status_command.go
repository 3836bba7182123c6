package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"trawler/internal/preflight"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon, cursor, and database status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.configValue()
			stdout := cmd.OutOrStdout()
			colorize := shouldColorize(stdout)

			for _, line := range renderSectionHeader("Daemon", colorize) {
				fmt.Fprintln(stdout, line)
			}
			fmt.Fprintln(stdout, daemonStatusLine(cfg, colorize))
			fmt.Fprintln(stdout, notificationsStatusLine(cfg, colorize))
			fmt.Fprintln(stdout)

			for _, line := range renderSectionHeader("Ingest", colorize) {
				fmt.Fprintln(stdout, line)
			}
			fmt.Fprintln(stdout, cursorStatusLine(cfg, colorize))
			db := preflight.CheckStoreFromConfig(cmd.Context(), cfg)
			dbKind := statusOK
			if !db.Passed {
				dbKind = statusError
			}
			fmt.Fprintln(stdout, renderStatusLine(db.Name, dbKind, db.Detail, colorize))
			fmt.Fprintln(stdout, replayStatusLine(cfg, colorize))
			fmt.Fprintln(stdout)

			for _, line := range renderSectionHeader("Directories", colorize) {
				fmt.Fprintln(stdout, line)
			}
			fmt.Fprintln(stdout, directoryStatusLine("Data directory", cfg.Paths.DataDir, colorize))
			fmt.Fprintln(stdout, directoryStatusLine("Log directory", cfg.Paths.LogDir, colorize))
			if cfg.Replays.Enabled {
				fmt.Fprintln(stdout, directoryStatusLine("Replay directory", cfg.Paths.ReplayDir, colorize))
			}
			return nil
		},
	}
}
