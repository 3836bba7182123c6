package main

import (
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"trawler/internal/logs"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var follow bool
	var lines int
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show recent daemon log output",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.configValue()
			// The daemon repoints this at the newest run log on startup.
			logPath := filepath.Join(cfg.Paths.LogDir, "trawler.log")

			if follow {
				signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
				defer cancel()
				return logs.Follow(signalCtx, logPath, lines, cmd.OutOrStdout())
			}

			tail, err := logs.Tail(logPath, lines)
			if err != nil {
				return err
			}
			if len(tail) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No log output yet")
				return nil
			}
			for _, line := range tail {
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Stream new log lines until interrupted")
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of trailing lines to show")
	return cmd
}
