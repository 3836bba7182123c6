package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"trawler/internal/preflight"
	"trawler/internal/store"
)

func newStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Summarize the persisted match corpus",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.configValue()
			stdout := cmd.OutOrStdout()

			if _, err := os.Stat(cfg.DatabasePath()); errors.Is(err, fs.ErrNotExist) {
				fmt.Fprintln(stdout, "No matches persisted yet")
				return nil
			}

			st, err := store.Open(cfg)
			if err != nil {
				return fmt.Errorf("open match database: %w", err)
			}
			defer st.Close()

			stats, err := st.Stats(cmd.Context())
			if err != nil {
				return err
			}
			if stats.Matches == 0 {
				fmt.Fprintln(stdout, "No matches persisted yet")
				return nil
			}

			printer := message.NewPrinter(language.English)
			probe := preflight.ProbeCursor(cfg.CursorPath())
			cursorValue := "not anchored"
			switch {
			case probe.Err != "":
				cursorValue = "unreadable"
			case probe.Present:
				cursorValue = printer.Sprintf("%d", probe.SeqNum)
			}

			rows := [][]string{
				{"Matches", printer.Sprintf("%d", stats.Matches)},
				{"Lowest sequence", printer.Sprintf("%d", stats.MinSeqNum)},
				{"Highest sequence", printer.Sprintf("%d", stats.MaxSeqNum)},
				{"Oldest start", formatStatsTime(stats.OldestStart)},
				{"Newest start", formatStatsTime(stats.NewestStart)},
				{"Last insert", formatStatsTime(stats.LastInsert)},
				{"Cursor", cursorValue},
			}
			fmt.Fprintln(stdout, renderTable([]string{"Metric", "Value"}, rows, []columnAlignment{alignLeft, alignRight}))
			return nil
		},
	}
}

func formatStatsTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format("2006-01-02 15:04:05")
}
