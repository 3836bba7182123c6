package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"trawler/internal/store"
)

type draftView struct {
	MatchID int64  `json:"match_id"`
	Winner  string `json:"winner"`
	Heroes  []int  `json:"heroes"`
}

func newDraftsCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "drafts",
		Short: "List winning drafts from recently persisted matches",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.configValue()
			stdout := cmd.OutOrStdout()

			if _, err := os.Stat(cfg.DatabasePath()); errors.Is(err, fs.ErrNotExist) {
				if asJSON {
					return writeJSON(cmd, []draftView{})
				}
				fmt.Fprintln(stdout, "No matches persisted yet")
				return nil
			}

			st, err := store.Open(cfg)
			if err != nil {
				return fmt.Errorf("open match database: %w", err)
			}
			defer st.Close()

			records, err := st.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}

			if asJSON {
				views := make([]draftView, 0, len(records))
				for _, rec := range records {
					views = append(views, draftView{
						MatchID: rec.MatchID,
						Winner:  string(rec.Winner),
						Heroes:  rec.WinningDraft,
					})
				}
				return writeJSON(cmd, views)
			}

			if len(records) == 0 {
				fmt.Fprintln(stdout, "No matches persisted yet")
				return nil
			}

			rows := make([][]string, 0, len(records))
			for _, rec := range records {
				rows = append(rows, []string{
					strconv.FormatInt(rec.MatchID, 10),
					string(rec.Winner),
					formatDraft(rec.WinningDraft),
				})
			}
			headers := []string{"Match", "Winner", "Draft"}
			aligns := []columnAlignment{alignRight, alignLeft, alignLeft}
			fmt.Fprintln(stdout, renderTable(headers, rows, aligns))
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of drafts to list")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of a table")
	return cmd
}

func formatDraft(heroes []int) string {
	if len(heroes) == 0 {
		return "-"
	}
	parts := make([]string, len(heroes))
	for i, id := range heroes {
		parts[i] = strconv.Itoa(id)
	}
	return strings.Join(parts, ", ")
}
