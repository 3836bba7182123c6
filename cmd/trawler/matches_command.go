package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"trawler/internal/match"
	"trawler/internal/store"
)

type matchView struct {
	MatchID      int64  `json:"match_id"`
	SeqNum       int64  `json:"seq_num"`
	StartTime    int64  `json:"start_time"`
	Duration     int    `json:"duration"`
	Winner       string `json:"winner"`
	RadiantScore int    `json:"radiant_score"`
	DireScore    int    `json:"dire_score"`
	Region       int    `json:"region"`
	WinningDraft []int  `json:"winning_draft"`
	ReplayURL    string `json:"replay_url,omitempty"`
}

func newMatchesCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "matches",
		Short: "List recently persisted matches",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ctx.configValue()
			stdout := cmd.OutOrStdout()

			if _, err := os.Stat(cfg.DatabasePath()); errors.Is(err, fs.ErrNotExist) {
				if asJSON {
					return writeJSON(cmd, []matchView{})
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
				views := make([]matchView, 0, len(records))
				for _, rec := range records {
					views = append(views, newMatchView(rec))
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
					strconv.FormatInt(rec.SeqNum, 10),
					time.Unix(rec.StartTime, 0).UTC().Format("2006-01-02 15:04"),
					formatMatchDuration(rec.Duration),
					string(rec.Winner),
					fmt.Sprintf("%d-%d", rec.RadiantScore, rec.DireScore),
				})
			}
			headers := []string{"Match", "Sequence", "Started", "Duration", "Winner", "Score"}
			aligns := []columnAlignment{alignRight, alignRight, alignLeft, alignRight, alignLeft, alignRight}
			fmt.Fprintln(stdout, renderTable(headers, rows, aligns))
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of matches to list")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of a table")
	return cmd
}

func newMatchView(rec match.Persisted) matchView {
	return matchView{
		MatchID:      rec.MatchID,
		SeqNum:       rec.SeqNum,
		StartTime:    rec.StartTime,
		Duration:     rec.Duration,
		Winner:       string(rec.Winner),
		RadiantScore: rec.RadiantScore,
		DireScore:    rec.DireScore,
		Region:       rec.Region,
		WinningDraft: rec.WinningDraft,
		ReplayURL:    rec.ReplayURL,
	}
}

func formatMatchDuration(seconds int) string {
	if seconds <= 0 {
		return "-"
	}
	return (time.Duration(seconds) * time.Second).String()
}
