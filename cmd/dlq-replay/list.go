package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cuongbtq/hls-transcoder/internal/deadletter"
	"github.com/spf13/cobra"
)

const stampLayout = "2006-01-02 15:04:05"

func newListCommand(ctx *commandContext) *cobra.Command {
	var (
		jobID       string
		reason      string
		pendingOnly bool
		limit       int
		cursor      string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List dead letters, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit <= 0 {
				return fmt.Errorf("--limit must be positive")
			}

			filter := deadletter.Filter{
				JobID:       jobID,
				Reason:      reason,
				PendingOnly: pendingOnly,
				PageSize:    limit,
			}
			if cursor != "" {
				c, err := deadletter.DecodeCursor(cursor)
				if err != nil {
					return fmt.Errorf("invalid --cursor: %w", err)
				}
				filter.Cursor = c
			}

			sess, err := ctx.open(cmd.Context())
			if err != nil {
				return err
			}
			defer sess.close()

			entries, err := sess.ledger.List(cmd.Context(), filter)
			if err != nil {
				return err
			}

			var next string
			if len(entries) > limit {
				entries = entries[:limit]
				last := entries[len(entries)-1]
				next = deadletter.EncodeCursor(&deadletter.Cursor{FailedAt: last.FailedAt, ID: last.ID})
			}

			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "No dead letters")
				return nil
			}
			fmt.Fprintln(out, renderEntries(entries))
			if next != "" {
				fmt.Fprintf(out, "Next page: --cursor %s\n", next)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&jobID, "job", "", "Only entries for this job id")
	cmd.Flags().StringVar(&reason, "reason", "", "Only entries with this failure reason")
	cmd.Flags().BoolVar(&pendingOnly, "pending", false, "Only entries that were never replayed")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum entries to show")
	cmd.Flags().StringVar(&cursor, "cursor", "", "Continue from a previous page")

	return cmd
}

func renderEntries(entries []deadletter.Entry) string {
	headers := []string{"ID", "Job", "Reason", "Failed", "Replayed", "Detail"}
	aligns := []columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft}

	rows := make([][]string, 0, len(entries))
	for _, entry := range entries {
		replayed := "-"
		if entry.ReplayedAt != nil {
			replayed = entry.ReplayedAt.Local().Format(stampLayout)
		}
		rows = append(rows, []string{
			strconv.FormatInt(entry.ID, 10),
			entry.JobID,
			entry.Reason,
			entry.FailedAt.Local().Format(stampLayout),
			replayed,
			truncate(entry.Detail, 60),
		})
	}
	return renderTable(headers, rows, aligns)
}

func truncate(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
