package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/cuongbtq/hls-transcoder/internal/deadletter"
	"github.com/spf13/cobra"
)

// replayBatch bounds the page size used by --all-pending
const replayBatch = 100

func newReplayCommand(ctx *commandContext) *cobra.Command {
	var (
		allPending bool
		reason     string
	)

	cmd := &cobra.Command{
		Use:   "replay [id...]",
		Short: "Re-enqueue dead-lettered jobs",
		Long: "Re-enqueue the jobs of the given dead-letter entries. Jobs that completed in the " +
			"meantime are skipped by the workers.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if allPending == (len(args) > 0) {
				return errors.New("pass either entry ids or --all-pending")
			}

			ids := make([]int64, 0, len(args))
			for _, arg := range args {
				id, err := strconv.ParseInt(arg, 10, 64)
				if err != nil || id <= 0 {
					return fmt.Errorf("invalid entry id %q", arg)
				}
				ids = append(ids, id)
			}

			sess, err := ctx.open(cmd.Context())
			if err != nil {
				return err
			}
			defer sess.close()

			if allPending {
				ids, err = pendingIDs(cmd, sess.ledger, reason)
				if err != nil {
					return err
				}
			}

			out := cmd.OutOrStdout()
			var failed int
			for _, id := range ids {
				entry, err := sess.ledger.Replay(cmd.Context(), id, sess.queue)
				if err != nil {
					failed++
					fmt.Fprintf(out, "%d: %v\n", id, err)
					continue
				}
				fmt.Fprintf(out, "%d: replayed job %s\n", id, entry.JobID)
			}

			fmt.Fprintf(out, "Replayed %d of %d\n", len(ids)-failed, len(ids))
			if failed > 0 {
				return fmt.Errorf("%d replays failed", failed)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&allPending, "all-pending", false, "Replay every entry that was never replayed")
	cmd.Flags().StringVar(&reason, "reason", "", "With --all-pending, only entries with this failure reason")

	return cmd
}

// pendingIDs pages through every unreplayed entry before any replay so that
// the marks written by Replay do not shift the pages.
func pendingIDs(cmd *cobra.Command, l ledger, reason string) ([]int64, error) {
	filter := deadletter.Filter{PendingOnly: true, Reason: reason, PageSize: replayBatch}

	var ids []int64
	for {
		entries, err := l.List(cmd.Context(), filter)
		if err != nil {
			return nil, err
		}

		more := len(entries) > replayBatch
		if more {
			entries = entries[:replayBatch]
		}
		for _, entry := range entries {
			ids = append(ids, entry.ID)
		}
		if !more {
			return ids, nil
		}

		last := entries[len(entries)-1]
		filter.Cursor = &deadletter.Cursor{FailedAt: last.FailedAt, ID: last.ID}
	}
}
