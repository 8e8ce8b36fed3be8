package main

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/CharanSaiVaddi/purrctl/internal/job"
	"github.com/CharanSaiVaddi/purrctl/internal/storage"
)

func HistoryCmd(journal storage.Journal) *cobra.Command {
	var (
		outcome string
		limit   int
	)
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "List finished submissions recorded on this machine",
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := journal.ListCompletions(job.Outcome(outcome), limit)
			if err != nil {
				return fmt.Errorf("failed to list completions: %w", err)
			}
			if len(entries) == 0 {
				fmt.Println("No submissions recorded.")
				return nil
			}
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "FINISHED\tJOB ID\tDIRECTIVE\tOUTCOME\tSTATUS\tPOLLS")
			for _, c := range entries {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\n",
					time.Unix(c.CompletedAt, 0).Format(time.DateTime), orDash(c.JobID), c.Directive, c.Outcome, orDash(string(c.Status)), c.Polls)
			}
			return w.Flush()
		},
	}
	historyCmd.Flags().StringVar(&outcome, "outcome", "", "Only show this outcome (completed, failed, timed_out, submit_error, poll_error)")
	historyCmd.Flags().IntVar(&limit, "limit", 20, "Maximum rows, 0 for all")
	return historyCmd
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
