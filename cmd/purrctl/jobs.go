package main

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/CharanSaiVaddi/purrctl/internal/apiclient"
	"github.com/CharanSaiVaddi/purrctl/internal/config"
	"github.com/CharanSaiVaddi/purrctl/internal/job"
	"github.com/CharanSaiVaddi/purrctl/internal/storage"
)

func StatusCmd(client func() *apiclient.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "status <job-id>",
		Short: "Fetch a job once and print it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := client().GetJobByID(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(doc)
		},
	}
}

func JobsCmd(client func() *apiclient.Client) *cobra.Command {
	var status string
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "List jobs in a status on the API",
		RunE: func(cmd *cobra.Command, args []string) error {
			docs, err := client().ListJobs(cmd.Context(), job.Status(status))
			if err != nil {
				return err
			}
			if len(docs) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "No %s jobs.\n", status)
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tDIRECTIVE\tSTATUS\tTTL")
			for _, d := range docs {
				ttl, _ := storage.Int64(d["ttl"])
				fmt.Fprintf(w, "%s\t%v\t%s\t%s\n", d.ID(), field(d, "directive"), d.Status(), time.Unix(ttl, 0).Format(time.DateTime))
			}
			return w.Flush()
		},
	}
	jobsCmd.Flags().StringVar(&status, "status", string(job.StatusPending), "Status to list (pending, completed, failed)")
	return jobsCmd
}

func UpdateCmd(cfg *config.Config, client func() *apiclient.Client) *cobra.Command {
	var (
		status string
		sets   []string
	)
	updateCmd := &cobra.Command{
		Use:   "update <job-id>",
		Short: "Update fields of an existing job (e.g. mark it completed)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fields, err := parseAssignments(sets)
			if err != nil {
				return err
			}
			if status != "" {
				fields["status"] = status
			}
			if len(fields) == 0 {
				return fmt.Errorf("nothing to update: use --status or --set")
			}
			ttl := time.Now().Add(cfg.Lease()).Unix()
			out, err := client().UpdateJob(cmd.Context(), args[0], ttl, fields)
			if err != nil {
				return err
			}
			return printJSON(out)
		},
	}
	updateCmd.Flags().StringVar(&status, "status", "", "New status (pending, completed, failed)")
	updateCmd.Flags().StringArrayVar(&sets, "set", nil, "Extra field as key=value (repeatable)")
	return updateCmd
}

func parseAssignments(sets []string) (map[string]any, error) {
	fields := make(map[string]any, len(sets)+1)
	for _, kv := range sets {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --set %q, want key=value", kv)
		}
		if k == "id" || k == "ttl" {
			return nil, fmt.Errorf("%s cannot be set directly", k)
		}
		fields[k] = v
	}
	return fields, nil
}
