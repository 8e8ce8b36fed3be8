package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/CharanSaiVaddi/purrctl/internal/apiclient"
	"github.com/CharanSaiVaddi/purrctl/internal/catalog"
	"github.com/CharanSaiVaddi/purrctl/internal/job"
)

func ReposCmd(client func() *apiclient.Client) *cobra.Command {
	reposCmd := &cobra.Command{
		Use:   "repos",
		Short: "List the repos known to the API",
		RunE: func(cmd *cobra.Command, args []string) error {
			repos, err := client().GetRepos(cmd.Context())
			if err != nil {
				return err
			}
			if len(repos) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No repos.")
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tSUITE\tFS PATH")
			for _, r := range repos {
				fmt.Fprintf(w, "%v\t%v\t%v\n", field(r, "name"), field(r, "suite"), field(r, "fs_path"))
			}
			return w.Flush()
		},
	}

	addCmd := &cobra.Command{
		Use:   "add <repo(json)>",
		Short: "Register a repo (needs fs_path)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var repo catalog.Document
			if err := json.Unmarshal([]byte(args[0]), &repo); err != nil {
				return fmt.Errorf("invalid repo JSON: %w", err)
			}
			out, err := client().CreateRepo(cmd.Context(), repo)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out["message"])
			return nil
		},
	}
	reposCmd.AddCommand(addCmd)
	return reposCmd
}

func RastersCmd(client func() *apiclient.Client) *cobra.Command {
	rastersCmd := &cobra.Command{
		Use:   "rasters",
		Short: "Manage raster records",
	}
	loadCmd := &cobra.Command{
		Use:   "load <file>",
		Short: "Upload rasters from a JSON array file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var rasters []catalog.Document
			if err := json.Unmarshal(data, &rasters); err != nil {
				return fmt.Errorf("invalid rasters file: %w", err)
			}
			n, err := client().CreateRasters(cmd.Context(), rasters)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Loaded %d raster(s).\n", n)
			return nil
		},
	}
	rastersCmd.AddCommand(loadCmd)
	return rastersCmd
}

func SearchCmd(client func() *apiclient.Client) *cobra.Command {
	var (
		uwis  string
		wordz string
		limit int
		token string
		full  bool
	)
	searchCmd := &cobra.Command{
		Use:   "search",
		Short: "Search rasters by uwi prefix, one page at a time",
		RunE: func(cmd *cobra.Command, args []string) error {
			prefixes := job.ParseUWIInput(uwis)
			if len(prefixes) == 0 {
				return fmt.Errorf("provide at least one --uwi")
			}
			res, err := client().SearchRasters(cmd.Context(), catalog.SearchRequest{
				MaxResults:      limit,
				UWIs:            prefixes,
				Wordz:           wordz,
				PaginationToken: token,
			})
			if err != nil {
				return err
			}
			if !full {
				for i, d := range res.Data {
					res.Data[i] = catalog.Summarize(d)
				}
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(res)
		},
	}
	searchCmd.Flags().StringVar(&uwis, "uwi", "", "Uwi prefixes separated by commas or pipes")
	searchCmd.Flags().StringVar(&wordz, "wordz", "", "Only rasters whose words contain this text")
	searchCmd.Flags().IntVar(&limit, "max", catalog.DefaultResults, "Page size (capped by the API)")
	searchCmd.Flags().StringVar(&token, "token", "", "paginationToken from the previous page")
	searchCmd.Flags().BoolVar(&full, "full", false, "Print every raster field")
	searchCmd.MarkFlagRequired("uwi")
	return searchCmd
}

func field(d map[string]any, k string) any {
	if v, ok := d[k]; ok && v != nil {
		return v
	}
	return "-"
}
