package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/CharanSaiVaddi/purrctl/internal/apiclient"
	"github.com/CharanSaiVaddi/purrctl/internal/config"
	"github.com/CharanSaiVaddi/purrctl/internal/storage"
)

func newRootCmd(cfgPath string, cfg *config.Config, store *storage.SQLiteStorage, log *logrus.Entry) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "purrctl",
		Short:        "Submit jobs to the purr jobs API and wait for them to finish",
		SilenceUsage: true,
	}
	client := func() *apiclient.Client {
		return apiclient.New(cfg.APIBaseURL, cfg.APIToken, apiclient.WithLogger(log))
	}

	rootCmd.AddCommand(SubmitCmd(cfg, store, client, log))
	rootCmd.AddCommand(StatusCmd(client))
	rootCmd.AddCommand(UpdateCmd(cfg, client))
	rootCmd.AddCommand(JobsCmd(client))
	rootCmd.AddCommand(ReposCmd(client))
	rootCmd.AddCommand(RastersCmd(client))
	rootCmd.AddCommand(SearchCmd(client))
	rootCmd.AddCommand(ServeCmd(cfg, store, log))
	rootCmd.AddCommand(HistoryCmd(store))
	rootCmd.AddCommand(ConfigCmd(cfgPath, cfg))
	return rootCmd
}

func Execute(cfgPath string, cfg *config.Config, store *storage.SQLiteStorage, log *logrus.Entry) error {
	return newRootCmd(cfgPath, cfg, store, log).Execute()
}
