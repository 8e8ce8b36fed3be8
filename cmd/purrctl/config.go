package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/CharanSaiVaddi/purrctl/internal/config"
)

func ConfigCmd(path string, cfg *config.Config) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show the current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			shown := *cfg
			if shown.APIToken != "" {
				shown.APIToken = "****"
			}
			data, err := yaml.Marshal(&shown)
			if err != nil {
				return err
			}
			fmt.Print(string(data))
			return nil
		},
	}

	setCmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value (api-base-url, deadline-sec, notify-kind, ...)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			// edit the file's values, not ones overridden by the environment
			onDisk, err := config.Load(path)
			if err != nil {
				return err
			}
			if err := onDisk.Set(args[0], args[1]); err != nil {
				return err
			}
			if err := onDisk.Save(path); err != nil {
				return err
			}
			cfg.Set(args[0], args[1])
			fmt.Printf("%s = %s\n", args[0], args[1])
			return nil
		},
	}

	configCmd.AddCommand(showCmd)
	configCmd.AddCommand(setCmd)
	return configCmd
}
