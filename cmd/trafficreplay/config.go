package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/banshee-data/traffic.replay/internal/config"
)

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create the configuration file",
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write a config file holding the defaults",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.DefaultFileName
			if len(args) == 1 {
				path = args[0]
			}
			if err := config.WriteDefault(path, force); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing file")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the resolved configuration as TOML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.load()
			if err != nil {
				return err
			}
			b, err := config.Encode(*cfg)
			if err != nil {
				return err
			}
			if cfg.File != "" {
				fmt.Fprintf(a.out, "# read from %s\n", cfg.File)
			}
			_, err = a.out.Write(b)
			return err
		},
	}

	cmd.AddCommand(initCmd, showCmd)
	return cmd
}
