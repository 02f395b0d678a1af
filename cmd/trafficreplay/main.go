// Command trafficreplay serves recorded highway trajectories as paced frame
// streams and watches them from the command line.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/banshee-data/traffic.replay/internal/config"
	"github.com/banshee-data/traffic.replay/internal/version"
)

// app holds state shared by the subcommands of one invocation.
type app struct {
	v          *viper.Viper
	configPath string
	out        io.Writer
}

func (a *app) load() (*config.Config, error) {
	return config.Load(a.v, a.configPath)
}

// bind ties a flag to a config key so flags override file and environment.
// Several commands share keys, so the binding happens when cmd runs.
func (a *app) bind(cmd *cobra.Command, key, flag string) {
	prev := cmd.PreRunE
	cmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		if prev != nil {
			if err := prev(cmd, args); err != nil {
				return err
			}
		}
		return a.v.BindPFlag(key, cmd.Flags().Lookup(flag))
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	a := &app{v: config.New(), out: out}
	root := &cobra.Command{
		Use:           "trafficreplay",
		Short:         "Replay recorded highway trajectories over WebSocket and gRPC",
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.SetOut(out)
	root.SetVersionTemplate("trafficreplay {{.Version}}\n")
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "Config file (default: ./"+config.DefaultFileName+")")

	root.AddCommand(
		newServeCmd(a),
		newWatchCmd(a),
		newFilesCmd(a),
		newConfigCmd(a),
		newMigrateCmd(a),
		newVersionCmd(a),
	)
	return root
}

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(a.out, "trafficreplay %s\n", version.String())
		},
	}
}

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}
