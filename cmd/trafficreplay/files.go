package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/banshee-data/traffic.replay/internal/dataset"
)

func newFilesCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "files",
		Short: "List the maps and recordings under the data directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.load()
			if err != nil {
				return err
			}
			sc := dataset.NewScanner(cfg.Data.Dir)
			maps, err := sc.Maps()
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintf(tw, "MAP\tNAME\tPATH\n")
			for _, m := range maps {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", m.ID, m.Name, m.Path)
			}
			fmt.Fprintln(tw)
			fmt.Fprintf(tw, "DATASET\tFILE\tFPS\tDURATION\tMETA\tPATH\n")
			for _, kind := range cfg.Data.SupportedDatasets {
				recs, err := sc.Recordings(kind)
				if err != nil {
					return err
				}
				for _, r := range recs {
					fmt.Fprintf(tw, "%s\t%02d\t%g\t%.1fs\t%t\t%s\n", kind, r.FileID, r.FrameRate, r.DurationSec, r.HasMeta, r.DatasetPath)
				}
			}
			return tw.Flush()
		},
	}
	cmd.Flags().String("data-dir", "", "Directory holding highD_map/ and LevelX/")
	a.bind(cmd, "data.dir", "data-dir")
	return cmd
}
