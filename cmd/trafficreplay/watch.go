package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/banshee-data/traffic.replay/internal/client"
	"github.com/banshee-data/traffic.replay/internal/render"
	"github.com/banshee-data/traffic.replay/internal/scene"
	"github.com/banshee-data/traffic.replay/internal/trajectory"
)

type watchFlags struct {
	server      string
	sessionID   string
	fps         float64
	snapshot    string
	originTable string
	init        trajectory.SessionConfig
	frameStep   int
}

func newWatchCmd(a *app) *cobra.Command {
	var wf watchFlags
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream a session and apply its frames to a local scene",
		Long: `Stream a session from a running server. Either pass --session to watch an
existing session or --dataset-path and --map-path to create one first.
The final scene state is printed as JSON; --snapshot also renders it as PNG.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			c, err := client.New(wf.server, nil)
			if err != nil {
				return err
			}
			id := wf.sessionID
			if id == "" {
				if wf.init.DatasetPath == "" || wf.init.MapPath == "" {
					return errors.New("either --session or both --dataset-path and --map-path are required")
				}
				wf.init.FrameStep = wf.frameStep
				resp, err := c.Initialize(ctx, wf.init)
				if err != nil {
					return fmt.Errorf("initialize session: %w", err)
				}
				id = resp.SessionID
				fmt.Fprintf(cmd.ErrOrStderr(), "created session %s\n", id)
			}

			opts := scene.DefaultOptions()
			if wf.originTable != "" {
				t, err := scene.LoadOriginTable(wf.originTable)
				if err != nil {
					return err
				}
				dataset, fileID := wf.init.Dataset, wf.init.FileID
				if wf.sessionID != "" {
					info, err := c.Session(ctx, id)
					if err != nil {
						return err
					}
					dataset, fileID = info.Config.Dataset, info.Config.FileID
				}
				opts.Strategy = t.Strategy(dataset, fileID)
			}
			sc := scene.New(opts)

			sum, err := c.Watch(ctx, id, client.WatchOptions{FPS: wf.fps, Scene: sc})
			if err != nil {
				return err
			}

			if wf.snapshot != "" {
				if err := writeSnapshot(wf.snapshot, sc, id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s\n", wf.snapshot)
			}
			enc := json.NewEncoder(a.out)
			enc.SetIndent("", "  ")
			return enc.Encode(sum)
		},
	}
	f := cmd.Flags()
	f.StringVar(&wf.server, "server", "http://localhost:8000", "Server base URL")
	f.StringVar(&wf.sessionID, "session", "", "Existing session id")
	f.Float64Var(&wf.fps, "fps", 0, "Playback rate (0 uses the server default)")
	f.StringVar(&wf.snapshot, "snapshot", "", "Write the final scene to this PNG file")
	f.StringVar(&wf.originTable, "origin-table", "", "YAML table of per-recording alignment offsets")
	f.StringVar(&wf.init.Dataset, "dataset", "highD", "Dataset of a new session")
	f.IntVar(&wf.init.FileID, "file-id", 1, "Recording id of a new session")
	f.StringVar(&wf.init.DatasetPath, "dataset-path", "", "Recording directory of a new session")
	f.StringVar(&wf.init.MapPath, "map-path", "", "Map file of a new session")
	f.IntVar(&wf.frameStep, "frame-step", 1, "Keep every n-th frame of a new session")
	return cmd
}

func writeSnapshot(path string, sc *scene.Scene, sessionID string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	opts := render.DefaultSnapshotOptions
	opts.Title = sessionID
	if err := render.Snapshot(f, sc.Map(), sc.Vehicles(), opts); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
