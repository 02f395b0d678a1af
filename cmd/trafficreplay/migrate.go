package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/banshee-data/traffic.replay/internal/db"
)

func newMigrateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the stream history schema",
	}
	cmd.PersistentFlags().String("db", "", "Stream history database")

	open := func() (*db.DB, error) {
		if err := a.v.BindPFlag("db.path", cmd.PersistentFlags().Lookup("db")); err != nil {
			return nil, err
		}
		cfg, err := a.load()
		if err != nil {
			return nil, err
		}
		if cfg.DB.Path == "" {
			return nil, fmt.Errorf("no database configured (set db.path or --db)")
		}
		return db.OpenDB(cfg.DB.Path)
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := open()
			if err != nil {
				return err
			}
			defer d.Close()
			if err := d.MigrateUp(db.MigrationsFS()); err != nil {
				return err
			}
			return printVersion(a, d)
		},
	}
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back the latest migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := open()
			if err != nil {
				return err
			}
			defer d.Close()
			if err := d.MigrateDown(db.MigrationsFS()); err != nil {
				return err
			}
			return printVersion(a, d)
		},
	}
	version := &cobra.Command{
		Use:   "version",
		Short: "Print the schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := open()
			if err != nil {
				return err
			}
			defer d.Close()
			return printVersion(a, d)
		},
	}
	cmd.AddCommand(up, down, version)
	return cmd
}

func printVersion(a *app, d *db.DB) error {
	v, dirty, err := d.MigrateVersion(db.MigrationsFS())
	if err != nil {
		return err
	}
	latest, err := db.LatestMigrationVersion(db.MigrationsFS())
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "schema version %d of %d", v, latest)
	if dirty {
		fmt.Fprint(a.out, " (dirty)")
	}
	fmt.Fprintln(a.out)
	return nil
}
