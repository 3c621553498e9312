package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/MvRens/ha-enever/internal/migrate"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	run := func(action func(cmd *cobra.Command, driver, dsn string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadApp()
			if err != nil {
				return err
			}
			if cfg.Storage.Driver == "memory" {
				return errors.New("the memory driver has no schema to migrate")
			}
			return action(cmd, cfg.Storage.Driver, cfg.Storage.DSN)
		}
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: run(func(cmd *cobra.Command, driver, dsn string) error {
			return migrate.Up(cmd.Context(), driver, dsn)
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the last migration",
		RunE: run(func(cmd *cobra.Command, driver, dsn string) error {
			return migrate.Down(cmd.Context(), driver, dsn)
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: run(func(cmd *cobra.Command, driver, dsn string) error {
			return migrate.Status(cmd.Context(), driver, dsn)
		}),
	})

	return cmd
}
