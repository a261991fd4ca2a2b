package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/assetline/cloudhooks/internal/config"
	"github.com/assetline/cloudhooks/internal/db"
	"github.com/assetline/cloudhooks/internal/dbpool"
)

func newMigrateCmd() *cobra.Command {
	var statusOnly bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending migrations to the self-hosted document store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}

			if cfg.StoreBackend != config.BackendPostgres {
				return fmt.Errorf("migrate requires STORE_BACKEND=%s", config.BackendPostgres)
			}

			pool, err := dbpool.NewPool(cmd.Context(), dbpool.Options{URL: cfg.DatabaseURL.Value(), MaxConns: cfg.DBMaxConns})
			if err != nil {
				return fmt.Errorf("connecting to database: %w", err)
			}
			defer pool.Close()

			m, err := db.NewMigrator(pool, log)
			if err != nil {
				return err
			}
			defer m.Close() //nolint:errcheck // pool closes after.

			var current int64
			if statusOnly {
				current, err = m.Current(cmd.Context())
			} else {
				current, err = m.Up(cmd.Context())
			}
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "schema at version %d (binary expects %d)\n", current, db.SchemaVersion())
			return nil
		},
	}

	cmd.Flags().BoolVar(&statusOnly, "status", false, "report the database schema version without applying migrations")

	return cmd
}
