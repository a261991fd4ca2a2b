// Package db applies the document store schema with goose. The SQL files are
// embedded from internal/db/migrations.
package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pressly/goose/v3"
	"github.com/sirupsen/logrus"

	"github.com/assetline/cloudhooks/internal/db/migrations"
	"github.com/assetline/cloudhooks/internal/dbpool"
)

// Migrator runs embedded migrations against a pool.
type Migrator struct {
	sqlDB    *sql.DB
	provider *goose.Provider
	log      *logrus.Logger
}

// NewMigrator builds a Migrator over the embedded migrations.
func NewMigrator(pool *dbpool.Pool, log *logrus.Logger) (*Migrator, error) {
	sqlDB := pool.SQLDB()

	provider, err := goose.NewProvider(goose.DialectPostgres, sqlDB, migrations.FS)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("creating goose provider: %w", err)
	}

	return &Migrator{sqlDB: sqlDB, provider: provider, log: log}, nil
}

// Up applies pending migrations and returns the resulting schema version.
func (m *Migrator) Up(ctx context.Context) (int64, error) {
	results, err := m.provider.Up(ctx)
	if err != nil {
		return 0, fmt.Errorf("applying migrations: %w", err)
	}

	for _, r := range results {
		if r.Error != nil {
			return 0, fmt.Errorf("migration %d (%s): %w", r.Source.Version, r.Source.Path, r.Error)
		}

		m.log.WithFields(logrus.Fields{
			"version":  r.Source.Version,
			"file":     r.Source.Path,
			"duration": r.Duration,
		}).Info("migration applied")
	}

	if len(results) == 0 {
		m.log.Debug("all migrations already applied")
	}

	return m.Current(ctx)
}

// Current returns the version recorded in the database.
func (m *Migrator) Current(ctx context.Context) (int64, error) {
	v, err := m.provider.GetDBVersion(ctx)
	if err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	return v, nil
}

// Close releases the database/sql handle. The pool stays open.
func (m *Migrator) Close() error {
	return m.sqlDB.Close()
}

// Migrate applies pending migrations and logs the resulting version.
func Migrate(ctx context.Context, pool *dbpool.Pool, log *logrus.Logger) error {
	m, err := NewMigrator(pool, log)
	if err != nil {
		return err
	}
	defer m.Close() //nolint:errcheck // pool outlives the handle.

	v, err := m.Up(ctx)
	if err != nil {
		return err
	}

	log.WithField("version", v).Info("schema ready")

	return nil
}
