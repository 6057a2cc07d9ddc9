package database

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

// Migrate brings the metadata schema up to date by borrowing a database/sql
// handle from the pool, applying any pending migrations from dir, and
// returning the handle. Already-applied migrations are skipped, so it runs
// on every startup.
func (db *DB) Migrate(dir string, logger *zap.Logger) error {
	sqlDB := stdlib.OpenDBFromPool(db.Pool)
	err := RunMigrations(sqlDB, dir, logger)
	if closeErr := sqlDB.Close(); closeErr != nil {
		logger.Warn("Could not release migration connection", zap.Error(closeErr))
	}
	return err
}

// RunMigrations applies pending migrations from dir against db.
func RunMigrations(db *sql.DB, dir string, logger *zap.Logger) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+dir, "postgres", driver)
	if err != nil {
		return fmt.Errorf("open migrations at %s: %w", dir, err)
	}
	defer func() {
		if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
			logger.Warn("Migration cleanup reported errors",
				zap.NamedError("source", srcErr), zap.NamedError("database", dbErr))
		}
	}()

	switch err := m.Up(); {
	case errors.Is(err, migrate.ErrNoChange):
		logger.Info("Metadata schema already current")
		return nil
	case err != nil:
		return fmt.Errorf("apply migrations: %w", err)
	}

	version, dirty, _ := m.Version()
	logger.Info("Metadata schema migrated",
		zap.Uint("version", version), zap.Bool("dirty", dirty))
	return nil
}
