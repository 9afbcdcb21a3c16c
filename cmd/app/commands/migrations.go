package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratepostgres "github.com/golang-migrate/migrate/v4/database/postgres"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/allisson/fieldsync/internal/app"
)

// RunMigrations applies all pending database migrations for the configured
// driver. The migrations are read from migrations/sqlite or
// migrations/postgresql relative to the working directory.
//
// The migrate instance borrows the container's database connection, so it is
// not closed here; the container owns the connection lifecycle.
func RunMigrations(ctx context.Context, container *app.Container) error {
	logger := container.Logger()

	db, err := container.DB()
	if err != nil {
		return fmt.Errorf("failed to get database connection: %w", err)
	}

	var (
		driver     database.Driver
		driverName string
		sourceURL  string
	)
	switch container.Config().DBDriver {
	case "sqlite":
		driver, err = migratesqlite.WithInstance(db, &migratesqlite.Config{})
		driverName = "sqlite"
		sourceURL = "file://migrations/sqlite"
	case "postgres":
		driver, err = migratepostgres.WithInstance(db, &migratepostgres.Config{})
		driverName = "postgres"
		sourceURL = "file://migrations/postgresql"
	default:
		return fmt.Errorf("unsupported database driver: %s", container.Config().DBDriver)
	}
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(sourceURL, driverName, driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	logger.Info("running migrations", slog.String("driver", driverName), slog.String("source", sourceURL))

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Info("no pending migrations")
			return nil
		}
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Info("migrations applied")
	return nil
}
