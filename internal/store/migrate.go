package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations
var migrations embed.FS

// MigrateUp applies every pending schema migration.
func MigrateUp(ctx context.Context, db *sql.DB, dialect Dialect) error {
	return migrateSchema(ctx, db, dialect, func(m *migrate.Migrate) error { return m.Up() })
}

// MigrateDown reverts every applied schema migration.
func MigrateDown(ctx context.Context, db *sql.DB, dialect Dialect) error {
	return migrateSchema(ctx, db, dialect, func(m *migrate.Migrate) error { return m.Down() })
}

func migrateSchema(ctx context.Context, db *sql.DB, dialect Dialect, step func(*migrate.Migrate) error) error {
	var (
		dir    string
		driver database.Driver
		err    error
		// closeDriver is false when closing the driver would close db itself.
		closeDriver bool
	)
	switch dialect {
	case Postgres:
		dir = "migrations/postgres"
		conn, connErr := db.Conn(ctx)
		if connErr != nil {
			return fmt.Errorf("acquire migration connection: %w", connErr)
		}
		driver, err = postgres.WithConnection(ctx, conn, &postgres.Config{})
		if err != nil {
			_ = conn.Close()
		}
		closeDriver = true
	case SQLite:
		dir = "migrations/sqlite"
		driver, err = sqlite3.WithInstance(db, &sqlite3.Config{})
	default:
		return fmt.Errorf("migrate: unsupported dialect %q", dialect.Driver())
	}
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	source, err := iofs.New(migrations, dir)
	if err != nil {
		return fmt.Errorf("open migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, dialect.Driver(), driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	if closeDriver {
		defer m.Close()
	}

	if err := step(m); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}
