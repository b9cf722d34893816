// Package migrate applies the embedded SQL schema migrations for the
// qualifier database.
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const ledgerTable = `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version TEXT PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`

// Run applies all embedded migrations in filename order, skipping versions
// already recorded in schema_migrations. Safe to call on every boot.
func Run(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, ledgerTable); err != nil {
		return fmt.Errorf("create schema_migrations table: %w", err)
	}

	logger := slog.Default().With("component", "migrations")
	for _, m := range listMigrations() {
		if err := apply(ctx, db, logger, m); err != nil {
			return err
		}
	}
	return nil
}

// migration pairs an embedded file with its ledger version, the filename
// minus the .sql suffix.
type migration struct {
	version string
	file    string
}

func listMigrations() []migration {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		// The embed directive guarantees the directory exists.
		panic(fmt.Sprintf("read embedded migrations: %v", err))
	}

	var migrations []migration
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}
		migrations = append(migrations, migration{
			version: strings.TrimSuffix(name, ".sql"),
			file:    name,
		})
	}
	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].file < migrations[j].file
	})
	return migrations
}

func applied(ctx context.Context, db *sql.DB, m migration) (bool, error) {
	var exists bool
	err := db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)`,
		m.version,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check migration %s: %w", m.file, err)
	}
	return exists, nil
}

// apply runs one migration and its ledger insert inside a single transaction,
// so a partially applied file never reads as done.
func apply(ctx context.Context, db *sql.DB, logger *slog.Logger, m migration) error {
	done, err := applied(ctx, db, m)
	if err != nil {
		return err
	}
	if done {
		return nil
	}

	body, err := migrationsFS.ReadFile("migrations/" + m.file)
	if err != nil {
		return fmt.Errorf("read migration %s: %w", m.file, err)
	}

	logger.InfoContext(ctx, "applying migration", "version", m.version)

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			logger.ErrorContext(ctx, "rollback failed", "err", rbErr, "migration_file", m.file)
		}
	}()

	if _, err := tx.ExecContext(ctx, string(body)); err != nil {
		return fmt.Errorf("exec migration %s: %w", m.file, err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, m.version); err != nil {
		return fmt.Errorf("record migration %s: %w", m.file, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %s: %w", m.file, err)
	}
	return nil
}
