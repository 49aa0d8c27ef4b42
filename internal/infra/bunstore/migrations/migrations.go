// Package migrations creates the SQL schema for the bun stores.
package migrations

import (
	"context"
	"log/slog"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

var Migrations = migrate.NewMigrations()

// Run applies every pending migration and returns the names that ran.
func Run(ctx context.Context, db *bun.DB) ([]string, error) {
	migrator := migrate.NewMigrator(db, Migrations)
	if err := migrator.Init(ctx); err != nil {
		return nil, err
	}

	group, err := migrator.Migrate(ctx)
	if err != nil {
		return nil, err
	}
	if group.IsZero() {
		slog.InfoContext(ctx, "migrations: schema up to date")
		return nil, nil
	}

	names := make([]string, len(group.Migrations))
	for i, m := range group.Migrations {
		names[i] = m.Name
	}
	slog.InfoContext(ctx, "migrations: applied", "group", group.ID, "migrations", names)
	return names, nil
}
