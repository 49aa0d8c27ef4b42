package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/uptrace/bun"

	"live-quiz-service/internal/config"
	"live-quiz-service/internal/infra/bunstore"
	"live-quiz-service/internal/infra/bunstore/migrations"
)

// NewMigrateCmd applies database migrations.
func NewMigrateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrations(cmd.Context(), *configPath)
		},
	}
}

func runMigrations(ctx context.Context, configPath string) error {
	c, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	db, err := openSQL(c)
	if err != nil {
		return err
	}
	defer db.Close()

	applied, err := migrations.Run(ctx, db)
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "migrations applied", "count", len(applied))
	return nil
}

// openSQL opens the SQL database of the configured driver. Postgres is used whenever a DSN
// is set so the quizzes table can be migrated for the pgx loader.
func openSQL(c config.Config) (*bun.DB, error) {
	switch {
	case c.Store.Driver == bunstore.DriverSQLite:
		return bunstore.Open(bunstore.DriverSQLite, c.SQLite.Path)
	case c.Postgres.DSN != "":
		return bunstore.Open(bunstore.DriverPostgres, c.Postgres.DSN)
	default:
		return nil, fmt.Errorf("no sql database configured for store driver %q", c.Store.Driver)
	}
}
