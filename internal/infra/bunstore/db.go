// Package bunstore persists sessions and responses in SQL through uptrace/bun. Postgres is
// the production target; SQLite backs single-node deployments and tests.
package bunstore

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Open connects to the database behind dsn with the matching bun dialect.
func Open(driver, dsn string) (*bun.DB, error) {
	switch driver {
	case DriverPostgres:
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
		return bun.NewDB(sqldb, pgdialect.New()), nil

	case DriverSQLite:
		if strings.TrimSpace(dsn) == "" {
			dsn = "quiz.db"
		}
		sqldb, err := sql.Open("sqlite3", dsn)
		if err != nil {
			return nil, err
		}
		// SQLite allows one writer; a single connection also keeps ":memory:" databases shared.
		sqldb.SetMaxOpenConns(1)
		if _, err := sqldb.Exec(`PRAGMA busy_timeout = 5000;`); err != nil {
			_ = sqldb.Close()
			return nil, err
		}
		return bun.NewDB(sqldb, sqlitedialect.New()), nil

	default:
		return nil, fmt.Errorf("unsupported sql driver %q", driver)
	}
}

// isUniqueViolation reports a unique or primary key violation on either backend.
func isUniqueViolation(err error) bool {
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		return pgErr.IntegrityViolation() && pgErr.Field('C') == "23505"
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
