package tern

import (
	"database/sql"
	"time"

	"github.com/denismitr/tern/v4/internal/database"
	"github.com/denismitr/tern/v4/internal/database/sqlgateway"
	"github.com/jmoiron/sqlx"
)

type SqliteOptionFunc func(*sqlgateway.SqliteOptions, *sqlgateway.ConnectOptions)

// UseSqlite works with both the mattn/go-sqlite3 and the modernc.org/sqlite drivers
func UseSqlite(db *sql.DB, options ...SqliteOptionFunc) OptionFunc {
	return func(m *Migrator) error {
		sqliteOpts := &sqlgateway.SqliteOptions{
			CommonOptions: database.CommonOptions{
				MigrationsTable: database.DefaultMigrationsTable,
				AppliedAtColumn: database.DefaultAppliedAtColumn,
			},
		}

		connectOpts := sqlgateway.NewDefaultConnectOptions()

		for _, oFunc := range options {
			oFunc(sqliteOpts, connectOpts)
		}

		connector := sqlgateway.NewRetryingConnector(sqlx.NewDb(db, "sqlite3"), connectOpts)
		gateway := sqlgateway.NewSqliteGateway(connector, sqliteOpts)

		m.conn = gateway
		m.closerFns = append(m.closerFns, gateway.Close)

		return nil
	}
}

func WithSqliteAppliedAtColumn(column string) SqliteOptionFunc {
	return func(sqliteOpts *sqlgateway.SqliteOptions, connectOpts *sqlgateway.ConnectOptions) {
		sqliteOpts.AppliedAtColumn = column
	}
}

func WithSqliteMaxConnectionAttempts(attempts int) SqliteOptionFunc {
	return func(sqliteOpts *sqlgateway.SqliteOptions, connectOpts *sqlgateway.ConnectOptions) {
		connectOpts.MaxAttempts = attempts
	}
}

func WithSqliteConnectionTimeout(timeout time.Duration) SqliteOptionFunc {
	return func(sqliteOpts *sqlgateway.SqliteOptions, connectOpts *sqlgateway.ConnectOptions) {
		connectOpts.MaxTimeout = timeout
	}
}

func WithSqliteMigrationTable(migrationTable string) SqliteOptionFunc {
	return func(sqliteOpts *sqlgateway.SqliteOptions, connectOpts *sqlgateway.ConnectOptions) {
		sqliteOpts.MigrationsTable = migrationTable
	}
}
