package tern

import (
	"database/sql"
	"time"

	"github.com/denismitr/tern/v4/internal/database"
	"github.com/denismitr/tern/v4/internal/database/sqlgateway"
	"github.com/jmoiron/sqlx"
)

type PostgresOptionFunc func(*sqlgateway.PostgresOptions, *sqlgateway.ConnectOptions)

func UsePostgres(db *sql.DB, options ...PostgresOptionFunc) OptionFunc {
	return func(m *Migrator) error {
		pgOpts := &sqlgateway.PostgresOptions{
			LockKey: sqlgateway.PostgresDefaultLockKey,
			CommonOptions: database.CommonOptions{
				MigrationsTable: database.DefaultMigrationsTable,
				AppliedAtColumn: database.DefaultAppliedAtColumn,
			},
		}

		connectOpts := sqlgateway.NewDefaultConnectOptions()

		for _, oFunc := range options {
			oFunc(pgOpts, connectOpts)
		}

		connector := sqlgateway.NewRetryingConnector(sqlx.NewDb(db, "postgres"), connectOpts)
		gateway := sqlgateway.NewPostgresGateway(connector, pgOpts)

		m.conn = gateway
		m.closerFns = append(m.closerFns, gateway.Close)

		return nil
	}
}

func WithPostgresNoLock() PostgresOptionFunc {
	return func(pgOpts *sqlgateway.PostgresOptions, connectOpts *sqlgateway.ConnectOptions) {
		pgOpts.NoLock = true
	}
}

func WithPostgresLockKey(key int64) PostgresOptionFunc {
	return func(pgOpts *sqlgateway.PostgresOptions, connectOpts *sqlgateway.ConnectOptions) {
		pgOpts.LockKey = key
	}
}

func WithPostgresMigrationTable(migrationTable string) PostgresOptionFunc {
	return func(pgOpts *sqlgateway.PostgresOptions, connectOpts *sqlgateway.ConnectOptions) {
		pgOpts.MigrationsTable = migrationTable
	}
}

func WithPostgresAppliedAtColumn(column string) PostgresOptionFunc {
	return func(pgOpts *sqlgateway.PostgresOptions, connectOpts *sqlgateway.ConnectOptions) {
		pgOpts.AppliedAtColumn = column
	}
}

func WithPostgresConnectionTimeout(timeout time.Duration) PostgresOptionFunc {
	return func(pgOpts *sqlgateway.PostgresOptions, connectOpts *sqlgateway.ConnectOptions) {
		connectOpts.MaxTimeout = timeout
	}
}

func WithPostgresMaxConnectionAttempts(attempts int) PostgresOptionFunc {
	return func(pgOpts *sqlgateway.PostgresOptions, connectOpts *sqlgateway.ConnectOptions) {
		connectOpts.MaxAttempts = attempts
	}
}
