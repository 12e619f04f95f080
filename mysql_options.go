package tern

import (
	"database/sql"
	"time"

	"github.com/denismitr/tern/v4/internal/database"
	"github.com/denismitr/tern/v4/internal/database/sqlgateway"
	"github.com/jmoiron/sqlx"
)

type MySQLOptionFunc func(*sqlgateway.MySQLOptions, *sqlgateway.ConnectOptions)

func UseMySQL(db *sql.DB, options ...MySQLOptionFunc) OptionFunc {
	return func(m *Migrator) error {
		mysqlOpts := &sqlgateway.MySQLOptions{
			LockFor: sqlgateway.MySQLDefaultLockSeconds,
			LockKey: sqlgateway.MySQLDefaultLockKey,
			Charset: sqlgateway.MySQLDefaultCharset,
			CommonOptions: database.CommonOptions{
				MigrationsTable: database.DefaultMigrationsTable,
				AppliedAtColumn: database.DefaultAppliedAtColumn,
			},
		}

		connectOpts := sqlgateway.NewDefaultConnectOptions()

		for _, oFunc := range options {
			oFunc(mysqlOpts, connectOpts)
		}

		connector := sqlgateway.NewRetryingConnector(sqlx.NewDb(db, "mysql"), connectOpts)
		gateway := sqlgateway.NewMySQLGateway(connector, mysqlOpts)

		m.conn = gateway
		m.closerFns = append(m.closerFns, gateway.Close)

		return nil
	}
}

func WithMySQLNoLock() MySQLOptionFunc {
	return func(mysqlOpts *sqlgateway.MySQLOptions, connectOpts *sqlgateway.ConnectOptions) {
		mysqlOpts.NoLock = true
	}
}

func WithMySQLLockKey(key string) MySQLOptionFunc {
	return func(mysqlOpts *sqlgateway.MySQLOptions, connectOpts *sqlgateway.ConnectOptions) {
		mysqlOpts.LockKey = key
	}
}

func WithMySQLMigrationTable(migrationTable string) MySQLOptionFunc {
	return func(mysqlOpts *sqlgateway.MySQLOptions, connectOpts *sqlgateway.ConnectOptions) {
		mysqlOpts.MigrationsTable = migrationTable
	}
}

func WithMySQLAppliedAtColumn(column string) MySQLOptionFunc {
	return func(mysqlOpts *sqlgateway.MySQLOptions, connectOpts *sqlgateway.ConnectOptions) {
		mysqlOpts.AppliedAtColumn = column
	}
}

func WithMySQLCharset(charset string) MySQLOptionFunc {
	return func(mysqlOpts *sqlgateway.MySQLOptions, connectOpts *sqlgateway.ConnectOptions) {
		mysqlOpts.Charset = charset
	}
}

func WithMySQLLockFor(lockFor int) MySQLOptionFunc {
	return func(mysqlOpts *sqlgateway.MySQLOptions, connectOpts *sqlgateway.ConnectOptions) {
		mysqlOpts.LockFor = lockFor
	}
}

func WithMySQLConnectionTimeout(timeout time.Duration) MySQLOptionFunc {
	return func(mysqlOpts *sqlgateway.MySQLOptions, connectOpts *sqlgateway.ConnectOptions) {
		connectOpts.MaxTimeout = timeout
	}
}

func WithMySQLMaxConnectionAttempts(attempts int) MySQLOptionFunc {
	return func(mysqlOpts *sqlgateway.MySQLOptions, connectOpts *sqlgateway.ConnectOptions) {
		connectOpts.MaxAttempts = attempts
	}
}
