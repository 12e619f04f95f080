package sqlgateway

import (
	"fmt"

	"github.com/denismitr/tern/v4/internal/database"
	"github.com/lib/pq"
)

const PostgresDefaultLockKey = 99887766

type PostgresOptions struct {
	database.CommonOptions
	LockKey int64
	NoLock  bool
}

type postgresDialect struct {
	versionTable
}

var _ Dialect = (*postgresDialect)(nil)

func newPostgresDialect(opts database.CommonOptions) *postgresDialect {
	return &postgresDialect{versionTable: newVersionTable(opts, pq.QuoteIdentifier)}
}

func (postgresDialect) Name() string {
	return "postgres"
}

func (postgresDialect) TransactionalDDL() bool {
	return true
}

func (d postgresDialect) InitQuery() string {
	const createSQL = `CREATE TABLE IF NOT EXISTS %s (
		version VARCHAR(%d) PRIMARY KEY,
		name VARCHAR(%d),
		%s TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

	return fmt.Sprintf(
		createSQL,
		d.quote(d.table), database.DefaultMaxVersionLength, database.DefaultMaxNameLength, d.quote(d.appliedAt),
	)
}

func (postgresDialect) ShowTablesQuery() string {
	return "SELECT tablename FROM pg_catalog.pg_tables WHERE schemaname = current_schema() ORDER BY tablename"
}

func (postgresDialect) ColumnsQuery() string {
	return `SELECT c.relname AS table_name, a.attname AS column_name,
		format_type(a.atttypid, a.atttypmod) AS column_type,
		CASE WHEN a.attnotnull THEN 0 ELSE 1 END AS nullable,
		COALESCE(array_position(pk.indkey::int2[], a.attnum), 0) AS pk_position
		FROM pg_class c
		JOIN pg_namespace n ON n.oid = c.relnamespace
		JOIN pg_attribute a ON a.attrelid = c.oid AND a.attnum > 0 AND NOT a.attisdropped
		LEFT JOIN pg_index pk ON pk.indrelid = c.oid AND pk.indisprimary
		WHERE n.nspname = current_schema() AND c.relkind = 'r'
		ORDER BY c.relname, a.attnum`
}

func (postgresDialect) IndexesQuery() string {
	return `SELECT t.relname AS table_name, ic.relname AS index_name,
		CASE WHEN i.indisunique THEN 1 ELSE 0 END AS is_unique,
		a.attname AS column_name, CASE WHEN con.oid IS NULL THEN 'c' ELSE 'u' END AS origin
		FROM pg_index i
		JOIN pg_class t ON t.oid = i.indrelid
		JOIN pg_class ic ON ic.oid = i.indexrelid
		JOIN pg_namespace n ON n.oid = t.relnamespace
		JOIN LATERAL unnest(i.indkey::int2[]) WITH ORDINALITY AS k(attnum, ord) ON true
		JOIN pg_attribute a ON a.attrelid = t.oid AND a.attnum = k.attnum
		LEFT JOIN pg_constraint con ON con.conindid = i.indexrelid AND con.contype = 'u'
		WHERE n.nspname = current_schema() AND NOT i.indisprimary
		ORDER BY t.relname, ic.relname, k.ord`
}
