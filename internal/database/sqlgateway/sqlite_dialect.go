package sqlgateway

import (
	"fmt"

	"github.com/denismitr/tern/v4/internal/database"
)

type SqliteOptions struct {
	database.CommonOptions
}

type sqliteDialect struct {
	versionTable
}

var _ Dialect = (*sqliteDialect)(nil)

func newSqliteDialect(opts database.CommonOptions) *sqliteDialect {
	return &sqliteDialect{versionTable: newVersionTable(opts, quoteWith(`"`))}
}

func (sqliteDialect) Name() string {
	return "sqlite"
}

func (sqliteDialect) TransactionalDDL() bool {
	return true
}

func (d sqliteDialect) InitQuery() string {
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

func (sqliteDialect) ShowTablesQuery() string {
	return "SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name"
}

func (sqliteDialect) ColumnsQuery() string {
	return `SELECT m.name AS table_name, p.name AS column_name, p.type AS column_type,
		CASE WHEN p."notnull" = 0 THEN 1 ELSE 0 END AS nullable, p.pk AS pk_position
		FROM sqlite_master m JOIN pragma_table_info(m.name) p
		WHERE m.type = 'table' AND m.name NOT LIKE 'sqlite_%'
		ORDER BY m.name, p.cid`
}

func (sqliteDialect) IndexesQuery() string {
	return `SELECT m.name AS table_name, il.name AS index_name, il."unique" AS is_unique,
		ii.name AS column_name, il.origin AS origin
		FROM sqlite_master m
		JOIN pragma_index_list(m.name) il
		JOIN pragma_index_info(il.name) ii
		WHERE m.type = 'table' AND m.name NOT LIKE 'sqlite_%' AND il.origin IN ('c', 'u')
		ORDER BY m.name, il.name, ii.seqno`
}
