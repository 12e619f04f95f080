package sqlgateway

import (
	"fmt"

	"github.com/denismitr/tern/v4/internal/database"
)

const (
	MySQLDefaultLockKey     = "tern_migrations"
	MySQLDefaultLockSeconds = 3
	MySQLDefaultCharset     = "utf8mb4"
)

type MySQLOptions struct {
	database.CommonOptions
	LockKey string
	LockFor int
	NoLock  bool
	Charset string
}

type mysqlDialect struct {
	versionTable
	charset string
}

var _ Dialect = (*mysqlDialect)(nil)

func newMySQLDialect(opts database.CommonOptions, charset string) *mysqlDialect {
	if charset == "" {
		charset = MySQLDefaultCharset
	}
	return &mysqlDialect{versionTable: newVersionTable(opts, quoteWith("`")), charset: charset}
}

func (mysqlDialect) Name() string {
	return "mysql"
}

// TransactionalDDL is false, MySQL commits implicitly on every DDL statement
func (mysqlDialect) TransactionalDDL() bool {
	return false
}

func (d mysqlDialect) InitQuery() string {
	const createSQL = `CREATE TABLE IF NOT EXISTS %s (
		version VARCHAR(%d) NOT NULL PRIMARY KEY,
		name VARCHAR(%d),
		%s TIMESTAMP NULL DEFAULT CURRENT_TIMESTAMP
	) ENGINE=InnoDB DEFAULT CHARSET=%s`

	return fmt.Sprintf(
		createSQL,
		d.quote(d.table), database.DefaultMaxVersionLength, database.DefaultMaxNameLength, d.quote(d.appliedAt), d.charset,
	)
}

func (mysqlDialect) ShowTablesQuery() string {
	return `SELECT TABLE_NAME FROM information_schema.TABLES
		WHERE TABLE_SCHEMA = DATABASE() AND TABLE_TYPE = 'BASE TABLE'
		ORDER BY TABLE_NAME`
}

func (mysqlDialect) ColumnsQuery() string {
	return `SELECT TABLE_NAME AS table_name, COLUMN_NAME AS column_name, COLUMN_TYPE AS column_type,
		IF(IS_NULLABLE = 'YES', 1, 0) AS nullable, IF(COLUMN_KEY = 'PRI', ORDINAL_POSITION, 0) AS pk_position
		FROM information_schema.COLUMNS
		WHERE TABLE_SCHEMA = DATABASE()
		ORDER BY TABLE_NAME, ORDINAL_POSITION`
}

func (mysqlDialect) IndexesQuery() string {
	return `SELECT s.TABLE_NAME AS table_name, s.INDEX_NAME AS index_name, IF(s.NON_UNIQUE = 0, 1, 0) AS is_unique,
		s.COLUMN_NAME AS column_name, IF(tc.CONSTRAINT_TYPE = 'UNIQUE', 'u', 'c') AS origin
		FROM information_schema.STATISTICS s
		LEFT JOIN information_schema.TABLE_CONSTRAINTS tc
			ON tc.TABLE_SCHEMA = s.TABLE_SCHEMA AND tc.TABLE_NAME = s.TABLE_NAME AND tc.CONSTRAINT_NAME = s.INDEX_NAME
		WHERE s.TABLE_SCHEMA = DATABASE() AND s.INDEX_NAME <> 'PRIMARY'
		ORDER BY s.TABLE_NAME, s.INDEX_NAME, s.SEQ_IN_INDEX`
}
