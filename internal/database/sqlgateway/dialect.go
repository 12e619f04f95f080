package sqlgateway

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/denismitr/tern/v4/internal/database"
	"github.com/denismitr/tern/v4/migration"
)

// Dialect renders the queries of one database product. Placeholders are
// written as "?" and rebound by the gateway.
type Dialect interface {
	Name() string
	TransactionalDDL() bool
	InitQuery() string
	DropQuery() string
	InsertQuery(m *migration.Migration, appliedAt time.Time) (string, []interface{})
	RemoveQuery(m *migration.Migration) (string, []interface{})
	ReadVersionsQuery() string
	ShowTablesQuery() string
	ColumnsQuery() string
	IndexesQuery() string
}

// versionTable holds what every dialect renders the same way
type versionTable struct {
	table, appliedAt string
	quote            func(string) string
}

func newVersionTable(opts database.CommonOptions, quote func(string) string) versionTable {
	opts = opts.WithDefaults()
	return versionTable{table: opts.MigrationsTable, appliedAt: opts.AppliedAtColumn, quote: quote}
}

func (vt versionTable) DropQuery() string {
	return fmt.Sprintf("DROP TABLE IF EXISTS %s", vt.quote(vt.table))
}

func (vt versionTable) InsertQuery(m *migration.Migration, appliedAt time.Time) (string, []interface{}) {
	q := fmt.Sprintf(
		"INSERT INTO %s (%s, %s, %s) VALUES (?, ?, ?)",
		vt.quote(vt.table), vt.quote("version"), vt.quote("name"), vt.quote(vt.appliedAt),
	)
	return q, []interface{}{m.Version.Value, truncate(m.Name, database.DefaultMaxNameLength), appliedAt.UTC()}
}

func (vt versionTable) RemoveQuery(m *migration.Migration) (string, []interface{}) {
	q := fmt.Sprintf("DELETE FROM %s WHERE %s = ?", vt.quote(vt.table), vt.quote("version"))
	return q, []interface{}{m.Version.Value}
}

func (vt versionTable) ReadVersionsQuery() string {
	return fmt.Sprintf(
		"SELECT %s AS version, %s AS name, %s AS applied_at FROM %s",
		vt.quote("version"), vt.quote("name"), vt.quote(vt.appliedAt), vt.quote(vt.table),
	)
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}

func quoteWith(q string) func(string) string {
	return func(ident string) string {
		return q + strings.ReplaceAll(ident, q, q+q) + q
	}
}
