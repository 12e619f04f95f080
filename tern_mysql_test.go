package tern

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mysqlTestDSN points at a disposable database,
// e.g. tern:secret@(127.0.0.1:33066)/tern_db
const mysqlTestDSN = "TERN_MYSQL_DSN"

func openMySQL(t *testing.T) *sql.DB {
	t.Helper()

	dsn := os.Getenv(mysqlTestDSN)
	if dsn == "" {
		t.Skipf("%s is not set", mysqlTestDSN)
	}

	cfg, err := mysql.ParseDSN(dsn)
	require.NoError(t, err)
	cfg.ParseTime = true
	cfg.MultiStatements = true

	db, err := sql.Open("mysql", cfg.FormatDSN())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return db
}

func Test_Tern_WithMySQL(t *testing.T) {
	db := openMySQL(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	m, closer, err := NewMigrator(UseMySQL(db), UseLocalFolderSource("./testdata/mysql"))
	require.NoError(t, err)
	defer func() { assert.NoError(t, closer()) }()

	// leftovers of an earlier run
	_, err = m.Migrate(ctx, WithTarget("first"))
	require.NoError(t, err)

	t.Run("it can migrate up everything and the schema matches the scripts", func(t *testing.T) {
		report, err := m.Migrate(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, report.Succeeded)

		tables, err := m.ShowTables(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"bar", "baz", "foo", "migration_versions"}, tables)

		declared, err := m.DeclaredSchema(ctx)
		require.NoError(t, err)

		divergences, err := m.Validate(ctx, declared)
		require.NoError(t, err)
		assert.Empty(t, divergences)
	})

	t.Run("it can step back and forth", func(t *testing.T) {
		_, err := m.Migrate(ctx, WithTarget("prev"))
		require.NoError(t, err)

		status, err := m.Status(ctx)
		require.NoError(t, err)
		assert.Equal(t, "1596897188", status.Current.Value)
		assert.Equal(t, 1, status.Pending)

		_, err = m.Migrate(ctx, WithTarget("next"))
		require.NoError(t, err)

		status, err = m.Status(ctx)
		require.NoError(t, err)
		assert.Equal(t, "1597897177", status.Current.Value)
	})

	t.Run("it can migrate down everything", func(t *testing.T) {
		report, err := m.Migrate(ctx, WithTarget("first"))
		require.NoError(t, err)
		assert.Equal(t, 3, report.Succeeded)

		tables, err := m.ShowTables(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"migration_versions"}, tables)
	})
}
