package sqlgateway

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/denismitr/tern/v4/internal/database"
	"github.com/denismitr/tern/v4/migration"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func newSqliteTestGateway(t *testing.T, opts *SqliteOptions) *Gateway {
	t.Helper()

	db, err := sqlx.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)

	g := NewSqliteGateway(NewRetryingConnector(db, nil), opts)
	t.Cleanup(func() {
		_ = g.Close()
		_ = db.Close()
	})

	return g
}

func mustMigration(t *testing.T, f migration.Factory) *migration.Migration {
	t.Helper()
	m, err := f()
	require.NoError(t, err)
	return m
}

func TestNewSqliteGateway(t *testing.T) {
	t.Run("default options", func(t *testing.T) {
		g := NewSqliteGateway(NewRetryingConnector(nil, nil), &SqliteOptions{})

		d, ok := g.dialect.(*sqliteDialect)
		require.True(t, ok)

		assert.Equal(t, "migration_versions", d.table)
		assert.Equal(t, "applied_at", d.appliedAt)
		assert.Equal(t, "migration_versions", g.MigrationsTable())
		assert.True(t, g.Transactional())
	})

	t.Run("custom options", func(t *testing.T) {
		g := NewSqliteGateway(NewRetryingConnector(nil, nil), &SqliteOptions{
			CommonOptions: database.CommonOptions{
				MigrationsTable: "foo",
				AppliedAtColumn: "created_at",
			},
		})

		d, ok := g.dialect.(*sqliteDialect)
		require.True(t, ok)

		assert.Equal(t, "foo", d.table)
		assert.Equal(t, "created_at", d.appliedAt)
	})
}

func TestNewMySQLGateway(t *testing.T) {
	t.Run("default options", func(t *testing.T) {
		g := NewMySQLGateway(NewRetryingConnector(nil, nil), &MySQLOptions{})

		d, ok := g.dialect.(*mysqlDialect)
		require.True(t, ok)
		assert.Equal(t, "migration_versions", d.table)
		assert.Equal(t, MySQLDefaultCharset, d.charset)
		assert.False(t, g.Transactional())

		l, ok := g.locker.(*mysqlLocker)
		require.True(t, ok)
		assert.Equal(t, MySQLDefaultLockKey, l.lockKey)
		assert.Equal(t, MySQLDefaultLockSeconds, l.lockFor)
	})

	t.Run("custom options", func(t *testing.T) {
		g := NewMySQLGateway(NewRetryingConnector(nil, nil), &MySQLOptions{
			CommonOptions: database.CommonOptions{MigrationsTable: "foo", AppliedAtColumn: "created_at"},
			LockKey:       "foobar",
			LockFor:       2,
		})

		l, ok := g.locker.(*mysqlLocker)
		require.True(t, ok)
		assert.Equal(t, "foobar", l.lockKey)
		assert.Equal(t, 2, l.lockFor)

		q, args := g.dialect.InsertQuery(&migration.Migration{Version: migration.MustParseVersion("1"), Name: "x"}, time.Unix(0, 0))
		assert.Equal(t, "INSERT INTO `foo` (`version`, `name`, `created_at`) VALUES (?, ?, ?)", q)
		assert.Len(t, args, 3)
	})

	t.Run("no lock", func(t *testing.T) {
		g := NewMySQLGateway(NewRetryingConnector(nil, nil), &MySQLOptions{NoLock: true})
		_, ok := g.locker.(nullLocker)
		assert.True(t, ok)
	})
}

func TestNewPostgresGateway(t *testing.T) {
	g := NewPostgresGateway(NewRetryingConnector(nil, nil), &PostgresOptions{})

	l, ok := g.locker.(*postgresLocker)
	require.True(t, ok)
	assert.Equal(t, int64(PostgresDefaultLockKey), l.lockKey)

	q, _ := g.dialect.RemoveQuery(&migration.Migration{Version: migration.MustParseVersion("1")})
	assert.Equal(t, `DELETE FROM "migration_versions" WHERE "version" = ?`, q)
	assert.Equal(t, `DELETE FROM "migration_versions" WHERE "version" = $1`, sqlx.Rebind(sqlx.DOLLAR, q))
}

func TestGatewayUnavailable(t *testing.T) {
	g := NewSqliteGateway(NewRetryingConnector(nil, nil), nil)

	_, err := g.All(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, migration.ErrStorageUnavailable))
}

func TestSqliteGateway_VersionStore(t *testing.T) {
	ctx := context.Background()
	g := newSqliteTestGateway(t, nil)

	m1 := mustMigration(t, migration.New("1596897167", "Create foo table", []string{"CREATE TABLE foo (id INTEGER PRIMARY KEY)"}, []string{"DROP TABLE foo"}))
	m2 := mustMigration(t, migration.New("1596897188", "Create bar table", []string{"CREATE TABLE bar (id INTEGER PRIMARY KEY)"}, []string{"DROP TABLE bar"}))

	t.Run("it creates the storage idempotently", func(t *testing.T) {
		require.NoError(t, g.EnsureStorageExists(ctx))
		require.NoError(t, g.EnsureStorageExists(ctx))

		tables, err := g.ShowTables(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"migration_versions"}, tables)
	})

	t.Run("it marks versions applied and reverted", func(t *testing.T) {
		require.NoError(t, g.MarkApplied(ctx, m2))
		require.NoError(t, g.MarkApplied(ctx, m1))

		versions, err := g.All(ctx)
		require.NoError(t, err)
		require.Len(t, versions, 2)
		assert.Equal(t, "1596897167", versions[0].Value)
		assert.Equal(t, "1596897188", versions[1].Value)
		assert.False(t, versions[0].MigratedAt.IsZero())

		has, err := g.Has(ctx, m1.Version)
		require.NoError(t, err)
		assert.True(t, has)

		require.NoError(t, g.MarkReverted(ctx, m1))

		has, err = g.Has(ctx, m1.Version)
		require.NoError(t, err)
		assert.False(t, has)
	})

	t.Run("it marks all applied skipping recorded versions", func(t *testing.T) {
		require.NoError(t, g.MarkAllApplied(ctx, migration.Migrations{m1, m2}))

		versions, err := g.All(ctx)
		require.NoError(t, err)
		assert.Len(t, versions, 2)
	})

	t.Run("it drops the storage", func(t *testing.T) {
		require.NoError(t, g.DropStorage(ctx))

		tables, err := g.ShowTables(ctx)
		require.NoError(t, err)
		assert.Empty(t, tables)
	})
}

func TestSqliteGateway_VersionIdentity(t *testing.T) {
	ctx := context.Background()
	g := newSqliteTestGateway(t, nil)
	require.NoError(t, g.EnsureStorageExists(ctx))

	m2 := mustMigration(t, migration.New("2", "Create foo table", []string{"CREATE TABLE foo (id INTEGER PRIMARY KEY)"}, nil))
	require.NoError(t, g.MarkApplied(ctx, m2))

	t.Run("leading zeros find the recorded version", func(t *testing.T) {
		has, err := g.Has(ctx, migration.MustParseVersion("002"))
		require.NoError(t, err)
		assert.True(t, has)
	})

	t.Run("it removes the recorded spelling", func(t *testing.T) {
		require.NoError(t, g.MarkReverted(ctx, &migration.Migration{Version: migration.MustParseVersion("002")}))

		versions, err := g.All(ctx)
		require.NoError(t, err)
		assert.Empty(t, versions)
	})

	t.Run("removing a version that is not recorded does nothing", func(t *testing.T) {
		require.NoError(t, g.MarkReverted(ctx, m2))
	})
}

func TestRetryingConnector_Reconnect(t *testing.T) {
	ctx := context.Background()

	db, err := sqlx.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	c := NewRetryingConnector(db, nil)
	t.Cleanup(func() { _ = c.Close() })

	first, err := c.Connect(ctx)
	require.NoError(t, err)

	same, err := c.Connect(ctx)
	require.NoError(t, err)
	assert.Same(t, first, same)

	t.Run("a dropped connection is replaced", func(t *testing.T) {
		require.NoError(t, first.Close())

		conn, err := c.Connect(ctx)
		require.NoError(t, err)
		assert.NotSame(t, first, conn)
		assert.NoError(t, conn.PingContext(ctx))
	})

	t.Run("a cancelled context keeps the connection", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		_, err := c.Connect(cctx)
		require.Error(t, err)
		assert.True(t, errors.Is(err, context.Canceled))

		conn, err := c.Connect(ctx)
		require.NoError(t, err)
		assert.NoError(t, conn.PingContext(ctx))
	})
}

func TestSqliteGateway_InStep(t *testing.T) {
	ctx := context.Background()
	g := newSqliteTestGateway(t, nil)
	require.NoError(t, g.EnsureStorageExists(ctx))

	m := mustMigration(t, migration.New("1", "users", []string{"CREATE TABLE users (id INTEGER PRIMARY KEY)"}, []string{"DROP TABLE users"}))

	t.Run("it commits the transform together with the bookkeeping", func(t *testing.T) {
		err := g.InStep(ctx, func(ctx context.Context, scope database.StepScope) error {
			if err := m.Transform(migration.Up)(ctx, scope); err != nil {
				return err
			}
			return scope.MarkApplied(ctx, m)
		})
		require.NoError(t, err)

		tables, err := g.ShowTables(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"migration_versions", "users"}, tables)

		has, err := g.Has(ctx, m.Version)
		require.NoError(t, err)
		assert.True(t, has)
	})

	t.Run("it rolls back both on failure", func(t *testing.T) {
		boom := errors.New("boom")
		err := g.InStep(ctx, func(ctx context.Context, scope database.StepScope) error {
			if err := m.Transform(migration.Down)(ctx, scope); err != nil {
				return err
			}
			if err := scope.MarkReverted(ctx, m); err != nil {
				return err
			}
			return boom
		})
		require.Error(t, err)
		assert.True(t, errors.Is(err, boom))

		tables, err := g.ShowTables(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"migration_versions", "users"}, tables)

		has, err := g.Has(ctx, m.Version)
		require.NoError(t, err)
		assert.True(t, has)
	})

}

func TestSqliteGateway_Snapshot(t *testing.T) {
	ctx := context.Background()
	g := newSqliteTestGateway(t, nil)

	_, err := g.ExecContext(ctx, `
		CREATE TABLE users (
			id INTEGER PRIMARY KEY,
			email VARCHAR(255) NOT NULL UNIQUE,
			name TEXT
		);
		CREATE INDEX idx_users_name ON users (name);
		CREATE TABLE user_roles (user_id INTEGER NOT NULL, role TEXT NOT NULL, PRIMARY KEY (user_id, role));
	`)
	require.NoError(t, err)

	s, err := g.Snapshot(ctx)
	require.NoError(t, err)

	assert.Equal(t, []string{"user_roles", "users"}, s.TableNames())

	users := s.Tables["users"]
	require.Len(t, users.Columns, 3)
	assert.Equal(t, "email", users.Columns[1].Name)
	assert.Equal(t, "VARCHAR(255)", users.Columns[1].Type)
	assert.False(t, users.Columns[1].Nullable)
	assert.True(t, users.Columns[2].Nullable)
	assert.Equal(t, []string{"id"}, users.PrimaryKey)
	require.Len(t, users.Indexes, 2)

	roles := s.Tables["user_roles"]
	assert.Equal(t, []string{"user_id", "role"}, roles.PrimaryKey)
}

type fakeLockConn struct {
	execs   []string
	args    [][]interface{}
	lockVal sql.NullInt64
}

func (f *fakeLockConn) ExecContext(_ context.Context, query string, args ...interface{}) (sql.Result, error) {
	f.execs = append(f.execs, query)
	f.args = append(f.args, args)
	return nil, nil
}

func (f *fakeLockConn) GetContext(_ context.Context, dest interface{}, query string, args ...interface{}) error {
	f.execs = append(f.execs, query)
	f.args = append(f.args, args)
	*(dest.(*sql.NullInt64)) = f.lockVal
	return nil
}

func (f *fakeLockConn) Rebind(query string) string {
	return sqlx.Rebind(sqlx.DOLLAR, query)
}

func TestLockers(t *testing.T) {
	ctx := context.Background()

	t.Run("mysql lock and unlock", func(t *testing.T) {
		conn := &fakeLockConn{lockVal: sql.NullInt64{Int64: 1, Valid: true}}
		l := &mysqlLocker{lockKey: "foo", lockFor: 5}

		require.NoError(t, l.lock(ctx, conn))
		require.NoError(t, l.unlock(ctx, conn))

		assert.Equal(t, []string{"SELECT GET_LOCK(?, ?)", "SELECT RELEASE_LOCK(?)"}, conn.execs)
		assert.Equal(t, []interface{}{"foo", 5}, conn.args[0])
	})

	t.Run("mysql lock held by someone else", func(t *testing.T) {
		conn := &fakeLockConn{lockVal: sql.NullInt64{Int64: 0, Valid: true}}
		l := &mysqlLocker{lockKey: "foo", lockFor: 5}

		err := l.lock(ctx, conn)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrLockNotAcquired))
	})

	t.Run("postgres advisory lock", func(t *testing.T) {
		conn := &fakeLockConn{}
		l := &postgresLocker{lockKey: 42}

		require.NoError(t, l.lock(ctx, conn))
		require.NoError(t, l.unlock(ctx, conn))

		assert.Equal(t, []string{"SELECT pg_advisory_lock($1)", "SELECT pg_advisory_unlock($1)"}, conn.execs)
		assert.Equal(t, []interface{}{int64(42)}, conn.args[1])
	})

	t.Run("null locker does nothing", func(t *testing.T) {
		conn := &fakeLockConn{}
		require.NoError(t, nullLocker{}.lock(ctx, conn))
		require.NoError(t, nullLocker{}.unlock(ctx, conn))
		assert.Empty(t, conn.execs)
	})
}
