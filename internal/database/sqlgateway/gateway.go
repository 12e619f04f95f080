package sqlgateway

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"github.com/denismitr/tern/v4/internal/database"
	"github.com/denismitr/tern/v4/internal/logger"
	"github.com/denismitr/tern/v4/internal/schema"
	"github.com/denismitr/tern/v4/migration"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

// Gateway is a database.Connection over one dedicated SQL connection
type Gateway struct {
	connector Connector
	dialect   Dialect
	locker    locker
	table     string
	lg        logger.Logger
	now       migration.ClockFunc
}

var _ database.Connection = (*Gateway)(nil)

func newGateway(connector Connector, dialect Dialect, l locker, opts database.CommonOptions) *Gateway {
	opts = opts.WithDefaults()
	return &Gateway{
		connector: connector,
		dialect:   dialect,
		locker:    l,
		table:     opts.MigrationsTable,
		lg:        logger.NullLogger{},
		now:       time.Now,
	}
}

func NewSqliteGateway(connector Connector, opts *SqliteOptions) *Gateway {
	if opts == nil {
		opts = &SqliteOptions{}
	}
	return newGateway(connector, newSqliteDialect(opts.CommonOptions), nullLocker{}, opts.CommonOptions)
}

func NewMySQLGateway(connector Connector, opts *MySQLOptions) *Gateway {
	if opts == nil {
		opts = &MySQLOptions{}
	}

	var l locker = nullLocker{}
	if !opts.NoLock {
		key, lockFor := opts.LockKey, opts.LockFor
		if key == "" {
			key = MySQLDefaultLockKey
		}
		if lockFor <= 0 {
			lockFor = MySQLDefaultLockSeconds
		}
		l = &mysqlLocker{lockKey: key, lockFor: lockFor}
	}

	return newGateway(connector, newMySQLDialect(opts.CommonOptions, opts.Charset), l, opts.CommonOptions)
}

func NewPostgresGateway(connector Connector, opts *PostgresOptions) *Gateway {
	if opts == nil {
		opts = &PostgresOptions{}
	}

	var l locker = nullLocker{}
	if !opts.NoLock {
		key := opts.LockKey
		if key == 0 {
			key = PostgresDefaultLockKey
		}
		l = &postgresLocker{lockKey: key}
	}

	return newGateway(connector, newPostgresDialect(opts.CommonOptions), l, opts.CommonOptions)
}

func (g *Gateway) SetLogger(lg logger.Logger) {
	if lg != nil {
		g.lg = lg
	}
}

func (g *Gateway) MigrationsTable() string {
	return g.table
}

func (g *Gateway) Transactional() bool {
	return g.dialect.TransactionalDDL()
}

func (g *Gateway) Close() error {
	return g.connector.Close()
}

func (g *Gateway) conn(ctx context.Context) (*sqlx.Conn, error) {
	return g.connector.Connect(ctx)
}

func (g *Gateway) EnsureStorageExists(ctx context.Context) error {
	conn, err := g.conn(ctx)
	if err != nil {
		return err
	}

	q := g.dialect.InitQuery()
	g.lg.SQL(q)
	if _, err := conn.ExecContext(ctx, q); err != nil {
		return errors.Wrapf(err, "could not create migrations table [%s]", g.table)
	}

	return nil
}

func (g *Gateway) DropStorage(ctx context.Context) error {
	conn, err := g.conn(ctx)
	if err != nil {
		return err
	}

	q := g.dialect.DropQuery()
	g.lg.SQL(q)
	if _, err := conn.ExecContext(ctx, q); err != nil {
		return errors.Wrapf(err, "could not drop migrations table [%s]", g.table)
	}

	return nil
}

// All returns the applied versions in ascending order
func (g *Gateway) All(ctx context.Context) ([]migration.Version, error) {
	conn, err := g.conn(ctx)
	if err != nil {
		return nil, err
	}

	return g.readVersions(ctx, conn)
}

// Has reports whether a version equal to v is recorded, "002" finds "2"
func (g *Gateway) Has(ctx context.Context, v migration.Version) (bool, error) {
	applied, err := g.All(ctx)
	if err != nil {
		return false, errors.Wrapf(err, "could not check version [%s]", v)
	}

	return migration.InVersions(v, applied), nil
}

func (g *Gateway) MarkApplied(ctx context.Context, m *migration.Migration) error {
	conn, err := g.conn(ctx)
	if err != nil {
		return err
	}

	return g.insertVersion(ctx, conn, m)
}

func (g *Gateway) MarkReverted(ctx context.Context, m *migration.Migration) error {
	conn, err := g.conn(ctx)
	if err != nil {
		return err
	}

	return g.removeVersion(ctx, conn, m)
}

// MarkAllApplied records every migration not recorded yet, in one transaction
func (g *Gateway) MarkAllApplied(ctx context.Context, migrations migration.Migrations) error {
	return g.InStep(ctx, func(ctx context.Context, scope database.StepScope) error {
		s := scope.(*txScope)

		applied, err := g.readVersions(ctx, s.tx)
		if err != nil {
			return err
		}

		for _, m := range migrations {
			if migration.InVersions(m.Version, applied) {
				continue
			}

			if err := g.insertVersion(ctx, s.tx, m); err != nil {
				return err
			}
		}

		return nil
	})
}

func (g *Gateway) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	conn, err := g.conn(ctx)
	if err != nil {
		return nil, err
	}

	g.lg.SQL(query, args...)
	return conn.ExecContext(ctx, query, args...)
}

// InStep runs fn inside one transaction. The transaction is rolled back on
// every exit path except a successful return of fn and a successful commit.
func (g *Gateway) InStep(ctx context.Context, fn database.StepFunc) error {
	conn, err := g.conn(ctx)
	if err != nil {
		return err
	}

	tx, err := conn.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "could not start step transaction")
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			g.lg.Error(errors.Wrap(rbErr, "could not roll back step transaction"))
		}
	}()

	if err := fn(ctx, &txScope{tx: tx, g: g}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "could not commit step transaction")
	}
	committed = true

	return nil
}

// Lock takes the dialect lock on the gateway connection
func (g *Gateway) Lock(ctx context.Context) (database.ReleaseFunc, error) {
	conn, err := g.conn(ctx)
	if err != nil {
		return nil, err
	}

	if err := g.locker.lock(ctx, conn); err != nil {
		return nil, err
	}

	return func(ctx context.Context) error {
		return g.locker.unlock(ctx, conn)
	}, nil
}

func (g *Gateway) ShowTables(ctx context.Context) ([]string, error) {
	conn, err := g.conn(ctx)
	if err != nil {
		return nil, err
	}

	var tables []string
	if err := conn.SelectContext(ctx, &tables, g.dialect.ShowTablesQuery()); err != nil {
		return nil, errors.Wrap(err, "could not list all tables")
	}

	return tables, nil
}

// Snapshot reads tables, columns and indexes of the live database
func (g *Gateway) Snapshot(ctx context.Context) (schema.Snapshot, error) {
	conn, err := g.conn(ctx)
	if err != nil {
		return schema.Snapshot{}, err
	}

	tables, err := g.ShowTables(ctx)
	if err != nil {
		return schema.Snapshot{}, err
	}

	var columns []schema.ColumnRow
	if err := conn.SelectContext(ctx, &columns, g.dialect.ColumnsQuery()); err != nil {
		return schema.Snapshot{}, errors.Wrap(err, "could not read columns")
	}

	var indexes []schema.IndexRow
	if err := conn.SelectContext(ctx, &indexes, g.dialect.IndexesQuery()); err != nil {
		return schema.Snapshot{}, errors.Wrap(err, "could not read indexes")
	}

	return schema.Assemble(tables, columns, indexes), nil
}

type queryer interface {
	sqlx.ExecerContext
	sqlx.QueryerContext
	Rebind(query string) string
}

type versionRow struct {
	Version   string         `db:"version"`
	Name      sql.NullString `db:"name"`
	AppliedAt appliedAt      `db:"applied_at"`
}

func (g *Gateway) readVersions(ctx context.Context, q queryer) ([]migration.Version, error) {
	query := g.dialect.ReadVersionsQuery()
	g.lg.SQL(query)

	var rows []versionRow
	if err := sqlx.SelectContext(ctx, q, &rows, query); err != nil {
		return nil, errors.Wrapf(err, "could not read versions from [%s]", g.table)
	}

	result := make([]migration.Version, 0, len(rows))
	for _, row := range rows {
		v, err := migration.ParseVersion(row.Version)
		if err != nil {
			return nil, errors.Wrapf(err, "stored version [%s] is malformed", row.Version)
		}
		v.MigratedAt = time.Time(row.AppliedAt)
		result = append(result, v)
	}

	sort.Slice(result, func(i, j int) bool { return result[i].Less(result[j]) })

	return result, nil
}

func (g *Gateway) insertVersion(ctx context.Context, q queryer, m *migration.Migration) error {
	query, args := g.dialect.InsertQuery(m, g.now())
	query = q.Rebind(query)
	g.lg.SQL(query, args...)

	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return errors.Wrapf(err, "could not insert migration version [%s] name [%s]", m.Version, m.Name)
	}

	return nil
}

// removeVersion deletes the recorded row equal to the migration version,
// using the spelling it was stored with
func (g *Gateway) removeVersion(ctx context.Context, q queryer, m *migration.Migration) error {
	applied, err := g.readVersions(ctx, q)
	if err != nil {
		return err
	}

	stored, ok := migration.FindVersion(m.Version, applied)
	if !ok {
		g.lg.Debugf("version [%s] is not recorded, nothing to remove", m.Version)
		return nil
	}

	query, args := g.dialect.RemoveQuery(&migration.Migration{Version: stored, Name: m.Name})
	query = q.Rebind(query)
	g.lg.SQL(query, args...)

	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return errors.Wrapf(err, "could not remove migration version [%s] name [%s]", m.Version, m.Name)
	}

	return nil
}

// txScope is the database.StepScope of one InStep call
type txScope struct {
	tx *sqlx.Tx
	g  *Gateway
}

var _ database.StepScope = (*txScope)(nil)

func (s *txScope) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	s.g.lg.SQL(query, args...)
	return s.tx.ExecContext(ctx, query, args...)
}

func (s *txScope) MarkApplied(ctx context.Context, m *migration.Migration) error {
	return s.g.insertVersion(ctx, s.tx, m)
}

func (s *txScope) MarkReverted(ctx context.Context, m *migration.Migration) error {
	return s.g.removeVersion(ctx, s.tx, m)
}
