package cli

import (
	"database/sql"
	"strings"

	"github.com/denismitr/tern/v4"
	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

var (
	ErrDatabaseURLMissing = errors.New("database url was not defined")
	ErrUnknownDriver      = errors.New("unknown database driver")
)

type (
	// openedDatabase is a handle together with the migrator option using it
	openedDatabase struct {
		db     *sql.DB
		option tern.OptionFunc
	}

	databaseFactory    func(dsn, table string) (*openedDatabase, error)
	databaseFactoryMap map[string]databaseFactory
)

var databaseFactories = databaseFactoryMap{
	"sqlite":     openModernSqlite,
	"sqlite3":    openMattnSqlite,
	"mysql":      openMySQL,
	"postgres":   openPostgres,
	"postgresql": openPostgres,
}

// openDatabase accepts sqlite://path (pure Go driver), sqlite3://path (cgo driver),
// mysql://dsn and postgres://url
func openDatabase(url, table string) (*openedDatabase, error) {
	if url == "" {
		return nil, ErrDatabaseURLMissing
	}

	scheme, dsn, ok := strings.Cut(url, "://")
	if !ok {
		return nil, errors.Wrapf(ErrUnknownDriver, "url [%s] has no scheme", url)
	}

	scheme = strings.ToLower(scheme)
	factory, ok := databaseFactories[scheme]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownDriver, "could not find factory for driver [%s]", scheme)
	}

	if scheme == "postgres" || scheme == "postgresql" {
		dsn = url
	}

	return factory(dsn, table)
}

func openModernSqlite(dsn, table string) (*openedDatabase, error) {
	return openSqlite("sqlite", dsn, table)
}

func openMattnSqlite(dsn, table string) (*openedDatabase, error) {
	return openSqlite("sqlite3", dsn, table)
}

func openSqlite(driver, dsn, table string) (*openedDatabase, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "could not open %s database", driver)
	}
	// :memory: databases live and die with their connection
	db.SetMaxOpenConns(1)

	var opts []tern.SqliteOptionFunc
	if table != "" {
		opts = append(opts, tern.WithSqliteMigrationTable(table))
	}

	return &openedDatabase{db: db, option: tern.UseSqlite(db, opts...)}, nil
}

// mysqlDSN turns on the flags migration scripts depend on
func mysqlDSN(dsn string) (string, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return "", errors.Wrap(err, "could not parse mysql dsn")
	}

	cfg.MultiStatements = true
	cfg.ParseTime = true

	return cfg.FormatDSN(), nil
}

func openMySQL(dsn, table string) (*openedDatabase, error) {
	normalized, err := mysqlDSN(dsn)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("mysql", normalized)
	if err != nil {
		return nil, errors.Wrap(err, "could not open mysql database")
	}

	var opts []tern.MySQLOptionFunc
	if table != "" {
		opts = append(opts, tern.WithMySQLMigrationTable(table))
	}

	return &openedDatabase{db: db, option: tern.UseMySQL(db, opts...)}, nil
}

func openPostgres(url, table string) (*openedDatabase, error) {
	dsn, err := pq.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "could not parse postgres url")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "could not open postgres database")
	}

	var opts []tern.PostgresOptionFunc
	if table != "" {
		opts = append(opts, tern.WithPostgresMigrationTable(table))
	}

	return &openedDatabase{db: db, option: tern.UsePostgres(db, opts...)}, nil
}
