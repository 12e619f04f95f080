package sqlgateway

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
)

var ErrLockNotAcquired = errors.New("migrations lock could not be acquired")

type lockConn interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	Rebind(query string) string
}

type locker interface {
	lock(ctx context.Context, conn lockConn) error
	unlock(ctx context.Context, conn lockConn) error
}

type nullLocker struct{}

func (nullLocker) lock(context.Context, lockConn) error {
	return nil
}

func (nullLocker) unlock(context.Context, lockConn) error {
	return nil
}

// mysqlLocker uses a named session lock
type mysqlLocker struct {
	lockKey string
	lockFor int
}

func (l *mysqlLocker) lock(ctx context.Context, conn lockConn) error {
	var acquired sql.NullInt64
	if err := conn.GetContext(ctx, &acquired, "SELECT GET_LOCK(?, ?)", l.lockKey, l.lockFor); err != nil {
		return errors.Wrapf(err, "could not obtain [%s] exclusive MySQL DB lock for [%d] seconds", l.lockKey, l.lockFor)
	}

	if !acquired.Valid || acquired.Int64 != 1 {
		return errors.Wrapf(ErrLockNotAcquired, "MySQL lock [%s] is held by another session", l.lockKey)
	}

	return nil
}

func (l *mysqlLocker) unlock(ctx context.Context, conn lockConn) error {
	if _, err := conn.ExecContext(ctx, "SELECT RELEASE_LOCK(?)", l.lockKey); err != nil {
		return errors.Wrapf(err, "could not release [%s] exclusive MySQL DB lock", l.lockKey)
	}

	return nil
}

// postgresLocker uses a session level advisory lock, it waits until the lock
// is free or the context is done
type postgresLocker struct {
	lockKey int64
}

func (l *postgresLocker) lock(ctx context.Context, conn lockConn) error {
	if _, err := conn.ExecContext(ctx, conn.Rebind("SELECT pg_advisory_lock(?)"), l.lockKey); err != nil {
		return errors.Wrapf(err, "could not obtain [%d] postgres advisory lock", l.lockKey)
	}

	return nil
}

func (l *postgresLocker) unlock(ctx context.Context, conn lockConn) error {
	if _, err := conn.ExecContext(ctx, conn.Rebind("SELECT pg_advisory_unlock(?)"), l.lockKey); err != nil {
		return errors.Wrapf(err, "could not release [%d] postgres advisory lock", l.lockKey)
	}

	return nil
}
