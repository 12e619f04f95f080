package sqlgateway

import (
	"context"
	"sync"
	"time"

	"github.com/denismitr/tern/v4/internal/retry"
	"github.com/denismitr/tern/v4/migration"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

const (
	DefaultConnectionAttempts    = 10
	DefaultConnectionTimeout     = 60 * time.Second
	DefaultConnectionAttemptStep = 500 * time.Millisecond
)

type ConnectOptions struct {
	MaxAttempts int
	MaxTimeout  time.Duration
	RetryStep   time.Duration
}

func NewDefaultConnectOptions() *ConnectOptions {
	return &ConnectOptions{
		MaxAttempts: DefaultConnectionAttempts,
		MaxTimeout:  DefaultConnectionTimeout,
		RetryStep:   DefaultConnectionAttemptStep,
	}
}

// Connector hands out the one connection a gateway works through
type Connector interface {
	Connect(ctx context.Context) (*sqlx.Conn, error)
	Close() error
}

type RetryingConnector struct {
	mu      sync.Mutex
	options ConnectOptions
	db      *sqlx.DB
	conn    *sqlx.Conn
}

var _ Connector = (*RetryingConnector)(nil)

func NewRetryingConnector(db *sqlx.DB, options *ConnectOptions) *RetryingConnector {
	if options == nil {
		options = NewDefaultConnectOptions()
	}
	return &RetryingConnector{db: db, options: *options}
}

// Connect returns the same connection on every call while it answers a ping,
// a dropped connection is replaced. Failures are reported as
// migration.ErrStorageUnavailable.
func (c *RetryingConnector) Connect(ctx context.Context) (*sqlx.Conn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, "could not connect to DB")
	}

	if c.conn != nil {
		err := c.conn.PingContext(ctx)
		if err == nil {
			return c.conn, nil
		}
		if ctx.Err() != nil {
			return nil, errors.Wrap(ctx.Err(), "could not check the DB connection")
		}

		_ = c.conn.Close()
		c.conn = nil
	}

	if c.db == nil {
		return nil, errors.Wrap(migration.ErrStorageUnavailable, "no database handle")
	}

	connectCtx := ctx
	if c.options.MaxTimeout > 0 {
		var cancel context.CancelFunc
		connectCtx, cancel = context.WithTimeout(ctx, c.options.MaxTimeout)
		defer cancel()
	}

	err := retry.Incremental(connectCtx, c.options.RetryStep, c.options.MaxAttempts, func(ctx context.Context, attempt int) error {
		conn, err := c.db.Connx(ctx)
		if err != nil {
			return retry.Retryable(errors.Wrap(err, "could not establish DB connection"), attempt)
		}

		if err := conn.PingContext(ctx); err != nil {
			_ = conn.Close()
			return retry.Retryable(errors.Wrap(err, "db ping failed"), attempt)
		}

		c.conn = conn
		return nil
	})

	if err != nil {
		return nil, errors.Wrap(migration.ErrStorageUnavailable, err.Error())
	}

	return c.conn, nil
}

func (c *RetryingConnector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}

	err := c.conn.Close()
	c.conn = nil
	if err != nil {
		return errors.Wrap(err, "retrying connector could not close the connection")
	}

	return nil
}
