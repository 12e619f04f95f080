package tern

import (
	"context"

	"github.com/denismitr/tern/v4/internal/database"
	"github.com/denismitr/tern/v4/internal/executor"
	"github.com/denismitr/tern/v4/internal/logger"
	"github.com/denismitr/tern/v4/internal/metrics"
	"github.com/denismitr/tern/v4/internal/planner"
	"github.com/denismitr/tern/v4/internal/registry"
	"github.com/denismitr/tern/v4/internal/schema"
	"github.com/denismitr/tern/v4/internal/source"
	"github.com/denismitr/tern/v4/migration"
	"github.com/pkg/errors"
)

var ErrGatewayNotInitialized = errors.New("database gateway has not been initialized")

type CloserFunc func() error

type Migrator struct {
	lg        logger.Logger
	conn      database.Connection
	selector  source.Selector
	sourceFn  func(lg logger.Logger) (source.Selector, error)
	collector *metrics.Collector
	policy    schema.Policy
	closerFns []CloserFunc
	executor  *executor.Executor
}

// NewMigrator creates a migrator using option callbacks to customize
// the newly created migrator, a database option is required and when no
// source is given the ./migrations folder is used
func NewMigrator(opts ...OptionFunc) (*Migrator, CloserFunc, error) {
	m := new(Migrator)
	m.lg = logger.NullLogger{}
	m.policy = schema.DefaultPolicy()

	for _, oFunc := range opts {
		if err := oFunc(m); err != nil {
			return nil, nil, err
		}
	}

	if m.conn == nil {
		return nil, nil, ErrGatewayNotInitialized
	}

	if m.sourceFn == nil {
		m.sourceFn = func(lg logger.Logger) (source.Selector, error) {
			return source.NewLocalFSSource(source.DefaultMigrationsFolder, lg, migration.AnyFormat)
		}
	}

	selector, err := m.sourceFn(m.lg)
	if err != nil {
		if closeErr := m.close(); closeErr != nil {
			return nil, nil, errors.Wrap(err, closeErr.Error())
		}
		return nil, nil, err
	}
	m.selector = selector

	m.conn.SetLogger(m.lg)
	m.policy.IgnoreTables = append(m.policy.IgnoreTables, m.conn.MigrationsTable())

	var execOpts []executor.OptionFunc
	if m.collector != nil {
		execOpts = append(execOpts, executor.WithObserver(m.collector))
	}
	m.executor = executor.New(m.lg, execOpts...)

	return m, m.close, nil
}

// Migrate moves the database to the target version, latest by default
func (m *Migrator) Migrate(ctx context.Context, cfs ...ActionConfigurator) (*Report, error) {
	act := newAction(cfs...)

	var report *Report
	err := m.locked(ctx, func(ctx context.Context) error {
		st, err := m.load(ctx)
		if err != nil {
			return err
		}

		plan, err := st.planTo(act.target)
		if err != nil {
			return err
		}

		report, err = m.execute(ctx, plan.Limit(act.steps))
		return err
	})

	return report, err
}

// Plan resolves the target and computes the plan Migrate would execute,
// only the version table is created when missing
func (m *Migrator) Plan(ctx context.Context, cfs ...ActionConfigurator) (Plan, error) {
	act := newAction(cfs...)

	if err := m.conn.EnsureStorageExists(ctx); err != nil {
		return Plan{}, err
	}

	st, err := m.load(ctx)
	if err != nil {
		return Plan{}, err
	}

	plan, err := st.planTo(act.target)
	if err != nil {
		return Plan{}, err
	}

	return plan.Limit(act.steps), nil
}

// Rollback reverts applied migrations, newest first. Without a steps
// limit every applied migration is reverted.
func (m *Migrator) Rollback(ctx context.Context, cfs ...ActionConfigurator) (*Report, error) {
	act := newAction(cfs...)

	var report *Report
	err := m.locked(ctx, func(ctx context.Context) error {
		st, err := m.load(ctx)
		if err != nil {
			return err
		}

		plan := planner.Build(st.applied, migration.Initial, st.registry.Migrations()).Limit(act.steps)
		report, err = m.execute(ctx, plan)
		return err
	})

	return report, err
}

// Refresh first rolls back the migrations and then migrates to latest again,
// a steps limit applies to the rollback
func (m *Migrator) Refresh(ctx context.Context, cfs ...ActionConfigurator) (*Report, *Report, error) {
	act := newAction(cfs...)

	var rolledBack, migrated *Report
	err := m.locked(ctx, func(ctx context.Context) error {
		st, err := m.load(ctx)
		if err != nil {
			return err
		}

		ms := st.registry.Migrations()

		rolledBack, err = m.execute(ctx, planner.Build(st.applied, migration.Initial, ms).Limit(act.steps))
		if err != nil {
			return err
		}

		applied, err := m.conn.All(ctx)
		if err != nil {
			return err
		}

		migrated, err = m.execute(ctx, planner.Build(applied, st.registry.Latest(), ms))
		return err
	})

	return rolledBack, migrated, err
}

// MarkAllApplied records every known migration as applied without running it
func (m *Migrator) MarkAllApplied(ctx context.Context) error {
	return m.locked(ctx, func(ctx context.Context) error {
		st, err := m.load(ctx)
		if err != nil {
			return err
		}

		if err := m.conn.MarkAllApplied(ctx, st.registry.Migrations()); err != nil {
			return err
		}

		return m.reportApplied(ctx)
	})
}

// MarkApplied records the given known versions as applied without running them
func (m *Migrator) MarkApplied(ctx context.Context, cfs ...ActionConfigurator) error {
	act := newAction(cfs...)

	return m.locked(ctx, func(ctx context.Context) error {
		st, err := m.load(ctx)
		if err != nil {
			return err
		}

		for _, v := range act.versions {
			mg, ok := st.registry.Get(v)
			if !ok {
				return errors.Wrapf(migration.ErrUnknownVersion, "version [%s]", v)
			}

			if migration.InVersions(v, st.applied) {
				m.lg.Debugf("version [%s] is already applied", v)
				continue
			}

			if err := m.conn.MarkApplied(ctx, mg); err != nil {
				return err
			}
			m.lg.Successf("Marked version [%s] as applied", v)
		}

		return m.reportApplied(ctx)
	})
}

// MarkReverted removes versions from the applied set without running them.
// Unknown versions can be removed, which is how a corrupt state is repaired.
// WithAll removes every recorded version.
func (m *Migrator) MarkReverted(ctx context.Context, cfs ...ActionConfigurator) error {
	act := newAction(cfs...)

	return m.locked(ctx, func(ctx context.Context) error {
		applied, err := m.conn.All(ctx)
		if err != nil {
			return err
		}

		versions := act.versions
		if act.all {
			versions = applied
		}

		for _, v := range versions {
			stored, ok := migration.FindVersion(v, applied)
			if !ok {
				m.lg.Debugf("version [%s] is not applied", v)
				continue
			}

			if err := m.conn.MarkReverted(ctx, &migration.Migration{Version: stored}); err != nil {
				return err
			}
			m.lg.Successf("Removed version [%s] from the applied versions", stored)
		}

		return m.reportApplied(ctx)
	})
}

// EnsureStorage creates the version table when it does not exist
func (m *Migrator) EnsureStorage(ctx context.Context) error {
	return m.conn.EnsureStorageExists(ctx)
}

// DropStorage drops the version table, the migrated schema is kept
func (m *Migrator) DropStorage(ctx context.Context) error {
	return m.conn.DropStorage(ctx)
}

// Source returns the migrator selector if it implements the full source.Source interface
func (m *Migrator) Source() source.Source {
	if s, ok := m.selector.(source.Source); ok {
		return s
	}

	return nil
}

// ShowTables lists the tables of the database, the version table included
func (m *Migrator) ShowTables(ctx context.Context) ([]string, error) {
	return m.conn.ShowTables(ctx)
}

// Close the migrator
func (m *Migrator) close() error {
	if m.conn == nil {
		return ErrGatewayNotInitialized
	}

	var result error
	for i := len(m.closerFns) - 1; i >= 0; i-- {
		if err := m.closerFns[i](); err != nil {
			m.lg.Error(err)
			result = err
		}
	}

	return result
}

// locked makes sure the version table exists and runs fn holding the dialect lock
func (m *Migrator) locked(ctx context.Context, fn func(ctx context.Context) error) error {
	release, err := m.conn.Lock(ctx)
	if err != nil {
		m.lg.Error(err)
		return err
	}

	defer func() {
		if err := release(context.Background()); err != nil {
			m.lg.Error(err)
		}
	}()

	if err := m.conn.EnsureStorageExists(ctx); err != nil {
		m.lg.Error(err)
		return err
	}

	if err := fn(ctx); err != nil {
		if !errors.Is(err, migration.ErrStepFailed) {
			m.lg.Error(err)
		}
		return err
	}

	return nil
}

type state struct {
	registry *registry.Registry
	applied  []migration.Version
}

// load reads the known migrations and the applied versions, an applied
// version no migration declares fails with a CorruptStateError
func (m *Migrator) load(ctx context.Context) (*state, error) {
	st, err := m.loadUnverified(ctx)
	if err != nil {
		return nil, err
	}

	if err := st.registry.Verify(st.applied); err != nil {
		return nil, err
	}

	return st, nil
}

func (m *Migrator) loadUnverified(ctx context.Context) (*state, error) {
	migrations, err := m.selector.Select(ctx, source.Filter{})
	if err != nil {
		return nil, errors.Wrap(err, "could not select migrations")
	}

	reg, err := registry.New(migrations)
	if err != nil {
		return nil, err
	}

	applied, err := m.conn.All(ctx)
	if err != nil {
		return nil, err
	}

	return &state{registry: reg, applied: applied}, nil
}

func (st *state) planTo(symbol string) (Plan, error) {
	target, err := st.registry.Resolve(symbol, st.applied)
	if err != nil {
		return Plan{}, err
	}

	return planner.Build(st.applied, target, st.registry.Migrations()), nil
}

func (m *Migrator) execute(ctx context.Context, plan Plan) (*Report, error) {
	report, err := m.executor.Execute(ctx, m.conn, plan)

	if m.collector != nil {
		m.collector.ObserveRun(err)
		if appliedErr := m.reportApplied(ctx); appliedErr != nil {
			m.lg.Error(appliedErr)
		}
	}

	return report, err
}

func (m *Migrator) reportApplied(ctx context.Context) error {
	if m.collector == nil {
		return nil
	}

	applied, err := m.conn.All(ctx)
	if err != nil {
		return err
	}

	m.collector.SetApplied(len(applied))
	return nil
}
