package executor

import (
	"context"
	"time"

	"github.com/denismitr/tern/v4/internal/database"
	"github.com/denismitr/tern/v4/internal/logger"
	"github.com/denismitr/tern/v4/internal/planner"
	"github.com/denismitr/tern/v4/migration"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Observer is notified after every executed step
type Observer interface {
	ObserveStep(d migration.Direction, err error, took time.Duration)
}

type nullObserver struct{}

func (nullObserver) ObserveStep(migration.Direction, error, time.Duration) {}

type StepResult struct {
	Version   migration.Version
	Name      string
	Direction migration.Direction
	Duration  time.Duration
	Err       error
}

// Report describes one execution of a plan
type Report struct {
	RunID     uuid.UUID
	Target    migration.Version
	Direction migration.Direction
	Attempted int
	Succeeded int
	Steps     []StepResult
	Failure   *migration.StepError
	StartedAt time.Time
	Duration  time.Duration
}

func (r *Report) Failed() bool {
	return r.Failure != nil
}

// Migrations that ran to completion, in execution order
func (r *Report) Completed() []migration.Version {
	var result []migration.Version
	for _, s := range r.Steps {
		if s.Err == nil {
			result = append(result, s.Version)
		}
	}
	return result
}

type OptionFunc func(e *Executor)

func WithObserver(o Observer) OptionFunc {
	return func(e *Executor) {
		if o != nil {
			e.observer = o
		}
	}
}

func WithClock(c migration.ClockFunc) OptionFunc {
	return func(e *Executor) {
		if c != nil {
			e.now = c
		}
	}
}

type Executor struct {
	lg       logger.Logger
	observer Observer
	now      migration.ClockFunc
}

func New(lg logger.Logger, opts ...OptionFunc) *Executor {
	if lg == nil {
		lg = logger.NullLogger{}
	}

	e := &Executor{lg: lg, observer: nullObserver{}, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Execute runs the plan steps one by one, each in its own step scope.
// The first failing step stops the run, the returned error is then the
// *migration.StepError also found in Report.Failure. An empty plan is a
// successful run with nothing attempted.
func (e *Executor) Execute(ctx context.Context, conn database.Connection, plan planner.Plan) (*Report, error) {
	report := &Report{
		RunID:     uuid.New(),
		Target:    plan.Target,
		Direction: plan.Direction,
		StartedAt: e.now(),
	}
	defer func() {
		report.Duration = e.now().Sub(report.StartedAt)
	}()

	if plan.Empty() {
		e.lg.Debugf("run [%s]: nothing to do, already at version [%s]", report.RunID, plan.Target)
		return report, nil
	}

	e.lg.Debugf("run [%s]: %d step(s) %s to version [%s]", report.RunID, plan.Len(), plan.Direction, plan.Target)

	for _, step := range plan.Steps {
		if err := ctx.Err(); err != nil {
			return report, errors.Wrapf(err, "run [%s] stopped before version [%s]", report.RunID, step.Migration.Version)
		}

		report.Attempted++

		started := e.now()
		transformed, err := e.run(ctx, conn, step)
		took := e.now().Sub(started)

		e.observer.ObserveStep(step.Direction, err, took)
		report.Steps = append(report.Steps, StepResult{
			Version:   step.Migration.Version,
			Name:      step.Migration.Name,
			Direction: step.Direction,
			Duration:  took,
			Err:       err,
		})

		if err != nil {
			report.Failure = &migration.StepError{
				Version:   step.Migration.Version,
				Name:      step.Migration.Name,
				Direction: step.Direction,
				State:     failureState(step.Direction, transformed && !conn.Transactional()),
				Err:       err,
			}
			e.lg.Error(report.Failure)
			return report, report.Failure
		}

		report.Succeeded++
		e.lg.Successf("%s migration [%s] in %s", pastTense(step.Direction), step.Migration.Key, took)
	}

	return report, nil
}

// run reports whether the transform was started, so a failure can tell
// whether anything may have changed outside the transaction
func (e *Executor) run(ctx context.Context, conn database.Connection, step planner.Step) (bool, error) {
	transformed := false

	err := conn.InStep(ctx, func(ctx context.Context, scope database.StepScope) error {
		transformed = true
		m := step.Migration

		if err := step.Transform()(ctx, scope); err != nil {
			return errors.Wrapf(err, "could not %s migration [%s]", verb(step.Direction), m.Key)
		}

		if step.Direction == migration.Down {
			return scope.MarkReverted(ctx, m)
		}

		return scope.MarkApplied(ctx, m)
	})

	return transformed, err
}

// failureState is the pre-state when the failed step left nothing behind,
// otherwise the unresolved transient state
func failureState(d migration.Direction, unresolved bool) migration.State {
	switch {
	case d == migration.Down && unresolved:
		return migration.Reverting
	case d == migration.Down:
		return migration.Applied
	case unresolved:
		return migration.Applying
	default:
		return migration.NotApplied
	}
}

func verb(d migration.Direction) string {
	if d == migration.Down {
		return "rollback"
	}
	return "run"
}

func pastTense(d migration.Direction) string {
	if d == migration.Down {
		return "Rolled back"
	}
	return "Migrated"
}
