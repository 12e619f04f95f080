package schema

import (
	"context"

	"github.com/denismitr/tern/v4/migration"
	"github.com/pkg/errors"
)

// ReplayTarget is a scratch database every migration can be applied to
type ReplayTarget interface {
	migration.Executor
	Reader
}

// Replay applies the up transform of every migration, in order, to a scratch
// database and returns its snapshot. Nothing is recorded as applied.
func Replay(ctx context.Context, target ReplayTarget, migrations migration.Migrations) (Snapshot, error) {
	for _, m := range migrations {
		if err := ctx.Err(); err != nil {
			return Snapshot{}, err
		}

		if err := m.Transform(migration.Up)(ctx, target); err != nil {
			return Snapshot{}, errors.Wrapf(err, "could not replay migration [%s]", m.Key)
		}
	}

	return target.Snapshot(ctx)
}

// Declare derives a snapshot from the migrate scripts alone, without a
// database. Migrations implemented in Go cannot be declared this way.
func Declare(migrations migration.Migrations) (Snapshot, error) {
	s := NewSnapshot()

	for _, m := range migrations {
		if m.Up != nil {
			return Snapshot{}, errors.Errorf("migration [%s] is implemented in Go, replay it instead", m.Key)
		}

		for _, script := range m.Migrate {
			if err := s.Apply(script); err != nil {
				return Snapshot{}, errors.Wrapf(err, "could not declare migration [%s]", m.Key)
			}
		}
	}

	return s, nil
}
