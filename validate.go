package tern

import (
	"context"

	"github.com/denismitr/tern/v4/internal/registry"
	"github.com/denismitr/tern/v4/internal/schema"
	"github.com/denismitr/tern/v4/internal/source"
	"github.com/pkg/errors"
)

// Validate compares the live schema with the declared one. Divergences
// are data, not errors, an error means the comparison could not be made.
func (m *Migrator) Validate(ctx context.Context, declared Snapshot) ([]Divergence, error) {
	live, err := m.conn.Snapshot(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "could not read the live schema")
	}

	divergences := schema.Compare(live, declared, m.policy)
	for _, d := range divergences {
		m.lg.Debugf("schema divergence: %s", d)
	}

	if m.collector != nil {
		m.collector.SetDivergences(len(divergences))
	}

	return divergences, nil
}

// DeclaredSchema derives the schema of the latest version from the migrate
// scripts without touching any database
func (m *Migrator) DeclaredSchema(ctx context.Context) (Snapshot, error) {
	migrations, err := m.selector.Select(ctx, source.Filter{})
	if err != nil {
		return Snapshot{}, errors.Wrap(err, "could not select migrations")
	}

	reg, err := registry.New(migrations)
	if err != nil {
		return Snapshot{}, err
	}

	return schema.Declare(reg.Migrations())
}

// ReplaySchema applies every known migration to the scratch database of the
// shadow migrator and reads its schema. The shadow database should be empty.
func (m *Migrator) ReplaySchema(ctx context.Context, shadow *Migrator) (Snapshot, error) {
	migrations, err := m.selector.Select(ctx, source.Filter{})
	if err != nil {
		return Snapshot{}, errors.Wrap(err, "could not select migrations")
	}

	reg, err := registry.New(migrations)
	if err != nil {
		return Snapshot{}, err
	}

	return schema.Replay(ctx, shadow.conn, reg.Migrations())
}

// ParseSchema reads a declared schema from a DDL script
func ParseSchema(ddl string) (Snapshot, error) {
	return schema.ParseDDL(ddl)
}
