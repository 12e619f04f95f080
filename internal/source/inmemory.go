package source

import (
	"context"
	"sort"

	"github.com/denismitr/tern/v4/migration"
	"github.com/pkg/errors"
)

var ErrNoMigrations = errors.New("no migrations")

type InMemorySource struct {
	migrations migration.Migrations
}

var _ Selector = (*InMemorySource)(nil)

func (c *InMemorySource) Select(ctx context.Context, f Filter) (migration.Migrations, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if c.migrations == nil {
		return nil, ErrNoMigrations
	}

	result := make(migration.Migrations, len(c.migrations))
	copy(result, c.migrations)
	sort.Stable(result)

	return filterMigrations(result, f), nil
}

func NewInMemorySource(factories ...migration.Factory) (*InMemorySource, error) {
	m, err := migration.NewMigrations(factories...)
	if err != nil {
		return nil, err
	}

	return &InMemorySource{
		migrations: m,
	}, nil
}
