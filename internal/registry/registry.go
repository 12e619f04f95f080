package registry

import (
	"sort"
	"strings"

	"github.com/denismitr/tern/v4/migration"
	"github.com/pkg/errors"
)

// Symbols understood by Resolve besides explicit versions
const (
	Latest  = "latest"
	First   = "first"
	Next    = "next"
	Prev    = "prev"
	Current = "current"
)

// Registry holds the known migrations in ascending version order.
// It is never mutated after New.
type Registry struct {
	migrations migration.Migrations
	byVersion  map[string]*migration.Migration
}

func New(migrations migration.Migrations) (*Registry, error) {
	for i, m := range migrations {
		if m == nil {
			return nil, errors.Errorf("migration at position %d is nil", i)
		}
	}

	sorted := make(migration.Migrations, len(migrations))
	copy(sorted, migrations)
	sort.Stable(sorted)

	r := &Registry{
		migrations: sorted,
		byVersion:  make(map[string]*migration.Migration, len(sorted)),
	}

	for i, m := range sorted {
		if i > 0 && sorted[i-1].Version.Equal(m.Version) {
			return nil, errors.Wrapf(
				migration.ErrDuplicateVersion,
				"version [%s] is declared by [%s] and [%s]", m.Version, sorted[i-1].Key, m.Key,
			)
		}

		r.byVersion[m.Version.Canonical()] = m
	}

	return r, nil
}

// Migrations returns a copy of the ordered migrations
func (r *Registry) Migrations() migration.Migrations {
	result := make(migration.Migrations, len(r.migrations))
	copy(result, r.migrations)
	return result
}

func (r *Registry) Len() int {
	return len(r.migrations)
}

// Latest is the greatest known version or migration.Initial
func (r *Registry) Latest() migration.Version {
	if len(r.migrations) == 0 {
		return migration.Initial
	}
	return r.migrations[len(r.migrations)-1].Version
}

func (r *Registry) Get(v migration.Version) (*migration.Migration, bool) {
	m, ok := r.byVersion[v.Canonical()]
	return m, ok
}

// Verify fails with a migration.CorruptStateError listing every applied
// version no known migration declares
func (r *Registry) Verify(applied []migration.Version) error {
	var unknown []migration.Version
	for _, v := range applied {
		if _, ok := r.Get(v); !ok {
			unknown = append(unknown, v)
		}
	}

	if len(unknown) > 0 {
		return &migration.CorruptStateError{Versions: unknown}
	}

	return nil
}

// Resolve turns a symbol or an explicit version into a target version
// relative to the applied versions
func (r *Registry) Resolve(symbol string, applied []migration.Version) (migration.Version, error) {
	current := migration.MaxVersion(applied)

	switch strings.ToLower(strings.TrimSpace(symbol)) {
	case Latest, "":
		return r.Latest(), nil
	case First:
		return migration.Initial, nil
	case Current:
		return current, nil
	case Next:
		for _, m := range r.migrations {
			if current.Less(m.Version) {
				return m.Version, nil
			}
		}
		return current, nil
	case Prev:
		for i := len(r.migrations) - 1; i >= 0; i-- {
			if r.migrations[i].Version.Less(current) {
				return r.migrations[i].Version, nil
			}
		}
		return migration.Initial, nil
	}

	v, err := migration.ParseVersion(symbol)
	if err != nil {
		return migration.Initial, errors.Wrapf(migration.ErrUnknownVersion, "%s: %s", symbol, err.Error())
	}

	m, ok := r.Get(v)
	if !ok {
		return migration.Initial, errors.Wrapf(migration.ErrUnknownVersion, "version [%s]", symbol)
	}

	return m.Version, nil
}
