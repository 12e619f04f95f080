package source

import (
	"context"
	"strings"
	"unicode"

	"github.com/denismitr/tern/v4/migration"
	"github.com/pkg/errors"
)

var (
	ErrInvalidVersion      = errors.New("invalid version in migration filename")
	ErrNotAMigrationFile   = errors.New("not a migration file")
	ErrTooManyFilesForKey  = errors.New("too many files for single migration key")
	ErrMissingMigrateFile  = errors.New("migration has a rollback file but no migrate file")
	ErrReadOnlySource      = errors.New("migration source is read only")
	ErrMigrationFileExists = errors.New("migration file already exists")
)

// Filter narrows a selection down to the given versions, empty selects all
type Filter struct {
	Versions []migration.Version
}

type Selector interface {
	Select(ctx context.Context, f Filter) (migration.Migrations, error)
}

type Source interface {
	Selector

	IsValid() bool
	AlreadyExists(version, name string) bool
	Create(version, name string, withRollback bool) (*migration.Migration, error)
}

func filterMigrations(ms migration.Migrations, f Filter) migration.Migrations {
	if len(f.Versions) == 0 {
		return ms
	}

	result := make(migration.Migrations, 0, len(f.Versions))
	for _, m := range ms {
		if migration.InVersions(m.Version, f.Versions) {
			result = append(result, m)
		}
	}

	return result
}

func ucFirst(s string) string {
	r := []rune(s)

	if len(r) == 0 {
		return ""
	}

	f := string(unicode.ToUpper(r[0]))

	return f + string(r[1:])
}

func humanize(name string) string {
	return ucFirst(strings.Replace(name, "_", " ", -1))
}
