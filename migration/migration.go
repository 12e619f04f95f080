package migration

import (
	"bytes"
	"context"
	"database/sql"
	"strings"

	"github.com/pkg/errors"
)

type Direction int

const (
	Up Direction = iota + 1
	Down
)

func (d Direction) String() string {
	switch d {
	case Up:
		return "up"
	case Down:
		return "down"
	default:
		return "none"
	}
}

// State of a single version as seen by the executor
type State string

const (
	NotApplied State = "not applied"
	Applying   State = "applying"
	Applied    State = "applied"
	Reverting  State = "reverting"
)

// Executor is the part of a database handle a transform needs
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// Transform changes the database in one direction
type Transform func(ctx context.Context, ex Executor) error

type (
	Migration struct {
		Key      string
		Name     string
		Version  Version
		Migrate  []string
		Rollback []string

		// Up and Down take precedence over the Migrate and Rollback scripts
		Up   Transform
		Down Transform
	}

	Factory func() (*Migration, error)
)

// New creates a factory of an SQL script based migration
func New(version, name string, migrate, rollback []string) Factory {
	return func() (*Migration, error) {
		v, err := ParseVersion(version)
		if err != nil {
			return nil, err
		}

		return &Migration{
			Key:      CreateKeyFromVersionAndName(v.Value, name),
			Name:     name,
			Version:  v,
			Migrate:  migrate,
			Rollback: rollback,
		}, nil
	}
}

// NewFunc creates a factory of a migration implemented in Go
func NewFunc(version, name string, up, down Transform) Factory {
	return func() (*Migration, error) {
		if up == nil {
			return nil, errors.Errorf("migration [%s] has no up transform", version)
		}

		v, err := ParseVersion(version)
		if err != nil {
			return nil, err
		}

		return &Migration{
			Key:     CreateKeyFromVersionAndName(v.Value, name),
			Name:    name,
			Version: v,
			Up:      up,
			Down:    down,
		}, nil
	}
}

func NewMigrationFromFile(key, name string, version Version, migrate, rollback string) Factory {
	return func() (*Migration, error) {
		m := &Migration{
			Key:     key,
			Name:    name,
			Version: version,
		}

		if strings.TrimSpace(migrate) != "" {
			m.Migrate = []string{migrate}
		}

		if strings.TrimSpace(rollback) != "" {
			m.Rollback = []string{rollback}
		}

		return m, nil
	}
}

// Transform returns the change for the given direction
func (m *Migration) Transform(d Direction) Transform {
	if d == Down {
		if m.Down != nil {
			return m.Down
		}
		return scriptsTransform(m.Rollback)
	}

	if m.Up != nil {
		return m.Up
	}
	return scriptsTransform(m.Migrate)
}

func (m *Migration) MigrateScripts() string {
	return joinScripts(m.Migrate)
}

func (m *Migration) RollbackScripts() string {
	return joinScripts(m.Rollback)
}

func scriptsTransform(scripts []string) Transform {
	return func(ctx context.Context, ex Executor) error {
		for _, script := range scripts {
			if strings.TrimSpace(script) == "" {
				continue
			}

			if _, err := ex.ExecContext(ctx, script); err != nil {
				return errors.Wrapf(err, "could not execute script [%s]", script)
			}
		}

		return nil
	}
}

func joinScripts(scripts []string) string {
	var ms bytes.Buffer

	for i := range scripts {
		ms.WriteString(scripts[i])

		if !strings.HasSuffix(scripts[i], ";") {
			ms.WriteString(";")
		}

		if i < len(scripts)-1 {
			ms.WriteString("\n")
		}
	}

	return ms.String()
}

type Migrations []*Migration

func NewMigrations(factories ...Factory) (Migrations, error) {
	migrations := make(Migrations, len(factories))

	for i := range factories {
		m, err := factories[i]()
		if err != nil {
			return nil, err
		}

		migrations[i] = m
	}

	return migrations, nil
}

func (m Migrations) Keys() (result []string) {
	for i := range m {
		result = append(result, m[i].Key)
	}
	return result
}

func (m Migrations) Versions() (result []Version) {
	for i := range m {
		result = append(result, m[i].Version)
	}
	return result
}

func (m Migrations) Len() int {
	return len(m)
}

func (m Migrations) Less(i, j int) bool {
	return m[i].Version.Less(m[j].Version)
}

func (m Migrations) Swap(i, j int) {
	m[i], m[j] = m[j], m[i]
}

func CreateKeyFromVersionAndName(version, name string) string {
	var result bytes.Buffer
	result.WriteString(version)
	if name != "" {
		result.WriteString("_")
		result.WriteString(strings.Replace(strings.ToLower(strings.TrimSpace(name)), " ", "_", -1))
	}
	return result.String()
}
