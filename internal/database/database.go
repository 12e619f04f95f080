package database

import (
	"context"

	"github.com/denismitr/tern/v4/internal/logger"
	"github.com/denismitr/tern/v4/internal/schema"
	"github.com/denismitr/tern/v4/migration"
)

const (
	DefaultMigrationsTable  = "migration_versions"
	DefaultAppliedAtColumn  = "applied_at"
	DefaultMaxNameLength    = 255
	DefaultMaxVersionLength = 64
)

type CommonOptions struct {
	MigrationsTable string
	AppliedAtColumn string
}

// WithDefaults fills in the canonical table and column names
func (o CommonOptions) WithDefaults() CommonOptions {
	if o.MigrationsTable == "" {
		o.MigrationsTable = DefaultMigrationsTable
	}
	if o.AppliedAtColumn == "" {
		o.AppliedAtColumn = DefaultAppliedAtColumn
	}
	return o
}

// VersionStore persists the set of applied versions
type VersionStore interface {
	EnsureStorageExists(ctx context.Context) error
	DropStorage(ctx context.Context) error
	All(ctx context.Context) ([]migration.Version, error)
	Has(ctx context.Context, v migration.Version) (bool, error)
	MarkApplied(ctx context.Context, m *migration.Migration) error
	MarkReverted(ctx context.Context, m *migration.Migration) error
	MarkAllApplied(ctx context.Context, migrations migration.Migrations) error
}

// StepScope is valid only inside the InStep callback. Statements executed
// through it and its bookkeeping commit or roll back together.
type StepScope interface {
	migration.Executor
	MarkApplied(ctx context.Context, m *migration.Migration) error
	MarkReverted(ctx context.Context, m *migration.Migration) error
}

type StepFunc func(ctx context.Context, scope StepScope) error

// ReleaseFunc gives back a lock taken with Connection.Lock
type ReleaseFunc func(ctx context.Context) error

// Connection is the handle every engine operation receives explicitly
type Connection interface {
	VersionStore
	schema.Reader
	migration.Executor

	// InStep runs fn in one transaction and commits only when fn succeeds
	InStep(ctx context.Context, fn StepFunc) error
	// Transactional reports whether schema changes roll back with the transaction
	Transactional() bool
	Lock(ctx context.Context) (ReleaseFunc, error)
	ShowTables(ctx context.Context) ([]string, error)
	MigrationsTable() string
	SetLogger(lg logger.Logger)
	Close() error
}
