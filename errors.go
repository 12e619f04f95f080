package tern

import (
	"github.com/denismitr/tern/v4/internal/executor"
	"github.com/denismitr/tern/v4/internal/metrics"
	"github.com/denismitr/tern/v4/internal/planner"
	"github.com/denismitr/tern/v4/internal/schema"
	"github.com/denismitr/tern/v4/migration"
)

var (
	ErrStorageUnavailable = migration.ErrStorageUnavailable
	ErrDuplicateVersion   = migration.ErrDuplicateVersion
	ErrUnknownVersion     = migration.ErrUnknownVersion
	ErrCorruptState       = migration.ErrCorruptState
	ErrStepFailed         = migration.ErrStepFailed
)

type (
	CorruptStateError = migration.CorruptStateError
	StepError         = migration.StepError

	Plan       = planner.Plan
	Step       = planner.Step
	Report     = executor.Report
	StepResult = executor.StepResult

	Snapshot     = schema.Snapshot
	Divergence   = schema.Divergence
	SchemaPolicy = schema.Policy

	Metrics = metrics.Collector
)

// NewMetrics creates a collector to pass to UseMetrics
func NewMetrics(namespace string) *Metrics {
	return metrics.New(namespace)
}
