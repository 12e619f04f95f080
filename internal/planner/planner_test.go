package planner

import (
	"testing"

	"github.com/denismitr/tern/v4/migration"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild(t *testing.T) {
	t.Parallel()

	ms, err := migration.NewMigrations(
		migration.New(
			"1596897167",
			"Create foo table",
			[]string{"CREATE TABLE IF NOT EXISTS foo (id binary(16) PRIMARY KEY);"},
			[]string{"DROP TABLE IF EXISTS foo;"},
		),
		migration.New(
			"1596899255",
			"Create bar table",
			[]string{"CREATE TABLE IF NOT EXISTS bar (uid binary(16) PRIMARY KEY);"},
			[]string{"DROP TABLE IF EXISTS bar;"},
		),
		migration.New(
			"1596899399",
			"Create baz table",
			[]string{"CREATE TABLE IF NOT EXISTS baz (uid binary(16) PRIMARY KEY);"},
			[]string{"DROP TABLE IF EXISTS baz;"},
		),
	)
	require.NoError(t, err)

	v1, v2, v3 := ms[0].Version, ms[1].Version, ms[2].Version

	t.Run("it will schedule everything for migration if nothing was migrated", func(t *testing.T) {
		plan := Build(nil, v3, ms)
		require.Len(t, plan.Steps, 3)
		assert.Equal(t, migration.Up, plan.Direction)

		assert.Equal(t, "Create foo table", plan.Steps[0].Migration.Name)
		assert.Equal(t, "Create bar table", plan.Steps[1].Migration.Name)
		assert.Equal(t, "Create baz table", plan.Steps[2].Migration.Name)

		for _, s := range plan.Steps {
			assert.Equal(t, migration.Up, s.Direction)
			assert.Equal(t, migration.TimestampFormat, s.Migration.Version.Format)
		}
	})

	t.Run("it will schedule only the migrations after the max applied version", func(t *testing.T) {
		plan := Build([]migration.Version{v1}, v3, ms)
		require.Len(t, plan.Steps, 2)
		assert.Equal(t, v2.Value, plan.Steps[0].Migration.Version.Value)
		assert.Equal(t, v3.Value, plan.Steps[1].Migration.Version.Value)
	})

	t.Run("it will stop at the target version", func(t *testing.T) {
		plan := Build(nil, v2, ms)
		require.Len(t, plan.Steps, 2)
		assert.Equal(t, v1.Value, plan.Steps[0].Migration.Version.Value)
		assert.Equal(t, v2.Value, plan.Steps[1].Migration.Version.Value)
	})

	t.Run("it will schedule all migrations for rollback in descending order", func(t *testing.T) {
		plan := Build([]migration.Version{v1, v2, v3}, migration.Initial, ms)
		require.Len(t, plan.Steps, 3)
		assert.Equal(t, migration.Down, plan.Direction)

		assert.Equal(t, "Create baz table", plan.Steps[0].Migration.Name)
		assert.Equal(t, "Create bar table", plan.Steps[1].Migration.Name)
		assert.Equal(t, "Create foo table", plan.Steps[2].Migration.Name)

		for _, s := range plan.Steps {
			assert.Equal(t, migration.Down, s.Direction)
		}
	})

	t.Run("it will not roll back the target itself", func(t *testing.T) {
		plan := Build([]migration.Version{v1, v2, v3}, v1, ms)
		require.Len(t, plan.Steps, 2)
		assert.Equal(t, v3.Value, plan.Steps[0].Migration.Version.Value)
		assert.Equal(t, v2.Value, plan.Steps[1].Migration.Version.Value)
	})

	t.Run("it will roll back only applied migrations", func(t *testing.T) {
		plan := Build([]migration.Version{v1, v3}, migration.Initial, ms)
		require.Len(t, plan.Steps, 2)
		assert.Equal(t, v3.Value, plan.Steps[0].Migration.Version.Value)
		assert.Equal(t, v1.Value, plan.Steps[1].Migration.Version.Value)
	})

	t.Run("it will plan nothing when the target is the current state", func(t *testing.T) {
		plan := Build([]migration.Version{v1, v2}, v2, ms)
		assert.True(t, plan.Empty())
		assert.Equal(t, 0, plan.Len())

		plan = Build(nil, migration.Initial, ms)
		assert.True(t, plan.Empty())
	})

	t.Run("a plan built after applying it is empty", func(t *testing.T) {
		plan := Build([]migration.Version{v1}, v3, ms)
		applied := append([]migration.Version{v1}, plan.Migrations().Versions()...)
		assert.True(t, Build(applied, v3, ms).Empty())

		plan = Build(applied, v1, ms)
		for _, s := range plan.Steps {
			applied = removeVersion(applied, s.Migration.Version)
		}
		assert.True(t, Build(applied, v1, ms).Empty())
	})
}

func TestPlanLimit(t *testing.T) {
	ms, err := migration.NewMigrations(
		migration.New("1", "one", []string{"SELECT 1"}, nil),
		migration.New("2", "two", []string{"SELECT 2"}, nil),
		migration.New("3", "three", []string{"SELECT 3"}, nil),
	)
	require.NoError(t, err)

	t.Run("it will schedule only 2 migrations if steps are limited to 2", func(t *testing.T) {
		plan := Build(nil, ms[2].Version, ms).Limit(2)
		require.Len(t, plan.Steps, 2)
		assert.Equal(t, "2", plan.Target.Value)
		assert.Equal(t, "1", plan.Steps[0].Migration.Version.Value)
		assert.Equal(t, "2", plan.Steps[1].Migration.Version.Value)
	})

	t.Run("it will schedule only 1 migration for rollback if steps are limited to one", func(t *testing.T) {
		plan := Build(ms.Versions(), migration.Initial, ms).Limit(1)
		require.Len(t, plan.Steps, 1)
		assert.Equal(t, migration.Down, plan.Direction)
		assert.Equal(t, "3", plan.Steps[0].Migration.Version.Value)
		assert.Equal(t, "2", plan.Target.Value)
	})

	t.Run("zero or too many steps keep the plan", func(t *testing.T) {
		plan := Build(nil, ms[2].Version, ms)
		assert.Equal(t, plan, plan.Limit(0))
		assert.Equal(t, plan, plan.Limit(5))
	})
}

func removeVersion(versions []migration.Version, v migration.Version) []migration.Version {
	var result []migration.Version
	for _, existing := range versions {
		if !existing.Equal(v) {
			result = append(result, existing)
		}
	}
	return result
}
