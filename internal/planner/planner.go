package planner

import (
	"github.com/denismitr/tern/v4/migration"
)

// Step is one migration to run in one direction
type Step struct {
	Migration *migration.Migration
	Direction migration.Direction
}

func (s Step) Transform() migration.Transform {
	return s.Migration.Transform(s.Direction)
}

// Plan is consumed once by the executor, it is never persisted
type Plan struct {
	Target    migration.Version
	Direction migration.Direction
	Steps     []Step
}

func (p Plan) Empty() bool {
	return len(p.Steps) == 0
}

func (p Plan) Len() int {
	return len(p.Steps)
}

// Limit keeps the first n steps, n <= 0 keeps all of them
func (p Plan) Limit(n int) Plan {
	if n <= 0 || n >= len(p.Steps) {
		return p
	}

	limited := Plan{Target: p.Steps[n-1].Migration.Version, Direction: p.Direction}
	if p.Direction == migration.Down {
		limited.Target = p.Steps[n].Migration.Version
	}

	limited.Steps = append(limited.Steps, p.Steps[:n]...)
	return limited
}

func (p Plan) Migrations() migration.Migrations {
	result := make(migration.Migrations, 0, len(p.Steps))
	for _, s := range p.Steps {
		result = append(result, s.Migration)
	}
	return result
}

// Build plans the way from the applied versions to the target.
// Steps are expected in ascending order, as the registry keeps them.
//
// Ahead of the highest applied version every step in (max applied, target]
// goes up in ascending order. Behind it every applied step in
// (target, max applied] goes down in descending order. Otherwise the plan is empty.
func Build(applied []migration.Version, target migration.Version, steps migration.Migrations) Plan {
	current := migration.MaxVersion(applied)
	plan := Plan{Target: target}

	switch cmp := target.Compare(current); {
	case cmp > 0:
		plan.Direction = migration.Up
		for _, m := range steps {
			if current.Less(m.Version) && !target.Less(m.Version) {
				plan.Steps = append(plan.Steps, Step{Migration: m, Direction: migration.Up})
			}
		}
	case cmp < 0:
		plan.Direction = migration.Down
		for i := len(steps) - 1; i >= 0; i-- {
			m := steps[i]
			if target.Less(m.Version) && !current.Less(m.Version) && migration.InVersions(m.Version, applied) {
				plan.Steps = append(plan.Steps, Step{Migration: m, Direction: migration.Down})
			}
		}
	}

	return plan
}
