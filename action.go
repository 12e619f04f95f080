package tern

import "github.com/denismitr/tern/v4/migration"

type ActionConfigurator func(a *Action)

type Action struct {
	target   string
	steps    int
	versions []migration.Version
	all      bool
}

func newAction(cfs ...ActionConfigurator) *Action {
	act := &Action{target: "latest"}
	for _, f := range cfs {
		f(act)
	}
	return act
}

// WithTarget sets the version to migrate to: latest, first, next, prev,
// current or an explicit version
func WithTarget(target string) ActionConfigurator {
	return func(a *Action) {
		if target != "" {
			a.target = target
		}
	}
}

func WithSteps(steps int) ActionConfigurator {
	return func(a *Action) {
		a.steps = steps
	}
}

func WithVersions(versions ...migration.Version) ActionConfigurator {
	return func(a *Action) {
		a.versions = versions
	}
}

func WithAll() ActionConfigurator {
	return func(a *Action) {
		a.all = true
	}
}

func CreateConfigurators(steps int, versionStrings []string) ([]ActionConfigurator, error) {
	var configurators []ActionConfigurator
	if steps > 0 {
		configurators = append(configurators, WithSteps(steps))
	}

	if len(versionStrings) > 0 {
		var versions []migration.Version
		for _, s := range versionStrings {
			v, err := migration.ParseVersion(s)
			if err != nil {
				return nil, err
			}
			versions = append(versions, v)
		}
		configurators = append(configurators, WithVersions(versions...))
	}

	return configurators, nil
}
