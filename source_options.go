package tern

import (
	"io/fs"

	"github.com/denismitr/tern/v4/internal/logger"
	"github.com/denismitr/tern/v4/internal/source"
	"github.com/denismitr/tern/v4/migration"
)

type (
	sourceConfig struct {
		versionFormat migration.VersionFormat
	}

	SourceConfigurator func(sc *sourceConfig)
)

func newSourceConfig(configurators []SourceConfigurator) sourceConfig {
	sc := sourceConfig{versionFormat: migration.AnyFormat}
	for _, c := range configurators {
		c(&sc)
	}
	return sc
}

// UseLocalFolderSource reads {version}_{name}.migrate.sql and
// {version}_{name}.rollback.sql files from the folder
func UseLocalFolderSource(folder string, configurators ...SourceConfigurator) OptionFunc {
	sc := newSourceConfig(configurators)

	return func(m *Migrator) error {
		m.sourceFn = func(lg logger.Logger) (source.Selector, error) {
			return source.NewLocalFSSource(folder, lg, sc.versionFormat)
		}
		return nil
	}
}

// UseFSSource reads migration files from the root of fsys, an embed.FS for instance
func UseFSSource(fsys fs.FS, configurators ...SourceConfigurator) OptionFunc {
	sc := newSourceConfig(configurators)

	return func(m *Migrator) error {
		m.sourceFn = func(lg logger.Logger) (source.Selector, error) {
			return source.NewFSSource(fsys, lg, sc.versionFormat)
		}
		return nil
	}
}

func UseInMemorySource(factories ...migration.Factory) OptionFunc {
	return func(m *Migrator) error {
		s, err := source.NewInMemorySource(factories...)
		if err != nil {
			return err
		}

		m.sourceFn = func(logger.Logger) (source.Selector, error) {
			return s, nil
		}
		return nil
	}
}

func WithVersionFormat(vf migration.VersionFormat) SourceConfigurator {
	return func(sc *sourceConfig) {
		sc.versionFormat = vf
	}
}
