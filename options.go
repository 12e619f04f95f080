package tern

import (
	"io"
	"log/slog"

	"github.com/denismitr/tern/v4/internal/logger"
)

type OptionFunc func(*Migrator) error

// Logger can be implemented to receive the migrator output
type Logger = logger.Logger

type Printer = logger.Printer

func UseColorLogger(p Printer, printSql, printDebug bool) OptionFunc {
	return func(m *Migrator) error {
		m.lg = logger.NewColorLogger(p, printSql, printDebug)
		return nil
	}
}

func UseLogger(p Printer, printSql, printDebug bool) OptionFunc {
	return func(m *Migrator) error {
		m.lg = logger.NewBWLogger(p, printSql, printDebug)
		return nil
	}
}

// UseSlogLogger writes structured records through a tint handler
func UseSlogLogger(w io.Writer, noColor, printSql, printDebug bool) OptionFunc {
	return func(m *Migrator) error {
		m.lg = logger.NewSlogLogger(w, noColor, printSql, printDebug)
		return nil
	}
}

func UseSlog(lg *slog.Logger, printSql, printDebug bool) OptionFunc {
	return func(m *Migrator) error {
		m.lg = logger.NewSlogLoggerFrom(lg, printSql, printDebug)
		return nil
	}
}

func UseCustomLogger(lg Logger) OptionFunc {
	return func(m *Migrator) error {
		if lg != nil {
			m.lg = lg
		}
		return nil
	}
}

// UseMetrics reports steps, runs and divergences to the collector
func UseMetrics(c *Metrics) OptionFunc {
	return func(m *Migrator) error {
		m.collector = c
		return nil
	}
}

// WithSchemaPolicy replaces the default comparison policy of Validate,
// the version table is ignored whatever the policy says
func WithSchemaPolicy(p SchemaPolicy) OptionFunc {
	return func(m *Migrator) error {
		m.policy = p
		return nil
	}
}
