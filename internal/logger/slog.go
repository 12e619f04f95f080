package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/lmittmann/tint"
)

// SlogLogger writes structured records through a slog handler
type SlogLogger struct {
	lg    *slog.Logger
	debug bool
	sql   bool
}

var _ Logger = (*SlogLogger)(nil)

// NewSlogLogger builds a logger on top of a tint handler writing to w
func NewSlogLogger(w io.Writer, noColor, sql, debug bool) *SlogLogger {
	level := slog.LevelInfo
	if debug || sql {
		level = slog.LevelDebug
	}

	h := tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
		NoColor:    noColor,
	})

	return &SlogLogger{lg: slog.New(h).With("component", "tern"), debug: debug, sql: sql}
}

// NewSlogLoggerFrom wraps an already configured slog logger
func NewSlogLoggerFrom(lg *slog.Logger, sql, debug bool) *SlogLogger {
	return &SlogLogger{lg: lg, debug: debug, sql: sql}
}

func (l *SlogLogger) Successf(format string, args ...interface{}) {
	l.lg.Info(fmt.Sprintf(format, args...))
}

func (l *SlogLogger) Debugf(format string, args ...interface{}) {
	if l.debug {
		l.lg.Debug(fmt.Sprintf(format, args...))
	}
}

func (l *SlogLogger) Error(err error) {
	l.lg.Error("migration error", tint.Err(err))
}

func (l *SlogLogger) SQL(query string, args ...interface{}) {
	if !l.sql {
		return
	}

	l.lg.LogAttrs(context.Background(), slog.LevelDebug, "running sql",
		slog.String("query", query),
		slog.Any("args", args),
	)
}
