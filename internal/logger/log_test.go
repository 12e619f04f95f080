package logger

import (
	"bytes"
	"log"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestBWLogger(t *testing.T) {
	t.Run("it prints success and errors always", func(t *testing.T) {
		var buf bytes.Buffer
		lg := NewBWLogger(log.New(&buf, "", 0), false, false)

		lg.Successf("migrated %s", "1596897167")
		lg.Error(errors.New("boom"))
		lg.Debugf("hidden")
		lg.SQL("SELECT 1")

		out := buf.String()
		assert.Contains(t, out, "Tern: migrated 1596897167")
		assert.Contains(t, out, "Tern error: boom")
		assert.NotContains(t, out, "hidden")
		assert.NotContains(t, out, "SELECT 1")
	})

	t.Run("it prints debug and sql when enabled", func(t *testing.T) {
		var buf bytes.Buffer
		lg := NewBWLogger(log.New(&buf, "", 0), true, true)

		lg.Debugf("plan has %d steps", 3)
		lg.SQL("DELETE FROM migration_versions WHERE version = ?", "1")

		out := buf.String()
		assert.Contains(t, out, "Tern debug: plan has 3 steps")
		assert.Contains(t, out, "DELETE FROM migration_versions WHERE version = ?")
		assert.Contains(t, out, `{"1"}`)
	})
}

func TestColoredLogger(t *testing.T) {
	var buf bytes.Buffer
	lg := NewColorLogger(log.New(&buf, "", 0), false, true)

	lg.Successf("done")
	lg.Debugf("details")

	assert.Contains(t, buf.String(), "Tern: done")
	assert.Contains(t, buf.String(), "Tern debug: details")
}

func TestSlogLogger(t *testing.T) {
	var buf bytes.Buffer
	lg := NewSlogLogger(&buf, true, true, false)

	lg.Successf("migrated %d", 2)
	lg.SQL("SELECT 1")
	lg.Debugf("not shown")
	lg.Error(errors.New("boom"))

	out := buf.String()
	assert.Contains(t, out, "migrated 2")
	assert.Contains(t, out, "SELECT 1")
	assert.Contains(t, out, "boom")
	assert.NotContains(t, out, "not shown")
}
