package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/denismitr/tern/v4/migration"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector(t *testing.T) {
	t.Run("it counts steps by direction and outcome", func(t *testing.T) {
		c := New("")

		c.ObserveStep(migration.Up, nil, 10*time.Millisecond)
		c.ObserveStep(migration.Up, nil, 20*time.Millisecond)
		c.ObserveStep(migration.Down, errors.New("boom"), time.Millisecond)

		assert.Equal(t, float64(2), testutil.ToFloat64(c.StepsTotal.WithLabelValues("up", "success")))
		assert.Equal(t, float64(1), testutil.ToFloat64(c.StepsTotal.WithLabelValues("down", "failure")))
		assert.Equal(t, 2, testutil.CollectAndCount(c.StepDuration))
	})

	t.Run("it tracks runs and gauges", func(t *testing.T) {
		c := New("custom")

		c.ObserveRun(nil)
		c.ObserveRun(errors.New("boom"))
		c.SetApplied(4)
		c.SetDivergences(2)

		assert.Equal(t, float64(1), testutil.ToFloat64(c.RunsTotal.WithLabelValues("failure")))
		assert.Equal(t, float64(4), testutil.ToFloat64(c.AppliedVersions))
		assert.Equal(t, float64(2), testutil.ToFloat64(c.Divergences))
	})

	t.Run("it writes a textfile", func(t *testing.T) {
		c := New("")
		c.SetApplied(3)

		path := filepath.Join(t.TempDir(), "tern.prom")
		require.NoError(t, c.WriteTextfile(path))

		b, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(b), "tern_applied_versions 3")
	})
}
