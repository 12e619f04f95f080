package metrics

import (
	"time"

	"github.com/denismitr/tern/v4/migration"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

const DefaultNamespace = "tern"

const (
	outcomeSuccess = "success"
	outcomeFailure = "failure"
)

// Collector holds the migration metrics in its own registry
type Collector struct {
	registry *prometheus.Registry

	StepsTotal      *prometheus.CounterVec
	StepDuration    *prometheus.HistogramVec
	RunsTotal       *prometheus.CounterVec
	AppliedVersions prometheus.Gauge
	Divergences     prometheus.Gauge
}

func New(namespace string) *Collector {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	reg := prometheus.NewRegistry()
	c := &Collector{
		registry: reg,
		StepsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "migration_steps_total",
			Help:      "Total number of executed migration steps",
		}, []string{"direction", "outcome"}),
		StepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "migration_step_duration_seconds",
			Help:      "Duration of migration steps in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"direction"}),
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "migration_runs_total",
			Help:      "Total number of executed plans",
		}, []string{"outcome"}),
		AppliedVersions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "applied_versions",
			Help:      "Number of versions recorded as applied",
		}),
		Divergences: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "schema_divergences",
			Help:      "Number of divergences found by the last validation",
		}),
	}

	reg.MustRegister(c.StepsTotal, c.StepDuration, c.RunsTotal, c.AppliedVersions, c.Divergences)

	return c
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// ObserveStep records the outcome and the duration of one step
func (c *Collector) ObserveStep(d migration.Direction, err error, took time.Duration) {
	c.StepsTotal.WithLabelValues(d.String(), outcome(err)).Inc()
	c.StepDuration.WithLabelValues(d.String()).Observe(took.Seconds())
}

func (c *Collector) ObserveRun(err error) {
	c.RunsTotal.WithLabelValues(outcome(err)).Inc()
}

func (c *Collector) SetApplied(n int) {
	c.AppliedVersions.Set(float64(n))
}

func (c *Collector) SetDivergences(n int) {
	c.Divergences.Set(float64(n))
}

// WriteTextfile exports the metrics in the node exporter textfile format
func (c *Collector) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return errors.Wrapf(err, "could not write metrics to [%s]", path)
	}
	return nil
}

func outcome(err error) string {
	if err != nil {
		return outcomeFailure
	}
	return outcomeSuccess
}
