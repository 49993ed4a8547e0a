// Package metrics records convergence outcomes as Prometheus metrics and
// exports them in the node-exporter textfile format.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/8inary/infra/internal/converge"
)

// Recorder holds the convergence metrics for one machine.
type Recorder struct {
	registry *prometheus.Registry
	machine  string

	stepTotal    *prometheus.CounterVec
	stepDuration *prometheus.HistogramVec
	runConverged *prometheus.GaugeVec
	runDuration  *prometheus.GaugeVec
	runTimestamp *prometheus.GaugeVec
}

// New creates a Recorder with its own registry. machine labels every series.
func New(machine string) *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		machine:  machine,

		stepTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "infra",
				Subsystem: "converge",
				Name:      "step_total",
				Help:      "Total number of step outcomes by final state",
			},
			[]string{"machine", "step", "state"},
		),

		stepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "infra",
				Subsystem: "converge",
				Name:      "step_duration_seconds",
				Help:      "Duration of a step in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12), // 100ms to ~3.4min
			},
			[]string{"machine", "step"},
		),

		runConverged: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "infra",
				Subsystem: "converge",
				Name:      "run_converged",
				Help:      "Whether the last run converged (1) or not (0)",
			},
			[]string{"machine"},
		),

		runDuration: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "infra",
				Subsystem: "converge",
				Name:      "run_duration_seconds",
				Help:      "Duration of the last run in seconds",
			},
			[]string{"machine"},
		),

		runTimestamp: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "infra",
				Subsystem: "converge",
				Name:      "run_timestamp_seconds",
				Help:      "Unix time the last run finished",
			},
			[]string{"machine"},
		),
	}

	r.registry.MustRegister(
		r.stepTotal,
		r.stepDuration,
		r.runConverged,
		r.runDuration,
		r.runTimestamp,
	)
	return r
}

// ObserveStep implements converge.Metrics.
func (r *Recorder) ObserveStep(step string, state converge.State, d time.Duration) {
	r.stepTotal.WithLabelValues(r.machine, step, string(state)).Inc()
	if state != converge.StatePending {
		r.stepDuration.WithLabelValues(r.machine, step).Observe(d.Seconds())
	}
}

// ObserveRun records the outcome of a finished run.
func (r *Recorder) ObserveRun(report *converge.Report, finished time.Time) {
	converged := 0.0
	if report.Converged() {
		converged = 1
	}
	r.runConverged.WithLabelValues(r.machine).Set(converged)
	r.runDuration.WithLabelValues(r.machine).Set(report.Duration.Seconds())
	r.runTimestamp.WithLabelValues(r.machine).Set(float64(finished.Unix()))
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// WriteTextfile atomically writes all metrics to path for the node-exporter
// textfile collector.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}
