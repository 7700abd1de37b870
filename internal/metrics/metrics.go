// Package metrics counts synthesis attempts and runs with Prometheus.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"natural/internal/implementer"
)

// Recorder implements implementer.Recorder on its own registry.
type Recorder struct {
	registry *prometheus.Registry
	attempts *prometheus.CounterVec
	runs     *prometheus.CounterVec
}

var _ implementer.Recorder = (*Recorder)(nil)

// New creates a Recorder with a fresh registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Recorder{
		registry: reg,
		attempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "natural_attempts_total",
			Help: "Decision cycles by outcome",
		}, []string{"outcome"}),
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "natural_runs_total",
			Help: "Synthesis runs by result",
		}, []string{"result"}),
	}
}

func (r *Recorder) ObserveAttempt(outcome string) {
	r.attempts.WithLabelValues(outcome).Inc()
}

func (r *Recorder) ObserveRun(result string) {
	r.runs.WithLabelValues(result).Inc()
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// WriteTextfile writes the current values in the node exporter textfile format.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}
