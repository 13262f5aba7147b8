// Package metrics exposes Prometheus collectors for solver runs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "branchopt"

// Run outcomes used as the status label.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// Recorder records solver activity. A nil *Recorder is valid and records
// nothing, so callers that run without metrics need no special casing.
type Recorder struct {
	runs        *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	bestFitness *prometheus.GaugeVec
	running     prometheus.Gauge
}

// NewRecorder creates the collectors and registers them with reg.
func NewRecorder(reg prometheus.Registerer) (*Recorder, error) {
	r := &Recorder{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "solver_runs_total",
			Help:      "Finished solver runs by algorithm and outcome.",
		}, []string{"algorithm", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "solver_duration_seconds",
			Help:      "Wall time of solver runs.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}, []string{"algorithm"}),
		bestFitness: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "solver_best_fitness",
			Help:      "Fitness of the solution returned by the last completed run.",
		}, []string{"algorithm"}),
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "jobs_running",
			Help:      "Solver jobs currently running.",
		}),
	}

	for _, c := range []prometheus.Collector{r.runs, r.duration, r.bestFitness, r.running} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// MustNewRecorder is like NewRecorder but panics on registration errors.
func MustNewRecorder(reg prometheus.Registerer) *Recorder {
	r, err := NewRecorder(reg)
	if err != nil {
		panic(err)
	}
	return r
}

// JobStarted marks a job as running.
func (r *Recorder) JobStarted() {
	if r == nil {
		return
	}
	r.running.Inc()
}

// JobFinished records the outcome of a run. best is only recorded for
// completed runs.
func (r *Recorder) JobFinished(algorithm, status string, took time.Duration, best float64) {
	if r == nil {
		return
	}
	r.running.Dec()
	r.runs.WithLabelValues(algorithm, status).Inc()
	r.duration.WithLabelValues(algorithm).Observe(took.Seconds())
	if status == StatusCompleted {
		r.bestFitness.WithLabelValues(algorithm).Set(best)
	}
}
