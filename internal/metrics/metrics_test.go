package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	r, err := NewRecorder(reg)
	require.NoError(t, err)

	r.JobStarted()
	r.JobStarted()
	assert.Equal(t, 2.0, testutil.ToFloat64(r.running))

	r.JobFinished("genetic", StatusCompleted, 250*time.Millisecond, 1234)
	r.JobFinished("swarm", StatusCancelled, time.Second, 99)

	assert.Equal(t, 0.0, testutil.ToFloat64(r.running))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.runs.WithLabelValues("genetic", StatusCompleted)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.runs.WithLabelValues("swarm", StatusCancelled)))
	assert.Equal(t, 1234.0, testutil.ToFloat64(r.bestFitness.WithLabelValues("genetic")))
	assert.Equal(t, 1, testutil.CollectAndCount(r.bestFitness), "cancelled runs leave the gauge alone")
	assert.Equal(t, 2, testutil.CollectAndCount(r.duration))

	n, err := testutil.GatherAndCount(reg,
		"branchopt_solver_runs_total",
		"branchopt_solver_duration_seconds",
		"branchopt_solver_best_fitness",
		"branchopt_jobs_running",
	)
	require.NoError(t, err)
	assert.Equal(t, 6, n)
}

func TestRecorderDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewRecorder(reg)
	require.NoError(t, err)

	_, err = NewRecorder(reg)
	assert.Error(t, err)
	assert.Panics(t, func() { MustNewRecorder(reg) })
}

func TestNilRecorder(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.JobStarted()
		r.JobFinished("annealing", StatusFailed, time.Millisecond, 0)
	})
}
