package swarm

import (
	"context"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copyleftdev/branchopt/internal/optimization"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{name: "default", modify: func(c *Config) {}},
		{name: "single particle", modify: func(c *Config) { c.Particles = 1 }},
		{name: "no particles", modify: func(c *Config) { c.Particles = 0 }, wantErr: true},
		{name: "negative sims", modify: func(c *Config) { c.NumSims = -3 }, wantErr: true},
		{name: "negative inertia", modify: func(c *Config) { c.W = -0.1 }, wantErr: true},
		{name: "NaN c0", modify: func(c *Config) { c.C0 = math.NaN() }, wantErr: true},
		{name: "infinite c1", modify: func(c *Config) { c.C1 = math.Inf(1) }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(&cfg)

			s, err := NewSwarmOptimizer(optimization.LineProblem(t, 5), cfg, optimization.WithSeed(1))
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, optimization.IsConfigError(err))
				return
			}
			require.NoError(t, err)
			assert.Len(t, s.particles, cfg.Particles)
			for _, p := range s.particles {
				optimization.AssertPermutation(t, p.position, 5)
				for _, v := range p.velocity {
					assert.True(t, v >= 0 && v < 1, "initial velocity %v outside [0, 1)", v)
				}
			}
		})
	}

	_, err := NewSwarmOptimizer(nil, DefaultConfig())
	assert.True(t, optimization.IsConfigError(err))
}

func TestUpdateVelocity(t *testing.T) {
	v := []float64{1, 2}
	UpdateVelocity(v,
		optimization.Candidate{1, 2},
		optimization.Candidate{2, 1},
		optimization.Candidate{2, 2},
		0.5, 1, 2, 0.5,
	)
	assert.InDeltaSlice(t, []float64{2, 0.5}, v, 1e-12)

	// at the bests, only inertia remains
	v = []float64{4, -2, 1}
	x := optimization.Candidate{3, 1, 2}
	UpdateVelocity(v, x, x, x, 0.75, 0.5, 1.5, 0.9)
	assert.InDeltaSlice(t, []float64{3, -1.5, 0.75}, v, 1e-12)
}

func TestUpdatePosition(t *testing.T) {
	tests := []struct {
		name string
		x    optimization.Candidate
		v    []float64
		want optimization.Candidate
	}{
		{
			name: "zero velocity keeps permutation",
			x:    optimization.Candidate{3, 1, 4, 2},
			v:    []float64{0, 0, 0, 0},
			want: optimization.Candidate{3, 1, 4, 2},
		},
		{
			name: "fractional step rounds up and wraps",
			x:    optimization.Candidate{1, 2, 3, 4},
			v:    []float64{0.5, 0.5, 0.5, 0.5},
			want: optimization.Candidate{2, 3, 4, 1},
		},
		{
			name: "negative sums use absolute value",
			x:    optimization.Candidate{1, 2, 3, 4},
			v:    []float64{-3, -3, -3, -3},
			want: optimization.Candidate{2, 1, 3, 4},
		},
		{
			name: "huge velocity wraps to first free site",
			x:    optimization.Candidate{1, 2, 3, 4},
			v:    []float64{1e9, math.Inf(1), math.NaN(), 0},
			want: optimization.Candidate{1, 2, 3, 4},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := UpdatePosition(tt.x, tt.v)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			optimization.AssertPermutation(t, got, len(tt.x))
		})
	}

	_, err := UpdatePosition(optimization.Candidate{1, 2}, []float64{0})
	assert.True(t, optimization.IsInvalidCandidate(err))
}

func TestUpdatePositionAlwaysValid(t *testing.T) {
	rng := rand.New(rand.NewSource(19))
	const n = 20
	for i := 0; i < 300; i++ {
		x := optimization.RandomCandidate(n, rng)
		v := make([]float64, n)
		for k := range v {
			v[k] = rng.NormFloat64() * 15
		}
		got, err := UpdatePosition(x, v)
		require.NoError(t, err)
		optimization.AssertPermutation(t, got, n)
	}
}

func TestSwarmOptimize(t *testing.T) {
	rng := rand.New(rand.NewSource(44))
	problem := optimization.RandomProblem(t, 20, rng)

	cfg := DefaultConfig()
	cfg.Particles = 15
	cfg.NumSims = 30

	var reported int
	s, err := NewSwarmOptimizer(problem, cfg,
		optimization.WithRand(rng),
		optimization.WithProgress(func(optimization.Evaluation) { reported++ }),
	)
	require.NoError(t, err)

	initialBest := math.Inf(1)
	for _, p := range s.particles {
		initialBest = math.Min(initialBest, p.fitness)
	}
	assert.Equal(t, initialBest, s.GetBestSolution().Fitness)

	result, err := s.Optimize(context.Background())
	require.NoError(t, err)

	optimization.AssertPermutation(t, result.BestSolution.Candidate, 20)
	assert.Equal(t, problem.Fitness(result.BestSolution.Candidate), result.BestSolution.Fitness)
	assert.LessOrEqual(t, result.BestSolution.Fitness, initialBest)
	assert.Len(t, result.History, cfg.NumSims)
	assert.Equal(t, cfg.NumSims, reported)

	for i := 1; i < len(result.History); i++ {
		assert.LessOrEqual(t, result.History[i].Solution.Fitness, result.History[i-1].Solution.Fitness)
	}
	for _, p := range s.particles {
		optimization.AssertPermutation(t, p.position, 20)
		optimization.AssertPermutation(t, p.best.Candidate, 20)
		assert.LessOrEqual(t, result.BestSolution.Fitness, p.best.Fitness)
		assert.LessOrEqual(t, p.best.Fitness, p.fitness)
	}
	assert.Len(t, s.Positions(), cfg.Particles)
}

func TestSwarmDeterministicWithSeed(t *testing.T) {
	problem := optimization.RandomProblem(t, 10, rand.New(rand.NewSource(2)))
	cfg := DefaultConfig()
	cfg.Particles = 8
	cfg.NumSims = 12

	run := func() *optimization.Solution {
		s, err := NewSwarmOptimizer(problem, cfg, optimization.WithSeed(555))
		require.NoError(t, err)
		result, err := s.Optimize(context.Background())
		require.NoError(t, err)
		return result.BestSolution
	}

	a, b := run(), run()
	assert.Equal(t, a, b)
}

func TestSwarmCancelled(t *testing.T) {
	s, err := NewSwarmOptimizer(optimization.LineProblem(t, 4), DefaultConfig(), optimization.WithSeed(5))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := s.Optimize(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, result)
}
