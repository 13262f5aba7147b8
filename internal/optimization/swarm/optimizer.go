// Package swarm implements a particle swarm adapted to permutations.
//
// Velocities are real vectors; a position is moved by adding its velocity
// coordinate-wise and mapping the result back onto a permutation with the
// greedy left-to-right repair in optimization.Repair.
package swarm

import (
	"context"
	"math"
	"math/rand"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"

	"github.com/copyleftdev/branchopt/internal/optimization"
)

const component = "swarm"

// Config holds the swarm hyperparameters.
type Config struct {
	// Particles is the swarm size.
	Particles int
	// NumSims is the number of iterations.
	NumSims int
	// W is the inertia weight.
	W float64
	// C0 weights the pull towards the personal best.
	C0 float64
	// C1 weights the pull towards the global best.
	C1 float64
}

// DefaultConfig returns the reference hyperparameters.
func DefaultConfig() Config {
	return Config{
		Particles: 50,
		NumSims:   150,
		W:         0.75,
		C0:        0.5,
		C1:        1.5,
	}
}

// Validate reports the first invalid hyperparameter as a config error.
func (c Config) Validate() error {
	if c.Particles < 1 {
		return optimization.NewConfigError(component, "particle count must be positive, got %d", c.Particles)
	}
	if c.NumSims < 0 {
		return optimization.NewConfigError(component, "num_sims must be non-negative, got %d", c.NumSims)
	}
	for _, coef := range []struct {
		name string
		v    float64
	}{{"w", c.W}, {"c0", c.C0}, {"c1", c.C1}} {
		if math.IsNaN(coef.v) || math.IsInf(coef.v, 0) || coef.v < 0 {
			return optimization.NewConfigError(component, "coefficient %s must be finite and non-negative, got %v", coef.name, coef.v)
		}
	}
	return nil
}

type particle struct {
	position optimization.Candidate
	fitness  float64
	velocity []float64
	best     *optimization.Solution
}

// SwarmOptimizer moves a swarm of permutation-valued particles.
type SwarmOptimizer struct {
	problem  *optimization.Problem
	config   Config
	settings optimization.Settings
	rng      *rand.Rand
	logger   *zap.Logger

	particles []*particle
	global    *optimization.Solution

	history []optimization.Evaluation

	// For cancellation
	cancel context.CancelFunc
}

// NewSwarmOptimizer validates cfg and initializes the swarm with random
// positions and velocities uniform in [0, 1).
func NewSwarmOptimizer(problem *optimization.Problem, cfg Config, opts ...optimization.Option) (*SwarmOptimizer, error) {
	if problem == nil {
		return nil, optimization.NewConfigError(component, "problem is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	settings := optimization.NewSettings(opts...)
	s := &SwarmOptimizer{
		problem:  problem,
		config:   cfg,
		settings: settings,
		rng:      settings.Rand,
		logger:   settings.Logger.With(zap.String("solver", component)),
	}

	n := problem.Size()
	s.particles = make([]*particle, cfg.Particles)
	for i := range s.particles {
		pos := optimization.RandomCandidate(n, s.rng)
		vel := make([]float64, n)
		for k := range vel {
			vel[k] = s.rng.Float64()
		}
		fit := problem.Fitness(pos)
		p := &particle{
			position: pos,
			fitness:  fit,
			velocity: vel,
			best:     &optimization.Solution{Candidate: pos.Clone(), Fitness: fit},
		}
		s.particles[i] = p
		if s.global == nil || fit < s.global.Fitness {
			s.global = p.best.Clone()
		}
	}

	return s, nil
}

// Optimize runs config.NumSims iterations and returns the global best.
func (s *SwarmOptimizer) Optimize(ctx context.Context) (*optimization.OptimizationResult, error) {
	ctx, s.cancel = context.WithCancel(ctx)
	defer s.cancel()

	s.logger.Info("run started",
		zap.Int("sites", s.problem.Size()),
		zap.Int("particles", s.config.Particles),
		zap.Int("iterations", s.config.NumSims),
		zap.Float64("w", s.config.W),
		zap.Float64("c0", s.config.C0),
		zap.Float64("c1", s.config.C1),
	)

	scores := make([]float64, len(s.particles))
	for iter := 0; iter < s.config.NumSims; iter++ {
		if err := ctx.Err(); err != nil {
			s.logger.Warn("run cancelled", zap.Int("iteration", iter), zap.Error(err))
			return nil, err
		}

		for i, p := range s.particles {
			s.move(p)
			scores[i] = p.fitness
		}

		mean, std := optimization.FitnessStats(scores)
		eval := optimization.Evaluation{
			Iteration: iter,
			Solution:  s.global.Clone(),
			Mean:      mean,
			StdDev:    std,
		}
		s.history = append(s.history, eval)
		s.settings.Report(eval)

		s.logger.Debug("iteration complete",
			zap.Int("iteration", iter),
			zap.Float64("best", s.global.Fitness),
			zap.Float64("mean", mean),
			zap.Float64("stddev", std),
		)
	}

	s.logger.Info("run finished", zap.Float64("best", s.global.Fitness), zap.Ints("candidate", s.global.Candidate))

	return &optimization.OptimizationResult{
		BestSolution: s.global.Clone(),
		History:      s.history,
		Iterations:   s.config.NumSims,
		Converged:    true,
	}, nil
}

// move updates one particle's velocity and position, then its personal best
// and the global best. Both comparisons are strict minimization.
func (s *SwarmOptimizer) move(p *particle) {
	r := s.rng.Float64()
	UpdateVelocity(p.velocity, p.position, p.best.Candidate, s.global.Candidate, s.config.W, s.config.C0, s.config.C1, r)

	pos, err := UpdatePosition(p.position, p.velocity)
	if err != nil {
		// velocity and position always share the problem size
		panic(err)
	}
	p.position = pos
	p.fitness = s.problem.Fitness(pos)

	if p.fitness < p.best.Fitness {
		p.best = &optimization.Solution{Candidate: pos.Clone(), Fitness: p.fitness}
	}
	if p.fitness < s.global.Fitness {
		s.global = &optimization.Solution{Candidate: pos.Clone(), Fitness: p.fitness}
	}
}

// UpdateVelocity applies the PSO velocity rule in place:
//
//	v[k] = w*v[k] + c0*r*(pbest[k]-x[k]) + c1*r*(gbest[k]-x[k])
//
// A single draw r is shared by every component.
func UpdateVelocity(v []float64, x, pbest, gbest optimization.Candidate, w, c0, c1, r float64) {
	xs := toFloats(x)
	diff := make([]float64, len(v))

	floats.Scale(w, v)
	floats.SubTo(diff, toFloats(pbest), xs)
	floats.AddScaled(v, c0*r, diff)
	floats.SubTo(diff, toFloats(gbest), xs)
	floats.AddScaled(v, c1*r, diff)
}

// UpdatePosition moves x by v and repairs the result into a permutation:
// coordinate k proposes ceil(|x[k]+v[k]|), and collisions or out-of-range
// proposals are resolved left to right by optimization.Repair.
func UpdatePosition(x optimization.Candidate, v []float64) (optimization.Candidate, error) {
	if len(v) != len(x) {
		return nil, optimization.NewInvalidCandidateError("velocity has %d components, position has %d", len(v), len(x))
	}
	n := len(x)
	proposals := make([]int, n)
	for k := range x {
		proposals[k] = optimization.ProposeSite(float64(x[k])+v[k], n)
	}
	return optimization.Repair(proposals, n)
}

// GetBestSolution returns the best solution found so far
func (s *SwarmOptimizer) GetBestSolution() *optimization.Solution {
	return s.global.Clone()
}

// GetHistory returns the history of evaluations
func (s *SwarmOptimizer) GetHistory() []optimization.Evaluation {
	return s.history
}

// Stop stops the optimization process
func (s *SwarmOptimizer) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

// Positions returns a copy of every particle's current position.
func (s *SwarmOptimizer) Positions() []optimization.Candidate {
	out := make([]optimization.Candidate, len(s.particles))
	for i, p := range s.particles {
		out[i] = p.position.Clone()
	}
	return out
}

func toFloats(c optimization.Candidate) []float64 {
	out := make([]float64, len(c))
	for i, id := range c {
		out[i] = float64(id)
	}
	return out
}
