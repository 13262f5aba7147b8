// Package annealing implements simulated annealing over site permutations
// with a swap neighborhood, Boltzmann acceptance and geometric cooling.
package annealing

import (
	"context"
	"math"
	"math/rand"

	"go.uber.org/zap"

	"github.com/copyleftdev/branchopt/internal/optimization"
)

const component = "annealing"

// cancelCheckSteps is how many inner steps run between context checks.
const cancelCheckSteps = 1024

// Config holds the annealing schedule.
type Config struct {
	// StartTemp is the temperature at the start of every repetition.
	StartTemp float64
	// StopTemp ends a repetition once the temperature is no longer above it.
	StopTemp float64
	// Alpha is the geometric cooling factor applied after each step.
	Alpha float64
	// NumSims is the number of repetitions.
	NumSims int
}

// DefaultConfig returns the reference schedule.
func DefaultConfig() Config {
	return Config{
		StartTemp: 1000,
		StopTemp:  0.1,
		Alpha:     0.01,
		NumSims:   150,
	}
}

// Validate rejects schedules whose inner loop would not terminate.
func (c Config) Validate() error {
	if !(c.Alpha > 0 && c.Alpha < 1) {
		return optimization.NewConfigError(component, "alpha %v outside (0, 1)", c.Alpha)
	}
	if !(c.StopTemp > 0) || math.IsInf(c.StopTemp, 0) {
		return optimization.NewConfigError(component, "stop temperature must be positive and finite, got %v", c.StopTemp)
	}
	if !(c.StartTemp > 0) || math.IsInf(c.StartTemp, 0) {
		return optimization.NewConfigError(component, "start temperature must be positive and finite, got %v", c.StartTemp)
	}
	if c.NumSims < 0 {
		return optimization.NewConfigError(component, "num_sims must be non-negative, got %d", c.NumSims)
	}
	return nil
}

// StepsPerRepetition returns how many inner steps one cooling schedule
// takes: the number of k >= 0 with StartTemp*Alpha^k > StopTemp. The result
// is a float64 so that very slow schedules do not overflow; it is only
// meaningful for a valid Config.
func (c Config) StepsPerRepetition() float64 {
	if c.StartTemp <= c.StopTemp {
		return 0
	}
	// the tolerance keeps exact powers such as 8 -> 1 at alpha 0.5 from
	// rounding up
	return math.Ceil((math.Log(c.StopTemp)-math.Log(c.StartTemp))/math.Log(c.Alpha) - 1e-9)
}

// AnnealingOptimizer walks a single chain of candidates.
type AnnealingOptimizer struct {
	problem  *optimization.Problem
	config   Config
	settings optimization.Settings
	rng      *rand.Rand
	logger   *zap.Logger

	// fitness scores a candidate; it is problem.Fitness outside tests
	fitness func(optimization.Candidate) float64

	current        optimization.Candidate
	currentFitness float64
	temperature    float64

	// steps counts inner steps across all repetitions
	steps   int
	history []optimization.Evaluation

	// For cancellation
	cancel context.CancelFunc
}

// NewAnnealingOptimizer validates cfg and draws a random starting candidate.
func NewAnnealingOptimizer(problem *optimization.Problem, cfg Config, opts ...optimization.Option) (*AnnealingOptimizer, error) {
	if problem == nil {
		return nil, optimization.NewConfigError(component, "problem is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	settings := optimization.NewSettings(opts...)
	a := &AnnealingOptimizer{
		problem:     problem,
		config:      cfg,
		settings:    settings,
		rng:         settings.Rand,
		logger:      settings.Logger.With(zap.String("solver", component)),
		temperature: cfg.StartTemp,
		fitness:     problem.Fitness,
	}
	a.current = optimization.RandomCandidate(problem.Size(), a.rng)
	a.currentFitness = a.fitness(a.current)

	return a, nil
}

// Optimize runs config.NumSims repetitions of the cooling schedule and
// returns the candidate the chain last settled on.
func (a *AnnealingOptimizer) Optimize(ctx context.Context) (*optimization.OptimizationResult, error) {
	ctx, a.cancel = context.WithCancel(ctx)
	defer a.cancel()

	a.logger.Info("run started",
		zap.Int("sites", a.problem.Size()),
		zap.Int("repetitions", a.config.NumSims),
		zap.Float64("start_temp", a.config.StartTemp),
		zap.Float64("stop_temp", a.config.StopTemp),
		zap.Float64("alpha", a.config.Alpha),
		zap.Float64("initial", a.currentFitness),
	)

	for rep := 0; rep < a.config.NumSims; rep++ {
		if err := ctx.Err(); err != nil {
			a.logger.Warn("run cancelled", zap.Int("repetition", rep), zap.Error(err))
			return nil, err
		}

		a.temperature = a.config.StartTemp
		accepted, steps := 0, 0
		for a.temperature > a.config.StopTemp {
			if steps%cancelCheckSteps == 0 {
				if err := ctx.Err(); err != nil {
					a.steps += steps
					a.logger.Warn("run cancelled",
						zap.Int("repetition", rep),
						zap.Int("step", steps),
						zap.Error(err),
					)
					return nil, err
				}
			}
			if a.step() {
				accepted++
			}
			steps++
		}
		a.steps += steps

		eval := optimization.Evaluation{
			Iteration: rep,
			Solution:  a.solution(),
			Mean:      a.currentFitness,
		}
		a.history = append(a.history, eval)
		a.settings.Report(eval)

		a.logger.Debug("repetition complete",
			zap.Int("repetition", rep),
			zap.Int("steps", steps),
			zap.Int("accepted", accepted),
			zap.Float64("fitness", a.currentFitness),
		)
	}

	a.logger.Info("run finished",
		zap.Float64("fitness", a.currentFitness),
		zap.Int("steps", a.steps),
		zap.Ints("candidate", a.current),
	)

	return &optimization.OptimizationResult{
		BestSolution: a.solution(),
		History:      a.history,
		Iterations:   a.config.NumSims,
		Converged:    true,
	}, nil
}

// step proposes a swap neighbor, applies the Boltzmann acceptance rule and
// cools the temperature. It reports whether the neighbor was accepted.
func (a *AnnealingOptimizer) step() bool {
	neighbor := a.neighbor()
	neighborFitness := a.fitness(neighbor)

	accept := neighborFitness < a.currentFitness
	if !accept {
		p := math.Exp((a.currentFitness - neighborFitness) / a.temperature)
		accept = a.rng.Float64() < p
	}
	if accept {
		a.current = neighbor
		a.currentFitness = neighborFitness
	}

	a.temperature *= a.config.Alpha
	return accept
}

// neighbor returns a copy of the current candidate with two distinct
// positions swapped.
func (a *AnnealingOptimizer) neighbor() optimization.Candidate {
	n := len(a.current)
	out := a.current.Clone()
	i := a.rng.Intn(n)
	j := a.rng.Intn(n)
	for i == j {
		j = a.rng.Intn(n)
	}
	out[i], out[j] = out[j], out[i]
	return out
}

func (a *AnnealingOptimizer) solution() *optimization.Solution {
	return &optimization.Solution{Candidate: a.current.Clone(), Fitness: a.currentFitness}
}

// Current returns the chain's current candidate.
func (a *AnnealingOptimizer) Current() *optimization.Solution {
	return a.solution()
}

// Steps returns the number of inner steps taken so far.
func (a *AnnealingOptimizer) Steps() int {
	return a.steps
}

// GetBestSolution returns the current candidate; annealing keeps no separate
// best-ever record.
func (a *AnnealingOptimizer) GetBestSolution() *optimization.Solution {
	return a.solution()
}

// GetHistory returns the history of evaluations
func (a *AnnealingOptimizer) GetHistory() []optimization.Evaluation {
	return a.history
}

// Stop stops the optimization process
func (a *AnnealingOptimizer) Stop() {
	if a.cancel != nil {
		a.cancel()
	}
}
