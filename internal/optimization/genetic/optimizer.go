// Package genetic implements a generational genetic algorithm over site
// permutations: tournament selection, single-point crossover kept valid by a
// configurable policy, and swap mutation.
package genetic

import (
	"context"
	"math/rand"

	"go.uber.org/zap"

	"github.com/copyleftdev/branchopt/internal/optimization"
)

// GeneticOptimizer evolves a fixed-size population of candidates.
type GeneticOptimizer struct {
	problem  *optimization.Problem
	config   Config
	settings optimization.Settings
	rng      *rand.Rand
	logger   *zap.Logger

	population []optimization.Candidate

	// fitness scores a member; it is problem.Fitness outside tests
	fitness func(optimization.Candidate) float64

	// Best member seen under config.Best
	best *optimization.Solution

	history []optimization.Evaluation

	// For cancellation
	cancel context.CancelFunc
}

// NewGeneticOptimizer validates cfg against problem and seeds a random
// population.
func NewGeneticOptimizer(problem *optimization.Problem, cfg Config, opts ...optimization.Option) (*GeneticOptimizer, error) {
	if problem == nil {
		return nil, optimization.NewConfigError(component, "problem is required")
	}
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	settings := optimization.NewSettings(opts...)
	g := &GeneticOptimizer{
		problem:  problem,
		config:   cfg,
		settings: settings,
		rng:      settings.Rand,
		logger:   settings.Logger.With(zap.String("solver", component)),
		fitness:  problem.Fitness,
	}

	g.population = make([]optimization.Candidate, cfg.PopulationSize)
	for i := range g.population {
		g.population[i] = optimization.RandomCandidate(problem.Size(), g.rng)
	}
	g.trackBest(g.scores())

	return g, nil
}

// Optimize runs config.NumSims generations and returns the tracked best.
func (g *GeneticOptimizer) Optimize(ctx context.Context) (*optimization.OptimizationResult, error) {
	ctx, g.cancel = context.WithCancel(ctx)
	defer g.cancel()

	g.logger.Info("run started",
		zap.Int("sites", g.problem.Size()),
		zap.Int("generations", g.config.NumSims),
		zap.Int("population", g.config.PopulationSize),
		zap.String("crossover", string(g.config.Crossover)),
		zap.String("best_policy", string(g.config.Best)),
	)

	for gen := 0; gen < g.config.NumSims; gen++ {
		if err := ctx.Err(); err != nil {
			g.logger.Warn("run cancelled", zap.Int("generation", gen), zap.Error(err))
			return nil, err
		}

		g.selection()
		g.crossover()
		g.mutation()

		scores := g.scores()
		g.trackBest(scores)

		mean, std := optimization.FitnessStats(scores)
		eval := optimization.Evaluation{
			Iteration: gen,
			Solution:  g.best.Clone(),
			Mean:      mean,
			StdDev:    std,
		}
		g.history = append(g.history, eval)
		g.settings.Report(eval)

		g.logger.Debug("generation complete",
			zap.Int("generation", gen),
			zap.Float64("best", g.best.Fitness),
			zap.Float64("mean", mean),
			zap.Float64("stddev", std),
		)
	}

	g.logger.Info("run finished", zap.Float64("best", g.best.Fitness), zap.Ints("candidate", g.best.Candidate))

	return &optimization.OptimizationResult{
		BestSolution: g.best.Clone(),
		History:      g.history,
		Iterations:   g.config.NumSims,
		Converged:    true,
	}, nil
}

// GetBestSolution returns the best solution found so far
func (g *GeneticOptimizer) GetBestSolution() *optimization.Solution {
	return g.best.Clone()
}

// GetHistory returns the history of evaluations
func (g *GeneticOptimizer) GetHistory() []optimization.Evaluation {
	return g.history
}

// Stop stops the optimization process
func (g *GeneticOptimizer) Stop() {
	if g.cancel != nil {
		g.cancel()
	}
}

// Population returns a copy of the current population.
func (g *GeneticOptimizer) Population() []optimization.Candidate {
	out := make([]optimization.Candidate, len(g.population))
	for i, c := range g.population {
		out[i] = c.Clone()
	}
	return out
}

func (g *GeneticOptimizer) scores() []float64 {
	scores := make([]float64, len(g.population))
	for i, c := range g.population {
		scores[i] = g.fitness(c)
	}
	return scores
}

// selection replaces the population with tournament winners.
func (g *GeneticOptimizer) selection() {
	scores := g.scores()
	next := make([]optimization.Candidate, len(g.population))
	for i := range next {
		next[i] = g.population[g.tournament(scores)].Clone()
	}
	g.population = next
}

// tournament returns the index of the lowest-fitness draw. Draws are with
// replacement and the first drawn wins ties.
func (g *GeneticOptimizer) tournament(scores []float64) int {
	best := g.rng.Intn(len(scores))
	for i := 1; i < g.config.TournamentSize; i++ {
		cand := g.rng.Intn(len(scores))
		if scores[cand] < scores[best] {
			best = cand
		}
	}
	return best
}

// crossover rebuilds the population from randomly paired parents. With a
// zero crossover probability the stage leaves the population untouched.
func (g *GeneticOptimizer) crossover() {
	if g.config.CrossoverP == 0 {
		return
	}

	size := len(g.population)
	n := g.problem.Size()
	next := make([]optimization.Candidate, 0, size)
	for i := 0; i < size/2; i++ {
		a := g.population[g.rng.Intn(size)]
		b := g.population[g.rng.Intn(size)]
		if g.rng.Float64() < g.config.CrossoverP {
			cut := g.rng.Intn(n + 1)
			next = append(next, g.recombine(a, b, cut), g.recombine(b, a, cut))
		} else {
			next = append(next, a.Clone(), b.Clone())
		}
	}
	g.population = next
}

// recombine builds the child with head[:cut] followed by tail's sites.
func (g *GeneticOptimizer) recombine(head, tail optimization.Candidate, cut int) optimization.Candidate {
	if g.config.Crossover == CrossoverRepair {
		raw := make([]int, 0, len(head))
		raw = append(raw, head[:cut]...)
		raw = append(raw, tail[cut:]...)
		child, err := optimization.Repair(raw, g.problem.Size())
		if err != nil {
			// parents come from the population, so lengths always match
			panic(err)
		}
		return child
	}
	return orderedChild(head, tail, cut)
}

// orderedChild keeps head[:cut] and fills the remaining positions with the
// sites of tail not yet used, scanning tail from cut and wrapping around.
// When the raw tail introduces no duplicates the child equals the raw
// single-point child.
func orderedChild(head, tail optimization.Candidate, cut int) optimization.Candidate {
	n := len(head)
	child := make(optimization.Candidate, 0, n)
	used := make([]bool, n+1)
	for _, id := range head[:cut] {
		child = append(child, id)
		used[id] = true
	}
	for i := 0; i < n && len(child) < n; i++ {
		id := tail[(cut+i)%n]
		if used[id] {
			continue
		}
		child = append(child, id)
		used[id] = true
	}
	return child
}

// mutation swaps two uniformly drawn positions of each member with
// probability MutationP. Drawing the same position twice is a no-op.
func (g *GeneticOptimizer) mutation() {
	n := g.problem.Size()
	for _, c := range g.population {
		if g.rng.Float64() < g.config.MutationP {
			i := g.rng.Intn(n)
			j := g.rng.Intn(n)
			c[i], c[j] = c[j], c[i]
		}
	}
}

func (g *GeneticOptimizer) better(a, b float64) bool {
	if g.config.Best == BestMaximize {
		return a > b
	}
	return a < b
}

func (g *GeneticOptimizer) trackBest(scores []float64) {
	for i, c := range g.population {
		if g.best == nil || g.better(scores[i], g.best.Fitness) {
			g.best = &optimization.Solution{Candidate: c.Clone(), Fitness: scores[i]}
		}
	}
}
