package genetic

import (
	"github.com/copyleftdev/branchopt/internal/optimization"
)

const component = "genetic"

// CrossoverPolicy selects how single-point crossover keeps children valid.
type CrossoverPolicy string

const (
	// CrossoverOrdered keeps the head of one parent and fills the tail with
	// the other parent's remaining sites in the order they appear there,
	// starting at the cut.
	CrossoverOrdered CrossoverPolicy = "ordered"
	// CrossoverRepair swaps raw tails and then runs optimization.Repair over
	// the child.
	CrossoverRepair CrossoverPolicy = "repair"
)

// BestPolicy selects the comparison used for run-wide best tracking.
type BestPolicy string

const (
	// BestMinimize keeps the lowest-fitness member seen, matching selection.
	BestMinimize BestPolicy = "minimize"
	// BestMaximize keeps the highest-fitness member seen. It reproduces the
	// legacy tracker and works against selection; use it only to compare runs.
	BestMaximize BestPolicy = "maximize"
)

// Config holds the genetic algorithm hyperparameters.
type Config struct {
	// CrossoverP is the probability a sampled parent pair is recombined.
	CrossoverP float64
	// MutationP is the per-member probability of a random swap.
	MutationP float64
	// NumSims is the number of generations.
	NumSims int
	// PopulationSize must be even; zero selects DefaultPopulationSize.
	PopulationSize int
	// TournamentSize is the number of draws per tournament; zero selects
	// DefaultTournamentSize.
	TournamentSize int
	Crossover      CrossoverPolicy
	Best           BestPolicy
}

const (
	DefaultPopulationSize = 10
	DefaultTournamentSize = 9
)

// DefaultConfig returns the reference hyperparameters.
func DefaultConfig() Config {
	return Config{
		CrossoverP:     0.1,
		MutationP:      0.1,
		NumSims:        150,
		PopulationSize: DefaultPopulationSize,
		TournamentSize: DefaultTournamentSize,
		Crossover:      CrossoverOrdered,
		Best:           BestMinimize,
	}
}

func (c Config) withDefaults() Config {
	if c.PopulationSize == 0 {
		c.PopulationSize = DefaultPopulationSize
	}
	if c.TournamentSize == 0 {
		c.TournamentSize = DefaultTournamentSize
	}
	if c.Crossover == "" {
		c.Crossover = CrossoverOrdered
	}
	if c.Best == "" {
		c.Best = BestMinimize
	}
	return c
}

// Validate reports the first invalid hyperparameter as a config error.
func (c Config) Validate() error {
	if !(c.CrossoverP >= 0 && c.CrossoverP <= 1) {
		return optimization.NewConfigError(component, "crossover probability %v outside [0, 1]", c.CrossoverP)
	}
	if !(c.MutationP >= 0 && c.MutationP <= 1) {
		return optimization.NewConfigError(component, "mutation probability %v outside [0, 1]", c.MutationP)
	}
	if c.NumSims < 0 {
		return optimization.NewConfigError(component, "num_sims must be non-negative, got %d", c.NumSims)
	}
	if c.PopulationSize < 2 || c.PopulationSize%2 != 0 {
		return optimization.NewConfigError(component, "population size must be an even number >= 2, got %d", c.PopulationSize)
	}
	if c.TournamentSize < 1 {
		return optimization.NewConfigError(component, "tournament size must be positive, got %d", c.TournamentSize)
	}
	switch c.Crossover {
	case CrossoverOrdered, CrossoverRepair:
	default:
		return optimization.NewConfigError(component, "unknown crossover policy %q", c.Crossover)
	}
	switch c.Best {
	case BestMinimize, BestMaximize:
	default:
		return optimization.NewConfigError(component, "unknown best policy %q", c.Best)
	}
	return nil
}
