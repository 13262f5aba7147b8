package optimization

import (
	"context"
)

// Optimizer defines the interface shared by the permutation solvers
type Optimizer interface {
	// Optimize runs the search until its iteration budget is spent
	Optimize(ctx context.Context) (*OptimizationResult, error)

	// GetBestSolution returns the best solution found so far
	GetBestSolution() *Solution

	// GetHistory returns the history of evaluations
	GetHistory() []Evaluation

	// Stop gracefully stops the optimization process
	Stop()
}

// Solution represents a candidate placement together with its fitness
type Solution struct {
	Candidate Candidate
	Fitness   float64
}

// Clone returns a deep copy of the solution.
func (s *Solution) Clone() *Solution {
	if s == nil {
		return nil
	}
	return &Solution{
		Candidate: s.Candidate.Clone(),
		Fitness:   s.Fitness,
	}
}

// Evaluation represents the state of a solver after one iteration
type Evaluation struct {
	Iteration int
	Solution  *Solution
	// Mean and StdDev describe the fitness spread of the population or swarm
	// at this iteration. Single-state solvers leave StdDev at zero.
	Mean   float64
	StdDev float64
}

// OptimizationResult contains the result of an optimization run
type OptimizationResult struct {
	BestSolution *Solution
	History      []Evaluation
	Iterations   int
	Converged    bool
}

// ProgressReporter is invoked by a solver after every completed iteration.
// It runs on the solver's goroutine; the evaluation it receives is a copy.
type ProgressReporter func(eval Evaluation)
