package server

import (
	"encoding/json"

	"github.com/copyleftdev/branchopt/internal/config"
	"github.com/copyleftdev/branchopt/internal/optimization"
	"github.com/copyleftdev/branchopt/internal/problem"
	"github.com/copyleftdev/branchopt/internal/solver"
)

// Supported algorithm names.
const (
	AlgorithmGenetic   = solver.Genetic
	AlgorithmAnnealing = solver.Annealing
	AlgorithmSwarm     = solver.Swarm
)

// Algorithms lists every supported algorithm name.
var Algorithms = solver.Algorithms

// SolveRequest describes one solver job. Params overrides the configured
// defaults of the chosen algorithm field by field.
//
// Example:
//
//	{
//	  "algorithm": "annealing",
//	  "distances": [[0, 1], [1, 0]],
//	  "costs": [[0, 3], [3, 0]],
//	  "seed": 7,
//	  "params": {"alpha": 0.9, "num_sims": 20}
//	}
type SolveRequest struct {
	Algorithm string `json:"algorithm"`
	problem.Instance
	Seed   int64           `json:"seed,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
}

// newSolver builds the optimizer a request asks for. Hyperparameters start
// from the configured defaults, the seed falls back to SOLVER_SEED and the
// run must fit within SOLVER_MAX_EVALUATIONS.
func newSolver(cfg *config.Config, req *SolveRequest, opts ...optimization.Option) (*solver.Job, error) {
	p, err := req.Instance.Problem()
	if err != nil {
		return nil, err
	}
	if p.Size() > cfg.Solver.MaxSites {
		return nil, optimization.NewConfigError("server", "problem has %d sites, limit is %d", p.Size(), cfg.Solver.MaxSites)
	}

	seed := req.Seed
	if seed == 0 {
		seed = cfg.Solver.Seed
	}
	opts = append([]optimization.Option{optimization.WithSeed(seed)}, opts...)

	return solver.New(cfg, req.Algorithm, p, req.Params,
		solver.Limits{MaxEvaluations: cfg.Solver.MaxEvaluations}, opts...)
}
