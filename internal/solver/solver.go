// Package solver builds placement optimizers by algorithm name. JSON
// hyperparameters are overlaid field by field on the configured defaults.
package solver

import (
	"bytes"
	"encoding/json"

	"github.com/copyleftdev/branchopt/internal/config"
	"github.com/copyleftdev/branchopt/internal/optimization"
	"github.com/copyleftdev/branchopt/internal/optimization/annealing"
	"github.com/copyleftdev/branchopt/internal/optimization/genetic"
	"github.com/copyleftdev/branchopt/internal/optimization/swarm"
)

const component = "solver"

// Supported algorithm names.
const (
	Genetic   = "genetic"
	Annealing = "annealing"
	Swarm     = "swarm"
)

// Algorithms lists every supported algorithm name.
var Algorithms = []string{Genetic, Annealing, Swarm}

// Supported reports whether name is a known algorithm.
func Supported(name string) bool {
	for _, a := range Algorithms {
		if a == name {
			return true
		}
	}
	return false
}

// Limits bounds the work a single optimizer may be asked for. A zero
// MaxEvaluations means no bound.
type Limits struct {
	MaxEvaluations int64
}

// Job is a constructed optimizer plus what it is expected to cost.
type Job struct {
	Optimizer optimization.Optimizer
	// Iterations is the number of progress reports a full run emits.
	Iterations int
	// Evaluations estimates the fitness evaluations of a full run.
	Evaluations float64
}

type geneticParams struct {
	CrossoverP     float64 `json:"crossover_p"`
	MutationP      float64 `json:"mutation_p"`
	NumSims        int     `json:"num_sims"`
	PopulationSize int     `json:"population_size"`
	TournamentSize int     `json:"tournament_size"`
	Crossover      string  `json:"crossover"`
	Best           string  `json:"best"`
}

type annealingParams struct {
	StartTemp float64 `json:"start_temp"`
	StopTemp  float64 `json:"stop_temp"`
	Alpha     float64 `json:"alpha"`
	NumSims   int     `json:"num_sims"`
}

type swarmParams struct {
	Particles int     `json:"particles"`
	NumSims   int     `json:"num_sims"`
	W         float64 `json:"w"`
	C0        float64 `json:"c0"`
	C1        float64 `json:"c1"`
}

// decodeParams overlays raw onto dst. Unknown fields are rejected.
func decodeParams(algorithm string, raw json.RawMessage, dst interface{}) error {
	if len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return optimization.NewConfigError(algorithm, "invalid params: %v", err)
	}
	return nil
}

// New builds the named optimizer for p. Hyperparameters start from cfg and
// params, when present, overrides them. Runs whose estimated evaluation
// count exceeds limits are rejected with a config error before anything is
// allocated.
func New(cfg *config.Config, algorithm string, p *optimization.Problem, params json.RawMessage, limits Limits, opts ...optimization.Option) (*Job, error) {
	switch algorithm {
	case Genetic:
		c, err := geneticConfig(cfg.GeneticConfig(), params)
		if err != nil {
			return nil, err
		}
		pop := c.PopulationSize
		if pop == 0 {
			pop = genetic.DefaultPopulationSize
		}
		// selection and best tracking each score the whole population
		job := &Job{Iterations: c.NumSims, Evaluations: 2 * float64(c.NumSims+1) * float64(pop)}
		if err := limits.check(algorithm, job.Evaluations); err != nil {
			return nil, err
		}
		opt, err := genetic.NewGeneticOptimizer(p, c, opts...)
		if err != nil {
			return nil, optimization.WrapError(err, "build optimizer").WithComponent(component)
		}
		job.Optimizer = opt
		return job, nil

	case Annealing:
		c, err := annealingConfig(cfg.AnnealingConfig(), params)
		if err != nil {
			return nil, err
		}
		if err := c.Validate(); err != nil {
			return nil, optimization.WrapError(err, "build optimizer").WithComponent(component)
		}
		job := &Job{Iterations: c.NumSims, Evaluations: float64(c.NumSims) * c.StepsPerRepetition()}
		if err := limits.check(algorithm, job.Evaluations); err != nil {
			return nil, err
		}
		opt, err := annealing.NewAnnealingOptimizer(p, c, opts...)
		if err != nil {
			return nil, optimization.WrapError(err, "build optimizer").WithComponent(component)
		}
		job.Optimizer = opt
		return job, nil

	case Swarm:
		c, err := swarmConfig(cfg.SwarmConfig(), params)
		if err != nil {
			return nil, err
		}
		job := &Job{Iterations: c.NumSims, Evaluations: float64(c.NumSims+1) * float64(c.Particles)}
		if err := limits.check(algorithm, job.Evaluations); err != nil {
			return nil, err
		}
		opt, err := swarm.NewSwarmOptimizer(p, c, opts...)
		if err != nil {
			return nil, optimization.WrapError(err, "build optimizer").WithComponent(component)
		}
		job.Optimizer = opt
		return job, nil
	}
	return nil, optimization.NewConfigError(component, "unknown algorithm %q, want one of %v", algorithm, Algorithms)
}

func (l Limits) check(algorithm string, evaluations float64) error {
	if l.MaxEvaluations > 0 && evaluations > float64(l.MaxEvaluations) {
		return optimization.NewConfigError(algorithm, "run needs about %.3g fitness evaluations, limit is %d", evaluations, l.MaxEvaluations)
	}
	return nil
}

func geneticConfig(d genetic.Config, raw json.RawMessage) (genetic.Config, error) {
	params := geneticParams{
		CrossoverP:     d.CrossoverP,
		MutationP:      d.MutationP,
		NumSims:        d.NumSims,
		PopulationSize: d.PopulationSize,
		TournamentSize: d.TournamentSize,
		Crossover:      string(d.Crossover),
		Best:           string(d.Best),
	}
	if err := decodeParams(Genetic, raw, &params); err != nil {
		return genetic.Config{}, err
	}
	return genetic.Config{
		CrossoverP:     params.CrossoverP,
		MutationP:      params.MutationP,
		NumSims:        params.NumSims,
		PopulationSize: params.PopulationSize,
		TournamentSize: params.TournamentSize,
		Crossover:      genetic.CrossoverPolicy(params.Crossover),
		Best:           genetic.BestPolicy(params.Best),
	}, nil
}

func annealingConfig(d annealing.Config, raw json.RawMessage) (annealing.Config, error) {
	params := annealingParams{
		StartTemp: d.StartTemp,
		StopTemp:  d.StopTemp,
		Alpha:     d.Alpha,
		NumSims:   d.NumSims,
	}
	if err := decodeParams(Annealing, raw, &params); err != nil {
		return annealing.Config{}, err
	}
	return annealing.Config{
		StartTemp: params.StartTemp,
		StopTemp:  params.StopTemp,
		Alpha:     params.Alpha,
		NumSims:   params.NumSims,
	}, nil
}

func swarmConfig(d swarm.Config, raw json.RawMessage) (swarm.Config, error) {
	params := swarmParams{
		Particles: d.Particles,
		NumSims:   d.NumSims,
		W:         d.W,
		C0:        d.C0,
		C1:        d.C1,
	}
	if err := decodeParams(Swarm, raw, &params); err != nil {
		return swarm.Config{}, err
	}
	return swarm.Config{
		Particles: params.Particles,
		NumSims:   params.NumSims,
		W:         params.W,
		C0:        params.C0,
		C1:        params.C1,
	}, nil
}
