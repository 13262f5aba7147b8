package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"

	"github.com/copyleftdev/branchopt/internal/optimization/annealing"
	"github.com/copyleftdev/branchopt/internal/optimization/genetic"
	"github.com/copyleftdev/branchopt/internal/optimization/swarm"
)

type Config struct {
	Environment string `env:"ENV" envDefault:"development"`
	HTTP        struct {
		Port            int           `env:"HTTP_PORT" envDefault:"8080"`
		ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"30s"`
		WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
		IdleTimeout     time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
		ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"30s"`
		// MaxBodyBytes caps the size of a solve request (matrices included).
		MaxBodyBytes int64 `env:"HTTP_MAX_BODY_BYTES" envDefault:"1048576"`
	}
	Logging struct {
		Level  string `env:"LOG_LEVEL" envDefault:"info"`
		Format string `env:"LOG_FORMAT" envDefault:"json"`
		Output string `env:"LOG_OUTPUT" envDefault:"stderr"`
	}
	Solver struct {
		// Seed is the default random seed; zero seeds from the clock.
		Seed int64 `env:"SOLVER_SEED" envDefault:"0"`
		// MaxJobs caps the number of concurrently running jobs.
		MaxJobs int `env:"SOLVER_MAX_JOBS" envDefault:"4"`
		// MaxSites rejects problems larger than this.
		MaxSites int `env:"SOLVER_MAX_SITES" envDefault:"200"`
		// MaxEvaluations rejects requests whose hyperparameters would need
		// more fitness evaluations than this.
		MaxEvaluations int64 `env:"SOLVER_MAX_EVALUATIONS" envDefault:"50000000"`
	}
	Genetic struct {
		CrossoverP     float64 `env:"GA_CROSSOVER_P" envDefault:"0.1"`
		MutationP      float64 `env:"GA_MUTATION_P" envDefault:"0.1"`
		NumSims        int     `env:"GA_NUM_SIMS" envDefault:"150"`
		PopulationSize int     `env:"GA_POPULATION" envDefault:"10"`
		TournamentSize int     `env:"GA_TOURNAMENT" envDefault:"9"`
		Crossover      string  `env:"GA_CROSSOVER" envDefault:"ordered"`
		Best           string  `env:"GA_BEST" envDefault:"minimize"`
	}
	Annealing struct {
		StartTemp float64 `env:"SA_START_TEMP" envDefault:"1000"`
		StopTemp  float64 `env:"SA_STOP_TEMP" envDefault:"0.1"`
		Alpha     float64 `env:"SA_ALPHA" envDefault:"0.01"`
		NumSims   int     `env:"SA_NUM_SIMS" envDefault:"150"`
	}
	Swarm struct {
		Particles int     `env:"PSO_PARTICLES" envDefault:"50"`
		NumSims   int     `env:"PSO_NUM_SIMS" envDefault:"150"`
		W         float64 `env:"PSO_W" envDefault:"0.75"`
		C0        float64 `env:"PSO_C0" envDefault:"0.5"`
		C1        float64 `env:"PSO_C1" envDefault:"1.5"`
	}
}

func Load() (*Config, error) {
	cfg := &Config{}

	// Parse environment variables
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	// Set default logging level based on environment
	if cfg.Environment == "development" && cfg.Logging.Level == "" {
		cfg.Logging.Level = "debug"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the service settings and that every solver default would
// be accepted by its constructor.
func (c *Config) Validate() error {
	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("invalid HTTP_PORT %d", c.HTTP.Port)
	}
	if c.HTTP.MaxBodyBytes <= 0 {
		return fmt.Errorf("HTTP_MAX_BODY_BYTES must be positive, got %d", c.HTTP.MaxBodyBytes)
	}
	if c.Solver.MaxJobs < 1 {
		return fmt.Errorf("SOLVER_MAX_JOBS must be positive, got %d", c.Solver.MaxJobs)
	}
	if c.Solver.MaxSites < 2 {
		return fmt.Errorf("SOLVER_MAX_SITES must be at least 2, got %d", c.Solver.MaxSites)
	}
	if c.Solver.MaxEvaluations < 1 {
		return fmt.Errorf("SOLVER_MAX_EVALUATIONS must be positive, got %d", c.Solver.MaxEvaluations)
	}
	if err := c.GeneticConfig().Validate(); err != nil {
		return fmt.Errorf("genetic defaults: %w", err)
	}
	if err := c.AnnealingConfig().Validate(); err != nil {
		return fmt.Errorf("annealing defaults: %w", err)
	}
	if err := c.SwarmConfig().Validate(); err != nil {
		return fmt.Errorf("swarm defaults: %w", err)
	}
	return nil
}

// GeneticConfig returns the configured genetic algorithm defaults.
func (c *Config) GeneticConfig() genetic.Config {
	return genetic.Config{
		CrossoverP:     c.Genetic.CrossoverP,
		MutationP:      c.Genetic.MutationP,
		NumSims:        c.Genetic.NumSims,
		PopulationSize: c.Genetic.PopulationSize,
		TournamentSize: c.Genetic.TournamentSize,
		Crossover:      genetic.CrossoverPolicy(c.Genetic.Crossover),
		Best:           genetic.BestPolicy(c.Genetic.Best),
	}
}

// AnnealingConfig returns the configured annealing schedule defaults.
func (c *Config) AnnealingConfig() annealing.Config {
	return annealing.Config{
		StartTemp: c.Annealing.StartTemp,
		StopTemp:  c.Annealing.StopTemp,
		Alpha:     c.Annealing.Alpha,
		NumSims:   c.Annealing.NumSims,
	}
}

// SwarmConfig returns the configured swarm defaults.
func (c *Config) SwarmConfig() swarm.Config {
	return swarm.Config{
		Particles: c.Swarm.Particles,
		NumSims:   c.Swarm.NumSims,
		W:         c.Swarm.W,
		C0:        c.Swarm.C0,
		C1:        c.Swarm.C1,
	}
}
