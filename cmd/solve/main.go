// Command solve runs the placement solvers on a YAML instance and reports
// the permutation each one returns.
//
// Hyperparameter defaults come from the same environment variables as the
// server (GA_*, SA_*, PSO_*, SOLVER_SEED).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/copyleftdev/branchopt/internal/config"
	"github.com/copyleftdev/branchopt/internal/logging"
	"github.com/copyleftdev/branchopt/internal/optimization"
	"github.com/copyleftdev/branchopt/internal/problem"
	"github.com/copyleftdev/branchopt/internal/solver"
)

// outcome is the result of one solver run.
type outcome struct {
	algorithm string
	optimizer optimization.Optimizer
	result    *optimization.OptimizationResult
	err       error
	took      time.Duration
}

func main() {
	var (
		instancePath = flag.String("instance", "", "path to a YAML problem instance (required)")
		algos        = flag.String("algos", strings.Join(solver.Algorithms, ","), "comma-separated solvers to run: genetic, annealing, swarm")
		seed         = flag.Int64("seed", 0, "random seed; 0 uses SOLVER_SEED, which in turn 0 means time-seeded")
		timeout      = flag.Duration("timeout", 0, "per-solver timeout; 0 means none")
		parallel     = flag.Int("parallel", 1, "number of solvers to run at once")
		logLevel     = flag.String("log-level", "", "overrides LOG_LEVEL")
	)
	flag.Parse()

	if *instancePath == "" {
		fmt.Fprintln(os.Stderr, "solve: -instance is required")
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *parallel < 1 {
		*parallel = 1
	}
	if *seed == 0 {
		*seed = cfg.Solver.Seed
	}

	logger, err := logging.NewLogger(&logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	selected, err := parseAlgorithms(*algos)
	if err != nil {
		logger.Fatal("Invalid -algos", map[string]interface{}{"error": err})
	}

	in, p, err := problem.Load(*instancePath)
	if err != nil {
		logger.Fatal("Failed to load instance", map[string]interface{}{"error": err, "path": *instancePath})
	}
	logger.Info("Instance loaded", map[string]interface{}{"name": in.Name, "sites": p.Size()})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Solvers are built up front so a bad configuration fails before any run.
	// Local runs are not held to SOLVER_MAX_EVALUATIONS.
	outcomes := make([]outcome, len(selected))
	for i, algorithm := range selected {
		runLogger := logger.WithField("algorithm", algorithm)
		job, err := solver.New(cfg, algorithm, p, nil, solver.Limits{},
			optimization.WithSeed(*seed),
			optimization.WithLogger(logging.NewZapLogger(runLogger)),
		)
		if err != nil {
			fields := map[string]interface{}{"algorithm": algorithm, "error": err}
			if oe, ok := optimization.IsOptimizationError(err); ok {
				fields["component"] = oe.Component
			}
			logger.Fatal("Failed to create solver", fields)
		}
		runLogger.Debug("Solver created", map[string]interface{}{"evaluations": job.Evaluations})
		outcomes[i] = outcome{algorithm: algorithm, optimizer: job.Optimizer}
	}

	// Each solver owns its random source, so runs may overlap.
	workers := pool.New().WithMaxGoroutines(*parallel)
	for i := range outcomes {
		o := &outcomes[i]
		workers.Go(func() {
			started := time.Now()
			o.result, o.err = run(ctx, o.optimizer, *timeout)
			o.took = time.Since(started)
		})
	}
	workers.Wait()

	var solutions []*optimization.Solution
	for _, o := range outcomes {
		if o.err != nil {
			logger.Error("Solver stopped", map[string]interface{}{"algorithm": o.algorithm, "error": o.err})
			continue
		}

		best := o.result.BestSolution
		solutions = append(solutions, best)
		logger.Info("Solver finished", map[string]interface{}{
			"algorithm":  o.algorithm,
			"fitness":    best.Fitness,
			"candidate":  best.Candidate,
			"iterations": o.result.Iterations,
			"duration":   o.took.String(),
		})
		fmt.Printf("%-10s fitness=%g placement=%v\n", o.algorithm, best.Fitness, []int(best.Candidate))
	}

	if len(solutions) == 0 {
		os.Exit(1)
	}

	summary := optimization.Summarize(solutions...)
	logger.Info("Summary", map[string]interface{}{
		"runs":   summary.Count,
		"best":   summary.Best.Fitness,
		"mean":   summary.Mean,
		"stddev": summary.StdDev,
	})
}

func parseAlgorithms(list string) ([]string, error) {
	var out []string
	for _, name := range strings.Split(list, ",") {
		name = strings.ToLower(strings.TrimSpace(name))
		switch name {
		case "":
			continue
		case "all":
			return solver.Algorithms, nil
		}
		if !solver.Supported(name) {
			return nil, fmt.Errorf("unknown algorithm %q", name)
		}
		out = append(out, name)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no algorithms selected")
	}
	return out, nil
}

func run(ctx context.Context, opt optimization.Optimizer, timeout time.Duration) (*optimization.OptimizationResult, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return opt.Optimize(ctx)
}
