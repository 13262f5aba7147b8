package optimization

import (
	"math/rand"
	"time"

	"go.uber.org/zap"
)

// Settings holds the collaborators every solver is constructed with.
type Settings struct {
	// Rand is the solver's private random source.
	Rand *rand.Rand
	// Logger receives run lifecycle and per-iteration debug logs.
	Logger *zap.Logger
	// Progress, when set, is called after every iteration.
	Progress ProgressReporter
}

// Option configures Settings.
type Option func(*Settings)

// WithRand makes the solver draw from rng. The solver takes ownership of it.
func WithRand(rng *rand.Rand) Option {
	return func(s *Settings) {
		s.Rand = rng
	}
}

// WithSeed seeds a fresh random source. A zero seed falls back to the
// current time.
func WithSeed(seed int64) Option {
	return func(s *Settings) {
		s.Rand = newRand(seed)
	}
}

// WithLogger sets the solver logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Settings) {
		s.Logger = logger
	}
}

// WithProgress registers a progress reporter.
func WithProgress(fn ProgressReporter) Option {
	return func(s *Settings) {
		s.Progress = fn
	}
}

// NewSettings applies opts over the defaults: a time-seeded random source
// and a no-op logger.
func NewSettings(opts ...Option) Settings {
	var s Settings
	for _, opt := range opts {
		if opt != nil {
			opt(&s)
		}
	}
	if s.Rand == nil {
		s.Rand = newRand(0)
	}
	if s.Logger == nil {
		s.Logger = zap.NewNop()
	}
	return s
}

// Report forwards eval to the progress reporter, if any.
func (s Settings) Report(eval Evaluation) {
	if s.Progress == nil {
		return
	}
	eval.Solution = eval.Solution.Clone()
	s.Progress(eval)
}

func newRand(seed int64) *rand.Rand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}
