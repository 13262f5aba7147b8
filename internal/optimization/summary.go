package optimization

import (
	"gonum.org/v1/gonum/stat"
)

// Summary compares the outcome of several solver runs on one problem.
type Summary struct {
	Best   *Solution
	Mean   float64
	StdDev float64
	Count  int
}

// FitnessStats returns the mean and sample standard deviation of values.
// The deviation is zero for fewer than two values.
func FitnessStats(values []float64) (mean, std float64) {
	switch len(values) {
	case 0:
		return 0, 0
	case 1:
		return values[0], 0
	}
	return stat.MeanStdDev(values, nil)
}

// Summarize picks the lowest-fitness solution and aggregates the rest.
// Nil solutions are skipped.
func Summarize(solutions ...*Solution) Summary {
	var sum Summary
	values := make([]float64, 0, len(solutions))
	for _, s := range solutions {
		if s == nil {
			continue
		}
		values = append(values, s.Fitness)
		if sum.Best == nil || s.Fitness < sum.Best.Fitness {
			sum.Best = s
		}
	}
	sum.Count = len(values)
	sum.Mean, sum.StdDev = FitnessStats(values)
	return sum
}
