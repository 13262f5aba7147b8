package optimization

import (
	"math"
	"math/rand"
	"testing"

	"gonum.org/v1/gonum/mat"
)

// LineProblem returns the n-site instance with distance |i-j| and unit cost
// between distinct sites. Every permutation has the same fitness on it.
func LineProblem(t testing.TB, n int) *Problem {
	t.Helper()

	d := mat.NewDense(n, n, nil)
	c := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			d.Set(i, j, math.Abs(float64(i-j)))
			if i != j {
				c.Set(i, j, 1)
			}
		}
	}
	p, err := NewProblem(d, c)
	if err != nil {
		t.Fatalf("line problem: %v", err)
	}
	return p
}

// RandomProblem returns an n-site instance with symmetric integer entries in
// [0, 20) drawn from rng. Like any instance, every permutation of it has the
// same fitness: the pair sum does not depend on site order. Use LexScore to
// exercise a solver's search on scores that differ between candidates.
func RandomProblem(t testing.TB, n int, rng *rand.Rand) *Problem {
	t.Helper()

	d := mat.NewSymDense(n, nil)
	c := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			d.SetSym(i, j, float64(rng.Intn(20)))
			c.SetSym(i, j, float64(rng.Intn(20)))
		}
	}
	p, err := NewProblem(d, c)
	if err != nil {
		t.Fatalf("random problem: %v", err)
	}
	return p
}

// LexScore ranks candidates lexicographically, so distinct permutations of
// 1..n always score differently and the identity is the unique minimum.
func LexScore(c Candidate) float64 {
	var z float64
	for _, id := range c {
		z = z*float64(len(c)+1) + float64(id)
	}
	return z
}

// AssertPermutation fails the test unless c is a permutation of 1..n.
func AssertPermutation(t testing.TB, c Candidate, n int) {
	t.Helper()

	if len(c) != n {
		t.Fatalf("candidate %v has %d sites, want %d", c, len(c), n)
	}
	seen := make([]bool, n+1)
	for i, id := range c {
		if id < 1 || id > n {
			t.Fatalf("candidate %v: site %d at %d out of range", c, id, i)
		}
		if seen[id] {
			t.Fatalf("candidate %v: site %d repeats", c, id)
		}
		seen[id] = true
	}
}
