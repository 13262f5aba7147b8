package optimization

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// symmetryTol is the largest |a[i][j]-a[j][i]| accepted as symmetric.
const symmetryTol = 1e-9

// Problem holds the distance and cost matrices of a placement instance.
//
// Identifier i (1-based) lives at offset i-1 of the N×N matrices. Only the
// pairwise products distance*cost are kept; fitness reads nothing else.
type Problem struct {
	n       int
	weights *mat.SymDense
}

// NewProblem validates two N×N matrices and builds a Problem from them.
func NewProblem(distances, costs mat.Matrix) (*Problem, error) {
	if distances == nil || costs == nil {
		return nil, NewConfigError("problem", "distance and cost matrices are required")
	}
	dr, dc := distances.Dims()
	cr, cc := costs.Dims()
	if dr != dc {
		return nil, NewConfigError("problem", "distance matrix is %dx%d, want square", dr, dc)
	}
	if cr != cc {
		return nil, NewConfigError("problem", "cost matrix is %dx%d, want square", cr, cc)
	}
	if dr != cr {
		return nil, NewConfigError("problem", "distance matrix is %dx%d but cost matrix is %dx%d", dr, dc, cr, cc)
	}
	if dr < 2 {
		return nil, NewConfigError("problem", "need at least 2 sites, got %d", dr)
	}

	d, err := toSym("distance", distances)
	if err != nil {
		return nil, err
	}
	c, err := toSym("cost", costs)
	if err != nil {
		return nil, err
	}

	n := dr
	w := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			w.SetSym(i, j, d.At(i, j)*c.At(i, j))
		}
	}

	return &Problem{n: n, weights: w}, nil
}

// NewProblemFromRows builds a Problem from N×N row-major tables.
func NewProblemFromRows(distances, costs [][]float64) (*Problem, error) {
	d, err := denseFromRows("distance", distances, 0)
	if err != nil {
		return nil, err
	}
	c, err := denseFromRows("cost", costs, 0)
	if err != nil {
		return nil, err
	}
	return NewProblem(d, c)
}

// NewBorderedProblem builds a Problem from (N+1)×(N+1) tables whose row and
// column 0 only label the sites. The border is discarded.
func NewBorderedProblem(distances, costs [][]float64) (*Problem, error) {
	d, err := denseFromRows("distance", distances, 1)
	if err != nil {
		return nil, err
	}
	c, err := denseFromRows("cost", costs, 1)
	if err != nil {
		return nil, err
	}
	return NewProblem(d, c)
}

// Size returns N, the number of sites.
func (p *Problem) Size() int {
	return p.n
}

// Validate checks that c is a permutation of 1..N.
func (p *Problem) Validate(c Candidate) error {
	if len(c) != p.n {
		return NewInvalidCandidateError("candidate has %d sites, want %d", len(c), p.n)
	}
	seen := make([]bool, p.n+1)
	for i, id := range c {
		if id < 1 || id > p.n {
			return NewInvalidCandidateError("site %d at position %d is outside [1, %d]", id, i, p.n)
		}
		if seen[id] {
			return NewInvalidCandidateError("site %d repeats at position %d", id, i)
		}
		seen[id] = true
	}
	return nil
}

// Evaluate validates c and returns its fitness.
func (p *Problem) Evaluate(c Candidate) (float64, error) {
	if err := p.Validate(c); err != nil {
		return 0, err
	}
	return p.Fitness(c), nil
}

// Fitness returns the pairwise weighted cost of c. It assumes c is a valid
// permutation; solvers call it on candidates they keep valid themselves.
//
// Complexity: O(N²).
func (p *Problem) Fitness(c Candidate) float64 {
	var z float64
	for i := 0; i < len(c); i++ {
		a := c[i] - 1
		for j := i + 1; j < len(c); j++ {
			z += p.weights.At(a, c[j]-1)
		}
	}
	return z
}

// toSym copies m into a SymDense after checking symmetry and that every
// entry is finite and non-negative.
func toSym(name string, m mat.Matrix) (*mat.SymDense, error) {
	n, _ := m.Dims()
	s := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v := m.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
				return nil, NewConfigError("problem", "%s[%d][%d] = %v, want finite non-negative", name, i+1, j+1, v)
			}
			if math.Abs(v-m.At(j, i)) > symmetryTol {
				return nil, NewConfigError("problem", "%s matrix is not symmetric at (%d, %d)", name, i+1, j+1)
			}
			s.SetSym(i, j, v)
		}
	}
	return s, nil
}

// denseFromRows converts rows into a Dense, skipping the first skip rows and
// columns.
func denseFromRows(name string, rows [][]float64, skip int) (*mat.Dense, error) {
	n := len(rows) - skip
	if n < 1 {
		return nil, NewConfigError("problem", "%s matrix has %d rows", name, len(rows))
	}
	data := make([]float64, 0, n*n)
	for i := skip; i < len(rows); i++ {
		if len(rows[i]) != len(rows) {
			return nil, NewConfigError("problem", "%s row %d has %d columns, want %d", name, i, len(rows[i]), len(rows))
		}
		data = append(data, rows[i][skip:]...)
	}
	return mat.NewDense(n, n, data), nil
}
