package optimization

import (
	"math"
	"math/rand"
)

// Candidate is an ordering of the site identifiers 1..N.
type Candidate []int

// Clone returns a copy of c that shares no memory with it.
func (c Candidate) Clone() Candidate {
	if c == nil {
		return nil
	}
	out := make(Candidate, len(c))
	copy(out, c)
	return out
}

// Equal reports whether c and other hold the same identifiers in the same order.
func (c Candidate) Equal(other Candidate) bool {
	if len(c) != len(other) {
		return false
	}
	for i := range c {
		if c[i] != other[i] {
			return false
		}
	}
	return true
}

// RandomCandidate returns a uniformly random permutation of 1..n.
func RandomCandidate(n int, rng *rand.Rand) Candidate {
	c := make(Candidate, n)
	for i, v := range rng.Perm(n) {
		c[i] = v + 1
	}
	return c
}

// ProposeSite maps a continuous coordinate onto a site proposal for Repair:
// ceil(|v|), with NaN, infinities and anything above n collapsed to n+1.
func ProposeSite(v float64, n int) int {
	r := math.Ceil(math.Abs(v))
	if !(r <= float64(n)) {
		return n + 1
	}
	return int(r)
}

// Repair turns a sequence of proposed sites into a permutation of 1..n.
//
// Proposals are processed left to right. A proposal that is out of [1, n] or
// already taken by an earlier position is incremented, wrapping from n+1 back
// to 1, until a free site is found. A valid permutation comes back unchanged.
func Repair(proposals []int, n int) (Candidate, error) {
	if len(proposals) != n {
		return nil, NewInvalidCandidateError("cannot repair %d proposals into %d sites", len(proposals), n)
	}
	used := make([]bool, n+1)
	out := make(Candidate, n)
	for k, id := range proposals {
		if id < 0 || id > n {
			id = n + 1
		}
		for id < 1 || id > n || used[id] {
			id++
			if id > n {
				id = 1
			}
		}
		used[id] = true
		out[k] = id
	}
	return out, nil
}
