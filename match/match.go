// Package match implements the periodic bipartite assignment of
// spec.md §4.3: a one-to-one matching between vacant vehicles and waiting
// passengers that minimises the total pickup duration(v, p.origin). The
// solver works directly in duration space; it does not maximise the sum of
// 1/duration, which can select a different matching (mirrors original_source/Interaction.py's
// networkx minimum_weight_full_matching with weight='duration', and
// Management.py's pulp LP formulation of the same one-to-one problem).
//
// No assignment-problem library appears anywhere in the retrieval pack (see
// DESIGN.md); this is a from-scratch Hungarian algorithm, the standard
// O(n^3) primal-dual method, justified there as a standard-library-only
// component.
package match

import "math"

// Pair is one resolved match: vehicle index i matched to passenger index j
// at the given duration.
type Pair struct {
	VehicleIdx   int
	PassengerIdx int
	Duration     float64
}

// Solve returns the duration-minimising one-to-one matching over the cost
// matrix cost[vehicle][passenger]. Unmatched rows/columns (when the two
// sets differ in size) are simply absent from the result. cost entries may
// be math.Inf(1) to forbid a pairing (e.g. already-expired passenger).
func Solve(cost [][]float64) []Pair {
	n := len(cost)
	if n == 0 {
		return nil
	}
	m := len(cost[0])
	if m == 0 {
		return nil
	}

	size := n
	if m > size {
		size = m
	}

	// Pad to a square matrix with a large finite cost so the Hungarian
	// algorithm's potentials stay well-defined; padded pairs are filtered
	// out of the result.
	const bigM = 1e15
	a := make([][]float64, size+1)
	for i := range a {
		a[i] = make([]float64, size+1)
	}
	for i := 1; i <= size; i++ {
		for j := 1; j <= size; j++ {
			if i <= n && j <= m {
				c := cost[i-1][j-1]
				if math.IsInf(c, 1) {
					c = bigM
				}
				a[i][j] = c
			} else {
				a[i][j] = bigM
			}
		}
	}

	const inf = math.MaxFloat64 / 4
	u := make([]float64, size+1)
	v := make([]float64, size+1)
	p := make([]int, size+1) // p[j] = row assigned to column j
	way := make([]int, size+1)

	for i := 1; i <= size; i++ {
		p[0] = i
		j0 := 0
		minv := make([]float64, size+1)
		used := make([]bool, size+1)
		for j := range minv {
			minv[j] = inf
		}
		for {
			used[j0] = true
			i0 := p[j0]
			delta := inf
			j1 := -1
			for j := 1; j <= size; j++ {
				if used[j] {
					continue
				}
				cur := a[i0][j] - u[i0] - v[j]
				if cur < minv[j] {
					minv[j] = cur
					way[j] = j0
				}
				if minv[j] < delta {
					delta = minv[j]
					j1 = j
				}
			}
			for j := 0; j <= size; j++ {
				if used[j] {
					u[p[j]] += delta
					v[j] -= delta
				} else {
					minv[j] -= delta
				}
			}
			j0 = j1
			if p[j0] == 0 {
				break
			}
		}
		for j0 != 0 {
			j1 := way[j0]
			p[j0] = p[j1]
			j0 = j1
		}
	}

	result := make([]Pair, 0, size)
	for j := 1; j <= size; j++ {
		i := p[j]
		if i == 0 || i > n || j > m {
			continue
		}
		c := cost[i-1][j-1]
		if math.IsInf(c, 1) {
			continue
		}
		result = append(result, Pair{VehicleIdx: i - 1, PassengerIdx: j - 1, Duration: c})
	}
	return result
}
