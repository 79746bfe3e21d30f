package flow

import "math"

import "github.com/neurlang/rectifiedflow/tensor"

// AssignNoise returns the noise rows permuted so that the total squared
// distance between data row i and noise row i is minimal.
func AssignNoise(data, noise *tensor.Tensor) (*tensor.Tensor, error) {
	if !data.SameShape(noise) {
		return nil, ErrShape
	}
	n := data.Rows
	cost := make([][]float64, n)
	for i := range cost {
		cost[i] = make([]float64, n)
		dr := data.Row(i)
		for j := range cost[i] {
			nr := noise.Row(j)
			var s float64
			for k := range dr {
				d := dr[k] - nr[k]
				s += d * d
			}
			cost[i][j] = s
		}
	}
	perm := Hungarian(cost)
	o := tensor.Zeros(noise.Rows, noise.Cols)
	for i, j := range perm {
		copy(o.Row(i), noise.Row(j))
	}
	return o, nil
}

// Hungarian solves the square assignment problem and returns, for every row,
// the column assigned to it.
func Hungarian(cost [][]float64) []int {
	n := len(cost)
	if n == 0 {
		return nil
	}
	u := make([]float64, n+1)
	v := make([]float64, n+1)
	p := make([]int, n+1)
	way := make([]int, n+1)
	minv := make([]float64, n+1)
	used := make([]bool, n+1)
	for i := 1; i <= n; i++ {
		p[0] = i
		j0 := 0
		for j := range minv {
			minv[j] = math.Inf(1)
			used[j] = false
		}
		for {
			used[j0] = true
			i0, delta, j1 := p[j0], math.Inf(1), 0
			for j := 1; j <= n; j++ {
				if used[j] {
					continue
				}
				cur := cost[i0-1][j-1] - u[i0] - v[j]
				if cur < minv[j] {
					minv[j] = cur
					way[j] = j0
				}
				if minv[j] < delta {
					delta = minv[j]
					j1 = j
				}
			}
			for j := 0; j <= n; j++ {
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
	out := make([]int, n)
	for j := 1; j <= n; j++ {
		out[p[j]-1] = j - 1
	}
	return out
}
