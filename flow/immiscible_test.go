package flow

import "testing"

import "github.com/stretchr/testify/assert"
import "github.com/stretchr/testify/require"

import "github.com/neurlang/rectifiedflow/tensor"

func permutations(n int) [][]int {
	if n == 0 {
		return [][]int{{}}
	}
	var out [][]int
	for _, p := range permutations(n - 1) {
		for i := 0; i <= len(p); i++ {
			q := append(append(append([]int{}, p[:i]...), n-1), p[i:]...)
			out = append(out, q)
		}
	}
	return out
}

func assignmentCost(cost [][]float64, perm []int) (s float64) {
	for i, j := range perm {
		s += cost[i][j]
	}
	return
}

func TestHungarianMatchesBruteForce(t *testing.T) {
	rng := tensor.NewRand(17)
	for trial := 0; trial < 20; trial++ {
		n := 1 + trial%6
		cost := make([][]float64, n)
		for i := range cost {
			cost[i] = make([]float64, n)
			for j := range cost[i] {
				cost[i][j] = rng.Float64() * 10
			}
		}
		best := -1.0
		for _, p := range permutations(n) {
			if c := assignmentCost(cost, p); best < 0 || c < best {
				best = c
			}
		}
		perm := Hungarian(cost)
		seen := map[int]bool{}
		for _, j := range perm {
			seen[j] = true
		}
		require.Len(t, seen, n)
		assert.InDelta(t, best, assignmentCost(cost, perm), 1e-9)
	}
	assert.Nil(t, Hungarian(nil))
}

func TestAssignNoiseRecoversPermutation(t *testing.T) {
	data := tensor.FromRows([][]float64{{0, 0}, {10, 0}, {0, 10}, {10, 10}})
	noise := tensor.FromRows([][]float64{{10, 10.1}, {0.1, 0}, {0, 9.9}, {9.9, 0}})
	out, err := AssignNoise(data, noise)
	require.NoError(t, err)
	assert.Equal(t, []float64{0.1, 0, 9.9, 0, 0, 9.9, 10, 10.1}, out.Data)

	_, err = AssignNoise(data, tensor.Zeros(3, 2))
	assert.ErrorIs(t, err, ErrShape)
}
