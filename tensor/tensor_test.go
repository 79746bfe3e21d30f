package tensor

import "testing"

import "github.com/stretchr/testify/assert"
import "github.com/stretchr/testify/require"

func TestConcatSplit(t *testing.T) {
	a := FromRows([][]float64{{1, 2}, {3, 4}})
	b := FromRows([][]float64{{5}, {6}})
	c := ConcatCols(a, nil, b)
	require.Equal(t, 2, c.Rows)
	require.Equal(t, 3, c.Cols)
	assert.Equal(t, []float64{1, 2, 5, 3, 4, 6}, c.Data)

	parts := c.SplitCols(2, 1)
	assert.Equal(t, a.Data, parts[0].Data)
	assert.Equal(t, b.Data, parts[1].Data)
}

func TestConcatRowMismatchPanics(t *testing.T) {
	assert.Panics(t, func() {
		ConcatCols(Zeros(2, 1), Zeros(3, 1))
	})
}

func TestLerp(t *testing.T) {
	a := FromRows([][]float64{{0, 0}, {2, 2}})
	b := FromRows([][]float64{{10, 20}, {4, 4}})
	o := Lerp(a, b, []float64{0.5, 0})
	assert.Equal(t, []float64{5, 10, 2, 2}, o.Data)
}

func TestMatMulT(t *testing.T) {
	x := FromRows([][]float64{{1, 2, 3}})
	w := FromRows([][]float64{{1, 0, 0}, {0, 1, 1}})
	o := MatMulT(x, w)
	assert.Equal(t, []float64{1, 5}, o.Data)

	back := MatMul(o, w)
	assert.Equal(t, []float64{1, 5, 5}, back.Data)
}

func TestMatTMulAdd(t *testing.T) {
	a := FromRows([][]float64{{1, 2}, {3, 4}})
	b := FromRows([][]float64{{1}, {1}})
	dst := []float64{1, 1}
	MatTMulAdd(dst, a, b)
	assert.Equal(t, []float64{5, 7}, dst)
}

func TestRowSquaredError(t *testing.T) {
	a := FromRows([][]float64{{1, 1}, {0, 0}})
	b := FromRows([][]float64{{1, 3}, {0, 0}})
	assert.Equal(t, []float64{2, 0}, RowSquaredError(a, b))
}

func TestRandnDeterministic(t *testing.T) {
	a := Randn(NewRand(7), 4, 3, 1)
	b := Randn(NewRand(7), 4, 3, 1)
	assert.Equal(t, a.Data, b.Data)
	assert.True(t, a.IsFinite())
}
