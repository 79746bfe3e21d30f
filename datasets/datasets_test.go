package datasets

import "math"
import "testing"

import "github.com/stretchr/testify/assert"
import "github.com/stretchr/testify/require"

import "github.com/neurlang/rectifiedflow/tensor"

func TestTensorDataset(t *testing.T) {
	data := tensor.FromRows([][]float64{{1, 2, 3, 4}, {5, 6, 7, 8}})
	_, err := NewTensorDataset(data, nil, 3)
	assert.Error(t, err)
	_, err = NewTensorDataset(data, tensor.Zeros(3, 1))
	assert.Error(t, err)

	d, err := NewTensorDataset(data, OneHot([]int{1, 0}, 2), 1, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 2}, d.Shape())
	assert.Equal(t, 2, CondDim(d))
	row := make([]float64, 4)
	d.At(1, row)
	assert.Equal(t, []float64{5, 6, 7, 8}, row)
	c := make([]float64, 2)
	d.Cond(0, c)
	assert.Equal(t, []float64{0, 1}, c)
}

func TestLoaderCyclesEpochs(t *testing.T) {
	data := tensor.Zeros(5, 1)
	for i := range data.Data {
		data.Data[i] = float64(i)
	}
	d := MustNewTensorDataset(data, nil)

	l, err := NewLoader(d, 2, false, false, 1)
	require.NoError(t, err)
	var sizes []int
	for i := 0; i < 4; i++ {
		b, cond := l.Next()
		assert.Nil(t, cond)
		sizes = append(sizes, b.Rows)
	}
	assert.Equal(t, []int{2, 2, 1, 2}, sizes)
	assert.Equal(t, 1, l.Epoch())

	l, err = NewLoader(d, 2, true, true, 1)
	require.NoError(t, err)
	seen := map[float64]int{}
	for i := 0; i < 4; i++ {
		b, _ := l.Next()
		assert.Equal(t, 2, b.Rows)
		for _, v := range b.Data {
			seen[v]++
		}
	}
	assert.Equal(t, 1, l.Epoch())
	assert.LessOrEqual(t, len(seen), 5)

	_, err = NewLoader(d, 6, false, true, 1)
	assert.Error(t, err)
	_, err = NewLoader(d, 0, false, false, 1)
	assert.Error(t, err)
}

func TestLoaderShuffleCoversEpoch(t *testing.T) {
	data := tensor.Zeros(8, 1)
	for i := range data.Data {
		data.Data[i] = float64(i)
	}
	l, err := NewLoader(MustNewTensorDataset(data, OneHot([]int{0, 1, 0, 1, 0, 1, 0, 1}, 2)), 4, true, false, 9)
	require.NoError(t, err)
	seen := map[float64]bool{}
	for i := 0; i < 2; i++ {
		b, cond := l.Next()
		require.NotNil(t, cond)
		for r := 0; r < b.Rows; r++ {
			seen[b.Data[r]] = true
			label := int(b.Data[r]) % 2
			assert.Equal(t, 1.0, cond.Row(r)[label])
		}
	}
	assert.Len(t, seen, 8)
}

func TestSyntheticDeterministic(t *testing.T) {
	for _, name := range []string{"moons", "checkerboard", "gaussians", "spiral"} {
		a, err := ByName(name, 64, 3)
		require.NoError(t, err)
		b, _ := ByName(name, 64, 3)
		assert.Equal(t, a.Data().Data, b.Data().Data, name)
		assert.Equal(t, 64, a.Len())
		assert.Equal(t, []int{2}, a.Shape())
	}
	_, err := ByName("swissroll", 1, 1)
	assert.Error(t, err)
}

func TestCheckerboardSquares(t *testing.T) {
	d := Checkerboard(500, 4)
	row := make([]float64, 2)
	for i := 0; i < d.Len(); i++ {
		d.At(i, row)
		assert.True(t, row[0] >= -4 && row[0] < 4)
		assert.True(t, row[1] >= -4 && row[1] < 4)
		cx := int(math.Floor(row[0]/2)) + 2
		cy := int(math.Floor(row[1]/2)) + 2
		assert.Equal(t, 0, (cx+cy)%2, "point %v", row)
	}
}

func TestGaussiansMoments(t *testing.T) {
	d := Gaussians(4000, 8, 4, 0.1, 5)
	mean, std := Moments(d)
	assert.InDelta(t, 0, mean[0], 0.25)
	assert.InDelta(t, 0, mean[1], 0.25)
	// points lie near a circle of radius 4, so each coordinate has variance near 8
	assert.InDelta(t, math.Sqrt(8), std[0], 0.2)
	assert.Equal(t, 8, CondDim(d))
}

func TestMoonsLabels(t *testing.T) {
	d := Moons(10, 0, 1)
	row, c := make([]float64, 2), make([]float64, 2)
	d.At(0, row)
	d.Cond(0, c)
	assert.InDeltaSlice(t, []float64{1, 0}, row, 1e-12)
	assert.Equal(t, []float64{1, 0}, c)
	d.At(9, row)
	d.Cond(9, c)
	assert.InDeltaSlice(t, []float64{2, 0.5}, row, 1e-12)
	assert.Equal(t, []float64{0, 1}, c)
}

func TestShapesImages(t *testing.T) {
	d, err := ByName("shapes", 30, 4)
	require.NoError(t, err)
	assert.Equal(t, []int{3, ShapesSize, ShapesSize}, d.Shape())
	assert.Equal(t, len(ShapeClasses), CondDim(d))

	again := Shapes(30, ShapesSize, 4)
	assert.Equal(t, d.Data().Data, again.Data().Data)

	pixels := ShapesSize * ShapesSize
	row := make([]float64, 3*pixels)
	for i := 0; i < d.Len(); i++ {
		d.At(i, row)
		lit := 0
		for p := 0; p < pixels; p++ {
			on := row[p] > 0
			for k := 1; k < 3; k++ {
				assert.Equal(t, on, row[k*pixels+p] > 0, "image %d pixel %d", i, p)
			}
			if on {
				lit++
			}
		}
		assert.Greater(t, lit, 0, "image %d", i)
		for _, v := range row {
			assert.True(t, v >= 0 && v <= 1)
		}
	}
	assert.Panics(t, func() { Shapes(1, 2, 1) })
}

func TestShapeMasks(t *testing.T) {
	assert.True(t, inside(0, 2, 2, 2))
	assert.False(t, inside(1, 2, 2, 2))
	assert.True(t, inside(2, 0, 2, 3))
	assert.False(t, inside(2, 2, 2, 3))
}
