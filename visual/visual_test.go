package visual

import "image/color"
import "image/png"
import "os"
import "path/filepath"
import "testing"

import "github.com/stretchr/testify/assert"
import "github.com/stretchr/testify/require"

import "github.com/neurlang/rectifiedflow/tensor"

func TestGridLayout(t *testing.T) {
	samples := tensor.FromRows([][]float64{
		{1, 0, 0, 1},
		{0.5, 0.5, 0.5, 0.5},
		{0, 0, 0, 0},
	})
	img, err := Grid(samples, []int{1, 2, 2}, 2, 1)
	require.NoError(t, err)
	assert.Equal(t, 2*3+1, img.Bounds().Dx())
	assert.Equal(t, 2*3+1, img.Bounds().Dy())
	assert.Equal(t, color.RGBAModel.Convert(color.White), color.RGBAModel.Convert(img.At(1, 1)))
	assert.Equal(t, color.RGBAModel.Convert(color.Black), color.RGBAModel.Convert(img.At(2, 1)))
	assert.Equal(t, color.RGBA{R: 128, G: 128, B: 128, A: 255}, img.At(4, 1))

	big, err := Grid(samples, []int{2, 2}, 2, 3)
	require.NoError(t, err)
	assert.Equal(t, 21, big.Bounds().Dx())
	assert.Equal(t, img.At(1, 1), big.At(3, 3))
	assert.Equal(t, img.At(4, 1), big.At(14, 5))
}

func TestGridErrors(t *testing.T) {
	_, err := Grid(tensor.Zeros(1, 4), []int{1, 3, 3}, 1, 1)
	assert.Error(t, err)
	_, err = Grid(tensor.Zeros(1, 8), []int{2, 2, 2}, 1, 1)
	assert.Error(t, err)
	_, err = Grid(tensor.Zeros(0, 4), []int{1, 2, 2}, 1, 1)
	assert.Error(t, err)
}

func TestScatter(t *testing.T) {
	points := tensor.FromRows([][]float64{{0, 0}, {1, 1}})
	img, err := Scatter(points, 11, 1)
	require.NoError(t, err)
	dot := color.RGBA{R: 31, G: 119, B: 180, A: 255}
	assert.Equal(t, dot, img.At(5, 5))
	assert.Equal(t, dot, img.At(10, 0))
	assert.Equal(t, color.RGBA{R: 255, G: 255, B: 255, A: 255}, img.At(0, 10))

	_, err = Scatter(tensor.Zeros(2, 3), 10, 1)
	assert.Error(t, err)
}

func TestSaveFiles(t *testing.T) {
	dir := t.TempDir()
	grid := filepath.Join(dir, "grid.png")
	require.NoError(t, SaveGrid(grid, tensor.Full(4, 12, 0.25), []int{3, 2, 2}, 0, 2))
	scatter := filepath.Join(dir, "scatter.png")
	require.NoError(t, SaveScatter(scatter, tensor.FromRows([][]float64{{1, -2}, {3, 0.5}}), 64, 0))

	f, err := os.Open(grid)
	require.NoError(t, err)
	defer f.Close()
	cfg, err := png.DecodeConfig(f)
	require.NoError(t, err)
	assert.Equal(t, 2*(2*3+1), cfg.Width)
}
