package datasets

import "fmt"
import "math"

import "github.com/neurlang/rectifiedflow/tensor"

// ShapesSize is the image side used when shapes are built by name.
const ShapesSize = 16

// ShapeClasses lists the shapes drawn by Shapes, in label order.
var ShapeClasses = []string{"square", "disc", "cross"}

// inside reports whether the offset (dx, dy) from the center lies in a shape
// of class c and radius r.
func inside(c int, dx, dy, r float64) bool {
	ax, ay := math.Abs(dx), math.Abs(dy)
	switch c {
	case 0:
		return ax <= r && ay <= r
	case 1:
		return dx*dx+dy*dy <= r*r
	default:
		return (ax <= r/3 && ay <= r) || (ay <= r/3 && ax <= r)
	}
}

// Shapes draws n RGB images of size x size pixels in [0, 1], each holding one
// colored square, disc or cross on a black background, labelled by shape.
// Rows are channel major [3, size, size].
func Shapes(n, size int, seed uint64) *TensorDataset {
	if size < 4 {
		panic(fmt.Sprintf("datasets: shapes need at least 4 pixels, got %d", size))
	}
	rng := tensor.NewRand(seed)
	pixels := size * size
	data := tensor.Zeros(n, 3*pixels)
	labels := make([]int, n)
	for i := 0; i < n; i++ {
		c := rng.IntN(len(ShapeClasses))
		labels[i] = c
		r := float64(size) * (1 + rng.Float64()) / 6
		span := float64(size-1) - 2*r
		cx, cy := r+rng.Float64()*span, r+rng.Float64()*span
		var color [3]float64
		for k := range color {
			color[k] = 0.3 + 0.7*rng.Float64()
		}
		row := data.Row(i)
		for y := 0; y < size; y++ {
			for x := 0; x < size; x++ {
				if !inside(c, float64(x)-cx, float64(y)-cy, r) {
					continue
				}
				for k, v := range color {
					row[k*pixels+y*size+x] = v
				}
			}
		}
	}
	return MustNewTensorDataset(data, OneHot(labels, len(ShapeClasses)), 3, size, size)
}
