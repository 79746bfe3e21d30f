package datasets

import "fmt"
import "math"

import "github.com/neurlang/rectifiedflow/tensor"

// OneHot encodes class labels as rows of width classes.
func OneHot(labels []int, classes int) *tensor.Tensor {
	o := tensor.Zeros(len(labels), classes)
	for i, l := range labels {
		o.Row(i)[l] = 1
	}
	return o
}

// Moons draws the two interleaving half circles, labelled by moon.
func Moons(n int, noise float64, seed uint64) *TensorDataset {
	rng := tensor.NewRand(seed)
	data := tensor.Zeros(n, 2)
	labels := make([]int, n)
	outer := n - n/2
	for i := 0; i < n; i++ {
		row := data.Row(i)
		if i < outer {
			a := math.Pi * float64(i) / math.Max(float64(outer-1), 1)
			row[0], row[1] = math.Cos(a), math.Sin(a)
		} else {
			inner := n - outer
			a := math.Pi * float64(i-outer) / math.Max(float64(inner-1), 1)
			row[0], row[1] = 1-math.Cos(a), 0.5-math.Sin(a)
			labels[i] = 1
		}
		row[0] += noise * rng.NormFloat64()
		row[1] += noise * rng.NormFloat64()
	}
	return MustNewTensorDataset(data, OneHot(labels, 2))
}

// Checkerboard draws points uniformly from the dark squares of a 4x4 board
// spanning [-4, 4]².
func Checkerboard(n int, seed uint64) *TensorDataset {
	rng := tensor.NewRand(seed)
	data := tensor.Zeros(n, 2)
	for i := 0; i < n; i++ {
		x1 := rng.Float64()*4 - 2
		x2 := rng.Float64() - float64(rng.IntN(2))*2
		parity := math.Mod(math.Floor(x1), 2)
		if parity < 0 {
			parity += 2
		}
		row := data.Row(i)
		row[0], row[1] = 2*x1, 2*(x2+parity)
	}
	return MustNewTensorDataset(data, nil)
}

// Gaussians draws a mixture of k isotropic gaussians with standard deviation
// std centered on a circle of the given radius, labelled by component.
func Gaussians(n, k int, radius, std float64, seed uint64) *TensorDataset {
	if k <= 0 {
		panic(fmt.Sprintf("datasets: gaussian mixture needs components, got %d", k))
	}
	rng := tensor.NewRand(seed)
	data := tensor.Zeros(n, 2)
	labels := make([]int, n)
	for i := 0; i < n; i++ {
		c := rng.IntN(k)
		a := 2 * math.Pi * float64(c) / float64(k)
		row := data.Row(i)
		row[0] = radius*math.Cos(a) + std*rng.NormFloat64()
		row[1] = radius*math.Sin(a) + std*rng.NormFloat64()
		labels[i] = c
	}
	return MustNewTensorDataset(data, OneHot(labels, k))
}

// Spiral draws two interleaved spiral arms, labelled by arm.
func Spiral(n int, noise float64, seed uint64) *TensorDataset {
	rng := tensor.NewRand(seed)
	data := tensor.Zeros(n, 2)
	labels := make([]int, n)
	for i := 0; i < n; i++ {
		r := math.Sqrt(rng.Float64()) * 3 * math.Pi
		x, y := -math.Cos(r)*r, math.Sin(r)*r
		if i%2 == 1 {
			x, y = -x, -y
			labels[i] = 1
		}
		row := data.Row(i)
		row[0] = x/3 + noise*rng.NormFloat64()
		row[1] = y/3 + noise*rng.NormFloat64()
	}
	return MustNewTensorDataset(data, OneHot(labels, 2))
}

// ByName builds a synthetic dataset from a configuration name.
func ByName(name string, n int, seed uint64) (*TensorDataset, error) {
	switch name {
	case "moons":
		return Moons(n, 0.05, seed), nil
	case "checkerboard":
		return Checkerboard(n, seed), nil
	case "gaussians", "8gaussians":
		return Gaussians(n, 8, 4, 0.25, seed), nil
	case "spiral", "spirals":
		return Spiral(n, 0.1, seed), nil
	case "shapes":
		return Shapes(n, ShapesSize, seed), nil
	}
	return nil, fmt.Errorf("datasets: unknown synthetic dataset %q", name)
}
