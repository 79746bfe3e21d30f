// Package rmsnorm implements root mean square normalization with a learned gain
package rmsnorm

import "fmt"
import "math"

import "github.com/neurlang/rectifiedflow/layer"
import "github.com/neurlang/rectifiedflow/tensor"

const eps = 1e-6

// RMSNorm computes g ⊙ x / sqrt(mean(x²) + eps) per row.
type RMSNorm struct {
	dim  int
	gain *layer.Param
}

type cache struct {
	u   *tensor.Tensor // normalized input
	rms []float64
}

// New creates a normalization over dim features with unit gain.
func New(dim int) (*RMSNorm, error) {
	if dim <= 0 {
		return nil, fmt.Errorf("rmsnorm: invalid dim %d", dim)
	}
	n := &RMSNorm{dim: dim, gain: layer.NewParam("gain", dim)}
	for i := range n.gain.Value {
		n.gain.Value[i] = 1
	}
	return n, nil
}

// MustNew is New that panics on error.
func MustNew(dim int) *RMSNorm {
	n, err := New(dim)
	if err != nil {
		panic(err.Error())
	}
	return n
}

// Forward normalizes each row.
func (n *RMSNorm) Forward(x *tensor.Tensor) (*tensor.Tensor, layer.Cache) {
	if x.Cols != n.dim {
		panic(fmt.Sprintf("rmsnorm: input width %d, want %d", x.Cols, n.dim))
	}
	u := tensor.Zeros(x.Rows, x.Cols)
	y := tensor.Zeros(x.Rows, x.Cols)
	rms := make([]float64, x.Rows)
	for i := 0; i < x.Rows; i++ {
		xr := x.Row(i)
		var m float64
		for _, v := range xr {
			m += v * v
		}
		r := math.Sqrt(m/float64(n.dim) + eps)
		rms[i] = r
		ur, yr := u.Row(i), y.Row(i)
		for j, v := range xr {
			ur[j] = v / r
			yr[j] = ur[j] * n.gain.Value[j]
		}
	}
	return y, cache{u: u, rms: rms}
}

// project computes (d - u·mean(u⊙d)) / rms per row, the derivative of x/rms(x) applied to d.
func project(c cache, d *tensor.Tensor) *tensor.Tensor {
	o := tensor.Zeros(d.Rows, d.Cols)
	for i := 0; i < d.Rows; i++ {
		ur, dr, or := c.u.Row(i), d.Row(i), o.Row(i)
		var dot float64
		for j := range dr {
			dot += ur[j] * dr[j]
		}
		dot /= float64(len(dr))
		for j := range dr {
			or[j] = (dr[j] - ur[j]*dot) / c.rms[i]
		}
	}
	return o
}

// Backward accumulates the gain gradient and returns the input gradient.
func (n *RMSNorm) Backward(cc layer.Cache, dy *tensor.Tensor, grads [][]float64) *tensor.Tensor {
	c := cc.(cache)
	du := tensor.Zeros(dy.Rows, dy.Cols)
	for i := 0; i < dy.Rows; i++ {
		ur, dyr, dur := c.u.Row(i), dy.Row(i), du.Row(i)
		for j, g := range n.gain.Value {
			if grads != nil {
				grads[0][j] += dyr[j] * ur[j]
			}
			dur[j] = dyr[j] * g
		}
	}
	return project(c, du)
}

// JVP returns g ⊙ d(x/rms(x)).
func (n *RMSNorm) JVP(cc layer.Cache, dx *tensor.Tensor) *tensor.Tensor {
	o := project(cc.(cache), dx)
	for i := 0; i < o.Rows; i++ {
		or := o.Row(i)
		for j, g := range n.gain.Value {
			or[j] *= g
		}
	}
	return o
}

// Params returns the gain.
func (n *RMSNorm) Params() []*layer.Param {
	return []*layer.Param{n.gain}
}

// Name describes the layer.
func (n *RMSNorm) Name() string {
	return fmt.Sprintf("RMSNorm(%d)", n.dim)
}
