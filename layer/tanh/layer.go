// Package tanh implements a scaled hyperbolic tangent output head
package tanh

import "fmt"
import "math"

import "github.com/neurlang/rectifiedflow/layer"
import "github.com/neurlang/rectifiedflow/tensor"

// Tanh computes scale·tanh(x), bounding outputs to (-scale, scale).
type Tanh struct {
	scale float64
}

type cache struct {
	y *tensor.Tensor
}

// New creates the activation. A non-positive scale means 1.
func New(scale float64) *Tanh {
	if scale <= 0 {
		scale = 1
	}
	return &Tanh{scale: scale}
}

// Forward applies the activation.
func (t *Tanh) Forward(x *tensor.Tensor) (*tensor.Tensor, layer.Cache) {
	th := x.Clone().Apply(math.Tanh)
	y := th.Clone().Scale(t.scale)
	return y, cache{y: th}
}

// Backward applies scale·(1-tanh²).
func (t *Tanh) Backward(c layer.Cache, dy *tensor.Tensor, _ [][]float64) *tensor.Tensor {
	return t.slope(c.(cache).y, dy)
}

// JVP applies scale·(1-tanh²).
func (t *Tanh) JVP(c layer.Cache, dx *tensor.Tensor) *tensor.Tensor {
	return t.slope(c.(cache).y, dx)
}

func (t *Tanh) slope(th, d *tensor.Tensor) *tensor.Tensor {
	o := d.Clone()
	for i, v := range th.Data {
		o.Data[i] *= t.scale * (1 - v*v)
	}
	return o
}

// Params is empty.
func (t *Tanh) Params() []*layer.Param { return nil }

// Name describes the layer.
func (t *Tanh) Name() string { return fmt.Sprintf("Tanh(x%g)", t.scale) }
