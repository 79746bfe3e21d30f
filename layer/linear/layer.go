// Package linear implements a fully connected affine layer
package linear

import "fmt"
import "math"
import rand "math/rand/v2"

import "github.com/neurlang/rectifiedflow/layer"
import "github.com/neurlang/rectifiedflow/tensor"

// Linear computes y = x·Wᵀ + b.
type Linear struct {
	in, out int
	weight  *layer.Param
	bias    *layer.Param
}

type cache struct {
	x *tensor.Tensor
}

// MustNew creates a new linear layer mapping in features to out features
func MustNew(in, out int, bias bool, rng *rand.Rand) *Linear {
	o, err := New(in, out, bias, rng)
	if err != nil {
		panic(err.Error())
	}
	return o
}

// New creates a new linear layer mapping in features to out features. Weights
// and bias are drawn uniformly from ±1/sqrt(in).
func New(in, out int, bias bool, rng *rand.Rand) (o *Linear, err error) {
	if in <= 0 || out <= 0 {
		return nil, fmt.Errorf("linear: invalid shape %d -> %d", in, out)
	}
	o = new(Linear)
	o.in, o.out = in, out
	o.weight = layer.NewParam("weight", out, in)
	bound := 1 / math.Sqrt(float64(in))
	if rng != nil {
		for i := range o.weight.Value {
			o.weight.Value[i] = (2*rng.Float64() - 1) * bound
		}
	}
	if bias {
		o.bias = layer.NewParam("bias", out)
		if rng != nil {
			for i := range o.bias.Value {
				o.bias.Value[i] = (2*rng.Float64() - 1) * bound
			}
		}
	}
	return
}

// ZeroInit clears weights and bias, making the layer output zero.
func (l *Linear) ZeroInit() *Linear {
	for i := range l.weight.Value {
		l.weight.Value[i] = 0
	}
	if l.bias != nil {
		for i := range l.bias.Value {
			l.bias.Value[i] = 0
		}
	}
	return l
}

// In is the input width.
func (l *Linear) In() int { return l.in }

// Out is the output width.
func (l *Linear) Out() int { return l.out }

func (l *Linear) weights() *tensor.Tensor {
	return tensor.New(l.out, l.in, l.weight.Value)
}

// Forward computes the affine map.
func (l *Linear) Forward(x *tensor.Tensor) (*tensor.Tensor, layer.Cache) {
	if x.Cols != l.in {
		panic(fmt.Sprintf("linear: input width %d, want %d", x.Cols, l.in))
	}
	y := tensor.MatMulT(x, l.weights())
	if l.bias != nil {
		for i := 0; i < y.Rows; i++ {
			row := y.Row(i)
			for j, b := range l.bias.Value {
				row[j] += b
			}
		}
	}
	return y, cache{x: x}
}

// Backward accumulates dW = dyᵀ·x and db = Σdy, returning dx = dy·W.
func (l *Linear) Backward(c layer.Cache, dy *tensor.Tensor, grads [][]float64) *tensor.Tensor {
	x := c.(cache).x
	if grads != nil {
		tensor.MatTMulAdd(grads[0], dy, x)
		if l.bias != nil {
			db := grads[1]
			for i := 0; i < dy.Rows; i++ {
				for j, v := range dy.Row(i) {
					db[j] += v
				}
			}
		}
	}
	return tensor.MatMul(dy, l.weights())
}

// JVP is the linear part of the map applied to the tangent.
func (l *Linear) JVP(_ layer.Cache, dx *tensor.Tensor) *tensor.Tensor {
	return tensor.MatMulT(dx, l.weights())
}

// Params returns weight and, when enabled, bias.
func (l *Linear) Params() []*layer.Param {
	if l.bias == nil {
		return []*layer.Param{l.weight}
	}
	return []*layer.Param{l.weight, l.bias}
}

// Name describes the layer.
func (l *Linear) Name() string {
	return fmt.Sprintf("Linear(%d->%d)", l.in, l.out)
}
