// Package layer defines the differentiable layer interface and trainable parameters
package layer

import "github.com/neurlang/rectifiedflow/tensor"

// Layer is one differentiable stage of a network.
type Layer interface {

	// Forward maps a batch and returns the activations kept for Backward and JVP.
	Forward(x *tensor.Tensor) (y *tensor.Tensor, c Cache)

	// Backward propagates dy to the layer input. Parameter gradients are
	// accumulated into grads, which is aligned with Params().
	Backward(c Cache, dy *tensor.Tensor, grads [][]float64) (dx *tensor.Tensor)

	// JVP pushes the input tangent dx forward, returning the output tangent.
	JVP(c Cache, dx *tensor.Tensor) (dy *tensor.Tensor)

	// Params lists trainable parameters, possibly none.
	Params() []*Param

	// Name describes the layer.
	Name() string
}

// Param is a named trainable parameter.
type Param struct {
	Name  string
	Shape []int
	Value []float64
}

// NewParam allocates a zero parameter of the given shape.
func NewParam(name string, shape ...int) *Param {
	return &Param{
		Name:  name,
		Shape: shape,
		Value: make([]float64, tensor.Numel(shape)),
	}
}

// Len is the number of scalars in the parameter.
func (p *Param) Len() int {
	return len(p.Value)
}

// CountParams sums the parameter sizes of layers.
func CountParams(layers ...Layer) (n int) {
	for _, l := range layers {
		for _, p := range l.Params() {
			n += p.Len()
		}
	}
	return
}
