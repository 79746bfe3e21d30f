// Package silu implements the sigmoid linear unit activation
package silu

import "math"

import "github.com/neurlang/rectifiedflow/layer"
import "github.com/neurlang/rectifiedflow/tensor"

// SiLU computes x·σ(x) elementwise.
type SiLU struct{}

type cache struct {
	x *tensor.Tensor
}

// New creates the activation.
func New() *SiLU {
	return &SiLU{}
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// derivative of x·σ(x)
func grad(x float64) float64 {
	s := sigmoid(x)
	return s * (1 + x*(1-s))
}

// Forward applies the activation.
func (SiLU) Forward(x *tensor.Tensor) (*tensor.Tensor, layer.Cache) {
	y := x.Clone().Apply(func(v float64) float64 {
		return v * sigmoid(v)
	})
	return y, cache{x: x}
}

// Backward multiplies dy by the activation slope.
func (SiLU) Backward(c layer.Cache, dy *tensor.Tensor, _ [][]float64) *tensor.Tensor {
	return scaleBySlope(c.(cache).x, dy)
}

// JVP multiplies dx by the activation slope.
func (SiLU) JVP(c layer.Cache, dx *tensor.Tensor) *tensor.Tensor {
	return scaleBySlope(c.(cache).x, dx)
}

func scaleBySlope(x, d *tensor.Tensor) *tensor.Tensor {
	o := d.Clone()
	for i, v := range x.Data {
		o.Data[i] *= grad(v)
	}
	return o
}

// Params is empty.
func (SiLU) Params() []*layer.Param { return nil }

// Name describes the layer.
func (SiLU) Name() string { return "SiLU" }
