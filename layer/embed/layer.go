// Package embed implements the fixed sinusoidal time embedding
package embed

import "fmt"
import "math"

import "github.com/neurlang/rectifiedflow/layer"
import "github.com/neurlang/rectifiedflow/tensor"

// Time maps a scalar time column to [t, sin(w_k t), cos(w_k t)] with w_k = π·2^k.
type Time struct {
	freqs []float64
}

type cache struct {
	t *tensor.Tensor
}

// New creates an embedding with n frequencies. n may be 0, passing t through.
func New(n int) (*Time, error) {
	if n < 0 || n > 16 {
		return nil, fmt.Errorf("embed: frequency count %d out of range [0,16]", n)
	}
	e := &Time{freqs: make([]float64, n)}
	for k := range e.freqs {
		e.freqs[k] = math.Pi * math.Exp2(float64(k))
	}
	return e, nil
}

// MustNew is New that panics on error.
func MustNew(n int) *Time {
	e, err := New(n)
	if err != nil {
		panic(err.Error())
	}
	return e
}

// Width is the embedding size.
func (e *Time) Width() int {
	return 1 + 2*len(e.freqs)
}

// Forward embeds a n x 1 time column.
func (e *Time) Forward(t *tensor.Tensor) (*tensor.Tensor, layer.Cache) {
	if t.Cols != 1 {
		panic(fmt.Sprintf("embed: time input must have one column, got %d", t.Cols))
	}
	o := tensor.Zeros(t.Rows, e.Width())
	for i := 0; i < t.Rows; i++ {
		v := t.Data[i]
		row := o.Row(i)
		row[0] = v
		for k, w := range e.freqs {
			row[1+2*k] = math.Sin(w * v)
			row[2+2*k] = math.Cos(w * v)
		}
	}
	return o, cache{t: t}
}

// slope is d embed / dt for row i.
func (e *Time) slope(v float64, dst []float64) {
	dst[0] = 1
	for k, w := range e.freqs {
		dst[1+2*k] = w * math.Cos(w*v)
		dst[2+2*k] = -w * math.Sin(w*v)
	}
}

// Backward reduces the embedding gradient to a time gradient.
func (e *Time) Backward(c layer.Cache, dy *tensor.Tensor, _ [][]float64) *tensor.Tensor {
	t := c.(cache).t
	o := tensor.Zeros(t.Rows, 1)
	s := make([]float64, e.Width())
	for i := 0; i < t.Rows; i++ {
		e.slope(t.Data[i], s)
		var acc float64
		for j, g := range dy.Row(i) {
			acc += g * s[j]
		}
		o.Data[i] = acc
	}
	return o
}

// JVP scales the embedding slope by the time tangent.
func (e *Time) JVP(c layer.Cache, dt *tensor.Tensor) *tensor.Tensor {
	t := c.(cache).t
	o := tensor.Zeros(t.Rows, e.Width())
	for i := 0; i < t.Rows; i++ {
		row := o.Row(i)
		e.slope(t.Data[i], row)
		for j := range row {
			row[j] *= dt.Data[i]
		}
	}
	return o
}

// Params is empty, the embedding is fixed.
func (e *Time) Params() []*layer.Param { return nil }

// Name describes the layer.
func (e *Time) Name() string {
	return fmt.Sprintf("TimeEmbed(%d)", len(e.freqs))
}
