// Package conv2d implements a same padded 2D convolution over channel major images
package conv2d

import "fmt"
import "math"
import rand "math/rand/v2"

import "github.com/neurlang/rectifiedflow/layer"
import "github.com/neurlang/rectifiedflow/tensor"

// Conv2D convolves rows holding [in, height, width] images into
// [out, height, width] images with a square odd kernel and zero padding.
type Conv2D struct {
	in, out, height, width, kernel int
	weight, bias                   *layer.Param
}

type cache struct {
	x *tensor.Tensor
}

// MustNew creates a new Conv2D layer with channels, size and kernel
func MustNew(in, out, height, width, kernel int, rng *rand.Rand) *Conv2D {
	o, err := New(in, out, height, width, kernel, rng)
	if err != nil {
		panic(err.Error())
	}
	return o
}

// New creates a new Conv2D layer with channels, size and kernel. Weights and
// bias are drawn uniformly from ±1/sqrt(in·kernel²).
func New(in, out, height, width, kernel int, rng *rand.Rand) (o *Conv2D, err error) {
	if in <= 0 || out <= 0 {
		return nil, fmt.Errorf("New Conv2D: invalid channels %d -> %d", in, out)
	}
	if height <= 0 || width <= 0 {
		return nil, fmt.Errorf("New Conv2D: invalid size %dx%d", height, width)
	}
	if kernel <= 0 || kernel%2 == 0 {
		return nil, fmt.Errorf("New Conv2D: kernel %d is not a positive odd number", kernel)
	}
	o = new(Conv2D)
	o.in, o.out = in, out
	o.height, o.width = height, width
	o.kernel = kernel
	o.weight = layer.NewParam("weight", out, in, kernel, kernel)
	o.bias = layer.NewParam("bias", out)
	if rng != nil {
		bound := 1 / math.Sqrt(float64(in*kernel*kernel))
		for _, p := range o.Params() {
			for i := range p.Value {
				p.Value[i] = (2*rng.Float64() - 1) * bound
			}
		}
	}
	return
}

// ZeroInit clears weights and bias.
func (l *Conv2D) ZeroInit() *Conv2D {
	for _, p := range l.Params() {
		for i := range p.Value {
			p.Value[i] = 0
		}
	}
	return l
}

// In is the number of input channels.
func (l *Conv2D) In() int { return l.in }

// Out is the number of output channels.
func (l *Conv2D) Out() int { return l.out }

// taps calls fn once per kernel tap with the flat tap index and the offset of
// the input pixel read by output pixel (i, j), plus the output row range
// [i0, i1) and column range [j0, j1) for which that pixel lies in the image.
func (l *Conv2D) taps(fn func(tap, di, dj, i0, i1, j0, j1 int)) {
	pad := l.kernel / 2
	for ky := 0; ky < l.kernel; ky++ {
		di := ky - pad
		for kx := 0; kx < l.kernel; kx++ {
			dj := kx - pad
			fn(ky*l.kernel+kx, di, dj, max(0, -di), min(l.height, l.height-di), max(0, -dj), min(l.width, l.width-dj))
		}
	}
}

// apply accumulates the bias free convolution of x into y.
func (l *Conv2D) apply(x, y []float64) {
	hw, kk := l.height*l.width, l.kernel*l.kernel
	w := l.width
	for o := 0; o < l.out; o++ {
		yo := y[o*hw : (o+1)*hw]
		for c := 0; c < l.in; c++ {
			xc := x[c*hw : (c+1)*hw]
			wk := l.weight.Value[(o*l.in+c)*kk : (o*l.in+c+1)*kk]
			l.taps(func(tap, di, dj, i0, i1, j0, j1 int) {
				v := wk[tap]
				if v == 0 {
					return
				}
				for i := i0; i < i1; i++ {
					off := (i+di)*w + dj
					dst := yo[i*w:]
					for j := j0; j < j1; j++ {
						dst[j] += v * xc[off+j]
					}
				}
			})
		}
	}
}

func (l *Conv2D) check(x *tensor.Tensor) {
	if want := l.in * l.height * l.width; x.Cols != want {
		panic(fmt.Sprintf("conv2d: input width %d, want %d", x.Cols, want))
	}
}

// Forward convolves every row and adds the per channel bias.
func (l *Conv2D) Forward(x *tensor.Tensor) (*tensor.Tensor, layer.Cache) {
	l.check(x)
	hw := l.height * l.width
	y := tensor.Zeros(x.Rows, l.out*hw)
	for n := 0; n < x.Rows; n++ {
		row := y.Row(n)
		for o, b := range l.bias.Value {
			for k := o * hw; k < (o+1)*hw; k++ {
				row[k] = b
			}
		}
		l.apply(x.Row(n), row)
	}
	return y, cache{x: x}
}

// Backward accumulates kernel and bias gradients and returns the input
// gradient, the convolution with the flipped kernel.
func (l *Conv2D) Backward(c layer.Cache, dy *tensor.Tensor, grads [][]float64) *tensor.Tensor {
	x := c.(cache).x
	hw, kk := l.height*l.width, l.kernel*l.kernel
	w := l.width
	dx := tensor.Zeros(x.Rows, x.Cols)
	for n := 0; n < x.Rows; n++ {
		xr, dxr, dyr := x.Row(n), dx.Row(n), dy.Row(n)
		for o := 0; o < l.out; o++ {
			dyo := dyr[o*hw : (o+1)*hw]
			if grads != nil {
				for _, v := range dyo {
					grads[1][o] += v
				}
			}
			for ci := 0; ci < l.in; ci++ {
				base := (o*l.in + ci) * kk
				xc, dxc := xr[ci*hw:(ci+1)*hw], dxr[ci*hw:(ci+1)*hw]
				l.taps(func(tap, di, dj, i0, i1, j0, j1 int) {
					v := l.weight.Value[base+tap]
					var acc float64
					for i := i0; i < i1; i++ {
						off := (i+di)*w + dj
						g := dyo[i*w:]
						for j := j0; j < j1; j++ {
							acc += g[j] * xc[off+j]
							dxc[off+j] += v * g[j]
						}
					}
					if grads != nil {
						grads[0][base+tap] += acc
					}
				})
			}
		}
	}
	return dx
}

// JVP convolves the tangent without the bias.
func (l *Conv2D) JVP(_ layer.Cache, dx *tensor.Tensor) *tensor.Tensor {
	l.check(dx)
	dy := tensor.Zeros(dx.Rows, l.out*l.height*l.width)
	for n := 0; n < dx.Rows; n++ {
		l.apply(dx.Row(n), dy.Row(n))
	}
	return dy
}

// Params returns kernel and bias.
func (l *Conv2D) Params() []*layer.Param {
	return []*layer.Param{l.weight, l.bias}
}

// Name describes the layer.
func (l *Conv2D) Name() string {
	return fmt.Sprintf("Conv2D(%d->%d, %dx%d, k=%d)", l.in, l.out, l.height, l.width, l.kernel)
}
