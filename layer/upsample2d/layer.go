// Package upsample2d implements nearest neighbour 2x upsampling of channel major images
package upsample2d

import "fmt"

import "github.com/neurlang/rectifiedflow/layer"
import "github.com/neurlang/rectifiedflow/tensor"

// Upsample2D doubles both sides of [channels, height, width] images by
// repeating every pixel over a 2x2 block.
type Upsample2D struct {
	channels, height, width int
}

// New creates a new Upsample2D layer for input images of the given size
func New(channels, height, width int) (o *Upsample2D, err error) {
	if channels <= 0 || height <= 0 || width <= 0 {
		return nil, fmt.Errorf("New Upsample2D: invalid shape %dx%dx%d", channels, height, width)
	}
	return &Upsample2D{channels: channels, height: height, width: width}, nil
}

// MustNew creates a new Upsample2D layer for input images of the given size
func MustNew(channels, height, width int) *Upsample2D {
	o, err := New(channels, height, width)
	if err != nil {
		panic(err.Error())
	}
	return o
}

func (l *Upsample2D) repeat(x *tensor.Tensor) *tensor.Tensor {
	if want := l.channels * l.height * l.width; x.Cols != want {
		panic(fmt.Sprintf("upsample2d: input width %d, want %d", x.Cols, want))
	}
	h, w := 2*l.height, 2*l.width
	y := tensor.Zeros(x.Rows, l.channels*h*w)
	for n := 0; n < x.Rows; n++ {
		xr, yr := x.Row(n), y.Row(n)
		for c := 0; c < l.channels; c++ {
			xc := xr[c*l.height*l.width:]
			yc := yr[c*h*w:]
			for i := 0; i < h; i++ {
				for j := 0; j < w; j++ {
					yc[i*w+j] = xc[(i/2)*l.width+j/2]
				}
			}
		}
	}
	return y
}

// Forward repeats every pixel.
func (l *Upsample2D) Forward(x *tensor.Tensor) (*tensor.Tensor, layer.Cache) {
	return l.repeat(x), nil
}

// Backward sums dy over each 2x2 block.
func (l *Upsample2D) Backward(_ layer.Cache, dy *tensor.Tensor, _ [][]float64) *tensor.Tensor {
	h, w := 2*l.height, 2*l.width
	dx := tensor.Zeros(dy.Rows, l.channels*l.height*l.width)
	for n := 0; n < dy.Rows; n++ {
		dyr, dxr := dy.Row(n), dx.Row(n)
		for c := 0; c < l.channels; c++ {
			dyc := dyr[c*h*w:]
			dxc := dxr[c*l.height*l.width:]
			for i := 0; i < h; i++ {
				for j := 0; j < w; j++ {
					dxc[(i/2)*l.width+j/2] += dyc[i*w+j]
				}
			}
		}
	}
	return dx
}

// JVP repeats the tangent.
func (l *Upsample2D) JVP(_ layer.Cache, dx *tensor.Tensor) *tensor.Tensor {
	return l.repeat(dx)
}

// Params is empty.
func (l *Upsample2D) Params() []*layer.Param { return nil }

// Name describes the layer.
func (l *Upsample2D) Name() string {
	return fmt.Sprintf("Upsample2D(%dx%dx%d)", l.channels, l.height, l.width)
}
