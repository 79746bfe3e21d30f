// Package avgpool2d implements 2x2 average pooling over channel major images
package avgpool2d

import "fmt"

import "github.com/neurlang/rectifiedflow/layer"
import "github.com/neurlang/rectifiedflow/tensor"

// AvgPool2D halves both sides of [channels, height, width] images by
// averaging 2x2 blocks.
type AvgPool2D struct {
	channels, height, width int
}

// New creates a new AvgPool2D layer for images of the given size
func New(channels, height, width int) (o *AvgPool2D, err error) {
	if channels <= 0 || height <= 0 || width <= 0 {
		return nil, fmt.Errorf("New AvgPool2D: invalid shape %dx%dx%d", channels, height, width)
	}
	if height%2 != 0 || width%2 != 0 {
		return nil, fmt.Errorf("New AvgPool2D: size %dx%d is not even", height, width)
	}
	return &AvgPool2D{channels: channels, height: height, width: width}, nil
}

// MustNew creates a new AvgPool2D layer for images of the given size
func MustNew(channels, height, width int) *AvgPool2D {
	o, err := New(channels, height, width)
	if err != nil {
		panic(err.Error())
	}
	return o
}

func (l *AvgPool2D) pool(x *tensor.Tensor) *tensor.Tensor {
	if want := l.channels * l.height * l.width; x.Cols != want {
		panic(fmt.Sprintf("avgpool2d: input width %d, want %d", x.Cols, want))
	}
	h, w := l.height/2, l.width/2
	y := tensor.Zeros(x.Rows, l.channels*h*w)
	for n := 0; n < x.Rows; n++ {
		xr, yr := x.Row(n), y.Row(n)
		for c := 0; c < l.channels; c++ {
			xc := xr[c*l.height*l.width:]
			yc := yr[c*h*w:]
			for i := 0; i < h; i++ {
				for j := 0; j < w; j++ {
					top, bottom := (2*i)*l.width+2*j, (2*i+1)*l.width+2*j
					yc[i*w+j] = (xc[top] + xc[top+1] + xc[bottom] + xc[bottom+1]) / 4
				}
			}
		}
	}
	return y
}

// Forward averages every 2x2 block.
func (l *AvgPool2D) Forward(x *tensor.Tensor) (*tensor.Tensor, layer.Cache) {
	return l.pool(x), nil
}

// Backward spreads a quarter of dy over each block.
func (l *AvgPool2D) Backward(_ layer.Cache, dy *tensor.Tensor, _ [][]float64) *tensor.Tensor {
	h, w := l.height/2, l.width/2
	dx := tensor.Zeros(dy.Rows, l.channels*l.height*l.width)
	for n := 0; n < dy.Rows; n++ {
		dyr, dxr := dy.Row(n), dx.Row(n)
		for c := 0; c < l.channels; c++ {
			dyc := dyr[c*h*w:]
			dxc := dxr[c*l.height*l.width:]
			for i := 0; i < l.height; i++ {
				for j := 0; j < l.width; j++ {
					dxc[i*l.width+j] = dyc[(i/2)*w+j/2] / 4
				}
			}
		}
	}
	return dx
}

// JVP pools the tangent.
func (l *AvgPool2D) JVP(_ layer.Cache, dx *tensor.Tensor) *tensor.Tensor {
	return l.pool(dx)
}

// Params is empty.
func (l *AvgPool2D) Params() []*layer.Param { return nil }

// Name describes the layer.
func (l *AvgPool2D) Name() string {
	return fmt.Sprintf("AvgPool2D(%dx%dx%d)", l.channels, l.height, l.width)
}
