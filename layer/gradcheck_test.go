package layer_test

import "testing"

import "github.com/stretchr/testify/assert"

import "github.com/neurlang/rectifiedflow/layer"
import "github.com/neurlang/rectifiedflow/layer/avgpool2d"
import "github.com/neurlang/rectifiedflow/layer/conv2d"
import "github.com/neurlang/rectifiedflow/layer/embed"
import "github.com/neurlang/rectifiedflow/layer/linear"
import "github.com/neurlang/rectifiedflow/layer/rmsnorm"
import "github.com/neurlang/rectifiedflow/layer/silu"
import "github.com/neurlang/rectifiedflow/layer/tanh"
import "github.com/neurlang/rectifiedflow/layer/upsample2d"
import "github.com/neurlang/rectifiedflow/tensor"

const h = 1e-5
const tol = 1e-5

func objective(l layer.Layer, x, r *tensor.Tensor) float64 {
	y, _ := l.Forward(x)
	var s float64
	for i, v := range y.Data {
		s += v * r.Data[i]
	}
	return s
}

func checkLayer(t *testing.T, l layer.Layer, x *tensor.Tensor, seed uint64) {
	rng := tensor.NewRand(seed)
	y, c := l.Forward(x)
	r := tensor.Randn(rng, y.Rows, y.Cols, 1)

	var grads [][]float64
	for _, p := range l.Params() {
		grads = append(grads, make([]float64, p.Len()))
	}
	dx := l.Backward(c, r, grads)

	for k := range x.Data {
		orig := x.Data[k]
		x.Data[k] = orig + h
		up := objective(l, x, r)
		x.Data[k] = orig - h
		down := objective(l, x, r)
		x.Data[k] = orig
		assert.InDelta(t, (up-down)/(2*h), dx.Data[k], tol, "%s input grad %d", l.Name(), k)
	}

	for pi, p := range l.Params() {
		for k := range p.Value {
			orig := p.Value[k]
			p.Value[k] = orig + h
			up := objective(l, x, r)
			p.Value[k] = orig - h
			down := objective(l, x, r)
			p.Value[k] = orig
			assert.InDelta(t, (up-down)/(2*h), grads[pi][k], tol, "%s %s grad %d", l.Name(), p.Name, k)
		}
	}

	tangent := tensor.Randn(rng, x.Rows, x.Cols, 1)
	jvp := l.JVP(c, tangent)
	plus := x.Clone().AddScaled(h, tangent)
	minus := x.Clone().AddScaled(-h, tangent)
	yp, _ := l.Forward(plus)
	ym, _ := l.Forward(minus)
	for k := range jvp.Data {
		assert.InDelta(t, (yp.Data[k]-ym.Data[k])/(2*h), jvp.Data[k], tol, "%s jvp %d", l.Name(), k)
	}
}

func TestLayerGradients(t *testing.T) {
	rng := tensor.NewRand(1)
	for _, tc := range []struct {
		l layer.Layer
		x *tensor.Tensor
	}{
		{linear.MustNew(4, 3, true, rng), tensor.Randn(rng, 5, 4, 1)},
		{linear.MustNew(3, 2, false, rng), tensor.Randn(rng, 2, 3, 1)},
		{silu.New(), tensor.Randn(rng, 3, 4, 2)},
		{tanh.New(5), tensor.Randn(rng, 3, 4, 0.5)},
		{rmsnorm.MustNew(6), tensor.Randn(rng, 4, 6, 1)},
		{embed.MustNew(3), tensor.Rand(rng, 4, 1, 0, 1)},
		{conv2d.MustNew(2, 3, 4, 3, 3, rng), tensor.Randn(rng, 2, 2*4*3, 1)},
		{conv2d.MustNew(1, 2, 2, 5, 1, rng), tensor.Randn(rng, 3, 10, 1)},
		{conv2d.MustNew(1, 1, 5, 5, 5, rng), tensor.Randn(rng, 1, 25, 1)},
		{avgpool2d.MustNew(2, 4, 2), tensor.Randn(rng, 3, 16, 1)},
		{upsample2d.MustNew(2, 2, 3), tensor.Randn(rng, 3, 12, 1)},
	} {
		checkLayer(t, tc.l, tc.x, 42)
	}
}

func TestCountParams(t *testing.T) {
	l := linear.MustNew(4, 3, true, nil)
	n := rmsnorm.MustNew(3)
	assert.Equal(t, 4*3+3+3, layer.CountParams(l, silu.New(), n))
}

func TestLinearZeroInit(t *testing.T) {
	l := linear.MustNew(2, 2, true, tensor.NewRand(3)).ZeroInit()
	y, _ := l.Forward(tensor.FromRows([][]float64{{1, 2}}))
	assert.Equal(t, []float64{0, 0}, y.Data)
}

func TestEmbedRange(t *testing.T) {
	_, err := embed.New(17)
	assert.Error(t, err)
	e := embed.MustNew(2)
	assert.Equal(t, 5, e.Width())
}

func TestConv2DSamePadding(t *testing.T) {
	l := conv2d.MustNew(1, 1, 3, 3, 3, nil)
	for i := range l.Params()[0].Value {
		l.Params()[0].Value[i] = 1
	}
	l.Params()[1].Value[0] = 0.5
	y, _ := l.Forward(tensor.New(1, 9, []float64{1, 1, 1, 1, 1, 1, 1, 1, 1}))
	assert.Equal(t, []float64{4.5, 6.5, 4.5, 6.5, 9.5, 6.5, 4.5, 6.5, 4.5}, y.Data)

	_, err := conv2d.New(1, 1, 3, 3, 2, nil)
	assert.Error(t, err)
}

func TestPoolingShapes(t *testing.T) {
	x := tensor.New(1, 8, []float64{1, 2, 3, 4, 5, 6, 7, 8})
	y, _ := avgpool2d.MustNew(2, 2, 2).Forward(x)
	assert.Equal(t, []float64{2.5, 6.5}, y.Data)

	z, _ := upsample2d.MustNew(1, 1, 2).Forward(tensor.New(1, 2, []float64{1, 2}))
	assert.Equal(t, []float64{1, 1, 2, 2, 1, 1, 2, 2}, z.Data)

	_, err := avgpool2d.New(1, 3, 2)
	assert.Error(t, err)
}
