package unet

import "testing"

import "github.com/stretchr/testify/assert"
import "github.com/stretchr/testify/require"

import "github.com/neurlang/rectifiedflow/tensor"

func testConfig() Config {
	return Config{
		Channels:  2,
		Height:    4,
		Width:     4,
		DimCond:   2,
		Base:      2,
		TimeFreqs: 1,
		Times:     2,
		Seed:      3,
	}
}

func dot(a, b []float64) (s float64) {
	for i := range a {
		s += a[i] * b[i]
	}
	return
}

func infer(u *UNet, x, cond *tensor.Tensor, times ...[]float64) *tensor.Tensor {
	out, _ := u.Forward(x, cond, times...)
	return out
}

func TestUNetGradient(t *testing.T) {
	u := MustNew(testConfig())
	rng := tensor.NewRand(5)
	x := tensor.Randn(rng, 3, u.DimIn(), 1)
	cond := tensor.Randn(rng, 3, 2, 1)
	ts := []float64{0.2, 0.5, 0.9}
	rs := []float64{0.1, 0.5, 0.3}

	out, c := u.Forward(x, cond, ts, rs)
	require.Equal(t, x.Cols, out.Cols)
	r := tensor.Randn(rng, out.Rows, out.Cols, 1)
	grads := u.NewGrads()
	dx := u.Backward(c, r, grads)

	loss := func() float64 {
		return dot(infer(u, x, cond, ts, rs).Data, r.Data)
	}
	const h = 1e-6
	w := u.Weights()
	for k := range w {
		orig := w[k]
		w[k] = orig + h
		up := loss()
		w[k] = orig - h
		down := loss()
		w[k] = orig
		assert.InDelta(t, (up-down)/(2*h), grads[k], 1e-5, "weight %d", k)
	}
	for k := range x.Data {
		orig := x.Data[k]
		x.Data[k] = orig + h
		up := loss()
		x.Data[k] = orig - h
		down := loss()
		x.Data[k] = orig
		assert.InDelta(t, (up-down)/(2*h), dx.Data[k], 1e-5, "input %d", k)
	}
}

func TestUNetJVP(t *testing.T) {
	u := MustNew(testConfig())
	rng := tensor.NewRand(6)
	x := tensor.Randn(rng, 2, u.DimIn(), 1)
	cond := tensor.Randn(rng, 2, 2, 1)
	ts := []float64{0.4, 0.8}
	rs := []float64{0.1, 0.8}
	dx := tensor.Randn(rng, 2, u.DimIn(), 1)
	dt := []float64{1, 1}
	dr := []float64{0, 0}

	_, c := u.Forward(x, cond, ts, rs)
	jvp := u.JVP(c, dx, dt, dr)

	const h = 1e-6
	shift := func(s float64) *tensor.Tensor {
		tt := make([]float64, len(ts))
		for i := range ts {
			tt[i] = ts[i] + s*dt[i]
		}
		return infer(u, x.Clone().AddScaled(s, dx), cond, tt, rs)
	}
	up, down := shift(h), shift(-h)
	for k := range jvp.Data {
		assert.InDelta(t, (up.Data[k]-down.Data[k])/(2*h), jvp.Data[k], 1e-5, "output %d", k)
	}
}

func TestUNetValidate(t *testing.T) {
	for _, cfg := range []Config{
		{Channels: 3, Height: 5, Width: 4, Base: 2, Times: 1},
		{Channels: 3, Height: 4, Width: 4, Base: 0, Times: 1},
		{Channels: 3, Height: 4, Width: 4, Base: 2, Times: 0},
		{Channels: 3, Height: 4, Width: 4, Base: 2, Times: 1, Kernel: 2},
	} {
		_, err := New(cfg)
		assert.Error(t, err, "%+v", cfg)
	}
}

func TestUNetZeroOut(t *testing.T) {
	cfg := testConfig()
	cfg.ZeroOut = true
	u := MustNew(cfg)
	rng := tensor.NewRand(1)
	out := infer(u, tensor.Randn(rng, 2, u.DimIn(), 1), tensor.Randn(rng, 2, 2, 1), []float64{0.5, 0.5}, []float64{0, 0})
	assert.Equal(t, make([]float64, out.Rows*out.Cols), out.Data)
}

func TestUNetJSON(t *testing.T) {
	u := MustNew(testConfig())
	data, err := u.MarshalJSON()
	require.NoError(t, err)
	back, err := FromJSON(data)
	require.NoError(t, err)
	assert.Equal(t, u.Config(), back.Config())
	assert.Equal(t, u.Weights(), back.Weights())

	g := u.Clone()
	g.Weights()[0] += 1
	assert.NotEqual(t, u.Weights()[0], g.Weights()[0])
	assert.Error(t, u.Load(make([]float64, 2)))

	_, err = FromJSON([]byte(`{"kind":"feedforward","config":{}}`))
	assert.Error(t, err)
}
