package feedforward

import "bytes"
import "testing"

import "github.com/stretchr/testify/assert"
import "github.com/stretchr/testify/require"

import "github.com/neurlang/rectifiedflow/tensor"

func testConfig() Config {
	return Config{
		DimIn:     3,
		DimCond:   2,
		Hidden:    8,
		Depth:     2,
		TimeFreqs: 2,
		Times:     2,
		FinalNorm: true,
		OutScale:  5,
		Seed:      11,
	}
}

func dot(a, b []float64) (s float64) {
	for i := range a {
		s += a[i] * b[i]
	}
	return
}

func TestNetworkGradient(t *testing.T) {
	f := MustNew(testConfig())
	rng := tensor.NewRand(5)
	x := tensor.Randn(rng, 4, 3, 1)
	cond := tensor.Randn(rng, 4, 2, 1)
	ts := []float64{0.1, 0.5, 0.7, 0.9}
	rs := []float64{0.0, 0.2, 0.7, 0.3}

	out, c := f.Forward(x, cond, ts, rs)
	r := tensor.Randn(rng, out.Rows, out.Cols, 1)
	grads := f.NewGrads()
	dx := f.Backward(c, r, grads)
	require.Equal(t, 4, dx.Rows)
	require.Equal(t, 3, dx.Cols)

	loss := func() float64 {
		return dot(f.Infer(x, cond, ts, rs).Data, r.Data)
	}
	const h = 1e-6
	w := f.Weights()
	for _, k := range []int{0, 7, 31, len(w) / 2, len(w) - 1} {
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

func TestNetworkJVP(t *testing.T) {
	f := MustNew(testConfig())
	rng := tensor.NewRand(6)
	x := tensor.Randn(rng, 3, 3, 1)
	cond := tensor.Randn(rng, 3, 2, 1)
	ts := []float64{0.3, 0.6, 0.95}
	rs := []float64{0.1, 0.6, 0.2}
	dx := tensor.Randn(rng, 3, 3, 1)
	dt := []float64{1, 1, 1}
	dr := []float64{0, 0, 0}

	_, c := f.Forward(x, cond, ts, rs)
	jvp := f.JVP(c, dx, dt, dr)

	const h = 1e-6
	shift := func(s float64) *tensor.Tensor {
		xs := x.Clone().AddScaled(s, dx)
		tt := make([]float64, len(ts))
		for i := range ts {
			tt[i] = ts[i] + s*dt[i]
		}
		return f.Infer(xs, cond, tt, rs)
	}
	up, down := shift(h), shift(-h)
	for k := range jvp.Data {
		assert.InDelta(t, (up.Data[k]-down.Data[k])/(2*h), jvp.Data[k], 1e-5, "output %d", k)
	}
}

func TestNetworkValidate(t *testing.T) {
	_, err := New(Config{DimIn: 0, Hidden: 4, Depth: 1})
	assert.Error(t, err)
	_, err = New(Config{DimIn: 2, Hidden: 4, Depth: 1, Times: 3})
	assert.Error(t, err)
}

func TestNetworkCloneLoad(t *testing.T) {
	f := MustNew(testConfig())
	g := f.Clone()
	assert.Equal(t, f.Flatten(), g.Flatten())
	g.Weights()[0] += 1
	assert.NotEqual(t, f.Weights()[0], g.Weights()[0])

	assert.Error(t, f.Load(make([]float64, 3)))
	require.NoError(t, f.Load(g.Flatten()))
	assert.Equal(t, f.Flatten(), g.Flatten())
}

func TestForwardPanicsOnMissingCond(t *testing.T) {
	f := MustNew(testConfig())
	x := tensor.Zeros(2, 3)
	assert.Panics(t, func() {
		f.Infer(x, nil, []float64{0, 0}, []float64{0, 0})
	})
}

func TestCompressedWeightsRoundTrip(t *testing.T) {
	f := MustNew(testConfig())
	var buf bytes.Buffer
	require.NoError(t, f.WriteCompressedWeights(&buf))
	g, err := ReadCompressedWeights(&buf)
	require.NoError(t, err)
	assert.Equal(t, f.Config(), g.Config())
	assert.Equal(t, f.Flatten(), g.Flatten())
}

func FuzzCompressedWeights(f *testing.F) {
	f.Add(uint64(1), uint8(3), uint8(1))
	f.Fuzz(func(t *testing.T, seed uint64, hidden, depth uint8) {
		cfg := Config{DimIn: 2, Hidden: int(hidden%16) + 1, Depth: int(depth%3) + 1, Times: 1, TimeFreqs: 1, Seed: seed}
		net := MustNew(cfg)
		var buf bytes.Buffer
		if err := net.WriteCompressedWeights(&buf); err != nil {
			t.Fatal(err)
		}
		back, err := ReadCompressedWeights(&buf)
		if err != nil {
			t.Fatal(err)
		}
		if back.NumParams() != net.NumParams() {
			t.Fatalf("param count %d != %d", back.NumParams(), net.NumParams())
		}
		for i, v := range net.Weights() {
			if back.Weights()[i] != v {
				t.Fatalf("weight %d: %v != %v", i, back.Weights()[i], v)
			}
		}
	})
}

func TestFromJSONKind(t *testing.T) {
	f := MustNew(testConfig())
	data, err := f.MarshalJSON()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"kind":"feedforward"`)

	_, err = FromJSON([]byte(`{"kind":"unet","config":{"dim_in":2,"hidden":2,"depth":1}}`))
	assert.Error(t, err)
}
