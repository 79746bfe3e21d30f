package flow

import "fmt"
import "math"

import "github.com/pkg/errors"

import "github.com/neurlang/rectifiedflow/layer"
import "github.com/neurlang/rectifiedflow/ode"
import "github.com/neurlang/rectifiedflow/tensor"

// Mean is the MeanFlow objective. The network u(z, t, r) predicts the average
// velocity between times r ≤ t, with z_t = (1-t)·data + t·noise, so t=1 is
// noise and t=0 is data.
type Mean struct {
	Times TimeSampler // DefaultLogitNormal when nil

	// ProbDefaultFlow is the fraction of rows trained with r = t, where the
	// average velocity is the instantaneous one.
	ProbDefaultFlow float64

	// AdaptiveWeight scales row losses by 1/(loss + AdaptiveEps)^AdaptivePower.
	AdaptiveWeight bool
	AdaptivePower  float64
	AdaptiveEps    float64

	NoiseStd    float64 // 1 when zero
	Normalize   Transform
	Unnormalize Transform
	DataShape   []int
	SampleSteps int // 1 when zero
}

// DefaultMean returns the MeanFlow objective with its usual constants.
func DefaultMean(shape ...int) *Mean {
	return &Mean{
		Times:           DefaultLogitNormal,
		ProbDefaultFlow: 0.5,
		AdaptiveWeight:  true,
		AdaptivePower:   0.5,
		AdaptiveEps:     1e-3,
		NoiseStd:        1,
		DataShape:       shape,
		SampleSteps:     1,
	}
}

// TimeInputs is two, the network receives t and r.
func (f *Mean) TimeInputs() int { return 2 }

// Name describes the objective.
func (f *Mean) Name() string {
	return fmt.Sprintf("mean(times=%s, p_flow=%g, adaptive=%t)", f.times().Name(), f.ProbDefaultFlow, f.AdaptiveWeight)
}

func (f *Mean) times() TimeSampler {
	if f.Times == nil {
		return DefaultLogitNormal
	}
	return f.Times
}

func (f *Mean) noiseStd() float64 {
	if f.NoiseStd == 0 {
		return 1
	}
	return f.NoiseStd
}

// Loss computes the MeanFlow loss and accumulates the gradient of
// Scale·loss into grads. The regression target v - (t-r)·du/dt is held
// constant.
func (f *Mean) Loss(m Model, b Batch, grads []float64) (Breakdown, error) {
	if b.Data == nil || b.Data.Rows == 0 {
		return Breakdown{}, nil
	}
	rng := b.rng()
	data := f.Normalize.apply(b.Data)
	n, d := data.Rows, data.Cols

	noise := b.Noise
	if noise == nil {
		noise = tensor.Randn(rng, n, d, f.noiseStd())
	} else if !noise.SameShape(data) {
		return Breakdown{}, errors.Wrapf(ErrShape, "noise %v for data %v", noise, data)
	}
	if b.Cond != nil && b.Cond.Rows != n {
		return Breakdown{}, errors.Wrapf(ErrShape, "cond %v for data %v", b.Cond, data)
	}

	t := f.times().Sample(rng, n)
	r := f.times().Sample(rng, n)
	for i := range t {
		if t[i] < r[i] {
			t[i], r[i] = r[i], t[i]
		}
		if rng.Float64() < f.ProbDefaultFlow {
			r[i] = t[i]
		}
	}

	z := tensor.Lerp(data, noise, t)
	v := tensor.Sub(noise, data)
	u, cache := m.Forward(z, b.Cond, t, r)
	dudt := m.JVP(cache, v, fill(make([]float64, n), 1), make([]float64, n))

	span := make([]float64, n)
	for i := range span {
		span[i] = r[i] - t[i]
	}
	target := v.AddRowScaled(span, dudt)

	rows := tensor.RowSquaredError(u, target)
	dOut := tensor.Zeros(n, d)
	var total float64
	g := b.scale() / float64(n) * 2 / float64(d)
	for i, l := range rows {
		w := 1.0
		if f.AdaptiveWeight {
			w = 1 / math.Pow(l+f.AdaptiveEps, f.AdaptivePower)
		}
		total += w * l
		ur, tr, gr := u.Row(i), target.Row(i), dOut.Row(i)
		for j := range gr {
			gr[j] = g * w * (ur[j] - tr[j])
		}
	}
	br := Breakdown{Total: total / float64(n), Main: mean(rows), Rows: n}
	if math.IsNaN(br.Total) || math.IsInf(br.Total, 0) {
		return br, ErrNotFinite
	}
	if grads != nil {
		m.Backward(cache, dOut, grads)
	}
	return br, nil
}

func (f *Mean) start(o SampleOptions) (int, *tensor.Tensor, error) {
	fallback := f.SampleSteps
	if fallback == 0 {
		fallback = 1
	}
	steps, err := resolveSteps(o.Steps, fallback)
	if err != nil {
		return 0, nil, err
	}
	x, err := startNoise(o, f.DataShape, f.noiseStd())
	return steps, x, err
}

// Sample maps noise to data. One step evaluates x = ε - u(ε, 1, 0); more
// steps walk x ← x - (t-r)·u(x, t, r) down a uniform grid from 1 to 0.
func (f *Mean) Sample(m Model, o SampleOptions) (*tensor.Tensor, error) {
	steps, x, err := f.start(o)
	if err != nil {
		return nil, err
	}
	grid := ode.Linspace(1, 0, steps+1)
	err = overChunks(x, o.Cond, o.Threads, func(x, cond *tensor.Tensor) error {
		tb, rb := make([]float64, x.Rows), make([]float64, x.Rows)
		for k := 0; k < steps; k++ {
			t, r := grid[k], grid[k+1]
			u, _ := m.Forward(x, cond, fill(tb, t), fill(rb, r))
			x.AddScaled(r-t, u)
		}
		if !x.IsFinite() {
			return ErrNotFinite
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return f.Unnormalize.apply(x), nil
}

// SampleGrad samples like Sample on a single thread and accumulates into
// grads the parameter gradient of Σ dOut⊙x for the returned samples x.
// Unnormalize must be elementwise affine.
func (f *Mean) SampleGrad(m Model, o SampleOptions, dOut *tensor.Tensor, grads []float64) (*tensor.Tensor, error) {
	steps, x, err := f.start(o)
	if err != nil {
		return nil, err
	}
	if dOut == nil {
		return nil, errors.Wrap(ErrShape, "missing output gradient")
	}
	if !dOut.SameShape(x) {
		return nil, errors.Wrapf(ErrShape, "output gradient %v for samples %v", dOut, x)
	}
	grid := ode.Linspace(1, 0, steps+1)
	caches := make([]layer.Cache, steps)
	for k := 0; k < steps; k++ {
		t, r := grid[k], grid[k+1]
		u, c := m.Forward(x, o.Cond, fill(make([]float64, x.Rows), t), fill(make([]float64, x.Rows), r))
		caches[k] = c
		x = x.Clone().AddScaled(r-t, u)
	}
	if !x.IsFinite() {
		return nil, ErrNotFinite
	}
	out := f.Unnormalize.apply(x)
	g := f.Unnormalize.pullback(dOut)
	for k := steps - 1; k >= 0; k-- {
		dx := m.Backward(caches[k], g.Clone().Scale(grid[k+1]-grid[k]), grads)
		g.AddScaled(1, dx)
	}
	return out, nil
}
