package flow

import "fmt"
import "math"

import "github.com/pkg/errors"

import "github.com/neurlang/rectifiedflow/ode"
import "github.com/neurlang/rectifiedflow/tensor"

// Predict selects what the network regresses.
type Predict int

const (
	// PredictFlow regresses the velocity data - noise.
	PredictFlow Predict = iota
	// PredictNoise regresses the noise and derives the velocity from it.
	PredictNoise
)

// String names the objective.
func (p Predict) String() string {
	switch p {
	case PredictFlow:
		return "flow"
	case PredictNoise:
		return "noise"
	}
	return fmt.Sprintf("Predict(%d)", int(p))
}

// ParsePredict parses "flow" or "noise".
func ParsePredict(s string) (Predict, error) {
	switch s {
	case "", "flow":
		return PredictFlow, nil
	case "noise":
		return PredictNoise, nil
	}
	return 0, fmt.Errorf("flow: unknown prediction objective %q", s)
}

// Rectified is the rectified flow objective. Time runs from noise at t=0 to
// data at t=1 along x_t = t·data + (1-t)·noise.
type Rectified struct {
	Predict     Predict
	Times       TimeSampler // Uniform when nil
	Loss        Loss        // MSE when nil
	NoiseStd    float64     // 1 when zero
	Normalize   Transform
	Unnormalize Transform

	// ClipDuringSampling clamps the data estimate x + (1-t)·v to ClipValues.
	ClipDuringSampling bool
	ClipValues         [2]float64
	// ClipFlowDuringSampling clamps the velocity to ClipFlowValues.
	ClipFlowDuringSampling bool
	ClipFlowValues         [2]float64

	// Immiscible pairs every data row with the closest noise row of the batch.
	Immiscible bool

	// Consistency adds the consistency flow matching loss against the EMA
	// target of the batch.
	Consistency       bool
	ConsistencyDelta  float64
	ConsistencyAlpha  float64
	ConsistencyWeight float64

	DataShape   []int
	SampleSteps int    // 16 when zero
	Method      string // ode method, midpoint when empty

	Eps float64 // lower bound of t when converting noise to flow
}

// DefaultRectified returns a flow predicting objective with the usual
// consistency and clipping constants filled in.
func DefaultRectified(shape ...int) *Rectified {
	return &Rectified{
		Times:             Uniform{},
		Loss:              MSE{},
		NoiseStd:          1,
		ClipValues:        [2]float64{-1, 1},
		ClipFlowValues:    [2]float64{-3, 3},
		ConsistencyDelta:  1e-3,
		ConsistencyAlpha:  1e-5,
		ConsistencyWeight: 1,
		DataShape:         shape,
		SampleSteps:       16,
		Method:            "midpoint",
		Eps:               1e-10,
	}
}

// TimeInputs is one, the network receives t.
func (r *Rectified) TimeInputs() int { return 1 }

// Name describes the objective.
func (r *Rectified) Name() string {
	return fmt.Sprintf("rectified(predict=%s, loss=%s, times=%s)", r.Predict, r.loss().Name(), r.times().Name())
}

// UsesTarget reports whether Loss reads the EMA target of the batch.
func (r *Rectified) UsesTarget() bool { return r.Consistency }

func (r *Rectified) times() TimeSampler {
	if r.Times == nil {
		return Uniform{}
	}
	return r.Times
}

func (r *Rectified) loss() Loss {
	if r.Loss == nil {
		return MSE{}
	}
	return r.Loss
}

func (r *Rectified) sampleSteps() int {
	if r.SampleSteps == 0 {
		return 16
	}
	return r.SampleSteps
}

func (r *Rectified) noiseStd() float64 {
	if r.NoiseStd == 0 {
		return 1
	}
	return r.NoiseStd
}

// Loss computes the flow matching loss of a batch and accumulates the
// gradient of Scale·loss into grads.
func (r *Rectified) Loss(m Model, b Batch, grads []float64) (Breakdown, error) {
	if b.Data == nil || b.Data.Rows == 0 {
		return Breakdown{}, nil
	}
	if r.Consistency {
		if r.Predict != PredictFlow {
			return Breakdown{}, ErrPredict
		}
		if b.Target == nil {
			return Breakdown{}, ErrNoTarget
		}
	}
	rng := b.rng()
	data := r.Normalize.apply(b.Data)
	n, d := data.Rows, data.Cols

	noise := b.Noise
	if noise == nil {
		noise = tensor.Randn(rng, n, d, r.noiseStd())
	} else if !noise.SameShape(data) {
		return Breakdown{}, errors.Wrapf(ErrShape, "noise %v for data %v", noise, data)
	}
	if b.Cond != nil && b.Cond.Rows != n {
		return Breakdown{}, errors.Wrapf(ErrShape, "cond %v for data %v", b.Cond, data)
	}
	if r.Immiscible {
		var err error
		if noise, err = AssignNoise(data, noise); err != nil {
			return Breakdown{}, err
		}
	}

	t := r.times().Sample(rng, n)
	if r.Consistency {
		for i := range t {
			t[i] *= 1 - r.ConsistencyDelta
		}
	}
	xt := tensor.Lerp(noise, data, t)
	out, cache := m.Forward(xt, b.Cond, t)

	target := noise
	if r.Predict == PredictFlow {
		target = tensor.Sub(data, noise)
	}
	dOut := tensor.Zeros(n, d)
	br := Breakdown{Main: mean(r.loss().Eval(out, target, dOut)), Rows: n}
	scale := b.scale() / float64(n)
	dOut.Scale(scale)

	if r.Consistency {
		br.Consistency = r.consistency(b, noise, data, xt, out, t, dOut, scale)
	}
	br.Total = br.Main + r.ConsistencyWeight*br.Consistency
	if math.IsNaN(br.Total) || math.IsInf(br.Total, 0) {
		return br, ErrNotFinite
	}
	if grads != nil {
		m.Backward(cache, dOut, grads)
	}
	return br, nil
}

// consistency compares the data estimate at t with the EMA estimate at t+Δ,
// plus a small velocity matching term, and adds its gradient into dOut.
func (r *Rectified) consistency(b Batch, noise, data, xt, out *tensor.Tensor, t []float64, dOut *tensor.Tensor, scale float64) float64 {
	n, d := out.Rows, out.Cols
	tn := make([]float64, n)
	for i := range tn {
		tn[i] = t[i] + r.ConsistencyDelta
	}
	xn := tensor.Lerp(noise, data, tn)
	target, _ := b.Target.Forward(xn, b.Cond, tn)

	g := 2 / float64(d) * scale * r.ConsistencyWeight
	losses := make([]float64, n)
	for i := 0; i < n; i++ {
		xr, or, xnr, tr, gr := xt.Row(i), out.Row(i), xn.Row(i), target.Row(i), dOut.Row(i)
		var se, ve float64
		for j := 0; j < d; j++ {
			pd := xr[j] + or[j]*(1-t[i])
			td := xnr[j] + tr[j]*(1-tn[i])
			dd, dv := pd-td, or[j]-tr[j]
			se += dd * dd
			ve += dv * dv
			gr[j] += g * (dd*(1-t[i]) + r.ConsistencyAlpha*dv)
		}
		losses[i] = (se + r.ConsistencyAlpha*ve) / float64(d)
	}
	return mean(losses)
}

// velocity turns the network output at time t into the flow, applying the
// sampling clamps.
func (r *Rectified) velocity(x, out *tensor.Tensor, t float64) {
	if r.Predict == PredictNoise {
		inv := 1 / math.Max(t, r.Eps)
		for k, e := range out.Data {
			out.Data[k] = (x.Data[k] - e) * inv
		}
	}
	if r.ClipFlowDuringSampling {
		out.Clamp(r.ClipFlowValues[0], r.ClipFlowValues[1])
	}
	if r.ClipDuringSampling && 1-t > r.Eps {
		lo, hi := r.ClipValues[0], r.ClipValues[1]
		for k, v := range out.Data {
			est := math.Max(lo, math.Min(hi, x.Data[k]+v*(1-t)))
			out.Data[k] = (est - x.Data[k]) / (1 - t)
		}
	}
}

// Sample integrates the learned ODE from noise at t=0 to data at t=1.
func (r *Rectified) Sample(m Model, o SampleOptions) (*tensor.Tensor, error) {
	steps, err := resolveSteps(o.Steps, r.sampleSteps())
	if err != nil {
		return nil, err
	}
	method := o.Method
	if method == "" {
		method = r.Method
	}
	solver, err := ode.ByName(method)
	if err != nil {
		return nil, err
	}
	x, err := startNoise(o, r.DataShape, r.noiseStd())
	if err != nil {
		return nil, err
	}
	times := ode.Linspace(0, 1, steps+1)
	err = overChunks(x, o.Cond, o.Threads, func(x, cond *tensor.Tensor) error {
		tb := make([]float64, x.Rows)
		f := func(t float64, y, dy []float64) {
			xt := tensor.New(x.Rows, x.Cols, y)
			v, _ := m.Forward(xt, cond, fill(tb, t))
			r.velocity(xt, v, t)
			copy(dy, v.Data)
		}
		y, err := solver.Solve(f, x.Data, times, nil)
		if err != nil {
			return errors.Wrapf(err, "integrating with %s", solver.Name())
		}
		copy(x.Data, y)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.Unnormalize.apply(x), nil
}
