package flow

import rand "math/rand/v2"

import "github.com/pkg/errors"

import "github.com/neurlang/rectifiedflow/layer"
import "github.com/neurlang/rectifiedflow/tensor"

// Sentinel errors for the flow package.
var (
	ErrShape       = errors.New("flow: tensor shape mismatch")
	ErrSteps       = errors.New("flow: sampling needs at least one step")
	ErrNoTarget    = errors.New("flow: consistency loss needs an EMA target model")
	ErrPredict     = errors.New("flow: consistency loss requires flow prediction")
	ErrNotFinite   = errors.New("flow: loss is NaN or infinite")
	ErrPairBudget  = errors.New("flow: reflow pairs exceed the memory budget")
	ErrNoDataShape = errors.New("flow: data shape unknown, pass noise or set DataShape")
)

// Model is a network usable as a velocity field. Times are passed per row; a
// rectified flow passes t, a mean flow passes t and r.
type Model interface {

	// Forward computes the output and a cache for Backward and JVP.
	Forward(x, cond *tensor.Tensor, times ...[]float64) (*tensor.Tensor, layer.Cache)

	// Backward accumulates parameter gradients of dOut into grads.
	Backward(c layer.Cache, dOut *tensor.Tensor, grads []float64) *tensor.Tensor

	// JVP is the output tangent along (dx, 0, dtimes...).
	JVP(c layer.Cache, dx *tensor.Tensor, dtimes ...[]float64) *tensor.Tensor

	// NumParams is the gradient vector length.
	NumParams() int
}

// Batch is one training (sub)batch.
type Batch struct {
	Data  *tensor.Tensor // unnormalized data rows
	Cond  *tensor.Tensor // conditioning rows, may be nil
	Noise *tensor.Tensor // optional fixed noise, drawn when nil
	Rng   *rand.Rand

	// Scale multiplies the gradient of the mean loss over this batch. A
	// caller splitting a batch of N rows sets Scale = rows/N on each part.
	Scale float64

	// Target is the EMA model used as consistency target, may be nil.
	Target Model
}

func (b Batch) scale() float64 {
	if b.Scale == 0 {
		return 1
	}
	return b.Scale
}

func (b Batch) rng() *rand.Rand {
	if b.Rng == nil {
		return tensor.NewRand(rand.Uint64())
	}
	return b.Rng
}

// Breakdown reports the components of a batch loss.
type Breakdown struct {
	Total       float64 `json:"total"`
	Main        float64 `json:"main"`
	Consistency float64 `json:"consistency"`
	Rows        int     `json:"rows"`
}

// Merge combines the breakdown of two disjoint sub-batches, weighting by rows.
func (b Breakdown) Merge(o Breakdown) Breakdown {
	n := b.Rows + o.Rows
	if n == 0 {
		return Breakdown{}
	}
	w1, w2 := float64(b.Rows)/float64(n), float64(o.Rows)/float64(n)
	return Breakdown{
		Total:       b.Total*w1 + o.Total*w2,
		Main:        b.Main*w1 + o.Main*w2,
		Consistency: b.Consistency*w1 + o.Consistency*w2,
		Rows:        n,
	}
}

// SampleOptions control sampling.
type SampleOptions struct {
	Batch   int            // rows to draw when Noise is nil
	Steps   int            // integration steps, objective default when 0
	Method  string         // ODE method for rectified flows
	Noise   *tensor.Tensor // starting noise, drawn when nil
	Cond    *tensor.Tensor // conditioning rows, may be nil
	Rng     *rand.Rand
	Threads int // parallel row chunks, 0 for parallel.Threads()
}

// Objective is a training objective with its matching sampler.
type Objective interface {

	// Loss computes the batch loss and accumulates gradients into grads.
	// Nil grads only evaluates the loss.
	Loss(m Model, b Batch, grads []float64) (Breakdown, error)

	// Sample draws unnormalized data.
	Sample(m Model, opts SampleOptions) (*tensor.Tensor, error)

	// TimeInputs is the number of time inputs the network takes.
	TimeInputs() int

	// Name describes the objective.
	Name() string
}

// TargetUser is implemented by objectives that may need Batch.Target.
type TargetUser interface {
	UsesTarget() bool
}

// UsesTarget reports whether obj reads the EMA target of its batches.
func UsesTarget(obj Objective) bool {
	u, ok := obj.(TargetUser)
	return ok && u.UsesTarget()
}

// Transform maps a batch to a new batch, used for data normalization.
type Transform func(*tensor.Tensor) *tensor.Tensor

func (f Transform) apply(t *tensor.Tensor) *tensor.Tensor {
	if f == nil || t == nil {
		return t
	}
	return f(t)
}

// pullback maps a gradient with respect to f(x) to one with respect to x,
// assuming f is elementwise affine.
func (f Transform) pullback(d *tensor.Tensor) *tensor.Tensor {
	o := d.Clone()
	if f == nil {
		return o
	}
	ends := tensor.Zeros(2, d.Cols)
	for j := range ends.Row(1) {
		ends.Row(1)[j] = 1
	}
	y := f(ends)
	for i := 0; i < o.Rows; i++ {
		row := o.Row(i)
		for j := range row {
			row[j] *= y.Row(1)[j] - y.Row(0)[j]
		}
	}
	return o
}

// ToSymmetric maps data in [0, 1] to [-1, 1].
func ToSymmetric(t *tensor.Tensor) *tensor.Tensor {
	return t.Clone().Apply(func(v float64) float64 { return v*2 - 1 })
}

// FromSymmetric maps data in [-1, 1] to [0, 1].
func FromSymmetric(t *tensor.Tensor) *tensor.Tensor {
	return t.Clone().Apply(func(v float64) float64 { return (v + 1) / 2 })
}
