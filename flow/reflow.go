package flow

import "fmt"
import rand "math/rand/v2"

import "github.com/pbnjay/memory"
import "github.com/pkg/errors"

import "github.com/neurlang/rectifiedflow/tensor"

// Reflow trains a student rectified flow on (noise, data) couplings produced
// by integrating a frozen source flow. The student learns straighter paths
// and samples well with fewer steps.
type Reflow struct {
	Source     Model
	SourceFlow Objective
	Student    *Rectified

	// Steps and Method configure source sampling, objective defaults when zero.
	Steps  int
	Method string

	// MemoryFraction of physical memory that precomputed pairs may occupy.
	MemoryFraction float64

	noise, data, cond *tensor.Tensor
}

// NewReflow couples a trained source with a student objective.
func NewReflow(source Model, sourceFlow Objective, student *Rectified) *Reflow {
	return &Reflow{
		Source:         source,
		SourceFlow:     sourceFlow,
		Student:        student,
		MemoryFraction: 0.25,
	}
}

// TimeInputs is one, the student is a rectified flow.
func (r *Reflow) TimeInputs() int { return 1 }

// Name describes the objective.
func (r *Reflow) Name() string {
	return fmt.Sprintf("reflow(source=%s, student=%s)", r.SourceFlow.Name(), r.Student.Name())
}

// UsesTarget reports whether the student reads the EMA target.
func (r *Reflow) UsesTarget() bool { return r.Student.UsesTarget() }

// PairBytes is the memory taken by n pairs of dim features.
func PairBytes(n, dim int) uint64 {
	return 2 * 8 * uint64(n) * uint64(dim)
}

func (r *Reflow) checkBudget(n, dim int) error {
	total := memory.TotalMemory()
	if total == 0 || r.MemoryFraction <= 0 {
		return nil
	}
	need := PairBytes(n, dim)
	if budget := uint64(float64(total) * r.MemoryFraction); need > budget {
		return errors.Wrapf(ErrPairBudget, "%d pairs need %d bytes, budget %d", n, need, budget)
	}
	return nil
}

func (r *Reflow) dim(fallback int) int {
	if len(r.Student.DataShape) > 0 {
		return tensor.Numel(r.Student.DataShape)
	}
	return fallback
}

func (r *Reflow) pairs(n, dim int, cond *tensor.Tensor, rng *rand.Rand, threads int) (noise, data *tensor.Tensor, err error) {
	if dim <= 0 {
		return nil, nil, ErrNoDataShape
	}
	if cond != nil && cond.Rows != n {
		return nil, nil, errors.Wrapf(ErrShape, "cond %v for %d pairs", cond, n)
	}
	noise = tensor.Randn(rng, n, dim, r.Student.noiseStd())
	data, err = r.SourceFlow.Sample(r.Source, SampleOptions{
		Noise:   noise,
		Cond:    cond,
		Steps:   r.Steps,
		Method:  r.Method,
		Threads: threads,
	})
	if err != nil {
		return nil, nil, errors.Wrap(err, "sampling reflow source")
	}
	return noise, data, nil
}

// Pairs draws n noise rows and the data the source maps them to.
func (r *Reflow) Pairs(n int, cond *tensor.Tensor, rng *rand.Rand) (noise, data *tensor.Tensor, err error) {
	dim := r.dim(0)
	if err := r.checkBudget(n, dim); err != nil {
		return nil, nil, err
	}
	return r.pairs(n, dim, cond, rng, 0)
}

// Precompute fills a pool of n pairs that Loss draws from instead of
// integrating the source on every batch.
func (r *Reflow) Precompute(n int, cond *tensor.Tensor, rng *rand.Rand) error {
	noise, data, err := r.Pairs(n, cond, rng)
	if err != nil {
		return err
	}
	r.noise, r.data, r.cond = noise, data, cond
	return nil
}

// Pooled is the number of precomputed pairs.
func (r *Reflow) Pooled() int {
	if r.noise == nil {
		return 0
	}
	return r.noise.Rows
}

func (r *Reflow) draw(n int, rng *rand.Rand) (noise, data, cond *tensor.Tensor) {
	noise = tensor.Zeros(n, r.noise.Cols)
	data = tensor.Zeros(n, r.data.Cols)
	if r.cond != nil {
		cond = tensor.Zeros(n, r.cond.Cols)
	}
	for i := 0; i < n; i++ {
		k := rng.IntN(r.noise.Rows)
		copy(noise.Row(i), r.noise.Row(k))
		copy(data.Row(i), r.data.Row(k))
		if cond != nil {
			copy(cond.Row(i), r.cond.Row(k))
		}
	}
	return noise, data, cond
}

// Loss trains the student on coupled pairs. The batch only contributes its
// row count, conditioning, scale and randomness.
func (r *Reflow) Loss(m Model, b Batch, grads []float64) (Breakdown, error) {
	n := 0
	if b.Data != nil {
		n = b.Data.Rows
	} else if b.Cond != nil {
		n = b.Cond.Rows
	}
	if n == 0 {
		return Breakdown{}, nil
	}
	rng := b.rng()
	var noise, data, cond *tensor.Tensor
	if r.Pooled() > 0 {
		noise, data, cond = r.draw(n, rng)
	} else {
		cols := 0
		if b.Data != nil {
			cols = b.Data.Cols
		}
		var err error
		if noise, data, err = r.pairs(n, r.dim(cols), b.Cond, rng, 1); err != nil {
			return Breakdown{}, err
		}
		cond = b.Cond
	}
	return r.Student.Loss(m, Batch{
		Data:   data,
		Noise:  noise,
		Cond:   cond,
		Rng:    rng,
		Scale:  b.Scale,
		Target: b.Target,
	}, grads)
}

// Sample draws from the student.
func (r *Reflow) Sample(m Model, o SampleOptions) (*tensor.Tensor, error) {
	return r.Student.Sample(m, o)
}
