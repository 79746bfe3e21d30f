package flow

import "github.com/mongodb/grip"

import "github.com/neurlang/rectifiedflow/parallel"
import "github.com/neurlang/rectifiedflow/tensor"

// startNoise returns the sampling start point, drawing it when not supplied.
func startNoise(o SampleOptions, shape []int, std float64) (*tensor.Tensor, error) {
	if o.Noise != nil {
		if o.Cond != nil && o.Cond.Rows != o.Noise.Rows {
			return nil, ErrShape
		}
		return o.Noise.Clone(), nil
	}
	if len(shape) == 0 {
		return nil, ErrNoDataShape
	}
	n := o.Batch
	if o.Cond != nil {
		if n != 0 && n != o.Cond.Rows {
			return nil, ErrShape
		}
		n = o.Cond.Rows
	}
	if n <= 0 {
		n = 1
	}
	rng := o.Rng
	if rng == nil {
		rng = Batch{}.rng()
	}
	return tensor.Randn(rng, n, tensor.Numel(shape), std), nil
}

// resolveSteps picks the requested step count or the default one.
func resolveSteps(requested, fallback int) (int, error) {
	switch {
	case requested < 0:
		return 0, ErrSteps
	case requested == 0:
		requested = fallback
	}
	if requested < 1 {
		return 0, ErrSteps
	}
	return requested, nil
}

// overChunks runs fn on contiguous row chunks of x in parallel. Each call
// receives views of x and cond sharing storage with the originals.
func overChunks(x, cond *tensor.Tensor, threads int, fn func(x, cond *tensor.Tensor) error) error {
	catcher := grip.NewBasicCatcher()
	parallel.ForEachChunk(x.Rows, parallel.Resolve(threads), func(_ int, s parallel.Span) {
		var c *tensor.Tensor
		if cond != nil {
			c = cond.Rowset(s.From, s.To)
		}
		catcher.Add(fn(x.Rowset(s.From, s.To), c))
	})
	return catcher.Resolve()
}

func fill(v []float64, x float64) []float64 {
	for i := range v {
		v[i] = x
	}
	return v
}
