package trainer

import "math"
import "time"

import "github.com/mongodb/grip"
import "github.com/mongodb/grip/message"
import "github.com/pkg/errors"

import "github.com/neurlang/rectifiedflow/datasets"
import "github.com/neurlang/rectifiedflow/flow"
import "github.com/neurlang/rectifiedflow/tensor"
import "github.com/neurlang/rectifiedflow/visual"

// sampleSize calculates the statistically sufficient sample size
// for a given dataset size N and significance level (0–100).
func sampleSize(N int, significance byte) int {
	z := zScoreFromAlpha(100 - significance)

	// worst case proportion
	p := 0.5
	e := float64(100-significance) * 0.01

	ss := math.Pow(z, 2) * p * (1 - p) / math.Pow(e, 2)

	// finite population correction
	corrected := ss * float64(N) / (float64(N) - 1 + ss)
	if int(corrected) > N {
		return N
	}
	return int(corrected)
}

// zScoreFromAlpha returns the Z-score for a given alpha level
// Common: 90% => 1.645, 95% => 1.96, 99% => 2.576
func zScoreFromAlpha(alpha byte) float64 {
	switch {
	case alpha <= 1:
		return 2.576
	case alpha <= 5:
		return 1.96
	case alpha <= 10:
		return 1.645
	default:
		return 1.96
	}
}

// Evaluate returns the mean loss of the EMA model over n fresh batches. When
// n is not positive, enough batches are drawn to cover a 95% significant
// sample of the dataset.
func (t *Trainer) Evaluate(n int) (flow.Breakdown, error) {
	if n <= 0 {
		rows := max(sampleSize(t.ds.Len(), 95), 1)
		n = (rows + t.cfg.BatchSize - 1) / t.cfg.BatchSize
	}
	loader, err := datasets.NewLoader(t.ds, t.cfg.BatchSize, true, false, t.cfg.Seed+uint64(t.step)+1)
	if err != nil {
		return flow.Breakdown{}, err
	}
	t.syncEMA()
	var total flow.Breakdown
	for i := 0; i < n; i++ {
		data, cond := loader.Next()
		br, err := t.batchLoss(t.emaNet, data, cond, ^uint64(i), false)
		if err != nil {
			return total, errors.Wrap(err, "evaluating")
		}
		total = total.Merge(br)
	}
	return total, nil
}

// Sample draws n samples from the EMA model. Conditional datasets lend the
// conditioning of randomly chosen rows.
func (t *Trainer) Sample(n, steps int) (*tensor.Tensor, error) {
	start := time.Now()
	rng := tensor.NewRand(t.cfg.Seed ^ uint64(t.step)<<32)
	opts := flow.SampleOptions{Batch: n, Steps: steps, Rng: rng, Threads: t.cfg.Threads}
	if c, ok := t.ds.(datasets.Conditional); ok && c.CondDim() > 0 {
		opts.Cond = tensor.Zeros(n, c.CondDim())
		for i := 0; i < n; i++ {
			c.Cond(rng.IntN(c.Len()), opts.Cond.Row(i))
		}
	}
	if opts.Steps == 0 {
		opts.Steps = t.cfg.SampleSteps
	}
	out, err := t.obj.Sample(t.EMANetwork(), opts)
	if err != nil {
		return nil, errors.Wrap(err, "sampling")
	}
	if t.collectors != nil {
		t.collectors.ObserveSampling(time.Since(start))
	}
	return out, nil
}

// SaveSamples renders n EMA samples to path: a scatter plot for 2-D data,
// an image grid otherwise.
func (t *Trainer) SaveSamples(path string, n int) error {
	out, err := t.Sample(n, 0)
	if err != nil {
		return err
	}
	shape := t.ds.Shape()
	if len(shape) == 1 && shape[0] == 2 {
		err = visual.SaveScatter(path, out, 512, 0)
	} else {
		err = visual.SaveGrid(path, out, shape, 0, 4)
	}
	if err != nil {
		return err
	}
	grip.Info(message.Fields{"message": "samples saved", "path": path, "step": t.step, "n": n})
	return nil
}
