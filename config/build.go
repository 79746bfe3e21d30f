package config

import "encoding/json"

import "github.com/mongodb/grip"
import "github.com/mongodb/grip/message"
import "github.com/pkg/errors"

import "github.com/neurlang/rectifiedflow/checkpoint"
import "github.com/neurlang/rectifiedflow/datasets"
import "github.com/neurlang/rectifiedflow/flow"
import "github.com/neurlang/rectifiedflow/net"
import "github.com/neurlang/rectifiedflow/net/feedforward"
import "github.com/neurlang/rectifiedflow/net/unet"
import "github.com/neurlang/rectifiedflow/tensor"

// BuildDataset generates the configured synthetic dataset.
func (c Config) BuildDataset() (*datasets.TensorDataset, error) {
	return datasets.ByName(c.Data.Name, c.Data.Size, c.Data.Seed)
}

// TimeInputs is the number of time inputs the configured objective feeds the
// network.
func (o ObjectiveConfig) TimeInputs() int {
	if o.Kind == KindMean {
		return 2
	}
	return 1
}

// BuildNetwork creates a network sized for ds and the objective. A U-Net
// needs image data shaped [channels, height, width].
func (c Config) BuildNetwork(ds datasets.Dataset) (net.Network, error) {
	switch c.Model.Kind {
	case "", NetworkFeedforward:
		mc := c.Model.Config
		mc.DimIn = tensor.Numel(ds.Shape())
		mc.DimOut = mc.DimIn
		mc.DimCond = datasets.CondDim(ds)
		mc.Times = c.Objective.TimeInputs()
		if mc.Seed == 0 {
			mc.Seed = c.Train.Seed
		}
		f, err := feedforward.New(mc)
		if err != nil {
			return nil, err
		}
		return f, nil
	case NetworkUNet:
		shape := ds.Shape()
		if len(shape) != 3 {
			return nil, errors.Errorf("unet needs [channels, height, width] data, dataset %q has shape %v", c.Data.Name, shape)
		}
		uc := c.Model.UNet
		uc.Channels, uc.Height, uc.Width = shape[0], shape[1], shape[2]
		uc.DimCond = datasets.CondDim(ds)
		uc.Times = c.Objective.TimeInputs()
		if uc.Seed == 0 {
			uc.Seed = c.Train.Seed
		}
		u, err := unet.New(uc)
		if err != nil {
			return nil, err
		}
		return u, nil
	}
	return nil, errors.Errorf("unknown model kind %q", c.Model.Kind)
}

// BuildObjective creates the configured objective for data shaped like ds.
// A reflow objective loads its frozen source from the checkpoint named in
// the configuration and samples it with the EMA weights.
func (c Config) BuildObjective(ds datasets.Dataset) (flow.Objective, error) {
	shape := ds.Shape()
	if c.Objective.Kind != KindReflow {
		return c.Objective.single(shape)
	}
	rc := c.Objective.Reflow
	ck, err := checkpoint.Load(rc.Source)
	if err != nil {
		return nil, errors.Wrap(err, "loading reflow source")
	}
	source, err := net.FromJSON(ck.Model)
	if err != nil {
		return nil, errors.Wrapf(err, "decoding reflow source %s", rc.Source)
	}
	if ck.EMA != nil {
		if err := source.Load(ck.EMA.Shadow); err != nil {
			return nil, errors.Wrapf(err, "loading reflow source EMA weights")
		}
	}
	src := c.Objective
	src.Kind = rc.SourceKind
	if len(ck.Config) > 0 {
		saved := Default()
		if err := json.Unmarshal(ck.Config, &saved); err != nil {
			return nil, errors.Wrapf(err, "decoding reflow source configuration")
		}
		src = saved.Objective
	}
	if src.TimeInputs() != source.TimeInputs() {
		return nil, errors.Errorf("reflow source %s takes %d time inputs, objective %q needs %d",
			rc.Source, source.TimeInputs(), src.Kind, src.TimeInputs())
	}
	sourceFlow, err := src.single(shape)
	if err != nil {
		return nil, errors.Wrap(err, "building reflow source objective")
	}
	student, err := c.Objective.rectified(shape)
	if err != nil {
		return nil, err
	}
	r := flow.NewReflow(source, sourceFlow, student)
	r.Steps = rc.Steps
	r.Method = rc.Method
	if rc.MemoryFraction > 0 {
		r.MemoryFraction = rc.MemoryFraction
	}
	if rc.Pairs > 0 {
		rng := tensor.NewRand(c.Train.Seed + 1)
		var cond *tensor.Tensor
		if cd, ok := ds.(datasets.Conditional); ok && cd.CondDim() > 0 {
			cond = tensor.Zeros(rc.Pairs, cd.CondDim())
			for i := 0; i < rc.Pairs; i++ {
				cd.Cond(rng.IntN(cd.Len()), cond.Row(i))
			}
		}
		if err := r.Precompute(rc.Pairs, cond, rng); err != nil {
			return nil, err
		}
	}
	grip.Info(message.Fields{
		"message": "reflow source loaded",
		"path":    rc.Source,
		"run_id":  ck.RunID,
		"step":    ck.Step,
		"source":  sourceFlow.Name(),
		"pairs":   r.Pooled(),
	})
	return r, nil
}

func (o ObjectiveConfig) single(shape []int) (flow.Objective, error) {
	switch o.Kind {
	case KindRectified:
		return o.rectified(shape)
	case KindMean:
		return o.mean(shape)
	}
	return nil, errors.Errorf("objective %q cannot be built directly", o.Kind)
}

func (o ObjectiveConfig) rectified(shape []int) (*flow.Rectified, error) {
	r := flow.DefaultRectified(shape...)
	var err error
	if r.Predict, err = flow.ParsePredict(o.Predict); err != nil {
		return nil, err
	}
	if o.Times != "" {
		if r.Times, err = flow.SamplerByName(o.Times); err != nil {
			return nil, err
		}
	}
	if r.Loss, err = flow.LossByName(o.Loss, tensor.Numel(shape)); err != nil {
		return nil, err
	}
	if o.NoiseStd > 0 {
		r.NoiseStd = o.NoiseStd
	}
	if o.Normalize {
		r.Normalize, r.Unnormalize = flow.ToSymmetric, flow.FromSymmetric
	}
	r.ClipDuringSampling = o.Clip
	if o.ClipValues != [2]float64{} {
		r.ClipValues = o.ClipValues
	}
	r.ClipFlowDuringSampling = o.ClipFlow
	if o.ClipFlowValues != [2]float64{} {
		r.ClipFlowValues = o.ClipFlowValues
	}
	r.Immiscible = o.Immiscible
	r.Consistency = o.Consistency
	if o.ConsistencyDelta > 0 {
		r.ConsistencyDelta = o.ConsistencyDelta
	}
	if o.ConsistencyAlpha > 0 {
		r.ConsistencyAlpha = o.ConsistencyAlpha
	}
	if o.ConsistencyWeight > 0 {
		r.ConsistencyWeight = o.ConsistencyWeight
	}
	if o.SampleSteps > 0 {
		r.SampleSteps = o.SampleSteps
	}
	if o.Method != "" {
		r.Method = o.Method
	}
	return r, nil
}

func (o ObjectiveConfig) mean(shape []int) (*flow.Mean, error) {
	m := flow.DefaultMean(shape...)
	if o.Times != "" {
		t, err := flow.SamplerByName(o.Times)
		if err != nil {
			return nil, err
		}
		m.Times = t
	}
	if o.ProbDefaultFlow != nil {
		m.ProbDefaultFlow = *o.ProbDefaultFlow
	}
	if o.AdaptiveWeight != nil {
		m.AdaptiveWeight = *o.AdaptiveWeight
	}
	if o.NoiseStd > 0 {
		m.NoiseStd = o.NoiseStd
	}
	if o.Normalize {
		m.Normalize, m.Unnormalize = flow.ToSymmetric, flow.FromSymmetric
	}
	if o.SampleSteps > 0 {
		m.SampleSteps = o.SampleSteps
	}
	return m, nil
}

// SamplingObjective builds the objective used to draw samples from a trained
// network. A reflow run samples with its rectified student, so the frozen
// source is not loaded.
func (c Config) SamplingObjective(shape []int) (flow.Objective, error) {
	if c.Objective.Kind == KindReflow {
		return c.Objective.rectified(shape)
	}
	return c.Objective.single(shape)
}
