package trainer

import "encoding/json"
import "time"

import "github.com/mongodb/grip"
import "github.com/pkg/errors"
import "gonum.org/v1/gonum/floats"

import "github.com/neurlang/rectifiedflow/checkpoint"
import "github.com/neurlang/rectifiedflow/datasets"
import "github.com/neurlang/rectifiedflow/ema"
import "github.com/neurlang/rectifiedflow/flow"
import "github.com/neurlang/rectifiedflow/metrics"
import "github.com/neurlang/rectifiedflow/net"
import "github.com/neurlang/rectifiedflow/optim"
import "github.com/neurlang/rectifiedflow/parallel"
import "github.com/neurlang/rectifiedflow/tensor"

// Trainer owns the online network, its EMA copy and the optimizer state.
type Trainer struct {
	cfg    Config
	obj    flow.Objective
	net    net.Network
	emaNet net.Network
	ema    *ema.EMA
	opt    *optim.Adam
	sched  optim.Schedule
	ds     datasets.Dataset
	loader *datasets.Loader
	grads  [][]float64
	total  []float64

	step    int
	runID   string
	started time.Time

	// RunConfig is stored verbatim in checkpoints.
	RunConfig json.RawMessage
	// Meta is stored in checkpoints.
	Meta map[string]string

	collectors *metrics.Collectors
	history    *metrics.History
}

// Result describes one optimizer step.
type Result struct {
	Step     int
	Loss     flow.Breakdown
	GradNorm float64
	LR       float64
	Duration time.Duration
}

// New creates a trainer. The network time inputs must match the objective.
func New(obj flow.Objective, network net.Network, ds datasets.Dataset, cfg Config) (*Trainer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	if network.TimeInputs() != obj.TimeInputs() {
		return nil, errors.Errorf("trainer: %s needs %d time inputs, network takes %d", obj.Name(), obj.TimeInputs(), network.TimeInputs())
	}
	if dim := tensor.Numel(ds.Shape()); dim != network.DimIn() || dim != network.DimOut() {
		return nil, errors.Errorf("trainer: dataset has %d features, network maps %d to %d", dim, network.DimIn(), network.DimOut())
	}
	if cd := datasets.CondDim(ds); cd != network.DimCond() {
		return nil, errors.Errorf("trainer: dataset has %d conditioning features, network takes %d", cd, network.DimCond())
	}
	shadow, err := net.Clone(network)
	if err != nil {
		return nil, errors.Wrap(err, "copying network")
	}
	loader, err := datasets.NewLoader(ds, cfg.BatchSize, true, true, cfg.Seed)
	if err != nil {
		return nil, err
	}
	opt, err := optim.NewAdam(network.NumParams(), optim.AdamConfig{
		LR:          cfg.LearningRate,
		Beta1:       cfg.Betas[0],
		Beta2:       cfg.Betas[1],
		WeightDecay: cfg.WeightDecay,
		Decoupled:   cfg.WeightDecay > 0,
	})
	if err != nil {
		return nil, errors.Wrap(err, "creating optimizer")
	}
	t := &Trainer{
		cfg:    cfg,
		obj:    obj,
		net:    network,
		emaNet: shadow,
		ema:    ema.New(network.Weights(), cfg.EMA),
		opt:    opt,
		sched:  cfg.schedule(),
		ds:     ds,
		loader: loader,
		total:  network.NewGrads(),
		runID:  checkpoint.NewRunID(),
		Meta:   map[string]string{},
	}
	t.ema.Attach(opt, network.Weights())
	for i := 0; i < parallel.Resolve(cfg.Threads); i++ {
		t.grads = append(t.grads, network.NewGrads())
	}
	return t, nil
}

// WithMetrics makes every step update c.
func (t *Trainer) WithMetrics(c *metrics.Collectors) *Trainer {
	t.collectors = c
	return t
}

// Config returns the effective configuration.
func (t *Trainer) Config() Config { return t.cfg }

// Step is the number of optimizer steps taken.
func (t *Trainer) Step() int { return t.step }

// RunID identifies the run across resumes.
func (t *Trainer) RunID() string { return t.runID }

// Network is the online network.
func (t *Trainer) Network() net.Network { return t.net }

// EMANetwork returns the network holding the current EMA weights.
func (t *Trainer) EMANetwork() net.Network {
	t.syncEMA()
	return t.emaNet
}

func (t *Trainer) syncEMA() {
	copy(t.emaNet.Weights(), t.ema.Shadow())
}

// batchLoss evaluates obj on a batch split across the worker buffers and
// returns the merged breakdown. With train set, gradients of the batch mean
// loss are left split over t.grads; otherwise t.grads is untouched.
func (t *Trainer) batchLoss(model flow.Model, data, cond *tensor.Tensor, seed uint64, train bool) (flow.Breakdown, error) {
	var target flow.Model
	if flow.UsesTarget(t.obj) {
		t.syncEMA()
		target = t.emaNet
	}
	spans := parallel.Chunks(data.Rows, len(t.grads))
	parts := make([]flow.Breakdown, len(spans))
	errs := make([]error, len(spans))
	parallel.ForEach(len(spans), len(spans), func(i int) {
		s := spans[i]
		var g []float64
		if train {
			g = t.grads[i]
			for k := range g {
				g[k] = 0
			}
		}
		b := flow.Batch{
			Data:   data.Rowset(s.From, s.To),
			Rng:    tensor.NewRand(seed*7919 + uint64(i)),
			Scale:  float64(s.Len()) / float64(data.Rows),
			Target: target,
		}
		if cond != nil {
			b.Cond = cond.Rowset(s.From, s.To)
		}
		parts[i], errs[i] = t.obj.Loss(model, b, g)
	})
	catcher := grip.NewBasicCatcher()
	var br flow.Breakdown
	for i := range spans {
		catcher.Add(errs[i])
		br = br.Merge(parts[i])
	}
	for i := len(spans); train && i < len(t.grads); i++ {
		for k := range t.grads[i] {
			t.grads[i][k] = 0
		}
	}
	return br, catcher.Resolve()
}

// TrainStep draws a batch and applies one optimizer update.
func (t *Trainer) TrainStep() (Result, error) {
	start := time.Now()
	data, cond := t.loader.Next()
	br, err := t.batchLoss(t.net, data, cond, t.cfg.Seed^uint64(t.step+1)<<20, true)
	if err != nil {
		return Result{}, errors.Wrapf(err, "step %d", t.step+1)
	}
	copy(t.total, t.grads[0])
	for _, g := range t.grads[1:] {
		floats.Add(t.total, g)
	}
	norm := optim.ClipGradNorm(t.total, t.cfg.MaxGradNorm)
	lr := t.sched.LR(t.step)
	t.opt.SetLR(lr)
	t.opt.Step(t.net.Weights(), t.total)
	t.step++

	res := Result{Step: t.step, Loss: br, GradNorm: norm, LR: lr, Duration: time.Since(start)}
	row := metrics.Row{
		Step:            int64(res.Step),
		Loss:            br.Total,
		MainLoss:        br.Main,
		ConsistencyLoss: br.Consistency,
		GradNorm:        norm,
		LR:              lr,
		Seconds:         res.Duration.Seconds(),
	}
	if t.collectors != nil {
		t.collectors.Observe(row, t.ema.LastDecay())
	}
	if t.history != nil {
		if err := t.history.Append(row); err != nil {
			return res, err
		}
	}
	return res, nil
}
