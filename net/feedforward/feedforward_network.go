// Package feedforward implements the time conditioned feedforward network used as velocity field
package feedforward

import "fmt"
import "strings"

import "github.com/pkg/errors"

import "github.com/neurlang/rectifiedflow/layer"
import "github.com/neurlang/rectifiedflow/layer/embed"
import "github.com/neurlang/rectifiedflow/layer/linear"
import "github.com/neurlang/rectifiedflow/layer/rmsnorm"
import "github.com/neurlang/rectifiedflow/layer/silu"
import "github.com/neurlang/rectifiedflow/layer/tanh"
import "github.com/neurlang/rectifiedflow/tensor"

// Config describes the network shape.
type Config struct {
	DimIn     int     `json:"dim_in" yaml:"dim_in"`         // data features
	DimCond   int     `json:"dim_cond" yaml:"dim_cond"`     // conditioning features, 0 for none
	DimOut    int     `json:"dim_out" yaml:"dim_out"`       // output features, defaults to DimIn
	Hidden    int     `json:"hidden" yaml:"hidden"`         // hidden width
	Depth     int     `json:"depth" yaml:"depth"`           // number of Linear+SiLU blocks
	TimeFreqs int     `json:"time_freqs" yaml:"time_freqs"` // sinusoidal frequencies per time input
	Times     int     `json:"times" yaml:"times"`           // 1 for t, 2 for t and r
	FinalNorm bool    `json:"final_norm" yaml:"final_norm"` // RMSNorm before the output projection
	OutScale  float64 `json:"out_scale" yaml:"out_scale"`   // when positive, output is OutScale·tanh(·)
	ZeroOut   bool    `json:"zero_out" yaml:"zero_out"`     // zero initialize the output projection
	Seed      uint64  `json:"seed" yaml:"seed"`
}

// Validate reports an invalid shape.
func (c Config) Validate() error {
	switch {
	case c.DimIn <= 0:
		return errors.Errorf("feedforward: dim_in must be positive, got %d", c.DimIn)
	case c.DimCond < 0:
		return errors.Errorf("feedforward: dim_cond must not be negative, got %d", c.DimCond)
	case c.Hidden <= 0:
		return errors.Errorf("feedforward: hidden must be positive, got %d", c.Hidden)
	case c.Depth <= 0:
		return errors.Errorf("feedforward: depth must be positive, got %d", c.Depth)
	case c.Times < 0 || c.Times > 2:
		return errors.Errorf("feedforward: times must be 0, 1 or 2, got %d", c.Times)
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.DimOut == 0 {
		c.DimOut = c.DimIn
	}
	return c
}

// FeedforwardNetwork is the feedforward network. All parameters live in a single
// contiguous weight vector so optimizers and EMA can operate on it directly.
type FeedforwardNetwork struct {
	cfg     Config
	embed   *embed.Time
	layers  []layer.Layer
	params  []*layer.Param
	offsets []int
	weights []float64
}

// trace keeps the caches of one Forward call.
type trace struct {
	rows   int
	embeds []layer.Cache
	caches []layer.Cache
}

// MustNew creates a network and panics on invalid configuration
func MustNew(cfg Config) *FeedforwardNetwork {
	f, err := New(cfg)
	if err != nil {
		panic(err.Error())
	}
	return f
}

// New creates a network with initialized weights.
func New(cfg Config) (*FeedforwardNetwork, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	e, err := embed.New(cfg.TimeFreqs)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	rng := tensor.NewRand(cfg.Seed)
	f := &FeedforwardNetwork{cfg: cfg, embed: e}

	width := cfg.DimIn + cfg.DimCond + cfg.Times*e.Width()
	for d := 0; d < cfg.Depth; d++ {
		f.layers = append(f.layers, linear.MustNew(width, cfg.Hidden, true, rng), silu.New())
		width = cfg.Hidden
	}
	if cfg.FinalNorm {
		f.layers = append(f.layers, rmsnorm.MustNew(width))
	}
	out := linear.MustNew(width, cfg.DimOut, true, rng)
	if cfg.ZeroOut {
		out.ZeroInit()
	}
	f.layers = append(f.layers, out)
	if cfg.OutScale > 0 {
		f.layers = append(f.layers, tanh.New(cfg.OutScale))
	}

	for _, l := range f.layers {
		for _, p := range l.Params() {
			f.offsets = append(f.offsets, len(f.weights))
			f.weights = append(f.weights, p.Value...)
			f.params = append(f.params, p)
		}
	}
	// rebind parameter storage onto the flat vector
	for i, p := range f.params {
		p.Value = f.weights[f.offsets[i] : f.offsets[i]+len(p.Value) : f.offsets[i]+len(p.Value)]
	}
	return f, nil
}

// Config returns the network configuration with defaults applied.
func (f *FeedforwardNetwork) Config() Config {
	return f.cfg
}

// DimIn is the number of data features.
func (f *FeedforwardNetwork) DimIn() int { return f.cfg.DimIn }

// DimOut is the number of output features.
func (f *FeedforwardNetwork) DimOut() int { return f.cfg.DimOut }

// DimCond is the number of conditioning features.
func (f *FeedforwardNetwork) DimCond() int { return f.cfg.DimCond }

// TimeInputs is the number of time inputs.
func (f *FeedforwardNetwork) TimeInputs() int { return f.cfg.Times }

// NumParams returns the number of trainable scalars.
func (f *FeedforwardNetwork) NumParams() int {
	return len(f.weights)
}

// Weights returns the live parameter vector. Writes change the network.
func (f *FeedforwardNetwork) Weights() []float64 {
	return f.weights
}

// Flatten returns a copy of the parameter vector.
func (f *FeedforwardNetwork) Flatten() []float64 {
	o := make([]float64, len(f.weights))
	copy(o, f.weights)
	return o
}

// Load copies a parameter vector into the network.
func (f *FeedforwardNetwork) Load(w []float64) error {
	if len(w) != len(f.weights) {
		return errors.Errorf("feedforward: loading %d weights into network of %d", len(w), len(f.weights))
	}
	copy(f.weights, w)
	return nil
}

// Clone creates an independent network with the same configuration and weights.
func (f *FeedforwardNetwork) Clone() *FeedforwardNetwork {
	o := MustNew(f.cfg)
	copy(o.weights, f.weights)
	return o
}

// NewGrads allocates a zero gradient vector aligned with Weights.
func (f *FeedforwardNetwork) NewGrads() []float64 {
	return make([]float64, len(f.weights))
}

// Params lists the parameters in weight vector order.
func (f *FeedforwardNetwork) Params() []*layer.Param {
	return f.params
}

func (f *FeedforwardNetwork) input(x, cond *tensor.Tensor, times [][]float64) (*tensor.Tensor, []layer.Cache) {
	if x.Cols != f.cfg.DimIn {
		panic(fmt.Sprintf("feedforward: input width %d, want %d", x.Cols, f.cfg.DimIn))
	}
	if len(times) != f.cfg.Times {
		panic(fmt.Sprintf("feedforward: got %d time inputs, want %d", len(times), f.cfg.Times))
	}
	parts := []*tensor.Tensor{x}
	if f.cfg.DimCond > 0 {
		if cond == nil || cond.Cols != f.cfg.DimCond || cond.Rows != x.Rows {
			panic(fmt.Sprintf("feedforward: conditioning must be %dx%d", x.Rows, f.cfg.DimCond))
		}
		parts = append(parts, cond)
	}
	var caches []layer.Cache
	for _, t := range times {
		if len(t) != x.Rows {
			panic(fmt.Sprintf("feedforward: %d times for %d rows", len(t), x.Rows))
		}
		emb, c := f.embed.Forward(tensor.Column(t))
		parts = append(parts, emb)
		caches = append(caches, c)
	}
	return tensor.ConcatCols(parts...), caches
}

// Forward computes the network output for a batch. The returned cache can be
// passed to Backward and JVP. Forward does not mutate the network and is safe
// to call concurrently.
func (f *FeedforwardNetwork) Forward(x, cond *tensor.Tensor, times ...[]float64) (*tensor.Tensor, layer.Cache) {
	h, embeds := f.input(x, cond, times)
	tr := &trace{rows: x.Rows, embeds: embeds, caches: make([]layer.Cache, len(f.layers))}
	for i, l := range f.layers {
		h, tr.caches[i] = l.Forward(h)
	}
	return h, tr
}

// Infer computes the output without keeping a cache.
func (f *FeedforwardNetwork) Infer(x, cond *tensor.Tensor, times ...[]float64) *tensor.Tensor {
	out, _ := f.Forward(x, cond, times...)
	return out
}

func (f *FeedforwardNetwork) gradSlices(grads []float64) [][]float64 {
	out := make([][]float64, len(f.params))
	for i, p := range f.params {
		out[i] = grads[f.offsets[i] : f.offsets[i]+p.Len()]
	}
	return out
}

// Backward accumulates parameter gradients of dOut into grads, which must be
// aligned with Weights. It returns the gradient with respect to the data input.
func (f *FeedforwardNetwork) Backward(c layer.Cache, dOut *tensor.Tensor, grads []float64) *tensor.Tensor {
	tr := c.(*trace)
	if len(grads) != len(f.weights) {
		panic(fmt.Sprintf("feedforward: gradient length %d, want %d", len(grads), len(f.weights)))
	}
	slices := f.gradSlices(grads)
	idx := len(slices)
	d := dOut
	for i := len(f.layers) - 1; i >= 0; i-- {
		n := len(f.layers[i].Params())
		idx -= n
		d = f.layers[i].Backward(tr.caches[i], d, slices[idx:idx+n])
	}
	return d.SplitCols(f.cfg.DimIn, d.Cols-f.cfg.DimIn)[0]
}

// JVP computes the directional derivative of the output of the Forward call that
// produced c along the input tangent (dx, 0, dtimes...). A nil dx means zero.
func (f *FeedforwardNetwork) JVP(c layer.Cache, dx *tensor.Tensor, dtimes ...[]float64) *tensor.Tensor {
	tr := c.(*trace)
	if len(dtimes) != len(tr.embeds) {
		panic(fmt.Sprintf("feedforward: got %d time tangents, want %d", len(dtimes), len(tr.embeds)))
	}
	if dx == nil {
		dx = tensor.Zeros(tr.rows, f.cfg.DimIn)
	}
	parts := []*tensor.Tensor{dx}
	if f.cfg.DimCond > 0 {
		parts = append(parts, tensor.Zeros(tr.rows, f.cfg.DimCond))
	}
	for i, dt := range dtimes {
		parts = append(parts, f.embed.JVP(tr.embeds[i], tensor.Column(dt)))
	}
	d := tensor.ConcatCols(parts...)
	for i, l := range f.layers {
		d = l.JVP(tr.caches[i], d)
	}
	return d
}

// String describes the layer stack.
func (f *FeedforwardNetwork) String() string {
	names := make([]string, 0, len(f.layers)+1)
	names = append(names, f.embed.Name())
	for _, l := range f.layers {
		names = append(names, l.Name())
	}
	return fmt.Sprintf("FeedforwardNetwork[%s] (%d params)", strings.Join(names, " -> "), len(f.weights))
}
