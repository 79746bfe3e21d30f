// Package unet implements a small time conditioned U-Net velocity field for images
package unet

import "fmt"
import "strings"

import "github.com/pkg/errors"

import "github.com/neurlang/rectifiedflow/layer"
import "github.com/neurlang/rectifiedflow/layer/avgpool2d"
import "github.com/neurlang/rectifiedflow/layer/conv2d"
import "github.com/neurlang/rectifiedflow/layer/embed"
import "github.com/neurlang/rectifiedflow/layer/linear"
import "github.com/neurlang/rectifiedflow/layer/silu"
import "github.com/neurlang/rectifiedflow/layer/upsample2d"
import "github.com/neurlang/rectifiedflow/tensor"

// Config describes the network shape.
type Config struct {
	Channels  int    `json:"channels" yaml:"channels"`     // image channels
	Height    int    `json:"height" yaml:"height"`         // even image height
	Width     int    `json:"width" yaml:"width"`           // even image width
	DimCond   int    `json:"dim_cond" yaml:"dim_cond"`     // conditioning features, 0 for none
	Base      int    `json:"base" yaml:"base"`             // feature maps at full resolution
	Kernel    int    `json:"kernel" yaml:"kernel"`         // odd convolution size, 3 when zero
	TimeFreqs int    `json:"time_freqs" yaml:"time_freqs"` // sinusoidal frequencies per time input
	Times     int    `json:"times" yaml:"times"`           // 1 for t, 2 for t and r
	ZeroOut   bool   `json:"zero_out" yaml:"zero_out"`     // zero initialize the output convolution
	Seed      uint64 `json:"seed" yaml:"seed"`
}

// Validate reports an invalid shape.
func (c Config) Validate() error {
	switch {
	case c.Channels <= 0:
		return errors.Errorf("unet: channels must be positive, got %d", c.Channels)
	case c.Height <= 0 || c.Width <= 0 || c.Height%2 != 0 || c.Width%2 != 0:
		return errors.Errorf("unet: image size must be positive and even, got %dx%d", c.Height, c.Width)
	case c.DimCond < 0:
		return errors.Errorf("unet: dim_cond must not be negative, got %d", c.DimCond)
	case c.Base <= 0:
		return errors.Errorf("unet: base must be positive, got %d", c.Base)
	case c.Kernel < 0 || (c.Kernel > 0 && c.Kernel%2 == 0):
		return errors.Errorf("unet: kernel must be odd, got %d", c.Kernel)
	case c.Times < 1 || c.Times > 2:
		return errors.Errorf("unet: times must be 1 or 2, got %d", c.Times)
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.Kernel == 0 {
		c.Kernel = 3
	}
	return c
}

// parameter owners in weight vector order
const (
	slotTimeIn = iota
	slotTimeOut
	slotIn
	slotMid1
	slotMid2
	slotDec
	slotOut
)

// UNet encodes the image at full and half resolution and decodes it back
// with a skip connection. The time and conditioning embedding shifts every
// full resolution feature map by a learned per channel bias.
type UNet struct {
	cfg     Config
	embed   *embed.Time
	act     *silu.SiLU
	timeIn  *linear.Linear
	timeOut *linear.Linear
	in      *conv2d.Conv2D
	down    *avgpool2d.AvgPool2D
	mid1    *conv2d.Conv2D
	mid2    *conv2d.Conv2D
	up      *upsample2d.Upsample2D
	dec     *conv2d.Conv2D
	out     *conv2d.Conv2D

	params  []*layer.Param
	offsets []int
	weights []float64
}

// trace keeps the caches of one Forward call.
type trace struct {
	rows    int
	embeds  []layer.Cache
	timeIn  layer.Cache
	timeAct layer.Cache
	timeOut layer.Cache
	in      layer.Cache
	inAct   layer.Cache
	mid1    layer.Cache
	mid1Act layer.Cache
	mid2    layer.Cache
	mid2Act layer.Cache
	dec     layer.Cache
	decAct  layer.Cache
	out     layer.Cache
}

// MustNew creates a network and panics on invalid configuration
func MustNew(cfg Config) *UNet {
	u, err := New(cfg)
	if err != nil {
		panic(err.Error())
	}
	return u
}

// New creates a network with initialized weights.
func New(cfg Config) (*UNet, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	e, err := embed.New(cfg.TimeFreqs)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	rng := tensor.NewRand(cfg.Seed)
	b, h, w, k := cfg.Base, cfg.Height, cfg.Width, cfg.Kernel
	u := &UNet{cfg: cfg, embed: e, act: silu.New()}
	u.timeIn = linear.MustNew(cfg.DimCond+cfg.Times*e.Width(), b, true, rng)
	u.timeOut = linear.MustNew(b, b, true, rng)
	u.in = conv2d.MustNew(cfg.Channels, b, h, w, k, rng)
	u.down = avgpool2d.MustNew(b, h, w)
	u.mid1 = conv2d.MustNew(b, 2*b, h/2, w/2, k, rng)
	u.mid2 = conv2d.MustNew(2*b, 2*b, h/2, w/2, k, rng)
	u.up = upsample2d.MustNew(2*b, h/2, w/2)
	u.dec = conv2d.MustNew(3*b, b, h, w, k, rng)
	u.out = conv2d.MustNew(b, cfg.Channels, h, w, k, rng)
	if cfg.ZeroOut {
		u.out.ZeroInit()
	}

	for _, l := range u.trainable() {
		for _, p := range l.Params() {
			u.offsets = append(u.offsets, len(u.weights))
			u.weights = append(u.weights, p.Value...)
			u.params = append(u.params, p)
		}
	}
	// rebind parameter storage onto the flat vector
	for i, p := range u.params {
		p.Value = u.weights[u.offsets[i] : u.offsets[i]+len(p.Value) : u.offsets[i]+len(p.Value)]
	}
	return u, nil
}

func (u *UNet) trainable() []layer.Layer {
	return []layer.Layer{u.timeIn, u.timeOut, u.in, u.mid1, u.mid2, u.dec, u.out}
}

// Config returns the network configuration with defaults applied.
func (u *UNet) Config() Config { return u.cfg }

func (u *UNet) pixels() int { return u.cfg.Height * u.cfg.Width }

// DimIn is the number of input features, channels·height·width.
func (u *UNet) DimIn() int { return u.cfg.Channels * u.pixels() }

// DimOut equals DimIn.
func (u *UNet) DimOut() int { return u.DimIn() }

// DimCond is the number of conditioning features.
func (u *UNet) DimCond() int { return u.cfg.DimCond }

// TimeInputs is the number of time inputs.
func (u *UNet) TimeInputs() int { return u.cfg.Times }

// NumParams returns the number of trainable scalars.
func (u *UNet) NumParams() int { return len(u.weights) }

// Weights returns the live parameter vector. Writes change the network.
func (u *UNet) Weights() []float64 { return u.weights }

// NewGrads allocates a zero gradient vector aligned with Weights.
func (u *UNet) NewGrads() []float64 { return make([]float64, len(u.weights)) }

// Load copies a parameter vector into the network.
func (u *UNet) Load(w []float64) error {
	if len(w) != len(u.weights) {
		return errors.Errorf("unet: loading %d weights into network of %d", len(w), len(u.weights))
	}
	copy(u.weights, w)
	return nil
}

// Clone creates an independent network with the same configuration and weights.
func (u *UNet) Clone() *UNet {
	o := MustNew(u.cfg)
	copy(o.weights, u.weights)
	return o
}

// addChannels adds bias[n][c] to every pixel of channel c in row n.
func addChannels(x, bias *tensor.Tensor, pixels int) {
	for n := 0; n < x.Rows; n++ {
		row := x.Row(n)
		for c, b := range bias.Row(n) {
			for k := c * pixels; k < (c+1)*pixels; k++ {
				row[k] += b
			}
		}
	}
}

// sumChannels sums every channel of every row.
func sumChannels(x *tensor.Tensor, channels, pixels int) *tensor.Tensor {
	o := tensor.Zeros(x.Rows, channels)
	for n := 0; n < x.Rows; n++ {
		row, dst := x.Row(n), o.Row(n)
		for c := range dst {
			for _, v := range row[c*pixels : (c+1)*pixels] {
				dst[c] += v
			}
		}
	}
	return o
}

// Forward computes the network output for a batch. The returned cache can be
// passed to Backward and JVP. Forward is safe to call concurrently.
func (u *UNet) Forward(x, cond *tensor.Tensor, times ...[]float64) (*tensor.Tensor, layer.Cache) {
	if x.Cols != u.DimIn() {
		panic(fmt.Sprintf("unet: input width %d, want %d", x.Cols, u.DimIn()))
	}
	if len(times) != u.cfg.Times {
		panic(fmt.Sprintf("unet: got %d time inputs, want %d", len(times), u.cfg.Times))
	}
	tr := &trace{rows: x.Rows}
	var parts []*tensor.Tensor
	if u.cfg.DimCond > 0 {
		if cond == nil || cond.Cols != u.cfg.DimCond || cond.Rows != x.Rows {
			panic(fmt.Sprintf("unet: conditioning must be %dx%d", x.Rows, u.cfg.DimCond))
		}
		parts = append(parts, cond)
	}
	for _, t := range times {
		if len(t) != x.Rows {
			panic(fmt.Sprintf("unet: %d times for %d rows", len(t), x.Rows))
		}
		emb, c := u.embed.Forward(tensor.Column(t))
		parts = append(parts, emb)
		tr.embeds = append(tr.embeds, c)
	}

	h, c := u.timeIn.Forward(tensor.ConcatCols(parts...))
	tr.timeIn = c
	h, tr.timeAct = u.act.Forward(h)
	shift, c := u.timeOut.Forward(h)
	tr.timeOut = c

	a, c := u.in.Forward(x)
	tr.in = c
	addChannels(a, shift, u.pixels())
	skip, c := u.act.Forward(a)
	tr.inAct = c

	m, _ := u.down.Forward(skip)
	m, tr.mid1 = u.mid1.Forward(m)
	m, tr.mid1Act = u.act.Forward(m)
	m, tr.mid2 = u.mid2.Forward(m)
	m, tr.mid2Act = u.act.Forward(m)
	m, _ = u.up.Forward(m)

	d, c := u.dec.Forward(tensor.ConcatCols(m, skip))
	tr.dec = c
	d, tr.decAct = u.act.Forward(d)
	out, c := u.out.Forward(d)
	tr.out = c
	return out, tr
}

func (u *UNet) gradSlices(grads []float64) [][][]float64 {
	out := make([][][]float64, 0, slotOut+1)
	k := 0
	for _, l := range u.trainable() {
		var s [][]float64
		for range l.Params() {
			s = append(s, grads[u.offsets[k]:u.offsets[k]+u.params[k].Len()])
			k++
		}
		out = append(out, s)
	}
	return out
}

// Backward accumulates parameter gradients of dOut into grads, which must be
// aligned with Weights. It returns the gradient with respect to the image input.
func (u *UNet) Backward(c layer.Cache, dOut *tensor.Tensor, grads []float64) *tensor.Tensor {
	tr := c.(*trace)
	if len(grads) != len(u.weights) {
		panic(fmt.Sprintf("unet: gradient length %d, want %d", len(grads), len(u.weights)))
	}
	g := u.gradSlices(grads)
	b, pixels := u.cfg.Base, u.pixels()

	d := u.out.Backward(tr.out, dOut, g[slotOut])
	d = u.act.Backward(tr.decAct, d, nil)
	d = u.dec.Backward(tr.dec, d, g[slotDec])
	split := d.SplitCols(2*b*pixels, b*pixels)

	m := u.up.Backward(nil, split[0], nil)
	m = u.act.Backward(tr.mid2Act, m, nil)
	m = u.mid2.Backward(tr.mid2, m, g[slotMid2])
	m = u.act.Backward(tr.mid1Act, m, nil)
	m = u.mid1.Backward(tr.mid1, m, g[slotMid1])
	skip := split[1].AddScaled(1, u.down.Backward(nil, m, nil))

	a := u.act.Backward(tr.inAct, skip, nil)
	dx := u.in.Backward(tr.in, a, g[slotIn])

	h := u.timeOut.Backward(tr.timeOut, sumChannels(a, b, pixels), g[slotTimeOut])
	h = u.act.Backward(tr.timeAct, h, nil)
	u.timeIn.Backward(tr.timeIn, h, g[slotTimeIn])
	return dx
}

// JVP computes the directional derivative of the output of the Forward call that
// produced c along the input tangent (dx, 0, dtimes...). A nil dx means zero.
func (u *UNet) JVP(c layer.Cache, dx *tensor.Tensor, dtimes ...[]float64) *tensor.Tensor {
	tr := c.(*trace)
	if len(dtimes) != len(tr.embeds) {
		panic(fmt.Sprintf("unet: got %d time tangents, want %d", len(dtimes), len(tr.embeds)))
	}
	if dx == nil {
		dx = tensor.Zeros(tr.rows, u.DimIn())
	}
	var parts []*tensor.Tensor
	if u.cfg.DimCond > 0 {
		parts = append(parts, tensor.Zeros(tr.rows, u.cfg.DimCond))
	}
	for i, dt := range dtimes {
		parts = append(parts, u.embed.JVP(tr.embeds[i], tensor.Column(dt)))
	}
	h := u.timeIn.JVP(tr.timeIn, tensor.ConcatCols(parts...))
	h = u.act.JVP(tr.timeAct, h)
	shift := u.timeOut.JVP(tr.timeOut, h)

	a := u.in.JVP(tr.in, dx)
	addChannels(a, shift, u.pixels())
	skip := u.act.JVP(tr.inAct, a)

	m := u.down.JVP(nil, skip)
	m = u.act.JVP(tr.mid1Act, u.mid1.JVP(tr.mid1, m))
	m = u.act.JVP(tr.mid2Act, u.mid2.JVP(tr.mid2, m))
	m = u.up.JVP(nil, m)

	d := u.act.JVP(tr.decAct, u.dec.JVP(tr.dec, tensor.ConcatCols(m, skip)))
	return u.out.JVP(tr.out, d)
}

// String describes the layer stack.
func (u *UNet) String() string {
	names := []string{u.embed.Name(), u.in.Name(), u.down.Name(), u.mid1.Name(), u.mid2.Name(), u.up.Name(), u.dec.Name(), u.out.Name()}
	return fmt.Sprintf("UNet[%s] (%d params)", strings.Join(names, " -> "), len(u.weights))
}
