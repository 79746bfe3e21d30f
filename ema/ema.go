// Package ema tracks an exponential moving average of a weight vector
package ema

import "math"

import "github.com/pkg/errors"

// Config holds the averaging hyperparameters. Zero values take the defaults
// Beta=0.9999, UpdateEvery=10, InvGamma=1, Power=2/3.
type Config struct {
	Beta            float64 `json:"beta" yaml:"beta"`
	UpdateAfterStep int     `json:"update_after_step" yaml:"update_after_step"`
	UpdateEvery     int     `json:"update_every" yaml:"update_every"`
	InvGamma        float64 `json:"inv_gamma" yaml:"inv_gamma"`
	Power           float64 `json:"power" yaml:"power"`
	MinValue        float64 `json:"min_value" yaml:"min_value"`
	NoWarmup        bool    `json:"no_warmup" yaml:"no_warmup"` // always decay with Beta
}

// WithDefaults fills zero values.
func (c Config) WithDefaults() Config {
	if c.Beta == 0 {
		c.Beta = 0.9999
	}
	if c.UpdateEvery <= 0 {
		c.UpdateEvery = 10
	}
	if c.UpdateAfterStep < 0 {
		c.UpdateAfterStep = 0
	}
	if c.InvGamma == 0 {
		c.InvGamma = 1
	}
	if c.Power == 0 {
		c.Power = 2. / 3.
	}
	return c
}

// EMA keeps a shadow copy of online weights.
//
// Until UpdateAfterStep the shadow copies the online weights verbatim. After
// that, every UpdateEvery steps
//
//	shadow = decay·shadow + (1-decay)·online
//	decay  = clamp(1 - (1 + epoch/InvGamma)^-Power, MinValue, Beta)
type EMA struct {
	cfg    Config
	shadow []float64
	step   int
	decay  float64
}

// State is the serializable EMA state.
type State struct {
	Step   int       `json:"step"`
	Decay  float64   `json:"decay,omitempty"`
	Shadow []float64 `json:"shadow"`
}

// New creates an EMA initialized to a copy of online.
func New(online []float64, cfg Config) *EMA {
	e := &EMA{cfg: cfg.WithDefaults(), shadow: make([]float64, len(online))}
	copy(e.shadow, online)
	return e
}

// CurrentDecay returns the decay the next averaging update would use.
func (e *EMA) CurrentDecay() float64 {
	if e.cfg.NoWarmup {
		return e.cfg.Beta
	}
	epoch := float64(e.step - e.cfg.UpdateAfterStep - 1)
	if epoch <= 0 {
		return 0
	}
	value := 1 - math.Pow(1+epoch/e.cfg.InvGamma, -e.cfg.Power)
	return math.Max(e.cfg.MinValue, math.Min(value, e.cfg.Beta))
}

// Update folds the online weights into the shadow copy.
func (e *EMA) Update(online []float64) {
	if len(online) != len(e.shadow) {
		panic("ema: online weight length does not match shadow")
	}
	step := e.step
	e.step++
	if step%e.cfg.UpdateEvery != 0 {
		return
	}
	if step <= e.cfg.UpdateAfterStep {
		copy(e.shadow, online)
		return
	}
	d := e.CurrentDecay()
	e.decay = d
	for i, w := range online {
		e.shadow[i] = d*e.shadow[i] + (1-d)*w
	}
}

// Attach makes the EMA follow online after every step of an optimizer
// supporting post step hooks.
func (e *EMA) Attach(opt interface{ AddPostStepHook(func(int)) }, online []float64) {
	opt.AddPostStepHook(func(int) {
		e.Update(online)
	})
}

// Shadow returns the live averaged weights.
func (e *EMA) Shadow() []float64 {
	return e.shadow
}

// Step returns the number of Update calls.
func (e *EMA) Step() int {
	return e.step
}

// LastDecay returns the decay applied by the most recent averaging update.
func (e *EMA) LastDecay() float64 {
	return e.decay
}

// State snapshots the EMA.
func (e *EMA) State() State {
	s := State{Step: e.step, Decay: e.decay, Shadow: make([]float64, len(e.shadow))}
	copy(s.Shadow, e.shadow)
	return s
}

// Restore loads a snapshot taken by State.
func (e *EMA) Restore(s State) error {
	if len(s.Shadow) != len(e.shadow) {
		return errors.Errorf("ema: restoring %d weights into %d", len(s.Shadow), len(e.shadow))
	}
	e.step = s.Step
	e.decay = s.Decay
	copy(e.shadow, s.Shadow)
	return nil
}
