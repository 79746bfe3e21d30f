package optim

import "math"

import "github.com/pkg/errors"

// Sentinel errors for the optim package.
var (
	ErrInvalidLR    = errors.New("optim: learning rate must be positive")
	ErrInvalidBetas = errors.New("optim: betas must be in [0, 1)")
	ErrStateShape   = errors.New("optim: state does not match parameter count")
)

// AdamConfig holds Adam hyperparameters. Zero values take the usual defaults
// β1=0.9, β2=0.999, ε=1e-8.
type AdamConfig struct {
	LR          float64 `json:"lr" yaml:"lr"`
	Beta1       float64 `json:"beta1" yaml:"beta1"`
	Beta2       float64 `json:"beta2" yaml:"beta2"`
	Eps         float64 `json:"eps" yaml:"eps"`
	WeightDecay float64 `json:"weight_decay" yaml:"weight_decay"`
	Decoupled   bool    `json:"decoupled" yaml:"decoupled"` // AdamW style decay
}

// Adam implements the Adam optimizer with bias correction.
//
// Update rule:
//
//	m[i] = β1·m[i] + (1-β1)·g[i]
//	v[i] = β2·v[i] + (1-β2)·g[i]²
//	m̂[i] = m[i] / (1 - β1^t)
//	v̂[i] = v[i] / (1 - β2^t)
//	w[i] = w[i] - lr · m̂[i] / (√v̂[i] + ε)
type Adam struct {
	cfg   AdamConfig
	m, v  []float64
	step  int
	hooks []func(step int)
}

// AdamState is the serializable optimizer state.
type AdamState struct {
	Step int       `json:"step"`
	LR   float64   `json:"lr"`
	M    []float64 `json:"m"`
	V    []float64 `json:"v"`
}

// NewAdam creates an Adam optimizer for n parameters.
func NewAdam(n int, cfg AdamConfig) (*Adam, error) {
	if cfg.LR <= 0 {
		return nil, ErrInvalidLR
	}
	if cfg.Beta1 == 0 {
		cfg.Beta1 = 0.9
	}
	if cfg.Beta2 == 0 {
		cfg.Beta2 = 0.999
	}
	if cfg.Eps == 0 {
		cfg.Eps = 1e-8
	}
	if cfg.Beta1 < 0 || cfg.Beta1 >= 1 || cfg.Beta2 < 0 || cfg.Beta2 >= 1 {
		return nil, ErrInvalidBetas
	}
	return &Adam{
		cfg: cfg,
		m:   make([]float64, n),
		v:   make([]float64, n),
	}, nil
}

// Step applies one update to params in place using grads.
func (a *Adam) Step(params, grads []float64) {
	if len(params) != len(a.m) || len(grads) != len(a.m) {
		panic("optim: parameter or gradient length does not match optimizer")
	}
	a.step++
	c := a.cfg
	bc1 := 1 - math.Pow(c.Beta1, float64(a.step))
	bc2 := 1 - math.Pow(c.Beta2, float64(a.step))

	for i, g := range grads {
		if c.WeightDecay != 0 {
			if c.Decoupled {
				params[i] -= c.LR * c.WeightDecay * params[i]
			} else {
				g += c.WeightDecay * params[i]
			}
		}
		a.m[i] = c.Beta1*a.m[i] + (1-c.Beta1)*g
		a.v[i] = c.Beta2*a.v[i] + (1-c.Beta2)*g*g

		mHat := a.m[i] / bc1
		vHat := a.v[i] / bc2

		params[i] -= c.LR * mHat / (math.Sqrt(vHat) + c.Eps)
	}
	for _, h := range a.hooks {
		h(a.step)
	}
}

// AddPostStepHook registers fn to run after every Step.
func (a *Adam) AddPostStepHook(fn func(step int)) {
	a.hooks = append(a.hooks, fn)
}

// LR returns the current learning rate.
func (a *Adam) LR() float64 {
	return a.cfg.LR
}

// SetLR updates the learning rate, used by schedules.
func (a *Adam) SetLR(lr float64) {
	a.cfg.LR = lr
}

// Steps returns the number of updates applied.
func (a *Adam) Steps() int {
	return a.step
}

// State snapshots the optimizer moments.
func (a *Adam) State() AdamState {
	s := AdamState{Step: a.step, LR: a.cfg.LR, M: make([]float64, len(a.m)), V: make([]float64, len(a.v))}
	copy(s.M, a.m)
	copy(s.V, a.v)
	return s
}

// Restore loads a snapshot taken by State.
func (a *Adam) Restore(s AdamState) error {
	if len(s.M) != len(a.m) || len(s.V) != len(a.v) {
		return ErrStateShape
	}
	a.step = s.Step
	if s.LR > 0 {
		a.cfg.LR = s.LR
	}
	copy(a.m, s.M)
	copy(a.v, s.V)
	return nil
}
