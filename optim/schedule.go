package optim

import "math"

// Schedule maps an update step to a learning rate.
type Schedule interface {
	LR(step int) float64
}

// Constant keeps the learning rate fixed.
type Constant float64

// LR returns the constant rate.
func (c Constant) LR(int) float64 {
	return float64(c)
}

// Warmup ramps linearly from 0 to Rate over Steps, then stays constant.
type Warmup struct {
	Rate  float64
	Steps int
}

// LR returns the warmed up rate.
func (w Warmup) LR(step int) float64 {
	if w.Steps <= 0 || step >= w.Steps {
		return w.Rate
	}
	return w.Rate * float64(step+1) / float64(w.Steps)
}

// Cosine implements linear warmup followed by cosine annealing.
//
//	lr_t = lrMin + 0.5 · (lrMax - lrMin) · (1 + cos(π · t / T))
type Cosine struct {
	Max, Min      float64
	Total, Warmup int
}

// LR returns the annealed rate.
func (c Cosine) LR(step int) float64 {
	if c.Warmup > 0 && step < c.Warmup {
		return c.Max * float64(step+1) / float64(c.Warmup)
	}
	span := c.Total - c.Warmup
	if span <= 0 {
		return c.Max
	}
	t := float64(step-c.Warmup) / float64(span)
	if t > 1 {
		t = 1
	}
	return c.Min + 0.5*(c.Max-c.Min)*(1+math.Cos(math.Pi*t))
}
