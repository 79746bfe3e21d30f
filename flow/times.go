package flow

import "fmt"
import "math"
import rand "math/rand/v2"

// TimeSampler draws training times in [0, 1].
type TimeSampler interface {
	Sample(rng *rand.Rand, n int) []float64
	Name() string
}

// Uniform draws t ~ U[0, 1).
type Uniform struct{}

// Sample draws n times.
func (Uniform) Sample(rng *rand.Rand, n int) []float64 {
	o := make([]float64, n)
	for i := range o {
		o[i] = rng.Float64()
	}
	return o
}

// Name describes the sampler.
func (Uniform) Name() string { return "uniform" }

// Cosmap warps uniform times with t = 1 - 1/(tan(πu/2) + 1), spending more
// samples near the middle of the path.
type Cosmap struct{}

// Sample draws n times.
func (Cosmap) Sample(rng *rand.Rand, n int) []float64 {
	o := make([]float64, n)
	for i := range o {
		o[i] = cosmap(rng.Float64())
	}
	return o
}

func cosmap(u float64) float64 {
	return 1 - 1/(math.Tan(math.Pi/2*u)+1)
}

// Name describes the sampler.
func (Cosmap) Name() string { return "cosmap" }

// LogitNormal draws t = sigmoid(n) with n ~ N(Mean, Std²).
type LogitNormal struct {
	Mean float64
	Std  float64
}

// DefaultLogitNormal is the mean flow time distribution.
var DefaultLogitNormal = LogitNormal{Mean: -0.4, Std: 1}

// Sample draws n times.
func (l LogitNormal) Sample(rng *rand.Rand, n int) []float64 {
	o := make([]float64, n)
	for i := range o {
		o[i] = 1 / (1 + math.Exp(-(l.Mean + l.Std*rng.NormFloat64())))
	}
	return o
}

// Name describes the sampler.
func (l LogitNormal) Name() string {
	return fmt.Sprintf("logit_normal(%g,%g)", l.Mean, l.Std)
}

// SamplerByName maps a configuration name to a sampler.
func SamplerByName(name string) (TimeSampler, error) {
	switch name {
	case "", "uniform":
		return Uniform{}, nil
	case "cosmap":
		return Cosmap{}, nil
	case "logit_normal", "lognorm":
		return DefaultLogitNormal, nil
	}
	return nil, fmt.Errorf("flow: unknown time sampler %q", name)
}
