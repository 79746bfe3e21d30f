package tensor

import rand "math/rand/v2"

// NewRand creates a deterministic generator from a seed.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Randn draws a rows x cols tensor of normal noise with standard deviation std.
func Randn(rng *rand.Rand, rows, cols int, std float64) *Tensor {
	t := Zeros(rows, cols)
	for i := range t.Data {
		t.Data[i] = rng.NormFloat64() * std
	}
	return t
}

// Rand draws a rows x cols tensor uniform in [lo, hi).
func Rand(rng *rand.Rand, rows, cols int, lo, hi float64) *Tensor {
	t := Zeros(rows, cols)
	for i := range t.Data {
		t.Data[i] = lo + (hi-lo)*rng.Float64()
	}
	return t
}
