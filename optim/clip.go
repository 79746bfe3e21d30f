package optim

import "math"

import "gonum.org/v1/gonum/floats"

// ClipGradNorm rescales grads so their L2 norm is at most maxNorm and returns
// the norm before clipping. A non-positive maxNorm only measures.
func ClipGradNorm(grads []float64, maxNorm float64) float64 {
	norm := floats.Norm(grads, 2)
	if maxNorm > 0 && norm > maxNorm && !math.IsInf(norm, 0) {
		floats.Scale(maxNorm/(norm+1e-6), grads)
	}
	return norm
}
