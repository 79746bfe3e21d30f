package ode

import "math"

// Dormand-Prince 5(4) coefficients.
var (
	dpC = []float64{0, 1. / 5, 3. / 10, 4. / 5, 8. / 9, 1, 1}
	dpA = [][]float64{
		{},
		{1. / 5},
		{3. / 40, 9. / 40},
		{44. / 45, -56. / 15, 32. / 9},
		{19372. / 6561, -25360. / 2187, 64448. / 6561, -212. / 729},
		{9017. / 3168, -355. / 33, 46732. / 5247, 49. / 176, -5103. / 18656},
		{35. / 384, 0, 500. / 1113, 125. / 192, -2187. / 6784, 11. / 84},
	}
	dpB5 = []float64{35. / 384, 0, 500. / 1113, 125. / 192, -2187. / 6784, 11. / 84, 0}
	dpB4 = []float64{5179. / 57600, 0, 7571. / 16695, 393. / 640, -92097. / 339200, 187. / 2100, 1. / 40}
)

// Dopri5 is the adaptive Dormand-Prince 5(4) method with local error control.
// Zero fields take the defaults Atol=1e-5, Rtol=1e-5, MaxSteps=10000.
type Dopri5 struct {
	Atol, Rtol  float64
	MaxSteps    int
	InitialStep float64
}

// Name returns "dopri5".
func (Dopri5) Name() string { return "dopri5" }

func (d Dopri5) withDefaults() Dopri5 {
	if d.Atol <= 0 {
		d.Atol = 1e-5
	}
	if d.Rtol <= 0 {
		d.Rtol = 1e-5
	}
	if d.MaxSteps <= 0 {
		d.MaxSteps = 10000
	}
	return d
}

// Solve integrates adaptively through every time in times.
func (d Dopri5) Solve(f Func, y0, times []float64, observe Observer) ([]float64, error) {
	if err := checkTimes(times); err != nil {
		return nil, err
	}
	d = d.withDefaults()
	n := len(y0)
	y := make([]float64, n)
	copy(y, y0)
	ynew := make([]float64, n)
	tmp := make([]float64, n)
	k := make([][]float64, 7)
	for i := range k {
		k[i] = make([]float64, n)
	}
	if observe != nil {
		observe(0, times[0], y)
	}

	t := times[0]
	h := d.InitialStep
	if h <= 0 {
		h = 0.01 * math.Abs(times[len(times)-1]-times[0])
	}
	f(t, y, k[0])
	steps := 0

	for i := 1; i < len(times); i++ {
		end := times[i]
		dir := math.Copysign(1, end-t)
		for (end-t)*dir > 0 {
			if steps >= d.MaxSteps {
				return y, ErrStepBudget
			}
			steps++
			step := math.Min(math.Abs(h), math.Abs(end-t)) * dir

			for s := 1; s < 7; s++ {
				axpy(tmp, y, step, dpA[s], k)
				f(t+dpC[s]*step, tmp, k[s])
			}
			axpy(ynew, y, step, dpB5, k)

			var errSum float64
			for j := 0; j < n; j++ {
				var e float64
				for s := range dpB5 {
					e += (dpB5[s] - dpB4[s]) * k[s][j]
				}
				e *= step
				sc := d.Atol + d.Rtol*math.Max(math.Abs(y[j]), math.Abs(ynew[j]))
				errSum += (e / sc) * (e / sc)
			}
			errNorm := 0.0
			if n > 0 {
				errNorm = math.Sqrt(errSum / float64(n))
			}
			if math.IsNaN(errNorm) {
				return y, ErrNotFinite
			}

			factor := 10.0
			if errNorm > 0 {
				factor = math.Min(10, math.Max(0.2, 0.9*math.Pow(errNorm, -0.2)))
			}
			if errNorm <= 1 {
				t += step
				if math.Abs(end-t) < 1e-12*math.Max(1, math.Abs(end)) {
					t = end
				}
				copy(y, ynew)
				// first same as last
				copy(k[0], k[6])
			}
			h = math.Abs(step) * factor
		}
		if observe != nil {
			observe(i, times[i], y)
		}
	}
	return y, nil
}
