package ode

// tableau describes an explicit Runge-Kutta method.
type tableau struct {
	name string
	c    []float64
	a    [][]float64
	b    []float64
}

var (
	euler = tableau{
		name: "euler",
		c:    []float64{0},
		a:    [][]float64{{}},
		b:    []float64{1},
	}
	midpoint = tableau{
		name: "midpoint",
		c:    []float64{0, 0.5},
		a:    [][]float64{{}, {0.5}},
		b:    []float64{0, 1},
	}
	rk4 = tableau{
		name: "rk4",
		c:    []float64{0, 0.5, 0.5, 1},
		a:    [][]float64{{}, {0.5}, {0, 0.5}, {0, 0, 1}},
		b:    []float64{1. / 6, 1. / 3, 1. / 3, 1. / 6},
	}
)

// Euler is the first order forward Euler method.
type Euler struct{}

// Midpoint is the second order explicit midpoint method.
type Midpoint struct{}

// RK4 is the classic fourth order Runge-Kutta method.
type RK4 struct{}

// Solve takes one Euler step per time interval.
func (Euler) Solve(f Func, y0, times []float64, observe Observer) ([]float64, error) {
	return euler.solve(f, y0, times, observe)
}

// Name returns "euler".
func (Euler) Name() string { return euler.name }

// Solve takes one midpoint step per time interval.
func (Midpoint) Solve(f Func, y0, times []float64, observe Observer) ([]float64, error) {
	return midpoint.solve(f, y0, times, observe)
}

// Name returns "midpoint".
func (Midpoint) Name() string { return midpoint.name }

// Solve takes one RK4 step per time interval.
func (RK4) Solve(f Func, y0, times []float64, observe Observer) ([]float64, error) {
	return rk4.solve(f, y0, times, observe)
}

// Name returns "rk4".
func (RK4) Name() string { return rk4.name }

func (tb tableau) solve(f Func, y0, times []float64, observe Observer) ([]float64, error) {
	if err := checkTimes(times); err != nil {
		return nil, err
	}
	n := len(y0)
	y := make([]float64, n)
	copy(y, y0)
	tmp := make([]float64, n)
	k := make([][]float64, len(tb.b))
	for i := range k {
		k[i] = make([]float64, n)
	}
	if observe != nil {
		observe(0, times[0], y)
	}
	for i := 1; i < len(times); i++ {
		t, h := times[i-1], times[i]-times[i-1]
		for s := range tb.b {
			axpy(tmp, y, h, tb.a[s], k)
			f(t+tb.c[s]*h, tmp, k[s])
		}
		axpy(y, y, h, tb.b, k)
		if !finite(y) {
			return y, ErrNotFinite
		}
		if observe != nil {
			observe(i, times[i], y)
		}
	}
	return y, nil
}
