package ode

import "math"
import "testing"

import "github.com/stretchr/testify/assert"
import "github.com/stretchr/testify/require"

// dy/dt = y, y(0) = 1, so y(1) = e
func exponential(_ float64, y, dy []float64) {
	copy(dy, y)
}

// dy/dt = 2t, y(0) = 0, so y(1) = 1
func quadratic(t float64, _ []float64, dy []float64) {
	dy[0] = 2 * t
}

func TestFixedStepOrder(t *testing.T) {
	times := Linspace(0, 1, 21)
	for _, tc := range []struct {
		s   Solver
		tol float64
	}{
		{Euler{}, 0.1},
		{Midpoint{}, 2e-3},
		{RK4{}, 1e-6},
	} {
		y, err := tc.s.Solve(exponential, []float64{1}, times, nil)
		require.NoError(t, err)
		assert.InDelta(t, math.E, y[0], tc.tol, tc.s.Name())
	}
}

func TestMidpointExactOnLinearFlow(t *testing.T) {
	y, err := Midpoint{}.Solve(quadratic, []float64{0}, Linspace(0, 1, 5), nil)
	require.NoError(t, err)
	assert.InDelta(t, 1, y[0], 1e-12)
}

func TestDopri5(t *testing.T) {
	y, err := Dopri5{Atol: 1e-9, Rtol: 1e-9}.Solve(exponential, []float64{1, 2}, []float64{0, 0.5, 1}, nil)
	require.NoError(t, err)
	assert.InDelta(t, math.E, y[0], 1e-6)
	assert.InDelta(t, 2*math.E, y[1], 1e-6)
}

func TestDopri5Backward(t *testing.T) {
	y, err := Dopri5{}.Solve(exponential, []float64{math.E}, []float64{1, 0}, nil)
	require.NoError(t, err)
	assert.InDelta(t, 1, y[0], 1e-4)
}

func TestDopri5StepBudget(t *testing.T) {
	_, err := Dopri5{MaxSteps: 2, InitialStep: 1e-3}.Solve(exponential, []float64{1}, []float64{0, 1}, nil)
	assert.ErrorIs(t, err, ErrStepBudget)
}

func TestObserverSeesEveryTime(t *testing.T) {
	var seen []float64
	times := Linspace(0, 1, 4)
	_, err := RK4{}.Solve(quadratic, []float64{0}, times, func(i int, tt float64, y []float64) {
		assert.Equal(t, times[i], tt)
		seen = append(seen, y[0])
	})
	require.NoError(t, err)
	require.Len(t, seen, 4)
	for i, v := range seen {
		assert.InDelta(t, times[i]*times[i], v, 1e-12)
	}
}

func TestBadTimes(t *testing.T) {
	_, err := Euler{}.Solve(quadratic, []float64{0}, []float64{0}, nil)
	assert.ErrorIs(t, err, ErrTimes)
	_, err = Euler{}.Solve(quadratic, []float64{0}, []float64{0, 1, 0.5}, nil)
	assert.ErrorIs(t, err, ErrTimes)
}

func TestNotFinite(t *testing.T) {
	blowup := func(_ float64, y, dy []float64) { dy[0] = math.Inf(1) }
	_, err := Euler{}.Solve(blowup, []float64{0}, []float64{0, 1}, nil)
	assert.ErrorIs(t, err, ErrNotFinite)
}

func TestByName(t *testing.T) {
	for name, want := range map[string]string{"": "midpoint", "Euler": "euler", "rk4": "rk4", "dopri5": "dopri5"} {
		s, err := ByName(name)
		require.NoError(t, err)
		assert.Equal(t, want, s.Name())
	}
	_, err := ByName("leapfrog")
	assert.Error(t, err)
}

func TestLinspace(t *testing.T) {
	assert.Equal(t, []float64{0, 0.25, 0.5, 0.75, 1}, Linspace(0, 1, 5))
	assert.Equal(t, []float64{1, 0.5, 0}, Linspace(1, 0, 3))
	assert.Nil(t, Linspace(0, 1, 0))
}
