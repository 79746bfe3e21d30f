// Package ode integrates ordinary differential equations dy/dt = f(t, y) over flat state vectors
package ode

import "fmt"
import "strings"

import "github.com/pkg/errors"

// Sentinel errors for the ode package.
var (
	ErrStepBudget = errors.New("ode: step budget exhausted before reaching end time")
	ErrTimes      = errors.New("ode: need at least two strictly monotone times")
	ErrNotFinite  = errors.New("ode: state became NaN or infinite")
)

// Func writes the derivative f(t, y) into dy. It must not retain y or dy.
type Func func(t float64, y, dy []float64)

// Observer is called with the state reached at times[i]. It must not retain y.
type Observer func(i int, t float64, y []float64)

// Solver integrates f from times[0] through every following time.
type Solver interface {
	Solve(f Func, y0 []float64, times []float64, observe Observer) ([]float64, error)
	Name() string
}

// ByName returns the solver registered under name: euler, midpoint, rk4 or dopri5.
func ByName(name string) (Solver, error) {
	switch strings.ToLower(name) {
	case "", "midpoint":
		return Midpoint{}, nil
	case "euler":
		return Euler{}, nil
	case "rk4":
		return RK4{}, nil
	case "dopri5", "adaptive":
		return Dopri5{}, nil
	}
	return nil, fmt.Errorf("ode: unknown method %q", name)
}

// Linspace returns n evenly spaced points from a to b inclusive.
func Linspace(a, b float64, n int) []float64 {
	if n <= 0 {
		return nil
	}
	if n == 1 {
		return []float64{a}
	}
	o := make([]float64, n)
	for i := range o {
		o[i] = a + (b-a)*float64(i)/float64(n-1)
	}
	o[n-1] = b
	return o
}

func checkTimes(times []float64) error {
	if len(times) < 2 {
		return ErrTimes
	}
	dir := times[1] - times[0]
	if dir == 0 {
		return ErrTimes
	}
	for i := 1; i < len(times); i++ {
		d := times[i] - times[i-1]
		if d == 0 || (d > 0) != (dir > 0) {
			return ErrTimes
		}
	}
	return nil
}

// axpy computes dst = y + h·Σ a[j]·k[j].
func axpy(dst, y []float64, h float64, a []float64, k [][]float64) {
	for i := range dst {
		acc := 0.0
		for j, aj := range a {
			if aj != 0 {
				acc += aj * k[j][i]
			}
		}
		dst[i] = y[i] + h*acc
	}
}

func finite(y []float64) bool {
	for _, v := range y {
		if v-v != 0 {
			return false
		}
	}
	return true
}
