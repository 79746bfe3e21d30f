package ema

import "testing"

import "github.com/stretchr/testify/assert"
import "github.com/stretchr/testify/require"

import "github.com/neurlang/rectifiedflow/optim"

func TestCopiesBeforeUpdateAfterStep(t *testing.T) {
	online := []float64{0}
	e := New(online, Config{Beta: 0.5, UpdateAfterStep: 3, UpdateEvery: 1})
	for i := 1; i <= 4; i++ {
		online[0] = float64(i)
		e.Update(online)
		assert.Equal(t, float64(i), e.Shadow()[0], "step %d", i)
	}
	online[0] = 100
	e.Update(online)
	assert.Less(t, e.Shadow()[0], 100.0)
	assert.Greater(t, e.Shadow()[0], 4.0)
}

func TestNoWarmupUsesBeta(t *testing.T) {
	online := []float64{0}
	e := New(online, Config{Beta: 0.9, UpdateEvery: 1, NoWarmup: true})
	e.Update(online) // step 0 copies
	online[0] = 10
	e.Update(online)
	assert.InDelta(t, 1.0, e.Shadow()[0], 1e-12)
	assert.InDelta(t, 0.9, e.LastDecay(), 1e-12)
}

func TestUpdateEverySkips(t *testing.T) {
	online := []float64{1}
	e := New(online, Config{Beta: 0.9, UpdateEvery: 5, NoWarmup: true})
	e.Update(online)
	online[0] = 50
	for i := 0; i < 4; i++ {
		e.Update(online)
	}
	assert.Equal(t, 1.0, e.Shadow()[0])
	e.Update(online)
	assert.InDelta(t, 0.9*1+0.1*50, e.Shadow()[0], 1e-12)
}

func TestWarmupDecayBoundedByBeta(t *testing.T) {
	e := New([]float64{0}, Config{Beta: 0.99, UpdateAfterStep: 0, UpdateEvery: 1})
	prev := -1.0
	for i := 0; i < 2000; i++ {
		d := e.CurrentDecay()
		assert.GreaterOrEqual(t, d, prev)
		assert.LessOrEqual(t, d, 0.99)
		prev = d
		e.Update([]float64{1})
	}
	assert.InDelta(t, 0.99, e.CurrentDecay(), 1e-12)
}

func TestAttachToOptimizer(t *testing.T) {
	w := []float64{1, 1}
	opt, err := optim.NewAdam(len(w), optim.AdamConfig{LR: 0.1})
	require.NoError(t, err)
	e := New(w, Config{Beta: 0.5, UpdateEvery: 1, NoWarmup: true})
	e.Attach(opt, w)
	opt.Step(w, []float64{1, 1})
	assert.Equal(t, 1, e.Step())
	assert.Equal(t, w, e.Shadow())
}

func TestStateRestore(t *testing.T) {
	e := New([]float64{1, 2}, Config{})
	e.Update([]float64{3, 4})
	f := New([]float64{0, 0}, Config{})
	require.NoError(t, f.Restore(e.State()))
	assert.Equal(t, e.Shadow(), f.Shadow())
	assert.Equal(t, e.Step(), f.Step())
	assert.Error(t, f.Restore(State{Shadow: []float64{1}}))
}

func TestRestoreKeepsLastDecay(t *testing.T) {
	online := []float64{0}
	e := New(online, Config{Beta: 0.75, UpdateEvery: 1, NoWarmup: true})
	e.Update(online)
	online[0] = 1
	e.Update(online)
	require.InDelta(t, 0.75, e.LastDecay(), 1e-12)

	f := New([]float64{0}, Config{Beta: 0.75, UpdateEvery: 1, NoWarmup: true})
	require.NoError(t, f.Restore(e.State()))
	assert.InDelta(t, 0.75, f.LastDecay(), 1e-12)
}
