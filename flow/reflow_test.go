package flow

import "testing"

import "github.com/stretchr/testify/assert"
import "github.com/stretchr/testify/require"

import "github.com/neurlang/rectifiedflow/tensor"

func TestReflowPairs(t *testing.T) {
	source := &constant{row: []float64{1, 2}}
	srcFlow := DefaultRectified(2)
	srcFlow.Method = "euler"
	r := NewReflow(source, srcFlow, DefaultRectified(2))
	r.Steps = 3

	noise, data, err := r.Pairs(5, nil, tensor.NewRand(1))
	require.NoError(t, err)
	require.Equal(t, 5, data.Rows)
	for i := 0; i < 5; i++ {
		assert.InDelta(t, noise.Row(i)[0]+1, data.Row(i)[0], 1e-12)
		assert.InDelta(t, noise.Row(i)[1]+2, data.Row(i)[1], 1e-12)
	}
}

func TestReflowLoss(t *testing.T) {
	source := &constant{row: []float64{1, 2}}
	r := NewReflow(source, DefaultRectified(2), DefaultRectified(2))
	net := smallNet(1)

	br, err := r.Loss(net, Batch{Data: tensor.Zeros(4, 2), Rng: tensor.NewRand(2)}, net.NewGrads())
	require.NoError(t, err)
	assert.Equal(t, 4, br.Rows)
	assert.Greater(t, br.Total, 0.0)

	require.NoError(t, r.Precompute(16, nil, tensor.NewRand(3)))
	assert.Equal(t, 16, r.Pooled())
	grads := net.NewGrads()
	br, err = r.Loss(net, Batch{Data: tensor.Zeros(8, 2), Rng: tensor.NewRand(4)}, grads)
	require.NoError(t, err)
	assert.Equal(t, 8, br.Rows)
	assert.NotEqual(t, make([]float64, len(grads)), grads)
	assert.Equal(t, 1, r.TimeInputs())
}

func TestReflowBudget(t *testing.T) {
	r := NewReflow(&constant{row: []float64{0}}, DefaultRectified(1), DefaultRectified(1))
	r.MemoryFraction = 1e-15
	_, _, err := r.Pairs(1000, nil, tensor.NewRand(1))
	assert.ErrorIs(t, err, ErrPairBudget)
	assert.Equal(t, uint64(16000), PairBytes(1000, 1))
}
