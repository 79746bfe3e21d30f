package parallel

import "sync/atomic"
import "testing"

import "github.com/stretchr/testify/assert"

func TestForEachVisitsAll(t *testing.T) {
	var sum atomic.Int64
	ForEach(100, 7, func(i int) {
		sum.Add(int64(i))
	})
	assert.Equal(t, int64(4950), sum.Load())
}

func TestForEachEmpty(t *testing.T) {
	called := false
	ForEach(0, 4, func(int) { called = true })
	assert.False(t, called)
}

func TestChunks(t *testing.T) {
	for _, tc := range []struct {
		length, parts int
		want          []Span
	}{
		{10, 3, []Span{{0, 4}, {4, 7}, {7, 10}}},
		{2, 5, []Span{{0, 1}, {1, 2}}},
		{0, 5, nil},
		{4, 0, []Span{{0, 4}}},
	} {
		assert.Equal(t, tc.want, Chunks(tc.length, tc.parts))
	}
}

func TestForEachChunkCoversRange(t *testing.T) {
	seen := make([]int32, 33)
	ForEachChunk(len(seen), 4, func(_ int, s Span) {
		for i := s.From; i < s.To; i++ {
			atomic.AddInt32(&seen[i], 1)
		}
	})
	for i, v := range seen {
		assert.Equal(t, int32(1), v, "index %d", i)
	}
}

func TestThreadsPositive(t *testing.T) {
	assert.GreaterOrEqual(t, Threads(), 1)
	assert.Equal(t, 3, Resolve(3))
	assert.Equal(t, Threads(), Resolve(0))
}
