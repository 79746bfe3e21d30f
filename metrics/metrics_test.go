package metrics

import "net/http/httptest"
import "path/filepath"
import "strings"
import "testing"
import "time"

import "github.com/prometheus/client_golang/prometheus/testutil"
import "github.com/stretchr/testify/assert"
import "github.com/stretchr/testify/require"

func TestCollectorsObserve(t *testing.T) {
	c := NewCollectors("rectflow")
	c.Observe(Row{Step: 1, Loss: 0.5, MainLoss: 0.4, ConsistencyLoss: 0.1, GradNorm: 2, LR: 1e-3}, 0.9)
	c.Observe(Row{Step: 2, Loss: 0.25, MainLoss: 0.25, GradNorm: 1, LR: 1e-3}, 0.95)
	c.ObserveSampling(200 * time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.Steps))
	assert.Equal(t, 0.25, testutil.ToFloat64(c.Loss.WithLabelValues("total")))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.Loss.WithLabelValues("consistency")))
	assert.Equal(t, 0.95, testutil.ToFloat64(c.EMADecay))
	assert.Equal(t, 1, testutil.CollectAndCount(c.SampleSeconds))

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "rectflow_train_steps_total 2"), body)
	assert.True(t, strings.Contains(body, "rectflow_train_grad_norm 1"), body)
}

func TestHistoryRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.parquet")
	h, err := NewHistory(path)
	require.NoError(t, err)
	h.GroupSize = 3

	var want []Row
	for i := 0; i < 7; i++ {
		r := Row{Step: int64(i + 1), Loss: 1 / float64(i+1), MainLoss: 0.5, GradNorm: float64(i), LR: 1e-3, Seconds: 0.01}
		want = append(want, r)
		require.NoError(t, h.Append(r))
	}
	require.NoError(t, h.Close())

	got, err := ReadHistory(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
