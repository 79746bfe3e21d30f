// Package metrics exports training telemetry as prometheus metrics and as a
// parquet history file.
package metrics

import "context"
import "net/http"
import "time"

import "github.com/mongodb/grip"
import "github.com/mongodb/grip/message"
import "github.com/pkg/errors"
import "github.com/prometheus/client_golang/prometheus"
import "github.com/prometheus/client_golang/prometheus/promhttp"

// Collectors holds the training metrics on a private registry.
type Collectors struct {
	Steps         prometheus.Counter
	Loss          *prometheus.GaugeVec
	GradNorm      prometheus.Gauge
	LearningRate  prometheus.Gauge
	EMADecay      prometheus.Gauge
	SampleSeconds prometheus.Histogram

	registry *prometheus.Registry
}

// NewCollectors creates and registers the training metrics.
func NewCollectors(namespace string) *Collectors {
	c := &Collectors{
		Steps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "train_steps_total",
			Help:      "Optimizer steps taken.",
		}),
		Loss: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "train_loss",
			Help:      "Loss of the last training batch by component.",
		}, []string{"component"}),
		GradNorm: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "train_grad_norm",
			Help:      "Gradient norm before clipping.",
		}),
		LearningRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "train_learning_rate",
			Help:      "Current learning rate.",
		}),
		EMADecay: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ema_decay",
			Help:      "Decay of the last EMA update.",
		}),
		SampleSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sample_seconds",
			Help:      "Wall time of sampling runs.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
		registry: prometheus.NewRegistry(),
	}
	c.registry.MustRegister(c.Steps, c.Loss, c.GradNorm, c.LearningRate, c.EMADecay, c.SampleSeconds)
	return c
}

// Registry returns the registry holding the metrics.
func (c *Collectors) Registry() *prometheus.Registry {
	return c.registry
}

// Observe records one optimizer step.
func (c *Collectors) Observe(r Row, emaDecay float64) {
	c.Steps.Inc()
	c.Loss.WithLabelValues("total").Set(r.Loss)
	c.Loss.WithLabelValues("main").Set(r.MainLoss)
	c.Loss.WithLabelValues("consistency").Set(r.ConsistencyLoss)
	c.GradNorm.Set(r.GradNorm)
	c.LearningRate.Set(r.LR)
	c.EMADecay.Set(emaDecay)
}

// ObserveSampling records the duration of a sampling run.
func (c *Collectors) ObserveSampling(d time.Duration) {
	c.SampleSeconds.Observe(d.Seconds())
}

// Handler serves the registry in the prometheus text format.
func (c *Collectors) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is canceled.
func (c *Collectors) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		grip.Warning(message.WrapError(srv.Shutdown(sctx), message.Fields{
			"message": "shutting down metrics server",
			"addr":    addr,
		}))
	}()

	grip.Info(message.Fields{"message": "serving metrics", "addr": addr})
	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		<-done
		return nil
	}
	return errors.Wrapf(err, "serving metrics on %s", addr)
}
