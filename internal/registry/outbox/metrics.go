package outbox

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the outbox relay.
type Metrics struct {
	PendingDepth    prometheus.Gauge
	PublishedTotal  prometheus.Counter
	PublishFailures prometheus.Counter
	PublishDuration prometheus.Histogram
	BatchSize       prometheus.Histogram
	PollDuration    prometheus.Histogram
	BreakerOpen     prometheus.Gauge
}

// NewMetrics registers the outbox metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		PendingDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "credreg_outbox_pending_total",
			Help: "Current number of registry events not yet relayed",
		}),
		PublishedTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "credreg_outbox_published_total",
			Help: "Total number of registry events relayed to Kafka",
		}),
		PublishFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "credreg_outbox_publish_failures_total",
			Help: "Total number of failed fetch or publish attempts",
		}),
		PublishDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "credreg_outbox_publish_duration_seconds",
			Help:    "Time taken to publish one event",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		BatchSize: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "credreg_outbox_batch_size",
			Help:    "Number of events fetched per poll",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		}),
		PollDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "credreg_outbox_poll_duration_seconds",
			Help:    "Time taken for each poll cycle",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		BreakerOpen: f.NewGauge(prometheus.GaugeOpts{
			Name: "credreg_outbox_breaker_open",
			Help: "1 while the relay is paused after repeated publish failures",
		}),
	}
}
