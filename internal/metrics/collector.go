// Package metrics exposes claim and batch counters to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector records coordination metrics on its own registry
type Collector struct {
	registry *prometheus.Registry

	claimsTotal   *prometheus.CounterVec
	reapedTotal   prometheus.Counter
	groupsTotal   *prometheus.CounterVec
	groupDuration *prometheus.HistogramVec
	batchDuration prometheus.Histogram
}

// NewCollector creates a collector with metrics under namespace
func NewCollector(namespace string) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		claimsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "claims_total",
				Help:      "Claim attempts by result (won, lost)",
			},
			[]string{"result"},
		),
		reapedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reaped_claims_total",
			Help:      "Stale claims removed",
		}),
		groupsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "groups_total",
				Help:      "Task groups executed by final status",
			},
			[]string{"status"},
		),
		groupDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "group_duration_seconds",
				Help:      "Task group duration in seconds",
				Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 30, 45, 60},
			},
			[]string{"status"},
		),
		batchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_duration_seconds",
			Help:      "Batch duration in seconds",
			Buckets:   []float64{1, 5, 10, 20, 30, 45, 60, 120},
		}),
	}

	c.registry.MustRegister(c.claimsTotal, c.reapedTotal, c.groupsTotal, c.groupDuration, c.batchDuration)
	return c
}

// ClaimAttempt counts one claim attempt
func (c *Collector) ClaimAttempt(won bool) {
	result := "lost"
	if won {
		result = "won"
	}
	c.claimsTotal.WithLabelValues(result).Inc()
}

// Reaped counts reclaimed stale claims
func (c *Collector) Reaped(n int) {
	c.reapedTotal.Add(float64(n))
}

// GroupFinished records one task group outcome
func (c *Collector) GroupFinished(status string, d time.Duration) {
	c.groupsTotal.WithLabelValues(status).Inc()
	c.groupDuration.WithLabelValues(status).Observe(d.Seconds())
}

// BatchFinished records the duration of one batch
func (c *Collector) BatchFinished(d time.Duration) {
	c.batchDuration.Observe(d.Seconds())
}

// Registry returns the underlying registry
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the metrics in the Prometheus exposition format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
