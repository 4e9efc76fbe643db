// Package metrics exposes Prometheus collectors for the sync engine:
// drains, replayed queue items, connectivity probes and the read cache.
//
// A nil *Collector is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/ferreteria/ordersync/internal/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Item results
const (
	ResultOK          = "ok"
	ResultRejected    = "rejected"
	ResultUnreachable = "unreachable"
	ResultUnresolved  = "unresolved"
	ResultLocal       = "local_error"
)

// Collector holds the engine's collectors on a private registry.
type Collector struct {
	registry *prometheus.Registry

	drains        *prometheus.CounterVec
	drainDuration prometheus.Histogram
	items         *prometheus.CounterVec
	deadLetters   prometheus.Counter
	queueDepth    prometheus.Gauge
	probes        *prometheus.CounterVec
	status        *prometheus.GaugeVec
	cache         *prometheus.CounterVec
}

// NewCollector creates and registers every collector under namespace
// ("ordersync" when empty).
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = "ordersync"
	}
	c := &Collector{registry: prometheus.NewRegistry()}

	c.drains = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "sync", Name: "drains_total",
		Help: "Queue drains by overall result",
	}, []string{"result"})
	c.drainDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace, Subsystem: "sync", Name: "drain_duration_seconds",
		Help:    "Time spent replaying the queue",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	})
	c.items = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "sync", Name: "items_total",
		Help: "Replayed queue items by entity, operation and result",
	}, []string{"entity", "op", "result"})
	c.deadLetters = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "sync", Name: "dead_letters_total",
		Help: "Queue items moved to the dead letter set",
	})
	c.queueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "sync", Name: "queue_depth",
		Help: "Pending queue items after the last drain",
	})
	c.probes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "connectivity", Name: "probes_total",
		Help: "Connectivity probes by result",
	}, []string{"result"})
	c.status = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "connectivity", Name: "status",
		Help: "1 for the current connection status, 0 otherwise",
	}, []string{"status"})
	c.cache = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "remote", Name: "cache_total",
		Help: "GET requests by cache outcome (hit, miss, shared)",
	}, []string{"result"})

	c.registry.MustRegister(c.drains, c.drainDuration, c.items, c.deadLetters,
		c.queueDepth, c.probes, c.status, c.cache)
	return c
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) RecordDrain(success bool, duration time.Duration) {
	if c == nil {
		return
	}
	result := ResultOK
	if !success {
		result = "failed"
	}
	c.drains.WithLabelValues(result).Inc()
	c.drainDuration.Observe(duration.Seconds())
}

func (c *Collector) RecordItem(entity models.EntityKind, op models.Operation, result string) {
	if c == nil {
		return
	}
	c.items.WithLabelValues(string(entity), string(op), result).Inc()
}

func (c *Collector) RecordDeadLetter() {
	if c == nil {
		return
	}
	c.deadLetters.Inc()
}

func (c *Collector) RecordQueueDepth(n int) {
	if c == nil {
		return
	}
	c.queueDepth.Set(float64(n))
}

func (c *Collector) RecordProbe(online bool) {
	if c == nil {
		return
	}
	if online {
		c.probes.WithLabelValues("online").Inc()
	} else {
		c.probes.WithLabelValues("offline").Inc()
	}
}

// RecordStatus sets the gauge of s to 1 and every other status to 0.
func (c *Collector) RecordStatus(s models.ConnectionStatus) {
	if c == nil {
		return
	}
	for _, st := range []models.ConnectionStatus{models.StatusOnline, models.StatusOffline, models.StatusChecking} {
		v := 0.0
		if st == s {
			v = 1
		}
		c.status.WithLabelValues(string(st)).Set(v)
	}
}

func (c *Collector) RecordCache(result string) {
	if c == nil {
		return
	}
	c.cache.WithLabelValues(result).Inc()
}
