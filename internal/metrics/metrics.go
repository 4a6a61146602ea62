// Package metrics exposes Prometheus collectors for searches, extractions and upstream calls.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Slot outcomes.
const (
	SlotOK     = "ok"
	SlotFailed = "failed"
)

// Cache lookup results.
const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheError = "error"
)

// Collector owns a private registry so tests and multiple servers never collide.
// All record methods are safe on a nil receiver.
type Collector struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	upstreamRequests *prometheus.CounterVec
	upstreamDuration *prometheus.HistogramVec

	slots        *prometheus.CounterVec
	partsSkipped prometheus.Counter
	extractions  *prometheus.CounterVec
	cacheLookups *prometheus.CounterVec
	breakerState *prometheus.GaugeVec
	costUSD      *prometheus.CounterVec
}

// New creates a Collector whose metric names are prefixed with namespace.
func New(namespace string) *Collector {
	c := &Collector{registry: prometheus.NewRegistry()}

	c.httpRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "HTTP requests by route and status.",
	}, []string{"method", "route", "status"})

	c.httpDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 20, 30, 60},
	}, []string{"method", "route"})

	c.upstreamRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "upstream_requests_total",
		Help:      "Upstream API calls by outcome.",
	}, []string{"upstream", "outcome"})

	c.upstreamDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "upstream_request_duration_seconds",
		Help:      "Upstream API call latency.",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
	}, []string{"upstream"})

	c.slots = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "search_slots_total",
		Help:      "Search fan-out slots by outcome.",
	}, []string{"outcome"})

	c.partsSkipped = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "search_parts_skipped_total",
		Help:      "Part numbers dropped because no slot answered.",
	})

	c.extractions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "document_extractions_total",
		Help:      "Document extractions by strategy and outcome.",
	}, []string{"strategy", "outcome"})

	c.cacheLookups = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_lookups_total",
		Help:      "Response cache lookups by result.",
	}, []string{"result"})

	c.breakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "circuit_breaker_state",
		Help:      "Circuit breaker position (0 closed, 1 open, 2 half-open).",
	}, []string{"upstream"})

	c.costUSD = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "estimated_cost_usd_total",
		Help:      "Estimated upstream spend in USD.",
	}, []string{"upstream"})

	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.httpRequests, c.httpDuration,
		c.upstreamRequests, c.upstreamDuration,
		c.slots, c.partsSkipped, c.extractions,
		c.cacheLookups, c.breakerState, c.costUSD,
	)
	return c
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Registry exposes the underlying registry.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

func (c *Collector) ObserveHTTP(method, route string, status int, d time.Duration) {
	if c == nil {
		return
	}
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func (c *Collector) ObserveUpstream(upstream string, err error, d time.Duration) {
	if c == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	c.upstreamRequests.WithLabelValues(upstream, outcome).Inc()
	c.upstreamDuration.WithLabelValues(upstream).Observe(d.Seconds())
}

func (c *Collector) Slot(outcome string) {
	if c == nil {
		return
	}
	c.slots.WithLabelValues(outcome).Inc()
}

func (c *Collector) PartSkipped() {
	if c == nil {
		return
	}
	c.partsSkipped.Inc()
}

func (c *Collector) Extraction(strategy string, ok bool) {
	if c == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "error"
	}
	c.extractions.WithLabelValues(strategy, outcome).Inc()
}

func (c *Collector) CacheLookup(result string) {
	if c == nil {
		return
	}
	c.cacheLookups.WithLabelValues(result).Inc()
}

func (c *Collector) BreakerState(upstream string, state int) {
	if c == nil {
		return
	}
	c.breakerState.WithLabelValues(upstream).Set(float64(state))
}

func (c *Collector) Cost(upstream string, usd float64) {
	if c == nil || usd <= 0 {
		return
	}
	c.costUSD.WithLabelValues(upstream).Add(usd)
}
