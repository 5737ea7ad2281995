// Package metrics exposes the query core's telemetry, cache and breaker state
// to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/zatekoja/shopdiscovery/internal/cache"
	"github.com/zatekoja/shopdiscovery/internal/resilience"
	"github.com/zatekoja/shopdiscovery/internal/telemetry"
)

const namespace = "shopcore"

// ReportSource lists per-service telemetry.
type ReportSource interface {
	Reports() []telemetry.Metrics
}

// CacheSource lists cache pool counters.
type CacheSource interface {
	AllStats() []cache.Stats
}

// BreakerSource lists circuit breaker states.
type BreakerSource interface {
	Breakers() []resilience.BreakerState
}

// Collector reads its sources on every scrape. Any source may be nil.
type Collector struct {
	reports  ReportSource
	caches   CacheSource
	breakers BreakerSource

	requests      *prometheus.Desc
	errors        *prometheus.Desc
	latencyAvg    *prometheus.Desc
	latencyMax    *prometheus.Desc
	serviceHits   *prometheus.Desc
	serviceMisses *prometheus.Desc

	poolHits      *prometheus.Desc
	poolMisses    *prometheus.Desc
	poolEvictions *prometheus.Desc
	poolExpired   *prometheus.Desc
	poolSize      *prometheus.Desc
	poolCapacity  *prometheus.Desc

	breakerState    *prometheus.Desc
	breakerFailures *prometheus.Desc
}

// NewCollector creates a collector over the given sources.
func NewCollector(reports ReportSource, caches CacheSource, breakers BreakerSource) *Collector {
	service := []string{"service"}
	pool := []string{"pool"}
	dependency := []string{"dependency"}

	return &Collector{
		reports:  reports,
		caches:   caches,
		breakers: breakers,

		requests:      prometheus.NewDesc(prometheus.BuildFQName(namespace, "service", "requests_total"), "Timed calls per service.", service, nil),
		errors:        prometheus.NewDesc(prometheus.BuildFQName(namespace, "service", "errors_total"), "Failed calls per service.", service, nil),
		latencyAvg:    prometheus.NewDesc(prometheus.BuildFQName(namespace, "service", "latency_avg_seconds"), "Average call latency per service.", service, nil),
		latencyMax:    prometheus.NewDesc(prometheus.BuildFQName(namespace, "service", "latency_max_seconds"), "Slowest call latency per service.", service, nil),
		serviceHits:   prometheus.NewDesc(prometheus.BuildFQName(namespace, "service", "cache_hits_total"), "Calls served from cache per service.", service, nil),
		serviceMisses: prometheus.NewDesc(prometheus.BuildFQName(namespace, "service", "cache_misses_total"), "Calls that missed the cache per service.", service, nil),

		poolHits:      prometheus.NewDesc(prometheus.BuildFQName(namespace, "cache_pool", "hits_total"), "Cache pool hits.", pool, nil),
		poolMisses:    prometheus.NewDesc(prometheus.BuildFQName(namespace, "cache_pool", "misses_total"), "Cache pool misses.", pool, nil),
		poolEvictions: prometheus.NewDesc(prometheus.BuildFQName(namespace, "cache_pool", "evictions_total"), "Entries evicted for capacity.", pool, nil),
		poolExpired:   prometheus.NewDesc(prometheus.BuildFQName(namespace, "cache_pool", "expired_total"), "Entries removed after their TTL.", pool, nil),
		poolSize:      prometheus.NewDesc(prometheus.BuildFQName(namespace, "cache_pool", "size"), "Entries currently stored.", pool, nil),
		poolCapacity:  prometheus.NewDesc(prometheus.BuildFQName(namespace, "cache_pool", "capacity"), "Maximum entries per pool.", pool, nil),

		breakerState:    prometheus.NewDesc(prometheus.BuildFQName(namespace, "circuit_breaker", "state"), "Breaker state per dependency (0 closed, 1 half-open, 2 open).", dependency, nil),
		breakerFailures: prometheus.NewDesc(prometheus.BuildFQName(namespace, "circuit_breaker", "consecutive_failures"), "Consecutive failures per dependency.", dependency, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.requests, c.errors, c.latencyAvg, c.latencyMax, c.serviceHits, c.serviceMisses,
		c.poolHits, c.poolMisses, c.poolEvictions, c.poolExpired, c.poolSize, c.poolCapacity,
		c.breakerState, c.breakerFailures,
	} {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c.reports != nil {
		for _, m := range c.reports.Reports() {
			ch <- prometheus.MustNewConstMetric(c.requests, prometheus.CounterValue, float64(m.Count), m.Service)
			ch <- prometheus.MustNewConstMetric(c.errors, prometheus.CounterValue, float64(m.Errors), m.Service)
			ch <- prometheus.MustNewConstMetric(c.latencyAvg, prometheus.GaugeValue, m.AvgLatency.Seconds(), m.Service)
			ch <- prometheus.MustNewConstMetric(c.latencyMax, prometheus.GaugeValue, m.MaxLatency.Seconds(), m.Service)
			ch <- prometheus.MustNewConstMetric(c.serviceHits, prometheus.CounterValue, float64(m.CacheHits), m.Service)
			ch <- prometheus.MustNewConstMetric(c.serviceMisses, prometheus.CounterValue, float64(m.CacheMisses), m.Service)
		}
	}

	if c.caches != nil {
		for _, s := range c.caches.AllStats() {
			ch <- prometheus.MustNewConstMetric(c.poolHits, prometheus.CounterValue, float64(s.Hits), s.Name)
			ch <- prometheus.MustNewConstMetric(c.poolMisses, prometheus.CounterValue, float64(s.Misses), s.Name)
			ch <- prometheus.MustNewConstMetric(c.poolEvictions, prometheus.CounterValue, float64(s.Evictions), s.Name)
			ch <- prometheus.MustNewConstMetric(c.poolExpired, prometheus.CounterValue, float64(s.Expired), s.Name)
			ch <- prometheus.MustNewConstMetric(c.poolSize, prometheus.GaugeValue, float64(s.Size), s.Name)
			ch <- prometheus.MustNewConstMetric(c.poolCapacity, prometheus.GaugeValue, float64(s.Capacity), s.Name)
		}
	}

	if c.breakers != nil {
		for _, b := range c.breakers.Breakers() {
			ch <- prometheus.MustNewConstMetric(c.breakerState, prometheus.GaugeValue, stateValue(b.State), b.Name)
			ch <- prometheus.MustNewConstMetric(c.breakerFailures, prometheus.GaugeValue, float64(b.ConsecutiveFailures), b.Name)
		}
	}
}

func stateValue(s resilience.State) float64 {
	switch s {
	case resilience.StateHalfOpen:
		return 1
	case resilience.StateOpen:
		return 2
	default:
		return 0
	}
}

// Register attaches collectors to the supplied Prometheus registerer,
// ignoring ones that are already registered.
func Register(reg prometheus.Registerer, collectors ...prometheus.Collector) error {
	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}
