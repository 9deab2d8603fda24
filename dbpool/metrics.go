package dbpool

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is the monitoring surface's Prometheus collectors, following the
// gauge/counter split in a typical instrumentation package, renamed to
// this domain's vocabulary.
type Metrics struct {
	poolTaken         prometheus.Gauge
	poolCreatedTotal  prometheus.Counter
	cacheHitTotal     prometheus.Counter
	cacheEvictionTotal prometheus.Counter
}

func newMetrics(namespace string) *Metrics {
	return &Metrics{
		poolTaken: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pool_taken",
			Help:      "Number of pooled handles currently issued.",
		}),
		poolCreatedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pool_created_total",
			Help:      "Total number of raw connections created by the pool.",
		}),
		cacheHitTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hit_total",
			Help:      "Total number of statement cache hits.",
		}),
		cacheEvictionTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_eviction_total",
			Help:      "Total number of statement cache evictions.",
		}),
	}
}

func (m *Metrics) setPoolTaken(n int64)     { m.poolTaken.Set(float64(n)) }
func (m *Metrics) incPoolCreated()          { m.poolCreatedTotal.Inc() }
func (m *Metrics) incCacheHit()             { m.cacheHitTotal.Inc() }
func (m *Metrics) incCacheEviction()        { m.cacheEvictionTotal.Inc() }

// collectors lists every metric for bulk register/unregister.
func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{m.poolTaken, m.poolCreatedTotal, m.cacheHitTotal, m.cacheEvictionTotal}
}

// register registers the metrics with reg. Called once from Start.
func (m *Metrics) register(reg prometheus.Registerer) error {
	for _, c := range m.collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) unregister(reg prometheus.Registerer) {
	for _, c := range m.collectors() {
		reg.Unregister(c)
	}
}
