package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus holds the ambient counters/histograms exported for
// scraping, grounded on the teacher's internal/metrics/metrics.go
// promauto pattern. These are independent of the buffered/persisted
// rollups in collector.go — one is for a scraper, the other is the
// spec-mandated on-disk audit trail.
type Prometheus struct {
	QueryDuration  prometheus.Histogram
	PoolHits       prometheus.Counter
	PoolMisses     prometheus.Counter
	CacheHits      prometheus.Counter
	CacheMisses    prometheus.Counter
	MemoryBytes    prometheus.Gauge
	ActiveServers  prometheus.Gauge
	ActiveVTables  prometheus.Gauge
}

// NewPrometheus registers every metric against reg. Pass
// prometheus.NewRegistry() in tests to avoid collisions with the
// global default registry across parallel test packages.
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	factory := promauto.With(reg)
	return &Prometheus{
		QueryDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "mcpfed_query_duration_seconds",
			Help:    "Federated query execution time in seconds.",
			Buckets: prometheus.DefBuckets,
		}),
		PoolHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "mcpfed_pool_hits_total",
			Help: "Connection pool Get calls served by a reused client.",
		}),
		PoolMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "mcpfed_pool_misses_total",
			Help: "Connection pool Get calls that required a new connect.",
		}),
		CacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "mcpfed_cache_hits_total",
			Help: "Resource cache reads served from cache.",
		}),
		CacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "mcpfed_cache_misses_total",
			Help: "Resource cache reads that required a remote fetch.",
		}),
		MemoryBytes: factory.NewGauge(prometheus.GaugeOpts{
			Name: "mcpfed_memory_bytes",
			Help: "Most recently observed process memory usage in bytes.",
		}),
		ActiveServers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "mcpfed_active_servers",
			Help: "Number of currently attached MCP servers.",
		}),
		ActiveVTables: factory.NewGauge(prometheus.GaugeOpts{
			Name: "mcpfed_active_virtual_tables",
			Help: "Number of currently loaded virtual tables.",
		}),
	}
}

func (p *Prometheus) ObserveQuery(ms float64) {
	p.QueryDuration.Observe(ms / 1000.0)
}

func (p *Prometheus) ObservePoolAccess(hit bool) {
	if hit {
		p.PoolHits.Inc()
	} else {
		p.PoolMisses.Inc()
	}
}

func (p *Prometheus) ObserveCacheAccess(hit bool) {
	if hit {
		p.CacheHits.Inc()
	} else {
		p.CacheMisses.Inc()
	}
}

func (p *Prometheus) SetMemory(bytes uint64) {
	p.MemoryBytes.Set(float64(bytes))
}
