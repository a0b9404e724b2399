package metrics

import (
	"sync"
	"time"

	"github.com/platformbuilds/mcp-federation-broker/internal/logger"
)

// Config bounds the collector's flush/persistence/SLO behaviour,
// mirroring spec §6 "Metrics" options.
type Config struct {
	LogsDir       string
	FlushInterval time.Duration
	MaxFileSize   int64
	RetentionDays int
}

func DefaultConfig() Config {
	return Config{
		LogsDir:       "./mcp-metrics",
		FlushInterval: 30 * time.Second,
		MaxFileSize:   10 * 1024 * 1024,
		RetentionDays: 7,
	}
}

const (
	recentQuerySampleWindow = 100
	sloQueryAvgMs           = 100.0
	sloMemoryBytes          = 4 * 1024 * 1024 * 1024
	sloMinAccesses          = 10
	sloPoolHitRatePct       = 80.0
	sloCacheHitRatePct      = 60.0
	slowQueryMs             = 1000.0
)

// Collector buffers samples per kind and periodically flushes them to
// persisted JSON rollups, emitting SLO warnings as thresholds breach.
type Collector struct {
	cfg Config
	log logger.Logger
	prom *Prometheus

	mu            sync.Mutex
	queries       []QuerySample
	memorySamples []MemorySample
	connSamples   []ConnectionSample
	cacheSamples  []CacheSample

	poolHits, poolMisses   int
	cacheHits, cacheMisses int

	stop chan struct{}
	done chan struct{}
}

func New(cfg Config, log logger.Logger, prom *Prometheus) *Collector {
	return &Collector{cfg: cfg, log: log, prom: prom}
}

// Start launches the periodic flush loop. Call once.
func (c *Collector) Start() {
	c.mu.Lock()
	if c.stop != nil {
		c.mu.Unlock()
		return
	}
	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	stop := c.stop
	done := c.done
	c.mu.Unlock()

	purgeOldFiles(c.cfg.LogsDir, c.cfg.RetentionDays, c.log)

	go func() {
		defer close(done)
		ticker := time.NewTicker(c.cfg.FlushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				c.Flush()
				return
			case <-ticker.C:
				c.Flush()
				purgeOldFiles(c.cfg.LogsDir, c.cfg.RetentionDays, c.log)
			}
		}
	}()
}

// Stop halts the flush loop after one final flush.
func (c *Collector) Stop() {
	c.mu.Lock()
	stop := c.stop
	done := c.done
	c.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	if done != nil {
		<-done
	}
}

// RecordQuery buffers a query sample, checks the slow-query SLO
// immediately, and feeds the ambient Prometheus histogram.
func (c *Collector) RecordQuery(sql string, ms float64, rowCount int, spaceID string) {
	sample := QuerySample{Timestamp: time.Now(), SQL: sql, Ms: ms, RowCount: rowCount, SpaceID: spaceID, IsSimple: ms < 100}
	c.mu.Lock()
	c.queries = append(c.queries, sample)
	recent := recentQueryAvg(c.queries)
	c.mu.Unlock()

	if c.prom != nil {
		c.prom.ObserveQuery(ms)
	}
	if ms > slowQueryMs {
		c.log.Warn("slo breach: slow query", "ms", ms, "sql", truncate(sql, 200))
	}
	if recent.count >= recentQuerySampleWindow && recent.avg >= sloQueryAvgMs {
		c.log.Warn("slo breach: recent average query time", "avgMs", recent.avg, "window", recent.count)
	}
}

type avgResult struct {
	avg   float64
	count int
}

func recentQueryAvg(all []QuerySample) avgResult {
	n := len(all)
	start := 0
	if n > recentQuerySampleWindow {
		start = n - recentQuerySampleWindow
	}
	window := all[start:]
	if len(window) == 0 {
		return avgResult{}
	}
	var sum float64
	for _, s := range window {
		sum += s.Ms
	}
	return avgResult{avg: sum / float64(len(window)), count: len(window)}
}

// RecordMemory buffers a memory sample and checks the memory SLO.
func (c *Collector) RecordMemory(heapUsed, heapTotal, external uint64) {
	sample := MemorySample{
		Timestamp: time.Now(),
		HeapUsed:  heapUsed,
		HeapTotal: heapTotal,
		External:  external,
		TotalMB:   float64(heapUsed+external) / (1024 * 1024),
	}
	c.mu.Lock()
	c.memorySamples = append(c.memorySamples, sample)
	c.mu.Unlock()

	if c.prom != nil {
		c.prom.SetMemory(heapUsed + external)
	}
	if heapUsed+external > sloMemoryBytes {
		c.log.Warn("slo breach: memory usage", "totalMB", sample.TotalMB)
	}
}

// RecordPoolAccess implements pool.StatRecorder.
func (c *Collector) RecordPoolAccess(hit bool, size int) {
	c.mu.Lock()
	if hit {
		c.poolHits++
	} else {
		c.poolMisses++
	}
	hits, misses := c.poolHits, c.poolMisses
	total := hits + misses
	var rate float64
	if total > 0 {
		rate = 100 * float64(hits) / float64(total)
	}
	c.connSamples = append(c.connSamples, ConnectionSample{
		Timestamp: time.Now(), Total: size, Active: size, Hits: hits, Misses: misses, HitRatePct: rate,
	})
	c.mu.Unlock()

	if c.prom != nil {
		c.prom.ObservePoolAccess(hit)
	}
	if total >= sloMinAccesses && rate <= sloPoolHitRatePct {
		c.log.Warn("slo breach: pool hit rate", "hitRatePct", rate, "accesses", total)
	}
}

// RecordCacheAccess implements router.CacheStatRecorder.
func (c *Collector) RecordCacheAccess(hit bool, size int) {
	c.mu.Lock()
	if hit {
		c.cacheHits++
	} else {
		c.cacheMisses++
	}
	hits, misses := c.cacheHits, c.cacheMisses
	total := hits + misses
	var rate float64
	if total > 0 {
		rate = 100 * float64(hits) / float64(total)
	}
	c.cacheSamples = append(c.cacheSamples, CacheSample{
		Timestamp: time.Now(), Total: total, Hits: hits, Misses: misses, HitRatePct: rate, Entries: size,
	})
	c.mu.Unlock()

	if c.prom != nil {
		c.prom.ObserveCacheAccess(hit)
	}
	if total >= sloMinAccesses && rate <= sloCacheHitRatePct {
		c.log.Warn("slo breach: cache hit rate", "hitRatePct", rate, "accesses", total)
	}
}

// Snapshot is a point-in-time view of accumulated hit/miss counters,
// folded into Broker.Stats() per spec §4.9.
type Snapshot struct {
	PoolHits, PoolMisses   int
	CacheHits, CacheMisses int
}

// Snapshot returns the collector's current pool/cache hit/miss
// counters without clearing them, unlike Flush which is for
// persistence.
func (c *Collector) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		PoolHits:    c.poolHits,
		PoolMisses:  c.poolMisses,
		CacheHits:   c.cacheHits,
		CacheMisses: c.cacheMisses,
	}
}

// Flush persists and clears every buffered sample kind.
func (c *Collector) Flush() {
	c.mu.Lock()
	queries := c.queries
	mem := c.memorySamples
	conns := c.connSamples
	caches := c.cacheSamples
	c.queries = nil
	c.memorySamples = nil
	c.connSamples = nil
	c.cacheSamples = nil
	c.mu.Unlock()

	if len(queries) > 0 {
		appendRollup(c.cfg, KindQuery, queries, c.log)
	}
	if len(mem) > 0 {
		appendRollup(c.cfg, KindMemory, mem, c.log)
	}
	if len(conns) > 0 {
		appendRollup(c.cfg, KindConnection, conns, c.log)
	}
	if len(caches) > 0 {
		appendRollup(c.cfg, KindCache, caches, c.log)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
