// Package metrics implements the MetricsCollector: a buffered sample
// stream flushed to periodic persisted JSON rollups, plus SLO
// threshold warnings, plus ambient Prometheus counters.
package metrics

import "time"

// SampleKind tags which persisted rollup file a sample belongs to.
type SampleKind string

const (
	KindQuery      SampleKind = "queries"
	KindMemory     SampleKind = "memory"
	KindConnection SampleKind = "connections"
	KindCache      SampleKind = "cache"
)

// QuerySample is one query-execution observation.
type QuerySample struct {
	Timestamp time.Time `json:"timestamp"`
	SQL       string    `json:"sql"`
	Ms        float64   `json:"ms"`
	RowCount  int       `json:"rowCount"`
	SpaceID   string    `json:"spaceId,omitempty"`
	IsSimple  bool      `json:"isSimple"`
}

// MemorySample is one memory-usage observation.
type MemorySample struct {
	Timestamp time.Time `json:"timestamp"`
	HeapUsed  uint64    `json:"heapUsed"`
	HeapTotal uint64    `json:"heapTotal"`
	External  uint64    `json:"external"`
	TotalMB   float64   `json:"totalMB"`
}

// ConnectionSample is one pool-access observation.
type ConnectionSample struct {
	Timestamp time.Time `json:"timestamp"`
	Total     int       `json:"total"`
	Active    int       `json:"active"`
	Hits      int       `json:"hits"`
	Misses    int       `json:"misses"`
	HitRatePct float64  `json:"hitRatePct"`
}

// CacheSample is one cache-access observation.
type CacheSample struct {
	Timestamp  time.Time `json:"timestamp"`
	Total      int       `json:"total"`
	Hits       int       `json:"hits"`
	Misses     int       `json:"misses"`
	HitRatePct float64   `json:"hitRatePct"`
	Entries    int       `json:"entries"`
}
