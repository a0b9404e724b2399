package cache

import (
	"sync"
	"time"

	"github.com/platformbuilds/mcp-federation-broker/internal/logger"
	"github.com/platformbuilds/mcp-federation-broker/internal/payload"
)

type entry struct {
	payload   payload.Payload
	insertedAt time.Time
	ttl       time.Duration
	seq       uint64
}

// Memory is the spec-authoritative ResourceCache implementation: a
// plain map with per-entry TTL, lazy eviction on read (no background
// reaper), and a max-entries cap that evicts the oldest entries by
// insertion order once reached.
type Memory struct {
	log       logger.Logger
	maxEntries int

	mu      sync.RWMutex
	entries map[string]*entry
	seq     uint64
}

// NewMemory builds an in-memory cache. maxEntries <= 0 means
// unbounded.
func NewMemory(maxEntries int, log logger.Logger) *Memory {
	return &Memory{
		log:        log,
		maxEntries: maxEntries,
		entries:    make(map[string]*entry),
	}
}

func (m *Memory) GetFresh(key string) (payload.Payload, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return payload.Payload{}, false
	}
	if e.ttl > 0 && time.Since(e.insertedAt) > e.ttl {
		delete(m.entries, key)
		return payload.Payload{}, false
	}
	return e.payload, true
}

func (m *Memory) Put(key string, p payload.Payload, ttlSeconds int) {
	if !p.Cacheable() {
		// ParquetFile payloads are never cached (invariant I5).
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	m.entries[key] = &entry{
		payload:    p,
		insertedAt: time.Now(),
		ttl:        time.Duration(ttlSeconds) * time.Second,
		seq:        m.seq,
	}
	if m.maxEntries > 0 && len(m.entries) > m.maxEntries {
		m.evictOldestLocked()
	}
}

func (m *Memory) evictOldestLocked() {
	var oldestKey string
	var oldestSeq uint64
	first := true
	for k, e := range m.entries {
		if first || e.seq < oldestSeq {
			oldestKey = k
			oldestSeq = e.seq
			first = false
		}
	}
	if !first {
		delete(m.entries, oldestKey)
	}
}

func (m *Memory) Invalidate(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
}

func (m *Memory) InvalidateByPrefix(prefix string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.entries {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			delete(m.entries, k)
		}
	}
}

func (m *Memory) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]*entry)
}

func (m *Memory) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
