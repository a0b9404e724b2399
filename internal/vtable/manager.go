// Package vtable implements the VirtualTableManager: lifecycle of
// persistent materialised remote tables, including lazy loading,
// auto-refresh timers, and row caps.
package vtable

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/platformbuilds/mcp-federation-broker/internal/brokererr"
	"github.com/platformbuilds/mcp-federation-broker/internal/logger"
	"github.com/platformbuilds/mcp-federation-broker/internal/mapper"
	"github.com/platformbuilds/mcp-federation-broker/internal/payload"
)

// State is the virtual table lifecycle state.
type State int

const (
	StateNew State = iota
	StateLazyPending
	StateLoaded
	StateRefreshing
	StateDropped
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateLazyPending:
		return "lazy_pending"
	case StateLoaded:
		return "loaded"
	case StateRefreshing:
		return "refreshing"
	case StateDropped:
		return "dropped"
	default:
		return "unknown"
	}
}

// Fetcher retrieves the latest payload for a federated reference,
// bypassing the cache when bypassCache is true (used by
// RefreshVirtualTable's cache-bypass read).
type Fetcher interface {
	Fetch(ctx context.Context, alias, remoteURI string, bypassCache bool) (payload.Payload, error)
}

// Table is one virtual table's lifecycle record.
type Table struct {
	Name      string
	Alias     string
	RemoteURI string
	Config    Config

	mu         sync.Mutex
	state      State
	refreshing bool // guards skip-not-queue and DropVirtualTable's synchronous wait

	stopTimer chan struct{}
	timerDone chan struct{}
}

func (t *Table) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Manager owns every virtual table's lifecycle.
type Manager struct {
	fetcher Fetcher
	mapper  *mapper.Mapper
	log     logger.Logger

	mu     sync.Mutex
	tables map[string]*Table
}

func New(fetcher Fetcher, m *mapper.Mapper, log logger.Logger) *Manager {
	return &Manager{fetcher: fetcher, mapper: m, log: log, tables: make(map[string]*Table)}
}

// CreateVirtualTable registers a new virtual table. It does not load
// data: lazy tables wait for first reference or explicit Load; eager
// tables are loaded by the caller immediately after creation (the
// broker does this so creation and first-load share one error path).
func (m *Manager) CreateVirtualTable(name, alias, remoteURI string, cfg Config) (*Table, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.tables[name]; exists {
		return nil, brokererr.NewConfigError("virtual table already exists: "+name, nil)
	}
	t := &Table{Name: name, Alias: alias, RemoteURI: remoteURI, Config: cfg, state: StateNew}
	if cfg.Lazy {
		t.state = StateLazyPending
	}
	m.tables[name] = t
	return t, nil
}

// Count returns the number of currently registered virtual tables
// (including ones not yet loaded).
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tables)
}

// Get returns the table record by name.
func (m *Manager) Get(name string) (*Table, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tables[name]
	return t, ok
}

// LoadVirtualTable performs the first load. Idempotent: a no-op if the
// table is already Loaded.
func (m *Manager) LoadVirtualTable(ctx context.Context, name string) error {
	t, ok := m.Get(name)
	if !ok {
		return brokererr.NewReferenceUnresolved(name, "unknown virtual table")
	}
	t.mu.Lock()
	if t.state == StateLoaded || t.state == StateRefreshing {
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()

	p, err := m.fetcher.Fetch(ctx, t.Alias, t.RemoteURI, false)
	if err != nil {
		return brokererr.NewFetchFailed(t.Alias, t.RemoteURI, err)
	}
	if _, err := m.mapper.Map(name, t.Alias+":"+t.RemoteURI, p, t.Config.MaxRows); err != nil {
		return err
	}

	t.mu.Lock()
	t.state = StateLoaded
	t.mu.Unlock()

	if t.Config.HasTimer() {
		m.startTimer(t)
	}
	return nil
}

// EnsureLoadedForQuery force-loads a lazy table exactly once before
// the SQL referencing it executes (the broker's lazy-trigger query
// hook calls this).
func (m *Manager) EnsureLoadedForQuery(ctx context.Context, name string) error {
	t, ok := m.Get(name)
	if !ok {
		return nil
	}
	if t.State() == StateLoaded || t.State() == StateRefreshing {
		return nil
	}
	return m.LoadVirtualTable(ctx, name)
}

// RefreshVirtualTable performs a cache-bypass read and re-runs
// mapping in place. A refresh already in progress causes this call to
// be skipped (serialised per table name, skip not queue). On failure
// the table retains its previous contents and a warning is logged;
// the periodic timer, if any, is not cancelled.
func (m *Manager) RefreshVirtualTable(ctx context.Context, name string) error {
	t, ok := m.Get(name)
	if !ok {
		return brokererr.NewReferenceUnresolved(name, "unknown virtual table")
	}

	t.mu.Lock()
	if t.refreshing {
		t.mu.Unlock()
		return nil // skip, not queue
	}
	t.refreshing = true
	prevState := t.state
	t.state = StateRefreshing
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		t.refreshing = false
		if t.state == StateRefreshing {
			t.state = StateLoaded
		}
		t.mu.Unlock()
		_ = prevState
	}()

	p, err := m.fetcher.Fetch(ctx, t.Alias, t.RemoteURI, true)
	if err != nil {
		m.log.Warn("vtable: refresh failed, keeping previous contents", "table", name, "error", err)
		return nil
	}
	if _, err := m.mapper.RefreshWith(name, p, t.Config.MaxRows); err != nil {
		m.log.Warn("vtable: refresh materialise failed, keeping previous contents", "table", name, "error", err)
		return nil
	}
	return nil
}

// DropVirtualTable stops the refresh timer (waiting for any in-flight
// refresh for this name to settle), unmaps the engine table, and
// forgets the record.
func (m *Manager) DropVirtualTable(name string) error {
	m.mu.Lock()
	t, ok := m.tables[name]
	if ok {
		delete(m.tables, name)
	}
	m.mu.Unlock()
	if !ok {
		return brokererr.NewReferenceUnresolved(name, "unknown virtual table")
	}

	m.stopTimer(t)

	// Synchronous with respect to pending refreshes: spin-wait briefly
	// on the refreshing flag rather than blocking forever, since a
	// refresh always completes in bounded time (it has its own fetch
	// timeout upstream).
	for {
		t.mu.Lock()
		refreshing := t.refreshing
		t.mu.Unlock()
		if !refreshing {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	t.mu.Lock()
	t.state = StateDropped
	t.mu.Unlock()

	return m.mapper.Unmap(name)
}

// ReferencedLazyTables returns the names of every LazyPending table
// whose name appears as a whole word in sql, ignoring case, in no
// particular order.
// The broker's query hook uses this to force-load a lazy table on
// first reference without requiring the caller to track which names
// are still pending.
func (m *Manager) ReferencedLazyTables(sql string) []string {
	m.mu.Lock()
	candidates := make([]*Table, 0, len(m.tables))
	for _, t := range m.tables {
		candidates = append(candidates, t)
	}
	m.mu.Unlock()

	lowerSQL := strings.ToLower(sql)
	var out []string
	for _, t := range candidates {
		if t.State() != StateLazyPending {
			continue
		}
		// The scan runs over the raw SQL text, so a name that appears only
		// inside a string literal or a comment still matches and loads
		// the table.
		if containsWholeWord(lowerSQL, strings.ToLower(t.Name)) {
			out = append(out, t.Name)
		}
	}
	return out
}

func containsWholeWord(s, word string) bool {
	idx := 0
	for {
		rel := strings.Index(s[idx:], word)
		if rel < 0 {
			return false
		}
		pos := idx + rel
		before := pos == 0 || !isIdentByte(s[pos-1])
		afterPos := pos + len(word)
		after := afterPos >= len(s) || !isIdentByte(s[afterPos])
		if before && after {
			return true
		}
		idx = pos + 1
	}
}

func isIdentByte(b byte) bool {
	return b == '_' ||
		(b >= 'a' && b <= 'z') ||
		(b >= 'A' && b <= 'Z') ||
		(b >= '0' && b <= '9')
}

// UpdateConfig applies a new policy. If the refresh policy changed,
// the old timer (if any) is stopped and a new one started, consistent
// with invariant I3.
func (m *Manager) UpdateConfig(name string, cfg Config) error {
	t, ok := m.Get(name)
	if !ok {
		return brokererr.NewReferenceUnresolved(name, "unknown virtual table")
	}
	hadTimer := t.Config.HasTimer()
	t.mu.Lock()
	t.Config = cfg
	t.mu.Unlock()

	wantsTimer := cfg.HasTimer()
	if hadTimer && !wantsTimer {
		m.stopTimer(t)
	} else if !hadTimer && wantsTimer {
		m.startTimer(t)
	} else if hadTimer && wantsTimer {
		m.stopTimer(t)
		m.startTimer(t)
	}
	return nil
}

// Materialise snapshots a virtual table into a new, independent
// engine table: CREATE TABLE snapshotName AS SELECT * FROM virtualName.
func (m *Manager) Materialise(eng interface {
	Execute(sql string) ([]map[string]interface{}, error)
}, virtualName, snapshotName string) error {
	sql := fmt.Sprintf(`CREATE TABLE "%s" AS SELECT * FROM "%s"`,
		escapeIdent(snapshotName), escapeIdent(virtualName))
	_, err := eng.Execute(sql)
	return err
}

func escapeIdent(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '"' {
			out = append(out, '"', '"')
			continue
		}
		out = append(out, s[i])
	}
	return string(out)
}

func (m *Manager) startTimer(t *Table) {
	t.mu.Lock()
	if t.stopTimer != nil {
		t.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	t.stopTimer = stop
	t.timerDone = done
	interval := t.Config.RefreshInterval
	t.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				// The task re-schedules itself only after the previous
				// run completes (skip, don't queue); RefreshVirtualTable
				// itself enforces the skip via the refreshing flag.
				_ = m.RefreshVirtualTable(context.Background(), t.Name)
			}
		}
	}()
}

func (m *Manager) stopTimer(t *Table) {
	t.mu.Lock()
	stop := t.stopTimer
	done := t.timerDone
	t.stopTimer = nil
	t.timerDone = nil
	t.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	if done != nil {
		<-done
	}
}
