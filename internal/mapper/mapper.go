// Package mapper implements the ResourceMapper: converting a decoded
// resource payload into a concrete engine table.
package mapper

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/platformbuilds/mcp-federation-broker/internal/brokererr"
	"github.com/platformbuilds/mcp-federation-broker/internal/engine"
	"github.com/platformbuilds/mcp-federation-broker/internal/logger"
	"github.com/platformbuilds/mcp-federation-broker/internal/payload"
)

// MappedResource is the metadata the mapper tracks for every table it
// has materialised, distinct from a VirtualTable record (which wraps
// one of these plus a refresh policy).
type MappedResource struct {
	Name      string
	SourceURI string
	Kind      payload.Kind
	RowCount  int
	Columns   []string
	CreatedAt time.Time
	LastRefresh time.Time
}

// Mapper owns the mapped-table metadata map and performs
// payload-to-engine-table materialisation.
type Mapper struct {
	eng engine.Engine
	log logger.Logger

	mu      sync.Mutex
	mapped  map[string]*MappedResource
}

func New(eng engine.Engine, log logger.Logger) *Mapper {
	return &Mapper{eng: eng, log: log, mapped: make(map[string]*MappedResource)}
}

// Map materialises p into table name, tracking it as a mapped
// resource under sourceURI. maxRows <= 0 means unlimited; when
// positive and p is Rows longer than maxRows, the table is truncated
// to the first maxRows rows and a warning is logged (virtual-table row
// cap policy).
func (m *Mapper) Map(name, sourceURI string, p payload.Payload, maxRows int) (*MappedResource, error) {
	switch p.Kind {
	case payload.KindRows:
		rows := p.Rows
		if maxRows > 0 && len(rows) > maxRows {
			m.log.Warn("mapper: truncating rows to maxRows", "table", name, "rows", len(rows), "maxRows", maxRows)
			rows = rows[:maxRows]
		}
		if err := m.eng.CreateTableFromRows(name, rows); err != nil {
			return nil, brokererr.NewMaterialiseFailed(name, err)
		}
		return m.record(name, sourceURI, p.Kind, rows), nil

	case payload.KindText:
		path, err := writeTempFile("mcp-text-*.csv", []byte(p.Text))
		if err != nil {
			return nil, brokererr.NewMaterialiseFailed(name, err)
		}
		defer os.Remove(path)
		if err := m.eng.CreateTableFromFile(name, path, engine.FormatCSV); err != nil {
			return nil, brokererr.NewMaterialiseFailed(name, err)
		}
		rec := m.record(name, sourceURI, p.Kind, nil)
		m.refreshRowCount(rec)
		return rec, nil

	case payload.KindParquetFile:
		defer os.Remove(p.Path) // unlinked regardless of success (design note: resource management on all exit paths)
		if err := m.eng.CreateTableFromFile(name, p.Path, engine.FormatParquet); err != nil {
			return nil, brokererr.NewMaterialiseFailed(name, err)
		}
		rec := m.record(name, sourceURI, p.Kind, nil)
		m.refreshRowCount(rec)
		return rec, nil

	case payload.KindBinary:
		return nil, brokererr.NewUnsupportedMediaError("binary")

	default:
		return nil, brokererr.NewInvariantViolation("mapper.Map", fmt.Sprintf("unknown payload kind %v", p.Kind))
	}
}

func (m *Mapper) record(name, sourceURI string, kind payload.Kind, rows []map[string]interface{}) *MappedResource {
	rec := &MappedResource{
		Name:      name,
		SourceURI: sourceURI,
		Kind:      kind,
		RowCount:  len(rows),
		Columns:   columnNames(rows),
		CreatedAt: time.Now(),
		LastRefresh: time.Now(),
	}
	m.mu.Lock()
	m.mapped[name] = rec
	m.mu.Unlock()
	return rec
}

func (m *Mapper) refreshRowCount(rec *MappedResource) {
	if count, err := m.eng.RowCount(rec.Name); err == nil {
		rec.RowCount = count
	}
	if cols, err := m.eng.GetColumns(rec.Name); err == nil {
		names := make([]string, len(cols))
		for i, c := range cols {
			names[i] = c.Name
		}
		rec.Columns = names
	}
}

func columnNames(rows []map[string]interface{}) []string {
	seen := make(map[string]bool)
	var cols []string
	for _, row := range rows {
		for k := range row {
			if !seen[k] {
				seen[k] = true
				cols = append(cols, k)
			}
		}
	}
	return cols
}

// RefreshWith re-runs mapping for an already-mapped table name in
// place.
func (m *Mapper) RefreshWith(name string, p payload.Payload, maxRows int) (*MappedResource, error) {
	m.mu.Lock()
	existing, ok := m.mapped[name]
	m.mu.Unlock()
	sourceURI := name
	if ok {
		sourceURI = existing.SourceURI
	}
	return m.Map(name, sourceURI, p, maxRows)
}

// Unmap drops the engine table and forgets its metadata.
func (m *Mapper) Unmap(name string) error {
	m.mu.Lock()
	delete(m.mapped, name)
	m.mu.Unlock()
	return m.eng.DropTable(name)
}

// Get returns the tracked metadata for a mapped table, if any.
func (m *Mapper) Get(name string) (*MappedResource, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.mapped[name]
	return rec, ok
}

func writeTempFile(pattern string, data []byte) (string, error) {
	f, err := os.CreateTemp("", pattern)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}
