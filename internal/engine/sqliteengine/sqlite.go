// Package sqliteengine is a reference Engine implementation backed by
// modernc.org/sqlite (pure Go, no cgo). It exists so the broker's
// end-to-end scenario tests have a real engine to run federated
// queries against; production deployments supply their own Engine.
package sqliteengine

import (
	"database/sql"
	"encoding/csv"
	"fmt"
	"os"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/platformbuilds/mcp-federation-broker/internal/engine"
)

// SQLite wraps a *sql.DB opened against the modernc.org/sqlite driver.
type SQLite struct {
	db *sql.DB
}

// Open opens dsn ("" or ":memory:" for an in-memory database; a file
// path otherwise).
func Open(dsn string) (*SQLite, error) {
	if dsn == "" {
		dsn = ":memory:"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite engine: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite serializes writers; keep it simple and safe.
	return &SQLite{db: db}, nil
}

func (s *SQLite) Close() error { return s.db.Close() }

func (s *SQLite) Execute(query string) ([]map[string]interface{}, error) {
	rows, err := s.db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRows(rows)
}

func scanRows(rows *sql.Rows) ([]map[string]interface{}, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []map[string]interface{}
	for rows.Next() {
		values := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]interface{}, len(cols))
		for i, c := range cols {
			row[c] = values[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (s *SQLite) CreateTableFromRows(name string, rows []map[string]interface{}) error {
	if _, err := s.db.Exec(fmt.Sprintf(`DROP TABLE IF EXISTS "%s"`, escapeIdent(name))); err != nil {
		return err
	}
	if len(rows) == 0 {
		_, err := s.db.Exec(fmt.Sprintf(`CREATE TABLE "%s" (placeholder TEXT)`, escapeIdent(name)))
		return err
	}

	columns := orderedColumns(rows)
	var colDefs []string
	for _, c := range columns {
		colDefs = append(colDefs, fmt.Sprintf(`"%s" TEXT`, escapeIdent(c)))
	}
	createSQL := fmt.Sprintf(`CREATE TABLE "%s" (%s)`, escapeIdent(name), strings.Join(colDefs, ", "))
	if _, err := s.db.Exec(createSQL); err != nil {
		return err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	placeholders := make([]string, len(columns))
	for i := range placeholders {
		placeholders[i] = "?"
	}
	var quotedCols []string
	for _, c := range columns {
		quotedCols = append(quotedCols, fmt.Sprintf(`"%s"`, escapeIdent(c)))
	}
	insertSQL := fmt.Sprintf(`INSERT INTO "%s" (%s) VALUES (%s)`, escapeIdent(name), strings.Join(quotedCols, ", "), strings.Join(placeholders, ", "))
	stmt, err := tx.Prepare(insertSQL)
	if err != nil {
		tx.Rollback()
		return err
	}
	for _, row := range rows {
		args := make([]interface{}, len(columns))
		for i, c := range columns {
			args[i] = stringify(row[c])
		}
		if _, err := stmt.Exec(args...); err != nil {
			stmt.Close()
			tx.Rollback()
			return err
		}
	}
	stmt.Close()
	return tx.Commit()
}

func orderedColumns(rows []map[string]interface{}) []string {
	seen := make(map[string]bool)
	var columns []string
	for _, row := range rows {
		for k := range row {
			if !seen[k] {
				seen[k] = true
				columns = append(columns, k)
			}
		}
	}
	return columns
}

func stringify(v interface{}) interface{} {
	if v == nil {
		return nil
	}
	switch x := v.(type) {
	case string:
		return x
	case float64, int, int64, bool:
		return fmt.Sprintf("%v", x)
	default:
		return fmt.Sprintf("%v", x)
	}
}

func (s *SQLite) CreateTableFromFile(name, path string, format engine.Format) error {
	switch format {
	case engine.FormatCSV:
		return s.createFromCSV(name, path)
	case engine.FormatParquet:
		return fmt.Errorf("sqlite reference engine: parquet import not supported, use a production engine")
	default:
		return fmt.Errorf("sqlite reference engine: unsupported format %q", format)
	}
}

func (s *SQLite) createFromCSV(name, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	records, err := reader.ReadAll()
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return fmt.Errorf("empty csv file: %s", path)
	}
	header := records[0]
	var rows []map[string]interface{}
	for _, rec := range records[1:] {
		row := make(map[string]interface{}, len(header))
		for i, h := range header {
			if i < len(rec) {
				row[h] = rec[i]
			}
		}
		rows = append(rows, row)
	}
	return s.CreateTableFromRows(name, rows)
}

func (s *SQLite) DropTable(name string) error {
	_, err := s.db.Exec(fmt.Sprintf(`DROP TABLE IF EXISTS "%s"`, escapeIdent(name)))
	return err
}

func (s *SQLite) TableExists(name, schema string) (bool, error) {
	row := s.db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name = ?`, name)
	var count int
	if err := row.Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *SQLite) RowCount(name string) (int, error) {
	row := s.db.QueryRow(fmt.Sprintf(`SELECT COUNT(*) FROM "%s"`, escapeIdent(name)))
	var count int
	if err := row.Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (s *SQLite) GetColumns(name string) ([]engine.Column, error) {
	rows, err := s.db.Query(fmt.Sprintf(`PRAGMA table_info("%s")`, escapeIdent(name)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var cols []engine.Column
	for rows.Next() {
		var cid int
		var colName, colType string
		var notNull int
		var dfltValue sql.NullString
		var pk int
		if err := rows.Scan(&cid, &colName, &colType, &notNull, &dfltValue, &pk); err != nil {
			return nil, err
		}
		cols = append(cols, engine.Column{Name: colName, DataType: colType, Nullable: notNull == 0})
	}
	return cols, rows.Err()
}

func (s *SQLite) ListTables(schema string) ([]engine.TableInfo, error) {
	rows, err := s.db.Query(`SELECT name, type FROM sqlite_master WHERE type IN ('table','view')`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []engine.TableInfo
	for rows.Next() {
		var name, typ string
		if err := rows.Scan(&name, &typ); err != nil {
			return nil, err
		}
		out = append(out, engine.TableInfo{Schema: "main", Name: name, Type: typ})
	}
	return out, rows.Err()
}

func escapeIdent(s string) string {
	return strings.ReplaceAll(s, `"`, `""`)
}

var _ engine.Engine = (*SQLite)(nil)
