// Package engine defines the minimal façade the broker consumes the
// embedded analytical SQL engine through. The engine itself is
// deliberately out of scope; this package only names the collaborator
// interface plus a reference implementation used by tests.
package engine

// Column describes one column of a table as reported by the engine.
type Column struct {
	Name     string
	DataType string
	Nullable bool
}

// TableInfo describes one entry in a schema listing.
type TableInfo struct {
	Schema string
	Name   string
	Type   string
}

// Format names the file formats CreateTableFromFile accepts.
type Format string

const (
	FormatCSV     Format = "csv"
	FormatJSON    Format = "json"
	FormatParquet Format = "parquet"
)

// Engine is the collaborator interface the broker materialises
// federated data through and executes rewritten SQL against. Every
// SQL identifier and string literal passed to Engine must already be
// escaped by the caller (internal/mapper owns the escaper).
type Engine interface {
	// Execute runs sql and returns its result rows as a list of
	// column-name -> value maps.
	Execute(sql string) ([]map[string]interface{}, error)

	// CreateTableFromRows creates name (dropping it first if it
	// exists) with columns inferred from the union of keys across
	// rows, and bulk-inserts rows.
	CreateTableFromRows(name string, rows []map[string]interface{}) error

	// CreateTableFromFile creates name from a local file in the given
	// format.
	CreateTableFromFile(name, path string, format Format) error

	// DropTable drops name if it exists; dropping a non-existent table
	// is not an error.
	DropTable(name string) error

	// TableExists reports whether name exists in schema ("" = default
	// schema).
	TableExists(name, schema string) (bool, error)

	// RowCount returns the row count of name.
	RowCount(name string) (int, error)

	// GetColumns returns the column list of name.
	GetColumns(name string) ([]Column, error)

	// ListTables lists tables in schema ("" = all schemas).
	ListTables(schema string) ([]TableInfo, error)
}
