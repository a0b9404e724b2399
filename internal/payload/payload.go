// Package payload defines the decoded resource content tagged variant
// shared by the protocol client, cache, and mapper.
package payload

// Kind tags which variant a Payload holds.
type Kind int

const (
	KindRows Kind = iota
	KindText
	KindParquetFile
	KindBinary
)

func (k Kind) String() string {
	switch k {
	case KindRows:
		return "rows"
	case KindText:
		return "text"
	case KindParquetFile:
		return "parquet_file"
	case KindBinary:
		return "binary"
	default:
		return "unknown"
	}
}

// Payload is the closed sum of decoded resource content. Downstream
// components switch on Kind rather than probing the concrete type.
type Payload struct {
	Kind Kind

	Rows []map[string]interface{} // KindRows
	Text string                   // KindText
	Path string                   // KindParquetFile: local temp file path
	Data []byte                   // KindBinary
}

// Rows builds a KindRows payload.
func Rows(rows []map[string]interface{}) Payload {
	return Payload{Kind: KindRows, Rows: rows}
}

// Object builds a KindRows payload from a single map, promoted to a
// one-row table per the mime-decode rule.
func Object(obj map[string]interface{}) Payload {
	return Payload{Kind: KindRows, Rows: []map[string]interface{}{obj}}
}

// Text builds a KindText payload (CSV/TSV/plain).
func Text(s string) Payload {
	return Payload{Kind: KindText, Text: s}
}

// ParquetFile builds a KindParquetFile payload referencing a local
// temp file. ParquetFile payloads are never cached; see internal/cache.
func ParquetFile(path string) Payload {
	return Payload{Kind: KindParquetFile, Path: path}
}

// Binary builds a KindBinary payload for content the mapper cannot
// materialise.
func Binary(data []byte) Payload {
	return Payload{Kind: KindBinary, Data: data}
}

// Cacheable reports whether this payload variant may be stored in the
// ResourceCache. Only ParquetFile is excluded (invariant I5): its
// on-disk file is consumed, and possibly unlinked, by the materialiser.
func (p Payload) Cacheable() bool {
	return p.Kind != KindParquetFile
}
