package payload

import (
	"strings"
)

// parquetExtensions and parquetMimes drive the Parquet sniff used by
// both ResolveMime and the ProtocolClient blob decode path.
var parquetExtensions = []string{".parquet", ".pq"}

var parquetMimes = []string{
	"application/vnd.apache.parquet",
	"application/x-parquet",
}

// ResolveMime applies the mime resolution order from the data model:
// explicit mime, then URI suffix, then content sniff.
func ResolveMime(explicitMime, uri string, sniffBody string) string {
	if explicitMime != "" {
		return explicitMime
	}
	if m := mimeFromExtension(uri); m != "" {
		return m
	}
	return sniffContent(sniffBody)
}

func mimeFromExtension(uri string) string {
	lower := strings.ToLower(uri)
	for _, ext := range parquetExtensions {
		if strings.HasSuffix(lower, ext) {
			return "application/vnd.apache.parquet"
		}
	}
	switch {
	case strings.HasSuffix(lower, ".json"):
		return "application/json"
	case strings.HasSuffix(lower, ".csv"):
		return "text/csv"
	case strings.HasSuffix(lower, ".tsv"):
		return "text/tab-separated-values"
	}
	return ""
}

// sniffContent implements the fallback content sniff: leading `{`/`[`
// indicates JSON; a comma in the first line indicates CSV; otherwise
// plain text.
func sniffContent(body string) string {
	trimmed := strings.TrimSpace(body)
	if trimmed == "" {
		return "text/plain"
	}
	switch trimmed[0] {
	case '{', '[':
		return "application/json"
	}
	firstLine := trimmed
	if idx := strings.IndexByte(trimmed, '\n'); idx >= 0 {
		firstLine = trimmed[:idx]
	}
	if strings.Contains(firstLine, ",") {
		return "text/csv"
	}
	return "text/plain"
}

// IsParquetMime reports whether mime or the uri's extension indicates
// a Parquet payload.
func IsParquetMime(mime, uri string) bool {
	lowerMime := strings.ToLower(mime)
	for _, m := range parquetMimes {
		if lowerMime == m {
			return true
		}
	}
	lowerURI := strings.ToLower(uri)
	for _, ext := range parquetExtensions {
		if strings.HasSuffix(lowerURI, ext) {
			return true
		}
	}
	return false
}
