package router

import (
	"strings"

	"github.com/platformbuilds/mcp-federation-broker/internal/mcpuri"
)

// Occurrence is one textual occurrence of a federated reference inside
// a SQL string, recording exactly the substring to replace during
// rewrite.
type Occurrence struct {
	Reference mcpuri.Reference
	Token     string // the exact substring matched in sql, including any surrounding quotes
}

// isBoundary reports whether b terminates an unquoted mcp:// path:
// whitespace, comma, closing paren, or a statement terminator.
func isBoundary(b byte) bool {
	switch b {
	case ' ', '\t', '\n', '\r', ',', ')', ';':
		return true
	default:
		return false
	}
}

// ScanReferences finds every substring of sql matching
// mcp://<alias>/<path>, where path runs until the next SQL token
// boundary (whitespace, comma, closing paren, statement terminator),
// with support for a quoted path ('...' or "..."), per spec §4.8 step 1.
func ScanReferences(sql string) []Occurrence {
	var out []Occurrence
	const scheme = mcpuri.Scheme
	i := 0
	for {
		idx := strings.Index(sql[i:], scheme)
		if idx < 0 {
			break
		}
		start := i + idx
		quote := byte(0)
		contentStart := start
		if start > 0 && (sql[start-1] == '\'' || sql[start-1] == '"') {
			quote = sql[start-1]
		}

		end := start + len(scheme)
		for end < len(sql) {
			if quote != 0 && sql[end] == quote {
				break
			}
			if quote == 0 && isBoundary(sql[end]) {
				break
			}
			end++
		}

		tokenStart := contentStart
		tokenEnd := end
		if quote != 0 {
			tokenStart = start - 1
			if tokenEnd < len(sql) && sql[tokenEnd] == quote {
				tokenEnd++
			}
		}

		raw := sql[start:end]
		if ref, ok := mcpuri.Parse(raw); ok {
			out = append(out, Occurrence{Reference: ref, Token: sql[tokenStart:tokenEnd]})
		}
		i = end
		if i <= start {
			i = start + len(scheme)
		}
	}
	return out
}

// DistinctReferences de-duplicates occurrences by their federated
// reference (alias+remoteUri), preserving first-seen order, so a
// reference appearing twice in one query is fetched only once.
func DistinctReferences(occs []Occurrence) []mcpuri.Reference {
	seen := make(map[string]bool)
	var out []mcpuri.Reference
	for _, o := range occs {
		key := o.Reference.Key()
		if !seen[key] {
			seen[key] = true
			out = append(out, o.Reference)
		}
	}
	return out
}
