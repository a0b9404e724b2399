package mapper

import "strings"

// EscapeIdentifier escapes s for use as a double-quoted SQL
// identifier: double-quote characters are doubled.
func EscapeIdentifier(s string) string {
	return strings.ReplaceAll(s, `"`, `""`)
}

// QuoteIdentifier escapes and wraps s as a double-quoted identifier.
func QuoteIdentifier(s string) string {
	return `"` + EscapeIdentifier(s) + `"`
}

// EscapeStringLiteral escapes s for use inside a single-quoted SQL
// string literal: single-quote characters are doubled.
func EscapeStringLiteral(s string) string {
	return strings.ReplaceAll(s, `'`, `''`)
}

// QuoteStringLiteral escapes and wraps s as a single-quoted literal.
func QuoteStringLiteral(s string) string {
	return `'` + EscapeStringLiteral(s) + `'`
}

// QuoteFilePath escapes and wraps a file path the same way as a
// string literal (single-quote + quote-double single-quotes), per the
// shared SQL escaper the spec requires for all file paths and
// identifiers passed to the engine façade.
func QuoteFilePath(path string) string {
	return QuoteStringLiteral(path)
}
