// Package mcpuri parses the federated resource URIs of the form
// mcp://<alias>/<remote-uri> used to embed remote MCP resources inside
// SQL text.
package mcpuri

import (
	"strings"
)

// Scheme is the federated URI scheme prefix.
const Scheme = "mcp://"

// Reference is a parsed federated URI: an alias naming an attached
// server plus the remote URI opaque to the broker.
type Reference struct {
	Alias     string
	RemoteURI string
}

// Federated renders the canonical mcp://alias/remoteUri surface form.
func (r Reference) Federated() string {
	return Scheme + r.Alias + "/" + r.RemoteURI
}

// Parse splits a federated URI into alias and remote URI. The first
// "/" after the mcp:// prefix separates the two; the alias must not
// itself contain a "/". The remote URI is taken verbatim and may
// contain further "://" schemes (e.g. mcp://github/test://foo).
//
// Parse returns ok=false when s does not start with the federated
// scheme, or the alias portion is empty, or there is no "/" after the
// alias.
func Parse(s string) (ref Reference, ok bool) {
	if !strings.HasPrefix(s, Scheme) {
		return Reference{}, false
	}
	rest := s[len(Scheme):]
	idx := strings.IndexByte(rest, '/')
	if idx <= 0 {
		return Reference{}, false
	}
	alias := rest[:idx]
	remote := rest[idx+1:]
	if alias == "" || remote == "" {
		return Reference{}, false
	}
	return Reference{Alias: alias, RemoteURI: remote}, true
}

// ParseRelative builds a Reference from an explicit alias plus a bare
// remote URI, for callers that supply the alias out of band rather
// than via the federated surface form.
func ParseRelative(alias, remoteURI string) (Reference, bool) {
	if alias == "" || remoteURI == "" {
		return Reference{}, false
	}
	return Reference{Alias: alias, RemoteURI: remoteURI}, true
}

// CacheKey returns the canonical cache key for a resource identifier.
// All callers (reads, refreshes, detach-invalidation) must construct
// keys through this function to uphold the cache-key-parity invariant.
func CacheKey(alias, remoteURI string) string {
	return alias + ":" + remoteURI
}

// Key is a convenience wrapper over CacheKey for a parsed Reference.
func (r Reference) Key() string {
	return CacheKey(r.Alias, r.RemoteURI)
}
