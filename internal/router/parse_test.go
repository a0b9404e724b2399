package router

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScanReferencesUnquoted(t *testing.T) {
	occs := ScanReferences("SELECT id FROM mcp://github/issues.json WHERE state='open'")
	require.Len(t, occs, 1)
	require.Equal(t, "github", occs[0].Reference.Alias)
	require.Equal(t, "issues.json", occs[0].Reference.RemoteURI)
	require.Equal(t, "mcp://github/issues.json", occs[0].Token)
}

func TestScanReferencesQuoted(t *testing.T) {
	occs := ScanReferences(`SELECT id FROM 'mcp://github/issues.json' WHERE state='open'`)
	require.Len(t, occs, 1)
	require.Equal(t, "github", occs[0].Reference.Alias)
	require.Equal(t, "'mcp://github/issues.json'", occs[0].Token)
}

func TestScanReferencesMultipleDistinct(t *testing.T) {
	sql := `SELECT a.id FROM 'mcp://github/issues.json' a JOIN 'mcp://gitlab/issues.json' b ON a.id = b.id`
	occs := ScanReferences(sql)
	require.Len(t, occs, 2)
	refs := DistinctReferences(occs)
	require.Len(t, refs, 2)
}

func TestScanReferencesDedup(t *testing.T) {
	sql := `SELECT * FROM mcp://s/a.json UNION SELECT * FROM mcp://s/a.json`
	occs := ScanReferences(sql)
	require.Len(t, occs, 2)
	refs := DistinctReferences(occs)
	require.Len(t, refs, 1)
}

func TestScanReferencesNestedScheme(t *testing.T) {
	occs := ScanReferences(`SELECT * FROM 'mcp://github/test://foo'`)
	require.Len(t, occs, 1)
	require.Equal(t, "test://foo", occs[0].Reference.RemoteURI)
}
