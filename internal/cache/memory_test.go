package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/platformbuilds/mcp-federation-broker/internal/logger"
	"github.com/platformbuilds/mcp-federation-broker/internal/payload"
)

func TestMemoryCacheConsistency(t *testing.T) {
	c := NewMemory(0, logger.Noop())
	p := payload.Rows([]map[string]interface{}{{"id": 1}})

	c.Put("github:issues.json", p, 1)
	got, ok := c.GetFresh("github:issues.json")
	require.True(t, ok)
	require.Equal(t, p.Rows, got.Rows)

	time.Sleep(1100 * time.Millisecond)
	_, ok = c.GetFresh("github:issues.json")
	require.False(t, ok, "expected entry to expire after TTL")

	c.Put("github:issues.json", p, 60)
	c.Invalidate("github:issues.json")
	_, ok = c.GetFresh("github:issues.json")
	require.False(t, ok, "expected entry to be gone after Invalidate")
}

func TestMemoryCacheNeverStoresParquet(t *testing.T) {
	c := NewMemory(0, logger.Noop())
	c.Put("s:data.parquet", payload.ParquetFile("/tmp/whatever.parquet"), 60)
	require.Equal(t, 0, c.Size())
}

func TestMemoryCacheMaxEntriesEvictsOldest(t *testing.T) {
	c := NewMemory(2, logger.Noop())
	c.Put("a", payload.Text("a"), 60)
	c.Put("b", payload.Text("b"), 60)
	c.Put("c", payload.Text("c"), 60)

	require.Equal(t, 2, c.Size())
	_, ok := c.GetFresh("a")
	require.False(t, ok, "expected oldest entry to be evicted")
}

func TestMemoryCacheInvalidateByPrefix(t *testing.T) {
	c := NewMemory(0, logger.Noop())
	c.Put("github:issues.json", payload.Text("x"), 60)
	c.Put("github:prs.json", payload.Text("y"), 60)
	c.Put("other:data.json", payload.Text("z"), 60)

	c.InvalidateByPrefix("github:")
	require.Equal(t, 1, c.Size())
	_, ok := c.GetFresh("other:data.json")
	require.True(t, ok)
}
