package router

import (
	"context"

	"github.com/platformbuilds/mcp-federation-broker/internal/brokererr"
	"github.com/platformbuilds/mcp-federation-broker/internal/cache"
	"github.com/platformbuilds/mcp-federation-broker/internal/mcpuri"
	"github.com/platformbuilds/mcp-federation-broker/internal/payload"
	"github.com/platformbuilds/mcp-federation-broker/internal/registry"
)

// CacheStatRecorder receives cache hit/miss observations for the
// MetricsCollector (C10); nil is a valid no-op recorder.
type CacheStatRecorder interface {
	RecordCacheAccess(hit bool, size int)
}

// Fetcher resolves a federated reference and retrieves its payload,
// consulting the cache first unless bypassed. It is shared by the
// QueryRouter (temp-table materialisation) and the VirtualTableManager
// (vtable.Fetcher), so both paths use one fetch-and-decode code path.
type Fetcher struct {
	registry  *registry.Registry
	cache     cache.Cache
	cacheTTL  int
	stats     CacheStatRecorder
}

func NewFetcher(reg *registry.Registry, c cache.Cache, cacheTTLSeconds int, stats CacheStatRecorder) *Fetcher {
	return &Fetcher{registry: reg, cache: c, cacheTTL: cacheTTLSeconds, stats: stats}
}

// Fetch resolves alias/remoteURI, checks the cache (unless
// bypassCache), and otherwise calls ReadResource on the alias's live
// client, populating the cache with the result.
func (f *Fetcher) Fetch(ctx context.Context, alias, remoteURI string, bypassCache bool) (payload.Payload, error) {
	key := mcpuri.CacheKey(alias, remoteURI)

	if !bypassCache {
		if p, ok := f.cache.GetFresh(key); ok {
			f.recordCacheStat(true)
			return p, nil
		}
	}
	f.recordCacheStat(false)

	desc, ok := f.registry.Get(alias)
	if !ok {
		return payload.Payload{}, brokererr.NewReferenceUnresolved(alias, "unknown alias")
	}
	if desc.Client == nil {
		return payload.Payload{}, brokererr.NewInvariantViolation("I1", "descriptor present with nil client: "+alias)
	}

	p, err := desc.Client.ReadResource(ctx, remoteURI)
	if err != nil {
		return payload.Payload{}, brokererr.NewFetchFailed(alias, remoteURI, err)
	}

	f.cache.Put(key, p, f.cacheTTL)
	return p, nil
}

func (f *Fetcher) recordCacheStat(hit bool) {
	if f.stats == nil {
		return
	}
	f.stats.RecordCacheAccess(hit, f.cache.Size())
}

// InvalidateAlias drops every cache entry belonging to alias, used on
// detach.
func (f *Fetcher) InvalidateAlias(alias string) {
	f.cache.InvalidateByPrefix(alias + ":")
}
