// Package broker implements the FederationBroker: the public façade
// composing the connection pool, resource cache, registry, mapper,
// virtual table manager, and query router.
package broker

import (
	"context"
	"sync"
	"time"

	"github.com/platformbuilds/mcp-federation-broker/internal/brokererr"
	"github.com/platformbuilds/mcp-federation-broker/internal/cache"
	"github.com/platformbuilds/mcp-federation-broker/internal/config"
	"github.com/platformbuilds/mcp-federation-broker/internal/engine"
	"github.com/platformbuilds/mcp-federation-broker/internal/logger"
	"github.com/platformbuilds/mcp-federation-broker/internal/mapper"
	"github.com/platformbuilds/mcp-federation-broker/internal/metrics"
	"github.com/platformbuilds/mcp-federation-broker/internal/pool"
	"github.com/platformbuilds/mcp-federation-broker/internal/protocol"
	"github.com/platformbuilds/mcp-federation-broker/internal/registry"
	"github.com/platformbuilds/mcp-federation-broker/internal/router"
	"github.com/platformbuilds/mcp-federation-broker/internal/transport"
	"github.com/platformbuilds/mcp-federation-broker/internal/vtable"
)

// Stats aggregates pool, cache, registry, virtual-table, and metric
// snapshots for the Stats() operation (spec §4.9).
type Stats struct {
	PoolSize      int
	CacheSize     int
	AttachedAlias []string
	VirtualTables int
	Metrics       metrics.Snapshot
}

// Broker is the FederationBroker façade. All of its collaborators
// (ConnectionPool, ResourceCache, ResourceRegistry, VirtualTableManager,
// MetricsCollector) are owned here and handed to each other only as
// non-owning handles, per the "broker-owned graph" design note.
type Broker struct {
	cfg     config.Config
	log     logger.Logger
	eng     engine.Engine
	cache   cache.Cache
	reg     *registry.Registry
	pool    *pool.Pool
	fetcher *router.Fetcher
	mapper  *mapper.Mapper
	vtables *vtable.Manager
	router  *router.Router
	metrics *metrics.Collector

	mu sync.Mutex // guards mutating registry/pool operations (attach/detach)
}

// New wires every collaborator together. This is the broker's
// one-time initialisation: if any step fails, New returns an error and
// leaves no partially-initialised Broker for callers to touch.
func New(cfg config.Config, eng engine.Engine, log logger.Logger, prom *metrics.Prometheus) (*Broker, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	reg := registry.New()
	resourceCache, err := buildCache(cfg.Registry, log)
	if err != nil {
		return nil, err
	}

	collector := metrics.New(metrics.Config{
		LogsDir:       cfg.Metrics.LogsDir,
		FlushInterval: cfg.Metrics.FlushInterval(),
		MaxFileSize:   cfg.Metrics.MaxFileSize,
		RetentionDays: cfg.Metrics.RetentionDays,
	}, log, prom)

	fetcher := router.NewFetcher(reg, resourceCache, cfg.Registry.CacheTTLSeconds, collector)

	connPool := pool.New(pool.Config{
		MaxConnections:     cfg.Pool.MaxConnections,
		ConnectionTimeout:  cfg.Pool.ConnectionTimeout(),
		RetryAttempts:      cfg.Pool.RetryAttempts,
		RetryDelay:         cfg.Pool.RetryDelay(),
		TransportPriority:  cfg.Pool.TransportPriorityTags(),
		NegotiationTimeout: cfg.Pool.NegotiationTimeout(),
	}, transport.Dial, log, collector)

	m := mapper.New(eng, log)
	vmgr := vtable.New(fetcher, m, log)

	r := router.New(router.Config{
		QueryTimeout:       cfg.Router.QueryTimeout(),
		MaxParallelQueries: cfg.Router.MaxParallelQueries,
		TempTablePrefix:    cfg.Router.TempTablePrefix,
	}, reg, fetcher, m, eng, log)

	b := &Broker{
		cfg:     cfg,
		log:     log,
		eng:     eng,
		cache:   resourceCache,
		reg:     reg,
		pool:    connPool,
		fetcher: fetcher,
		mapper:  m,
		vtables: vmgr,
		router:  r,
		metrics: collector,
	}
	collector.Start()
	return b, nil
}

// buildCache selects the ResourceCache backend named in cfg: Redis
// when CacheEnabled and a redisAddr is configured, the default
// in-process Memory backend otherwise.
func buildCache(cfg config.RegistryConfig, log logger.Logger) (cache.Cache, error) {
	if cfg.CacheEnabled && cfg.RedisAddr != "" {
		r, err := cache.NewRedis(cfg.RedisAddr, cfg.RedisDB, cfg.RedisPassword, log)
		if err != nil {
			return nil, brokererr.NewConfigError("connect distributed cache backend", err)
		}
		return r, nil
	}
	return cache.NewMemory(0, log), nil
}

// AttachServer acquires a pooled client for url, fetches initial
// resource and tool listings, and registers the descriptor under
// alias. Fails without mutating the registry if alias is already
// taken (testable property 1).
func (b *Broker) AttachServer(ctx context.Context, url, alias string, hint transport.Tag) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.reg.Get(alias); exists {
		return brokererr.NewConfigError("alias already attached: "+alias, nil)
	}

	client, err := b.pool.Get(ctx, url, hint)
	if err != nil {
		return err
	}

	resources, err := client.ListResources(ctx)
	if err != nil {
		_ = b.pool.Reset(url)
		return err
	}
	tools, err := client.ListTools(ctx)
	if err != nil {
		_ = b.pool.Reset(url)
		return err
	}

	chosenTag, _ := b.pool.TransportFor(url)
	desc := &registry.Descriptor{Alias: alias, URL: url, Transport: chosenTag, Client: client}
	desc.SetListing(resources, tools)

	if err := b.reg.Register(desc); err != nil {
		_ = b.pool.Reset(url)
		return err
	}
	return nil
}

// DetachServer closes the client, unregisters the alias, and
// invalidates its cache entries. A second call for the same alias
// fails with AlreadyDetachedError but leaves state consistent
// (testable property 9).
func (b *Broker) DetachServer(alias string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	desc, ok := b.reg.Get(alias)
	if !ok {
		return brokererr.NewAlreadyDetachedError(alias)
	}

	if err := b.reg.Unregister(alias); err != nil {
		return err
	}
	if desc.Client != nil {
		if err := desc.Client.Close(); err != nil {
			b.log.Warn("broker: detach close failed (swallowed)", "alias", alias, "error", err)
		}
	}
	_ = b.pool.Reset(desc.URL)
	b.fetcher.InvalidateAlias(alias)
	return nil
}

// ListServers returns every attached alias.
func (b *Broker) ListServers() []string { return b.reg.Aliases() }

// ListResources flattens every attached server's resource listing.
func (b *Broker) ListResources() []registry.FederatedResource { return b.reg.ListAll() }

// ListTools returns the tool listing for alias.
func (b *Broker) ListTools(alias string) ([]protocol.ToolDescriptor, error) {
	desc, ok := b.reg.Get(alias)
	if !ok {
		return nil, brokererr.NewReferenceUnresolved(alias, "unknown alias")
	}
	return desc.Tools(), nil
}

// Query delegates to the router, recording the execution into the
// metrics collector.
func (b *Broker) Query(ctx context.Context, sql string) ([]map[string]interface{}, error) {
	if err := b.triggerLazyVirtualTables(ctx, sql); err != nil {
		return nil, err
	}
	start := time.Now()
	rows, err := b.router.Query(ctx, sql)
	b.metrics.RecordQuery(sql, float64(time.Since(start).Milliseconds()), len(rows), "")
	return rows, err
}

// Explain delegates to the router's Analyse/Explain (planning only,
// never opens new connections).
func (b *Broker) Explain(sql string) (router.Plan, error) { return b.router.Explain(sql) }

// Analyse delegates to the router's Analyse.
func (b *Broker) Analyse(sql string) (router.Plan, error) { return b.router.Analyse(sql) }

// triggerLazyVirtualTables implements the query hook from spec §4.7:
// before executing SQL, detect whole-word references to lazy virtual
// tables and force-load them.
func (b *Broker) triggerLazyVirtualTables(ctx context.Context, sql string) error {
	for _, name := range b.vtables.ReferencedLazyTables(sql) {
		if err := b.vtables.EnsureLoadedForQuery(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

// CreateVirtualTable creates and eagerly loads (unless cfg.Lazy) a new
// virtual table over alias/remoteURI.
func (b *Broker) CreateVirtualTable(ctx context.Context, name, alias, remoteURI string, cfg vtable.Config) error {
	t, err := b.vtables.CreateVirtualTable(name, alias, remoteURI, cfg)
	if err != nil {
		return err
	}
	if !cfg.Lazy {
		return b.vtables.LoadVirtualTable(ctx, t.Name)
	}
	return nil
}

// RefreshVirtualTable delegates to the manager.
func (b *Broker) RefreshVirtualTable(ctx context.Context, name string) error {
	return b.vtables.RefreshVirtualTable(ctx, name)
}

// DropVirtualTable delegates to the manager.
func (b *Broker) DropVirtualTable(name string) error { return b.vtables.DropVirtualTable(name) }

// CallTool delegates to alias's protocol client.
func (b *Broker) CallTool(ctx context.Context, alias, toolName string, args map[string]interface{}) ([]byte, error) {
	desc, ok := b.reg.Get(alias)
	if !ok {
		return nil, brokererr.NewReferenceUnresolved(alias, "unknown alias")
	}
	raw, err := desc.Client.CallTool(ctx, toolName, args)
	if err != nil {
		return nil, err
	}
	return raw, nil
}

// ClearCache clears the whole cache, or just alias's entries when
// alias is non-empty.
func (b *Broker) ClearCache(alias string) {
	if alias == "" {
		b.cache.Clear()
		return
	}
	b.fetcher.InvalidateAlias(alias)
}

func (b *Broker) Stats() Stats {
	return Stats{
		PoolSize:      b.pool.Size(),
		CacheSize:     b.cache.Size(),
		AttachedAlias: b.reg.Aliases(),
		VirtualTables: b.vtables.Count(),
		Metrics:       b.metrics.Snapshot(),
	}
}

// ForceResetServer forcibly drops alias's pooled connection and clears
// its cached resources without detaching it from the registry (unlike
// DetachServer, the alias stays attached and the next query reconnects
// from scratch). killSubprocess asks a stdio transport to terminate
// its subprocess immediately rather than waiting out Close's grace
// period; use it to recover from a hung remote process.
func (b *Broker) ForceResetServer(alias string, killSubprocess bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	desc, ok := b.reg.Get(alias)
	if !ok {
		return brokererr.NewReferenceUnresolved(alias, "unknown alias")
	}
	return b.pool.ForceReset(desc.URL, pool.ForceResetOptions{
		InvalidateCache: func() { b.fetcher.InvalidateAlias(alias) },
		KillSubprocess:  killSubprocess,
	})
}

// Close stops the metrics collector and closes every attached client.
func (b *Broker) Close() {
	b.metrics.Stop()
	b.pool.ResetAll()
}
