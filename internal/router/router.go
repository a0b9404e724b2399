// Package router implements the QueryRouter: detecting federated
// references in SQL, materialising each as a temp table, rewriting the
// query, and executing it against the engine.
package router

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/platformbuilds/mcp-federation-broker/internal/brokererr"
	"github.com/platformbuilds/mcp-federation-broker/internal/engine"
	"github.com/platformbuilds/mcp-federation-broker/internal/logger"
	"github.com/platformbuilds/mcp-federation-broker/internal/mapper"
	"github.com/platformbuilds/mcp-federation-broker/internal/mcpuri"
	"github.com/platformbuilds/mcp-federation-broker/internal/registry"
)

// Config bounds one Query call's behaviour, mirroring spec §6
// "Router" options.
type Config struct {
	QueryTimeout       time.Duration
	MaxParallelQueries int
	TempTablePrefix    string
}

func DefaultConfig() Config {
	return Config{
		QueryTimeout:       60 * time.Second,
		MaxParallelQueries: 5,
		TempTablePrefix:    "mcp_temp_",
	}
}

// Router is the QueryRouter.
type Router struct {
	cfg     Config
	reg     *registry.Registry
	fetcher *Fetcher
	mapper  *mapper.Mapper
	eng     engine.Engine
	log     logger.Logger
}

func New(cfg Config, reg *registry.Registry, fetcher *Fetcher, m *mapper.Mapper, eng engine.Engine, log logger.Logger) *Router {
	return &Router{cfg: cfg, reg: reg, fetcher: fetcher, mapper: m, eng: eng, log: log}
}

// Plan is the output of Analyse/Explain: the references a query would
// touch and the servers that would be contacted, without opening any
// new connections.
type Plan struct {
	References []mcpuri.Reference
	Servers    []string
}

// Analyse performs steps 1-2 only (scan + resolve) and never opens
// new connections.
func (r *Router) Analyse(sql string) (Plan, error) {
	occs := ScanReferences(sql)
	refs := DistinctReferences(occs)
	servers := make(map[string]bool)
	for _, ref := range refs {
		if _, ok := r.reg.Get(ref.Alias); !ok {
			return Plan{}, brokererr.NewReferenceUnresolved(ref.Federated(), "unknown alias: "+ref.Alias)
		}
		servers[ref.Alias] = true
	}
	serverList := make([]string, 0, len(servers))
	for s := range servers {
		serverList = append(serverList, s)
	}
	return Plan{References: refs, Servers: serverList}, nil
}

// Explain is an alias for Analyse; both only plan, never execute.
func (r *Router) Explain(sql string) (Plan, error) {
	return r.Analyse(sql)
}

// Query scans sql for federated references, materialises each as a
// temp table, rewrites the SQL, and executes it. A single failing
// reference aborts the whole query (no partial join with missing
// sources). Temp tables are dropped best-effort after execution.
func (r *Router) Query(ctx context.Context, sql string) ([]map[string]interface{}, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.QueryTimeout)
	defer cancel()

	occs := ScanReferences(sql)
	if len(occs) == 0 {
		rows, err := r.eng.Execute(sql)
		if err != nil {
			return nil, brokererr.NewExecuteFailed(err)
		}
		return rows, nil
	}

	refs := DistinctReferences(occs)
	tempNames, err := r.materialiseAll(ctx, refs)
	defer r.dropAll(tempNames)
	if err != nil {
		return nil, err
	}

	rewritten := r.rewrite(sql, occs, tempNames)
	rows, err := r.eng.Execute(rewritten)
	if err != nil {
		return nil, brokererr.NewExecuteFailed(err)
	}
	return rows, nil
}

// materialiseAll fetches and maps every distinct reference, up to
// MaxParallelQueries concurrently. Cancelling ctx aborts outstanding
// fetches; any already-materialised temp tables are returned so the
// caller can still drop them.
func (r *Router) materialiseAll(ctx context.Context, refs []mcpuri.Reference) (map[mcpuri.Reference]string, error) {
	tempNames := make(map[mcpuri.Reference]string, len(refs))
	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, maxInt(1, r.cfg.MaxParallelQueries))
	errCh := make(chan error, len(refs))

	fetchCtx, cancelFetches := context.WithCancel(ctx)
	defer cancelFetches()

	for _, ref := range refs {
		ref := ref
		wg.Add(1)
		go func() {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-fetchCtx.Done():
				errCh <- fetchCtx.Err()
				return
			}
			defer func() { <-sem }()

			p, err := r.fetcher.Fetch(fetchCtx, ref.Alias, ref.RemoteURI, false)
			if err != nil {
				errCh <- err
				cancelFetches()
				return
			}
			name := r.tempTableName()
			if _, err := r.mapper.Map(name, ref.Key(), p, 0); err != nil {
				errCh <- err
				cancelFetches()
				return
			}
			mu.Lock()
			tempNames[ref] = name
			mu.Unlock()
		}()
	}
	wg.Wait()
	close(errCh)

	if err, ok := <-errCh; ok && err != nil {
		return tempNames, err
	}
	return tempNames, nil
}

func (r *Router) tempTableName() string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("%s%s", r.cfg.TempTablePrefix, suffix)
}

// rewrite substitutes every occurrence of a federated reference token
// with its temp table identifier. This is plain substring replacement,
// not SQL-aware rewriting: acceptable here because the mcp:// scheme
// is unique, the temp table name is freshly generated, and the
// engine's grammar treats the replacement as a plain identifier. It
// does not special-case string literals, matching the documented
// source behaviour (spec design notes, open question on SQL
// rewriting) — a federated token embedded inside an otherwise-literal
// string is rewritten the same as anywhere else.
func (r *Router) rewrite(sql string, occs []Occurrence, tempNames map[mcpuri.Reference]string) string {
	out := sql
	for _, occ := range occs {
		name, ok := tempNames[occ.Reference]
		if !ok {
			continue
		}
		out = strings.ReplaceAll(out, occ.Token, `"`+strings.ReplaceAll(name, `"`, `""`)+`"`)
	}
	return out
}

// dropAll drops every materialised temp table, best-effort; errors are
// logged, never surfaced (they must not mask the primary error).
func (r *Router) dropAll(tempNames map[mcpuri.Reference]string) {
	for _, name := range tempNames {
		if err := r.mapper.Unmap(name); err != nil {
			r.log.Warn("router: temp table cleanup failed", "table", name, "error", err)
		}
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
