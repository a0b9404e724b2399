package scenarios_test

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/platformbuilds/mcp-federation-broker/internal/brokererr"
	"github.com/platformbuilds/mcp-federation-broker/internal/cache"
	"github.com/platformbuilds/mcp-federation-broker/internal/engine"
	"github.com/platformbuilds/mcp-federation-broker/internal/engine/sqliteengine"
	"github.com/platformbuilds/mcp-federation-broker/internal/logger"
	"github.com/platformbuilds/mcp-federation-broker/internal/mapper"
	"github.com/platformbuilds/mcp-federation-broker/internal/mcpuri"
	"github.com/platformbuilds/mcp-federation-broker/internal/protocol"
	"github.com/platformbuilds/mcp-federation-broker/internal/registry"
	"github.com/platformbuilds/mcp-federation-broker/internal/router"
	"github.com/platformbuilds/mcp-federation-broker/internal/testsupport"
	"github.com/platformbuilds/mcp-federation-broker/internal/vtable"
)

// countingStats is a router.CacheStatRecorder test double that counts
// hits and misses directly, so these scenarios need no MetricsCollector
// (with its log directory and flush loop) just to read cache counters.
type countingStats struct {
	mu           sync.Mutex
	hits, misses int
}

func (c *countingStats) RecordCacheAccess(hit bool, size int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if hit {
		c.hits++
	} else {
		c.misses++
	}
}

func (c *countingStats) snapshot() (hits, misses int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

// harness wires one registry/cache/fetcher/mapper/router/vtable graph
// against a fresh in-memory engine, mirroring what broker.New wires
// internally minus the connection pool (tests attach a fake transport
// descriptor directly instead of dialing).
type harness struct {
	reg     *registry.Registry
	cache   cache.Cache
	stats   *countingStats
	fetcher *router.Fetcher
	mapper  *mapper.Mapper
	eng     engine.Engine
	router  *router.Router
	vtables *vtable.Manager
	log     logger.Logger
}

func newHarness() *harness {
	log := logger.Noop()
	eng, err := sqliteengine.Open("")
	Expect(err).NotTo(HaveOccurred())

	reg := registry.New()
	mem := cache.NewMemory(0, log)
	stats := &countingStats{}
	fetcher := router.NewFetcher(reg, mem, 60, stats)
	m := mapper.New(eng, log)
	rtr := router.New(router.DefaultConfig(), reg, fetcher, m, eng, log)
	vmgr := vtable.New(fetcher, m, log)

	return &harness{reg: reg, cache: mem, stats: stats, fetcher: fetcher, mapper: m, eng: eng, router: rtr, vtables: vmgr, log: log}
}

// attach registers alias against a FakeServer's resources and returns
// the server so the test can inspect read counts.
func (h *harness) attach(ctx context.Context, alias string, resources ...*testsupport.Resource) *testsupport.FakeServer {
	server, tr := testsupport.NewFakeServer(resources...)
	Expect(tr.Connect(ctx)).To(Succeed())
	client := protocol.NewClient(tr, h.log, nil)
	client.Start(ctx)
	_, err := client.Initialize(ctx)
	Expect(err).NotTo(HaveOccurred())

	desc := &registry.Descriptor{Alias: alias, URL: "fake://" + alias, Transport: tr.Tag(), Client: client}
	Expect(h.reg.Register(desc)).To(Succeed())
	return server
}

// detach mirrors broker.DetachServer's registry/cache effects (minus
// closing a real transport, since the fake one has nothing to flush).
func (h *harness) detach(alias string) {
	Expect(h.reg.Unregister(alias)).To(Succeed())
	h.fetcher.InvalidateAlias(alias)
}

var _ = Describe("federated query scenarios", func() {
	var ctx context.Context
	var cancel context.CancelFunc

	BeforeEach(func() {
		ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
	})

	AfterEach(func() {
		cancel()
	})

	// E1 — Single federation
	It("resolves a federated JSON resource into query rows", func() {
		h := newHarness()
		h.attach(ctx, "github", &testsupport.Resource{
			URI:      "issues.json",
			MimeType: "application/json",
			Content: func() (string, []byte) {
				return `[{"id":1,"state":"open"},{"id":2,"state":"closed"}]`, nil
			},
		})

		rows, err := h.router.Query(ctx, `SELECT id FROM 'mcp://github/issues.json' WHERE state='open'`)
		Expect(err).NotTo(HaveOccurred())
		Expect(rows).To(HaveLen(1))
		Expect(fmt.Sprintf("%v", rows[0]["id"])).To(Equal("1"))
	})

	// E2 — Cache hit
	It("serves the second identical read from cache", func() {
		h := newHarness()
		server := h.attach(ctx, "github", &testsupport.Resource{
			URI:      "issues.json",
			MimeType: "application/json",
			Content: func() (string, []byte) {
				return `[{"id":1,"state":"open"}]`, nil
			},
		})

		sql := `SELECT id FROM 'mcp://github/issues.json'`
		_, err := h.router.Query(ctx, sql)
		Expect(err).NotTo(HaveOccurred())
		_, err = h.router.Query(ctx, sql)
		Expect(err).NotTo(HaveOccurred())

		Expect(server.ReadCount("issues.json")).To(Equal(int64(1)))
		hits, misses := h.stats.snapshot()
		Expect(misses).To(Equal(1))
		Expect(hits).To(Equal(1))
	})

	// E3 — Detach invalidation
	It("unresolves references and drops cache entries after detach", func() {
		h := newHarness()
		h.attach(ctx, "github", &testsupport.Resource{
			URI:      "issues.json",
			MimeType: "application/json",
			Content: func() (string, []byte) {
				return `[{"id":1,"state":"open"}]`, nil
			},
		})

		sql := `SELECT id FROM 'mcp://github/issues.json'`
		_, err := h.router.Query(ctx, sql)
		Expect(err).NotTo(HaveOccurred())
		sizeBefore := h.cache.Size()

		h.detach("github")

		sizeAfter := h.cache.Size()
		Expect(sizeAfter).To(Equal(sizeBefore - 1))

		_, err = h.router.Query(ctx, sql)
		Expect(err).To(HaveOccurred())
		var refErr *brokererr.ReferenceUnresolved
		Expect(err).To(BeAssignableToTypeOf(refErr))
	})

	// E4 — CSV text payload
	It("materialises a CSV text payload and counts its rows", func() {
		h := newHarness()
		h.attach(ctx, "s", &testsupport.Resource{
			URI:      "data.csv",
			MimeType: "text/csv",
			Content: func() (string, []byte) {
				return "id,name\n1,Alice\n2,Bob", nil
			},
		})

		rows, err := h.router.Query(ctx, `SELECT COUNT(*) AS count FROM 'mcp://s/data.csv'`)
		Expect(err).NotTo(HaveOccurred())
		Expect(rows).To(HaveLen(1))
		Expect(fmt.Sprintf("%v", rows[0]["count"])).To(Equal("2"))
	})

	// E5 — Parquet payload with cleanup
	It("always unlinks the temp parquet file and never caches it", func() {
		h := newHarness()
		h.attach(ctx, "s", &testsupport.Resource{
			URI:      "data.parquet",
			MimeType: "application/vnd.apache.parquet",
			Content: func() (string, []byte) {
				return "", []byte("not a real parquet file, just bytes")
			},
		})

		p, err := h.fetcher.Fetch(ctx, "s", "data.parquet", false)
		Expect(err).NotTo(HaveOccurred())
		Expect(p.Path).NotTo(BeEmpty())
		_, statErr := os.Stat(p.Path)
		Expect(statErr).NotTo(HaveOccurred())

		_, mapErr := h.mapper.Map("parquet_tbl", mcpuri.CacheKey("s", "data.parquet"), p, 0)
		// The reference engine has no Parquet reader; materialisation is
		// expected to fail, but the temp file must still be gone.
		Expect(mapErr).To(HaveOccurred())

		_, statErr = os.Stat(p.Path)
		Expect(os.IsNotExist(statErr)).To(BeTrue())

		_, cached := h.cache.GetFresh(mcpuri.CacheKey("s", "data.parquet"))
		Expect(cached).To(BeFalse())
	})

	// E6 — Virtual table auto-refresh
	It("refreshes a virtual table on a timer and stops after drop", func() {
		h := newHarness()
		var counter int64
		server := h.attach(ctx, "live", &testsupport.Resource{
			URI:      "live.json",
			MimeType: "application/json",
			Content: func() (string, []byte) {
				n := atomic.AddInt64(&counter, 1)
				return fmt.Sprintf(`[{"n":%d}]`, n), nil
			},
		})

		cfg := vtable.Config{Lazy: false, MaxRows: 0, AutoRefresh: true, RefreshInterval: 200 * time.Millisecond}
		_, err := h.vtables.CreateVirtualTable("live_tbl", "live", "live.json", cfg)
		Expect(err).NotTo(HaveOccurred())
		Expect(h.vtables.LoadVirtualTable(ctx, "live_tbl")).To(Succeed())

		Eventually(func() int64 {
			return server.ReadCount("live.json")
		}, "1s", "20ms").Should(BeNumerically(">=", 3))

		rowsA, err := h.eng.Execute(`SELECT n FROM "live_tbl"`)
		Expect(err).NotTo(HaveOccurred())

		Eventually(func() string {
			rows, err := h.eng.Execute(`SELECT n FROM "live_tbl"`)
			if err != nil || len(rows) == 0 {
				return ""
			}
			return fmt.Sprintf("%v", rows[0]["n"])
		}, "1s", "20ms").ShouldNot(Equal(fmt.Sprintf("%v", rowsA[0]["n"])))

		Expect(h.vtables.DropVirtualTable("live_tbl")).To(Succeed())

		before := server.ReadCount("live.json")
		time.Sleep(500 * time.Millisecond)
		after := server.ReadCount("live.json")
		Expect(after).To(Equal(before))
	})
})
