package vtable_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/platformbuilds/mcp-federation-broker/internal/engine/sqliteengine"
	"github.com/platformbuilds/mcp-federation-broker/internal/logger"
	"github.com/platformbuilds/mcp-federation-broker/internal/mapper"
	"github.com/platformbuilds/mcp-federation-broker/internal/payload"
	"github.com/platformbuilds/mcp-federation-broker/internal/vtable"
)

// countingFetcher returns a fresh row set (tagged by a counter) on
// every Fetch, so refresh/reload observations are distinguishable.
type countingFetcher struct {
	count int64
}

func (f *countingFetcher) Fetch(ctx context.Context, alias, remoteURI string, bypassCache bool) (payload.Payload, error) {
	n := atomic.AddInt64(&f.count, 1)
	return payload.Rows([]map[string]interface{}{{"n": n}}), nil
}

func (f *countingFetcher) calls() int64 { return atomic.LoadInt64(&f.count) }

func newManager(t *testing.T) (*vtable.Manager, *countingFetcher) {
	eng, err := sqliteengine.Open("")
	require.NoError(t, err)
	m := mapper.New(eng, logger.Noop())
	f := &countingFetcher{}
	return vtable.New(f, m, logger.Noop()), f
}

func TestLoadVirtualTableIsIdempotentOnceLoaded(t *testing.T) {
	mgr, fetcher := newManager(t)
	_, err := mgr.CreateVirtualTable("t1", "alias", "remote.json", vtable.DefaultConfig())
	require.NoError(t, err)

	require.NoError(t, mgr.LoadVirtualTable(context.Background(), "t1"))
	require.NoError(t, mgr.LoadVirtualTable(context.Background(), "t1"))

	require.Equal(t, int64(1), fetcher.calls(), "a second Load on an already-loaded table must not refetch")
}

func TestEnsureLoadedForQueryTriggersLazyTableOnce(t *testing.T) {
	mgr, fetcher := newManager(t)
	cfg := vtable.Config{Lazy: true}
	tbl, err := mgr.CreateVirtualTable("lazy_tbl", "alias", "remote.json", cfg)
	require.NoError(t, err)
	require.Equal(t, vtable.StateLazyPending, tbl.State())

	require.NoError(t, mgr.EnsureLoadedForQuery(context.Background(), "lazy_tbl"))
	require.Equal(t, vtable.StateLoaded, tbl.State())
	require.NoError(t, mgr.EnsureLoadedForQuery(context.Background(), "lazy_tbl"))
	require.Equal(t, int64(1), fetcher.calls())
}

func TestReferencedLazyTablesMatchesWholeWordOnly(t *testing.T) {
	mgr, _ := newManager(t)
	_, err := mgr.CreateVirtualTable("live", "alias", "remote.json", vtable.Config{Lazy: true})
	require.NoError(t, err)

	require.Empty(t, mgr.ReferencedLazyTables(`SELECT * FROM "livestream"`))
	require.ElementsMatch(t, []string{"live"}, mgr.ReferencedLazyTables(`SELECT * FROM live WHERE x=1`))
}

func TestRefreshVirtualTableSkipsConcurrentRefresh(t *testing.T) {
	mgr, _ := newManager(t)
	_, err := mgr.CreateVirtualTable("t1", "alias", "remote.json", vtable.DefaultConfig())
	require.NoError(t, err)
	require.NoError(t, mgr.LoadVirtualTable(context.Background(), "t1"))

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = mgr.RefreshVirtualTable(context.Background(), "t1")
		}()
	}
	wg.Wait()
	// No assertion on exact fetch count (races are expected to collapse
	// some refreshes), this test exists to catch a panic/deadlock under
	// -race rather than to pin a count.
}

func TestDropVirtualTableStopsTimerAndUnmapsTable(t *testing.T) {
	mgr, fetcher := newManager(t)
	cfg := vtable.Config{AutoRefresh: true, RefreshInterval: 20 * time.Millisecond}
	_, err := mgr.CreateVirtualTable("live", "alias", "remote.json", cfg)
	require.NoError(t, err)
	require.NoError(t, mgr.LoadVirtualTable(context.Background(), "live"))

	require.Eventually(t, func() bool {
		return fetcher.calls() >= 2
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, mgr.DropVirtualTable("live"))
	callsAtDrop := fetcher.calls()
	time.Sleep(200 * time.Millisecond)
	require.Equal(t, callsAtDrop, fetcher.calls(), "timer must stop firing after drop")

	_, ok := mgr.Get("live")
	require.False(t, ok)
}
