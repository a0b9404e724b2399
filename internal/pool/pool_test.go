package pool_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/platformbuilds/mcp-federation-broker/internal/brokererr"
	"github.com/platformbuilds/mcp-federation-broker/internal/logger"
	"github.com/platformbuilds/mcp-federation-broker/internal/pool"
	"github.com/platformbuilds/mcp-federation-broker/internal/testsupport"
	"github.com/platformbuilds/mcp-federation-broker/internal/transport"
)

// dialCountingDialer hands out a fresh FakeServer-backed transport on
// every call and counts how many times it was actually invoked,
// to verify Get coalesces concurrent callers onto a single connect.
func dialCountingDialer(t *testing.T) (pool.Dialer, *int64) {
	var calls int64
	dialer := func(tag transport.Tag, url string, log logger.Logger) (transport.Transport, error) {
		atomic.AddInt64(&calls, 1)
		_, tr := testsupport.NewFakeServer()
		return tr, nil
	}
	return dialer, &calls
}

func TestPoolReusesConnectionForSameURL(t *testing.T) {
	dialer, calls := dialCountingDialer(t)
	p := pool.New(pool.DefaultConfig(), dialer, logger.Noop(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c1, err := p.Get(ctx, "stdio://server-a", transport.TagStdio)
	require.NoError(t, err)
	c2, err := p.Get(ctx, "stdio://server-a", transport.TagStdio)
	require.NoError(t, err)

	require.Same(t, c1, c2)
	require.Equal(t, int64(1), atomic.LoadInt64(calls))
	require.Equal(t, 1, p.Size())
}

func TestPoolCoalescesConcurrentGetsForSameURL(t *testing.T) {
	dialer, calls := dialCountingDialer(t)
	p := pool.New(pool.DefaultConfig(), dialer, logger.Noop(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := p.Get(ctx, "stdio://shared", transport.TagStdio)
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	require.Equal(t, int64(1), atomic.LoadInt64(calls))
}

func TestPoolExhaustionReturnsTypedError(t *testing.T) {
	dialer, _ := dialCountingDialer(t)
	cfg := pool.DefaultConfig()
	cfg.MaxConnections = 1
	p := pool.New(cfg, dialer, logger.Noop(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := p.Get(ctx, "stdio://first", transport.TagStdio)
	require.NoError(t, err)

	_, err = p.Get(ctx, "stdio://second", transport.TagStdio)
	require.Error(t, err)
	require.Contains(t, err.Error(), "pool exhausted")
	var exhausted *brokererr.PoolExhaustedError
	require.ErrorAs(t, err, &exhausted)
}

func TestPoolResetClosesAndDrops(t *testing.T) {
	dialer, _ := dialCountingDialer(t)
	p := pool.New(pool.DefaultConfig(), dialer, logger.Noop(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := p.Get(ctx, "stdio://server-a", transport.TagStdio)
	require.NoError(t, err)
	require.Equal(t, 1, p.Size())

	require.NoError(t, p.Reset("stdio://server-a"))
	require.Equal(t, 0, p.Size())
}

func TestPoolForceResetRunsInvalidateCacheAndDropsClient(t *testing.T) {
	dialer, _ := dialCountingDialer(t)
	p := pool.New(pool.DefaultConfig(), dialer, logger.Noop(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := p.Get(ctx, "stdio://server-a", transport.TagStdio)
	require.NoError(t, err)
	require.Equal(t, 1, p.Size())

	var invalidated bool
	err = p.ForceReset("stdio://server-a", pool.ForceResetOptions{
		InvalidateCache: func() { invalidated = true },
	})
	require.NoError(t, err)
	require.True(t, invalidated)
	require.Equal(t, 0, p.Size())
}

func TestPoolForceResetRunsInvalidateCacheEvenWhenURLUnknown(t *testing.T) {
	dialer, _ := dialCountingDialer(t)
	p := pool.New(pool.DefaultConfig(), dialer, logger.Noop(), nil)

	var invalidated bool
	err := p.ForceReset("stdio://never-dialed", pool.ForceResetOptions{
		InvalidateCache: func() { invalidated = true },
	})
	require.NoError(t, err)
	require.True(t, invalidated, "InvalidateCache must run even when there is no pooled client to drop")
}

// killableTransport wraps a FakeTransport to satisfy the pool's
// `Kill() error` capability assertion, so ForceReset's KillSubprocess
// path can be exercised without a real subprocess.
type killableTransport struct {
	transport.Transport
	killed *bool
}

func (k *killableTransport) Kill() error {
	*k.killed = true
	return k.Transport.Close()
}

func TestPoolForceResetKillsSubprocessWhenRequested(t *testing.T) {
	var killed bool
	dialer := func(tag transport.Tag, url string, log logger.Logger) (transport.Transport, error) {
		_, tr := testsupport.NewFakeServer()
		return &killableTransport{Transport: tr, killed: &killed}, nil
	}
	p := pool.New(pool.DefaultConfig(), dialer, logger.Noop(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := p.Get(ctx, "stdio://server-a", transport.TagStdio)
	require.NoError(t, err)

	err = p.ForceReset("stdio://server-a", pool.ForceResetOptions{KillSubprocess: true})
	require.NoError(t, err)
	require.True(t, killed, "ForceReset with KillSubprocess must use the transport's Kill capability")
}
