// Package pool implements the ConnectionPool: server URL to active
// ProtocolClient, transport auto-negotiation, reuse, and bounded
// concurrency.
package pool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/platformbuilds/mcp-federation-broker/internal/brokererr"
	"github.com/platformbuilds/mcp-federation-broker/internal/logger"
	"github.com/platformbuilds/mcp-federation-broker/internal/protocol"
	"github.com/platformbuilds/mcp-federation-broker/internal/transport"
)

// Config bounds the pool's connection behaviour; every field mirrors
// a named option in the external configuration (spec §6 "Pool").
type Config struct {
	MaxConnections     int
	ConnectionTimeout  time.Duration
	RetryAttempts      int
	RetryDelay         time.Duration
	TransportPriority  []transport.Tag
	NegotiationTimeout time.Duration
}

// DefaultConfig matches the broker-registered defaults (10
// connections); a gateway-facing preset may override MaxConnections to
// 50, per spec §9 open question (c) — both are valid, runtime
// configurable values.
func DefaultConfig() Config {
	return Config{
		MaxConnections:     10,
		ConnectionTimeout:  30 * time.Second,
		RetryAttempts:      2,
		RetryDelay:         500 * time.Millisecond,
		TransportPriority:  transport.DefaultPriority,
		NegotiationTimeout: 30 * time.Second,
	}
}

// Dialer builds an unconnected Transport for one (tag, url) pair. The
// pool calls Connect itself; factoring construction out keeps pool.go
// free of per-transport URL-parsing detail (that lives in
// internal/transport).
type Dialer func(tag transport.Tag, url string, log logger.Logger) (transport.Transport, error)

type slot struct {
	client    *protocol.Client
	transport transport.Tag
}

// Pool maps canonical server URL to an active protocol.Client.
type Pool struct {
	cfg    Config
	dial   Dialer
	log    logger.Logger
	onStat StatRecorder

	mu       sync.Mutex
	clients  map[string]*slot
	inflight map[string]chan struct{}
}

// StatRecorder receives pool hit/miss and size observations for the
// MetricsCollector (C10); nil is a valid no-op recorder.
type StatRecorder interface {
	RecordPoolAccess(hit bool, size int)
}

func New(cfg Config, dial Dialer, log logger.Logger, stats StatRecorder) *Pool {
	return &Pool{
		cfg:      cfg,
		dial:     dial,
		log:      log,
		onStat:   stats,
		clients:  make(map[string]*slot),
		inflight: make(map[string]chan struct{}),
	}
}

// Get returns the live client for url, connecting (and negotiating a
// transport, if hint is TagAuto) on first access. Concurrent Get calls
// for the same url coalesce onto a single connect attempt.
func (p *Pool) Get(ctx context.Context, url string, hint transport.Tag) (*protocol.Client, error) {
	p.mu.Lock()
	if s, ok := p.clients[url]; ok && s.client.Transport().IsConnected() {
		p.mu.Unlock()
		p.recordStat(true)
		return s.client, nil
	}
	if wait, inflight := p.inflight[url]; inflight {
		p.mu.Unlock()
		select {
		case <-wait:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return p.Get(ctx, url, hint)
	}
	if len(p.clients) >= p.cfg.MaxConnections {
		p.mu.Unlock()
		return nil, brokererr.NewPoolExhaustedError(url, p.cfg.MaxConnections)
	}
	done := make(chan struct{})
	p.inflight[url] = done
	p.mu.Unlock()

	client, chosenTag, err := p.connect(ctx, url, hint)

	p.mu.Lock()
	delete(p.inflight, url)
	if err == nil {
		p.clients[url] = &slot{client: client, transport: chosenTag}
	}
	p.mu.Unlock()
	close(done)

	p.recordStat(false)
	if err != nil {
		return nil, err
	}
	return client, nil
}

func (p *Pool) recordStat(hit bool) {
	if p.onStat == nil {
		return
	}
	p.mu.Lock()
	size := len(p.clients)
	p.mu.Unlock()
	p.onStat.RecordPoolAccess(hit, size)
}

func (p *Pool) connect(ctx context.Context, url string, hint transport.Tag) (*protocol.Client, transport.Tag, error) {
	priority := p.cfg.TransportPriority
	tags := []transport.Tag{hint}
	if hint == transport.TagAuto || hint == "" {
		tags = priority
	}

	var lastErr error
	for _, tag := range tags {
		client, err := p.tryConnect(ctx, url, tag)
		if err == nil {
			return client, tag, nil
		}
		lastErr = err
		p.log.Warn("pool: transport negotiation attempt failed", "url", url, "transport", tag, "error", err)
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no transports attempted")
	}
	return nil, "", brokererr.NewTransportError(string(hint), "connect", lastErr)
}

func (p *Pool) tryConnect(ctx context.Context, url string, tag transport.Tag) (*protocol.Client, error) {
	var lastErr error
	for attempt := 0; attempt <= p.cfg.RetryAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(p.cfg.RetryDelay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		tr, err := p.dial(tag, url, p.log)
		if err != nil {
			lastErr = err
			continue
		}
		connectCtx, cancel := context.WithTimeout(ctx, p.cfg.ConnectionTimeout)
		err = tr.Connect(connectCtx)
		cancel()
		if err != nil {
			lastErr = err
			continue
		}
		client := protocol.NewClient(tr, p.log, nil)
		client.Start(context.Background())
		if _, err := client.Initialize(ctx); err != nil {
			// For HTTP this is exactly the "successful negotiation"
			// bar the spec asks for: a completed initialize round
			// trip, not merely a TCP-level connect.
			_ = client.Close()
			lastErr = err
			continue
		}
		return client, nil
	}
	return nil, lastErr
}

// Reset closes and drops the client for url.
func (p *Pool) Reset(url string) error {
	p.mu.Lock()
	s, ok := p.clients[url]
	delete(p.clients, url)
	p.mu.Unlock()
	if !ok {
		return nil
	}
	return s.client.Close()
}

// ForceResetOptions configures a ForceReset call beyond Reset's plain
// close-and-drop.
type ForceResetOptions struct {
	// InvalidateCache, if set, runs after the client is dropped to
	// clear cache entries for whichever alias resolved to this URL.
	InvalidateCache func()
	// KillSubprocess asks a stdio transport to terminate its
	// subprocess immediately instead of waiting out Close's grace
	// period. Ignored for non-stdio transports.
	KillSubprocess bool
}

// ForceReset closes and drops the client for url like Reset, but also
// runs opts.InvalidateCache and, for stdio clients with
// opts.KillSubprocess set, kills the subprocess immediately rather
// than waiting for it to exit gracefully.
func (p *Pool) ForceReset(url string, opts ForceResetOptions) error {
	p.mu.Lock()
	s, ok := p.clients[url]
	delete(p.clients, url)
	p.mu.Unlock()

	if opts.InvalidateCache != nil {
		opts.InvalidateCache()
	}
	if !ok {
		return nil
	}
	if opts.KillSubprocess {
		if killer, ok := s.client.Transport().(interface{ Kill() error }); ok {
			return killer.Kill()
		}
	}
	return s.client.Close()
}

// ResetAll closes and drops every client.
func (p *Pool) ResetAll() {
	p.mu.Lock()
	clients := p.clients
	p.clients = make(map[string]*slot)
	p.mu.Unlock()
	for _, s := range clients {
		_ = s.client.Close()
	}
}

// Size returns the number of currently pooled clients.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.clients)
}

// TransportFor reports which transport tag was negotiated for url, if
// pooled.
func (p *Pool) TransportFor(url string) (transport.Tag, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.clients[url]
	if !ok {
		return "", false
	}
	return s.transport, true
}
