// Package protocol implements JSON-RPC 2.0 request/response
// correlation on top of a transport.Transport, plus the thin
// higher-level MCP method wrappers the broker needs.
package protocol

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/platformbuilds/mcp-federation-broker/internal/brokererr"
	"github.com/platformbuilds/mcp-federation-broker/internal/logger"
	"github.com/platformbuilds/mcp-federation-broker/internal/transport"
)

// NotificationHandler receives unsolicited server notifications
// dispatched outside the request/response correlation table.
type NotificationHandler func(method string, params json.RawMessage)

// Client wraps a transport.Transport and implements JSON-RPC 2.0
// request/response correlation via an explicit id table: a monotonic
// counter plus a map from id to a one-shot resolver.
type Client struct {
	tr  transport.Transport
	log logger.Logger

	nextID int64

	mu      sync.Mutex
	pending map[int64]chan Frame
	closed  bool

	onNotify NotificationHandler

	readLoopDone chan struct{}
}

// NewClient wraps an already-constructed Transport. Connect must be
// called (by the pool, during negotiation) before Request/Notify.
func NewClient(tr transport.Transport, log logger.Logger, onNotify NotificationHandler) *Client {
	c := &Client{
		tr:           tr,
		log:          log,
		pending:      make(map[int64]chan Frame),
		onNotify:     onNotify,
		readLoopDone: make(chan struct{}),
	}
	return c
}

// Start launches the background read loop. Call once, after Connect.
func (c *Client) Start(ctx context.Context) {
	go c.readLoop(ctx)
}

func (c *Client) readLoop(ctx context.Context) {
	defer close(c.readLoopDone)
	for {
		raw, err := c.tr.Recv(ctx)
		if err != nil {
			c.failAllPending(fmt.Errorf("transport closed: %w", err))
			return
		}
		var frame Frame
		if err := json.Unmarshal(raw, &frame); err != nil {
			c.log.Warn("protocol client: malformed frame", "error", err)
			continue
		}
		c.dispatch(frame)
	}
}

func (c *Client) dispatch(frame Frame) {
	if frame.IsResponse() {
		var id int64
		if err := json.Unmarshal(frame.ID, &id); err != nil {
			c.log.Warn("protocol client: response with unparsable id", "error", err)
			return
		}
		c.mu.Lock()
		ch, ok := c.pending[id]
		if ok {
			delete(c.pending, id)
		}
		c.mu.Unlock()
		if !ok {
			c.log.Warn("protocol client: response for unknown id", "id", id)
			return
		}
		ch <- frame
		return
	}
	if frame.IsNotification() && c.onNotify != nil {
		c.onNotify(frame.Method, frame.Params)
	}
}

// Request sends a JSON-RPC request and blocks until its matching
// response arrives, timeout elapses, or ctx is cancelled.
func (c *Client) Request(ctx context.Context, method string, params interface{}, timeout time.Duration) (json.RawMessage, error) {
	id := atomic.AddInt64(&c.nextID, 1)
	frame, err := newRequestFrame(id, method, params)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	raw, err := json.Marshal(frame)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	ch := make(chan Frame, 1)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, brokererr.NewTransportError(string(c.tr.Tag()), "request", fmt.Errorf("client closed"))
	}
	c.pending[id] = ch
	c.mu.Unlock()

	cleanup := func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}

	if err := c.tr.Send(ctx, raw); err != nil {
		cleanup()
		return nil, brokererr.NewTransportError(string(c.tr.Tag()), "send", err)
	}

	reqCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		reqCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	select {
	case resp := <-ch:
		if resp.Error != nil {
			return nil, brokererr.NewProtocolError(resp.Error.Code, resp.Error.Message, resp.Error.Data)
		}
		return resp.Result, nil
	case <-reqCtx.Done():
		cleanup()
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, brokererr.NewTimeoutError(method, timeout.String())
	}
}

// Notify sends a fire-and-forget JSON-RPC notification.
func (c *Client) Notify(ctx context.Context, method string, params interface{}) error {
	frame, err := newNotificationFrame(method, params)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	raw, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	if err := c.tr.Send(ctx, raw); err != nil {
		return brokererr.NewTransportError(string(c.tr.Tag()), "notify", err)
	}
	return nil
}

// Close cancels all pending requests with a TransportError("closed")
// and closes the underlying transport. Close drains the pending table
// before returning and is safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.failAllPending(fmt.Errorf("closed"))
	return c.tr.Close()
}

func (c *Client) failAllPending(cause error) {
	c.mu.Lock()
	pending := c.pending
	c.pending = make(map[int64]chan Frame)
	c.mu.Unlock()
	for id, ch := range pending {
		ch <- Frame{
			Error: &WireError{Code: -32000, Message: brokererr.NewTransportError(string(c.tr.Tag()), "closed", cause).Error()},
			ID:    mustMarshalID(id),
		}
	}
}

func mustMarshalID(id int64) json.RawMessage {
	raw, _ := json.Marshal(id)
	return raw
}

// Transport exposes the underlying transport, primarily so the pool
// can inspect State()/Tag() without a type assertion.
func (c *Client) Transport() transport.Transport { return c.tr }
