package transport

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/platformbuilds/mcp-federation-broker/internal/logger"
)

// defaultMaxReconnectAttempts is N in the capped exponential backoff
// reconnection policy the spec describes.
const defaultMaxReconnectAttempts = 3

const pingInterval = 20 * time.Second

// WebSocket is a single persistent-socket transport where each frame
// is one JSON-RPC object. Connect retries the dial up to
// maxReconnectAttempts times with exponential backoff, and the
// connection is kept alive with ping/pong frames; a socket that drops
// after Connect has returned is not re-dialed.
type WebSocket struct {
	url     string
	headers http.Header
	log     logger.Logger

	maxReconnectAttempts int
	dialer               *websocket.Dialer

	mu    sync.Mutex
	state State
	conn  *websocket.Conn

	closeOnce sync.Once
	stopPing  chan struct{}
}

func NewWebSocket(url string, headers map[string]string, log logger.Logger) *WebSocket {
	h := http.Header{}
	for k, v := range headers {
		h.Set(k, v)
	}
	return &WebSocket{
		url:                  url,
		headers:              h,
		log:                  log,
		maxReconnectAttempts: defaultMaxReconnectAttempts,
		dialer:               websocket.DefaultDialer,
		state:                NotCreated,
	}
}

func (w *WebSocket) Tag() Tag { return TagWebSocket }

func (w *WebSocket) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

func (w *WebSocket) IsConnected() bool { return w.State() == Open }

func (w *WebSocket) Connect(ctx context.Context) error {
	w.mu.Lock()
	if w.state != NotCreated {
		w.mu.Unlock()
		return fmt.Errorf("websocket transport: Connect called twice")
	}
	w.state = Connecting
	w.mu.Unlock()

	conn, err := w.dialWithRetry(ctx)
	if err != nil {
		w.setState(Errored)
		return &ConnectError{Tag: TagWebSocket, URL: w.url, Cause: err}
	}

	w.mu.Lock()
	w.conn = conn
	w.state = Open
	w.stopPing = make(chan struct{})
	stop := w.stopPing
	w.mu.Unlock()

	go w.keepAlive(stop)
	return nil
}

func (w *WebSocket) dialWithRetry(ctx context.Context) (*websocket.Conn, error) {
	var lastErr error
	backoff := 200 * time.Millisecond
	for attempt := 0; attempt < w.maxReconnectAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
		conn, _, err := w.dialer.DialContext(ctx, w.url, w.headers)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		w.log.Warn("websocket dial attempt failed", "url", w.url, "attempt", attempt+1, "error", err)
	}
	return nil, lastErr
}

func (w *WebSocket) keepAlive(stop chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			w.mu.Lock()
			conn := w.conn
			w.mu.Unlock()
			if conn == nil {
				return
			}
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				w.log.Warn("websocket ping failed", "url", w.url, "error", err)
			}
		}
	}
}

func (w *WebSocket) Send(ctx context.Context, frame []byte) error {
	w.mu.Lock()
	conn := w.conn
	state := w.state
	w.mu.Unlock()
	if state != Open {
		return fmt.Errorf("websocket transport not open (state=%s)", state)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
	}
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("websocket send: %w", err)
	}
	return nil
}

func (w *WebSocket) Recv(ctx context.Context) ([]byte, error) {
	w.mu.Lock()
	conn := w.conn
	w.mu.Unlock()
	if conn == nil {
		return nil, fmt.Errorf("websocket transport not connected")
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
	} else {
		_ = conn.SetReadDeadline(time.Time{})
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("websocket recv: %w", err)
	}
	return data, nil
}

func (w *WebSocket) Close() error {
	var err error
	w.closeOnce.Do(func() {
		w.mu.Lock()
		w.state = Closing
		conn := w.conn
		stop := w.stopPing
		w.mu.Unlock()

		if stop != nil {
			close(stop)
		}
		if conn != nil {
			err = conn.Close()
		}
		w.setState(Closed)
	})
	return err
}

func (w *WebSocket) setState(state State) {
	w.mu.Lock()
	w.state = state
	w.mu.Unlock()
}
