package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/platformbuilds/mcp-federation-broker/internal/logger"
)

// HTTP binds the three-endpoint REST convention: initialize obtains a
// session id, message posts notifications, request posts a
// request/response round trip, and poll long-polls for server-pushed
// events. Framing is one JSON-RPC object per HTTP body.
type HTTP struct {
	baseURL string
	headers map[string]string
	log     logger.Logger
	client  *http.Client

	mu        sync.Mutex
	state     State
	sessionID string

	pollCh chan []byte
	stop   chan struct{}
}

func NewHTTP(baseURL string, headers map[string]string, log logger.Logger) *HTTP {
	return &HTTP{
		baseURL: baseURL,
		headers: headers,
		log:     log,
		client:  &http.Client{Timeout: 30 * time.Second},
		state:   NotCreated,
		pollCh:  make(chan []byte, 16),
	}
}

func (h *HTTP) Tag() Tag { return TagHTTP }

func (h *HTTP) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

func (h *HTTP) IsConnected() bool { return h.State() == Open }

// Connect performs POST /mcp/initialize. Per the spec's resolution of
// open question (d), "successful" for HTTP auto-negotiation means this
// initialize call completed, not merely that a TCP connect succeeded.
func (h *HTTP) Connect(ctx context.Context) error {
	h.mu.Lock()
	if h.state != NotCreated {
		h.mu.Unlock()
		return fmt.Errorf("http transport: Connect called twice")
	}
	h.state = Connecting
	h.mu.Unlock()

	body, status, err := h.post(ctx, "/mcp/initialize", nil)
	if err != nil || status >= 300 {
		h.setState(Errored)
		if err == nil {
			err = fmt.Errorf("initialize returned status %d", status)
		}
		return &ConnectError{Tag: TagHTTP, URL: h.baseURL, Cause: err}
	}

	var resp struct {
		SessionID string `json:"sessionId"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		h.setState(Errored)
		return &ConnectError{Tag: TagHTTP, URL: h.baseURL, Cause: fmt.Errorf("decode initialize response: %w", err)}
	}

	h.mu.Lock()
	h.sessionID = resp.SessionID
	h.state = Open
	h.stop = make(chan struct{})
	stop := h.stop
	h.mu.Unlock()

	go h.pollLoop(stop)
	return nil
}

// Send posts to /mcp/request for request/response frames, or
// /mcp/message when the frame carries no "id" (a notification).
func (h *HTTP) Send(ctx context.Context, frame []byte) error {
	if h.State() != Open {
		return fmt.Errorf("http transport not open")
	}
	path := "/mcp/request"
	var probe struct {
		ID interface{} `json:"id"`
	}
	if err := json.Unmarshal(frame, &probe); err == nil && probe.ID == nil {
		path = "/mcp/message"
	}
	body, status, err := h.post(ctx, path, frame)
	if err != nil {
		return fmt.Errorf("http send: %w", err)
	}
	if status >= 300 {
		return fmt.Errorf("http send: status %d", status)
	}
	if path == "/mcp/request" && len(body) > 0 {
		select {
		case h.pollCh <- body:
		default:
			h.log.Warn("http transport: response buffer full, dropping frame")
		}
	}
	return nil
}

// Recv returns the next frame delivered either as a direct /mcp/request
// response or via the long-poll loop against /mcp/poll.
func (h *HTTP) Recv(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case frame := <-h.pollCh:
		return frame, nil
	}
}

func (h *HTTP) pollLoop(stop chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
		}
		ctx, cancel := context.WithTimeout(context.Background(), 35*time.Second)
		body, status, err := h.post(ctx, "/mcp/poll", nil)
		cancel()
		if err != nil {
			select {
			case <-stop:
				return
			case <-time.After(time.Second):
			}
			continue
		}
		if status == http.StatusOK && len(body) > 0 {
			select {
			case h.pollCh <- body:
			case <-stop:
				return
			}
		}
	}
}

func (h *HTTP) post(ctx context.Context, path string, payload []byte) ([]byte, int, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+path, reader)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range h.headers {
		req.Header.Set(k, v)
	}
	h.mu.Lock()
	sessionID := h.sessionID
	h.mu.Unlock()
	if sessionID != "" {
		req.Header.Set("X-MCP-Session-Id", sessionID)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}

func (h *HTTP) Close() error {
	h.mu.Lock()
	if h.state == Closed || h.state == Closing {
		h.mu.Unlock()
		return nil
	}
	h.state = Closing
	stop := h.stop
	h.mu.Unlock()

	if stop != nil {
		close(stop)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, _, _ = h.post(ctx, "/mcp/disconnect", nil)

	h.setState(Closed)
	return nil
}

func (h *HTTP) setState(state State) {
	h.mu.Lock()
	h.state = state
	h.mu.Unlock()
}
