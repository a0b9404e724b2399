// Package testsupport provides an in-process fake MCP server used by
// scenario tests: a Transport backed by Go channels instead of a real
// subprocess/socket, paired with a minimal JSON-RPC responder that
// understands initialize, resources/list, tools/list, resources/read,
// and tools/call.
package testsupport

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"sync"

	"github.com/platformbuilds/mcp-federation-broker/internal/protocol"
	"github.com/platformbuilds/mcp-federation-broker/internal/transport"
)

// FakeTransport is a Transport whose "wire" is two in-memory channels
// shared with a FakeServer.
type FakeTransport struct {
	toServer chan []byte
	toClient chan []byte

	mu    sync.Mutex
	state transport.State

	closeOnce sync.Once
}

func newFakeTransport() *FakeTransport {
	return &FakeTransport{
		toServer: make(chan []byte, 64),
		toClient: make(chan []byte, 64),
		state:    transport.NotCreated,
	}
}

func (t *FakeTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	t.state = transport.Open
	t.mu.Unlock()
	return nil
}

func (t *FakeTransport) Send(ctx context.Context, frame []byte) error {
	select {
	case t.toServer <- frame:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (t *FakeTransport) Recv(ctx context.Context) ([]byte, error) {
	select {
	case b, ok := <-t.toClient:
		if !ok {
			return nil, context.Canceled
		}
		return b, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (t *FakeTransport) Close() error {
	t.closeOnce.Do(func() {
		t.mu.Lock()
		t.state = transport.Closed
		t.mu.Unlock()
		close(t.toServer)
	})
	return nil
}

func (t *FakeTransport) State() transport.State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *FakeTransport) IsConnected() bool { return t.State() == transport.Open }

func (t *FakeTransport) Tag() transport.Tag { return transport.Tag("fake") }

// Resource is one entry a FakeServer can serve. Content is called
// fresh on every resources/read, so a test can change its behaviour
// over time (e.g. scenario E6's changing payload).
type Resource struct {
	URI      string
	MimeType string
	Content  func() (text string, blob []byte)
}

// FakeServer answers JSON-RPC frames sent over a FakeTransport as a
// trivial single-resource (or multi-resource) MCP server.
type FakeServer struct {
	transport *FakeTransport
	resources map[string]*Resource

	mu        sync.Mutex
	readCount map[string]int64
}

// NewFakeServer builds a server and its paired client-side transport.
func NewFakeServer(resources ...*Resource) (*FakeServer, *FakeTransport) {
	tr := newFakeTransport()
	byURI := make(map[string]*Resource, len(resources))
	for _, r := range resources {
		byURI[r.URI] = r
	}
	s := &FakeServer{transport: tr, resources: byURI, readCount: make(map[string]int64)}
	go s.loop()
	return s, tr
}

// ReadCount reports how many resources/read calls this server has
// observed for uri, for cache-hit assertions (scenario E2).
func (s *FakeServer) ReadCount(uri string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readCount[uri]
}

func (s *FakeServer) loop() {
	for raw := range s.transport.toServer {
		var f protocol.Frame
		if err := json.Unmarshal(raw, &f); err != nil {
			continue
		}
		if !f.IsRequest() || f.IsNotification() {
			continue
		}
		resp := s.handle(f)
		out, err := json.Marshal(resp)
		if err != nil {
			continue
		}
		s.transport.toClient <- out
	}
}

func (s *FakeServer) handle(f protocol.Frame) protocol.Frame {
	switch f.Method {
	case "initialize":
		return s.result(f, map[string]interface{}{"protocolVersion": "2024-11-05"})
	case "resources/list":
		list := make([]map[string]interface{}, 0, len(s.resources))
		for _, r := range s.resources {
			list = append(list, map[string]interface{}{"uri": r.URI, "name": r.URI, "mimeType": r.MimeType})
		}
		return s.result(f, map[string]interface{}{"resources": list})
	case "tools/list":
		return s.result(f, map[string]interface{}{"tools": []interface{}{}})
	case "resources/read":
		var params struct {
			URI string `json:"uri"`
		}
		_ = json.Unmarshal(f.Params, &params)
		r, ok := s.resources[params.URI]
		if !ok {
			return s.errorResult(f, -32000, "resource not found: "+params.URI)
		}
		s.mu.Lock()
		s.readCount[params.URI]++
		s.mu.Unlock()

		text, blob := r.Content()
		item := map[string]interface{}{"uri": r.URI, "mimeType": r.MimeType}
		if len(blob) > 0 {
			item["blob"] = base64Encode(blob)
		} else {
			item["text"] = text
		}
		return s.result(f, map[string]interface{}{"contents": []interface{}{item}})
	case "tools/call":
		return s.result(f, map[string]interface{}{"content": []interface{}{}})
	default:
		return s.errorResult(f, -32601, "method not found: "+f.Method)
	}
}

func (s *FakeServer) result(f protocol.Frame, v interface{}) protocol.Frame {
	raw, _ := json.Marshal(v)
	return protocol.Frame{JSONRPC: "2.0", ID: f.ID, Result: raw}
}

func (s *FakeServer) errorResult(f protocol.Frame, code int, msg string) protocol.Frame {
	return protocol.Frame{JSONRPC: "2.0", ID: f.ID, Error: &protocol.WireError{Code: code, Message: msg}}
}

func base64Encode(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}
