package protocol_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/platformbuilds/mcp-federation-broker/internal/logger"
	"github.com/platformbuilds/mcp-federation-broker/internal/protocol"
	"github.com/platformbuilds/mcp-federation-broker/internal/testsupport"
	"github.com/platformbuilds/mcp-federation-broker/internal/transport"
)

// silentTransport never answers anything; it only exists to keep a
// request pending until Close is called.
type silentTransport struct {
	recvBlock chan struct{}
}

func newSilentTransport() *silentTransport {
	return &silentTransport{recvBlock: make(chan struct{})}
}

func (s *silentTransport) Connect(ctx context.Context) error            { return nil }
func (s *silentTransport) Send(ctx context.Context, frame []byte) error { return nil }
func (s *silentTransport) Recv(ctx context.Context) ([]byte, error) {
	select {
	case <-s.recvBlock:
		return nil, context.Canceled
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
func (s *silentTransport) Close() error {
	select {
	case <-s.recvBlock:
	default:
		close(s.recvBlock)
	}
	return nil
}
func (s *silentTransport) State() transport.State { return transport.Open }
func (s *silentTransport) IsConnected() bool       { return true }
func (s *silentTransport) Tag() transport.Tag      { return transport.Tag("silent") }

func TestClientRequestResponseCorrelation(t *testing.T) {
	_, tr := testsupport.NewFakeServer(&testsupport.Resource{
		URI:      "a.json",
		MimeType: "application/json",
		Content:  func() (string, []byte) { return `[{"id":1}]`, nil },
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, tr.Connect(ctx))

	client := protocol.NewClient(tr, logger.Noop(), nil)
	client.Start(ctx)

	_, err := client.Initialize(ctx)
	require.NoError(t, err)

	resources, err := client.ListResources(ctx)
	require.NoError(t, err)
	require.Len(t, resources, 1)
	require.Equal(t, "a.json", resources[0].URI)

	p, err := client.ReadResource(ctx, "a.json")
	require.NoError(t, err)
	require.Len(t, p.Rows, 1)
}

func TestClientCloseDrainsPendingRequests(t *testing.T) {
	tr := newSilentTransport()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, tr.Connect(ctx))

	client := protocol.NewClient(tr, logger.Noop(), nil)
	client.Start(ctx)

	errCh := make(chan error, 1)
	go func() {
		_, err := client.Request(ctx, "resources/read", map[string]interface{}{"uri": "never-answered"}, 5*time.Second)
		errCh <- err
	}()

	// Give the goroutine time to register its pending entry before closing.
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, client.Close())

	select {
	case err := <-errCh:
		require.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("expected pending request to be failed by Close")
	}

	// A second Close must be safe (idempotent).
	require.NoError(t, client.Close())
}
