package transport

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/platformbuilds/mcp-federation-broker/internal/logger"
)

// TCP is a raw newline-delimited JSON-RPC transport. Welcome or
// notification frames a server sends immediately on connect are
// tolerated: Recv just returns whatever line arrives next, and the
// protocol client is responsible for recognising unsolicited
// notifications versus responses.
type TCP struct {
	host string
	port int
	log  logger.Logger

	mu    sync.Mutex
	state State

	conn   net.Conn
	reader *bufio.Reader
}

func NewTCP(host string, port int, log logger.Logger) *TCP {
	return &TCP{host: host, port: port, log: log, state: NotCreated}
}

func (t *TCP) Tag() Tag { return TagTCP }

func (t *TCP) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *TCP) IsConnected() bool { return t.State() == Open }

func (t *TCP) Connect(ctx context.Context) error {
	t.mu.Lock()
	if t.state != NotCreated {
		t.mu.Unlock()
		return fmt.Errorf("tcp transport: Connect called twice")
	}
	t.state = Connecting
	t.mu.Unlock()

	addr := fmt.Sprintf("%s:%d", t.host, t.port)
	dialer := net.Dialer{Timeout: 30 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		t.setState(Errored)
		return &ConnectError{Tag: TagTCP, URL: addr, Cause: err}
	}
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		_ = tcpConn.SetKeepAlive(true)
		_ = tcpConn.SetKeepAlivePeriod(30 * time.Second)
	}

	t.mu.Lock()
	t.conn = conn
	t.reader = bufio.NewReader(conn)
	t.state = Open
	t.mu.Unlock()
	return nil
}

func (t *TCP) Send(ctx context.Context, frame []byte) error {
	t.mu.Lock()
	conn := t.conn
	state := t.state
	t.mu.Unlock()
	if state != Open {
		return fmt.Errorf("tcp transport not open (state=%s)", state)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
	}
	frame = append(frame, '\n')
	_, err := conn.Write(frame)
	if err != nil {
		return fmt.Errorf("tcp send: %w", err)
	}
	return nil
}

func (t *TCP) Recv(ctx context.Context) ([]byte, error) {
	t.mu.Lock()
	reader := t.reader
	conn := t.conn
	t.mu.Unlock()
	if reader == nil {
		return nil, fmt.Errorf("tcp transport not connected")
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
	} else {
		_ = conn.SetReadDeadline(time.Time{})
	}
	line, err := reader.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("tcp recv: %w", err)
	}
	if len(line) > 0 && line[len(line)-1] == '\n' {
		line = line[:len(line)-1]
	}
	return line, nil
}

func (t *TCP) Close() error {
	t.mu.Lock()
	if t.state == Closed || t.state == Closing {
		t.mu.Unlock()
		return nil
	}
	t.state = Closing
	conn := t.conn
	t.mu.Unlock()

	var err error
	if conn != nil {
		err = conn.Close()
	}
	t.setState(Closed)
	return err
}

func (t *TCP) setState(state State) {
	t.mu.Lock()
	t.state = state
	t.mu.Unlock()
}
