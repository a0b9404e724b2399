package transport

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/platformbuilds/mcp-federation-broker/internal/logger"
)

// killGracePeriod bounds how long Close waits for the subprocess to
// exit after closing stdin before sending a kill signal.
const killGracePeriod = 5 * time.Second

// maxLineBytes guards against a misbehaving server writing an
// unbounded line to stdout.
const maxLineBytes = 64 * 1024 * 1024

// Stdio spawns a subprocess and frames JSON-RPC as one object per line
// on its stdout. Stderr is forwarded line-by-line to the logger rather
// than mixed into stdout, since stdout carries the JSON-RPC stream.
type Stdio struct {
	command string
	args    []string
	log     logger.Logger

	mu    sync.Mutex
	state State

	cmd     *exec.Cmd
	stdin   io.WriteCloser
	scanner *bufio.Scanner
	done    chan struct{}
}

// NewStdio builds a Stdio transport for the given command and args.
// The subprocess inherits the current process's environment.
func NewStdio(command string, args []string, log logger.Logger) *Stdio {
	return &Stdio{command: command, args: args, log: log, state: NotCreated}
}

func (s *Stdio) Tag() Tag { return TagStdio }

func (s *Stdio) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Stdio) IsConnected() bool { return s.State() == Open }

func (s *Stdio) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.state != NotCreated {
		s.mu.Unlock()
		return fmt.Errorf("stdio transport: Connect called twice")
	}
	s.state = Connecting
	s.mu.Unlock()

	cmd := exec.Command(s.command, s.args...)
	cmd.Env = os.Environ()

	stdin, err := cmd.StdinPipe()
	if err != nil {
		s.setState(Errored)
		return &ConnectError{Tag: TagStdio, URL: s.command, Cause: err}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		s.setState(Errored)
		return &ConnectError{Tag: TagStdio, URL: s.command, Cause: err}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		s.setState(Errored)
		return &ConnectError{Tag: TagStdio, URL: s.command, Cause: err}
	}

	if err := cmd.Start(); err != nil {
		s.setState(Errored)
		return &ConnectError{Tag: TagStdio, URL: s.command, Cause: err}
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	s.mu.Lock()
	s.cmd = cmd
	s.stdin = stdin
	s.scanner = scanner
	s.done = make(chan struct{})
	s.state = Open
	s.mu.Unlock()

	go s.pumpStderr(stderr)
	go s.waitForExit()

	return nil
}

func (s *Stdio) pumpStderr(stderr io.ReadCloser) {
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		s.log.Warn("stdio server stderr", "command", s.command, "line", scanner.Text())
	}
}

func (s *Stdio) waitForExit() {
	err := s.cmd.Wait()
	s.mu.Lock()
	if s.state == Open || s.state == Connecting {
		s.state = Errored
	}
	done := s.done
	s.mu.Unlock()
	if err != nil {
		s.log.Warn("stdio server process exited", "command", s.command, "error", err)
	}
	close(done)
}

func (s *Stdio) Send(ctx context.Context, frame []byte) error {
	s.mu.Lock()
	stdin := s.stdin
	state := s.state
	s.mu.Unlock()
	if state != Open {
		return &ConnectError{Tag: TagStdio, URL: s.command, Cause: fmt.Errorf("transport not open (state=%s)", state)}
	}
	frame = append(frame, '\n')
	_, err := stdin.Write(frame)
	if err != nil {
		return fmt.Errorf("stdio send: %w", err)
	}
	return nil
}

func (s *Stdio) Recv(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	scanner := s.scanner
	s.mu.Unlock()

	type result struct {
		line []byte
		err  error
	}
	resultCh := make(chan result, 1)
	go func() {
		if scanner.Scan() {
			line := append([]byte(nil), scanner.Bytes()...)
			resultCh <- result{line: line}
			return
		}
		if err := scanner.Err(); err != nil {
			resultCh <- result{err: fmt.Errorf("stdio recv: %w", err)}
			return
		}
		resultCh <- result{err: io.EOF}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-resultCh:
		return r.line, r.err
	}
}

func (s *Stdio) Close() error {
	s.mu.Lock()
	if s.state == Closed || s.state == Closing {
		s.mu.Unlock()
		return nil
	}
	s.state = Closing
	stdin := s.stdin
	cmd := s.cmd
	done := s.done
	s.mu.Unlock()

	if stdin != nil {
		_ = stdin.Close()
	}

	if cmd != nil && done != nil {
		select {
		case <-done:
		case <-time.After(killGracePeriod):
			if cmd.Process != nil {
				_ = cmd.Process.Kill()
			}
			<-done
		}
	}

	s.setState(Closed)
	return nil
}

// Kill terminates the subprocess immediately, without waiting out
// Close's grace period. Used by the pool's ForceReset for recovering
// from a hung remote process.
func (s *Stdio) Kill() error {
	s.mu.Lock()
	if s.state == Closed {
		s.mu.Unlock()
		return nil
	}
	s.state = Closing
	stdin := s.stdin
	cmd := s.cmd
	done := s.done
	s.mu.Unlock()

	if stdin != nil {
		_ = stdin.Close()
	}
	if cmd != nil && cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
	if done != nil {
		<-done
	}

	s.setState(Closed)
	return nil
}

func (s *Stdio) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}
