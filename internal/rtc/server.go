package rtc

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/dbsmedya/proxyhk/internal/logger"
)

// Server accepts runtime control requests on a unix socket and publishes
// them on a Bus. Each connection carries one request line and receives one
// reply line, "ok: ..." or "error: ...".
type Server struct {
	path    string
	bus     *Bus
	timeout time.Duration
	logger  *logger.Logger

	mu sync.Mutex
	ln net.Listener
	wg sync.WaitGroup
}

// NewServer creates a runtime control server for the socket at path.
func NewServer(path string, bus *Bus, timeout time.Duration, log *logger.Logger) *Server {
	if log == nil {
		log = logger.NewDefault()
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Server{
		path:    path,
		bus:     bus,
		timeout: timeout,
		logger:  log.WithComponent("rtc"),
	}
}

// Listen binds the socket, replacing a stale socket file left by a previous run.
func (s *Server) Listen() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove stale control socket: %w", err)
	}

	ln, err := net.Listen("unix", s.path)
	if err != nil {
		return fmt.Errorf("failed to listen on control socket %s: %w", s.path, err)
	}

	s.mu.Lock()
	s.ln = ln
	s.mu.Unlock()
	return nil
}

// Serve accepts connections until ctx is cancelled. Listen must be called first.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()
	if ln == nil {
		return errors.New("control server is not listening")
	}

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	s.logger.Infow("Runtime control socket ready", "socket", s.path)

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				s.wg.Wait()
				_ = os.Remove(s.path)
				return nil
			}
			s.logger.Warnf("Failed to accept control connection: %v", err)
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handle(conn)
		}()
	}
}

func (s *Server) handle(conn net.Conn) {
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(s.timeout))

	line, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil && line == "" {
		s.logger.Warnf("Failed to read control request: %v", err)
		return
	}

	reply := s.dispatch(line)
	if _, err := fmt.Fprintln(conn, reply); err != nil {
		s.logger.Warnf("Failed to write control reply: %v", err)
	}
}

func (s *Server) dispatch(line string) string {
	cmd, err := ParseCommand(line)
	if err != nil {
		s.logger.Warnf("Ignoring runtime control request: %v", err)
		return "error: " + err.Error()
	}

	delivered := s.bus.Publish(cmd)
	if delivered == 0 {
		return fmt.Sprintf("error: no process is subscribed to %s", cmd)
	}

	s.logger.Infow("Runtime control command published", "command", cmd.String(), "recipients", delivered)
	return fmt.Sprintf("ok: %s sent to %d process(es)", cmd, delivered)
}

// Send delivers a runtime control option to the server at socketPath and
// returns its reply. A reply starting with "error:" is returned as an error.
func Send(ctx context.Context, socketPath, option string, timeout time.Duration) (string, error) {
	var d net.Dialer
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := d.DialContext(dialCtx, "unix", socketPath)
	if err != nil {
		return "", fmt.Errorf("cannot connect to control socket %s: %w", socketPath, err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(timeout))

	if _, err := fmt.Fprintln(conn, option); err != nil {
		return "", fmt.Errorf("failed to send runtime control request: %w", err)
	}

	reply, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil && reply == "" {
		return "", fmt.Errorf("failed to read runtime control reply: %w", err)
	}
	reply = strings.TrimSpace(reply)

	if msg, ok := strings.CutPrefix(reply, "error: "); ok {
		return "", errors.New(msg)
	}
	return strings.TrimPrefix(reply, "ok: "), nil
}
