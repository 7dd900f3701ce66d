package smtp

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/webrana/smtpcore/internal/transport"
)

// listenBacklog is the backlog passed to Transport.Listen.
const listenBacklog = 128

// Server owns the listening transport, accepts connections, enforces the
// concurrency ceiling, and dispatches completed messages to the host's
// MessageHandler. A Server is not a singleton: a host may run several,
// each on a different port.
type Server struct {
	cfg       *Config
	transport transport.Transport
	handler   MessageHandler
	log       *slog.Logger
	metrics   *Metrics

	sem *semaphore.Weighted

	ipMu     sync.Mutex
	ipCounts map[string]int

	running atomic.Bool
	cancel  context.CancelFunc
	eg      *errgroup.Group
}

// Option configures a Server at construction time.
type Option func(*Server)

// WithTransport overrides the default TCP transport, chiefly for tests.
func WithTransport(t transport.Transport) Option {
	return func(s *Server) { s.transport = t }
}

// NewServer builds a Server. handler may be nil, in which case accepted
// messages are discarded with a 250 OK, per spec.
func NewServer(cfg *Config, handler MessageHandler, opts ...Option) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Server{
		cfg:      cfg,
		handler:  handler,
		log:      cfg.logger(),
		metrics:  cfg.metrics(),
		sem:      semaphore.NewWeighted(int64(cfg.MaxConnections)),
		ipCounts: make(map[string]int),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.transport == nil {
		s.transport = transport.NewTCPTransport()
	}
	return s, nil
}

// Collector exposes the server's Prometheus metrics for the host to
// merge into its own registry/handler.
func (s *Server) Collector() prometheus.Gatherer {
	return s.metrics.Collector()
}

// Start binds the listening address and begins accepting connections in
// the background. It returns once the listener is bound; the accept
// loop runs until Stop is called or the listener fails.
func (s *Server) Start(parent context.Context) error {
	if err := s.transport.Listen(s.cfg.ListenHost, s.cfg.ListenPort, listenBacklog); err != nil {
		return fmt.Errorf("smtp: start: %w", err)
	}

	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel
	s.running.Store(true)

	s.eg = &errgroup.Group{}
	s.eg.Go(func() error { return s.acceptLoop(ctx) })

	s.log.Info("smtp server started", slog.String("addr", s.transport.Addr()))
	return nil
}

// Stop clears the running flag, stops accepting new connections, and
// cancels every live session. A cancelled session's connection is closed
// at once, which unblocks any pending read; a command in progress gets no
// reply, and a 421 "Service shutting down" is sent only when the session
// sees the cancellation between commands before its connection has been
// closed. Stop returns when the live-session count reaches zero or ctx is
// done, whichever is first.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	s.cancel()
	if err := s.transport.Close(); err != nil {
		s.log.Warn("error closing listener", slog.String("error", err.Error()))
	}

	done := make(chan error, 1)
	go func() { done <- s.eg.Wait() }()

	select {
	case err := <-done:
		s.log.Info("smtp server stopped")
		return err
	case <-ctx.Done():
		s.log.Warn("smtp server shutdown deadline exceeded")
		return ctx.Err()
	}
}

func (s *Server) acceptLoop(ctx context.Context) error {
	for {
		conn, err := s.transport.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("%w: %w", ErrTransport, err)
		}
		s.dispatch(ctx, conn)
	}
}

// dispatch enforces the per-IP and global concurrency ceilings before
// spawning a Session goroutine tracked by the server's errgroup.
func (s *Server) dispatch(ctx context.Context, conn transport.Conn) {
	ip := hostOnly(conn.RemoteAddr())

	if !s.acquireIP(ip) {
		s.reject(conn, "Too many connections from your address")
		s.metrics.connectionRejected("per_ip_limit")
		s.log.Warn("connection rejected", slog.String("remote_addr", conn.RemoteAddr()), slog.String("error", ErrCapacity.Error()))
		return
	}
	if !s.sem.TryAcquire(1) {
		s.releaseIP(ip)
		s.reject(conn, "Too many connections")
		s.metrics.connectionRejected("capacity")
		s.log.Warn("connection rejected", slog.String("remote_addr", conn.RemoteAddr()), slog.String("error", ErrCapacity.Error()))
		return
	}

	s.eg.Go(func() error {
		defer s.sem.Release(1)
		defer s.releaseIP(ip)
		sess := NewSession(conn, s.cfg, s.handler)
		sess.metrics = s.metrics
		sess.Run(ctx)
		return nil
	})
}

func (s *Server) reject(conn transport.Conn, reason string) {
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))
	_, _ = conn.Write(NewResponse(CodeServiceNotAvailable, reason).Bytes())
	_ = conn.Close()
}

func (s *Server) acquireIP(ip string) bool {
	if s.cfg.MaxConnectionsPerIP == 0 {
		return true
	}
	s.ipMu.Lock()
	defer s.ipMu.Unlock()
	if s.ipCounts[ip] >= s.cfg.MaxConnectionsPerIP {
		return false
	}
	s.ipCounts[ip]++
	return true
}

func (s *Server) releaseIP(ip string) {
	if s.cfg.MaxConnectionsPerIP == 0 {
		return
	}
	s.ipMu.Lock()
	defer s.ipMu.Unlock()
	if s.ipCounts[ip] <= 1 {
		delete(s.ipCounts, ip)
	} else {
		s.ipCounts[ip]--
	}
}

func hostOnly(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

// HealthStatus summarises the server's operational state.
type HealthStatus struct {
	Status  string `json:"status"`
	Running bool   `json:"running"`
	Domain  string `json:"domain"`
	Address string `json:"address"`
}

// HealthCheck reports the server's own view of its health, with no
// network round trip.
func (s *Server) HealthCheck() HealthStatus {
	status := "unhealthy"
	if s.running.Load() {
		status = "healthy"
	}
	return HealthStatus{
		Status:  status,
		Running: s.running.Load(),
		Domain:  s.cfg.Domain,
		Address: s.transport.Addr(),
	}
}

// PerformEHLOCheck dials the server itself and runs a minimal
// EHLO/QUIT exchange, exercising the wire protocol end to end rather
// than trusting the running flag alone.
func (s *Server) PerformEHLOCheck(ctx context.Context) error {
	if !s.running.Load() {
		return fmt.Errorf("smtp: server is not running")
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", s.transport.Addr())
	if err != nil {
		return fmt.Errorf("smtp: health check dial: %w", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	buf := make([]byte, 512)
	if err := expectCode(conn, buf, "220"); err != nil {
		return fmt.Errorf("smtp: health check greeting: %w", err)
	}

	if _, err := conn.Write([]byte("EHLO healthcheck\r\n")); err != nil {
		return fmt.Errorf("smtp: health check EHLO: %w", err)
	}
	if err := expectCode(conn, buf, "250"); err != nil {
		return fmt.Errorf("smtp: health check EHLO response: %w", err)
	}

	_, _ = conn.Write([]byte("QUIT\r\n"))
	return nil
}

func expectCode(conn net.Conn, buf []byte, code string) error {
	n, err := conn.Read(buf)
	if err != nil {
		return err
	}
	if n < 3 || !strings.HasPrefix(string(buf[:n]), code) {
		return fmt.Errorf("unexpected response: %s", string(buf[:n]))
	}
	return nil
}
