package transport

import (
	"context"
	"fmt"
	"net"
	"time"
)

// TCPTransport is the Transport implementation used in production: a
// thin adapter over net.Listen/net.Conn.
type TCPTransport struct {
	listener net.Listener
}

// NewTCPTransport returns an unbound TCPTransport; call Listen before
// Accept.
func NewTCPTransport() *TCPTransport {
	return &TCPTransport{}
}

// Listen binds host:port. The backlog argument is not applied; the
// operating system's default listen backlog is used.
func (t *TCPTransport) Listen(host string, port int, backlog int) error {
	addr := net.JoinHostPort(host, fmt.Sprintf("%d", port))
	lc := net.ListenConfig{}
	ln, err := lc.Listen(context.Background(), "tcp", addr)
	if err != nil {
		return fmt.Errorf("transport: listen %s: %w", addr, err)
	}
	t.listener = ln
	return nil
}

// Accept runs the listener's blocking Accept on its own goroutine and
// races it against ctx, since net.Listener.Accept itself takes no
// context. The goroutine leaks until an accept actually returns, which
// only matters around Close — see TCPTransport.Close.
func (t *TCPTransport) Accept(ctx context.Context) (Conn, error) {
	type result struct {
		conn net.Conn
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		c, err := t.listener.Accept()
		ch <- result{c, err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-ch:
		if r.err != nil {
			return nil, fmt.Errorf("transport: accept: %w", r.err)
		}
		return &tcpConn{conn: r.conn}, nil
	}
}

func (t *TCPTransport) Close() error {
	if t.listener == nil {
		return nil
	}
	return t.listener.Close()
}

func (t *TCPTransport) Addr() string {
	if t.listener == nil {
		return ""
	}
	return t.listener.Addr().String()
}

// tcpConn adapts net.Conn to Conn.
type tcpConn struct {
	conn net.Conn
}

func (c *tcpConn) Read(p []byte) (int, error)  { return c.conn.Read(p) }
func (c *tcpConn) Write(p []byte) (int, error) { return c.conn.Write(p) }
func (c *tcpConn) Close() error                { return c.conn.Close() }

func (c *tcpConn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

func (c *tcpConn) SetDeadline(t time.Time) error {
	return c.conn.SetDeadline(t)
}
