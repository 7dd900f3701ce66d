package smtp

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/webrana/smtpcore/internal/transport"
)

// maxCommandLineBytes is the RFC 5321 §4.5.3.1.4 cap, including the
// trailing CRLF. Applied per line, not across the whole read buffer.
const maxCommandLineBytes = 512

// Session drives one accepted connection end to end: greet, read-line,
// parse, transition, respond, loop, with a dedicated DATA-phase reader.
// A Session exclusively owns its transport connection and envelope; it
// shares only the Config (read-only) and the host's MessageHandler.
type Session struct {
	conn    transport.Conn
	reader  *bufio.Reader
	cfg     *Config
	handler MessageHandler

	machine *Machine
	env     Envelope

	queueID string
	log     *slog.Logger
	metrics *Metrics
}

// NewSession constructs a Session over an already-accepted connection. It
// does not write the greeting; call Run to start the session's loop.
func NewSession(conn transport.Conn, cfg *Config, handler MessageHandler) *Session {
	queueID := uuid.NewString()
	return &Session{
		conn:    conn,
		reader:  bufio.NewReader(conn),
		cfg:     cfg,
		handler: handler,
		machine: NewMachine(),
		queueID: queueID,
		log:     cfg.logger().With(slog.String("queue_id", queueID), slog.String("remote_addr", conn.RemoteAddr())),
		metrics: cfg.metrics(),
	}
}

// Run executes the session's full lifecycle: greeting, command loop, and
// (when reached) the DATA phase, until QUIT, a fatal error, or ctx is
// cancelled (server shutdown). The connection is always closed on return.
func (s *Session) Run(ctx context.Context) {
	s.metrics.sessionOpened()
	defer s.metrics.sessionClosed()
	defer s.conn.Close()

	// A read blocked between commands or mid-DATA is bound only by its
	// SetDeadline, which knows nothing about ctx. Closing the connection
	// as soon as ctx is cancelled unblocks it immediately instead of
	// riding out the rest of the idle/command/data timeout.
	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-ctx.Done():
			s.conn.Close()
		case <-watchDone:
		}
	}()

	s.log.Info("session started")
	if !s.write(NewResponse(CodeServiceReady, s.cfg.Domain+" Service ready")) {
		return
	}

	for {
		select {
		case <-ctx.Done():
			s.write(NewResponse(CodeServiceNotAvailable, "Service shutting down"))
			s.log.Info("session closed for shutdown")
			return
		default:
		}

		line, err := s.readCommandLine()
		if err != nil {
			if ctx.Err() != nil {
				s.log.Info("session closed for shutdown")
				return
			}
			s.handleReadError(err)
			return
		}
		if line == nil {
			// A too-long or malformed line already got its 500 response;
			// carry on reading the next one.
			continue
		}

		cmd := ParseCommand(*line)
		resp, effect := s.machine.Handle(cmd, &s.env, s.cfg)
		s.metrics.command(commandVerbLabel(cmd), resp.Code)

		switch effect {
		case EffectEnterData:
			if !s.write(resp) {
				return
			}
			if !s.runDataPhase(ctx) {
				return
			}
		case EffectClose:
			s.write(resp)
			s.log.Info("session closed on QUIT")
			return
		default:
			if !s.write(resp) {
				return
			}
		}
	}
}

// readCommandLine reads one CRLF-terminated line, enforcing the 512-byte
// cap (including CRLF) and rejecting forbidden control bytes. A nil,nil
// return means a 500 was already sent for a malformed line and the
// session should read the next one; a non-nil error is fatal.
func (s *Session) readCommandLine() (*string, error) {
	if err := s.conn.SetDeadline(time.Now().Add(s.commandDeadlineDuration())); err != nil {
		return nil, err
	}

	var buf []byte
	count := 0
	for {
		b, err := s.reader.ReadByte()
		if err != nil {
			return nil, err
		}
		count++
		// count includes the terminating LF itself, so a line whose
		// total wire length (content + CRLF) is exactly the cap is
		// accepted and one byte more is rejected, regardless of which
		// byte pushes count past the cap.
		if count > maxCommandLineBytes {
			if b != '\n' {
				s.drainLine()
			}
			s.write(NewResponse(CodeSyntaxError, "Line too long"))
			return nil, nil
		}
		if b == '\n' {
			break
		}
		buf = append(buf, b)
	}

	if len(buf) > 0 && buf[len(buf)-1] == '\r' {
		buf = buf[:len(buf)-1]
	}
	for _, b := range buf {
		if b < 0x20 && b != '\t' {
			s.write(NewResponse(CodeSyntaxError, "Invalid control byte in command"))
			return nil, nil
		}
	}

	line := string(buf)
	return &line, nil
}

// commandDeadlineDuration picks between the two non-DATA timers: outside
// a transaction (no envelope started yet) idle_timeout governs; once a
// transaction is under way, command_timeout applies to each line read.
func (s *Session) commandDeadlineDuration() time.Duration {
	if s.env.From == nil {
		return s.cfg.IdleTimeout
	}
	return s.cfg.CommandTimeout
}

// drainLine discards bytes up to and including the next LF, to resync
// after a too-long line whose terminator has not yet been consumed.
func (s *Session) drainLine() {
	for {
		b, err := s.reader.ReadByte()
		if err != nil || b == '\n' {
			return
		}
	}
}

func (s *Session) handleReadError(err error) {
	if errors.Is(err, io.EOF) {
		s.log.Info("session closed by peer")
		return
	}
	s.log.Warn("session closed on read error", slog.String("error", err.Error()))
}

// runDataPhase reads the DATA body through the CRLF.CRLF terminator,
// applying dot-stuffing removal and enforcing max_message_size. Returns
// false if the connection must be abandoned (timeout, I/O error).
func (s *Session) runDataPhase(ctx context.Context) bool {
	if err := s.conn.SetDeadline(time.Now().Add(s.cfg.DataTimeout)); err != nil {
		return false
	}

	var data []byte
	overflow := false

	for {
		line, err := s.reader.ReadBytes('\n')
		if err != nil {
			if ctx.Err() != nil {
				s.log.Info("session closed for shutdown")
			}
			return false
		}
		if isEndOfData(line) {
			break
		}
		if overflow {
			continue // keep scanning for the terminator without buffering
		}

		line = removeDotStuffing(line)
		data = append(data, line...)
		if int64(len(data)) > s.cfg.MaxMessageSize {
			overflow = true
			data = nil
		}
	}

	if overflow {
		s.env.reset()
		s.machine.State = StateGreeted
		s.metrics.transaction("size_exceeded", 0)
		s.write(NewResponse(CodeSizeExceeded, "Message size exceeds limit"))
		return true
	}

	s.env.Data = data
	return s.deliver(ctx)
}

// deliver invokes the host MessageHandler (if registered) and responds
// per its outcome, then returns the session to Greeted with a clear
// envelope, ready for another transaction.
func (s *Session) deliver(ctx context.Context) bool {
	env := s.env
	size := len(env.Data)

	var resp Response
	if s.handler == nil {
		resp = NewResponse(CodeOK, "OK "+s.queueID)
		s.metrics.transaction("accepted", size)
	} else {
		outcome := s.handler(ctx, env)
		resp = outcome.response(s.queueID)
		s.metrics.transaction(outcomeLabel(outcome), size)
	}

	s.env.reset()
	s.machine.State = StateGreeted
	return s.write(resp)
}

func outcomeLabel(o HandlerOutcome) string {
	switch o {
	case HandlerTransient:
		return "transient_failure"
	case HandlerPermanent:
		return "permanent_failure"
	default:
		return "accepted"
	}
}

// isEndOfData reports whether line is the DATA terminator: a line
// containing only ".", CRLF- or bare-LF-terminated.
func isEndOfData(line []byte) bool {
	if len(line) == 3 && line[0] == '.' && line[1] == '\r' && line[2] == '\n' {
		return true
	}
	if len(line) == 2 && line[0] == '.' && line[1] == '\n' {
		return true
	}
	return false
}

// removeDotStuffing strips a single leading "." per RFC 5321 §4.5.2
// transparency. Lines not starting with "." pass through unchanged.
func removeDotStuffing(line []byte) []byte {
	if len(line) > 0 && line[0] == '.' {
		return line[1:]
	}
	return line
}

// write renders and writes a response, looping until all bytes are
// written. Returns false on any write error, meaning the session must
// close without further writes.
func (s *Session) write(r Response) bool {
	if err := s.conn.SetDeadline(time.Now().Add(s.cfg.CommandTimeout)); err != nil {
		return false
	}
	buf := r.Bytes()
	for len(buf) > 0 {
		n, err := s.conn.Write(buf)
		if err != nil {
			s.log.Warn("write failed, closing session", slog.String("error", err.Error()))
			return false
		}
		buf = buf[n:]
	}
	return true
}
