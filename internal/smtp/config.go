package smtp

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the immutable parameter bundle a Server is constructed with.
// It is shared read-only with every Session the server spawns.
type Config struct {
	// Domain is advertised in the greeting and EHLO banners.
	Domain string `validate:"required,hostname_rfc1123"`

	// ListenHost/ListenPort are the address the server binds to. IPv6 is
	// preferred when ListenHost is empty.
	ListenHost string
	ListenPort int `validate:"min=0,max=65535"`

	// MaxConnections bounds the number of concurrently live sessions.
	MaxConnections int `validate:"min=1"`
	// MaxConnectionsPerIP bounds concurrent sessions from a single remote
	// address. Zero disables the per-IP ceiling.
	MaxConnectionsPerIP int `validate:"min=0"`

	// MaxMessageSize bounds the assembled DATA body, advertised via SIZE.
	MaxMessageSize int64 `validate:"min=1"`
	// MaxRecipientsPerMessage bounds the RCPT TO list of one transaction.
	MaxRecipientsPerMessage int `validate:"min=1"`

	// IdleTimeout bounds the wait between transactions.
	IdleTimeout time.Duration `validate:"min=0"`
	// DataTimeout bounds the entire DATA phase, end to end.
	DataTimeout time.Duration `validate:"min=0"`
	// CommandTimeout bounds the wait for one command line.
	CommandTimeout time.Duration `validate:"min=0"`

	// Logger receives structured session/server log lines. Nil means
	// slog.Default().
	Logger *slog.Logger `validate:"-"`
	// Metrics receives session/transaction counters. Nil means a private
	// registry is created instead: a Server keeps one of its own, exposed
	// through Server.Collector, and a Session built directly with
	// NewSession keeps one that nothing exports.
	Metrics *Metrics `validate:"-"`
}

// DefaultConfig returns a Config populated with sensible production
// defaults, ready for Validate.
func DefaultConfig(domain string) *Config {
	return &Config{
		Domain:                  domain,
		ListenHost:              "::",
		ListenPort:              2525,
		MaxConnections:          100,
		MaxConnectionsPerIP:     0,
		MaxMessageSize:          10 * 1024 * 1024,
		MaxRecipientsPerMessage: 100,
		IdleTimeout:             5 * time.Minute,
		DataTimeout:             10 * time.Minute,
		CommandTimeout:          5 * time.Minute,
	}
}

var configValidator = validator.New()

// Validate checks field constraints before the config is handed to a
// Server. It does not mutate the receiver.
func (c *Config) Validate() error {
	if err := configValidator.Struct(c); err != nil {
		return fmt.Errorf("smtp: invalid config: %w", err)
	}
	return nil
}

// logger returns the configured logger, or the package default.
func (c *Config) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// metrics returns the configured metrics sink, or a new private one, on
// every call, if none was supplied.
func (c *Config) metrics() *Metrics {
	if c.Metrics != nil {
		return c.Metrics
	}
	return NewMetrics("")
}
