package smtp

import "errors"

// ErrCapacity is logged when a new connection arrives with live_sessions
// already at max_connections or the per-IP ceiling.
var ErrCapacity = errors.New("smtp: connection limit reached")

// ErrTransport wraps an opaque accept-loop failure from the underlying
// transport.
var ErrTransport = errors.New("smtp: transport error")
