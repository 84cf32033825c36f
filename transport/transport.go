// Package transport defines the reliable, ordered, message-framed
// bidirectional channel the lobby and consensus layers run on top of. The
// signaling substrate that lets two peers discover each other's transport
// addresses is out of scope (spec.md §1) — this package only describes the
// shape a connected channel must have.
package transport

import (
	"context"
	"errors"
)

// Addr is an opaque transport-layer peer handle. The lobby manager keeps an
// explicit Addr -> identity.LogicalID map and never treats Addr itself as a
// stable identity (spec.md §3).
type Addr string

// Conn is a single reliable, ordered, message-framed connection to one peer.
// Implementations must guarantee per-connection message ordering; if the
// underlying medium doesn't, the implementation must layer sequence numbers
// underneath (spec.md §5).
type Conn interface {
	// Addr returns this connection's transport-layer handle.
	Addr() Addr
	// Send writes one framed message. It may block until the frame is
	// queued, but must not silently drop — callers treat an error as fatal
	// to the connection.
	Send(ctx context.Context, data []byte) error
	// Recv blocks until the next framed message arrives, the connection
	// closes, or ctx is done.
	Recv(ctx context.Context) ([]byte, error)
	// Close tears the connection down. Calling Close more than once, or
	// concurrently with Send/Recv, must be safe.
	Close(reason string) error
}

// EventKind tags the kind of transport-level event delivered to a listener.
type EventKind int

const (
	// EventOpen fires once a connection is ready to Send/Recv.
	EventOpen EventKind = iota
	// EventClose fires when a connection ends, gracefully or not.
	EventClose
	// EventError fires on a transport-layer failure that doesn't
	// necessarily close the connection (e.g. a single write timeout).
	EventError
)

// Event is a single transport lifecycle notification.
type Event struct {
	Kind EventKind
	Conn Conn
	Err  error
}

// ErrRecoverable marks a connect failure the caller may retry (spec.md §5:
// up to 3 ordinary retries, up to 10 for reconnect attempts).
var ErrRecoverable = errors.New("transport: recoverable error")

// ErrFatal marks a connect failure that must not be retried (invalid id,
// peer unavailable, incompatible peer, cryptographic failure).
var ErrFatal = errors.New("transport: fatal error")

// Dialer opens a single outbound connection, used by a guest to reach the
// host. Implementations must respect ctx's deadline (spec.md §5: 5s connect
// deadline).
type Dialer interface {
	Dial(ctx context.Context, target Addr) (Conn, error)
}

// Listener accepts inbound connections, used by a host to admit guests.
// Events is a channel of EventOpen notifications, one per accepted
// connection; the listener itself does not interpret any payload.
type Listener interface {
	Events() <-chan Event
	Close() error
}
