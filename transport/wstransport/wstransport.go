// Package wstransport implements transport.Conn over a coder/websocket
// connection. It is the concrete transport the cmd/hostrelay demo uses,
// adapted from the teacher's read/write pump pair in
// internal/handlers/lobby_ws.go and internal/handlers/game_ws.go — one
// subprotocol ("peerlobby"), text frames carrying a JSON wire.Envelope.
package wstransport

import (
	"context"
	"fmt"
	"time"

	"github.com/coder/websocket"
	"github.com/kestrelnet/peerlobby/transport"
)

// Subprotocol is required of every websocket peer this package accepts or
// dials.
const Subprotocol = "peerlobby"

// Close codes in the 3000-3999 private-use range, giving a WS-aware client a
// machine-readable signal without parsing the close reason text. Adapted
// from the teacher's internal/handlers/ws_codes.go constants, remapped from
// the Cambia-specific auth/lobby-id errors to this protocol's admission and
// session-lifecycle reasons.
const (
	closeCodeCapacityReached websocket.StatusCode = 3000
	closeCodeDenied          websocket.StatusCode = 3001
	closeCodeKicked          websocket.StatusCode = 3002
	closeCodeHostLeft        websocket.StatusCode = 3003
)

// closeCodeForReason maps the host's freeform closeAfterGraceUnsafe/teardown
// reason strings to one of the codes above, falling back to a normal
// closure for anything it doesn't recognize.
func closeCodeForReason(reason string) websocket.StatusCode {
	switch reason {
	case "capacity reached before approval", "capacity reached", "lobby at capacity":
		return closeCodeCapacityReached
	case "denied by host":
		return closeCodeDenied
	case "kicked":
		return closeCodeKicked
	case "host left":
		return closeCodeHostLeft
	default:
		return websocket.StatusNormalClosure
	}
}

// WriteTimeout bounds a single frame write, matching the teacher's 5s write
// deadline in writePump.
const WriteTimeout = 5 * time.Second

// Conn wraps a *websocket.Conn as a transport.Conn.
type Conn struct {
	addr transport.Addr
	c    *websocket.Conn
}

// New wraps an already-accepted or already-dialed websocket connection.
func New(addr transport.Addr, c *websocket.Conn) *Conn {
	return &Conn{addr: addr, c: c}
}

func (c *Conn) Addr() transport.Addr { return c.addr }

func (c *Conn) Send(ctx context.Context, data []byte) error {
	writeCtx, cancel := context.WithTimeout(ctx, WriteTimeout)
	defer cancel()
	if err := c.c.Write(writeCtx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("%w: websocket write: %v", transport.ErrRecoverable, err)
	}
	return nil
}

func (c *Conn) Recv(ctx context.Context) ([]byte, error) {
	typ, data, err := c.c.Read(ctx)
	if err != nil {
		status := websocket.CloseStatus(err)
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			return nil, fmt.Errorf("transport: peer closed: %w", err)
		}
		return nil, fmt.Errorf("%w: websocket read: %v", transport.ErrRecoverable, err)
	}
	if typ != websocket.MessageText {
		return nil, fmt.Errorf("transport: unexpected frame type %d", typ)
	}
	return data, nil
}

func (c *Conn) Close(reason string) error {
	return c.c.Close(closeCodeForReason(reason), reason)
}

// Dialer dials a host's websocket listener as a guest.
type Dialer struct{}

func (Dialer) Dial(ctx context.Context, target transport.Addr) (transport.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	c, _, err := websocket.Dial(dialCtx, string(target), &websocket.DialOptions{
		Subprotocols: []string{Subprotocol},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: websocket dial: %v", transport.ErrRecoverable, err)
	}
	if c.Subprotocol() != Subprotocol {
		c.Close(websocket.StatusPolicyViolation, "peer does not speak the peerlobby subprotocol")
		return nil, fmt.Errorf("%w: subprotocol mismatch", transport.ErrFatal)
	}
	return New(target, c), nil
}
