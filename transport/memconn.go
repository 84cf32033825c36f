package transport

import (
	"context"
	"fmt"
	"sync"
)

// MemConn is an in-process Conn backed by buffered channels, used to drive
// lobby tests without a real socket. A pair is created with
// NewMemPipe, mirroring how the teacher's tests wire up two ends of an
// ephemeral channel (internal/lobby.LobbyConnection.OutChan) without a
// network round trip.
type MemConn struct {
	addr   Addr
	out    chan []byte
	in     chan []byte
	closed chan struct{}
	once   sync.Once
}

// NewMemPipe returns two connected MemConn ends: messages sent on one are
// received on the other.
func NewMemPipe(aAddr, bAddr Addr, bufSize int) (*MemConn, *MemConn) {
	ab := make(chan []byte, bufSize)
	ba := make(chan []byte, bufSize)

	a := &MemConn{addr: aAddr, out: ab, in: ba, closed: make(chan struct{})}
	b := &MemConn{addr: bAddr, out: ba, in: ab, closed: make(chan struct{})}
	return a, b
}

func (c *MemConn) Addr() Addr { return c.addr }

func (c *MemConn) Send(ctx context.Context, data []byte) error {
	buf := make([]byte, len(data))
	copy(buf, data)
	select {
	case c.out <- buf:
		return nil
	case <-c.closed:
		return fmt.Errorf("transport: send on closed connection %s", c.addr)
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *MemConn) Recv(ctx context.Context) ([]byte, error) {
	select {
	case data, ok := <-c.in:
		if !ok {
			return nil, fmt.Errorf("transport: connection %s closed", c.addr)
		}
		return data, nil
	case <-c.closed:
		return nil, fmt.Errorf("transport: connection %s closed", c.addr)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close marks this end closed and closes the outbound channel so the peer's
// blocked Recv unblocks with an error too, mirroring how a real socket close
// is observed by the other side.
func (c *MemConn) Close(reason string) error {
	c.once.Do(func() {
		close(c.closed)
		close(c.out)
	})
	return nil
}
