package consensus

import (
	"context"

	"github.com/kestrelnet/peerlobby/identity"
	"github.com/kestrelnet/peerlobby/lobby"
)

// Peer is the narrow surface the engine needs from whichever lobby role it
// runs on top of. Both *lobby.Host and *lobby.Guest satisfy it, which is
// what lets the same Engine implementation drive consensus regardless of
// which side of the star a participant sits on.
type Peer interface {
	SelfID() identity.LogicalID
	IsHost() bool
	Events() <-chan lobby.Event
	PlayerOrder() []identity.LogicalID
	ConnectedPlayerIDs() []identity.LogicalID

	// SendGameMessage sends to the receiver's one meaningful default
	// target: the host connection for a guest, every connected player for
	// a host.
	SendGameMessage(ctx context.Context, innerType string, data []byte) error
	// SendGameMessageTo addresses a single player directly. On a guest,
	// targetID is ignored (there is only one possible destination).
	SendGameMessageTo(ctx context.Context, targetID identity.LogicalID, innerType string, data []byte) error
	// SendGameMessageExcept fans out to every connected player except
	// excludeID. On a guest this degrades to SendGameMessage.
	SendGameMessageExcept(ctx context.Context, excludeID identity.LogicalID, innerType string, data []byte) error
}
