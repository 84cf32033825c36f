package consensus

import (
	"github.com/kestrelnet/peerlobby/identity"
	"github.com/kestrelnet/peerlobby/lobby"
)

type EventKind int

const (
	// EventLobby forwards a lobby.Event untouched, for embedders that want
	// a single channel to drain for everything happening in a session.
	EventLobby EventKind = iota
	EventStateApplied
	EventGameEnded
	EventMoveRefused
	EventPassThrough
)

// Event is the consensus package's half of spec.md §7's "observable event
// channel" story; State/Move fields are only meaningful for the EventKind
// they're documented against.
type Event[S, M any] struct {
	Kind EventKind

	State      S
	MoveID     string
	ProposerID identity.LogicalID
	Result     string // set on EventGameEnded

	PassThroughType string
	PassThroughData []byte
	SenderID        identity.LogicalID

	Lobby lobby.Event
}
