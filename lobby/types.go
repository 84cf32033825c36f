// Package lobby implements the star-topology session manager described in
// spec.md §4.1: admission, approval, kick, presence, disconnect, and
// reconnect, plus the authority/freshness/rate-limit rules every inbound
// message is subject to. It is adapted from the teacher's
// internal/lobby/lobby.go mutex-guarded aggregate with paired
// Xxx/XxxUnsafe methods, generalized from a card-game lobby to an
// arbitrary-game one.
package lobby

import (
	"time"

	"github.com/kestrelnet/peerlobby/identity"
)

// Timing constants from spec.md §5.
const (
	// ReconnectWindow is how long a disconnected guest's slot is held open.
	ReconnectWindow = 5 * time.Second
	// PreCloseGrace is how long a connection is held open after a terminal
	// rejection so the peer can actually receive it before teardown.
	PreCloseGrace = 500 * time.Millisecond
	// ConnectDeadline bounds a single connect attempt.
	ConnectDeadline = 5 * time.Second
	// MaxOrdinaryConnectRetries bounds how many times an ordinary
	// (non-reconnect) connect is retried after its first attempt.
	MaxOrdinaryConnectRetries = 3
	// MaxReconnectRetries bounds reconnect-path connect attempts.
	MaxReconnectRetries = 10
	// RateLimitWindow is the sliding window the per-peer message cap applies
	// to.
	RateLimitWindow = 1 * time.Second
	// RateLimitMax is the maximum number of messages accepted per peer per
	// RateLimitWindow; the (RateLimitMax+1)th is dropped.
	RateLimitMax = 30
)

// Player mirrors spec.md §3's Player record. Players are kept in
// insertion order, which is also turn order.
type Player struct {
	LogicalID   identity.LogicalID
	DisplayName string
	IsHost      bool
	IsReady     bool
	IsConnected bool
}

// LobbySettings mirrors spec.md §3.
type LobbySettings struct {
	RequiresRequest bool
	// PerGameSettings maps game id -> arbitrary opaque settings for that
	// game; the core never interprets the values.
	PerGameSettings map[string]map[string]interface{}
}

// PendingJoinRequest mirrors spec.md §3, present only while
// LobbySettings.RequiresRequest is true.
type PendingJoinRequest struct {
	LogicalID   identity.LogicalID
	DisplayName string
	SubmittedAt time.Time
}

// CapacityFunc answers "how many players can game gameID hold", used to
// enforce the capacity checks in admission and approval. The core never
// inspects game rules itself (spec.md §1); this is the narrow delegation
// point. An empty selectedGameID means no game has been chosen yet; callers
// should return a sane default (e.g. a lobby-wide max).
type CapacityFunc func(selectedGameID string) int

// EventKind tags the shape of an Event delivered to a lobby's embedder.
type EventKind int

const (
	EventPlayerJoined EventKind = iota
	EventPresenceChanged // a known player's is_connected flag changed without full admission/removal
	EventPlayerLeft
	EventPlayerReady
	EventPlayerKicked
	EventJoinPending
	EventJoinRejectedSelf // delivered to the rejected joiner only (guest side)
	EventJoinAcceptedSelf // delivered to the admitted joiner only (guest side)
	EventHostLeft
	EventSettingsChanged
	EventGameSelected
	EventGameStart
	EventGameMessage // inner game-message payload, post authority checks
	EventError
	EventTornDown
)

// JoinStatus tracks a guest's admission lifecycle.
type JoinStatus int

const (
	JoinStatusConnecting JoinStatus = iota
	JoinStatusPending
	JoinStatusAccepted
	JoinStatusRejected
	JoinStatusDenied
	JoinStatusKicked
	JoinStatusLeft
	JoinStatusHostLeft
)

// Event is the single observable-output channel the lobby's embedder
// drains, per spec.md §7's "every operation either succeeds observably or
// emits an error event through the same channel as normal state updates."
type Event struct {
	Kind EventKind

	// Populated depending on Kind; zero values are safe to ignore.
	Player      Player
	LogicalID   identity.LogicalID
	Players     []Player
	Settings    LobbySettings
	GameID      string
	Reason      string
	Err         error
	SessionTok  identity.SessionToken
	GameMessage GameMessage
}

// GameMessage is the decoded payload of an inbound game-message envelope
// that has already passed lobby authority/freshness/rate-limit checks. The
// consensus package is the primary consumer.
type GameMessage struct {
	SenderID  identity.LogicalID
	InnerType string
	Data      []byte
}
