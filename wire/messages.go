package wire

import "encoding/json"

// JoinReason enumerates why a join attempt was rejected or denied.
type JoinReason string

const (
	ReasonNotFound         JoinReason = "not-found"
	ReasonCapacityReached  JoinReason = "capacity-reached"
	ReasonInGame           JoinReason = "in-game"
	ReasonDenied           JoinReason = "denied"
)

// PlayerView is the wire shape of a single player, embedded in several
// payloads below.
type PlayerView struct {
	LogicalID   string `json:"logical_id"`
	DisplayName string `json:"display_name"`
	IsHost      bool   `json:"is_host"`
	IsReady     bool   `json:"is_ready"`
	IsConnected bool   `json:"is_connected"`
}

// JoinRequestPayload is sent guest -> host to admit or reconnect a logical id.
type JoinRequestPayload struct {
	DisplayName  string `json:"display_name"`
	LogicalID    string `json:"logical_id"`
	SessionToken string `json:"session_token,omitempty"`
}

// JoinAcceptedPayload is sent host -> one guest on successful admission or
// reconnection.
type JoinAcceptedPayload struct {
	Players         []PlayerView    `json:"players"`
	SelectedGameID  string          `json:"selected_game_id,omitempty"`
	Settings        SettingsPayload `json:"settings"`
	IsGameStarted   bool            `json:"is_game_started,omitempty"`
	SessionToken    string          `json:"session_token,omitempty"`
}

// JoinRejectedPayload is sent host -> one guest when admission is refused.
type JoinRejectedPayload struct {
	Reason JoinReason `json:"reason"`
}

// JoinPendingPayload acknowledges a join request is awaiting host approval.
type JoinPendingPayload struct{}

// JoinApprovedPayload and JoinDeniedPayload notify a pending requester of
// the host's decision. The actual admission (join-accepted) is sent
// separately once approve() re-validates capacity.
type JoinApprovedPayload struct{}
type JoinDeniedPayload struct{}

// PlayerJoinedPayload is broadcast host -> others whenever a player's
// presence changes (new admission, reconnection, or re-announcement of
// connectivity status).
type PlayerJoinedPayload struct {
	Player PlayerView `json:"player"`
}

// PlayerLeftPayload announces a player's departure, either direction.
type PlayerLeftPayload struct {
	LogicalID string `json:"logical_id"`
}

// PlayerReadyPayload announces a ready-state change.
type PlayerReadyPayload struct {
	LogicalID string `json:"logical_id"`
	IsReady   bool    `json:"is_ready"`
}

// PlayerKickedPayload is broadcast host -> all (and sent directly to the
// victim) on a kick.
type PlayerKickedPayload struct {
	LogicalID string `json:"logical_id"`
}

// HostLeftPayload is broadcast when the host departs intentionally.
type HostLeftPayload struct{}

// SettingsPayload mirrors lobby.LobbySettings on the wire.
type SettingsPayload struct {
	RequiresRequest bool                              `json:"requires_request"`
	PerGameSettings map[string]map[string]interface{} `json:"per_game_settings,omitempty"`
}

// LobbySettingsPayload is broadcast whenever the host updates settings.
type LobbySettingsPayload struct {
	Settings SettingsPayload `json:"settings"`
}

// GameSelectedPayload announces which game the lobby will play.
type GameSelectedPayload struct {
	GameID string `json:"game_id"`
}

// GameStartPayload announces the transition into the consensus phase.
type GameStartPayload struct {
	GameID  string       `json:"game_id"`
	Players []PlayerView `json:"players"`
}

// GameMessagePayload carries consensus-engine traffic (and any
// game-specific pass-through message) inside a single lobby-authority-
// checked envelope. InnerType selects which reserved consensus shape (see
// the consensus package) or, if unrecognized, is surfaced verbatim to the
// game adapter.
type GameMessagePayload struct {
	InnerType string          `json:"inner_type"`
	Data      json.RawMessage `json:"data,omitempty"`
	SenderID  string          `json:"sender_id,omitempty"`
}
