// Package wire defines the on-the-wire envelope and message variants shared
// by the lobby session manager and the turn consensus engine. Nothing in
// this package touches a transport or a socket; it only describes shapes and
// validates them.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Type is the tagged-variant discriminator carried on every envelope.
type Type string

const (
	TypeJoinRequest   Type = "join-request"
	TypeJoinAccepted  Type = "join-accepted"
	TypeJoinRejected  Type = "join-rejected"
	TypeJoinPending   Type = "join-pending"
	TypeJoinApproved  Type = "join-approved"
	TypeJoinDenied    Type = "join-denied"
	TypePlayerJoined  Type = "player-joined"
	TypePlayerLeft    Type = "player-left"
	TypePlayerReady   Type = "player-ready"
	TypePlayerKicked  Type = "player-kicked"
	TypeHostLeft      Type = "host-left"
	TypeLobbySettings Type = "lobby-settings"
	TypeGameSelected  Type = "game-selected"
	TypeGameStart     Type = "game-start"
	TypeGameMessage   Type = "game-message"
	TypePing          Type = "ping"
	TypePong          Type = "pong"
)

// knownTypes is used for structural validation: an envelope carrying a type
// not in this set is dropped per spec.
var knownTypes = map[Type]bool{
	TypeJoinRequest:   true,
	TypeJoinAccepted:  true,
	TypeJoinRejected:  true,
	TypeJoinPending:   true,
	TypeJoinApproved:  true,
	TypeJoinDenied:    true,
	TypePlayerJoined:  true,
	TypePlayerLeft:    true,
	TypePlayerReady:   true,
	TypePlayerKicked:  true,
	TypeHostLeft:      true,
	TypeLobbySettings: true,
	TypeGameSelected:  true,
	TypeGameStart:     true,
	TypeGameMessage:   true,
	TypePing:          true,
	TypePong:          true,
}

// IsKnown reports whether t is one of the reserved envelope variants.
func IsKnown(t Type) bool {
	return knownTypes[t]
}

// MaxClockSkew bounds how far a message's timestamp may drift from "now"
// before it is dropped as stale. See Design Note 9, Open Question 3: the
// spec's 30s ceiling is kept, exposed here so an integrator can override it
// without forking the package.
var MaxClockSkew int64 = 30_000 // milliseconds

// Envelope is the wire-level record every message is carried in:
//
//	{ type, payload, sender_id, timestamp }
//
// Payload is kept raw here; callers decode it into the variant-specific
// struct once the envelope itself has passed structural validation.
type Envelope struct {
	Type      Type            `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	SenderID  string          `json:"sender_id"`
	Timestamp int64           `json:"timestamp"`
}

var (
	// ErrUnknownType is returned when an envelope's type tag isn't one of
	// the reserved variants.
	ErrUnknownType = errors.New("wire: unknown message type")
	// ErrMissingSender is returned when sender_id is empty.
	ErrMissingSender = errors.New("wire: missing sender_id")
	// ErrMalformed is returned for structurally invalid envelopes (extra or
	// missing top-level fields, bad JSON).
	ErrMalformed = errors.New("wire: malformed envelope")
)

// Validate checks structural well-formedness of an already-parsed envelope:
// known type, non-empty sender, and a non-nil payload slot (it may be an
// empty object, `{}`, for zero-payload variants). It does not decode the
// payload into its variant-specific shape — see codec.DecodePayload.
func (e Envelope) Validate() error {
	if !IsKnown(e.Type) {
		return fmt.Errorf("%w: %q", ErrUnknownType, e.Type)
	}
	if e.SenderID == "" {
		return ErrMissingSender
	}
	if e.Payload == nil {
		return fmt.Errorf("%w: missing payload", ErrMalformed)
	}
	return nil
}
