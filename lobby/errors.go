package lobby

import "errors"

var (
	// ErrAlreadyStarted is returned by Host.StartGame after is_game_started
	// has already flipped true once.
	ErrAlreadyStarted = errors.New("lobby: game already started")
	// ErrNotAdmitted is returned when an action targets a logical id with no
	// live connection bound to it.
	ErrNotAdmitted = errors.New("lobby: logical id not admitted or not connected")
	// ErrNotConnected is returned by a guest action attempted before a host
	// connection exists.
	ErrNotConnected = errors.New("lobby: not connected to host")
	// ErrHostDisconnected marks the guest-side "host connection closed
	// without a prior terminal state" case from spec.md §4.1.
	ErrHostDisconnected = errors.New("lobby: host disconnected")
)
