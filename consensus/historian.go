package consensus

import "github.com/kestrelnet/peerlobby/identity"

// FinalizedMove is the record handed to a FinalizeSink after every
// successful finalize, on every peer that reaches it (host and guests
// alike) — it is a pure observer and never affects protocol outcome.
type FinalizedMove[M any] struct {
	MoveID      string
	Move        M
	ProposerID  identity.LogicalID
	FinalizedAt int64 // milliseconds since epoch
}

// FinalizeSink is the optional hook the historian package attaches to, per
// SPEC_FULL.md §4.4. lobbyCode identifies which session a finalize belongs
// to; the sink is expected to be fast and non-blocking, since it runs
// inline with finalize processing.
type FinalizeSink[M any] func(lobbyCode string, fm FinalizedMove[M])
