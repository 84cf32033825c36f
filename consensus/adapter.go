// Package consensus implements the propose -> validate -> unanimous-approve
// -> finalize cycle from spec.md §4.2, layered above a lobby.Host or
// lobby.Guest. The engine never inspects game state itself; it is
// parameterized over an opaque state type S and move type M via
// GameAdapter, per Design Note 9's "capability set, not inheritance"
// instruction.
package consensus

// GameAdapter is the pure, deterministic contract a concrete game supplies.
// The engine calls these three functions and nothing else on the game's
// behalf.
type GameAdapter[S, M any] interface {
	// InitialState builds the starting game state for a lobby of
	// playerCount players, given the lobby's per-game settings.
	InitialState(playerCount int, settings map[string]interface{}) S
	// ValidateMove reports whether move is legal against state when
	// proposed by the player at proposerIndex (turn order index). Must be
	// pure and deterministic: every honest peer must agree.
	ValidateMove(state S, move M, proposerIndex int) bool
	// ApplyMove returns the state after move. Must only ever be called on a
	// (state, move) pair ValidateMove has already accepted.
	ApplyMove(state S, move M) S
}

// TerminalChecker is an optional capability a GameAdapter may additionally
// implement. When present, the engine consults it after every successful
// finalize to decide whether to fire a game-end event (spec.md §4.2: "if
// the apply emits a terminal result, the engine informs its caller via a
// game-end hook").
type TerminalChecker[S any] interface {
	Terminal(state S) (ended bool, result string)
}
