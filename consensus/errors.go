package consensus

import "errors"

// ErrMoveAlreadyPending is returned by ProposeMove while a prior proposal
// has not yet finalized or been refused (spec.md §4.2's suspension rule).
var ErrMoveAlreadyPending = errors.New("consensus: a move is already pending")
