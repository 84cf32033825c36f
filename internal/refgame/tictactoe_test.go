package refgame

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInitialState(t *testing.T) {
	state := Adapter{}.InitialState(2, nil)
	assert.Equal(t, MarkX, state.CurrentTurn)
	assert.Equal(t, Board{}, state.Board)
	assert.False(t, state.IsOver)
}

func TestValidateMoveRejectsWrongTurn(t *testing.T) {
	state := Adapter{}.InitialState(2, nil)
	// it's X's turn; player index 1 (O) trying to move is rejected.
	assert.False(t, Adapter{}.ValidateMove(state, Move{Position: 0, Mark: MarkO}, 1))
}

func TestValidateMoveRejectsOccupiedCell(t *testing.T) {
	state := Adapter{}.InitialState(2, nil)
	state.Board[4] = MarkX
	state.CurrentTurn = MarkO
	assert.False(t, Adapter{}.ValidateMove(state, Move{Position: 4, Mark: MarkO}, 1))
}

func TestValidateMoveRejectsOutOfBounds(t *testing.T) {
	state := Adapter{}.InitialState(2, nil)
	assert.False(t, Adapter{}.ValidateMove(state, Move{Position: 9, Mark: MarkX}, 0))
	assert.False(t, Adapter{}.ValidateMove(state, Move{Position: -1, Mark: MarkX}, 0))
}

func TestValidateMoveRejectsAfterGameOver(t *testing.T) {
	state := Adapter{}.InitialState(2, nil)
	state.IsOver = true
	assert.False(t, Adapter{}.ValidateMove(state, Move{Position: 0, Mark: MarkX}, 0))
}

func TestValidateMoveAcceptsMatchingTurnAndMark(t *testing.T) {
	state := Adapter{}.InitialState(2, nil)
	assert.True(t, Adapter{}.ValidateMove(state, Move{Position: 0, Mark: MarkX}, 0))
}

func TestApplyMovePlacesMarkAndAdvancesTurn(t *testing.T) {
	state := Adapter{}.InitialState(2, nil)
	next := Adapter{}.ApplyMove(state, Move{Position: 0, Mark: MarkX})
	assert.Equal(t, MarkX, next.Board[0])
	assert.Equal(t, MarkO, next.CurrentTurn)
	assert.False(t, next.IsOver)
}

func TestApplyMoveDetectsWin(t *testing.T) {
	state := Adapter{}.InitialState(2, nil)
	state.Board = Board{MarkX, MarkX, MarkEmpty, MarkO, MarkO, MarkEmpty, MarkEmpty, MarkEmpty, MarkEmpty}
	state.CurrentTurn = MarkX

	next := Adapter{}.ApplyMove(state, Move{Position: 2, Mark: MarkX})
	assert.True(t, next.IsOver)
	assert.Equal(t, MarkX, next.Winner)
	assert.False(t, next.IsDraw)

	ended, result := Adapter{}.Terminal(next)
	assert.True(t, ended)
	assert.Equal(t, "X-wins", result)
}

func TestApplyMoveDetectsDraw(t *testing.T) {
	state := State{
		Board: Board{
			MarkX, MarkO, MarkX,
			MarkX, MarkO, MarkO,
			MarkO, MarkX, MarkEmpty,
		},
		CurrentTurn: MarkX,
	}
	next := Adapter{}.ApplyMove(state, Move{Position: 8, Mark: MarkX})
	assert.True(t, next.IsOver)
	assert.True(t, next.IsDraw)
	assert.Equal(t, MarkEmpty, next.Winner)

	ended, result := Adapter{}.Terminal(next)
	assert.True(t, ended)
	assert.Equal(t, "draw", result)
}

func TestTerminalNotOver(t *testing.T) {
	state := Adapter{}.InitialState(2, nil)
	ended, result := Adapter{}.Terminal(state)
	assert.False(t, ended)
	assert.Empty(t, result)
}
