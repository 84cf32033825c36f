package consensus

// Wire shapes for the game-message inner payloads the engine reserves
// (spec.md §4.2). These never appear on the envelope directly — they're
// the JSON that fills wire.GameMessagePayload.Data for each reserved inner
// type.
type proposeMoveWire[M any] struct {
	MoveID string `json:"move_id"`
	Move   M      `json:"move"`
}

type approveMoveWire struct {
	MoveID string `json:"move_id"`
}

type finalizeMoveWire struct {
	MoveID string `json:"move_id"`
}

type syncStateWire[S any] struct {
	GameState S `json:"game_state"`
}
