package consensus

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/kestrelnet/peerlobby/identity"
	"github.com/kestrelnet/peerlobby/lobby"
	"github.com/kestrelnet/peerlobby/wire"
)

// PendingMove mirrors spec.md §3's PendingMove<M>. Every peer, including
// the proposer and the host, keeps its own copy; only the host's copy ever
// accumulates approvals beyond {proposer, self}, since approve-move is
// only ever sent toward the host.
type PendingMove[M any] struct {
	MoveID          string
	Move            M
	ProposerID      identity.LogicalID
	Approvals       map[identity.LogicalID]bool
	LocallyApproved bool
}

// Engine runs the propose/validate/approve/finalize cycle on top of a
// lobby Peer (host or guest), guarded by one mutex like every other
// stateful aggregate in this module.
type Engine[S, M any] struct {
	mu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc

	code string
	peer Peer

	adapter GameAdapter[S, M]

	gameState              S
	pending                *PendingMove[M]
	hasReceivedInitialSync bool
	finalizedMoveIDs       map[string]bool

	finalizeSink FinalizeSink[M]

	events chan Event[S, M]
	log    *logrus.Logger
}

// NewEngine constructs an Engine layered over peer. code identifies the
// lobby session for historian tagging; it may be empty if no
// FinalizeSink is ever attached.
func NewEngine[S, M any](peer Peer, adapter GameAdapter[S, M], code string, log *logrus.Logger) *Engine[S, M] {
	ctx, cancel := context.WithCancel(context.Background())
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Engine[S, M]{
		ctx:              ctx,
		cancel:           cancel,
		code:             code,
		peer:             peer,
		adapter:          adapter,
		finalizedMoveIDs: make(map[string]bool),
		events:           make(chan Event[S, M], 256),
		log:              log,
	}
}

// SetFinalizeSink attaches the optional audit hook (historian.Publisher.Publish,
// typically). Must be called before Run to avoid a race with the first
// finalize.
func (e *Engine[S, M]) SetFinalizeSink(sink FinalizeSink[M]) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.finalizeSink = sink
}

// Events exposes the engine's observable-output channel.
func (e *Engine[S, M]) Events() <-chan Event[S, M] { return e.events }

// GameState returns the current opaque state.
func (e *Engine[S, M]) GameState() S {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.gameState
}

// Start seeds the initial game state. In a live lobby only the host calls
// this — a guest obtains its starting state via RequestState/sync-state.
// Start does not set the sync-state latch.
func (e *Engine[S, M]) Start(playerCount int, settings map[string]interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.gameState = e.adapter.InitialState(playerCount, settings)
}

// Run starts the background pump draining the underlying peer's event
// channel. Call once, after Start (on the host) or immediately (on a
// guest, before RequestState).
func (e *Engine[S, M]) Run() {
	go e.pump()
}

// Stop releases the pump goroutine. It does not touch the underlying peer.
func (e *Engine[S, M]) Stop() {
	e.cancel()
}

func (e *Engine[S, M]) pump() {
	for {
		select {
		case ev, ok := <-e.peer.Events():
			if !ok {
				return
			}
			if ev.Kind == lobby.EventGameMessage {
				e.handleGameMessage(ev.GameMessage)
				continue
			}
			e.emit(Event[S, M]{Kind: EventLobby, Lobby: ev})
		case <-e.ctx.Done():
			return
		}
	}
}

// RequestState sends the initial state-sync request, per spec.md §4.2's "a
// joining guest sends request-state on startup".
func (e *Engine[S, M]) RequestState(ctx context.Context) error {
	return e.peer.SendGameMessage(ctx, wire.InnerTypeRequestState, nil)
}

// ProposeMove originates a fresh proposal. Refuses while a move is already
// pending (spec.md §4.2's suspension rule).
func (e *Engine[S, M]) ProposeMove(ctx context.Context, move M) error {
	e.mu.Lock()
	if e.pending != nil {
		e.mu.Unlock()
		return ErrMoveAlreadyPending
	}
	selfID := e.peer.SelfID()
	moveID := uuid.NewString()
	e.pending = &PendingMove[M]{
		MoveID:          moveID,
		Move:            move,
		ProposerID:      selfID,
		Approvals:       map[identity.LogicalID]bool{selfID: true},
		LocallyApproved: true,
	}
	isHost := e.peer.IsHost()
	e.mu.Unlock()

	data, err := json.Marshal(proposeMoveWire[M]{MoveID: moveID, Move: move})
	if err != nil {
		return err
	}
	if isHost {
		return e.peer.SendGameMessageExcept(ctx, selfID, wire.InnerTypeProposeMove, data)
	}
	return e.peer.SendGameMessage(ctx, wire.InnerTypeProposeMove, data)
}

func (e *Engine[S, M]) handleGameMessage(gm lobby.GameMessage) {
	switch gm.InnerType {
	case wire.InnerTypeProposeMove:
		e.handleProposeMove(gm)
	case wire.InnerTypeApproveMove:
		e.handleApproveMove(gm)
	case wire.InnerTypeFinalizeMove:
		e.handleFinalizeMove(gm)
	case wire.InnerTypeRequestState:
		e.handleRequestState(gm)
	case wire.InnerTypeSyncState:
		e.handleSyncState(gm)
	default:
		e.emit(Event[S, M]{Kind: EventPassThrough, PassThroughType: gm.InnerType, PassThroughData: gm.Data, SenderID: gm.SenderID})
	}
}

func (e *Engine[S, M]) handleProposeMove(gm lobby.GameMessage) {
	var wm proposeMoveWire[M]
	if err := json.Unmarshal(gm.Data, &wm); err != nil {
		e.log.WithError(err).Warn("consensus: malformed propose-move payload")
		return
	}

	proposerID := gm.SenderID
	isHost := e.peer.IsHost()

	if isHost {
		// relay to every other connected player before this peer processes
		// it, so a proposing guest's peers learn of it too.
		_ = e.peer.SendGameMessageExcept(context.Background(), proposerID, wire.InnerTypeProposeMove, gm.Data)
	}

	e.mu.Lock()
	if proposerID == e.peer.SelfID() {
		// our own proposal, already recorded locally when we proposed it.
		e.mu.Unlock()
		return
	}

	proposerIndex := e.indexOfUnsafe(proposerID)
	if proposerIndex < 0 {
		e.mu.Unlock()
		return
	}

	if !e.adapter.ValidateMove(e.gameState, wm.Move, proposerIndex) {
		e.mu.Unlock()
		return // invalid proposal simply starves, spec.md §4.2
	}

	selfID := e.peer.SelfID()
	if e.pending != nil && e.pending.MoveID == wm.MoveID {
		e.pending.Approvals[proposerID] = true
		e.pending.Approvals[selfID] = true
		e.pending.LocallyApproved = true
	} else {
		e.pending = &PendingMove[M]{
			MoveID:          wm.MoveID,
			Move:            wm.Move,
			ProposerID:      proposerID,
			Approvals:       map[identity.LogicalID]bool{proposerID: true, selfID: true},
			LocallyApproved: true,
		}
	}
	moveID := wm.MoveID
	move := wm.Move

	if isHost {
		// the host's own approval is already recorded above; nothing ever
		// sends it an approve-move for its own bookkeeping, so it must check
		// coverage inline instead of waiting on handleApproveMove.
		covered := e.approvalsCoverConnectedUnsafe()
		e.mu.Unlock()
		if covered {
			e.finalizeAndBroadcast(moveID, move, proposerID)
		}
		return
	}
	e.mu.Unlock()

	data, err := json.Marshal(approveMoveWire{MoveID: moveID})
	if err != nil {
		return
	}
	_ = e.peer.SendGameMessage(context.Background(), wire.InnerTypeApproveMove, data)
}

func (e *Engine[S, M]) handleApproveMove(gm lobby.GameMessage) {
	if !e.peer.IsHost() {
		return // approve-move is host-only bookkeeping
	}
	var payload approveMoveWire
	if err := json.Unmarshal(gm.Data, &payload); err != nil {
		return
	}

	e.mu.Lock()
	if e.pending == nil || e.pending.MoveID != payload.MoveID {
		e.mu.Unlock()
		return
	}
	e.pending.Approvals[gm.SenderID] = true
	moveID := e.pending.MoveID
	move := e.pending.Move
	proposerID := e.pending.ProposerID
	covered := e.approvalsCoverConnectedUnsafe()
	e.mu.Unlock()

	if covered {
		e.finalizeAndBroadcast(moveID, move, proposerID)
	}
}

func (e *Engine[S, M]) approvalsCoverConnectedUnsafe() bool {
	for _, id := range e.peer.ConnectedPlayerIDs() {
		if !e.pending.Approvals[id] {
			return false
		}
	}
	return true
}

func (e *Engine[S, M]) finalizeAndBroadcast(moveID string, move M, proposerID identity.LogicalID) {
	data, err := json.Marshal(finalizeMoveWire{MoveID: moveID})
	if err == nil {
		_ = e.peer.SendGameMessageExcept(context.Background(), e.peer.SelfID(), wire.InnerTypeFinalizeMove, data)
	}
	e.finalize(moveID, move, proposerID)
}

func (e *Engine[S, M]) handleFinalizeMove(gm lobby.GameMessage) {
	var payload finalizeMoveWire
	if err := json.Unmarshal(gm.Data, &payload); err != nil {
		return
	}

	e.mu.Lock()
	var move M
	var proposerID identity.LogicalID
	if e.pending != nil && e.pending.MoveID == payload.MoveID {
		move = e.pending.Move
		proposerID = e.pending.ProposerID
	}
	e.mu.Unlock()

	e.finalize(payload.MoveID, move, proposerID)
}

// finalize applies the dual-approval safety check from spec.md §4.2:
// finalize only proceeds when this peer's pending move matches moveID AND
// was locally approved. A host fabricating a finalize for a move this peer
// never validated is refused here — the central safety property.
func (e *Engine[S, M]) finalize(moveID string, move M, proposerID identity.LogicalID) {
	e.mu.Lock()

	if e.finalizedMoveIDs[moveID] {
		e.mu.Unlock()
		return // re-delivery of an already-finalized move is a no-op
	}

	if e.pending == nil || e.pending.MoveID != moveID || !e.pending.LocallyApproved {
		e.pending = nil
		e.mu.Unlock()
		e.log.WithField("move_id", moveID).Warn("consensus: refusing finalize-move with no matching local approval")
		e.emit(Event[S, M]{Kind: EventMoveRefused, MoveID: moveID})
		return
	}

	newState := e.adapter.ApplyMove(e.gameState, move)
	e.gameState = newState
	e.pending = nil
	e.finalizedMoveIDs[moveID] = true
	sink := e.finalizeSink
	code := e.code
	e.mu.Unlock()

	e.emit(Event[S, M]{Kind: EventStateApplied, State: newState, MoveID: moveID, ProposerID: proposerID})

	if tc, ok := any(e.adapter).(TerminalChecker[S]); ok {
		if ended, result := tc.Terminal(newState); ended {
			e.emit(Event[S, M]{Kind: EventGameEnded, State: newState, Result: result})
		}
	}

	if sink != nil {
		sink(code, FinalizedMove[M]{MoveID: moveID, Move: move, ProposerID: proposerID, FinalizedAt: time.Now().UnixMilli()})
	}
}

func (e *Engine[S, M]) handleRequestState(gm lobby.GameMessage) {
	if !e.peer.IsHost() {
		return
	}
	e.mu.Lock()
	state := e.gameState
	e.mu.Unlock()

	data, err := json.Marshal(syncStateWire[S]{GameState: state})
	if err != nil {
		return
	}
	_ = e.peer.SendGameMessageTo(context.Background(), gm.SenderID, wire.InnerTypeSyncState, data)
}

// handleSyncState applies the exactly-once latch from spec.md §4.2: all
// sync-state after the first are refused so a mid-game overwrite can never
// happen.
func (e *Engine[S, M]) handleSyncState(gm lobby.GameMessage) {
	e.mu.Lock()
	if e.hasReceivedInitialSync {
		e.mu.Unlock()
		return
	}
	var payload syncStateWire[S]
	if err := json.Unmarshal(gm.Data, &payload); err != nil {
		e.mu.Unlock()
		return
	}
	e.gameState = payload.GameState
	e.hasReceivedInitialSync = true
	state := e.gameState
	e.mu.Unlock()

	e.emit(Event[S, M]{Kind: EventStateApplied, State: state})
}

func (e *Engine[S, M]) indexOfUnsafe(id identity.LogicalID) int {
	for i, pid := range e.peer.PlayerOrder() {
		if pid == id {
			return i
		}
	}
	return -1
}

func (e *Engine[S, M]) emit(ev Event[S, M]) {
	select {
	case e.events <- ev:
	default:
		e.log.Warn("consensus: event channel full, dropping event")
	}
}
