package consensus

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestrelnet/peerlobby/identity"
	"github.com/kestrelnet/peerlobby/internal/refgame"
	"github.com/kestrelnet/peerlobby/lobby"
	"github.com/kestrelnet/peerlobby/wire"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

// fakePeer is a minimal Peer double: two of them wired to each other's
// event channel stand in for a lobby.Host/lobby.Guest pair without a real
// transport, mirroring how lobby_test.go uses transport.MemConn for the
// layer below this one.
type fakePeer struct {
	selfID    identity.LogicalID
	isHost    bool
	order     []identity.LogicalID
	connected []identity.LogicalID
	events    chan lobby.Event
	other     *fakePeer
}

func newFakePeer(selfID identity.LogicalID, isHost bool, order []identity.LogicalID) *fakePeer {
	return &fakePeer{
		selfID:    selfID,
		isHost:    isHost,
		order:     order,
		connected: order,
		events:    make(chan lobby.Event, 16),
	}
}

func (p *fakePeer) SelfID() identity.LogicalID             { return p.selfID }
func (p *fakePeer) IsHost() bool                           { return p.isHost }
func (p *fakePeer) Events() <-chan lobby.Event             { return p.events }
func (p *fakePeer) PlayerOrder() []identity.LogicalID      { return p.order }
func (p *fakePeer) ConnectedPlayerIDs() []identity.LogicalID { return p.connected }

func (p *fakePeer) deliver(innerType string, data []byte) {
	p.other.events <- lobby.Event{
		Kind: lobby.EventGameMessage,
		GameMessage: lobby.GameMessage{
			SenderID:  p.selfID,
			InnerType: innerType,
			Data:      data,
		},
	}
}

func (p *fakePeer) SendGameMessage(ctx context.Context, innerType string, data []byte) error {
	p.deliver(innerType, data)
	return nil
}

func (p *fakePeer) SendGameMessageTo(ctx context.Context, targetID identity.LogicalID, innerType string, data []byte) error {
	p.deliver(innerType, data)
	return nil
}

func (p *fakePeer) SendGameMessageExcept(ctx context.Context, excludeID identity.LogicalID, innerType string, data []byte) error {
	if p.other.selfID == excludeID {
		return nil
	}
	p.deliver(innerType, data)
	return nil
}

// pairedEngines builds a host/guest engine pair over two fakePeers wired to
// each other, with both engines' initial state already seeded. The guest is
// seeded through Start rather than sync-state, so its sync latch is still
// open.
func pairedEngines(t *testing.T) (*Engine[refgame.State, refgame.Move], *Engine[refgame.State, refgame.Move], *fakePeer, *fakePeer) {
	t.Helper()
	order := []identity.LogicalID{"host1", "p1"}
	hostPeer := newFakePeer("host1", true, order)
	guestPeer := newFakePeer("p1", false, order)
	hostPeer.other = guestPeer
	guestPeer.other = hostPeer

	hostEngine := NewEngine[refgame.State, refgame.Move](hostPeer, refgame.Adapter{}, "ABCDEF", testLogger())
	guestEngine := NewEngine[refgame.State, refgame.Move](guestPeer, refgame.Adapter{}, "ABCDEF", testLogger())
	hostEngine.Start(2, nil)
	guestEngine.Start(2, nil)
	hostEngine.Run()
	guestEngine.Run()

	t.Cleanup(func() {
		hostEngine.Stop()
		guestEngine.Stop()
	})
	return hostEngine, guestEngine, hostPeer, guestPeer
}

func waitForConsensusEvent[S, M any](t *testing.T, ch <-chan Event[S, M], timeout time.Duration, match func(Event[S, M]) bool) Event[S, M] {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case ev := <-ch:
			if match(ev) {
				return ev
			}
		case <-deadline:
			t.Fatal("timed out waiting for matching consensus event")
		}
	}
}

func TestProposeApproveFinalizeHappyPath(t *testing.T) {
	hostEngine, guestEngine, _, _ := pairedEngines(t)

	require.NoError(t, hostEngine.ProposeMove(context.Background(), refgame.Move{Position: 0, Mark: refgame.MarkX}))

	hostEv := waitForConsensusEvent(t, hostEngine.Events(), time.Second, func(ev Event[refgame.State, refgame.Move]) bool {
		return ev.Kind == EventStateApplied
	})
	assert.Equal(t, refgame.MarkX, hostEv.State.Board[0])
	assert.Equal(t, identity.LogicalID("host1"), hostEv.ProposerID)

	guestEv := waitForConsensusEvent(t, guestEngine.Events(), time.Second, func(ev Event[refgame.State, refgame.Move]) bool {
		return ev.Kind == EventStateApplied
	})
	assert.Equal(t, refgame.MarkX, guestEv.State.Board[0])

	assert.Equal(t, refgame.MarkO, hostEngine.GameState().CurrentTurn)
	assert.Equal(t, refgame.MarkO, guestEngine.GameState().CurrentTurn)
}

func TestProposeMoveRefusesWhilePending(t *testing.T) {
	hostEngine, _, _, _ := pairedEngines(t)

	require.NoError(t, hostEngine.ProposeMove(context.Background(), refgame.Move{Position: 0, Mark: refgame.MarkX}))
	err := hostEngine.ProposeMove(context.Background(), refgame.Move{Position: 1, Mark: refgame.MarkX})
	assert.ErrorIs(t, err, ErrMoveAlreadyPending)
}

func TestGuestRejectsInvalidProposalSilently(t *testing.T) {
	_, guestEngine, hostPeer, _ := pairedEngines(t)

	data, err := json.Marshal(proposeMoveWire[refgame.Move]{
		MoveID: "bad-move",
		Move:   refgame.Move{Position: 0, Mark: refgame.MarkO}, // wrong mark for host's turn
	})
	require.NoError(t, err)
	hostPeer.deliver(wire.InnerTypeProposeMove, data)

	select {
	case ev := <-guestEngine.Events():
		t.Fatalf("expected no event for an invalid proposal, got %+v", ev)
	case <-time.After(200 * time.Millisecond):
	}
	assert.Equal(t, refgame.MarkX, guestEngine.GameState().CurrentTurn)
}

// TestFinalizeRefusesWithoutLocalApproval is the dual-approval safety
// property: a finalize-move for a move this peer never validated must be
// refused, leaving state untouched.
func TestFinalizeRefusesWithoutLocalApproval(t *testing.T) {
	_, guestEngine, hostPeer, _ := pairedEngines(t)

	before := guestEngine.GameState()

	data, err := json.Marshal(finalizeMoveWire{MoveID: "never-approved"})
	require.NoError(t, err)
	hostPeer.deliver(wire.InnerTypeFinalizeMove, data)

	ev := waitForConsensusEvent(t, guestEngine.Events(), time.Second, func(ev Event[refgame.State, refgame.Move]) bool {
		return ev.Kind == EventMoveRefused
	})
	assert.Equal(t, "never-approved", ev.MoveID)
	assert.Equal(t, before, guestEngine.GameState())
}

func TestSyncStateLatchesOnlyOnce(t *testing.T) {
	_, guestEngine, hostPeer, _ := pairedEngines(t)

	seeded := refgame.Adapter{}.InitialState(2, nil)
	seeded.Board[0] = refgame.MarkX
	seeded.CurrentTurn = refgame.MarkO

	data, err := json.Marshal(syncStateWire[refgame.State]{GameState: seeded})
	require.NoError(t, err)
	hostPeer.deliver(wire.InnerTypeSyncState, data)

	waitForConsensusEvent(t, guestEngine.Events(), time.Second, func(ev Event[refgame.State, refgame.Move]) bool {
		return ev.Kind == EventStateApplied
	})
	assert.Equal(t, seeded, guestEngine.GameState())

	// a second sync-state must be ignored, even with different contents.
	other := seeded
	other.Board[1] = refgame.MarkO
	data2, err := json.Marshal(syncStateWire[refgame.State]{GameState: other})
	require.NoError(t, err)
	hostPeer.deliver(wire.InnerTypeSyncState, data2)

	select {
	case ev := <-guestEngine.Events():
		t.Fatalf("expected the second sync-state to be dropped, got %+v", ev)
	case <-time.After(200 * time.Millisecond):
	}
	assert.Equal(t, seeded, guestEngine.GameState())
}

func TestFinalizeIsIdempotentOnRedelivery(t *testing.T) {
	hostEngine, guestEngine, _, _ := pairedEngines(t)

	require.NoError(t, hostEngine.ProposeMove(context.Background(), refgame.Move{Position: 0, Mark: refgame.MarkX}))
	ev := waitForConsensusEvent(t, guestEngine.Events(), time.Second, func(ev Event[refgame.State, refgame.Move]) bool {
		return ev.Kind == EventStateApplied
	})
	stateAfterFirst := guestEngine.GameState()
	require.NotEmpty(t, ev.MoveID)

	// redeliver the same already-finalized move id directly; finalizedMoveIDs
	// should make this a no-op rather than re-applying or refusing it.
	guestEngine.finalize(ev.MoveID, refgame.Move{Position: 8, Mark: refgame.MarkO}, "host1")
	assert.Equal(t, stateAfterFirst, guestEngine.GameState())

	select {
	case dup := <-guestEngine.Events():
		t.Fatalf("expected no event for a redelivered finalize, got %+v", dup)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestUnrecognizedInnerTypePassesThrough(t *testing.T) {
	_, guestEngine, hostPeer, _ := pairedEngines(t)

	hostPeer.deliver("custom-chat", []byte(`{"text":"gg"}`))

	ev := waitForConsensusEvent(t, guestEngine.Events(), time.Second, func(ev Event[refgame.State, refgame.Move]) bool {
		return ev.Kind == EventPassThrough
	})
	assert.Equal(t, "custom-chat", ev.PassThroughType)
	assert.Equal(t, identity.LogicalID("host1"), ev.SenderID)
}

func TestRequestStateRepliesWithSyncState(t *testing.T) {
	_, guestEngine, _, _ := pairedEngines(t)

	require.NoError(t, guestEngine.RequestState(context.Background()))

	ev := waitForConsensusEvent(t, guestEngine.Events(), time.Second, func(ev Event[refgame.State, refgame.Move]) bool {
		return ev.Kind == EventStateApplied
	})
	assert.Equal(t, refgame.MarkX, ev.State.CurrentTurn)
}

func TestGameEndedEmittedOnWinningMove(t *testing.T) {
	hostEngine, guestEngine, _, _ := pairedEngines(t)

	playMove := func(engine *Engine[refgame.State, refgame.Move], pos int, mark refgame.Mark) {
		require.NoError(t, engine.ProposeMove(context.Background(), refgame.Move{Position: pos, Mark: mark}))
		waitForConsensusEvent(t, hostEngine.Events(), time.Second, func(ev Event[refgame.State, refgame.Move]) bool {
			return ev.Kind == EventStateApplied && ev.MoveID != ""
		})
	}

	// X: 0,1,2 (top row win); O: 3,4 in between.
	playMove(hostEngine, 0, refgame.MarkX)
	waitForConsensusEvent(t, guestEngine.Events(), time.Second, func(ev Event[refgame.State, refgame.Move]) bool { return ev.Kind == EventStateApplied })

	require.NoError(t, guestEngine.ProposeMove(context.Background(), refgame.Move{Position: 3, Mark: refgame.MarkO}))
	waitForConsensusEvent(t, hostEngine.Events(), time.Second, func(ev Event[refgame.State, refgame.Move]) bool { return ev.Kind == EventStateApplied })
	waitForConsensusEvent(t, guestEngine.Events(), time.Second, func(ev Event[refgame.State, refgame.Move]) bool { return ev.Kind == EventStateApplied })

	playMove(hostEngine, 1, refgame.MarkX)
	waitForConsensusEvent(t, guestEngine.Events(), time.Second, func(ev Event[refgame.State, refgame.Move]) bool { return ev.Kind == EventStateApplied })

	require.NoError(t, guestEngine.ProposeMove(context.Background(), refgame.Move{Position: 4, Mark: refgame.MarkO}))
	waitForConsensusEvent(t, hostEngine.Events(), time.Second, func(ev Event[refgame.State, refgame.Move]) bool { return ev.Kind == EventStateApplied })
	waitForConsensusEvent(t, guestEngine.Events(), time.Second, func(ev Event[refgame.State, refgame.Move]) bool { return ev.Kind == EventStateApplied })

	require.NoError(t, hostEngine.ProposeMove(context.Background(), refgame.Move{Position: 2, Mark: refgame.MarkX}))
	ev := waitForConsensusEvent(t, hostEngine.Events(), time.Second, func(ev Event[refgame.State, refgame.Move]) bool {
		return ev.Kind == EventGameEnded
	})
	assert.Equal(t, "X-wins", ev.Result)
}
