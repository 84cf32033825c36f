package lobby

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kestrelnet/peerlobby/codec"
	"github.com/kestrelnet/peerlobby/identity"
	"github.com/kestrelnet/peerlobby/transport"
	"github.com/kestrelnet/peerlobby/wire"
)

// Host owns the star topology's center: one connection per guest, the
// authoritative player list, pending requests, and issued session tokens.
// Every mutating method that touches shared state comes in an XxxUnsafe
// (lock already held) / Xxx (acquires mu) pair, mirroring the teacher's
// internal/lobby/lobby.go.
type Host struct {
	mu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc

	code     string
	selfID   identity.LogicalID
	settings LobbySettings

	selectedGameID string
	capacity       CapacityFunc

	players []Player
	pending []PendingJoinRequest

	tokenHashes map[identity.LogicalID]string

	conns         map[transport.Addr]transport.Conn
	addrToLogical map[transport.Addr]identity.LogicalID
	logicalToAddr map[identity.LogicalID]transport.Addr

	reconnectTimers map[identity.LogicalID]*time.Timer
	limiters        map[transport.Addr]*rateLimiter

	isGameStarted bool
	torndown      bool

	events chan Event
	log    *logrus.Logger
}

// NewHost creates a host-side lobby. selfID/selfDisplayName become the
// host's own Player entry (is_host=true, is_connected=true from the start,
// since the host has no transport connection to itself). capacity may be
// nil, in which case a default of 8 applies.
func NewHost(code string, selfID identity.LogicalID, selfDisplayName string, settings LobbySettings, capacity CapacityFunc, log *logrus.Logger) *Host {
	ctx, cancel := context.WithCancel(context.Background())
	if log == nil {
		log = logrus.StandardLogger()
	}
	h := &Host{
		ctx:             ctx,
		cancel:          cancel,
		code:            code,
		selfID:          selfID,
		settings:        settings,
		capacity:        capacity,
		tokenHashes:     make(map[identity.LogicalID]string),
		conns:           make(map[transport.Addr]transport.Conn),
		addrToLogical:   make(map[transport.Addr]identity.LogicalID),
		logicalToAddr:   make(map[identity.LogicalID]transport.Addr),
		reconnectTimers: make(map[identity.LogicalID]*time.Timer),
		limiters:        make(map[transport.Addr]*rateLimiter),
		events:          make(chan Event, 256),
		log:             log,
	}
	h.players = []Player{{LogicalID: selfID, DisplayName: selfDisplayName, IsHost: true, IsConnected: true}}
	return h
}

// AddConnection registers a freshly accepted, not-yet-identified
// connection and starts pumping it, mirroring the teacher's readPump.
func (h *Host) AddConnection(conn transport.Conn) {
	h.mu.Lock()
	h.conns[conn.Addr()] = conn
	h.mu.Unlock()
	go h.readLoop(conn)
}

func (h *Host) readLoop(conn transport.Conn) {
	for {
		data, err := conn.Recv(h.ctx)
		if err != nil {
			h.handleConnClosed(conn)
			return
		}
		env, err := codec.Decode(data)
		if err != nil {
			h.log.WithError(err).Warn("lobby: dropping malformed envelope")
			continue
		}
		h.handleEnvelope(conn, env)
	}
}

// Events exposes the single observable-output channel (spec.md §7).
func (h *Host) Events() <-chan Event { return h.events }

func (h *Host) SelfID() identity.LogicalID { return h.selfID }
func (h *Host) IsHost() bool               { return true }

// PlayerOrder returns the admitted players in turn order.
func (h *Host) PlayerOrder() []identity.LogicalID {
	h.mu.Lock()
	defer h.mu.Unlock()
	ids := make([]identity.LogicalID, len(h.players))
	for i, p := range h.players {
		ids[i] = p.LogicalID
	}
	return ids
}

// ConnectedPlayerIDs returns the subset of players currently connected.
func (h *Host) ConnectedPlayerIDs() []identity.LogicalID {
	h.mu.Lock()
	defer h.mu.Unlock()
	var ids []identity.LogicalID
	for _, p := range h.players {
		if p.IsConnected {
			ids = append(ids, p.LogicalID)
		}
	}
	return ids
}

// Players returns a snapshot of the current player list.
func (h *Host) Players() []Player {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Player, len(h.players))
	copy(out, h.players)
	return out
}

// ---- host user actions ----

// SetReady toggles the host's own ready state, the same path a guest's
// player-ready message drives.
func (h *Host) SetReady(ready bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	idx := h.findPlayerIndexUnsafe(h.selfID)
	if idx < 0 {
		return
	}
	h.players[idx].IsReady = ready
	h.broadcastAllUnsafe(wire.TypePlayerReady, wire.PlayerReadyPayload{LogicalID: string(h.selfID), IsReady: ready})
	h.emit(Event{Kind: EventPlayerReady, Player: h.players[idx]})
}

// SetSettings updates lobby settings and broadcasts the change.
func (h *Host) SetSettings(settings LobbySettings) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.settings = settings
	h.broadcastAllUnsafe(wire.TypeLobbySettings, wire.LobbySettingsPayload{Settings: toSettingsPayload(settings)})
	h.emit(Event{Kind: EventSettingsChanged, Settings: settings})
}

// SelectGame announces the chosen game id to every connected player.
func (h *Host) SelectGame(gameID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.selectedGameID = gameID
	h.broadcastAllUnsafe(wire.TypeGameSelected, wire.GameSelectedPayload{GameID: gameID})
	h.emit(Event{Kind: EventGameSelected, GameID: gameID})
}

// StartGame flips is_game_started false->true exactly once, per spec.md §3.
func (h *Host) StartGame() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.isGameStarted {
		return ErrAlreadyStarted
	}
	h.isGameStarted = true
	views := make([]wire.PlayerView, len(h.players))
	for i, p := range h.players {
		views[i] = toPlayerView(p)
	}
	h.broadcastAllUnsafe(wire.TypeGameStart, wire.GameStartPayload{GameID: h.selectedGameID, Players: views})
	h.emit(Event{Kind: EventGameStart, GameID: h.selectedGameID, Players: append([]Player(nil), h.players...)})
	return nil
}

// Approve admits a pending requester, re-checking capacity per spec.md
// §4.1's "approve re-checks capacity (may auto-deny on race)".
func (h *Host) Approve(id identity.LogicalID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	idx := h.findPendingIndexUnsafe(id)
	if idx < 0 {
		return
	}
	req := h.pending[idx]
	h.removePendingAtUnsafe(idx)

	if len(h.players) >= h.capacityUnsafe() {
		h.rejectConnUnsafe(id, wire.ReasonCapacityReached, "capacity reached before approval")
		return
	}

	conn, ok := h.connForLogicalUnsafe(id)
	if !ok {
		return
	}
	h.admitUnsafe(conn, id, req.DisplayName)

	if len(h.players) >= h.capacityUnsafe() {
		h.autoDenyAllPendingUnsafe()
	}
}

// Deny refuses a pending requester.
func (h *Host) Deny(id identity.LogicalID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	idx := h.findPendingIndexUnsafe(id)
	if idx < 0 {
		return
	}
	h.removePendingAtUnsafe(idx)

	conn, ok := h.connForLogicalUnsafe(id)
	if !ok {
		return
	}
	h.sendToConnUnsafe(conn, wire.TypeJoinDenied, wire.JoinDeniedPayload{})
	h.closeAfterGraceUnsafe(conn, "denied by host")
}

// Kick ejects an admitted player.
func (h *Host) Kick(id identity.LogicalID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	idx := h.findPlayerIndexUnsafe(id)
	if idx < 0 {
		return
	}
	player := h.players[idx]
	payload := wire.PlayerKickedPayload{LogicalID: string(id)}

	conn, hasConn := h.connForLogicalUnsafe(id)
	if hasConn {
		h.sendToConnUnsafe(conn, wire.TypePlayerKicked, payload)
	}
	h.broadcastExceptUnsafe(id, wire.TypePlayerKicked, payload)

	h.removePlayerAndMapsUnsafe(id)
	if hasConn {
		h.closeAfterGraceUnsafe(conn, "kicked")
	}
	h.emit(Event{Kind: EventPlayerKicked, Player: player})
}

// Leave tears the lobby down intentionally, broadcasting host-left first.
func (h *Host) Leave() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.broadcastAllUnsafe(wire.TypeHostLeft, wire.HostLeftPayload{})
	h.teardownUnsafe("host left")
}

// Teardown releases every connection, timer, and map idempotently. It may
// be called from any handler (spec.md §5).
func (h *Host) Teardown(reason string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.teardownUnsafe(reason)
}

// ---- consensus.Peer surface ----

func (h *Host) SendGameMessage(ctx context.Context, innerType string, data []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sendGameMessageExceptUnsafe(ctx, "", innerType, data)
}

func (h *Host) SendGameMessageTo(ctx context.Context, targetID identity.LogicalID, innerType string, data []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	conn, ok := h.connForLogicalUnsafe(targetID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotAdmitted, targetID)
	}
	return h.sendToConnCtxUnsafe(ctx, conn, wire.TypeGameMessage, wire.GameMessagePayload{
		InnerType: innerType, Data: data, SenderID: string(h.selfID),
	})
}

func (h *Host) SendGameMessageExcept(ctx context.Context, excludeID identity.LogicalID, innerType string, data []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sendGameMessageExceptUnsafe(ctx, excludeID, innerType, data)
}

func (h *Host) sendGameMessageExceptUnsafe(ctx context.Context, excludeID identity.LogicalID, innerType string, data []byte) error {
	payload := wire.GameMessagePayload{InnerType: innerType, Data: data, SenderID: string(h.selfID)}
	var firstErr error
	for _, p := range h.players {
		if p.LogicalID == excludeID || p.LogicalID == h.selfID || !p.IsConnected {
			continue
		}
		conn, ok := h.connForLogicalUnsafe(p.LogicalID)
		if !ok {
			continue
		}
		if err := h.sendToConnCtxUnsafe(ctx, conn, wire.TypeGameMessage, payload); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// ---- inbound dispatch ----

func (h *Host) handleEnvelope(conn transport.Conn, env wire.Envelope) {
	if env.Type == wire.TypeJoinRequest {
		h.handleJoinRequest(conn, env)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.torndown {
		return
	}

	addr := conn.Addr()
	senderID, bound := h.addrToLogical[addr]
	if !bound {
		h.logDropUnsafe(env.Type, "unmapped connection")
		return
	}
	if string(senderID) != env.SenderID {
		h.logDropUnsafe(env.Type, "sender mismatch")
		return
	}

	now := time.Now()
	if absDiffMillis(now.UnixMilli(), env.Timestamp) > wire.MaxClockSkew {
		h.logDropUnsafe(env.Type, "stale timestamp")
		return
	}

	switch env.Type {
	case wire.TypePlayerReady, wire.TypePlayerLeft, wire.TypeGameMessage, wire.TypePing, wire.TypePong:
	default:
		h.logDropUnsafe(env.Type, "not accepted by host")
		return
	}

	var gm wire.GameMessagePayload
	exempt := false
	if env.Type == wire.TypeGameMessage {
		if err := codec.DecodePayload(env, &gm); err != nil {
			h.logDropUnsafe(env.Type, "malformed game-message payload")
			return
		}
		exempt = wire.IsRateLimitExemptInnerType(gm.InnerType)
	}
	if !exempt {
		if !h.limiterForUnsafe(addr).Allow(now) {
			h.logDropUnsafe(env.Type, "rate limit exceeded")
			return
		}
	}

	switch env.Type {
	case wire.TypePlayerReady:
		h.handlePlayerReadyUnsafe(senderID, env)
	case wire.TypePlayerLeft:
		h.handlePlayerLeftUnsafe(senderID, env)
	case wire.TypeGameMessage:
		h.handleGameMessageUnsafe(senderID, env, gm)
	case wire.TypePing:
		h.sendToConnUnsafe(conn, wire.TypePong, struct{}{})
	case wire.TypePong:
	}
}

func (h *Host) handleJoinRequest(conn transport.Conn, env wire.Envelope) {
	var payload wire.JoinRequestPayload
	if err := codec.DecodePayload(env, &payload); err != nil {
		h.log.WithError(err).Warn("lobby: dropping malformed join-request")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.torndown {
		return
	}

	id := identity.LogicalID(payload.LogicalID)
	if idx := h.findPlayerIndexUnsafe(id); idx >= 0 {
		h.handleReconnectUnsafe(conn, id, idx, payload)
		return
	}
	h.handleNewJoinUnsafe(conn, id, payload)
}

func (h *Host) handleReconnectUnsafe(conn transport.Conn, id identity.LogicalID, idx int, payload wire.JoinRequestPayload) {
	if expectedHash, hasToken := h.tokenHashes[id]; hasToken {
		ok, err := identity.VerifyToken(expectedHash, identity.SessionToken(payload.SessionToken))
		if err != nil || !ok {
			// id may still be bound to a legitimate connection at another
			// address; never touch the address maps for id here, only the
			// rejected conn itself.
			h.sendToConnUnsafe(conn, wire.TypeJoinRejected, wire.JoinRejectedPayload{Reason: wire.ReasonDenied})
			h.closeAfterGraceUnsafe(conn, "token mismatch")
			return
		}
	}

	if t, ok := h.reconnectTimers[id]; ok {
		t.Stop()
		delete(h.reconnectTimers, id)
	}

	h.bindConnUnsafe(conn.Addr(), conn, id)
	h.players[idx].IsConnected = true

	h.sendToConnUnsafe(conn, wire.TypeJoinAccepted, h.snapshotForUnsafe(payload.SessionToken))
	h.broadcastPlayerJoinedExceptUnsafe(id)
	h.emit(Event{Kind: EventPlayerJoined, Player: h.players[idx]})
}

func (h *Host) handleNewJoinUnsafe(conn transport.Conn, id identity.LogicalID, payload wire.JoinRequestPayload) {
	if h.isGameStarted {
		h.bindConnUnsafe(conn.Addr(), conn, id)
		h.rejectConnUnsafe(id, wire.ReasonInGame, "lobby already in game")
		return
	}
	if len(h.players) >= h.capacityUnsafe() {
		h.bindConnUnsafe(conn.Addr(), conn, id)
		h.rejectConnUnsafe(id, wire.ReasonCapacityReached, "lobby at capacity")
		return
	}
	if h.settings.RequiresRequest {
		h.bindConnUnsafe(conn.Addr(), conn, id)
		h.pending = append(h.pending, PendingJoinRequest{LogicalID: id, DisplayName: payload.DisplayName, SubmittedAt: time.Now()})
		h.sendToConnUnsafe(conn, wire.TypeJoinPending, wire.JoinPendingPayload{})
		h.emit(Event{Kind: EventJoinPending, LogicalID: id})
		return
	}
	h.admitUnsafe(conn, id, payload.DisplayName)
}

func (h *Host) admitUnsafe(conn transport.Conn, id identity.LogicalID, displayName string) {
	h.bindConnUnsafe(conn.Addr(), conn, id)

	token, err := identity.NewSessionToken()
	if err != nil {
		h.emit(Event{Kind: EventError, Err: fmt.Errorf("lobby: generate session token: %w", err)})
		return
	}
	hash, err := identity.HashToken(token)
	if err != nil {
		h.emit(Event{Kind: EventError, Err: fmt.Errorf("lobby: hash session token: %w", err)})
		return
	}
	h.tokenHashes[id] = hash

	player := Player{LogicalID: id, DisplayName: displayName, IsConnected: true}
	h.players = append(h.players, player)

	h.sendToConnUnsafe(conn, wire.TypeJoinAccepted, h.snapshotForUnsafe(string(token)))
	h.broadcastPlayerJoinedExceptUnsafe(id)
	h.emit(Event{Kind: EventPlayerJoined, Player: player})
}

func (h *Host) autoDenyAllPendingUnsafe() {
	rest := h.pending
	h.pending = nil
	for _, req := range rest {
		h.rejectConnUnsafe(req.LogicalID, wire.ReasonCapacityReached, "capacity reached")
	}
}

func (h *Host) handlePlayerReadyUnsafe(senderID identity.LogicalID, env wire.Envelope) {
	var payload wire.PlayerReadyPayload
	if err := codec.DecodePayload(env, &payload); err != nil {
		h.logDropUnsafe(env.Type, "malformed player-ready payload")
		return
	}
	if payload.LogicalID != string(senderID) {
		h.logDropUnsafe(env.Type, "player-ready payload/sender mismatch")
		return
	}
	idx := h.findPlayerIndexUnsafe(senderID)
	if idx < 0 {
		return
	}
	h.players[idx].IsReady = payload.IsReady
	h.broadcastAllUnsafe(wire.TypePlayerReady, wire.PlayerReadyPayload{LogicalID: payload.LogicalID, IsReady: payload.IsReady})
	h.emit(Event{Kind: EventPlayerReady, Player: h.players[idx]})
}

func (h *Host) handlePlayerLeftUnsafe(senderID identity.LogicalID, env wire.Envelope) {
	var payload wire.PlayerLeftPayload
	if err := codec.DecodePayload(env, &payload); err != nil {
		h.logDropUnsafe(env.Type, "malformed player-left payload")
		return
	}
	if payload.LogicalID != string(senderID) {
		h.logDropUnsafe(env.Type, "player-left payload/sender mismatch")
		return
	}
	idx := h.findPlayerIndexUnsafe(senderID)
	if idx < 0 {
		return
	}
	player := h.players[idx]
	conn, hasConn := h.connForLogicalUnsafe(senderID)
	h.removePlayerAndMapsUnsafe(senderID)
	h.broadcastAllUnsafe(wire.TypePlayerLeft, wire.PlayerLeftPayload{LogicalID: payload.LogicalID})
	if hasConn {
		h.closeAfterGraceUnsafe(conn, "left voluntarily")
	}
	h.emit(Event{Kind: EventPlayerLeft, Player: player})
}

func (h *Host) handleGameMessageUnsafe(senderID identity.LogicalID, env wire.Envelope, gm wire.GameMessagePayload) {
	if h.findPlayerIndexUnsafe(senderID) < 0 {
		h.logDropUnsafe(env.Type, "game-message from unadmitted sender")
		return
	}
	h.emit(Event{Kind: EventGameMessage, GameMessage: GameMessage{SenderID: senderID, InnerType: gm.InnerType, Data: gm.Data}})
}

// handleConnClosed implements spec.md §4.1's "presence on disconnect"
// (host side), including the stale-close invariant.
func (h *Host) handleConnClosed(conn transport.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	addr := conn.Addr()
	current, tracked := h.conns[addr]
	delete(h.conns, addr)
	delete(h.limiters, addr)

	if !tracked || current != conn {
		return // stale close: not the current connection for this address
	}

	id, mapped := h.addrToLogical[addr]
	if !mapped {
		return
	}

	if idx := h.findPendingIndexUnsafe(id); idx >= 0 {
		h.removePendingAtUnsafe(idx)
		delete(h.addrToLogical, addr)
		delete(h.logicalToAddr, id)
		return
	}

	pidx := h.findPlayerIndexUnsafe(id)
	if pidx < 0 {
		delete(h.addrToLogical, addr)
		delete(h.logicalToAddr, id)
		return
	}

	h.players[pidx].IsConnected = false
	delete(h.addrToLogical, addr)
	delete(h.logicalToAddr, id)

	h.broadcastPlayerJoinedExceptUnsafe(id)
	h.emit(Event{Kind: EventPresenceChanged, Player: h.players[pidx]})

	h.reconnectTimers[id] = time.AfterFunc(ReconnectWindow, func() { h.onReconnectTimeout(id) })
}

func (h *Host) onReconnectTimeout(id identity.LogicalID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.reconnectTimers, id)
	if h.torndown {
		return
	}

	idx := h.findPlayerIndexUnsafe(id)
	if idx < 0 || h.players[idx].IsConnected {
		return // removed or already reconnected
	}

	if h.isGameStarted && h.connectedCountUnsafe() <= 1 {
		h.teardownUnsafe("not enough players")
		return
	}

	player := h.players[idx]
	h.removePlayerAndMapsUnsafe(id)
	h.broadcastAllUnsafe(wire.TypePlayerLeft, wire.PlayerLeftPayload{LogicalID: string(id)})
	h.emit(Event{Kind: EventPlayerLeft, Player: player})
}

// ---- small helpers, all assume h.mu held unless noted ----

func (h *Host) connectedCountUnsafe() int {
	n := 0
	for _, p := range h.players {
		if p.IsConnected {
			n++
		}
	}
	return n
}

func (h *Host) capacityUnsafe() int {
	if h.capacity == nil {
		return 8
	}
	return h.capacity(h.selectedGameID)
}

func (h *Host) findPlayerIndexUnsafe(id identity.LogicalID) int {
	for i, p := range h.players {
		if p.LogicalID == id {
			return i
		}
	}
	return -1
}

func (h *Host) findPendingIndexUnsafe(id identity.LogicalID) int {
	for i, r := range h.pending {
		if r.LogicalID == id {
			return i
		}
	}
	return -1
}

func (h *Host) removePendingAtUnsafe(idx int) {
	h.pending = append(h.pending[:idx], h.pending[idx+1:]...)
}

func (h *Host) removePlayerAndMapsUnsafe(id identity.LogicalID) {
	if idx := h.findPlayerIndexUnsafe(id); idx >= 0 {
		h.players = append(h.players[:idx], h.players[idx+1:]...)
	}
	if addr, ok := h.logicalToAddr[id]; ok {
		delete(h.conns, addr)
		delete(h.addrToLogical, addr)
		delete(h.limiters, addr)
	}
	delete(h.logicalToAddr, id)
	delete(h.tokenHashes, id)
	if t, ok := h.reconnectTimers[id]; ok {
		t.Stop()
		delete(h.reconnectTimers, id)
	}
}

func (h *Host) bindConnUnsafe(addr transport.Addr, conn transport.Conn, id identity.LogicalID) {
	if oldAddr, ok := h.logicalToAddr[id]; ok && oldAddr != addr {
		if oldConn, ok := h.conns[oldAddr]; ok && oldConn != conn {
			_ = oldConn.Close("replaced by new connection")
		}
		delete(h.conns, oldAddr)
		delete(h.addrToLogical, oldAddr)
		delete(h.limiters, oldAddr)
	}
	h.conns[addr] = conn
	h.addrToLogical[addr] = id
	h.logicalToAddr[id] = addr
}

func (h *Host) connForLogicalUnsafe(id identity.LogicalID) (transport.Conn, bool) {
	addr, ok := h.logicalToAddr[id]
	if !ok {
		return nil, false
	}
	conn, ok := h.conns[addr]
	return conn, ok
}

func (h *Host) limiterForUnsafe(addr transport.Addr) *rateLimiter {
	rl, ok := h.limiters[addr]
	if !ok {
		rl = &rateLimiter{}
		h.limiters[addr] = rl
	}
	return rl
}

func (h *Host) rejectConnUnsafe(id identity.LogicalID, reason wire.JoinReason, closeReason string) {
	conn, ok := h.connForLogicalUnsafe(id)
	if !ok {
		return
	}
	h.sendToConnUnsafe(conn, wire.TypeJoinRejected, wire.JoinRejectedPayload{Reason: reason})
	h.closeAfterGraceUnsafe(conn, closeReason)
}

func (h *Host) closeAfterGraceUnsafe(conn transport.Conn, reason string) {
	time.AfterFunc(PreCloseGrace, func() { _ = conn.Close(reason) })
}

func (h *Host) broadcastAllUnsafe(t wire.Type, payload interface{}) {
	for _, p := range h.players {
		conn, ok := h.connForLogicalUnsafe(p.LogicalID)
		if !ok {
			continue
		}
		h.sendToConnUnsafe(conn, t, payload)
	}
}

func (h *Host) broadcastExceptUnsafe(exclude identity.LogicalID, t wire.Type, payload interface{}) {
	for _, p := range h.players {
		if p.LogicalID == exclude {
			continue
		}
		conn, ok := h.connForLogicalUnsafe(p.LogicalID)
		if !ok {
			continue
		}
		h.sendToConnUnsafe(conn, t, payload)
	}
}

func (h *Host) broadcastPlayerJoinedExceptUnsafe(id identity.LogicalID) {
	idx := h.findPlayerIndexUnsafe(id)
	if idx < 0 {
		return
	}
	view := toPlayerView(h.players[idx])
	h.broadcastExceptUnsafe(id, wire.TypePlayerJoined, wire.PlayerJoinedPayload{Player: view})
}

func (h *Host) snapshotForUnsafe(token string) wire.JoinAcceptedPayload {
	views := make([]wire.PlayerView, len(h.players))
	for i, p := range h.players {
		views[i] = toPlayerView(p)
	}
	return wire.JoinAcceptedPayload{
		Players:        views,
		SelectedGameID: h.selectedGameID,
		Settings:       toSettingsPayload(h.settings),
		IsGameStarted:  h.isGameStarted,
		SessionToken:   token,
	}
}

func (h *Host) sendToConnUnsafe(conn transport.Conn, t wire.Type, payload interface{}) error {
	return h.sendToConnCtxUnsafe(h.ctx, conn, t, payload)
}

func (h *Host) sendToConnCtxUnsafe(ctx context.Context, conn transport.Conn, t wire.Type, payload interface{}) error {
	env, err := codec.EncodePayload(t, string(h.selfID), time.Now().UnixMilli(), payload)
	if err != nil {
		return err
	}
	data, err := codec.Encode(env)
	if err != nil {
		return err
	}
	return conn.Send(ctx, data)
}

func (h *Host) teardownUnsafe(reason string) {
	if h.torndown {
		return
	}
	h.torndown = true
	for _, t := range h.reconnectTimers {
		t.Stop()
	}
	h.reconnectTimers = map[identity.LogicalID]*time.Timer{}
	for _, c := range h.conns {
		_ = c.Close(reason)
	}
	h.conns = map[transport.Addr]transport.Conn{}
	h.cancel()
	h.emit(Event{Kind: EventTornDown, Reason: reason})
}

func (h *Host) logDropUnsafe(t wire.Type, reason string) {
	h.log.WithFields(logrus.Fields{"type": t, "reason": reason}).Warn("lobby: dropping message")
}

func (h *Host) emit(ev Event) {
	select {
	case h.events <- ev:
	default:
		h.log.WithField("kind", ev.Kind).Warn("lobby: event channel full, dropping event")
	}
}
