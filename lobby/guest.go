package lobby

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kestrelnet/peerlobby/codec"
	"github.com/kestrelnet/peerlobby/identity"
	"github.com/kestrelnet/peerlobby/transport"
	"github.com/kestrelnet/peerlobby/wire"
)

// Guest is the non-host side of the star: exactly one connection, to the
// host, and a view of lobby state that only ever changes in response to a
// message arriving on that connection.
type Guest struct {
	mu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc

	selfID      identity.LogicalID
	displayName string

	conn    transport.Conn
	limiter *rateLimiter

	players        []Player
	settings       LobbySettings
	selectedGameID string
	isGameStarted  bool

	joinStatus JoinStatus
	lastErr    error

	sessionToken identity.SessionToken
	store        identity.Store

	torndown bool

	events chan Event
	log    *logrus.Logger
}

// NewGuest creates a guest-side lobby client. store may be nil, in which
// case no identity persists across process restarts (spec.md §9's
// explicit-injected-capability rule: a nil store is still explicit, just
// inert).
func NewGuest(selfID identity.LogicalID, displayName string, store identity.Store, log *logrus.Logger) *Guest {
	ctx, cancel := context.WithCancel(context.Background())
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Guest{
		ctx:         ctx,
		cancel:      cancel,
		selfID:      selfID,
		displayName: displayName,
		store:       store,
		joinStatus:  JoinStatusConnecting,
		events:      make(chan Event, 256),
		log:         log,
	}
}

// Connect dials target through dialer, retrying recoverable failures up to
// MaxOrdinaryConnectRetries times after the first attempt (spec.md §5), then
// sends join-request.
func (g *Guest) Connect(ctx context.Context, dialer transport.Dialer, target transport.Addr) error {
	var lastErr error
	for attempt := 0; attempt <= MaxOrdinaryConnectRetries; attempt++ {
		dialCtx, cancel := context.WithTimeout(ctx, ConnectDeadline)
		conn, err := dialer.Dial(dialCtx, target)
		cancel()
		if err == nil {
			g.mu.Lock()
			g.conn = conn
			g.mu.Unlock()
			go g.readLoop(conn)
			return g.sendJoinRequest()
		}
		lastErr = err
		if !errors.Is(err, transport.ErrRecoverable) {
			return fmt.Errorf("lobby: connect: %w", err)
		}
	}
	return fmt.Errorf("lobby: connect: exhausted retries: %w", lastErr)
}

func (g *Guest) sendJoinRequest() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	token := g.sessionToken
	if g.store != nil {
		if id, tok, name, ok := g.store.Load(); ok && id == g.selfID {
			token = tok
			if name != "" {
				g.displayName = name
			}
		}
	}

	return g.sendUnsafe(wire.TypeJoinRequest, wire.JoinRequestPayload{
		DisplayName:  g.displayName,
		LogicalID:    string(g.selfID),
		SessionToken: string(token),
	})
}

func (g *Guest) readLoop(conn transport.Conn) {
	for {
		data, err := conn.Recv(g.ctx)
		if err != nil {
			g.handleHostConnClosed()
			return
		}
		env, err := codec.Decode(data)
		if err != nil {
			g.log.WithError(err).Warn("lobby: dropping malformed envelope")
			continue
		}
		g.handleEnvelope(env)
	}
}

func (g *Guest) handleHostConnClosed() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.torndown {
		return
	}
	switch g.joinStatus {
	case JoinStatusKicked, JoinStatusDenied, JoinStatusRejected, JoinStatusLeft, JoinStatusHostLeft:
		g.teardownUnsafe("terminal state already set")
		return
	}
	g.joinStatus = JoinStatusHostLeft
	g.lastErr = ErrHostDisconnected
	g.emit(Event{Kind: EventHostLeft, Reason: "host disconnected"})
	g.teardownUnsafe("host disconnected")
}

// ---- inbound dispatch ----

func (g *Guest) handleEnvelope(env wire.Envelope) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.torndown {
		return
	}
	if env.Type == wire.TypeJoinRequest {
		g.logDropUnsafe(env.Type, "guests never accept join-request")
		return
	}

	now := time.Now()
	if absDiffMillis(now.UnixMilli(), env.Timestamp) > wire.MaxClockSkew {
		g.logDropUnsafe(env.Type, "stale timestamp")
		return
	}

	var gm wire.GameMessagePayload
	exempt := false
	if env.Type == wire.TypeGameMessage {
		if err := codec.DecodePayload(env, &gm); err != nil {
			g.logDropUnsafe(env.Type, "malformed game-message payload")
			return
		}
		exempt = wire.IsRateLimitExemptInnerType(gm.InnerType)
	}
	if !exempt {
		if g.limiter == nil {
			g.limiter = &rateLimiter{}
		}
		if !g.limiter.Allow(now) {
			g.logDropUnsafe(env.Type, "rate limit exceeded")
			return
		}
	}

	switch env.Type {
	case wire.TypeJoinAccepted:
		g.handleJoinAcceptedUnsafe(env)
	case wire.TypeJoinRejected:
		g.handleJoinRejectedUnsafe(env)
	case wire.TypeJoinPending:
		g.joinStatus = JoinStatusPending
		g.emit(Event{Kind: EventJoinPending})
	case wire.TypeJoinApproved:
		g.emit(Event{Kind: EventJoinPending, Reason: "approved, awaiting admission"})
	case wire.TypeJoinDenied:
		g.joinStatus = JoinStatusDenied
		g.emit(Event{Kind: EventJoinRejectedSelf, Reason: "denied"})
		g.teardownUnsafe("denied")
	case wire.TypePlayerJoined:
		g.handlePlayerJoinedUnsafe(env)
	case wire.TypePlayerLeft:
		g.handlePlayerLeftUnsafe(env)
	case wire.TypePlayerReady:
		g.handlePlayerReadyUnsafe(env)
	case wire.TypePlayerKicked:
		g.handlePlayerKickedUnsafe(env)
	case wire.TypeHostLeft:
		g.joinStatus = JoinStatusHostLeft
		g.emit(Event{Kind: EventHostLeft})
		g.teardownUnsafe("host left")
	case wire.TypeLobbySettings:
		g.handleLobbySettingsUnsafe(env)
	case wire.TypeGameSelected:
		g.handleGameSelectedUnsafe(env)
	case wire.TypeGameStart:
		g.handleGameStartUnsafe(env)
	case wire.TypeGameMessage:
		g.emit(Event{Kind: EventGameMessage, GameMessage: GameMessage{
			SenderID: identity.LogicalID(gm.SenderID), InnerType: gm.InnerType, Data: gm.Data,
		}})
	case wire.TypePing:
		g.sendUnsafe(wire.TypePong, struct{}{})
	case wire.TypePong:
	default:
		g.logDropUnsafe(env.Type, "unknown to guest")
	}
}

func (g *Guest) handleJoinAcceptedUnsafe(env wire.Envelope) {
	var payload wire.JoinAcceptedPayload
	if err := codec.DecodePayload(env, &payload); err != nil {
		g.logDropUnsafe(env.Type, "malformed join-accepted payload")
		return
	}
	players := make([]Player, len(payload.Players))
	for i, v := range payload.Players {
		players[i] = fromPlayerView(v)
	}
	g.players = players
	g.selectedGameID = payload.SelectedGameID
	g.settings = fromSettingsPayload(payload.Settings)
	g.isGameStarted = payload.IsGameStarted
	g.joinStatus = JoinStatusAccepted

	if payload.SessionToken != "" {
		g.sessionToken = identity.SessionToken(payload.SessionToken)
		if g.store != nil {
			_ = g.store.Save(g.selfID, g.sessionToken, g.displayName)
		}
	}
	g.emit(Event{Kind: EventJoinAcceptedSelf, Players: players})
}

func (g *Guest) handleJoinRejectedUnsafe(env wire.Envelope) {
	var payload wire.JoinRejectedPayload
	if err := codec.DecodePayload(env, &payload); err != nil {
		g.logDropUnsafe(env.Type, "malformed join-rejected payload")
		return
	}
	g.joinStatus = JoinStatusRejected
	g.lastErr = fmt.Errorf("lobby: join rejected: %s", payload.Reason)
	g.emit(Event{Kind: EventJoinRejectedSelf, Reason: string(payload.Reason)})
	g.teardownUnsafe(string(payload.Reason))
}

func (g *Guest) handlePlayerJoinedUnsafe(env wire.Envelope) {
	var payload wire.PlayerJoinedPayload
	if err := codec.DecodePayload(env, &payload); err != nil {
		g.logDropUnsafe(env.Type, "malformed player-joined payload")
		return
	}
	player := fromPlayerView(payload.Player)
	for i, p := range g.players {
		if p.LogicalID == player.LogicalID {
			g.players[i] = player
			g.emit(Event{Kind: EventPresenceChanged, Player: player})
			return
		}
	}
	g.players = append(g.players, player)
	g.emit(Event{Kind: EventPlayerJoined, Player: player})
}

func (g *Guest) handlePlayerLeftUnsafe(env wire.Envelope) {
	var payload wire.PlayerLeftPayload
	if err := codec.DecodePayload(env, &payload); err != nil {
		g.logDropUnsafe(env.Type, "malformed player-left payload")
		return
	}
	id := identity.LogicalID(payload.LogicalID)
	for i, p := range g.players {
		if p.LogicalID == id {
			g.players = append(g.players[:i], g.players[i+1:]...)
			g.emit(Event{Kind: EventPlayerLeft, LogicalID: id})
			return
		}
	}
}

func (g *Guest) handlePlayerReadyUnsafe(env wire.Envelope) {
	var payload wire.PlayerReadyPayload
	if err := codec.DecodePayload(env, &payload); err != nil {
		g.logDropUnsafe(env.Type, "malformed player-ready payload")
		return
	}
	id := identity.LogicalID(payload.LogicalID)
	for i, p := range g.players {
		if p.LogicalID == id {
			g.players[i].IsReady = payload.IsReady
			g.emit(Event{Kind: EventPlayerReady, Player: g.players[i]})
			return
		}
	}
}

func (g *Guest) handlePlayerKickedUnsafe(env wire.Envelope) {
	var payload wire.PlayerKickedPayload
	if err := codec.DecodePayload(env, &payload); err != nil {
		g.logDropUnsafe(env.Type, "malformed player-kicked payload")
		return
	}
	id := identity.LogicalID(payload.LogicalID)
	for i, p := range g.players {
		if p.LogicalID == id {
			g.players = append(g.players[:i], g.players[i+1:]...)
			break
		}
	}
	g.emit(Event{Kind: EventPlayerKicked, LogicalID: id})
	if id == g.selfID {
		g.joinStatus = JoinStatusKicked
		if g.store != nil {
			_ = g.store.Clear()
		}
		g.teardownUnsafe("kicked")
	}
}

func (g *Guest) handleLobbySettingsUnsafe(env wire.Envelope) {
	var payload wire.LobbySettingsPayload
	if err := codec.DecodePayload(env, &payload); err != nil {
		g.logDropUnsafe(env.Type, "malformed lobby-settings payload")
		return
	}
	g.settings = fromSettingsPayload(payload.Settings)
	g.emit(Event{Kind: EventSettingsChanged, Settings: g.settings})
}

func (g *Guest) handleGameSelectedUnsafe(env wire.Envelope) {
	var payload wire.GameSelectedPayload
	if err := codec.DecodePayload(env, &payload); err != nil {
		g.logDropUnsafe(env.Type, "malformed game-selected payload")
		return
	}
	g.selectedGameID = payload.GameID
	g.emit(Event{Kind: EventGameSelected, GameID: payload.GameID})
}

func (g *Guest) handleGameStartUnsafe(env wire.Envelope) {
	var payload wire.GameStartPayload
	if err := codec.DecodePayload(env, &payload); err != nil {
		g.logDropUnsafe(env.Type, "malformed game-start payload")
		return
	}
	if g.isGameStarted {
		return
	}
	g.isGameStarted = true
	players := make([]Player, len(payload.Players))
	for i, v := range payload.Players {
		players[i] = fromPlayerView(v)
	}
	g.players = players
	g.emit(Event{Kind: EventGameStart, GameID: payload.GameID, Players: players})
}

// ---- guest user actions ----

// SetReady sends a player-ready for the local participant.
func (g *Guest) SetReady(ready bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sendUnsafe(wire.TypePlayerReady, wire.PlayerReadyPayload{LogicalID: string(g.selfID), IsReady: ready})
}

// Leave sends player-left and tears down locally.
func (g *Guest) Leave() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	err := g.sendUnsafe(wire.TypePlayerLeft, wire.PlayerLeftPayload{LogicalID: string(g.selfID)})
	g.joinStatus = JoinStatusLeft
	g.teardownUnsafe("left voluntarily")
	return err
}

// Teardown releases the host connection idempotently.
func (g *Guest) Teardown(reason string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.teardownUnsafe(reason)
}

// Players returns a snapshot of the guest's current view of the lobby.
func (g *Guest) Players() []Player {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Player, len(g.players))
	copy(out, g.players)
	return out
}

// JoinStatus reports the guest's current admission lifecycle state.
func (g *Guest) JoinStatus() JoinStatus {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.joinStatus
}

// ---- consensus.Peer surface ----

func (g *Guest) SelfID() identity.LogicalID { return g.selfID }
func (g *Guest) IsHost() bool               { return false }
func (g *Guest) Events() <-chan Event       { return g.events }

func (g *Guest) PlayerOrder() []identity.LogicalID {
	g.mu.Lock()
	defer g.mu.Unlock()
	ids := make([]identity.LogicalID, len(g.players))
	for i, p := range g.players {
		ids[i] = p.LogicalID
	}
	return ids
}

func (g *Guest) ConnectedPlayerIDs() []identity.LogicalID {
	g.mu.Lock()
	defer g.mu.Unlock()
	var ids []identity.LogicalID
	for _, p := range g.players {
		if p.IsConnected {
			ids = append(ids, p.LogicalID)
		}
	}
	return ids
}

func (g *Guest) SendGameMessage(ctx context.Context, innerType string, data []byte) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sendGameMessageUnsafe(ctx, innerType, data)
}

func (g *Guest) SendGameMessageTo(ctx context.Context, _ identity.LogicalID, innerType string, data []byte) error {
	return g.SendGameMessage(ctx, innerType, data)
}

func (g *Guest) SendGameMessageExcept(ctx context.Context, _ identity.LogicalID, innerType string, data []byte) error {
	return g.SendGameMessage(ctx, innerType, data)
}

func (g *Guest) sendGameMessageUnsafe(ctx context.Context, innerType string, data []byte) error {
	if g.conn == nil {
		return ErrNotConnected
	}
	env, err := codec.EncodePayload(wire.TypeGameMessage, string(g.selfID), time.Now().UnixMilli(), wire.GameMessagePayload{
		InnerType: innerType, Data: data, SenderID: string(g.selfID),
	})
	if err != nil {
		return err
	}
	out, err := codec.Encode(env)
	if err != nil {
		return err
	}
	return g.conn.Send(ctx, out)
}

// ---- helpers ----

func (g *Guest) sendUnsafe(t wire.Type, payload interface{}) error {
	if g.conn == nil {
		return ErrNotConnected
	}
	env, err := codec.EncodePayload(t, string(g.selfID), time.Now().UnixMilli(), payload)
	if err != nil {
		return err
	}
	data, err := codec.Encode(env)
	if err != nil {
		return err
	}
	return g.conn.Send(g.ctx, data)
}

func (g *Guest) teardownUnsafe(reason string) {
	if g.torndown {
		return
	}
	g.torndown = true
	if g.conn != nil {
		_ = g.conn.Close(reason)
	}
	g.cancel()
	g.emit(Event{Kind: EventTornDown, Reason: reason})
}

func (g *Guest) logDropUnsafe(t wire.Type, reason string) {
	g.log.WithFields(logrus.Fields{"type": t, "reason": reason}).Warn("lobby: dropping message")
}

func (g *Guest) emit(ev Event) {
	select {
	case g.events <- ev:
	default:
		g.log.WithField("kind", ev.Kind).Warn("lobby: event channel full, dropping event")
	}
}
