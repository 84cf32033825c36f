// cmd/hostrelay runs a reference host-or-guest binary over wstransport,
// wiring lobby.Host/lobby.Guest to a consensus.Engine running the
// internal/refgame tic-tac-toe adapter. It mirrors cmd/server/main.go's
// flag/env/logging setup.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/coder/websocket"
	_ "github.com/joho/godotenv/autoload"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/kestrelnet/peerlobby/consensus"
	"github.com/kestrelnet/peerlobby/identity"
	"github.com/kestrelnet/peerlobby/internal/historian"
	"github.com/kestrelnet/peerlobby/internal/refgame"
	"github.com/kestrelnet/peerlobby/lobby"
	"github.com/kestrelnet/peerlobby/lobbycode"
	"github.com/kestrelnet/peerlobby/middleware"
	"github.com/kestrelnet/peerlobby/transport"
	"github.com/kestrelnet/peerlobby/transport/wstransport"
)

func main() {
	mode := flag.String("mode", "host", "host or guest")
	addr := flag.String("addr", ":8080", "host: http listen addr; guest: ws://host:port/ws url")
	code := flag.String("code", "", "lobby code (host: optional, generated if empty; guest: required)")
	id := flag.String("id", "", "logical id (required)")
	name := flag.String("name", "player", "display name")
	requiresRequest := flag.Bool("requires-request", false, "host: require approval before admission")
	flag.Parse()

	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)

	if *id == "" {
		logger.Fatal("-id is required")
	}

	switch *mode {
	case "host":
		runHost(logger, *addr, *code, identity.LogicalID(*id), *name, *requiresRequest)
	case "guest":
		runGuest(logger, *addr, *code, identity.LogicalID(*id), *name)
	default:
		logger.Fatalf("unknown -mode %q", *mode)
	}
}

func runHost(logger *logrus.Logger, httpAddr, code string, selfID identity.LogicalID, name string, requiresRequest bool) {
	if code == "" {
		generated, err := lobbycode.Generate()
		if err != nil {
			logger.Fatalf("generate lobby code: %v", err)
		}
		code = generated
	}

	settings := lobby.LobbySettings{RequiresRequest: requiresRequest}
	capacity := func(selectedGameID string) int { return 2 }

	host := lobby.NewHost(code, selfID, name, settings, capacity, logger)
	engine := consensus.NewEngine[refgame.State, refgame.Move](host, refgame.Adapter{}, code, logger)

	if sink := maybeHistorianSink[refgame.Move](logger); sink != nil {
		engine.SetFinalizeSink(sink)
	}

	engine.Start(2, nil)
	engine.Run()
	go logLobbyEvents(logger, code, host.Events())
	go logEngineEvents(logger, engine.Events())

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			Subprotocols:   []string{wstransport.Subprotocol},
			OriginPatterns: []string{"*"},
		})
		if err != nil {
			logger.WithError(err).Warn("websocket accept failed")
			return
		}
		if c.Subprotocol() != wstransport.Subprotocol {
			c.Close(websocket.StatusPolicyViolation, "client must speak the peerlobby subprotocol")
			return
		}
		middleware.LogWSConnect(logger, r.RemoteAddr, r.URL.Path)
		conn := wstransport.New(transport.Addr(r.RemoteAddr), c)
		host.AddConnection(conn)
	})

	logger.WithField("code", code).Infof("hosting on %s", httpAddr)
	if err := http.ListenAndServe(httpAddr, middleware.Log(logger)(mux)); err != nil {
		logger.Fatalf("server exited: %v", err)
	}
}

func runGuest(logger *logrus.Logger, wsURL, code string, selfID identity.LogicalID, name string) {
	if code == "" {
		logger.Fatal("-code is required in guest mode")
	}

	store := identity.NewMemoryStore()
	guest := lobby.NewGuest(selfID, name, store, logger)
	engine := consensus.NewEngine[refgame.State, refgame.Move](guest, refgame.Adapter{}, code, logger)
	engine.Run()
	go logLobbyEvents(logger, code, guest.Events())
	go logEngineEvents(logger, engine.Events())

	ctx, cancel := context.WithTimeout(context.Background(), lobby.ConnectDeadline*time.Duration(lobby.MaxOrdinaryConnectRetries))
	defer cancel()
	if err := guest.Connect(ctx, wstransport.Dialer{}, transport.Addr(wsURL)); err != nil {
		logger.Fatalf("connect: %v", err)
	}

	if err := engine.RequestState(context.Background()); err != nil {
		logger.WithError(err).Warn("request-state failed")
	}

	select {}
}

func logLobbyEvents(logger *logrus.Logger, code string, events <-chan lobby.Event) {
	for ev := range events {
		logger.WithFields(logrus.Fields{"code": code, "kind": ev.Kind}).Debug("lobby event")
	}
}

func logEngineEvents[S, M any](logger *logrus.Logger, events <-chan consensus.Event[S, M]) {
	for ev := range events {
		logger.WithField("kind", ev.Kind).Debug("consensus event")
	}
}

// maybeHistorianSink wires a historian.Publisher-backed FinalizeSink when
// REDIS_ADDR is configured; a bare demo run without Redis behaves
// identically minus the audit trail (SPEC_FULL.md §4.4: the historian is
// pure audit, never load-bearing).
func maybeHistorianSink[M any](logger *logrus.Logger) consensus.FinalizeSink[M] {
	addr := getEnv("REDIS_ADDR", "")
	if addr == "" {
		return nil
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr, DB: getEnvInt("REDIS_DB", 0)})
	pub := historian.NewPublisher(rdb, getEnv("HISTORIAN_QUEUE_NAME", ""))

	return func(lobbyCode string, fm consensus.FinalizedMove[M]) {
		payload, err := json.Marshal(fm.Move)
		if err != nil {
			logger.WithError(err).Warn("historian: marshal move for publish")
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		rec := historian.MoveRecord{
			LobbyCode:   lobbyCode,
			MoveID:      fm.MoveID,
			ProposerID:  string(fm.ProposerID),
			FinalizedAt: fm.FinalizedAt,
			MovePayload: payload,
		}
		if err := pub.Publish(ctx, rec); err != nil {
			logger.WithError(err).Warn("historian: publish failed")
		}
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}
