package lobby

import (
	"github.com/kestrelnet/peerlobby/identity"
	"github.com/kestrelnet/peerlobby/wire"
)

func toPlayerView(p Player) wire.PlayerView {
	return wire.PlayerView{
		LogicalID:   string(p.LogicalID),
		DisplayName: p.DisplayName,
		IsHost:      p.IsHost,
		IsReady:     p.IsReady,
		IsConnected: p.IsConnected,
	}
}

func fromPlayerView(v wire.PlayerView) Player {
	return Player{
		LogicalID:   identity.LogicalID(v.LogicalID),
		DisplayName: v.DisplayName,
		IsHost:      v.IsHost,
		IsReady:     v.IsReady,
		IsConnected: v.IsConnected,
	}
}

func toSettingsPayload(s LobbySettings) wire.SettingsPayload {
	return wire.SettingsPayload{RequiresRequest: s.RequiresRequest, PerGameSettings: s.PerGameSettings}
}

func fromSettingsPayload(p wire.SettingsPayload) LobbySettings {
	return LobbySettings{RequiresRequest: p.RequiresRequest, PerGameSettings: p.PerGameSettings}
}

func absDiffMillis(a, b int64) int64 {
	d := a - b
	if d < 0 {
		return -d
	}
	return d
}
