package bridge

import (
	"encoding/json"
	"fmt"

	"github.com/udisondev/saferespawn/internal/model"
)

// Frame types sent by the host.
const (
	TypeServerReady        = "server_ready"
	TypePlayerConnected    = "player_connected"
	TypePlayerDeath        = "player_death"
	TypePlayerRespawned    = "player_respawned"
	TypePlayerDisconnected = "player_disconnected"
	TypeCommand            = "command"
	TypeHostilityQuery     = "hostility_query"
	// TypeResult answers a call in either direction, matched by ID.
	TypeResult = "result"
)

// Frame types sent to the host.
const (
	TypeDrawOverlay    = "draw_overlay"
	TypeDestroyOverlay = "destroy_overlay"
	TypeChat           = "chat"
	TypeSetVitals      = "set_vitals"
	TypeRespawnAt      = "respawn_at"
	TypeGroundHeight   = "ground_height"
)

// Frame is one websocket text message.
type Frame struct {
	Type    string          `json:"type"`
	ID      uint64          `json:"id,omitempty"`
	Player  model.PlayerID  `json:"player,string,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	// Error is set on results of failed calls.
	Error string `json:"error,omitempty"`
}

func newFrame(typ string, id uint64, player model.PlayerID, payload any) (Frame, error) {
	f := Frame{Type: typ, ID: id, Player: player}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Frame{}, fmt.Errorf("encoding %s payload: %w", typ, err)
		}
		f.Payload = raw
	}
	return f, nil
}

func (f Frame) decode(v any) error {
	if len(f.Payload) == 0 {
		return fmt.Errorf("%s frame without payload", f.Type)
	}
	if err := json.Unmarshal(f.Payload, v); err != nil {
		return fmt.Errorf("decoding %s payload: %w", f.Type, err)
	}
	return nil
}

// ServerReadyPayload carries the world landmark list.
type ServerReadyPayload struct {
	Landmarks []model.Landmark `json:"landmarks"`
}

// CommandPayload is a console command issued by a player.
type CommandPayload struct {
	Name string   `json:"name"`
	Args []string `json:"args"`
}

// HostilityAnswer is the result of a hostility_query. Override=false means
// the host keeps its own answer.
type HostilityAnswer struct {
	Override       bool  `json:"override"`
	Hostile        bool  `json:"hostile"`
	SinceLastPvPMs int64 `json:"since_last_pvp_ms"`
}

// GroundHeightRequest / GroundHeightResult form the ground_height call.
type GroundHeightRequest struct {
	X float64 `json:"x"`
	Z float64 `json:"z"`
}

type GroundHeightResult struct {
	Height float64 `json:"height"`
}

// RespawnAtRequest is the respawn_at call.
type RespawnAtRequest struct {
	Position model.Vec3     `json:"position"`
	Rotation model.Rotation `json:"rotation"`
}

// DestroyOverlayPayload lists overlay roots to remove.
type DestroyOverlayPayload struct {
	Names []string `json:"names"`
}

// ChatPayload is a private chat line.
type ChatPayload struct {
	Text string `json:"text"`
}
