// Package respawn is the safe respawn service: it resolves safe zone spawn
// points, tracks cooldowns and drives the per-player countdown overlay from
// host lifecycle events.
package respawn

import (
	"context"
	"time"

	"github.com/udisondev/saferespawn/internal/audit"
	"github.com/udisondev/saferespawn/internal/model"
	"github.com/udisondev/saferespawn/internal/ui"
)

// Host is the game server side of the service: world queries and the
// instructions the service issues back.
type Host interface {
	// Landmarks enumerates named world landmarks.
	Landmarks(ctx context.Context) ([]model.Landmark, error)
	// GroundHeight returns terrain height at a horizontal position.
	GroundHeight(ctx context.Context, x, z float64) (float64, error)
	// IsDead reports whether the player is currently dead.
	IsDead(player model.PlayerID) bool

	// RespawnAt revives the player at pos facing rot.
	RespawnAt(ctx context.Context, player model.PlayerID, pos model.Vec3, rot model.Rotation) error
	// SetVitals overrides health/food/water.
	SetVitals(ctx context.Context, player model.PlayerID, v model.Vitals) error

	DrawOverlay(player model.PlayerID, overlay ui.Overlay)
	DestroyOverlay(player model.PlayerID, names []string)
	ChatMessage(player model.PlayerID, text string)
}

// Permissions answers permission checks (permission.Cache).
type Permissions interface {
	Has(ctx context.Context, player model.PlayerID, perm string) bool
}

// presence is implemented by permission caches that sweep offline players.
type presence interface {
	MarkConnected(player model.PlayerID)
	MarkDisconnected(player model.PlayerID)
}

// Recorder receives successful respawns (audit.Writer).
type Recorder interface {
	RecordRespawn(rec audit.Record) error
}

// Hostility is the answer to a host combat-flag query.
type Hostility struct {
	Hostile      bool
	SinceLastPvP time.Duration
}

// EventHandler is the set of host lifecycle callbacks.
// The host integration layer dispatches one method per event.
type EventHandler interface {
	OnServerReady(ctx context.Context)
	OnPlayerConnected(player model.PlayerID)
	OnPlayerDeath(ctx context.Context, player model.PlayerID)
	OnPlayerRespawned(player model.PlayerID)
	OnPlayerDisconnected(player model.PlayerID)
	// HandleCommand runs "saferespawn.spawn [location]"; args exclude the command name.
	HandleCommand(ctx context.Context, player model.PlayerID, args []string)
	// HostilityOverride returns ok=false when the host should use its own answer.
	HostilityOverride(player model.PlayerID) (h Hostility, ok bool)
}

// Player-facing chat messages.
const (
	MsgNotInitialized  = "Safe zone respawn locations have not initialized yet"
	MsgNoPermission    = "You don't have permission to use safe zone respawning"
	MsgUnknownLocation = "Unknown respawn location"
	MsgUnavailable     = "That respawn location is not available"
	MsgNotDead         = "You can only choose a respawn location while dead"
	MsgCooldownFmt     = "You must wait %d seconds before using this spawn point again"
	MsgRespawnFailed   = "An error occurred while trying to respawn you"
)
