package respawn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/udisondev/saferespawn/internal/audit"
	"github.com/udisondev/saferespawn/internal/config"
	"github.com/udisondev/saferespawn/internal/cooldown"
	"github.com/udisondev/saferespawn/internal/icon"
	"github.com/udisondev/saferespawn/internal/landmark"
	"github.com/udisondev/saferespawn/internal/model"
	"github.com/udisondev/saferespawn/internal/permission"
	"github.com/udisondev/saferespawn/internal/schedule"
	"github.com/udisondev/saferespawn/internal/ui"
)

// Deps are the collaborators of a Service.
type Deps struct {
	Host        Host
	Permissions Permissions
	Scheduler   schedule.Scheduler

	// Tracker defaults to an in-memory tracker on the real clock.
	Tracker *cooldown.Tracker
	// Icons and Audit are optional.
	Icons icon.Provider
	Audit Recorder
}

// playerState is the per-player UI state. Generations invalidate timer
// callbacks that were already in flight when their timer was replaced.
type playerState struct {
	shown bool

	refresh    schedule.Timer
	refreshGen uint64

	reveal    schedule.Timer
	revealGen uint64
}

type protection struct {
	timer schedule.Timer
	gen   uint64
}

// Service implements EventHandler.
//
// All state is guarded by mu. Host calls that wait for a round-trip
// (landmarks, terrain, teleport, vitals) and cooldown persistence run
// without it; notifications are issued while holding it, so Host
// implementations must not call back into the Service synchronously.
type Service struct {
	host    Host
	perms   Permissions
	sched   schedule.Scheduler
	tracker *cooldown.Tracker
	icons   icon.Provider
	audit   Recorder

	mu           sync.Mutex
	cfg          config.Respawn
	gui          config.GUI
	iconsEnabled bool
	resolver     *landmark.Resolver

	initialized bool
	points      landmark.Result
	resolveGen  uint64

	players    map[model.PlayerID]*playerState
	respawning map[model.PlayerID]struct{}
	protected  map[model.PlayerID]protection
	protectGen uint64
	iconWarned bool
}

var _ EventHandler = (*Service)(nil)

// New creates a service. The service stays uninitialized until OnServerReady.
func New(cfg config.Config, deps Deps) (*Service, error) {
	if deps.Host == nil {
		return nil, errors.New("respawn: host is required")
	}
	if deps.Permissions == nil {
		return nil, errors.New("respawn: permissions are required")
	}
	if deps.Scheduler == nil {
		return nil, errors.New("respawn: scheduler is required")
	}
	if err := cfg.Respawn.Validate(); err != nil {
		return nil, fmt.Errorf("validating respawn config: %w", err)
	}

	tracker := deps.Tracker
	if tracker == nil {
		tracker = cooldown.NewTracker(cfg.Respawn.Windows())
	}

	s := &Service{
		host:      deps.Host,
		perms:     deps.Permissions,
		sched:     deps.Scheduler,
		tracker:   tracker,
		icons:     deps.Icons,
		audit:     deps.Audit,
		players:    make(map[model.PlayerID]*playerState),
		respawning: make(map[model.PlayerID]struct{}),
		protected:  make(map[model.PlayerID]protection),
	}
	s.applyLocked(cfg)
	return s, nil
}

// ApplyConfig swaps in new settings. Cooldown windows apply to the next
// check and shown overlays are redrawn right away. Spawn points keep their
// positions; they are re-resolved only when a newly enabled location has none.
func (s *Service) ApplyConfig(ctx context.Context, cfg config.Config) {
	defer s.recoverEvent("apply config", 0)

	s.mu.Lock()
	s.applyLocked(cfg)
	s.redrawLocked()
	missing := s.initialized && s.missingPointsLocked()
	s.mu.Unlock()

	slog.Info("respawn config applied", "enabled", cfg.Respawn.Enabled())

	if missing {
		slog.Info("resolving spawn points for newly enabled locations")
		s.resolveSpawnPoints(ctx, true)
	}
}

func (s *Service) applyLocked(cfg config.Config) {
	s.cfg = cfg.Respawn
	s.gui = cfg.GUI
	s.iconsEnabled = cfg.Icons.Enabled
	s.iconWarned = false
	s.tracker.SetWindows(cfg.Respawn.Windows())
	s.resolver = landmark.NewResolver(rulesFor(cfg.Respawn), cfg.Respawn.HeightAboveGround)
}

func rulesFor(r config.Respawn) []landmark.Rule {
	var rules []landmark.Rule
	for _, loc := range r.Enabled() {
		settings, _ := r.Location(loc)
		rules = append(rules, landmark.Rule{
			Location:  loc,
			Keywords:  settings.Keywords,
			Preferred: settings.PreferredLandmark,
			Offset:    settings.Offset,
		})
	}
	return rules
}

// OnServerReady resolves spawn points from the host landmark list.
// A failure leaves the service uninitialized; it retries on the next death.
func (s *Service) OnServerReady(ctx context.Context) {
	defer s.recoverEvent("server ready", 0)

	s.resolveSpawnPoints(ctx, false)
}

// resolveSpawnPoints runs a resolution without holding mu and commits the
// result unless a newer resolution or Shutdown superseded it. With keep
// set a failure leaves the current spawn points in place.
func (s *Service) resolveSpawnPoints(ctx context.Context, keep bool) {
	s.mu.Lock()
	s.resolveGen++
	gen := s.resolveGen
	resolver := s.resolver
	s.mu.Unlock()

	points, err := s.findSpawnPoints(ctx, resolver)

	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.resolveGen {
		slog.Debug("spawn point resolution superseded")
		return
	}
	if err != nil {
		slog.Error("failed to initialize safe zone spawn points", "error", err)
		if !keep {
			s.initialized = false
			s.points = nil
		}
		return
	}

	s.points = points
	s.initialized = true
	for loc, p := range points {
		slog.Info("safe zone spawn point ready",
			"location", loc,
			"landmark", p.Anchor.Name,
			"position", p.Position.String())
	}
	s.redrawLocked()
}

func (s *Service) findSpawnPoints(ctx context.Context, resolver *landmark.Resolver) (points landmark.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			points, err = nil, fmt.Errorf("panic while resolving: %v", r)
		}
	}()

	landmarks, err := s.host.Landmarks(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing landmarks: %w", err)
	}

	slog.Info("searching for safe zones", "landmarks", len(landmarks))

	return resolver.Resolve(ctx, landmarks, s.host)
}

func (s *Service) missingPointsLocked() bool {
	for _, loc := range s.cfg.Enabled() {
		if _, ok := s.points[loc]; !ok {
			return true
		}
	}
	return false
}

// OnPlayerConnected marks the player online for permission cache sweeping.
func (s *Service) OnPlayerConnected(player model.PlayerID) {
	if p, ok := s.perms.(presence); ok {
		p.MarkConnected(player)
	}
}

// OnPlayerDeath starts the reveal chain for a permitted player.
func (s *Service) OnPlayerDeath(ctx context.Context, player model.PlayerID) {
	defer s.recoverEvent("player death", player)

	if !s.perms.Has(ctx, player, permission.Use) {
		return
	}

	s.mu.Lock()
	initialized := s.initialized
	s.mu.Unlock()

	if !initialized {
		s.resolveSpawnPoints(ctx, false)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.stateLocked(player)
	s.cancelRevealLocked(st)
	s.scheduleRevealLocked(player, st, 0)
}

// OnPlayerRespawned clears the overlay and all pending timers.
func (s *Service) OnPlayerRespawned(player model.PlayerID) {
	defer s.recoverEvent("player respawned", player)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.forgetLocked(player)
}

// OnPlayerDisconnected behaves like a respawn and also drops hostility
// protection and permission cache presence.
func (s *Service) OnPlayerDisconnected(player model.PlayerID) {
	defer s.recoverEvent("player disconnected", player)

	func() {
		s.mu.Lock()
		defer s.mu.Unlock()

		s.forgetLocked(player)
		delete(s.respawning, player)
		if p, ok := s.protected[player]; ok {
			p.timer.Stop()
			delete(s.protected, player)
		}
	}()

	if p, ok := s.perms.(presence); ok {
		p.MarkDisconnected(player)
	}
}

// Show draws the overlay for player and starts the refresh loop when any
// shown location is cooling down.
func (s *Service) Show(player model.PlayerID) {
	defer s.recoverEvent("show", player)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.showLocked(player, s.stateLocked(player))
}

// Hide destroys the overlay and cancels the player's timers.
func (s *Service) Hide(player model.PlayerID) {
	defer s.recoverEvent("hide", player)

	s.mu.Lock()
	defer s.mu.Unlock()

	if st, ok := s.players[player]; ok {
		s.hideLocked(player, st)
		return
	}
	s.host.DestroyOverlay(player, ui.RootNames())
}

// respawnPlan is what HandleCommand needs once it releases mu.
type respawnPlan struct {
	loc     model.Location
	point   model.SpawnPoint
	vitals  model.Vitals
	protect time.Duration
}

// HandleCommand runs the spawn command for player.
func (s *Service) HandleCommand(ctx context.Context, player model.PlayerID, args []string) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("panic in respawn command", "player", player, "panic", r)
			s.host.ChatMessage(player, MsgRespawnFailed)
		}
	}()

	s.mu.Lock()
	initialized := s.initialized
	s.mu.Unlock()

	if !initialized {
		s.host.ChatMessage(player, MsgNotInitialized)
		return
	}
	if !s.perms.Has(ctx, player, permission.Use) {
		s.host.ChatMessage(player, MsgNoPermission)
		return
	}

	var arg string
	if len(args) > 0 {
		arg = args[0]
	}
	loc, err := model.ParseLocation(arg)
	if err != nil {
		s.host.ChatMessage(player, MsgUnknownLocation)
		return
	}

	plan, ok := s.beginRespawn(player, loc)
	if !ok {
		return
	}

	rot := plan.point.Facing()
	if err := s.host.RespawnAt(ctx, player, plan.point.Position, rot); err != nil {
		slog.Error("failed to respawn player at safe zone",
			"player", player,
			"location", loc,
			"error", err)
		s.abortRespawn(player)
		return
	}

	if !plan.vitals.IsEmpty() {
		if err := s.host.SetVitals(ctx, player, plan.vitals); err != nil {
			slog.Warn("failed to set vitals after safe respawn", "player", player, "error", err)
		}
	}

	s.tracker.Start(ctx, player, loc)

	if s.audit != nil {
		rec := audit.Record{
			Time:     time.Now(),
			Player:   player,
			Location: loc,
			Landmark: plan.point.Anchor.Name,
			Position: plan.point.Position,
			Rotation: rot,
		}
		if err := s.audit.RecordRespawn(rec); err != nil {
			slog.Warn("failed to write respawn audit record", "player", player, "error", err)
		}
	}

	s.finishRespawn(player, plan)

	slog.Info("player respawned at safe zone",
		"player", player,
		"location", loc,
		"landmark", plan.point.Anchor.Name)
}

// beginRespawn checks that loc can be used right now and reserves the
// player until finishRespawn or abortRespawn.
func (s *Service) beginRespawn(player model.PlayerID, loc model.Location) (respawnPlan, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	settings, _ := s.cfg.Location(loc)
	point, ok := s.points[loc]
	if !settings.Enabled || !ok {
		s.host.ChatMessage(player, MsgUnavailable)
		return respawnPlan{}, false
	}

	if !s.host.IsDead(player) {
		s.host.ChatMessage(player, MsgNotDead)
		return respawnPlan{}, false
	}

	if remaining := s.tracker.Remaining(player, loc); remaining > 0 {
		s.host.ChatMessage(player, fmt.Sprintf(MsgCooldownFmt, ui.CountdownSeconds(remaining)))
		return respawnPlan{}, false
	}

	if _, busy := s.respawning[player]; busy {
		slog.Debug("respawn already in progress", "player", player)
		return respawnPlan{}, false
	}
	s.respawning[player] = struct{}{}

	plan := respawnPlan{
		loc:    loc,
		point:  point,
		vitals: s.cfg.Vitals.Model(),
	}
	if s.cfg.Hostility.Enabled {
		plan.protect = s.cfg.Hostility.Duration
	}
	return plan, true
}

func (s *Service) abortRespawn(player model.PlayerID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.respawning, player)
	s.host.ChatMessage(player, MsgRespawnFailed)
}

// finishRespawn protects the player and removes the overlay. A player who
// disconnected or a service that shut down meanwhile gets no protection.
func (s *Service) finishRespawn(player model.PlayerID, plan respawnPlan) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, active := s.respawning[player]
	delete(s.respawning, player)

	if active && plan.protect > 0 {
		s.protectLocked(player, plan.protect)
	}
	s.forgetLocked(player)
}

// HostilityOverride reports players inside their post-respawn protection
// window as non-hostile with no recent PvP.
func (s *Service) HostilityOverride(player model.PlayerID) (Hostility, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.protected[player]; !ok {
		return Hostility{}, false
	}
	return Hostility{Hostile: false, SinceLastPvP: 0}, true
}

// Shutdown cancels every timer, removes all overlays and clears state.
func (s *Service) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for player, st := range s.players {
		s.hideLocked(player, st)
	}
	for _, p := range s.protected {
		p.timer.Stop()
	}
	clear(s.players)
	clear(s.respawning)
	clear(s.protected)
	s.resolveGen++
	s.tracker.Reset()
	s.points = nil
	s.initialized = false

	slog.Info("safe respawn service stopped")
}

func (s *Service) stateLocked(player model.PlayerID) *playerState {
	st, ok := s.players[player]
	if !ok {
		st = &playerState{}
		s.players[player] = st
	}
	return st
}

func (s *Service) forgetLocked(player model.PlayerID) {
	if st, ok := s.players[player]; ok {
		s.hideLocked(player, st)
		delete(s.players, player)
		return
	}
	s.host.DestroyOverlay(player, ui.RootNames())
}

func (s *Service) recoverEvent(event string, player model.PlayerID) {
	if r := recover(); r != nil {
		slog.Error("panic in respawn event handler",
			"event", event,
			"player", player,
			"panic", r)
	}
}
