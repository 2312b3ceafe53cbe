// Package bridge connects the respawn service to the game host over a
// websocket: host events flow in, overlay and teleport instructions flow out.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/udisondev/saferespawn/internal/config"
	"github.com/udisondev/saferespawn/internal/model"
	"github.com/udisondev/saferespawn/internal/respawn"
	"github.com/udisondev/saferespawn/internal/ui"
)

var (
	// ErrNotConnected is returned when no host is attached.
	ErrNotConnected = errors.New("host not connected")
	// ErrCallTimeout is returned when the host does not answer a call in time.
	ErrCallTimeout = errors.New("host call timed out")
	// ErrHostRejected wraps an error string returned by the host.
	ErrHostRejected = errors.New("host rejected call")
)

const writeTimeout = 5 * time.Second

type callResult struct {
	frame Frame
	err   error
}

type liveness struct {
	dead bool
}

// Bridge is the respawn.Host backed by a single websocket connection.
//
// Host events are queued and handled one at a time by Run. Call results are
// delivered by the reader directly, so a handler blocked on a call never
// waits for the queue.
type Bridge struct {
	callTimeout time.Duration
	readTimeout time.Duration
	upgrader    websocket.Upgrader

	handler respawn.EventHandler
	events  chan Frame

	writeMu sync.Mutex
	nextID  atomic.Uint64

	mu        sync.Mutex
	conn      *websocket.Conn
	pending   map[uint64]chan callResult
	players   map[model.PlayerID]liveness
	landmarks []model.Landmark
}

var _ respawn.Host = (*Bridge)(nil)

// New creates a bridge. Bind must be called before Run.
func New(cfg config.HTTPConfig) *Bridge {
	return &Bridge{
		callTimeout: cfg.CallTimeout,
		readTimeout: cfg.ReadTimeout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		events:  make(chan Frame, cfg.QueueSize),
		pending: make(map[uint64]chan callResult),
		players: make(map[model.PlayerID]liveness),
	}
}

// Bind sets the handler receiving host events.
func (b *Bridge) Bind(h respawn.EventHandler) {
	b.handler = h
}

// Connected reports whether a host is attached.
func (b *Bridge) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.conn != nil
}

// Run dispatches queued host events until ctx is cancelled.
func (b *Bridge) Run(ctx context.Context) error {
	if b.handler == nil {
		return errors.New("bridge: no event handler bound")
	}

	slog.Info("host event dispatcher started")
	for {
		select {
		case <-ctx.Done():
			slog.Info("host event dispatcher stopping")
			return nil
		case f := <-b.events:
			b.dispatch(ctx, f)
		}
	}
}

func (b *Bridge) dispatch(ctx context.Context, f Frame) {
	h := b.handler

	switch f.Type {
	case TypeServerReady:
		h.OnServerReady(ctx)
	case TypePlayerConnected:
		h.OnPlayerConnected(f.Player)
	case TypePlayerDeath:
		h.OnPlayerDeath(ctx, f.Player)
	case TypePlayerRespawned:
		h.OnPlayerRespawned(f.Player)
	case TypePlayerDisconnected:
		h.OnPlayerDisconnected(f.Player)

	case TypeCommand:
		var cmd CommandPayload
		if err := f.decode(&cmd); err != nil {
			slog.Warn("malformed command frame", "player", f.Player, "error", err)
			return
		}
		if cmd.Name != ui.CommandSpawn {
			slog.Debug("ignoring foreign command", "name", cmd.Name)
			return
		}
		h.HandleCommand(ctx, f.Player, cmd.Args)

	case TypeHostilityQuery:
		hostility, ok := h.HostilityOverride(f.Player)
		answer := HostilityAnswer{
			Override:       ok,
			Hostile:        hostility.Hostile,
			SinceLastPvPMs: hostility.SinceLastPvP.Milliseconds(),
		}
		reply, err := newFrame(TypeResult, f.ID, f.Player, answer)
		if err == nil {
			err = b.send(reply)
		}
		if err != nil {
			slog.Warn("failed to answer hostility query", "player", f.Player, "error", err)
		}
	}
}

// handleFrame runs on the reader goroutine.
func (b *Bridge) handleFrame(f Frame) {
	switch f.Type {
	case TypeResult:
		b.deliver(f)
		return

	case TypeServerReady:
		var p ServerReadyPayload
		if err := f.decode(&p); err != nil {
			slog.Warn("malformed server_ready frame", "error", err)
			return
		}
		b.mu.Lock()
		b.landmarks = p.Landmarks
		b.mu.Unlock()

	case TypePlayerConnected, TypePlayerRespawned:
		b.setLiveness(f.Player, false)
	case TypePlayerDeath:
		b.setLiveness(f.Player, true)
	case TypePlayerDisconnected:
		b.mu.Lock()
		delete(b.players, f.Player)
		b.mu.Unlock()

	case TypeCommand, TypeHostilityQuery:
	default:
		slog.Debug("ignoring unknown frame", "type", f.Type)
		return
	}

	select {
	case b.events <- f:
	default:
		slog.Error("host event queue full, dropping event", "type", f.Type, "player", f.Player)
	}
}

func (b *Bridge) setLiveness(player model.PlayerID, dead bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.players[player] = liveness{dead: dead}
}

func (b *Bridge) deliver(f Frame) {
	b.mu.Lock()
	ch, ok := b.pending[f.ID]
	delete(b.pending, f.ID)
	b.mu.Unlock()

	if !ok {
		slog.Debug("result for unknown call", "id", f.ID)
		return
	}
	ch <- callResult{frame: f}
}

// serve attaches conn and reads it until it fails.
func (b *Bridge) serve(conn *websocket.Conn) {
	if !b.attach(conn) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "host already connected"),
			time.Now().Add(time.Second))
		_ = conn.Close()
		return
	}
	defer b.detach(conn)

	slog.Info("host connected", "remote", conn.RemoteAddr().String())

	conn.SetPingHandler(func(data string) error {
		_ = conn.SetReadDeadline(time.Now().Add(b.readTimeout))
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeTimeout))
	})

	for {
		_ = conn.SetReadDeadline(time.Now().Add(b.readTimeout))
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Warn("host connection lost", "error", err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		var f Frame
		if err := json.Unmarshal(msg, &f); err != nil {
			slog.Warn("malformed host frame", "error", err)
			continue
		}
		b.handleFrame(f)
	}
}

func (b *Bridge) attach(conn *websocket.Conn) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn != nil {
		return false
	}
	b.conn = conn
	return true
}

// detach fails in-flight calls and forgets host-side state.
func (b *Bridge) detach(conn *websocket.Conn) {
	b.mu.Lock()
	if b.conn == conn {
		b.conn = nil
	}
	pending := b.pending
	b.pending = make(map[uint64]chan callResult)
	clear(b.players)
	b.landmarks = nil
	b.mu.Unlock()

	for _, ch := range pending {
		ch <- callResult{err: ErrNotConnected}
	}
	_ = conn.Close()

	slog.Info("host disconnected", "failed_calls", len(pending))
}

// Close drops the current host connection, if any.
func (b *Bridge) Close() {
	b.mu.Lock()
	conn := b.conn
	b.mu.Unlock()
	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(time.Second))
		_ = conn.Close()
	}
}

func (b *Bridge) send(f Frame) error {
	b.mu.Lock()
	conn := b.conn
	b.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("encoding %s frame: %w", f.Type, err)
	}

	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("writing %s frame: %w", f.Type, err)
	}
	return nil
}

func (b *Bridge) notify(typ string, player model.PlayerID, payload any) error {
	f, err := newFrame(typ, 0, player, payload)
	if err != nil {
		return err
	}
	return b.send(f)
}

// call sends a request and waits for the matching result frame.
func (b *Bridge) call(ctx context.Context, typ string, player model.PlayerID, payload any, out any) error {
	id := b.nextID.Add(1)
	f, err := newFrame(typ, id, player, payload)
	if err != nil {
		return err
	}

	ch := make(chan callResult, 1)
	b.mu.Lock()
	if b.conn == nil {
		b.mu.Unlock()
		return ErrNotConnected
	}
	b.pending[id] = ch
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.pending, id)
		b.mu.Unlock()
	}()

	if err := b.send(f); err != nil {
		return err
	}

	timer := time.NewTimer(b.callTimeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		if res.err != nil {
			return res.err
		}
		if res.frame.Error != "" {
			return fmt.Errorf("%w: %s", ErrHostRejected, res.frame.Error)
		}
		if out == nil {
			return nil
		}
		return res.frame.decode(out)
	case <-timer.C:
		return fmt.Errorf("%s: %w", typ, ErrCallTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Landmarks returns the list from the last server_ready frame.
func (b *Bridge) Landmarks(context.Context) ([]model.Landmark, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn == nil {
		return nil, ErrNotConnected
	}
	return slices.Clone(b.landmarks), nil
}

// GroundHeight asks the host for terrain height.
func (b *Bridge) GroundHeight(ctx context.Context, x, z float64) (float64, error) {
	var res GroundHeightResult
	if err := b.call(ctx, TypeGroundHeight, 0, GroundHeightRequest{X: x, Z: z}, &res); err != nil {
		return 0, fmt.Errorf("querying ground height: %w", err)
	}
	return res.Height, nil
}

// IsDead reports the liveness last seen in the event stream.
func (b *Bridge) IsDead(player model.PlayerID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.players[player].dead
}

// RespawnAt asks the host to revive the player at pos.
func (b *Bridge) RespawnAt(ctx context.Context, player model.PlayerID, pos model.Vec3, rot model.Rotation) error {
	if err := b.call(ctx, TypeRespawnAt, player, RespawnAtRequest{Position: pos, Rotation: rot}, nil); err != nil {
		return fmt.Errorf("respawning player %s: %w", player, err)
	}
	b.setLiveness(player, false)
	return nil
}

// SetVitals overrides the player's vitals.
func (b *Bridge) SetVitals(_ context.Context, player model.PlayerID, v model.Vitals) error {
	return b.notify(TypeSetVitals, player, v)
}

// DrawOverlay sends an overlay to the player's screen.
func (b *Bridge) DrawOverlay(player model.PlayerID, overlay ui.Overlay) {
	if err := b.notify(TypeDrawOverlay, player, overlay); err != nil {
		slog.Debug("failed to draw overlay", "player", player, "error", err)
	}
}

// DestroyOverlay removes overlay roots by name.
func (b *Bridge) DestroyOverlay(player model.PlayerID, names []string) {
	if err := b.notify(TypeDestroyOverlay, player, DestroyOverlayPayload{Names: names}); err != nil {
		slog.Debug("failed to destroy overlay", "player", player, "error", err)
	}
}

// ChatMessage sends a private chat line.
func (b *Bridge) ChatMessage(player model.PlayerID, text string) {
	if err := b.notify(TypeChat, player, ChatPayload{Text: text}); err != nil {
		slog.Debug("failed to send chat message", "player", player, "error", err)
	}
}
