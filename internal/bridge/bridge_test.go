package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/saferespawn/internal/config"
	"github.com/udisondev/saferespawn/internal/icon"
	"github.com/udisondev/saferespawn/internal/model"
	"github.com/udisondev/saferespawn/internal/respawn"
	"github.com/udisondev/saferespawn/internal/ui"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

const player model.PlayerID = 76561198000000042

// recordingHandler logs every event as a short string.
type recordingHandler struct {
	mu      sync.Mutex
	events  []string
	onReady func(ctx context.Context)
}

func (h *recordingHandler) record(format string, args ...any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, fmt.Sprintf(format, args...))
}

func (h *recordingHandler) Events() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.events...)
}

func (h *recordingHandler) OnServerReady(ctx context.Context) {
	h.record("ready")
	if h.onReady != nil {
		h.onReady(ctx)
	}
}

func (h *recordingHandler) OnPlayerConnected(p model.PlayerID) { h.record("connected %s", p) }
func (h *recordingHandler) OnPlayerDeath(_ context.Context, p model.PlayerID) {
	h.record("death %s", p)
}
func (h *recordingHandler) OnPlayerRespawned(p model.PlayerID)    { h.record("respawned %s", p) }
func (h *recordingHandler) OnPlayerDisconnected(p model.PlayerID) { h.record("disconnected %s", p) }
func (h *recordingHandler) HandleCommand(_ context.Context, p model.PlayerID, args []string) {
	h.record("command %s %v", p, args)
}

func (h *recordingHandler) HostilityOverride(p model.PlayerID) (respawn.Hostility, bool) {
	return respawn.Hostility{}, p == player
}

type staticStatus struct{}

func (staticStatus) Status() respawn.Status {
	return respawn.Status{Initialized: true, TrackedPlayers: 3}
}

type recordingGrants struct {
	mu      sync.Mutex
	players []model.PlayerID
}

func (g *recordingGrants) Invalidate(player model.PlayerID) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.players = append(g.players, player)
	return 1
}

type harness struct {
	bridge  *Bridge
	handler *recordingHandler
	grants  *recordingGrants
	server  *httptest.Server
	wsURL   string
}

func newHarness(t *testing.T, images ImageSource) *harness {
	t.Helper()

	cfg := config.Default().HTTP
	cfg.CallTimeout = 200 * time.Millisecond
	cfg.ReadTimeout = 5 * time.Second

	b := New(cfg)
	h := &recordingHandler{}
	b.Bind(h)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = b.Run(ctx)
	}()

	grants := &recordingGrants{}
	srv := httptest.NewServer(NewRouter(b, staticStatus{}, images, grants))
	t.Cleanup(func() {
		b.Close()
		srv.Close()
		cancel()
		<-done
	})

	return &harness{
		bridge:  b,
		handler: h,
		grants:  grants,
		server:  srv,
		wsURL:   "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws",
	}
}

// connect dials as the game host and waits until the bridge attached it.
func (h *harness) connect(t *testing.T) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(h.wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.Eventually(t, h.bridge.Connected, time.Second, 5*time.Millisecond)
	return conn
}

func sendFrame(t *testing.T, conn *websocket.Conn, typ string, id uint64, p model.PlayerID, payload any) {
	t.Helper()
	f, err := newFrame(typ, id, p, payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(f))
}

func readFrame(t *testing.T, conn *websocket.Conn) Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var f Frame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

func TestBridge_DispatchesEventsInOrder(t *testing.T) {
	h := newHarness(t, nil)
	conn := h.connect(t)

	sendFrame(t, conn, TypePlayerConnected, 0, player, nil)
	sendFrame(t, conn, TypePlayerDeath, 0, player, nil)
	sendFrame(t, conn, TypeCommand, 0, player, CommandPayload{Name: ui.CommandSpawn, Args: []string{"outpost"}})
	sendFrame(t, conn, TypeCommand, 0, player, CommandPayload{Name: "kit", Args: []string{"starter"}})
	sendFrame(t, conn, TypePlayerRespawned, 0, player, nil)
	sendFrame(t, conn, TypePlayerDisconnected, 0, player, nil)

	want := []string{
		"connected " + player.String(),
		"death " + player.String(),
		"command " + player.String() + " [outpost]",
		"respawned " + player.String(),
		"disconnected " + player.String(),
	}
	require.Eventually(t, func() bool {
		return len(h.handler.Events()) == len(want)
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, want, h.handler.Events())
}

func TestBridge_TracksLiveness(t *testing.T) {
	h := newHarness(t, nil)
	conn := h.connect(t)

	assert.False(t, h.bridge.IsDead(player))

	sendFrame(t, conn, TypePlayerDeath, 0, player, nil)
	require.Eventually(t, func() bool { return h.bridge.IsDead(player) }, time.Second, 5*time.Millisecond)

	sendFrame(t, conn, TypePlayerRespawned, 0, player, nil)
	require.Eventually(t, func() bool { return !h.bridge.IsDead(player) }, time.Second, 5*time.Millisecond)
}

func TestBridge_ServerReadyStoresLandmarks(t *testing.T) {
	h := newHarness(t, nil)
	conn := h.connect(t)

	landmarks := []model.Landmark{
		{Name: "assets/bundled/prefabs/autospawn/monument/medium/compound.prefab", Position: model.NewVec3(1, 2, 3)},
	}
	sendFrame(t, conn, TypeServerReady, 0, 0, ServerReadyPayload{Landmarks: landmarks})

	require.Eventually(t, func() bool {
		return len(h.handler.Events()) == 1
	}, time.Second, 5*time.Millisecond)

	got, err := h.bridge.Landmarks(context.Background())
	require.NoError(t, err)
	assert.Equal(t, landmarks, got)
}

func TestBridge_GroundHeightCall(t *testing.T) {
	h := newHarness(t, nil)
	conn := h.connect(t)

	type result struct {
		height float64
		err    error
	}
	done := make(chan result, 1)
	go func() {
		height, err := h.bridge.GroundHeight(context.Background(), 10, -20)
		done <- result{height, err}
	}()

	f := readFrame(t, conn)
	require.Equal(t, TypeGroundHeight, f.Type)
	var req GroundHeightRequest
	require.NoError(t, f.decode(&req))
	assert.Equal(t, GroundHeightRequest{X: 10, Z: -20}, req)

	sendFrame(t, conn, TypeResult, f.ID, 0, GroundHeightResult{Height: 12.5})

	res := <-done
	require.NoError(t, res.err)
	assert.Equal(t, 12.5, res.height)
}

func TestBridge_CallFromHandlerDoesNotBlockOnQueue(t *testing.T) {
	h := newHarness(t, nil)

	heights := make(chan float64, 1)
	h.handler.onReady = func(ctx context.Context) {
		height, err := h.bridge.GroundHeight(ctx, 0, 0)
		if err == nil {
			heights <- height
		}
	}

	conn := h.connect(t)
	sendFrame(t, conn, TypeServerReady, 0, 0, ServerReadyPayload{})

	f := readFrame(t, conn)
	require.Equal(t, TypeGroundHeight, f.Type)
	sendFrame(t, conn, TypeResult, f.ID, 0, GroundHeightResult{Height: 3})

	select {
	case height := <-heights:
		assert.Equal(t, 3.0, height)
	case <-time.After(2 * time.Second):
		t.Fatal("ground height call did not complete")
	}
}

func TestBridge_CallTimeout(t *testing.T) {
	h := newHarness(t, nil)
	conn := h.connect(t)

	errs := make(chan error, 1)
	go func() {
		errs <- h.bridge.RespawnAt(context.Background(), player, model.NewVec3(1, 2, 3), model.Rotation{})
	}()

	f := readFrame(t, conn)
	assert.Equal(t, TypeRespawnAt, f.Type)
	assert.Equal(t, player, f.Player)

	err := <-errs
	assert.ErrorIs(t, err, ErrCallTimeout)
}

func TestBridge_CallRejected(t *testing.T) {
	h := newHarness(t, nil)
	conn := h.connect(t)

	errs := make(chan error, 1)
	go func() {
		errs <- h.bridge.RespawnAt(context.Background(), player, model.NewVec3(1, 2, 3), model.Rotation{})
	}()

	f := readFrame(t, conn)
	require.NoError(t, conn.WriteJSON(Frame{Type: TypeResult, ID: f.ID, Error: "player is not dead"}))

	err := <-errs
	assert.ErrorIs(t, err, ErrHostRejected)
	assert.Contains(t, err.Error(), "player is not dead")
}

func TestBridge_RespawnMarksAlive(t *testing.T) {
	h := newHarness(t, nil)
	conn := h.connect(t)

	sendFrame(t, conn, TypePlayerDeath, 0, player, nil)
	require.Eventually(t, func() bool { return h.bridge.IsDead(player) }, time.Second, 5*time.Millisecond)

	errs := make(chan error, 1)
	go func() {
		errs <- h.bridge.RespawnAt(context.Background(), player, model.NewVec3(1, 2, 3), model.Rotation{Yaw: 90})
	}()

	f := readFrame(t, conn)
	var req RespawnAtRequest
	require.NoError(t, f.decode(&req))
	assert.Equal(t, 90.0, req.Rotation.Yaw)
	sendFrame(t, conn, TypeResult, f.ID, player, nil)

	require.NoError(t, <-errs)
	assert.False(t, h.bridge.IsDead(player))
}

func TestBridge_DisconnectFailsPendingCalls(t *testing.T) {
	h := newHarness(t, nil)
	conn := h.connect(t)

	errs := make(chan error, 1)
	go func() {
		_, err := h.bridge.GroundHeight(context.Background(), 0, 0)
		errs <- err
	}()

	readFrame(t, conn)
	require.NoError(t, conn.Close())

	err := <-errs
	assert.ErrorIs(t, err, ErrNotConnected)
	require.Eventually(t, func() bool { return !h.bridge.Connected() }, time.Second, 5*time.Millisecond)
}

func TestBridge_NotConnected(t *testing.T) {
	b := New(config.Default().HTTP)

	_, err := b.GroundHeight(context.Background(), 0, 0)
	assert.ErrorIs(t, err, ErrNotConnected)

	_, err = b.Landmarks(context.Background())
	assert.ErrorIs(t, err, ErrNotConnected)

	err = b.SetVitals(context.Background(), player, model.Vitals{})
	assert.ErrorIs(t, err, ErrNotConnected)

	assert.NotPanics(t, func() { b.ChatMessage(player, "hello") })
}

func TestBridge_RunRequiresHandler(t *testing.T) {
	b := New(config.Default().HTTP)
	assert.Error(t, b.Run(context.Background()))
}

func TestBridge_HostilityQuery(t *testing.T) {
	h := newHarness(t, nil)
	conn := h.connect(t)

	sendFrame(t, conn, TypeHostilityQuery, 99, player, nil)

	f := readFrame(t, conn)
	assert.Equal(t, TypeResult, f.Type)
	assert.Equal(t, uint64(99), f.ID)

	var answer HostilityAnswer
	require.NoError(t, f.decode(&answer))
	assert.True(t, answer.Override)
	assert.False(t, answer.Hostile)
	assert.Zero(t, answer.SinceLastPvPMs)

	sendFrame(t, conn, TypeHostilityQuery, 100, player+1, nil)
	f = readFrame(t, conn)
	require.NoError(t, f.decode(&answer))
	assert.False(t, answer.Override)
}

func TestBridge_Notifications(t *testing.T) {
	h := newHarness(t, nil)
	conn := h.connect(t)

	h.bridge.ChatMessage(player, "You must wait 5 seconds")
	f := readFrame(t, conn)
	assert.Equal(t, TypeChat, f.Type)
	assert.Equal(t, player, f.Player)
	var chat ChatPayload
	require.NoError(t, f.decode(&chat))
	assert.Equal(t, "You must wait 5 seconds", chat.Text)

	overlay := ui.Build([]ui.Button{{Location: model.LocationOutpost, Label: "OUTPOST"}}, ui.Theme{})
	h.bridge.DrawOverlay(player, overlay)
	f = readFrame(t, conn)
	assert.Equal(t, TypeDrawOverlay, f.Type)
	var drawn ui.Overlay
	require.NoError(t, f.decode(&drawn))
	assert.Equal(t, overlay, drawn)

	h.bridge.DestroyOverlay(player, ui.RootNames())
	f = readFrame(t, conn)
	var destroy DestroyOverlayPayload
	require.NoError(t, f.decode(&destroy))
	assert.Equal(t, ui.RootNames(), destroy.Names)

	health := 100.0
	require.NoError(t, h.bridge.SetVitals(context.Background(), player, model.Vitals{Health: &health}))
	f = readFrame(t, conn)
	assert.Equal(t, TypeSetVitals, f.Type)
	assert.JSONEq(t, `{"health":100}`, string(f.Payload))
}

func TestBridge_PlayerIDIsEncodedAsString(t *testing.T) {
	raw, err := json.Marshal(Frame{Type: TypePlayerDeath, Player: player})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"player_death","player":"76561198000000042"}`, string(raw))
}

func TestBridge_SecondHostRejected(t *testing.T) {
	h := newHarness(t, nil)
	h.connect(t)

	_, resp, err := websocket.DefaultDialer.Dial(h.wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestRouter_Healthz(t *testing.T) {
	h := newHarness(t, nil)

	resp, err := http.Get(h.server.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, false, body["host_connected"])
}

func TestRouter_Status(t *testing.T) {
	h := newHarness(t, nil)

	resp, err := http.Get(h.server.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body struct {
		Service respawn.Status `json:"service"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.True(t, body.Service.Initialized)
	assert.Equal(t, 3, body.Service.TrackedPlayers)
}

func TestRouter_Icons(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\nfake-image")
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(png)
	}))
	defer origin.Close()

	lib := icon.NewLibrary(time.Second)
	require.NoError(t, lib.Register(context.Background(), "outpost", origin.URL+"/outpost.png"))
	digest, ok := lib.Lookup("outpost")
	require.True(t, ok)

	h := newHarness(t, lib)

	resp, err := http.Get(h.server.URL + "/icons/" + digest)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))

	missing, err := http.Get(h.server.URL + "/icons/deadbeef")
	require.NoError(t, err)
	defer missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestRouter_IconsDisabled(t *testing.T) {
	h := newHarness(t, nil)

	resp, err := http.Get(h.server.URL + "/icons/abc")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRouter_InvalidatePermissions(t *testing.T) {
	h := newHarness(t, nil)

	resp, err := http.Post(h.server.URL+"/permissions/76561198000000042/invalidate", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Player  string `json:"player"`
		Removed int    `json:"removed"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "76561198000000042", body.Player)
	assert.Equal(t, 1, body.Removed)

	h.grants.mu.Lock()
	defer h.grants.mu.Unlock()
	assert.Equal(t, []model.PlayerID{player}, h.grants.players)
}

func TestRouter_InvalidatePermissionsBadPlayer(t *testing.T) {
	h := newHarness(t, nil)

	resp, err := http.Post(h.server.URL+"/permissions/nobody/invalidate", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	h.grants.mu.Lock()
	defer h.grants.mu.Unlock()
	assert.Empty(t, h.grants.players)
}
