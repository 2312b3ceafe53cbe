package respawn

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/udisondev/saferespawn/internal/audit"
	"github.com/udisondev/saferespawn/internal/model"
	"github.com/udisondev/saferespawn/internal/ui"
)

type respawnCall struct {
	player model.PlayerID
	pos    model.Vec3
	rot    model.Rotation
}

// fakeHost records every instruction and tracks which overlay roots each
// player currently has on screen.
type fakeHost struct {
	mu sync.Mutex

	landmarks      []model.Landmark
	panicLandmarks bool
	ground         float64
	groundErr      error
	respawnErr     error

	// Hooks run before the call is recorded, without holding mu.
	onGround  func()
	onRespawn func()

	dead     map[model.PlayerID]bool
	roots    map[model.PlayerID][]string
	draws    map[model.PlayerID][]ui.Overlay
	chats    map[model.PlayerID][]string
	respawns []respawnCall
	vitals   []model.Vitals

	// overlapping counts draws issued while the player still had roots shown.
	overlapping int
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		landmarks: []model.Landmark{
			{Name: "assets/bundled/prefabs/autospawn/monument/medium/compound.prefab", Position: model.NewVec3(100, 5, 200)},
			{Name: "assets/bundled/prefabs/autospawn/monument/medium/bandit_town.prefab", Position: model.NewVec3(-300, 8, 50)},
			{Name: "assets/bundled/prefabs/autospawn/monument/large/airfield_1.prefab", Position: model.NewVec3(0, 0, 0)},
		},
		ground: 10,
		dead:   make(map[model.PlayerID]bool),
		roots:  make(map[model.PlayerID][]string),
		draws:  make(map[model.PlayerID][]ui.Overlay),
		chats:  make(map[model.PlayerID][]string),
	}
}

func (h *fakeHost) Landmarks(context.Context) ([]model.Landmark, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.panicLandmarks {
		panic("landmark list corrupted")
	}
	return slices.Clone(h.landmarks), nil
}

func (h *fakeHost) GroundHeight(context.Context, float64, float64) (float64, error) {
	if h.onGround != nil {
		h.onGround()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ground, h.groundErr
}

func (h *fakeHost) IsDead(player model.PlayerID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dead[player]
}

func (h *fakeHost) RespawnAt(_ context.Context, player model.PlayerID, pos model.Vec3, rot model.Rotation) error {
	if h.onRespawn != nil {
		h.onRespawn()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.respawnErr != nil {
		return h.respawnErr
	}
	h.respawns = append(h.respawns, respawnCall{player: player, pos: pos, rot: rot})
	h.dead[player] = false
	return nil
}

func (h *fakeHost) SetVitals(_ context.Context, _ model.PlayerID, v model.Vitals) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.vitals = append(h.vitals, v)
	return nil
}

func (h *fakeHost) DrawOverlay(player model.PlayerID, overlay ui.Overlay) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.roots[player]) > 0 {
		h.overlapping++
	}
	h.roots[player] = append(h.roots[player], overlay.Roots()...)
	h.draws[player] = append(h.draws[player], overlay)
}

func (h *fakeHost) DestroyOverlay(player model.PlayerID, names []string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.roots[player] = slices.DeleteFunc(h.roots[player], func(r string) bool {
		return slices.Contains(names, r)
	})
}

func (h *fakeHost) ChatMessage(player model.PlayerID, text string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.chats[player] = append(h.chats[player], text)
}

func (h *fakeHost) setDead(player model.PlayerID, dead bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dead[player] = dead
}

func (h *fakeHost) drawCount(player model.PlayerID) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.draws[player])
}

func (h *fakeHost) shownRoots(player model.PlayerID) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(h.roots[player])
}

func (h *fakeHost) lastChat(player model.PlayerID) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	msgs := h.chats[player]
	if len(msgs) == 0 {
		return ""
	}
	return msgs[len(msgs)-1]
}

// lastLabel returns the label text of loc's button in the latest draw.
func (h *fakeHost) lastLabel(player model.PlayerID, loc model.Location) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	draws := h.draws[player]
	if len(draws) == 0 {
		return ""
	}
	want := ui.RootName(loc) + ".panel.label"
	for _, e := range draws[len(draws)-1].Elements {
		if e.Name == want {
			return e.Text
		}
	}
	return ""
}

type fakeRecorder struct {
	mu      sync.Mutex
	records []audit.Record
}

func (r *fakeRecorder) RecordRespawn(rec audit.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	return nil
}

type fakeIcons struct {
	available bool
	digests   map[string]string
}

func (f *fakeIcons) Lookup(id string) (string, bool) {
	d, ok := f.digests[id]
	return d, ok
}

func (f *fakeIcons) Available() bool { return f.available }

var errTeleport = errors.New("player entity missing")
