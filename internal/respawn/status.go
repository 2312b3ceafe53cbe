package respawn

import (
	"slices"

	"github.com/udisondev/saferespawn/internal/model"
)

// Status is a point-in-time snapshot for the /status endpoint.
type Status struct {
	Initialized     bool               `json:"initialized"`
	SpawnPoints     []SpawnPointStatus `json:"spawn_points"`
	TrackedPlayers  int                `json:"tracked_players"`
	ShownOverlays   int                `json:"shown_overlays"`
	ProtectedCount  int                `json:"protected_players"`
	CooldownPlayers int                `json:"cooldown_players"`
}

// SpawnPointStatus describes one resolved spawn point.
type SpawnPointStatus struct {
	Location model.Location `json:"location"`
	Enabled  bool           `json:"enabled"`
	Landmark string         `json:"landmark"`
	Position model.Vec3     `json:"position"`
}

// Status returns the current snapshot.
func (s *Service) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		Initialized:     s.initialized,
		TrackedPlayers:  len(s.players),
		ProtectedCount:  len(s.protected),
		CooldownPlayers: s.tracker.Len(),
	}
	for _, ps := range s.players {
		if ps.shown {
			st.ShownOverlays++
		}
	}
	for loc, p := range s.points {
		settings, _ := s.cfg.Location(loc)
		st.SpawnPoints = append(st.SpawnPoints, SpawnPointStatus{
			Location: loc,
			Enabled:  settings.Enabled,
			Landmark: p.Anchor.Name,
			Position: p.Position,
		})
	}
	slices.SortFunc(st.SpawnPoints, func(a, b SpawnPointStatus) int {
		return slices.Index(model.Locations(), a.Location) - slices.Index(model.Locations(), b.Location)
	})
	return st
}
