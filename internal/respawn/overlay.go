package respawn

import (
	"log/slog"
	"time"

	"github.com/udisondev/saferespawn/internal/model"
	"github.com/udisondev/saferespawn/internal/ui"
)

// scheduleRevealLocked arms reveal step `step`. Each step fires only if the
// player is still dead, then arms the next one.
func (s *Service) scheduleRevealLocked(player model.PlayerID, st *playerState, step int) {
	if step >= len(s.cfg.RevealDelays) {
		st.reveal = nil
		return
	}

	st.revealGen++
	gen := st.revealGen
	st.reveal = s.sched.After(s.cfg.RevealDelays[step], func() {
		s.reveal(player, gen, step)
	})
}

func (s *Service) reveal(player model.PlayerID, gen uint64, step int) {
	defer s.recoverEvent("reveal", player)

	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.players[player]
	if !ok || st.revealGen != gen {
		return
	}
	st.reveal = nil

	if !s.host.IsDead(player) {
		return
	}

	s.showLocked(player, st)
	s.scheduleRevealLocked(player, st, step+1)
}

func (s *Service) cancelRevealLocked(st *playerState) {
	if st.reveal != nil {
		st.reveal.Stop()
		st.reveal = nil
	}
	st.revealGen++
}

func (s *Service) cancelRefreshLocked(st *playerState) {
	if st.refresh != nil {
		st.refresh.Stop()
		st.refresh = nil
	}
	st.refreshGen++
}

// showLocked replaces whatever overlay the player has with a fresh one.
// With nothing left to show a visible overlay is taken down, while a
// pending reveal chain keeps running.
func (s *Service) showLocked(player model.PlayerID, st *playerState) {
	var locs []model.Location
	if s.initialized {
		locs = s.visibleLocked()
	}
	if len(locs) == 0 {
		if st.shown {
			s.cancelRefreshLocked(st)
			s.host.DestroyOverlay(player, ui.RootNames())
			st.shown = false
		}
		return
	}

	buttons := make([]ui.Button, 0, len(locs))
	for _, loc := range locs {
		settings, _ := s.cfg.Location(loc)
		buttons = append(buttons, ui.Button{
			Location:   loc,
			Label:      settings.Label,
			Color:      settings.Color,
			Remaining:  s.tracker.Remaining(player, loc),
			IconDigest: s.iconDigestLocked(loc),
		})
	}

	s.host.DestroyOverlay(player, ui.RootNames())
	s.host.DrawOverlay(player, ui.Build(buttons, s.themeLocked()))
	st.shown = true

	s.cancelRefreshLocked(st)
	if s.tracker.MaxRemaining(player, locs...) > 0 {
		gen := st.refreshGen
		st.refresh = s.sched.After(s.cfg.RefreshInterval, func() {
			s.refresh(player, gen)
		})
	}
}

func (s *Service) refresh(player model.PlayerID, gen uint64) {
	defer s.recoverEvent("refresh", player)

	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.players[player]
	if !ok || st.refreshGen != gen {
		return
	}
	st.refresh = nil

	if !st.shown {
		return
	}
	if !s.host.IsDead(player) {
		s.hideLocked(player, st)
		return
	}
	s.showLocked(player, st)
}

// redrawLocked brings every shown overlay in line with the current settings
// and spawn points.
func (s *Service) redrawLocked() {
	for player, st := range s.players {
		if !st.shown {
			continue
		}
		if !s.host.IsDead(player) {
			s.hideLocked(player, st)
			continue
		}
		s.showLocked(player, st)
	}
}

func (s *Service) hideLocked(player model.PlayerID, st *playerState) {
	s.cancelRefreshLocked(st)
	s.cancelRevealLocked(st)
	s.host.DestroyOverlay(player, ui.RootNames())
	st.shown = false
}

// visibleLocked returns locations that are both enabled and resolved.
func (s *Service) visibleLocked() []model.Location {
	var out []model.Location
	for _, loc := range s.cfg.Enabled() {
		if _, ok := s.points[loc]; ok {
			out = append(out, loc)
		}
	}
	return out
}

func (s *Service) iconDigestLocked(loc model.Location) string {
	if !s.iconsEnabled || s.icons == nil {
		return ""
	}
	if !s.icons.Available() {
		if !s.iconWarned {
			slog.Warn("icon service unavailable, using default sprites")
			s.iconWarned = true
		}
		return ""
	}
	digest, ok := s.icons.Lookup(string(loc))
	if !ok {
		return ""
	}
	return digest
}

func (s *Service) themeLocked() ui.Theme {
	return ui.Theme{
		TextColor:     s.gui.TextColor,
		CooldownColor: s.gui.CooldownColor,
		DisabledColor: s.gui.DisabledColor,
		FontSize:      s.gui.FontSize,
	}
}

// protectLocked (re)starts the hostility suppression window for player.
func (s *Service) protectLocked(player model.PlayerID, d time.Duration) {
	if p, ok := s.protected[player]; ok {
		p.timer.Stop()
	}

	s.protectGen++
	gen := s.protectGen
	s.protected[player] = protection{
		gen: gen,
		timer: s.sched.After(d, func() {
			s.unprotect(player, gen)
		}),
	}
}

func (s *Service) unprotect(player model.PlayerID, gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.protected[player]; ok && p.gen == gen {
		delete(s.protected, player)
	}
}
