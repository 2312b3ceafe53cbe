// Package cooldown tracks per-player, per-location last-use timestamps.
package cooldown

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/udisondev/saferespawn/internal/model"
	"github.com/udisondev/saferespawn/internal/schedule"
)

// storeTimeout bounds a single write-through so a slow database never
// stalls the callback that started the cooldown.
const storeTimeout = 2 * time.Second

// Entry is one persisted last-use record.
type Entry struct {
	Player   model.PlayerID
	Location model.Location
	LastUsed time.Time
}

// Store persists cooldown entries across restarts.
type Store interface {
	SaveCooldown(ctx context.Context, e Entry) error
	LoadCooldowns(ctx context.Context) ([]Entry, error)
}

// Tracker holds last-use timestamps. Entries are created lazily on the first
// successful use and are only dropped wholesale by Reset.
// Thread-safe.
type Tracker struct {
	clock schedule.Clock
	store Store

	mu      sync.RWMutex
	windows map[model.Location]time.Duration
	entries map[model.PlayerID]map[model.Location]time.Time
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock overrides the time source.
func WithClock(c schedule.Clock) Option {
	return func(t *Tracker) { t.clock = c }
}

// WithStore enables write-through persistence.
func WithStore(s Store) Option {
	return func(t *Tracker) { t.store = s }
}

// NewTracker creates a tracker with the given cooldown window per location.
func NewTracker(windows map[model.Location]time.Duration, opts ...Option) *Tracker {
	t := &Tracker{
		clock:   schedule.Real{},
		windows: copyWindows(windows),
		entries: make(map[model.PlayerID]map[model.Location]time.Time),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// SetWindows replaces the cooldown windows (config reload).
// Existing timestamps are kept, so remaining time follows the new window.
func (t *Tracker) SetWindows(windows map[model.Location]time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.windows = copyWindows(windows)
}

// Window returns the configured cooldown for loc.
func (t *Tracker) Window(loc model.Location) time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.windows[loc]
}

// IsOnCooldown reports whether player must still wait before using loc.
func (t *Tracker) IsOnCooldown(player model.PlayerID, loc model.Location) bool {
	return t.Remaining(player, loc) > 0
}

// Remaining returns window - elapsed since last use, floored at zero.
// A location never used by the player has no cooldown.
func (t *Tracker) Remaining(player model.PlayerID, loc model.Location) time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.remainingLocked(player, loc, t.clock.Now())
}

// MaxRemaining returns the longest remaining cooldown among locs.
func (t *Tracker) MaxRemaining(player model.PlayerID, locs ...model.Location) time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()

	now := t.clock.Now()
	var longest time.Duration
	for _, loc := range locs {
		if r := t.remainingLocked(player, loc, now); r > longest {
			longest = r
		}
	}
	return longest
}

func (t *Tracker) remainingLocked(player model.PlayerID, loc model.Location, now time.Time) time.Duration {
	byLoc, ok := t.entries[player]
	if !ok {
		return 0
	}
	last, ok := byLoc[loc]
	if !ok {
		return 0
	}

	remaining := t.windows[loc] - now.Sub(last)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Start records now as the last use of loc by player, overwriting any
// previous entry. With a store configured the entry is written through;
// store failures are logged and do not undo the in-memory cooldown.
func (t *Tracker) Start(ctx context.Context, player model.PlayerID, loc model.Location) {
	now := t.clock.Now()

	t.mu.Lock()
	byLoc, ok := t.entries[player]
	if !ok {
		byLoc = make(map[model.Location]time.Time, 2)
		t.entries[player] = byLoc
	}
	byLoc[loc] = now
	t.mu.Unlock()

	if t.store == nil {
		return
	}

	storeCtx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	if err := t.store.SaveCooldown(storeCtx, Entry{Player: player, Location: loc, LastUsed: now}); err != nil {
		slog.Error("failed to persist cooldown",
			"player", player,
			"location", loc,
			"error", err)
	}
}

// Restore loads persisted entries. Entries already in memory win.
func (t *Tracker) Restore(ctx context.Context) (int, error) {
	if t.store == nil {
		return 0, nil
	}

	entries, err := t.store.LoadCooldowns(ctx)
	if err != nil {
		return 0, fmt.Errorf("loading cooldowns: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	restored := 0
	for _, e := range entries {
		byLoc, ok := t.entries[e.Player]
		if !ok {
			byLoc = make(map[model.Location]time.Time, 2)
			t.entries[e.Player] = byLoc
		}
		if _, exists := byLoc[e.Location]; exists {
			continue
		}
		byLoc[e.Location] = e.LastUsed
		restored++
	}

	slog.Info("cooldowns restored", "count", restored)
	return restored, nil
}

// Reset drops every entry (service shutdown).
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = make(map[model.PlayerID]map[model.Location]time.Time)
}

// Len returns the number of players with at least one entry.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

func copyWindows(in map[model.Location]time.Duration) map[model.Location]time.Duration {
	out := make(map[model.Location]time.Duration, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
