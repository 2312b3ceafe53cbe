// Package permission answers "may this player use safe respawns".
package permission

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/udisondev/saferespawn/internal/model"
	"github.com/udisondev/saferespawn/internal/schedule"
)

// Use is the permission required for safe respawns.
const Use = "saferespawn.use"

// Checker looks up a permission for a player.
type Checker interface {
	Has(ctx context.Context, player model.PlayerID, perm string) (bool, error)
}

// Static grants permissions from configuration.
type Static struct {
	grantAll bool
	players  map[model.PlayerID]struct{}
}

// NewStatic creates a static checker. With grantAll every player passes.
func NewStatic(grantAll bool, players []uint64) *Static {
	s := &Static{
		grantAll: grantAll,
		players:  make(map[model.PlayerID]struct{}, len(players)),
	}
	for _, p := range players {
		s.players[model.PlayerID(p)] = struct{}{}
	}
	return s
}

// Has implements Checker. Every configured player holds every permission.
func (s *Static) Has(_ context.Context, player model.PlayerID, _ string) (bool, error) {
	if s.grantAll {
		return true, nil
	}
	_, ok := s.players[player]
	return ok, nil
}

type cacheKey struct {
	player model.PlayerID
	perm   string
}

type cacheEntry struct {
	allowed bool
	expires time.Time
}

// Cache memoizes a Checker per player. Entries expire after the TTL and
// entries of disconnected players are dropped by the periodic sweep; lookup
// failures are never cached.
// Thread-safe.
type Cache struct {
	checker  Checker
	interval time.Duration
	ttl      time.Duration
	clock    schedule.Clock

	mu        sync.RWMutex
	entries   map[cacheKey]cacheEntry
	connected map[model.PlayerID]struct{}
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithTTL bounds how long an answer is reused. Zero keeps answers until the
// player disconnects or Invalidate is called.
func WithTTL(ttl time.Duration) CacheOption {
	return func(c *Cache) { c.ttl = ttl }
}

// WithClock overrides the time source used for expiry.
func WithClock(clock schedule.Clock) CacheOption {
	return func(c *Cache) { c.clock = clock }
}

// NewCache wraps checker. interval is the sweep period for Run.
func NewCache(checker Checker, interval time.Duration, opts ...CacheOption) *Cache {
	c := &Cache{
		checker:   checker,
		interval:  interval,
		clock:     schedule.Real{},
		entries:   make(map[cacheKey]cacheEntry),
		connected: make(map[model.PlayerID]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Has returns the cached answer or asks the underlying checker.
// Errors deny access.
func (c *Cache) Has(ctx context.Context, player model.PlayerID, perm string) bool {
	key := cacheKey{player: player, perm: perm}
	now := c.clock.Now()

	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if ok && !c.expired(e, now) {
		return e.allowed
	}

	allowed, err := c.checker.Has(ctx, player, perm)
	if err != nil {
		slog.Error("permission lookup failed",
			"player", player,
			"permission", perm,
			"error", err)
		return false
	}

	e = cacheEntry{allowed: allowed}
	if c.ttl > 0 {
		e.expires = now.Add(c.ttl)
	}

	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()

	return allowed
}

func (c *Cache) expired(e cacheEntry, now time.Time) bool {
	return !e.expires.IsZero() && !now.Before(e.expires)
}

// Invalidate drops cached answers for player after a grant change.
// Returns the number of removed entries.
func (c *Cache) Invalidate(player model.PlayerID) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key := range c.entries {
		if key.player == player {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// MarkConnected records that player is online.
func (c *Cache) MarkConnected(player model.PlayerID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected[player] = struct{}{}
}

// MarkDisconnected records that player left; the next sweep drops the player's entries.
func (c *Cache) MarkDisconnected(player model.PlayerID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.connected, player)
}

// Sweep drops expired entries and entries of players that are not connected.
// Returns the number of removed entries.
func (c *Cache) Sweep() int {
	now := c.clock.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, e := range c.entries {
		if _, online := c.connected[key.player]; !online || c.expired(e, now) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of cached answers.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Run sweeps periodically (blocks until context is canceled).
func (c *Cache) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	slog.Info("permission cache sweeper started", "interval", c.interval)

	for {
		select {
		case <-ctx.Done():
			slog.Info("permission cache sweeper stopping")
			return nil

		case <-ticker.C:
			if removed := c.Sweep(); removed > 0 {
				slog.Debug("permission cache swept", "removed", removed)
			}
		}
	}
}
