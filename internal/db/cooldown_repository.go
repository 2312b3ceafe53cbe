package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/udisondev/saferespawn/internal/cooldown"
	"github.com/udisondev/saferespawn/internal/model"
)

// CooldownRepository persists last-use timestamps so cooldowns survive restarts.
type CooldownRepository struct {
	pool *pgxpool.Pool
}

var _ cooldown.Store = (*CooldownRepository)(nil)

// NewCooldownRepository creates a new cooldown repository
func NewCooldownRepository(pool *pgxpool.Pool) *CooldownRepository {
	return &CooldownRepository{pool: pool}
}

// SaveCooldown upserts the last use of a location by a player.
func (r *CooldownRepository) SaveCooldown(ctx context.Context, e cooldown.Entry) error {
	query := `
		INSERT INTO respawn_cooldowns (player_id, location, last_used)
		VALUES ($1, $2, $3)
		ON CONFLICT (player_id, location) DO UPDATE SET last_used = EXCLUDED.last_used
	`

	if _, err := r.pool.Exec(ctx, query, int64(e.Player), string(e.Location), e.LastUsed.UTC()); err != nil {
		return fmt.Errorf("saving cooldown for player %s at %s: %w", e.Player, e.Location, err)
	}
	return nil
}

// LoadCooldowns loads every stored entry.
func (r *CooldownRepository) LoadCooldowns(ctx context.Context) ([]cooldown.Entry, error) {
	query := `
		SELECT player_id, location, last_used
		FROM respawn_cooldowns
		ORDER BY player_id, location
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("loading cooldowns: %w", err)
	}
	defer rows.Close()

	var entries []cooldown.Entry
	for rows.Next() {
		var (
			playerID int64
			location string
			lastUsed time.Time
		)
		if err := rows.Scan(&playerID, &location, &lastUsed); err != nil {
			return nil, fmt.Errorf("scanning cooldown row: %w", err)
		}

		entries = append(entries, cooldown.Entry{
			Player:   model.PlayerID(playerID),
			Location: model.Location(location),
			LastUsed: lastUsed,
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating cooldown rows: %w", err)
	}

	return entries, nil
}

// DeleteCooldowns removes all entries of a player. Returns the number of
// removed rows.
func (r *CooldownRepository) DeleteCooldowns(ctx context.Context, player model.PlayerID) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM respawn_cooldowns WHERE player_id = $1`, int64(player))
	if err != nil {
		return 0, fmt.Errorf("deleting cooldowns of player %s: %w", player, err)
	}
	return tag.RowsAffected(), nil
}

// PruneCooldowns removes entries last used before cutoff.
func (r *CooldownRepository) PruneCooldowns(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM respawn_cooldowns WHERE last_used < $1`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("pruning cooldowns before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	return tag.RowsAffected(), nil
}
