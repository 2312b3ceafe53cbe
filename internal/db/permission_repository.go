package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/udisondev/saferespawn/internal/model"
	"github.com/udisondev/saferespawn/internal/permission"
)

// PermissionRepository stores per-player permission grants.
type PermissionRepository struct {
	pool *pgxpool.Pool
}

var _ permission.Checker = (*PermissionRepository)(nil)

// NewPermissionRepository creates a new permission repository
func NewPermissionRepository(pool *pgxpool.Pool) *PermissionRepository {
	return &PermissionRepository{pool: pool}
}

// Has reports whether perm was granted to player.
func (r *PermissionRepository) Has(ctx context.Context, player model.PlayerID, perm string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM respawn_permissions WHERE player_id = $1 AND permission = $2
		)
	`

	var ok bool
	if err := r.pool.QueryRow(ctx, query, int64(player), perm).Scan(&ok); err != nil {
		return false, fmt.Errorf("checking permission %s of player %s: %w", perm, player, err)
	}
	return ok, nil
}

// Grant gives perm to player. Granting twice is a no-op.
func (r *PermissionRepository) Grant(ctx context.Context, player model.PlayerID, perm string) error {
	query := `
		INSERT INTO respawn_permissions (player_id, permission)
		VALUES ($1, $2)
		ON CONFLICT (player_id, permission) DO NOTHING
	`

	if _, err := r.pool.Exec(ctx, query, int64(player), perm); err != nil {
		return fmt.Errorf("granting %s to player %s: %w", perm, player, err)
	}
	return nil
}

// Revoke removes perm from player. Returns false if it was not granted.
func (r *PermissionRepository) Revoke(ctx context.Context, player model.PlayerID, perm string) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM respawn_permissions WHERE player_id = $1 AND permission = $2`,
		int64(player), perm,
	)
	if err != nil {
		return false, fmt.Errorf("revoking %s from player %s: %w", perm, player, err)
	}
	return tag.RowsAffected() > 0, nil
}
