package db

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/saferespawn/internal/cooldown"
	"github.com/udisondev/saferespawn/internal/model"
	"github.com/udisondev/saferespawn/internal/testutil"
)

func TestCooldownRepository_SaveAndLoad(t *testing.T) {
	repo := NewCooldownRepository(setupTestDB(t))
	ctx := context.Background()

	first := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, repo.SaveCooldown(ctx, cooldown.Entry{Player: 1, Location: model.LocationOutpost, LastUsed: first}))
	require.NoError(t, repo.SaveCooldown(ctx, cooldown.Entry{Player: 1, Location: model.LocationBandit, LastUsed: first}))

	// Upsert overwrites.
	second := first.Add(time.Minute)
	require.NoError(t, repo.SaveCooldown(ctx, cooldown.Entry{Player: 1, Location: model.LocationOutpost, LastUsed: second}))

	entries, err := repo.LoadCooldowns(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	byLoc := map[model.Location]time.Time{}
	for _, e := range entries {
		assert.Equal(t, model.PlayerID(1), e.Player)
		byLoc[e.Location] = e.LastUsed
	}
	assert.True(t, second.Equal(byLoc[model.LocationOutpost]))
	assert.True(t, first.Equal(byLoc[model.LocationBandit]))
}

func TestCooldownRepository_LargePlayerID(t *testing.T) {
	repo := NewCooldownRepository(setupTestDB(t))
	ctx := context.Background()

	const steamID model.PlayerID = 76561198012345678
	require.NoError(t, repo.SaveCooldown(ctx, cooldown.Entry{Player: steamID, Location: model.LocationOutpost, LastUsed: time.Now()}))

	entries, err := repo.LoadCooldowns(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, steamID, entries[0].Player)
}

func TestCooldownRepository_DeleteAndPrune(t *testing.T) {
	repo := NewCooldownRepository(setupTestDB(t))
	ctx := context.Background()

	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, repo.SaveCooldown(ctx, cooldown.Entry{Player: 1, Location: model.LocationOutpost, LastUsed: now}))
	require.NoError(t, repo.SaveCooldown(ctx, cooldown.Entry{Player: 1, Location: model.LocationBandit, LastUsed: now}))
	require.NoError(t, repo.SaveCooldown(ctx, cooldown.Entry{Player: 2, Location: model.LocationOutpost, LastUsed: now.Add(-time.Hour)}))
	require.NoError(t, repo.SaveCooldown(ctx, cooldown.Entry{Player: 3, Location: model.LocationOutpost, LastUsed: now}))

	removed, err := repo.DeleteCooldowns(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	pruned, err := repo.PruneCooldowns(ctx, now.Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), pruned)

	entries, err := repo.LoadCooldowns(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, model.PlayerID(3), entries[0].Player)
}

func TestCooldownRepository_TrackerRestore(t *testing.T) {
	repo := NewCooldownRepository(setupTestDB(t))
	ctx := context.Background()
	clock := testutil.NewManualScheduler()
	windows := map[model.Location]time.Duration{model.LocationOutpost: 120 * time.Second}

	writer := cooldown.NewTracker(windows, cooldown.WithClock(clock), cooldown.WithStore(repo))
	writer.Start(ctx, 7, model.LocationOutpost)

	clock.Advance(30 * time.Second)

	reader := cooldown.NewTracker(windows, cooldown.WithClock(clock), cooldown.WithStore(repo))
	n, err := reader.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 90*time.Second, reader.Remaining(7, model.LocationOutpost))
}
