package entitlement

import (
	"context"
	"testing"
	"time"

	"biztomate-api/internal/catalog"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewStore(client)
}

func TestStore_SaveAndLoad(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	expiresAt := time.Now().Add(30 * 24 * time.Hour).Truncate(time.Second)
	ent := Entitlement{
		PlanID:    catalog.PlanPremium,
		ExpiresAt: &expiresAt,
		CardQuota: 500,
	}

	require.NoError(t, store.Save(ctx, "user-1", ent))

	loaded, err := store.Load(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, catalog.PlanPremium, loaded.PlanID)
	assert.Equal(t, 500, loaded.CardQuota)
	require.NotNil(t, loaded.ExpiresAt)
	assert.True(t, loaded.ExpiresAt.Equal(expiresAt))
	assert.Equal(t, 0, loaded.ScannedCount)
}

func TestStore_LoadUnknownUserIsFreeTier(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	ent, err := store.Load(ctx, "nobody")
	require.NoError(t, err)
	assert.Equal(t, catalog.PlanFree, ent.PlanID)
	assert.Equal(t, catalog.FreeScanLimit, ent.CardQuota)
}

func TestStore_ScanCounterSurvivesResave(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.Save(ctx, "user-1", Free()))

	for i := 1; i <= 3; i++ {
		count, err := store.IncrementScans(ctx, "user-1")
		require.NoError(t, err)
		assert.Equal(t, i, count)
	}

	// Re-resolving the entitlement (purchase, restore) must not reset the
	// scan counter.
	expiresAt := time.Now().Add(24 * time.Hour)
	require.NoError(t, store.Save(ctx, "user-1", Entitlement{
		PlanID:       catalog.PlanBasic,
		ExpiresAt:    &expiresAt,
		CardQuota:    100,
		ScannedCount: 999, // ignored by Save
	}))

	loaded, err := store.Load(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 3, loaded.ScannedCount)
	assert.Equal(t, catalog.PlanBasic, loaded.PlanID)
}

func TestStore_LoadEffectiveDowngradesExpired(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	expiresAt := time.Now().Add(-time.Hour)
	require.NoError(t, store.Save(ctx, "user-1", Entitlement{
		PlanID:    catalog.PlanStandard,
		ExpiresAt: &expiresAt,
		CardQuota: 250,
	}))

	effective, err := store.LoadEffective(ctx, "user-1", time.Now())
	require.NoError(t, err)
	assert.Equal(t, catalog.PlanFree, effective.PlanID)

	// Stored value stays on the paid plan (lazy expiry only at read).
	stored, err := store.Load(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, catalog.PlanStandard, stored.PlanID)
}

func newTrialStore(t *testing.T, trialDays int) *Store {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewStoreWithTrial(client, trialDays)
}

func TestStore_TrialGrantedOnFirstSight(t *testing.T) {
	ctx := context.Background()
	store := newTrialStore(t, 7)

	ent, err := store.Load(ctx, "newcomer")
	require.NoError(t, err)
	assert.Equal(t, catalog.PlanFree, ent.PlanID)
	require.NotNil(t, ent.TrialEndsAt, "a first-seen user gets the trial window")
	assert.WithinDuration(t, time.Now().Add(7*24*time.Hour), *ent.TrialEndsAt, time.Minute)

	// The window is anchored to the first sighting, not to every read.
	again, err := store.Load(ctx, "newcomer")
	require.NoError(t, err)
	require.NotNil(t, again.TrialEndsAt)
	assert.True(t, ent.TrialEndsAt.Equal(*again.TrialEndsAt))
}

func TestStore_TrialDisabledWhenUnconfigured(t *testing.T) {
	ctx := context.Background()
	store := newTrialStore(t, 0)

	ent, err := store.Load(ctx, "newcomer")
	require.NoError(t, err)
	assert.Nil(t, ent.TrialEndsAt)
}

func TestStore_SavePreservesTrialWindow(t *testing.T) {
	ctx := context.Background()
	store := newTrialStore(t, 7)

	granted, err := store.Load(ctx, "user-1")
	require.NoError(t, err)
	require.NotNil(t, granted.TrialEndsAt)

	// A purchase or restore reduction never carries a trial window; saving
	// it must not wipe the one already granted.
	expiresAt := time.Now().Add(30 * 24 * time.Hour)
	require.NoError(t, store.Save(ctx, "user-1", Entitlement{
		PlanID:    catalog.PlanPremium,
		ExpiresAt: &expiresAt,
		CardQuota: 500,
	}))

	loaded, err := store.Load(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, catalog.PlanPremium, loaded.PlanID)
	require.NotNil(t, loaded.TrialEndsAt)
	assert.True(t, granted.TrialEndsAt.Equal(*loaded.TrialEndsAt))
}

func TestStore_DecrementScans(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	for i := 0; i < 3; i++ {
		_, err := store.IncrementScans(ctx, "user-1")
		require.NoError(t, err)
	}
	require.NoError(t, store.DecrementScans(ctx, "user-1"))

	ent, err := store.Load(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, 2, ent.ScannedCount)
}
