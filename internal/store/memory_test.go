package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/rulings/internal/models"
	"github.com/ajitpratap0/rulings/internal/store"
	"github.com/ajitpratap0/rulings/internal/store/storetest"
)

func TestMemoryStore_Contract(t *testing.T) {
	storetest.Run(t, storetest.Config{
		New:      func(t *testing.T) store.Store { return store.NewMemoryStore() },
		Ordering: storetest.InsertionOrder,
	})
}

func TestMemoryStore_GetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	_, err := s.Upsert(ctx, storetest.Entry("ash blossom", "negates", "hand trap"))
	require.NoError(t, err)

	got, err := s.Get(ctx, "ash blossom")
	require.NoError(t, err)
	got.Tags[0] = "mutated"

	again, err := s.Get(ctx, "ash blossom")
	require.NoError(t, err)
	assert.Equal(t, []string{"hand trap"}, again.Tags)
}

func TestMemoryStore_UpsertEmptyKey(t *testing.T) {
	_, err := store.NewMemoryStore().Upsert(context.Background(), models.Entry{})
	require.Error(t, err)
}

func TestFilters_Matches(t *testing.T) {
	e := storetest.Entry("damage step", "x", "Battle", "timing")
	e.Archetype = "mechanic"

	var nilFilter *store.Filters
	assert.True(t, nilFilter.Matches(e))
	assert.True(t, (&store.Filters{Tag: "batt"}).Matches(e))
	assert.False(t, (&store.Filters{Tag: "chain"}).Matches(e))
	assert.True(t, (&store.Filters{Key: "STEP", Archetype: "mech"}).Matches(e))
	assert.False(t, (&store.Filters{Key: "step", Format: "ocg"}).Matches(e))
}

func TestValidateTransition(t *testing.T) {
	require.NoError(t, store.ValidateTransition(models.StatusPending, models.StatusApproved))
	require.NoError(t, store.ValidateTransition(models.StatusPending, models.StatusRejected))
	assert.ErrorIs(t, store.ValidateTransition(models.StatusApproved, models.StatusRejected), store.ErrNotPending)
	assert.Error(t, store.ValidateTransition(models.StatusPending, models.StatusPending))
}

func TestSortUsage(t *testing.T) {
	stats := []models.UsageStat{{Key: "b", Count: 1}, {Key: "a", Count: 1}, {Key: "c", Count: 5}}
	store.SortUsage(stats)
	assert.Equal(t, []models.UsageStat{{Key: "c", Count: 5}, {Key: "a", Count: 1}, {Key: "b", Count: 1}}, stats)
}
