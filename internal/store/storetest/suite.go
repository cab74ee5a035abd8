// Package storetest holds the compliance suite every store.Store backend must pass.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/rulings/internal/models"
	"github.com/ajitpratap0/rulings/internal/store"
)

// Ordering describes the List order a backend guarantees.
type Ordering int

const (
	// InsertionOrder backends list entries in first-insert order.
	InsertionOrder Ordering = iota
	// LexicalOrder backends list entries sorted by key.
	LexicalOrder
)

// Config describes the backend under test.
type Config struct {
	// New returns a clean, isolated store. The suite closes it.
	New      func(t *testing.T) store.Store
	Ordering Ordering
}

// Run exercises the store contract against cfg.New.
func Run(t *testing.T, cfg Config) {
	t.Helper()

	open := func(t *testing.T) store.Store {
		t.Helper()
		st := cfg.New(t)
		t.Cleanup(func() { _ = st.Close() })
		return st
	}

	t.Run("UpsertInsertThenUpdate", func(t *testing.T) { testUpsert(t, open(t)) })
	t.Run("LastUpsertWins", func(t *testing.T) { testLastUpsertWins(t, open(t)) })
	t.Run("ListOrder", func(t *testing.T) { testListOrder(t, open(t), cfg.Ordering) })
	t.Run("GetMissing", func(t *testing.T) { testGetMissing(t, open(t)) })
	t.Run("Delete", func(t *testing.T) { testDelete(t, open(t)) })
	t.Run("Filter", func(t *testing.T) { testFilter(t, open(t)) })
	t.Run("Usage", func(t *testing.T) { testUsage(t, open(t)) })
	t.Run("Suggestions", func(t *testing.T) { testSuggestions(t, open(t)) })
	t.Run("SuggestionTerminality", func(t *testing.T) { testTerminality(t, open(t)) })
	t.Run("ConcurrentUpsertSameKey", func(t *testing.T) { testConcurrentUpsert(t, open(t)) })
}

// Entry builds a normalized entry for tests.
func Entry(key, content string, tags ...string) models.Entry {
	if tags == nil {
		tags = []string{}
	}
	return models.Entry{Key: key, Title: key, Content: content, Tags: tags}
}

func testUpsert(t *testing.T, st store.Store) {
	ctx := context.Background()

	e := Entry("damage step", "restricted window", "battle", "timing")
	e.Archetype = "mechanic"
	e.Format = "tcg"

	res, err := st.Upsert(ctx, e)
	require.NoError(t, err)
	assert.Equal(t, store.Inserted, res)

	got, err := st.Get(ctx, "damage step")
	require.NoError(t, err)
	assert.Equal(t, e, *got)

	replacement := Entry("damage step", "")
	replacement.Title = "Damage Step"
	res, err = st.Upsert(ctx, replacement)
	require.NoError(t, err)
	assert.Equal(t, store.Updated, res)

	got, err = st.Get(ctx, "damage step")
	require.NoError(t, err)
	assert.Equal(t, replacement, *got, "upsert must replace every field")

	n, err := st.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func testLastUpsertWins(t *testing.T, st store.Store) {
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := st.Upsert(ctx, Entry("miss timing", fmt.Sprintf("v%d", i)))
		require.NoError(t, err)
		_, err = st.Upsert(ctx, Entry(fmt.Sprintf("other %d", i%2), "x"))
		require.NoError(t, err)
	}

	all, err := st.List(ctx)
	require.NoError(t, err)
	seen := map[string]int{}
	for _, e := range all {
		seen[e.Key]++
	}
	for k, c := range seen {
		assert.Equal(t, 1, c, "key %q listed %d times", k, c)
	}
	assert.Len(t, all, 3)

	got, err := st.Get(ctx, "miss timing")
	require.NoError(t, err)
	assert.Equal(t, "v4", got.Content)
}

func testListOrder(t *testing.T, st store.Store, ordering Ordering) {
	ctx := context.Background()
	for _, k := range []string{"miss timing", "ash blossom", "damage step"} {
		_, err := st.Upsert(ctx, Entry(k, k))
		require.NoError(t, err)
	}
	// Replacing an entry must not move it.
	_, err := st.Upsert(ctx, Entry("miss timing", "updated"))
	require.NoError(t, err)

	first, err := st.List(ctx)
	require.NoError(t, err)
	second, err := st.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, second, "List must be stable absent mutation")

	keys := make([]string, len(first))
	for i := range first {
		keys[i] = first[i].Key
	}
	switch ordering {
	case InsertionOrder:
		assert.Equal(t, []string{"miss timing", "ash blossom", "damage step"}, keys)
	case LexicalOrder:
		assert.Equal(t, []string{"ash blossom", "damage step", "miss timing"}, keys)
	}
}

func testGetMissing(t *testing.T, st store.Store) {
	_, err := st.Get(context.Background(), "nope")
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrNotFound), "got %v", err)
}

func testDelete(t *testing.T, st store.Store) {
	ctx := context.Background()
	_, err := st.Upsert(ctx, Entry("ash blossom", "negates"))
	require.NoError(t, err)

	deleted, err := st.Delete(ctx, "ash blossom")
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = st.Delete(ctx, "ash blossom")
	require.NoError(t, err)
	assert.False(t, deleted)

	_, err = st.Get(ctx, "ash blossom")
	assert.True(t, errors.Is(err, store.ErrNotFound))

	n, err := st.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func testFilter(t *testing.T, st store.Store) {
	ctx := context.Background()
	a := Entry("ash blossom", "negates", "hand trap", "negate")
	a.Title = "Ash Blossom & Joyous Spring"
	a.Archetype = "monster"
	b := Entry("damage step", "window", "battle")
	b.Format = "tcg"
	c := Entry("infinite impermanence", "negates", "hand trap")
	c.Archetype = "trap"
	d := Entry("fenetre", "restricted window")
	d.Title = "Fenêtre de Dommages ÉTAPE"
	for _, e := range []models.Entry{a, b, c, d} {
		_, err := st.Upsert(ctx, e)
		require.NoError(t, err)
	}

	keysOf := func(entries []models.Entry) []string {
		out := make([]string, 0, len(entries))
		for _, e := range entries {
			out = append(out, e.Key)
		}
		return out
	}

	got, err := st.Filter(ctx, &store.Filters{Tag: "HAND"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"ash blossom", "infinite impermanence"}, keysOf(got))

	got, err = st.Filter(ctx, &store.Filters{Title: "joyous"})
	require.NoError(t, err)
	assert.Equal(t, []string{"ash blossom"}, keysOf(got))

	got, err = st.Filter(ctx, &store.Filters{Key: "step", Format: "TCG"})
	require.NoError(t, err)
	assert.Equal(t, []string{"damage step"}, keysOf(got))

	got, err = st.Filter(ctx, &store.Filters{Tag: "hand", Archetype: "trap"})
	require.NoError(t, err)
	assert.Equal(t, []string{"infinite impermanence"}, keysOf(got))

	for _, title := range []string{"étape", "ÉTAPE", "fenêtre", "dommages é"} {
		got, err = st.Filter(ctx, &store.Filters{Title: title})
		require.NoError(t, err)
		assert.Equal(t, []string{"fenetre"}, keysOf(got), "title %q", title)
	}

	got, err = st.Filter(ctx, &store.Filters{Key: "100%"})
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = st.Filter(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, got, 4)
}

func testUsage(t *testing.T, st store.Store) {
	ctx := context.Background()
	n, err := st.Usage(ctx, "ash blossom")
	require.NoError(t, err)
	assert.Zero(t, n)

	for i := 0; i < 3; i++ {
		require.NoError(t, st.IncrementUsage(ctx, "ash blossom"))
	}
	require.NoError(t, st.IncrementUsage(ctx, "damage step"))

	n, err = st.Usage(ctx, "ash blossom")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	top, err := st.TopUsage(ctx, 1)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, models.UsageStat{Key: "ash blossom", Count: 3}, top[0])

	top, err = st.TopUsage(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, top, 2)
}

func newSuggestion(id string, created time.Time, key string) models.Suggestion {
	return models.Suggestion{
		ID:                id,
		Entry:             Entry(key, "proposed "+key, "proposal"),
		AuthorID:          "u-1",
		AuthorDisplayName: "Yugi",
		CreatedAt:         created,
		Status:            models.StatusPending,
	}
}

func testSuggestions(t *testing.T, st store.Store) {
	ctx := context.Background()
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	require.NoError(t, st.AddSuggestion(ctx, newSuggestion("s-old", base, "miss timing")))
	require.NoError(t, st.AddSuggestion(ctx, newSuggestion("s-mid", base.Add(time.Minute), "ash blossom")))
	require.NoError(t, st.AddSuggestion(ctx, newSuggestion("s-new", base.Add(2*time.Minute), "ash blossom")))

	got, err := st.GetSuggestion(ctx, "s-mid")
	require.NoError(t, err)
	assert.Equal(t, "ash blossom", got.Entry.Key)
	assert.Equal(t, []string{"proposal"}, got.Entry.Tags)
	assert.Equal(t, "Yugi", got.AuthorDisplayName)
	assert.Equal(t, models.StatusPending, got.Status)
	assert.True(t, base.Add(time.Minute).Equal(got.CreatedAt), "created_at round-trip: %v", got.CreatedAt)
	assert.Nil(t, got.DecidedAt)

	_, err = st.GetSuggestion(ctx, "missing")
	assert.True(t, errors.Is(err, store.ErrNotFound))

	all, err := st.ListSuggestions(ctx, nil, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "s-new", all[0].ID)
	assert.Equal(t, "s-mid", all[1].ID)
	assert.Equal(t, "s-old", all[2].ID)

	limited, err := st.ListSuggestions(ctx, nil, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)

	decided := base.Add(time.Hour)
	require.NoError(t, st.TransitionSuggestion(ctx, "s-mid", models.StatusApproved, decided))

	pending := models.StatusPending
	open, err := st.ListSuggestions(ctx, &pending, 0)
	require.NoError(t, err)
	require.Len(t, open, 2)
	assert.Equal(t, "s-new", open[0].ID)
	assert.Equal(t, "s-old", open[1].ID)

	approved := models.StatusApproved
	done, err := st.ListSuggestions(ctx, &approved, 0)
	require.NoError(t, err)
	require.Len(t, done, 1)
	require.NotNil(t, done[0].DecidedAt)
	assert.True(t, decided.Equal(*done[0].DecidedAt))

	deleted, err := st.DeleteSuggestion(ctx, "s-old")
	require.NoError(t, err)
	assert.True(t, deleted)
	deleted, err = st.DeleteSuggestion(ctx, "s-old")
	require.NoError(t, err)
	assert.False(t, deleted)
}

func testTerminality(t *testing.T, st store.Store) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, st.AddSuggestion(ctx, newSuggestion("a", now, "k1")))
	require.NoError(t, st.AddSuggestion(ctx, newSuggestion("r", now, "k2")))

	require.NoError(t, st.TransitionSuggestion(ctx, "a", models.StatusApproved, now))
	require.NoError(t, st.TransitionSuggestion(ctx, "r", models.StatusRejected, now))

	for _, id := range []string{"a", "r"} {
		for _, to := range []models.SuggestionStatus{models.StatusApproved, models.StatusRejected} {
			err := st.TransitionSuggestion(ctx, id, to, now)
			assert.True(t, errors.Is(err, store.ErrNotPending), "%s -> %s: %v", id, to, err)
		}
	}

	got, err := st.GetSuggestion(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, got.Status)

	err = st.TransitionSuggestion(ctx, "missing", models.StatusApproved, now)
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func testConcurrentUpsert(t *testing.T, st store.Store) {
	ctx := context.Background()
	const writers = 8

	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tag := fmt.Sprintf("w%d", i)
			e := Entry("contested", tag, tag)
			e.Title = tag
			if _, err := st.Upsert(ctx, e); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := st.Get(ctx, "contested")
	require.NoError(t, err)
	// Every field must come from the same writer.
	assert.Equal(t, got.Title, got.Content)
	assert.Equal(t, []string{got.Title}, got.Tags)

	n, err := st.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
