package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/tiersync/pkg/tier"
	"github.com/cuemby/tiersync/pkg/types"
)

func waitLocal(t *testing.T, call func(done func(tier.LocalResult))) tier.LocalResult {
	t.Helper()
	ch := make(chan tier.LocalResult, 1)
	call(func(r tier.LocalResult) { ch <- r })
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("local tier call never completed")
		return tier.LocalResult{}
	}
}

func TestTierRoundTrip(t *testing.T) {
	store, err := NewBoltStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	lt := NewTier(store, "notes")

	put := waitLocal(t, func(done func(tier.LocalResult)) {
		lt.Put(ctx, "1", types.Fields{"id": 1, "name": "a"}, done)
	})
	require.True(t, put.OK())
	assert.Equal(t, "1", put.Key)

	got := waitLocal(t, func(done func(tier.LocalResult)) { lt.Get(ctx, "1", done) })
	require.True(t, got.OK())
	assert.Equal(t, "a", got.Fields["name"])

	all := make(chan tier.LocalEntries, 1)
	lt.All(ctx, func(e tier.LocalEntries) { all <- e })
	entries := <-all
	require.NoError(t, entries.Err)
	assert.Len(t, entries.Entries, 1)

	removed := waitLocal(t, func(done func(tier.LocalResult)) { lt.Remove(ctx, "1", done) })
	require.True(t, removed.OK())
	assert.Equal(t, "a", removed.Fields["name"])

	missing := waitLocal(t, func(done func(tier.LocalResult)) { lt.Get(ctx, "1", done) })
	assert.ErrorIs(t, missing.Err, ErrNotFound)
}

func TestTierPutCopiesEntry(t *testing.T) {
	store, err := NewSQLiteStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	entry := types.Fields{"name": "a"}
	lt := NewTier(store, "notes")

	ch := make(chan tier.LocalResult, 1)
	lt.Put(context.Background(), "1", entry, func(r tier.LocalResult) { ch <- r })
	entry["name"] = "mutated"
	r := <-ch
	require.True(t, r.OK())

	got, err := store.Get("notes", "1")
	require.NoError(t, err)
	assert.Equal(t, "a", got["name"])
}

func TestTierCancelledContext(t *testing.T) {
	store, err := NewBoltStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := waitLocal(t, func(done func(tier.LocalResult)) {
		NewTier(store, "notes").Put(ctx, "1", types.Fields{}, done)
	})
	assert.ErrorIs(t, r.Err, context.Canceled)
}
