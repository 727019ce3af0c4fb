package engine

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/tiersync/pkg/types"
)

func TestLoadResumesUnfinishedWork(t *testing.T) {
	h := newHarness(t)
	h.local.seed("1", types.Fields{
		"id": 1, "name": "a",
		types.SavedKey: types.Fields{"id": 1, "name": "a"},
	})
	h.local.seed("2", types.Fields{
		"id": 2, "name": "edited",
		types.SavedKey: types.Fields{"id": 2, "name": "b"},
	})
	h.local.seed("3", types.Fields{
		"id": 3,
		types.SavedKey:  types.Fields{"id": 3},
		types.StatusKey: "remove_pending",
	})
	h.local.seed("4", types.Fields{
		"id":            4,
		types.StatusKey: "remove_pending",
	})
	h.local.seed("5", types.Fields{"id": 5, "name": "new"})

	n, err := h.db.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	assert.Equal(t, []string{
		"local.all",
		"remote.update 2 {name:edited}",
		"remote.remove 3",
		"local.remove 4",
		"remote.create 5 {id:5 name:new}",
	}, h.log.Lines())

	one, ok := h.db.Get("1")
	require.True(t, ok)
	assert.Equal(t, types.StatusSynced, one.Status())
	assert.False(t, one.Dirty())

	three, _ := h.db.Get("3")
	assert.True(t, three.Tombstoned())
	assert.Equal(t, types.StatusRemovePending, three.Status())

	_, ok = h.db.Get("4")
	assert.False(t, ok, "a never-synced pending removal finishes locally")

	for h.remote.outstanding() > 0 {
		h.remote.take(t).respond(http.StatusOK, nil)
	}
	h.assertQuiet()
	assert.Len(t, h.db.Records(), 3)
}

func TestLoadSkipsActiveKeys(t *testing.T) {
	h := newHarness(t)
	h.local.seed("1", types.Fields{"id": 1, "name": "stored"})
	rec := h.create(types.Fields{"id": 1, "name": "memory"})

	n, err := h.db.Load(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	v, _ := rec.Field("name")
	assert.Equal(t, "memory", v)
	assert.Zero(t, h.remote.outstanding())
}

func TestLoadWithoutLocalCache(t *testing.T) {
	h := newHarness(t, WithCachePolicy(types.CacheNone))
	h.local.seed("1", types.Fields{"id": 1})

	n, err := h.db.Load(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, h.log.Lines())
}
