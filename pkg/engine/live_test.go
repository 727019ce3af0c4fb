package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/tiersync/pkg/events"
	"github.com/cuemby/tiersync/pkg/tier"
	"github.com/cuemby/tiersync/pkg/types"
)

func TestLiveSaveCreatesRecord(t *testing.T) {
	h := newHarness(t)

	h.live.deliver(tier.LiveMessage{
		Op:       tier.LiveSave,
		Database: h.db.Name(),
		Key:      "9",
		Data:     types.Fields{"id": 9, "name": "remote"},
	})

	rec, ok := h.db.Get("9")
	require.True(t, ok)
	v, _ := rec.Field("name")
	assert.Equal(t, "remote", v)
	assert.False(t, rec.Dirty(), "live data counts as remote state")
	assert.Equal(t, []string{"local.put 9 {$saved:map[id:9 name:remote] id:9 name:remote}"}, h.log.Lines())
	assert.Zero(t, h.remote.outstanding())

	_, err := h.db.Create(types.Fields{"id": 9})
	assert.ErrorIs(t, err, ErrKeyReserved)
	h.expectEvent(events.EventRecordFetched)
	h.assertQuiet()
}

func TestLiveSaveMergesIntoExistingRecord(t *testing.T) {
	h := newHarness(t)
	rec := h.saved(types.Fields{"id": 1, "name": "a", "tag": "x"})

	h.live.deliver(tier.LiveMessage{
		Op:       tier.LiveSave,
		Database: h.db.Name(),
		Key:      "1",
		Data:     types.Fields{"tag": "y"},
	})

	assert.Equal(t, types.Fields{"id": 1, "name": "a", "tag": "y"}, rec.Fields())
	assert.Equal(t, "y", rec.Saved()["tag"])
}

func TestLiveRemove(t *testing.T) {
	h := newHarness(t)
	rec := h.saved(types.Fields{"id": 1})

	h.live.deliver(tier.LiveMessage{Op: tier.LiveRemove, Database: h.db.Name(), Key: "1"})

	assert.True(t, rec.Tombstoned())
	assert.Equal(t, types.StatusRemoved, rec.Status())
	assert.Equal(t, []string{"local.remove 1"}, h.log.Lines())
	assert.Zero(t, h.remote.count("remove"))
	_, ok := h.db.Get("1")
	assert.False(t, ok)
	h.assertQuiet()

	// A later save for the same key builds a fresh record.
	h.live.deliver(tier.LiveMessage{Op: tier.LiveSave, Database: h.db.Name(), Key: "1", Data: types.Fields{"id": 1}})
	fresh, ok := h.db.Get("1")
	require.True(t, ok)
	assert.NotSame(t, rec, fresh)
}

func TestLiveIgnoresOtherDatabases(t *testing.T) {
	h := newHarness(t)

	h.live.deliver(tier.LiveMessage{Op: tier.LiveSave, Database: "other", Key: "1", Data: types.Fields{"id": 1}})
	h.live.deliver(tier.LiveMessage{Op: tier.LiveRemove, Database: h.db.Name(), Key: "missing"})

	assert.Empty(t, h.db.Records())
	assert.Empty(t, h.log.Lines())
}

func TestLiveStopsAfterClose(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.db.Close())

	h.live.deliver(tier.LiveMessage{Op: tier.LiveSave, Database: h.db.Name(), Key: "1", Data: types.Fields{"id": 1}})
	assert.Empty(t, h.db.Records())
}
