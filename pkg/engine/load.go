package engine

import (
	"context"
	"fmt"
	"sort"

	"github.com/cuemby/tiersync/pkg/cascade"
	"github.com/cuemby/tiersync/pkg/tier"
	"github.com/cuemby/tiersync/pkg/types"
)

// Load restores every local tier entry as an active record and resumes the
// work an earlier session left unfinished:
//
//	$status=remove_pending, saved remotely   RemoveRemote
//	$status=remove_pending, never saved      RemoveNow
//	fields differ from $saved                SaveRemote
//
// Keys already active are left untouched. Load returns the number of
// records restored.
func (db *Database) Load(ctx context.Context) (int, error) {
	if db.closed.Load() {
		return 0, ErrClosed
	}
	if db.tiers.Local == nil || db.cache == types.CacheNone {
		return 0, nil
	}

	ch := make(chan tier.LocalEntries, 1)
	db.tiers.Local.All(ctx, func(res tier.LocalEntries) { ch <- res })

	var res tier.LocalEntries
	select {
	case res = <-ch:
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	if res.Err != nil {
		return 0, fmt.Errorf("failed to load %s: %w", db.name, res.Err)
	}

	keys := make([]string, 0, len(res.Entries))
	for key := range res.Entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	restored := 0
	done := make(chan struct{})
	err := db.submit(func() {
		defer close(done)
		for _, key := range keys {
			if db.restore(key, res.Entries[key]) {
				restored++
			}
		}
	})
	if err != nil {
		return 0, err
	}

	select {
	case <-done:
	case <-ctx.Done():
		return 0, ctx.Err()
	}

	db.logger.Info().Int("restored", restored).Int("entries", len(keys)).Msg("Loaded local tier")
	return restored, nil
}

// restore must run on the executor
func (db *Database) restore(key string, entry types.Fields) bool {
	rec := newRecord(db, key, entry)
	rec.local = entry.Clone()
	if saved, ok := types.AsFields(entry[types.SavedKey]); ok {
		rec.saved = saved.Clone()
	}
	status, _ := entry[types.StatusKey].(string)
	removing := status == string(types.StatusRemovePending)
	if removing {
		rec.tombstoned = true
		rec.status = types.StatusRemovePending
	}
	if !db.adopt(rec) {
		return false
	}

	switch {
	case removing && rec.everSaved():
		db.addOperation(rec, RemoveRemote, cascade.All)
	case removing:
		db.addOperation(rec, RemoveNow, cascade.All)
	case rec.Dirty():
		db.addOperation(rec, SaveRemote, cascade.All)
	}
	return true
}
