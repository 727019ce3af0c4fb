package engine

import (
	"github.com/cuemby/tiersync/pkg/cascade"
	"github.com/cuemby/tiersync/pkg/events"
	"github.com/cuemby/tiersync/pkg/tier"
	"github.com/cuemby/tiersync/pkg/types"
)

func (db *Database) saveLocal(op *operation) {
	rec := op.rec
	if rec.Tombstoned() {
		op.finish(outcomeSkipped)
		return
	}

	settle := func(outcome string) {
		if db.can(op, cascade.Remote) {
			op.tryNext(SaveRemote)
		}
		op.finish(outcome)
	}

	if !db.can(op, cascade.Local) {
		settle(outcomeSkipped)
		return
	}

	entry := rec.snapshotLocal()
	db.trace(op, "local.put")
	db.tiers.Local.Put(db.ctx, rec.key, entry, func(res tier.LocalResult) {
		db.exec.submit(func() {
			if !res.OK() {
				db.logger.Warn().Err(res.Err).Str("key", rec.key).Msg("Local write failed, continuing")
				settle(outcomeFailed)
				return
			}
			settle(outcomeOK)
		})
	})
}

func (db *Database) saveRemote(op *operation) {
	rec := op.rec
	if rec.Tombstoned() {
		op.finish(outcomeSkipped)
		return
	}
	if !db.can(op, cascade.Remote) {
		op.finish(outcomeSkipped)
		return
	}

	rec.mu.Lock()
	diff := rec.fields.Diff(rec.saved)
	if len(diff) == 0 {
		rec.pendingDiff = nil
		rec.pendingBroadcast = nil
		rec.status = types.StatusSynced
		rec.mu.Unlock()
		op.finish(outcomeSkipped)
		return
	}
	rec.pendingDiff = diff
	if db.can(op, cascade.Live) {
		rec.pendingBroadcast = diff.Clone()
	}
	rec.status = types.StatusSavePending
	create := rec.saved == nil
	rec.mu.Unlock()

	done := func(res tier.RemoteResult) {
		db.exec.submit(func() { db.saveRemoteSettled(op, res) })
	}
	if create {
		db.trace(op, "remote.create "+formatFields(diff))
		db.tiers.Remote.Create(db.ctx, rec.key, diff.Clone(), done)
		return
	}
	db.trace(op, "remote.update "+formatFields(diff))
	db.tiers.Remote.Update(db.ctx, rec.key, diff.Clone(), done)
}

func (db *Database) saveRemoteSettled(op *operation, res tier.RemoteResult) {
	rec := op.rec
	switch {
	case res.OK():
		db.acceptSave(op, res.Data, outcomeOK)

	case res.Conflict():
		db.logger.Info().Str("key", rec.key).Msg("Remote conflict, accepting server copy")
		db.acceptSave(op, res.Data, outcomeConflict)

	case res.Gone():
		db.logger.Info().Str("key", rec.key).Int("status", res.Status).Msg("Remote copy gone, removing locally")
		rec.clearPending()
		rec.tombstone()
		rec.setStatus(types.StatusRemoved)
		db.release(rec)
		op.insertNext(RemoveNow)
		db.emit(events.EventRecordRemoved, rec.key, "remote copy gone", nil)
		op.finish(outcomeGone)

	case res.NoNetwork():
		db.offline(op, func() { db.saveFailed(op, res) })

	default:
		db.saveFailed(op, res)
	}
}

// saveFailed settles a terminal remote save failure. The pending diff is
// dropped and reported with the failure event.
func (db *Database) saveFailed(op *operation, res tier.RemoteResult) {
	rec := op.rec
	rec.mu.Lock()
	diff := rec.pendingDiff
	rec.pendingDiff = nil
	rec.pendingBroadcast = nil
	rec.status = types.StatusSynced
	rec.mu.Unlock()

	db.logger.Error().Err(res.Err).Str("key", rec.key).Int("status", res.Status).Msg("Remote save failed")
	db.emit(events.EventRecordSaveFailed, rec.key, errorMessage(res), diff)
	op.finish(outcomeFailed)
}

// acceptSave applies an acknowledged (or server-won) save. A save that lands
// after the record was tombstoned only records that a remote copy exists.
func (db *Database) acceptSave(op *operation, data types.Fields, outcome string) {
	rec := op.rec
	server := data.Without()

	rec.mu.Lock()
	diff := rec.pendingDiff
	broadcast := rec.pendingBroadcast
	rec.pendingDiff = nil
	rec.pendingBroadcast = nil
	if rec.tombstoned {
		if rec.saved == nil {
			rec.saved = types.Fields{}.Merge(diff)
		}
		rec.mu.Unlock()
		db.trace(op, "landed after tombstone")
		op.finish(outcome)
		return
	}
	rec.saved = rec.saved.Merge(diff).Merge(server)
	rec.fields = rec.fields.Merge(server)
	rec.status = types.StatusSynced
	rec.mu.Unlock()

	if broadcast != nil && db.can(op, cascade.Live) {
		db.publish(op, tier.LiveSave, broadcast.Merge(server))
	}

	switch db.cache {
	case types.CacheAll:
		rec.snapshotLocal()
		op.insertNext(SaveNow)
	case types.CachePending:
		op.insertNext(RemoveCache)
	}

	db.emit(events.EventRecordSaved, rec.key, "", rec.Saved())
	op.finish(outcome)
}

func (db *Database) saveNow(op *operation) {
	rec := op.rec
	entry := rec.LocalSnapshot()
	if db.cache != types.CacheAll || db.tiers.Local == nil || entry == nil {
		op.finish(outcomeSkipped)
		return
	}

	db.trace(op, "local.put")
	db.tiers.Local.Put(db.ctx, rec.key, entry, func(res tier.LocalResult) {
		db.exec.submit(func() {
			if !res.OK() {
				db.logger.Warn().Err(res.Err).Str("key", rec.key).Msg("Local mirror write failed")
				op.finish(outcomeFailed)
				return
			}
			op.finish(outcomeOK)
		})
	})
}

func (db *Database) removeCache(op *operation) {
	rec := op.rec
	if db.cache != types.CachePending || db.tiers.Local == nil {
		op.finish(outcomeSkipped)
		return
	}

	db.trace(op, "local.remove")
	db.tiers.Local.Remove(db.ctx, rec.key, func(res tier.LocalResult) {
		db.exec.submit(func() {
			rec.mu.Lock()
			rec.local = nil
			rec.mu.Unlock()
			if !res.OK() {
				db.logger.Warn().Err(res.Err).Str("key", rec.key).Msg("Local cache eviction failed")
				op.finish(outcomeFailed)
				return
			}
			op.finish(outcomeOK)
		})
	})
}

func (db *Database) publish(op *operation, kind tier.LiveOp, data types.Fields) {
	db.trace(op, "live.publish "+string(kind))
	db.tiers.Live.Publish(tier.LiveMessage{
		Op:       kind,
		Database: db.name,
		Key:      op.rec.key,
		Data:     data,
	})
}

func errorMessage(res tier.RemoteResult) string {
	if res.Err != nil {
		return res.Err.Error()
	}
	return ""
}
