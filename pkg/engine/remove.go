package engine

import (
	"github.com/cuemby/tiersync/pkg/cascade"
	"github.com/cuemby/tiersync/pkg/events"
	"github.com/cuemby/tiersync/pkg/tier"
	"github.com/cuemby/tiersync/pkg/types"
)

func (db *Database) removeLocal(op *operation) {
	rec := op.rec
	if rec.Status() == types.StatusRemoved {
		op.finish(outcomeSkipped)
		return
	}
	rec.setStatus(types.StatusRemovePending)

	settle := func(outcome string) {
		if rec.everSaved() && db.can(op, cascade.Remote) {
			op.queue(db.newOperation(rec, RemoveRemote, op.mask))
		} else {
			db.finalizeRemove(op)
		}
		op.finish(outcome)
	}

	entry := rec.LocalSnapshot()
	if !db.can(op, cascade.Local) || entry == nil {
		settle(outcomeSkipped)
		return
	}

	done := func(res tier.LocalResult) {
		db.exec.submit(func() {
			if !res.OK() {
				db.logger.Warn().Err(res.Err).Str("key", rec.key).Msg("Local removal write failed, continuing")
				settle(outcomeFailed)
				return
			}
			settle(outcomeOK)
		})
	}

	if rec.everSaved() {
		// Persist the pending removal so a later session can resume it.
		entry[types.StatusKey] = string(types.StatusRemovePending)
		rec.mu.Lock()
		rec.local = entry.Clone()
		rec.mu.Unlock()
		db.trace(op, "local.put remove_pending")
		db.tiers.Local.Put(db.ctx, rec.key, entry, done)
		return
	}

	rec.mu.Lock()
	rec.local = nil
	rec.mu.Unlock()
	db.trace(op, "local.remove")
	db.tiers.Local.Remove(db.ctx, rec.key, done)
}

func (db *Database) removeRemote(op *operation) {
	rec := op.rec
	if rec.Status() == types.StatusRemoved {
		op.finish(outcomeSkipped)
		return
	}
	if !db.can(op, cascade.Remote) {
		db.finalizeRemove(op)
		op.finish(outcomeSkipped)
		return
	}

	db.trace(op, "remote.remove")
	db.tiers.Remote.Remove(db.ctx, rec.key, func(res tier.RemoteResult) {
		db.exec.submit(func() { db.removeRemoteSettled(op, res) })
	})
}

func (db *Database) removeRemoteSettled(op *operation, res tier.RemoteResult) {
	switch {
	case res.OK():
		db.finalizeRemove(op)
		op.finish(outcomeOK)

	case res.Gone():
		db.finalizeRemove(op)
		op.finish(outcomeGone)

	case res.NoNetwork():
		db.offline(op, func() { db.removeFailed(op, res) })

	default:
		db.removeFailed(op, res)
	}
}

func (db *Database) removeFailed(op *operation, res tier.RemoteResult) {
	db.logger.Error().Err(res.Err).Str("key", op.rec.key).Int("status", res.Status).Msg("Remote removal failed")
	db.emit(events.EventRecordRemoveFailed, op.rec.key, errorMessage(res), nil)
	op.finish(outcomeFailed)
}

// finalizeRemove marks rec removed, announces it to other clients when a
// remote copy existed, releases its key and queues local cleanup.
func (db *Database) finalizeRemove(op *operation) {
	rec := op.rec
	wasSaved := rec.everSaved()
	rec.tombstone()
	rec.setStatus(types.StatusRemoved)
	db.release(rec)

	if wasSaved && db.can(op, cascade.Live) {
		db.publish(op, tier.LiveRemove, nil)
	}
	op.queue(db.newOperation(rec, RemoveNow, op.mask))
	db.emit(events.EventRecordRemoved, rec.key, "", nil)
}

func (db *Database) removeNow(op *operation) {
	rec := op.rec
	rec.tombstone()
	db.release(rec)

	settle := func(outcome string) {
		rec.mu.Lock()
		rec.local = nil
		rec.pendingDiff = nil
		rec.pendingBroadcast = nil
		rec.saved = nil
		rec.status = types.StatusRemoved
		rec.mu.Unlock()
		op.finish(outcome)
	}

	if db.cache == types.CacheNone || db.tiers.Local == nil {
		settle(outcomeSkipped)
		return
	}

	db.trace(op, "local.remove")
	db.tiers.Local.Remove(db.ctx, rec.key, func(res tier.LocalResult) {
		db.exec.submit(func() {
			if !res.OK() {
				db.logger.Warn().Err(res.Err).Str("key", rec.key).Msg("Local delete failed")
				settle(outcomeFailed)
				return
			}
			settle(outcomeOK)
		})
	})
}
