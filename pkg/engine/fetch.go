package engine

import (
	"errors"

	"github.com/cuemby/tiersync/pkg/cascade"
	"github.com/cuemby/tiersync/pkg/events"
	"github.com/cuemby/tiersync/pkg/storage"
	"github.com/cuemby/tiersync/pkg/tier"
	"github.com/cuemby/tiersync/pkg/types"
)

func (db *Database) getLocal(op *operation) {
	rec := op.rec
	if rec.Tombstoned() {
		op.finish(outcomeSkipped)
		return
	}

	settle := func(outcome string) {
		if db.can(op, cascade.Remote) && !rec.Tombstoned() {
			op.queue(db.newOperation(rec, GetRemote, op.mask))
		}
		op.finish(outcome)
	}

	if db.cache != types.CacheAll || !db.can(op, cascade.Local) {
		settle(outcomeSkipped)
		return
	}

	db.trace(op, "local.get")
	db.tiers.Local.Get(db.ctx, rec.key, func(res tier.LocalResult) {
		db.exec.submit(func() {
			switch {
			case res.OK():
				rec.applyLocal(res.Fields)
				settle(outcomeOK)
			case errors.Is(res.Err, storage.ErrNotFound):
				settle(outcomeSkipped)
			default:
				db.logger.Warn().Err(res.Err).Str("key", rec.key).Msg("Local read failed")
				settle(outcomeFailed)
			}
		})
	})
}

func (db *Database) getRemote(op *operation) {
	rec := op.rec
	if rec.Tombstoned() || !db.can(op, cascade.Remote) {
		op.finish(outcomeSkipped)
		return
	}

	db.trace(op, "remote.get")
	db.tiers.Remote.Get(db.ctx, rec.key, func(res tier.RemoteResult) {
		db.exec.submit(func() { db.getRemoteSettled(op, res) })
	})
}

func (db *Database) getRemoteSettled(op *operation, res tier.RemoteResult) {
	rec := op.rec
	switch {
	case rec.Tombstoned():
		op.finish(outcomeSkipped)

	case res.OK():
		rec.applyRemote(res.Data)
		if db.cache == types.CacheAll {
			rec.snapshotLocal()
			op.insertNext(SaveNow)
		}
		db.emit(events.EventRecordFetched, rec.key, "", res.Data.Without())
		op.finish(outcomeOK)

	case res.Gone():
		db.logger.Info().Str("key", rec.key).Int("status", res.Status).Msg("Remote copy gone, removing locally")
		rec.tombstone()
		rec.setStatus(types.StatusRemoved)
		db.release(rec)
		op.insertNext(RemoveNow)
		db.emit(events.EventRecordRemoved, rec.key, "remote copy gone", nil)
		op.finish(outcomeGone)

	default:
		db.logger.Warn().Err(res.Err).Str("key", rec.key).Int("status", res.Status).Msg("Remote fetch failed")
		op.finish(outcomeFailed)
	}
}
