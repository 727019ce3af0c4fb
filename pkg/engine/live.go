package engine

import (
	"github.com/cuemby/tiersync/pkg/cascade"
	"github.com/cuemby/tiersync/pkg/events"
	"github.com/cuemby/tiersync/pkg/tier"
	"github.com/cuemby/tiersync/pkg/types"
)

// receiveLive is the live tier subscription. Messages for other databases
// are ignored; the transport already drops this client's own messages.
func (db *Database) receiveLive(msg tier.LiveMessage) {
	if msg.Database != db.name || msg.Key == "" {
		return
	}
	db.exec.submit(func() { db.applyLive(msg) })
}

// applyLive must run on the executor
func (db *Database) applyLive(msg tier.LiveMessage) {
	logger := db.logger.With().Str("key", msg.Key).Str("op", string(msg.Op)).Logger()

	switch msg.Op {
	case tier.LiveSave:
		rec, ok := db.Get(msg.Key)
		if !ok {
			rec = newRecord(db, msg.Key, nil)
			if !db.adopt(rec) {
				return
			}
		}
		if rec.Tombstoned() {
			logger.Debug().Msg("Ignoring live save for tombstoned record")
			return
		}
		rec.applyRemote(msg.Data)
		if db.cache == types.CacheAll {
			rec.snapshotLocal()
			db.addOperation(rec, SaveNow, cascade.Local)
		}
		logger.Debug().Msg("Applied live save")
		db.emit(events.EventRecordFetched, msg.Key, "live", msg.Data.Without())

	case tier.LiveRemove:
		rec, ok := db.Get(msg.Key)
		if !ok || !rec.tombstone() {
			return
		}
		rec.setStatus(types.StatusRemoved)
		db.addOperation(rec, RemoveNow, cascade.Local)
		logger.Debug().Msg("Applied live removal")
		db.emit(events.EventRecordRemoved, msg.Key, "live", nil)

	default:
		logger.Warn().Msg("Unknown live operation")
	}
}
