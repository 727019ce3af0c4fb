package engine

import (
	"github.com/cuemby/tiersync/pkg/cascade"
	"github.com/cuemby/tiersync/pkg/metrics"
	"github.com/cuemby/tiersync/pkg/types"
)

// can reports whether op may touch the tier selected by bit
func (db *Database) can(op *operation, bit cascade.Mask) bool {
	if !cascade.CanCascade(op.mask, bit) {
		return false
	}
	switch bit {
	case cascade.Local:
		return db.tiers.Local != nil && db.cache != types.CacheNone
	case cascade.Remote:
		return db.tiers.Remote != nil
	case cascade.Live:
		return db.tiers.Live != nil
	}
	return true
}

// offline handles a remote call that reported no network. The monitor is
// re-sampled on its own goroutine so a slow probe never holds the executor;
// once it answers, op is parked until the next online transition, or
// settled through fail when the remote turns out to be reachable.
func (db *Database) offline(op *operation, fail func()) {
	if db.monitor == nil {
		fail()
		return
	}
	db.trace(op, "probe")
	db.checks.Add(1)
	go func() {
		defer db.checks.Done()
		online := db.monitor.CheckStatus(db.ctx)
		db.exec.submit(func() {
			if op.settled {
				return
			}
			if online {
				fail()
				return
			}
			db.suspend(op)
		})
	}()
}

// suspend parks op until the next online transition. Must run on the
// executor.
func (db *Database) suspend(op *operation) {
	sub := db.monitor.OnOnline(func() {
		db.exec.submit(func() { db.resume(op) })
	})
	db.suspended[op] = sub
	db.trace(op, "suspend")
	db.logger.Info().
		Str("key", op.rec.key).
		Str("stage", op.stage.String()).
		Msg("Remote unreachable, suspending until online")

	// The monitor may have flipped between the probe and the subscription.
	if db.monitor.Online() {
		sub.Cancel()
		db.exec.submit(func() { db.resume(op) })
	}
}

// resume re-runs a suspended stage. Must run on the executor.
func (db *Database) resume(op *operation) {
	if _, ok := db.suspended[op]; !ok || op.settled {
		return
	}
	delete(db.suspended, op)
	metrics.OfflineResumes.WithLabelValues(db.name, op.stage.String()).Inc()
	db.trace(op, "resume")
	db.logger.Info().
		Str("key", op.rec.key).
		Str("stage", op.stage.String()).
		Msg("Back online, resuming stage")
	op.run()
}
