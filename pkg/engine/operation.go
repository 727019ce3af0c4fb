package engine

import (
	"github.com/oklog/ulid/v2"

	"github.com/cuemby/tiersync/pkg/cascade"
	"github.com/cuemby/tiersync/pkg/events"
	"github.com/cuemby/tiersync/pkg/metrics"
)

// Outcomes recorded when an operation settles
const (
	outcomeOK       = "ok"
	outcomeSkipped  = "skipped"
	outcomeFailed   = "failed"
	outcomeConflict = "conflict"
	outcomeGone     = "gone"
)

// operation is one node of a record's chain. Every field is owned by the
// database executor.
type operation struct {
	id    string
	stage Stage
	mask  cascade.Mask
	rec   *Record
	db    *Database
	next  *operation

	executed bool
	settled  bool
}

func (db *Database) newOperation(rec *Record, stage Stage, mask cascade.Mask) *operation {
	return &operation{
		id:    ulid.Make().String(),
		stage: stage,
		mask:  mask,
		rec:   rec,
		db:    db,
	}
}

func (op *operation) interrupts() bool {
	return op.stage.Interrupts()
}

// execute runs the operation once, counting it as in flight
func (op *operation) execute() {
	if op.executed {
		return
	}
	op.executed = true
	op.db.started()
	op.db.trace(op, "execute")
	op.db.logger.Debug().
		Str("key", op.rec.Key()).
		Str("stage", op.stage.String()).
		Str("mask", op.mask.String()).
		Str("op", op.id).
		Msg("Running stage")
	op.run()
}

func (op *operation) run() {
	db := op.db
	switch op.stage {
	case SaveLocal:
		db.saveLocal(op)
	case SaveRemote:
		db.saveRemote(op)
	case SaveNow:
		db.saveNow(op)
	case RemoveCache:
		db.removeCache(op)
	case RemoveLocal:
		db.removeLocal(op)
	case RemoveRemote:
		db.removeRemote(op)
	case RemoveNow:
		db.removeNow(op)
	case GetLocal:
		db.getLocal(op)
	case GetRemote:
		db.getRemote(op)
	default:
		op.finish(outcomeSkipped)
	}
}

// finish settles the operation. The successor is executed before the
// in-flight counter drops so the count never passes through zero while the
// chain still has work.
func (op *operation) finish(outcome string) {
	if op.settled {
		return
	}
	op.settled = true
	metrics.OperationsTotal.WithLabelValues(op.db.name, op.stage.String(), outcome).Inc()
	op.db.trace(op, "settle "+outcome)

	next := op.next
	op.next = nil
	op.rec.setHead(next)
	if next != nil {
		next.execute()
	}
	op.db.finished()
}

// queue appends n to the end of the chain, or replaces every not yet started
// successor when n interrupts.
func (op *operation) queue(n *operation) {
	if n.interrupts() {
		op.db.supersede(op.next)
		op.next = n
		return
	}
	tail := op
	for tail.next != nil {
		tail = tail.next
	}
	tail.next = n
}

// tryNext attaches stage as the successor only when there is none
func (op *operation) tryNext(stage Stage) bool {
	if op.next != nil {
		return false
	}
	op.next = op.db.newOperation(op.rec, stage, op.mask)
	return true
}

// insertNext splices stage directly after op, ahead of anything queued
func (op *operation) insertNext(stage Stage) {
	n := op.db.newOperation(op.rec, stage, op.mask)
	n.next = op.next
	op.next = n
}

// supersede reports every operation of a discarded chain
func (db *Database) supersede(op *operation) {
	for ; op != nil; op = op.next {
		metrics.OperationsSuperseded.WithLabelValues(db.name, op.stage.String()).Inc()
		db.trace(op, "superseded")
		db.logger.Debug().
			Str("key", op.rec.Key()).
			Str("stage", op.stage.String()).
			Str("op", op.id).
			Msg("Queued operation superseded")
		db.emit(events.EventOperationSuperseded, op.rec.Key(), op.stage.String(), nil)
	}
}

// addOperation is the single entry point into a record's chain. Must run on
// the executor.
func (db *Database) addOperation(rec *Record, stage Stage, mask cascade.Mask) {
	op := db.newOperation(rec, stage, mask)
	if head := rec.getHead(); head != nil {
		db.trace(op, "queue")
		head.queue(op)
		return
	}
	rec.setHead(op)
	op.execute()
}
