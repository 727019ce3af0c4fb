/*
Package engine implements the per-record operation pipeline that reconciles
a record across the local cache, the remote service and the live channel.

# Pipelines

Every request starts a pipeline of stages on the record's chain:

	Save    SaveLocal -> SaveRemote -> SaveNow | RemoveCache
	Remove  RemoveLocal -> RemoveRemote -> RemoveNow
	Fetch   GetLocal -> GetRemote

Each stage calls at most one tier adapter and, when the adapter reports
back, either settles or attaches a follow-up stage. A cascade.Mask carried
by the request selects which tiers the stages may touch.

# Chain discipline

A record executes at most one operation at a time. Further requests are
queued behind it in FIFO order, except the remove stages: queuing one of
them discards every queued but not yet started operation (reported as
superseded) and takes its place.

Records are tombstoned as soon as their removal is decided. Every save and
fetch stage checks the tombstone before touching a tier, and a save that
lands remotely after the tombstone is not applied to the record's fields.

# Remote outcomes

	2xx        accepted
	409        server copy wins and is applied like a success
	404, 410   remote copy gone, the record converges to removed
	0          unreachable; if the connectivity monitor agrees the stage
	           is suspended and re-run once on the next online transition
	other      terminal for the attempt, signalled as a failure event

# Threading

All state changes of a Database run on its serial executor. Tier adapters
may complete on any goroutine; their callbacks are submitted back to the
executor. Connectivity probes run off the executor the same way. The
in-flight counter counts executing and suspended operations
and fires quiescence watchers each time it returns to zero.

	db := engine.NewDatabase("notes", tier.Set{Local: lt, Remote: rt, Live: lv}, monitor)
	rec, _ := db.Create(types.Fields{"id": 1, "name": "a"})
	_ = db.Save(rec, cascade.All)
	_ = db.WaitIdle(ctx)
*/
package engine
