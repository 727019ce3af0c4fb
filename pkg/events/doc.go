/*
Package events provides an in-memory event broker for tiersync signals.

The engine and the connectivity monitor publish events as records settle,
fail, or are superseded, and as the remote comes and goes. Subscribers
receive every event on a buffered channel and filter by Type and Database.

# Architecture

	┌──────────────────── EVENT BROKER ─────────────────────┐
	│                                                        │
	│  engine executor ─┐                                   │
	│  monitor ─────────┼─► Publish ─► eventCh (256)        │
	│                   │     never blocks; full = drop     │
	│                                  │                     │
	│                           broadcast loop              │
	│                                  │                     │
	│              ┌───────────────────┼────────────┐       │
	│              ▼                   ▼            ▼       │
	│         Subscriber (64)    Subscriber    Subscriber   │
	│         skip when full                                │
	└────────────────────────────────────────────────────────┘

Publish never blocks. The engine publishes from its executor.

# Event Types

Record events carry Database and Key:

	record.saved           the remote acknowledged a save (Data: saved snapshot)
	record.save_failed     terminal remote save failure (Data: the lost diff)
	record.removed         the record is final-removed
	record.remove_failed   terminal remote removal failure
	record.fetched         remote or live data merged into the record

Engine events:

	operation.superseded   a queued stage was discarded by a removal
	                       (Message: the stage name)
	database.quiescent     no operation is executing or suspended

Connectivity events:

	connectivity.online
	connectivity.offline

# Usage

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	db := engine.NewDatabase("notes", tiers, monitor, engine.WithBroker(broker))

	for ev := range sub {
		if ev.Type == events.EventRecordSaveFailed {
			log.Printf("%s/%s: %s", ev.Database, ev.Key, ev.Message)
		}
	}

# Delivery Guarantees

None beyond best effort. Events are dropped when the broker or a subscriber
buffer is full and are lost on exit. Record status and the local tier are
the durable state; events are for observation and tests.
*/
package events
