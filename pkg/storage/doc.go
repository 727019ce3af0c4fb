/*
Package storage provides the local durable cache tier.

Entries are JSON documents namespaced by database and keyed by record key.
Two interchangeable backends implement Store:

	BoltStore    <dataDir>/tiersync.db      one bucket per database
	SQLiteStore  <dataDir>/tiersync.sqlite  single entries table

Open selects a backend by driver name ("bolt" or "sqlite").

# Local snapshot layout

A stored entry holds the record's current fields plus two reserved keys:

	$saved   the last remotely confirmed copy, nested
	$status  "remove_pending" while a remove has not reached the remote tier

The engine writes and reads these keys; the store treats entries as opaque.

# Asynchronous adapter

Tier wraps one namespace of a Store and implements tier.Local. Each call runs
on its own goroutine, records its latency in
tiersync_local_request_duration_seconds and reports exactly once through the
supplied callback:

	lt := storage.NewTier(store, "notes")
	lt.Put(ctx, "1", entry, func(r tier.LocalResult) {
		if !r.OK() {
			// handle r.Err
		}
	})

A Get on a missing key reports an error wrapping ErrNotFound.
*/
package storage
