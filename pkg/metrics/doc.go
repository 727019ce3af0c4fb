/*
Package metrics provides Prometheus metrics and the component health
registry for tiersync.

Every collector is registered on the default Prometheus registry at package
init and exposed through Handler. The health registry is a separate,
process-wide map of named components (local, remote, live) that tier
adapters update as calls succeed or fail.

# Architecture

	┌─────────────────────── METRICS ───────────────────────┐
	│                                                        │
	│  engine ──► OperationsInFlight / OperationsTotal      │
	│             OperationsSuperseded / OfflineResumes     │
	│                                                        │
	│  storage ─► LocalRequestDuration{method}              │
	│  remote ──► RemoteRequestDuration{method}             │
	│             RemoteRequestsTotal{method,status}        │
	│  live ────► LiveMessagesTotal{direction}              │
	│                                                        │
	│  connectivity ─► Online / ConnectivityTransitions     │
	│                                                        │
	│  Collector ─► RecordsTotal{database,status}           │
	│      (samples every database on an interval)          │
	│                                                        │
	│  /metrics ◄── Handler()                               │
	│  GetHealth()     folds the component registry         │
	│  GetReadiness()  checks the critical components       │
	└────────────────────────────────────────────────────────┘

# Metric Reference

Engine:

	tiersync_operations_in_flight{database}
	    Operations executing or suspended offline. Zero means the database
	    is quiescent.

	tiersync_operations_total{database,stage,outcome}
	    Settled operations. outcome is ok, skipped, failed, conflict or gone.

	tiersync_operations_superseded_total{database,stage}
	    Queued operations discarded because a removal was queued after them.

	tiersync_offline_resumes_total{database,stage}
	    Remote stages re-run after connectivity returned.

	tiersync_records_total{database,status}
	    Active records per status, sampled by Collector.

Tiers:

	tiersync_local_request_duration_seconds{method}     put, get, remove, all
	tiersync_remote_request_duration_seconds{method}    POST, PATCH, DELETE, GET
	tiersync_remote_requests_total{method,status}       status 0 is no network
	tiersync_live_messages_total{direction}             in, out, dropped

Connectivity:

	tiersync_online                                     1 online, 0 offline
	tiersync_connectivity_transitions_total{state}

# Usage

Timing a tier call:

	timer := metrics.NewTimer()
	err := store.Put(database, key, entry)
	timer.ObserveDurationVec(metrics.LocalRequestDuration, "put")
	metrics.UpdateComponent(metrics.ComponentLocal, err == nil, errString(err))

Sampling record status:

	collector := metrics.NewCollector(15*time.Second, notes, tasks)
	collector.Start()
	defer collector.Stop()

Serving:

	mux.Handle("/metrics", metrics.Handler())

pkg/api serves GetHealth and GetReadiness on /health and /ready.

# Useful Queries

	# operations stuck waiting for the network
	sum by (database) (tiersync_operations_in_flight) and on() tiersync_online == 0

	# remote error rate
	sum(rate(tiersync_remote_requests_total{status!~"2.."}[5m]))
	  / sum(rate(tiersync_remote_requests_total[5m]))

	# p95 remote latency
	histogram_quantile(0.95, rate(tiersync_remote_request_duration_seconds_bucket[5m]))

# Health Registry

Components are healthy until an adapter reports otherwise. SetCritical marks
components whose failure makes the whole client unhealthy (the local store
in tiersync run); any other failing component only degrades it. The remote
component going unhealthy while offline is expected.
*/
package metrics
