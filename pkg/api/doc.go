/*
Package api serves the operational HTTP endpoints of a running tiersync
client.

# Endpoints

	GET /health     liveness, with the tier component registry from pkg/metrics
	GET /ready      503 until local state is restored
	GET /databases  in-flight operations and record status counts per database
	GET /metrics    Prometheus exposition
	    /live       the live hub, when this process hosts one

An offline remote never fails /health or /ready. Offline operation is a
normal state for the client; suspended work resumes on reconnection.

# Usage

	hs := api.NewHealthServer(version, monitor, notes, tasks)
	hs.Handle("/live", hub)
	addr, err := hs.Start("127.0.0.1:9090")
	...
	n, err := notes.Load(ctx)
	hs.SetLoaded()
*/
package api
