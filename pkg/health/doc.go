/*
Package health provides reachability probes for the remote service.

A Checker answers one question: can this client reach the remote right
now? The connectivity monitor samples a Checker on demand (when a remote
call reports no network) and on an interval, folding each Result into a
Status that applies the consecutive failure threshold.

# Checkers

	┌──────────────────────────────────────────────┐
	│              Checker interface               │
	│  • Check(ctx) Result                         │
	│  • Type() CheckType                          │
	└──────┬──────────────┬──────────────┬─────────┘
	       ▼              ▼              ▼
	  HTTPChecker     TCPChecker    StaticChecker
	  HEAD probeURL   dial host     fixed, switchable

HTTPChecker accepts any status code by default: a response of any kind
proves the network path. Narrow it with WithStatusRange when a load
balancer answers for a dead backend.

TCPChecker dials an address and closes the connection. tiersync uses it
against the remote URL's host when no probe is configured.

StaticChecker reports a fixed value. It stands in when no remote is
configured and drives connectivity in tests.

# Thresholds

	cfg := health.Config{Interval: 15 * time.Second, Timeout: 2 * time.Second, Retries: 3}
	status := health.NewStatus(true)
	status.Update(checker.Check(ctx), cfg)

A single success marks the status healthy again. Retries consecutive
failures are needed to mark it unhealthy.

# Usage

	probe := health.NewHTTPChecker("https://api.example.com/healthz").
		WithTimeout(2 * time.Second).
		WithHeader("Authorization", "Bearer "+token)

	result := probe.Check(ctx)
	if !result.Healthy {
		fmt.Println(result.Message)
	}
*/
package health
