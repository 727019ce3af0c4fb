package live

import (
	"sync"

	"github.com/cuemby/tiersync/pkg/metrics"
	"github.com/cuemby/tiersync/pkg/tier"
)

// Loopback is an in-process live channel shared by several endpoints.
// Delivery is synchronous on the publisher's goroutine.
type Loopback struct {
	mu        sync.RWMutex
	endpoints map[string]*Endpoint
}

func NewLoopback() *Loopback {
	return &Loopback{endpoints: make(map[string]*Endpoint)}
}

// Join returns the endpoint for origin, creating it on first use
func (l *Loopback) Join(origin string) *Endpoint {
	l.mu.Lock()
	defer l.mu.Unlock()

	if ep, ok := l.endpoints[origin]; ok {
		return ep
	}
	ep := &Endpoint{origin: origin, loop: l}
	l.endpoints[origin] = ep
	return ep
}

func (l *Loopback) broadcast(env Envelope) {
	l.mu.RLock()
	targets := make([]*Endpoint, 0, len(l.endpoints))
	for origin, ep := range l.endpoints {
		if origin != env.Origin {
			targets = append(targets, ep)
		}
	}
	l.mu.RUnlock()

	for _, ep := range targets {
		metrics.LiveMessagesTotal.WithLabelValues("in").Inc()
		ep.subs.deliver(env.Message)
	}
}

// Endpoint is one origin's view of a Loopback
type Endpoint struct {
	origin string
	loop   *Loopback
	subs   subscribers
}

var _ tier.Live = (*Endpoint)(nil)

func (e *Endpoint) Origin() string {
	return e.origin
}

func (e *Endpoint) Publish(msg tier.LiveMessage) {
	metrics.LiveMessagesTotal.WithLabelValues("out").Inc()
	e.loop.broadcast(NewEnvelope(e.origin, msg))
}

func (e *Endpoint) Subscribe(fn func(tier.LiveMessage)) func() {
	return e.subs.add(fn)
}
