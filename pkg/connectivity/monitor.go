// Package connectivity tracks whether the remote service is reachable and
// re-arms suspended remote operations when it becomes reachable again.
package connectivity

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/tiersync/pkg/events"
	"github.com/cuemby/tiersync/pkg/health"
	"github.com/cuemby/tiersync/pkg/log"
	"github.com/cuemby/tiersync/pkg/metrics"
)

// Subscription is a one-shot registration for the next online transition
type Subscription struct {
	m  *Monitor
	id uint64
}

// Cancel removes the subscription if it has not fired yet
func (s *Subscription) Cancel() {
	if s == nil || s.m == nil {
		return
	}
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	delete(s.m.onOnline, s.id)
}

// Monitor holds the online/offline flag. It is owned by whoever builds the
// engine and passed to every database that needs it.
type Monitor struct {
	probe  health.Checker
	config health.Config
	broker *events.Broker
	logger zerolog.Logger

	mu       sync.Mutex
	status   *health.Status
	nextID   uint64
	onOnline map[uint64]func()

	// checkMu serializes probing so transitions fire in order
	checkMu sync.Mutex

	stopCh   chan struct{}
	stopOnce sync.Once
}

// Option configures a Monitor
type Option func(*Monitor)

// WithConfig sets probe interval, timeout and failure threshold
func WithConfig(cfg health.Config) Option {
	return func(m *Monitor) {
		m.config = cfg
	}
}

// WithBroker publishes connectivity transitions as events
func WithBroker(b *events.Broker) Option {
	return func(m *Monitor) {
		m.broker = b
	}
}

// NewMonitor creates a monitor seeded by one probe sample
func NewMonitor(ctx context.Context, probe health.Checker, opts ...Option) *Monitor {
	m := &Monitor{
		probe:    probe,
		config:   health.DefaultConfig(),
		logger:   log.WithComponent("connectivity"),
		onOnline: make(map[uint64]func()),
		stopCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}

	result := m.sample(ctx)
	m.status = health.NewStatus(result.Healthy)
	m.status.Update(result, m.config)
	m.report(m.status.Healthy, result.Message)

	return m
}

// Online returns the last known state without probing
func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status.Healthy
}

// CheckStatus re-samples the probe, fires transition signals and returns
// the resulting state. Online subscribers run after the probe lock is
// released, so they may call CheckStatus themselves.
func (m *Monitor) CheckStatus(ctx context.Context) bool {
	now, fire := m.check(ctx)
	for _, fn := range fire {
		fn()
	}
	return now
}

func (m *Monitor) check(ctx context.Context) (bool, []func()) {
	m.checkMu.Lock()
	defer m.checkMu.Unlock()

	result := m.sample(ctx)

	m.mu.Lock()
	was := m.status.Healthy
	m.status.Update(result, m.config)
	now := m.status.Healthy

	var fire []func()
	if !was && now {
		fire = make([]func(), 0, len(m.onOnline))
		for id, fn := range m.onOnline {
			fire = append(fire, fn)
			delete(m.onOnline, id)
		}
	}
	m.mu.Unlock()

	if was != now {
		m.transition(now, result.Message)
	}
	return now, fire
}

// OnOnline registers fn to run once on the next offline-to-online
// transition. Callbacks run outside the monitor lock.
func (m *Monitor) OnOnline(fn func()) *Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	m.onOnline[m.nextID] = fn
	return &Subscription{m: m, id: m.nextID}
}

// Pending returns the number of subscriptions waiting for the next transition
func (m *Monitor) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.onOnline)
}

// Start begins probing in the background
func (m *Monitor) Start(ctx context.Context) {
	go m.run(ctx)
}

// Stop stops background probing
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

func (m *Monitor) run(ctx context.Context) {
	interval := m.config.Interval
	if interval <= 0 {
		interval = health.DefaultConfig().Interval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.CheckStatus(ctx)
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		}
	}
}

func (m *Monitor) sample(ctx context.Context) health.Result {
	if m.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.config.Timeout)
		defer cancel()
	}
	return m.probe.Check(ctx)
}

func (m *Monitor) transition(online bool, message string) {
	state := "offline"
	eventType := events.EventOffline
	if online {
		state = "online"
		eventType = events.EventOnline
		m.logger.Info().Str("probe", message).Msg("remote service reachable")
	} else {
		m.logger.Info().Str("probe", message).Msg("remote service unreachable")
	}

	metrics.ConnectivityTransitions.WithLabelValues(state).Inc()
	m.report(online, message)

	if m.broker != nil {
		m.broker.Publish(&events.Event{Type: eventType, Message: message})
	}
}

func (m *Monitor) report(online bool, message string) {
	if online {
		metrics.Online.Set(1)
	} else {
		metrics.Online.Set(0)
	}
	metrics.UpdateComponent(metrics.ComponentRemote, online, message)
}
