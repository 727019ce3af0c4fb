package health

import (
	"context"
	"sync/atomic"
	"time"
)

// CheckType represents the type of reachability probe
type CheckType string

const (
	CheckTypeHTTP   CheckType = "http"
	CheckTypeTCP    CheckType = "tcp"
	CheckTypeStatic CheckType = "static"
)

// Result represents the outcome of a probe
type Result struct {
	Healthy   bool
	Message   string
	CheckedAt time.Time
	Duration  time.Duration
}

// Checker samples whether the remote service can be reached
type Checker interface {
	// Check performs the probe and returns the result
	Check(ctx context.Context) Result

	// Type returns the type of probe
	Type() CheckType
}

// Config contains common configuration for probing
type Config struct {
	// Interval is the time between background probes
	Interval time.Duration

	// Timeout bounds a single probe
	Timeout time.Duration

	// Retries is the number of consecutive failures before declaring the
	// remote unreachable
	Retries int
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		Interval: 15 * time.Second,
		Timeout:  2 * time.Second,
		Retries:  1,
	}
}

// Status tracks consecutive probe outcomes
type Status struct {
	ConsecutiveFailures  int
	ConsecutiveSuccesses int
	LastCheck            time.Time
	LastResult           Result
	Healthy              bool
}

// NewStatus creates a Status seeded with the given reachability
func NewStatus(healthy bool) *Status {
	return &Status{Healthy: healthy}
}

// Update folds a new probe result into the status
func (s *Status) Update(result Result, config Config) {
	s.LastCheck = result.CheckedAt
	s.LastResult = result

	if result.Healthy {
		s.ConsecutiveSuccesses++
		s.ConsecutiveFailures = 0
		s.Healthy = true
		return
	}

	s.ConsecutiveFailures++
	s.ConsecutiveSuccesses = 0

	retries := config.Retries
	if retries < 1 {
		retries = 1
	}
	if s.ConsecutiveFailures >= retries {
		s.Healthy = false
	}
}

// StaticChecker reports a fixed, switchable reachability. It stands in for
// the platform primitive when no probe is configured and in tests.
type StaticChecker struct {
	online atomic.Bool
}

// NewStaticChecker creates a StaticChecker
func NewStaticChecker(online bool) *StaticChecker {
	c := &StaticChecker{}
	c.online.Store(online)
	return c
}

// Set changes the reported reachability
func (c *StaticChecker) Set(online bool) {
	c.online.Store(online)
}

// Check returns the current value
func (c *StaticChecker) Check(ctx context.Context) Result {
	msg := "offline"
	if c.online.Load() {
		msg = "online"
	}
	return Result{Healthy: c.online.Load(), Message: msg, CheckedAt: time.Now()}
}

// Type returns the probe type
func (c *StaticChecker) Type() CheckType {
	return CheckTypeStatic
}
