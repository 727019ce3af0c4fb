package metrics

import (
	"sort"
	"sync"
	"time"
)

// Component names registered by tiersync
const (
	ComponentLocal  = "local"
	ComponentRemote = "remote"
	ComponentLive   = "live"
)

// Overall states reported by GetHealth and GetReadiness
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
	StatusReady     = "ready"
	StatusNotReady  = "not_ready"
)

// HealthStatus summarizes the component registry
type HealthStatus struct {
	Status     string            `json:"status"`
	Timestamp  time.Time         `json:"timestamp"`
	Components map[string]string `json:"components,omitempty"`
	Message    string            `json:"message,omitempty"`
	Version    string            `json:"version,omitempty"`
	Uptime     string            `json:"uptime,omitempty"`
}

// ComponentHealth is the last report of one component
type ComponentHealth struct {
	Healthy bool
	Message string
	Updated time.Time
}

type registry struct {
	mu         sync.RWMutex
	components map[string]ComponentHealth
	critical   map[string]bool
	started    time.Time
	version    string
}

var components = newRegistry()

func newRegistry() *registry {
	return &registry{
		components: make(map[string]ComponentHealth),
		critical:   map[string]bool{ComponentLocal: true},
		started:    time.Now(),
	}
}

// SetVersion sets the version string for health responses
func SetVersion(version string) {
	components.mu.Lock()
	defer components.mu.Unlock()
	components.version = version
}

// SetCritical replaces the components required for readiness. The remote
// tier is not critical by default: a sync client stays ready offline.
func SetCritical(names ...string) {
	components.mu.Lock()
	defer components.mu.Unlock()
	components.critical = make(map[string]bool, len(names))
	for _, name := range names {
		components.critical[name] = true
	}
}

// UpdateComponent records the latest health report of a component
func UpdateComponent(name string, healthy bool, message string) {
	components.mu.Lock()
	defer components.mu.Unlock()
	components.components[name] = ComponentHealth{
		Healthy: healthy,
		Message: message,
		Updated: time.Now(),
	}
}

// Component returns the last report for name
func Component(name string) (ComponentHealth, bool) {
	components.mu.RLock()
	defer components.mu.RUnlock()
	c, ok := components.components[name]
	return c, ok
}

// GetHealth folds every component into one state. A failing critical
// component makes the client unhealthy; any other only degrades it.
func GetHealth() HealthStatus {
	components.mu.RLock()
	defer components.mu.RUnlock()

	out := components.status(StatusHealthy)
	for name, c := range components.components {
		if c.Healthy {
			out.Components[name] = StatusHealthy
			continue
		}
		out.Components[name] = StatusUnhealthy + ": " + c.Message
		switch {
		case components.critical[name]:
			out.Status = StatusUnhealthy
		case out.Status == StatusHealthy:
			out.Status = StatusDegraded
		}
	}
	return out
}

// GetReadiness reports whether every critical component has reported
// healthy at least once and is still healthy.
func GetReadiness() HealthStatus {
	components.mu.RLock()
	defer components.mu.RUnlock()

	names := make([]string, 0, len(components.critical))
	for name := range components.critical {
		names = append(names, name)
	}
	sort.Strings(names)

	out := components.status(StatusReady)
	for _, name := range names {
		c, ok := components.components[name]
		switch {
		case !ok:
			out.Components[name] = "not registered"
		case !c.Healthy:
			out.Components[name] = "not ready: " + c.Message
		default:
			out.Components[name] = StatusReady
			continue
		}
		if out.Status == StatusReady {
			out.Status = StatusNotReady
			out.Message = "waiting for " + name
		}
	}
	return out
}

// status must be called with the read lock held
func (r *registry) status(initial string) HealthStatus {
	return HealthStatus{
		Status:     initial,
		Timestamp:  time.Now(),
		Components: make(map[string]string),
		Version:    r.version,
		Uptime:     time.Since(r.started).Round(time.Second).String(),
	}
}
