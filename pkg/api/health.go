package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"sort"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/tiersync/pkg/log"
	"github.com/cuemby/tiersync/pkg/metrics"
	"github.com/cuemby/tiersync/pkg/types"
)

// Database is the view of an engine database the server reports on
type Database interface {
	Name() string
	CachePolicy() types.CachePolicy
	InFlight() int
	StatusCounts() map[types.Status]int
}

// Connectivity reports the last known remote reachability
type Connectivity interface {
	Online() bool
}

// HealthServer provides the operational HTTP endpoints of a running client
type HealthServer struct {
	mux       *http.ServeMux
	databases []Database
	monitor   Connectivity
	version   string
	loaded    atomic.Bool
	server    *http.Server
	logger    zerolog.Logger
}

// NewHealthServer creates the server. monitor may be nil when no remote is
// configured.
func NewHealthServer(version string, monitor Connectivity, databases ...Database) *HealthServer {
	mux := http.NewServeMux()
	hs := &HealthServer{
		mux:       mux,
		databases: databases,
		monitor:   monitor,
		version:   version,
		logger:    log.WithComponent("api"),
	}

	mux.HandleFunc("/health", hs.healthHandler)
	mux.HandleFunc("/ready", hs.readyHandler)
	mux.HandleFunc("/databases", hs.databasesHandler)
	mux.Handle("/metrics", metrics.Handler())

	return hs
}

// Handle mounts an extra handler, such as the live hub
func (hs *HealthServer) Handle(pattern string, h http.Handler) {
	hs.mux.Handle(pattern, h)
}

// SetLoaded marks local state as restored; /ready fails until then
func (hs *HealthServer) SetLoaded() {
	hs.loaded.Store(true)
}

// Start serves on addr until Stop. It returns once the listener is bound.
func (hs *HealthServer) Start(addr string) (net.Addr, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen: %w", err)
	}

	hs.server = &http.Server{
		Handler:      hs.mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		if err := hs.server.Serve(lis); err != nil && err != http.ErrServerClosed {
			hs.logger.Error().Err(err).Msg("HTTP server stopped")
		}
	}()

	hs.logger.Info().Str("addr", lis.Addr().String()).Msg("HTTP server listening")
	return lis.Addr(), nil
}

// Stop shuts the server down, waiting up to ctx for open requests
func (hs *HealthServer) Stop(ctx context.Context) error {
	if hs.server == nil {
		return nil
	}
	return hs.server.Shutdown(ctx)
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status     string            `json:"status"`
	Timestamp  time.Time         `json:"timestamp"`
	Version    string            `json:"version,omitempty"`
	Components map[string]string `json:"components,omitempty"`
}

// ReadyResponse represents the readiness check response
type ReadyResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
	Message   string            `json:"message,omitempty"`
}

// DatabaseResponse is one entry of /databases
type DatabaseResponse struct {
	Name     string         `json:"name"`
	Cache    string         `json:"cache"`
	InFlight int            `json:"inFlight"`
	Records  map[string]int `json:"records"`
}

// healthHandler is a liveness check. Tier components only degrade it:
// an offline remote is an expected state.
func (hs *HealthServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	status := metrics.GetHealth()
	response := HealthResponse{
		Status:     "healthy",
		Timestamp:  time.Now(),
		Version:    hs.version,
		Components: status.Components,
	}
	if status.Status != metrics.StatusHealthy {
		response.Status = "degraded"
	}

	writeJSON(w, http.StatusOK, response)
}

// readyHandler reports whether local state has been restored and every
// critical tier component is healthy
func (hs *HealthServer) readyHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	checks := make(map[string]string)
	ready := true
	var message string

	if hs.loaded.Load() {
		checks["local"] = "loaded"
	} else {
		checks["local"] = "loading"
		ready = false
		message = "Restoring local state"
	}

	switch {
	case hs.monitor == nil:
		checks["remote"] = "not configured"
	case hs.monitor.Online():
		checks["remote"] = "online"
	default:
		checks["remote"] = "offline"
	}

	components := metrics.GetReadiness()
	checks["components"] = components.Status
	if components.Status != metrics.StatusReady {
		ready = false
		if message == "" {
			message = components.Message
		}
	}

	if len(hs.databases) == 0 {
		checks["databases"] = "none"
		ready = false
		if message == "" {
			message = "No databases configured"
		}
	} else {
		checks["databases"] = fmt.Sprintf("%d", len(hs.databases))
	}

	status := "ready"
	statusCode := http.StatusOK
	if !ready {
		status = "not ready"
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, statusCode, ReadyResponse{
		Status:    status,
		Timestamp: time.Now(),
		Checks:    checks,
		Message:   message,
	})
}

func (hs *HealthServer) databasesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	out := make([]DatabaseResponse, 0, len(hs.databases))
	for _, db := range hs.databases {
		counts := make(map[string]int)
		for status, n := range db.StatusCounts() {
			counts[string(status)] = n
		}
		out = append(out, DatabaseResponse{
			Name:     db.Name(),
			Cache:    string(db.CachePolicy()),
			InFlight: db.InFlight(),
			Records:  counts,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })

	writeJSON(w, http.StatusOK, out)
}

// GetHandler returns the HTTP handler for embedding in other servers
func (hs *HealthServer) GetHandler() http.Handler {
	return hs.mux
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
