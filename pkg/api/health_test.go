package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/tiersync/pkg/metrics"
	"github.com/cuemby/tiersync/pkg/types"
)

type stubDatabase struct {
	name     string
	inflight int
	counts   map[types.Status]int
}

func (s stubDatabase) Name() string                       { return s.name }
func (s stubDatabase) CachePolicy() types.CachePolicy     { return types.CacheAll }
func (s stubDatabase) InFlight() int                      { return s.inflight }
func (s stubDatabase) StatusCounts() map[types.Status]int { return s.counts }

type stubMonitor bool

func (m stubMonitor) Online() bool { return bool(m) }

// TestHealthHandler tests the /health endpoint
func TestHealthHandler(t *testing.T) {
	hs := NewHealthServer("1.0.0", nil)

	tests := []struct {
		name           string
		method         string
		expectedStatus int
	}{
		{name: "GET request succeeds", method: http.MethodGet, expectedStatus: http.StatusOK},
		{name: "POST request fails", method: http.MethodPost, expectedStatus: http.StatusMethodNotAllowed},
		{name: "DELETE request fails", method: http.MethodDelete, expectedStatus: http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/health", nil)
			w := httptest.NewRecorder()

			hs.healthHandler(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)

			if tt.expectedStatus == http.StatusOK {
				var response HealthResponse
				require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
				assert.Contains(t, []string{"healthy", "degraded"}, response.Status)
				assert.Equal(t, "1.0.0", response.Version)
				assert.NotZero(t, response.Timestamp)
			}
		})
	}
}

func TestReadyHandler(t *testing.T) {
	tests := []struct {
		name       string
		monitor    Connectivity
		databases  []Database
		loaded     bool
		wantCode   int
		wantChecks map[string]string
	}{
		{
			name:       "loading",
			monitor:    stubMonitor(true),
			databases:  []Database{stubDatabase{name: "notes"}},
			wantCode:   http.StatusServiceUnavailable,
			wantChecks: map[string]string{"local": "loading", "remote": "online", "databases": "1", "components": "ready"},
		},
		{
			name:       "loaded and offline is still ready",
			monitor:    stubMonitor(false),
			databases:  []Database{stubDatabase{name: "notes"}},
			loaded:     true,
			wantCode:   http.StatusOK,
			wantChecks: map[string]string{"local": "loaded", "remote": "offline", "databases": "1", "components": "ready"},
		},
		{
			name:       "no remote configured",
			databases:  []Database{stubDatabase{name: "notes"}},
			loaded:     true,
			wantCode:   http.StatusOK,
			wantChecks: map[string]string{"local": "loaded", "remote": "not configured", "databases": "1", "components": "ready"},
		},
		{
			name:       "no databases",
			loaded:     true,
			wantCode:   http.StatusServiceUnavailable,
			wantChecks: map[string]string{"local": "loaded", "remote": "not configured", "databases": "none", "components": "ready"},
		},
	}

	metrics.UpdateComponent(metrics.ComponentLocal, true, "")

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hs := NewHealthServer("dev", tt.monitor, tt.databases...)
			if tt.loaded {
				hs.SetLoaded()
			}

			w := httptest.NewRecorder()
			hs.readyHandler(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

			assert.Equal(t, tt.wantCode, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

			var response ReadyResponse
			require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
			assert.Equal(t, tt.wantChecks, response.Checks)
			if tt.wantCode != http.StatusOK {
				assert.Equal(t, "not ready", response.Status)
				assert.NotEmpty(t, response.Message)
			}
		})
	}
}

func TestDatabasesHandler(t *testing.T) {
	hs := NewHealthServer("dev", nil,
		stubDatabase{name: "tasks", inflight: 2, counts: map[types.Status]int{types.StatusSavePending: 2}},
		stubDatabase{name: "notes", counts: map[types.Status]int{types.StatusSynced: 5}},
	)

	w := httptest.NewRecorder()
	hs.databasesHandler(w, httptest.NewRequest(http.MethodGet, "/databases", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var out []DatabaseResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&out))
	require.Len(t, out, 2)
	assert.Equal(t, "notes", out[0].Name)
	assert.Equal(t, 5, out[0].Records["synced"])
	assert.Equal(t, "tasks", out[1].Name)
	assert.Equal(t, 2, out[1].InFlight)
	assert.Equal(t, "all", out[1].Cache)
}

func TestReadyHandlerFailedStore(t *testing.T) {
	metrics.UpdateComponent(metrics.ComponentLocal, false, "disk full")
	defer metrics.UpdateComponent(metrics.ComponentLocal, true, "")

	hs := NewHealthServer("dev", nil, stubDatabase{name: "notes"})
	hs.SetLoaded()

	w := httptest.NewRecorder()
	hs.readyHandler(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var response ReadyResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, "not_ready", response.Checks["components"])
	assert.Equal(t, "waiting for local", response.Message)
}

func TestRoutes(t *testing.T) {
	hs := NewHealthServer("dev", nil, stubDatabase{name: "notes"})
	hs.Handle("/live", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	tests := []struct {
		path           string
		expectedStatus int
	}{
		{path: "/health", expectedStatus: http.StatusOK},
		{path: "/ready", expectedStatus: http.StatusServiceUnavailable},
		{path: "/databases", expectedStatus: http.StatusOK},
		{path: "/metrics", expectedStatus: http.StatusOK},
		{path: "/live", expectedStatus: http.StatusTeapot},
		{path: "/nonexistent", expectedStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			hs.GetHandler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, tt.expectedStatus, w.Code, "Path: %s", tt.path)
		})
	}
}

func TestStartStop(t *testing.T) {
	hs := NewHealthServer("dev", nil, stubDatabase{name: "notes"})
	addr, err := hs.Start("127.0.0.1:0")
	require.NoError(t, err)

	resp, err := http.Get(fmt.Sprintf("http://%s/health", addr))
	require.NoError(t, err)
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, hs.Stop(context.Background()))
	_, err = http.Get(fmt.Sprintf("http://%s/health", addr))
	assert.Error(t, err)
}

// BenchmarkHealthHandler benchmarks the health endpoint
func BenchmarkHealthHandler(b *testing.B) {
	hs := NewHealthServer("dev", nil)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		w := httptest.NewRecorder()
		hs.healthHandler(w, req)
	}
}
