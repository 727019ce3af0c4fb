package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/tiersync/pkg/cascade"
	"github.com/cuemby/tiersync/pkg/types"
)

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
remote:
  url: https://api.example.com/v1
databases:
  - name: notes
`))
	require.NoError(t, err)

	assert.Equal(t, "./tiersync-data", cfg.DataDir)
	assert.Equal(t, "bolt", cfg.Store)
	assert.Equal(t, 30*time.Second, cfg.Remote.Timeout)
	assert.Equal(t, 15*time.Second, cfg.Connectivity.Interval)
	assert.Equal(t, "info", cfg.Log.Level)

	db, ok := cfg.Database("notes")
	require.True(t, ok)
	assert.Equal(t, []string{"id"}, db.Key)
	assert.Equal(t, "all", db.Cache)

	mask, err := db.Mask()
	require.NoError(t, err)
	assert.Equal(t, cascade.All, mask)
}

func TestParseFullFile(t *testing.T) {
	cfg, err := Parse([]byte(`
dataDir: /var/lib/tiersync
store: sqlite
remote:
  url: http://localhost:8080/api
  token: secret
  timeout: 5s
live:
  listen: 127.0.0.1:7070
connectivity:
  probeURL: http://localhost:8080/healthz
  interval: 1m
  timeout: 500ms
  retries: 3
metrics:
  listen: ":9100"
log:
  level: debug
  json: true
databases:
  - name: notes
    cache: pending
    cascade: local+remote
  - name: members
    key: [team, user]
    keySeparator: ":"
`))
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store)
	assert.Equal(t, 5*time.Second, cfg.Remote.Timeout)
	assert.Equal(t, "127.0.0.1:7070", cfg.Live.Listen)
	assert.True(t, cfg.Log.JSON)

	hc := cfg.HealthConfig()
	assert.Equal(t, time.Minute, hc.Interval)
	assert.Equal(t, 500*time.Millisecond, hc.Timeout)
	assert.Equal(t, 3, hc.Retries)

	notes, _ := cfg.Database("notes")
	policy, err := notes.CachePolicy()
	require.NoError(t, err)
	assert.Equal(t, types.CachePending, policy)
	mask, err := notes.Mask()
	require.NoError(t, err)
	assert.Equal(t, cascade.LocalRemote, mask)

	members, _ := cfg.Database("members")
	key, err := members.KeyFunc()(types.Fields{"team": "core", "user": 7})
	require.NoError(t, err)
	assert.Equal(t, "core:7", key)

	_, err = members.KeyFunc()(types.Fields{"team": "core"})
	assert.ErrorIs(t, err, types.ErrMissingKey)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "no databases",
			yaml: `remote: {url: "http://x"}`,
			want: "at least one database is required",
		},
		{
			name: "bad store",
			yaml: "store: redis\ndatabases: [{name: a}]",
			want: `store must be "bolt" or "sqlite"`,
		},
		{
			name: "relative remote url",
			yaml: "remote: {url: /api}\ndatabases: [{name: a}]",
			want: "not an absolute URL",
		},
		{
			name: "duplicate database",
			yaml: "databases: [{name: a}, {name: a}]",
			want: `duplicate name "a"`,
		},
		{
			name: "unknown cache",
			yaml: "databases: [{name: a, cache: sometimes}]",
			want: "unknown cache policy",
		},
		{
			name: "unknown cascade bit",
			yaml: "databases: [{name: a, cascade: local+cloud}]",
			want: "database a",
		},
		{
			name: "live dial and listen",
			yaml: "live: {url: 'ws://x', listen: ':1'}\ndatabases: [{name: a}]",
			want: "mutually exclusive",
		},
		{
			name: "zero interval",
			yaml: "connectivity: {interval: 0s}\ndatabases: [{name: a}]",
			want: "connectivity.interval must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateReportsAllProblems(t *testing.T) {
	_, err := Parse([]byte("store: redis\nconnectivity: {retries: 0}"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store must be")
	assert.Contains(t, err.Error(), "retries must be at least 1")
	assert.Contains(t, err.Error(), "at least one database")
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tiersync.yaml")
	require.NoError(t, os.WriteFile(path, []byte("databases: [{name: notes}]\n"), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, cfg.Databases, 1)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestParseRejectsMalformedYAML(t *testing.T) {
	_, err := Parse([]byte("databases: [name: {"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config")
}
