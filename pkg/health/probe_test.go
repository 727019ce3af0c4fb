package health

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTCPChecker(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	checker := NewTCPChecker(ln.Addr().String())
	assert.Equal(t, CheckTypeTCP, checker.Type())
	assert.True(t, checker.Check(context.Background()).Healthy)

	addr := ln.Addr().String()
	ln.Close()
	assert.False(t, NewTCPChecker(addr).Check(context.Background()).Healthy)
}

func TestNewTCPCheckerForURL(t *testing.T) {
	tests := []struct {
		url     string
		want    string
		wantErr bool
	}{
		{url: "https://api.example.com/v1", want: "api.example.com:443"},
		{url: "http://api.example.com", want: "api.example.com:80"},
		{url: "ws://hub.local:7070/live", want: "hub.local:7070"},
		{url: "http://[::1]:8080/", want: "[::1]:8080"},
		{url: "ftp://files.example.com", wantErr: true},
		{url: "/relative", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			c, err := NewTCPCheckerForURL(tt.url)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, c.Address)
		})
	}
}

func TestStaticChecker(t *testing.T) {
	c := NewStaticChecker(false)
	assert.Equal(t, CheckTypeStatic, c.Type())
	assert.False(t, c.Check(context.Background()).Healthy)

	c.Set(true)
	result := c.Check(context.Background())
	assert.True(t, result.Healthy)
	assert.Equal(t, "online", result.Message)
}

func TestStatusUpdate(t *testing.T) {
	cfg := Config{Retries: 2}
	s := NewStatus(true)

	s.Update(Result{Healthy: false}, cfg)
	assert.True(t, s.Healthy, "one failure is below the retry threshold")
	assert.Equal(t, 1, s.ConsecutiveFailures)

	s.Update(Result{Healthy: false}, cfg)
	assert.False(t, s.Healthy)

	s.Update(Result{Healthy: true}, cfg)
	assert.True(t, s.Healthy)
	assert.Equal(t, 0, s.ConsecutiveFailures)
	assert.Equal(t, 1, s.ConsecutiveSuccesses)
}

func TestStatusUpdateZeroRetries(t *testing.T) {
	s := NewStatus(true)
	s.Update(Result{Healthy: false}, Config{})
	assert.False(t, s.Healthy)
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Positive(t, cfg.Interval)
	assert.Positive(t, cfg.Timeout)
	assert.Equal(t, 1, cfg.Retries)
}
