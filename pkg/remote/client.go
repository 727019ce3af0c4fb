// Package remote implements the remote tier over HTTP/JSON.
//
// Records live under {base}/{database}/{key}:
//
//	POST   create with the full diff as body
//	PATCH  update with the changed fields as body
//	DELETE remove
//	GET    fetch
//
// Transport failures are reported with status 0 so the engine can suspend
// until connectivity returns. Any non-2xx response carries its decoded body,
// which is authoritative on a 409.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/tiersync/pkg/log"
	"github.com/cuemby/tiersync/pkg/metrics"
	"github.com/cuemby/tiersync/pkg/tier"
	"github.com/cuemby/tiersync/pkg/types"
)

const defaultHttpTimeout = 30 * time.Second
const defaultHttpConnectTimeout = 5 * time.Second
const defaultHttpTlsTimeout = 5 * time.Second

func defaultClient(timeout time.Duration) *http.Client {
	dialer := &net.Dialer{
		Timeout: defaultHttpConnectTimeout,
	}
	transport := &http.Transport{
		DialContext:         dialer.DialContext,
		TLSHandshakeTimeout: defaultHttpTlsTimeout,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}

// StatusError describes a non-2xx response
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("remote returned %d", e.Status)
	}
	return fmt.Sprintf("remote returned %d: %s", e.Status, e.Message)
}

// Client is the remote tier for one database
type Client struct {
	baseURL  string
	database string
	token    string
	timeout  time.Duration
	http     *http.Client
	logger   zerolog.Logger
}

// Option configures a Client
type Option func(*Client)

// WithToken attaches a bearer token to every request
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// WithTimeout bounds every request
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// NewClient creates a remote tier for database rooted at baseURL
func NewClient(baseURL, database string, opts ...Option) *Client {
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		database: database,
		timeout:  defaultHttpTimeout,
		logger:   log.WithComponent("remote").With().Str("database", database).Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = defaultClient(c.timeout)
	}
	return c
}

var _ tier.Remote = (*Client)(nil)

func (c *Client) Create(ctx context.Context, key string, diff types.Fields, done func(tier.RemoteResult)) {
	go done(c.do(ctx, http.MethodPost, key, diff))
}

func (c *Client) Update(ctx context.Context, key string, diff types.Fields, done func(tier.RemoteResult)) {
	go done(c.do(ctx, http.MethodPatch, key, diff))
}

func (c *Client) Remove(ctx context.Context, key string, done func(tier.RemoteResult)) {
	go done(c.do(ctx, http.MethodDelete, key, nil))
}

func (c *Client) Get(ctx context.Context, key string, done func(tier.RemoteResult)) {
	go done(c.do(ctx, http.MethodGet, key, nil))
}

func (c *Client) recordURL(key string) string {
	return c.baseURL + "/" + url.PathEscape(c.database) + "/" + url.PathEscape(key)
}

func (c *Client) do(ctx context.Context, method, key string, body types.Fields) (result tier.RemoteResult) {
	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDurationVec(metrics.RemoteRequestDuration, method)
		metrics.RemoteRequestsTotal.WithLabelValues(method, strconv.Itoa(result.Status)).Inc()
	}()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body.Without())
		if err != nil {
			// Nothing was sent; report as a client-side rejection.
			return tier.RemoteResult{Status: http.StatusBadRequest, Err: fmt.Errorf("failed to encode body: %w", err)}
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.recordURL(key), reader)
	if err != nil {
		return tier.RemoteResult{Status: http.StatusBadRequest, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.token))
	}

	r, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug().Err(err).Str("method", method).Str("key", key).Msg("Remote unreachable")
		return tier.RemoteResult{Status: tier.StatusNoNetwork, Err: err}
	}
	defer r.Body.Close()

	responseBodyBytes, err := io.ReadAll(r.Body)
	if err != nil {
		return tier.RemoteResult{Status: tier.StatusNoNetwork, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	result = tier.RemoteResult{Status: r.StatusCode}
	data, decodeErr := decodeBody(responseBodyBytes)

	if r.StatusCode < 200 || r.StatusCode >= 300 {
		result.Data = data
		message := ""
		if decodeErr != nil {
			message = strings.TrimSpace(string(responseBodyBytes))
		}
		result.Err = &StatusError{Status: r.StatusCode, Message: message}
		c.logger.Debug().Int("status", r.StatusCode).Str("method", method).Str("key", key).Msg("Remote rejected request")
		return result
	}

	if decodeErr != nil {
		result.Status = http.StatusBadGateway
		result.Err = decodeErr
		return result
	}
	result.Data = data
	return result
}

// decodeBody accepts an empty body or a JSON object
func decodeBody(data []byte) (types.Fields, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	var fields types.Fields
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return fields, nil
}
