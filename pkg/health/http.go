package health

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPChecker probes the remote service with a single request. Any
// response proves the network path, so by default every status counts as
// reachable; narrow it with WithStatusRange.
type HTTPChecker struct {
	URL     string
	Method  string
	Headers http.Header
	Client  *http.Client

	statusMin, statusMax int
}

// NewHTTPChecker creates a HEAD probe of url with a 2 second timeout
func NewHTTPChecker(url string) *HTTPChecker {
	return &HTTPChecker{
		URL:       url,
		Method:    http.MethodHead,
		Headers:   make(http.Header),
		Client:    &http.Client{Timeout: 2 * time.Second},
		statusMin: 100,
		statusMax: 599,
	}
}

func (h *HTTPChecker) Check(ctx context.Context) Result {
	start := time.Now()
	done := func(healthy bool, format string, args ...interface{}) Result {
		return Result{
			Healthy:   healthy,
			Message:   fmt.Sprintf(format, args...),
			CheckedAt: start,
			Duration:  time.Since(start),
		}
	}

	req, err := http.NewRequestWithContext(ctx, h.Method, h.URL, nil)
	if err != nil {
		return done(false, "invalid probe request: %v", err)
	}
	req.Header = h.Headers.Clone()

	resp, err := h.Client.Do(req)
	if err != nil {
		return done(false, "request failed: %v", err)
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	resp.Body.Close()

	if resp.StatusCode < h.statusMin || resp.StatusCode > h.statusMax {
		return done(false, "HTTP %d (expected %d-%d)", resp.StatusCode, h.statusMin, h.statusMax)
	}
	return done(true, "HTTP %d", resp.StatusCode)
}

func (h *HTTPChecker) Type() CheckType {
	return CheckTypeHTTP
}

func (h *HTTPChecker) WithMethod(method string) *HTTPChecker {
	h.Method = method
	return h
}

func (h *HTTPChecker) WithHeader(key, value string) *HTTPChecker {
	h.Headers.Set(key, value)
	return h
}

// WithBearer authenticates the probe like the remote client does
func (h *HTTPChecker) WithBearer(token string) *HTTPChecker {
	if token == "" {
		return h
	}
	return h.WithHeader("Authorization", "Bearer "+token)
}

// WithStatusRange sets the inclusive range of statuses counted as reachable
func (h *HTTPChecker) WithStatusRange(min, max int) *HTTPChecker {
	h.statusMin, h.statusMax = min, max
	return h
}

func (h *HTTPChecker) WithTimeout(timeout time.Duration) *HTTPChecker {
	h.Client.Timeout = timeout
	return h
}
