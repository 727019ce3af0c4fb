package health

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"time"
)

// TCPChecker opens and immediately closes a TCP connection. Reaching the
// listener is enough; nothing is exchanged.
type TCPChecker struct {
	Address string
	Timeout time.Duration
}

func NewTCPChecker(address string) *TCPChecker {
	return &TCPChecker{Address: address, Timeout: 2 * time.Second}
}

// NewTCPCheckerForURL dials the host of rawURL, on the scheme's default
// port when the URL names none. http, ws and https, wss are understood.
func NewTCPCheckerForURL(rawURL string) (*TCPChecker, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid probe url: %w", err)
	}
	if u.Hostname() == "" {
		return nil, fmt.Errorf("probe url %q has no host", rawURL)
	}

	port := u.Port()
	if port == "" {
		switch u.Scheme {
		case "https", "wss":
			port = "443"
		case "http", "ws":
			port = "80"
		default:
			return nil, fmt.Errorf("probe url %q has no port and unknown scheme %q", rawURL, u.Scheme)
		}
	}
	return NewTCPChecker(net.JoinHostPort(u.Hostname(), port)), nil
}

func (t *TCPChecker) Check(ctx context.Context) Result {
	start := time.Now()
	if t.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.Timeout)
		defer cancel()
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", t.Address)
	res := Result{CheckedAt: start}
	if err != nil {
		res.Message = fmt.Sprintf("dial %s: %v", t.Address, err)
	} else {
		conn.Close()
		res.Healthy = true
		res.Message = "reachable"
	}
	res.Duration = time.Since(start)
	return res
}

func (t *TCPChecker) Type() CheckType {
	return CheckTypeTCP
}

// WithTimeout bounds each dial; zero leaves only the caller's context
func (t *TCPChecker) WithTimeout(timeout time.Duration) *TCPChecker {
	t.Timeout = timeout
	return t
}
