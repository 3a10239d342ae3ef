package sync

import (
	"context"
	"net"
	"net/url"
	"time"
)

// DialChecker reports the device online when a TCP connection to the API
// host succeeds within Timeout.
type DialChecker struct {
	Addr    string // host:port
	Timeout time.Duration
}

// NewDialChecker derives the dial address from the API base URL.
func NewDialChecker(apiURL string) (*DialChecker, error) {
	u, err := url.Parse(apiURL)
	if err != nil {
		return nil, err
	}
	port := u.Port()
	if port == "" {
		port = "443"
		if u.Scheme == "http" {
			port = "80"
		}
	}
	return &DialChecker{Addr: net.JoinHostPort(u.Hostname(), port), Timeout: 3 * time.Second}, nil
}

// Online implements Connectivity.
func (d *DialChecker) Online(ctx context.Context) bool {
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "tcp", d.Addr)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}
