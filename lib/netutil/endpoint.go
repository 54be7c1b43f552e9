// Copyright 2026 The Safeoff Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"
)

// Endpoint is a parsed single-host address: a unix domain socket or a
// loopback TCP port.
type Endpoint struct {
	// Network is "unix" or "tcp".
	Network string

	// Address is the socket path for unix, host:port for tcp.
	Address string
}

func (e Endpoint) String() string {
	if e.Network == "unix" {
		return "unix://" + e.Address
	}
	return e.Network + "://" + e.Address
}

// ParseEndpoint accepts "unix:///path/to.sock", a bare absolute socket
// path, or "tcp://host:port" where host is localhost or a loopback IP.
// Any other host is rejected: the monitor is a local process and the
// agent must never ask a remote machine whether to power off.
func ParseEndpoint(raw string) (Endpoint, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Endpoint{}, fmt.Errorf("empty endpoint")
	}
	if strings.HasPrefix(raw, "/") {
		return Endpoint{Network: "unix", Address: raw}, nil
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return Endpoint{}, fmt.Errorf("parsing endpoint %q: %w", raw, err)
	}

	switch parsed.Scheme {
	case "unix":
		path := parsed.Path
		if path == "" {
			path = parsed.Opaque
		}
		if path == "" || parsed.Host != "" {
			return Endpoint{}, fmt.Errorf("endpoint %q: want unix:///absolute/path", raw)
		}
		return Endpoint{Network: "unix", Address: path}, nil
	case "tcp":
		host, port := parsed.Hostname(), parsed.Port()
		if port == "" {
			return Endpoint{}, fmt.Errorf("endpoint %q: missing port", raw)
		}
		if !isLoopbackHost(host) {
			return Endpoint{}, fmt.Errorf("endpoint %q: host %q is not a loopback address", raw, host)
		}
		return Endpoint{Network: "tcp", Address: net.JoinHostPort(host, port)}, nil
	default:
		return Endpoint{}, fmt.Errorf("endpoint %q: unsupported scheme %q (want unix or tcp)", raw, parsed.Scheme)
	}
}

func isLoopbackHost(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// Dial connects to the endpoint, giving up after timeout.
func (e Endpoint) Dial(ctx context.Context, timeout time.Duration) (net.Conn, error) {
	dialer := net.Dialer{Timeout: timeout}
	return dialer.DialContext(ctx, e.Network, e.Address)
}

// Listen opens a listener on the endpoint. For unix endpoints a stale
// socket file left by a crashed process is removed first.
func (e Endpoint) Listen() (net.Listener, error) {
	if e.Network == "unix" {
		if err := os.Remove(e.Address); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("removing stale socket %s: %w", e.Address, err)
		}
	}
	listener, err := net.Listen(e.Network, e.Address)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", e, err)
	}
	return listener, nil
}
