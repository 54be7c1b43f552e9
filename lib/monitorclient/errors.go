// Copyright 2026 The Safeoff Authors
// SPDX-License-Identifier: Apache-2.0

package monitorclient

import (
	"fmt"

	"github.com/safeoff/safeoff/lib/netutil"
)

// ConnectErrorKind classifies a failed connection attempt.
type ConnectErrorKind int

const (
	// Unreachable means nothing accepted the connection in time: the
	// socket file is missing, the port is closed, or the monitor is
	// hung. The monitor may come back; the session keeps trying
	// until its deadline.
	Unreachable ConnectErrorKind = iota

	// Misconfigured means the endpoint itself is unusable (bad syntax,
	// a non-loopback host). Retrying cannot help.
	Misconfigured
)

func (k ConnectErrorKind) String() string {
	switch k {
	case Unreachable:
		return "unreachable"
	case Misconfigured:
		return "misconfigured"
	default:
		return fmt.Sprintf("connect-error(%d)", int(k))
	}
}

// ConnectError is returned by Connect and ParseEndpoint.
type ConnectError struct {
	Kind     ConnectErrorKind
	Endpoint string
	Err      error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("monitor %s at %s: %v", e.Kind, e.Endpoint, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// MonitorError is a well-formed ok=false response. The connection is
// still usable after one.
type MonitorError struct {
	Action  string
	Message string
}

func (e *MonitorError) Error() string {
	return fmt.Sprintf("monitor rejected %q: %s", e.Action, e.Message)
}

// ParseEndpoint wraps netutil.ParseEndpoint, reporting failures as a
// Misconfigured ConnectError.
func ParseEndpoint(raw string) (netutil.Endpoint, error) {
	endpoint, err := netutil.ParseEndpoint(raw)
	if err != nil {
		return netutil.Endpoint{}, &ConnectError{Kind: Misconfigured, Endpoint: raw, Err: err}
	}
	return endpoint, nil
}
