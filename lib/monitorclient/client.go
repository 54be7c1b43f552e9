// Copyright 2026 The Safeoff Authors
// SPDX-License-Identifier: Apache-2.0

package monitorclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/safeoff/safeoff/lib/codec"
	"github.com/safeoff/safeoff/lib/netutil"
	"github.com/safeoff/safeoff/lib/verdict"
)

// maxStreamBytes caps everything the agent will read from one
// connection. A session exchanges a few dozen small messages at most.
const maxStreamBytes = 1024 * 1024

// errBrokenConnection is wrapped into every error returned after the
// connection has failed once.
var errBrokenConnection = errors.New("connection already failed")

// pastDeadline unblocks in-flight I/O when the caller's context ends.
var pastDeadline = time.Unix(1, 0)

// Connection is an open stream to the monitor.
type Connection struct {
	endpoint netutil.Endpoint
	session  string
	conn     net.Conn
	encoder  *codec.Encoder
	decoder  *codec.Decoder
	broken   error
}

// Connect dials the monitor, waiting at most timeout. session is an
// opaque identifier copied into every request so the monitor can
// correlate a session's queries in its own log.
func Connect(ctx context.Context, endpoint netutil.Endpoint, session string, timeout time.Duration) (*Connection, error) {
	if timeout <= 0 {
		return nil, &ConnectError{Kind: Unreachable, Endpoint: endpoint.String(), Err: context.DeadlineExceeded}
	}
	conn, err := endpoint.Dial(ctx, timeout)
	if err != nil {
		return nil, &ConnectError{Kind: Unreachable, Endpoint: endpoint.String(), Err: err}
	}
	return &Connection{
		endpoint: endpoint,
		session:  session,
		conn:     conn,
		encoder:  codec.NewEncoder(conn),
		decoder:  codec.NewDecoder(io.LimitReader(conn, maxStreamBytes)),
	}, nil
}

// Endpoint returns the address this connection was dialed to.
func (c *Connection) Endpoint() netutil.Endpoint { return c.endpoint }

// Broken reports whether an earlier exchange failed at the transport
// level.
func (c *Connection) Broken() bool { return c.broken != nil }

// QueryVerdict asks the monitor for its verdict on trigger and waits up
// to timeout for the reply. It always returns a verdict; every failure
// is reported as Unknown.
func (c *Connection) QueryVerdict(ctx context.Context, trigger verdict.Trigger, timeout time.Duration) verdict.Verdict {
	var reply verdict.Reply
	request := verdict.Request{Action: verdict.ActionVerdict, Trigger: trigger, Session: c.session}
	if err := c.roundTrip(ctx, request, timeout, &reply); err != nil {
		return verdict.UnknownBecause("%v", err)
	}
	return reply.Verdict()
}

// NotifyPoweroff tells the monitor the host is about to power off.
func (c *Connection) NotifyPoweroff(ctx context.Context, trigger verdict.Trigger, timeout time.Duration) error {
	request := verdict.Request{Action: verdict.ActionNotifyPoweroff, Trigger: trigger, Session: c.session}
	return c.roundTrip(ctx, request, timeout, nil)
}

// Close releases the connection. Safe to call more than once.
func (c *Connection) Close() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	if c.broken == nil {
		c.broken = net.ErrClosed
	}
	return err
}

func (c *Connection) roundTrip(ctx context.Context, request verdict.Request, timeout time.Duration, result any) error {
	if c.broken != nil {
		return fmt.Errorf("%s: %w (%v)", request.Action, errBrokenConnection, c.broken)
	}
	if timeout <= 0 {
		return fmt.Errorf("%s: no time left for a reply", request.Action)
	}

	c.conn.SetDeadline(time.Now().Add(timeout))
	stop := context.AfterFunc(ctx, func() {
		c.conn.SetDeadline(pastDeadline)
	})
	defer stop()

	if err := c.encoder.Encode(request); err != nil {
		return c.fail(ctx, request.Action, "writing request", timeout, err)
	}

	var response verdict.Response
	if err := c.decoder.Decode(&response); err != nil {
		return c.fail(ctx, request.Action, "reading reply", timeout, err)
	}

	if !response.OK {
		return &MonitorError{Action: request.Action, Message: response.Error}
	}
	if result == nil {
		return nil
	}
	if len(response.Data) == 0 {
		return fmt.Errorf("%s: reply carried no data", request.Action)
	}
	if err := codec.Unmarshal(response.Data, result); err != nil {
		return fmt.Errorf("%s: malformed reply: %w", request.Action, err)
	}
	return nil
}

// fail marks the connection broken and describes err in terms of what
// the session cares about: was it a timeout, a cancellation, or the
// monitor going away.
func (c *Connection) fail(ctx context.Context, action, phase string, timeout time.Duration, err error) error {
	c.broken = err
	switch {
	case ctx.Err() != nil:
		return fmt.Errorf("%s: %s: %w", action, phase, ctx.Err())
	case netutil.IsTimeout(err):
		return fmt.Errorf("%s: no reply within %v", action, timeout)
	case netutil.IsExpectedCloseError(err):
		return fmt.Errorf("%s: monitor closed the connection", action)
	default:
		return fmt.Errorf("%s: %s: %w", action, phase, err)
	}
}
