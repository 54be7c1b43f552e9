// Copyright 2026 The Safeoff Authors
// SPDX-License-Identifier: Apache-2.0

package monitorclient

import (
	"context"
	"errors"
	"net"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/safeoff/safeoff/lib/clock"
	"github.com/safeoff/safeoff/lib/codec"
	"github.com/safeoff/safeoff/lib/monitorserver"
	"github.com/safeoff/safeoff/lib/netutil"
	"github.com/safeoff/safeoff/lib/testutil"
	"github.com/safeoff/safeoff/lib/verdict"
)

const queryTimeout = 2 * time.Second

// startMonitor serves replies on a fresh unix socket for the duration
// of the test.
func startMonitor(t *testing.T, replies monitorserver.ReplyFunc) (netutil.Endpoint, *monitorserver.Server) {
	t.Helper()
	endpoint := netutil.Endpoint{Network: "unix", Address: filepath.Join(testutil.SocketDir(t), "monitor.sock")}
	server := monitorserver.New(endpoint, replies, testutil.DiscardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		testutil.RequireReceive(t, done, 5*time.Second, "monitor shutdown")
	})
	testutil.RequireClosed(t, server.Ready(), 5*time.Second, "monitor ready")
	return endpoint, server
}

func scripted(t *testing.T, clk clock.Clock, steps ...monitorserver.ScriptStep) monitorserver.ReplyFunc {
	t.Helper()
	script, err := monitorserver.NewScript(clk, steps)
	if err != nil {
		t.Fatalf("NewScript: %v", err)
	}
	return script.Reply
}

func connect(t *testing.T, endpoint netutil.Endpoint) *Connection {
	t.Helper()
	connection, err := Connect(context.Background(), endpoint, "test-session", time.Second)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { connection.Close() })
	return connection
}

func TestQuerySequenceOnOneConnection(t *testing.T) {
	endpoint, server := startMonitor(t, scripted(t, clock.Real(),
		monitorserver.ScriptStep{Verdict: "unsafe", Reason: "charging"},
		monitorserver.ScriptStep{Verdict: "safe", BatteryLevel: 4.5, Voltage: 3.4},
	))
	connection := connect(t, endpoint)

	first := connection.QueryVerdict(context.Background(), verdict.LowBattery, queryTimeout)
	if first.Kind != verdict.Unsafe || first.Reason != "charging" {
		t.Fatalf("first verdict = %v, want unsafe(charging)", first)
	}
	second := connection.QueryVerdict(context.Background(), verdict.LowBattery, queryTimeout)
	if second.Kind != verdict.Safe {
		t.Fatalf("second verdict = %v, want safe", second)
	}
	if second.Telemetry == nil || second.Telemetry.BatteryLevel != 4.5 {
		t.Errorf("telemetry = %+v, want battery_level 4.5", second.Telemetry)
	}
	if server.Requests() != 2 {
		t.Errorf("server answered %d requests, want 2", server.Requests())
	}
}

func TestQueryTimeoutYieldsUnknownAndBreaksConnection(t *testing.T) {
	// The fake clock never advances, so the scripted delay never ends:
	// a monitor that accepts and then hangs.
	endpoint, _ := startMonitor(t, scripted(t, clock.Fake(time.Now()),
		monitorserver.ScriptStep{Verdict: "safe", Delay: "1h"},
	))
	connection := connect(t, endpoint)

	v := connection.QueryVerdict(context.Background(), verdict.Manual, 50*time.Millisecond)
	if v.Kind != verdict.Unknown || !strings.Contains(v.Reason, "no reply within") {
		t.Fatalf("verdict = %v, want unknown(no reply within ...)", v)
	}
	if !connection.Broken() {
		t.Fatal("connection not marked broken after a lost reply")
	}

	again := connection.QueryVerdict(context.Background(), verdict.Manual, queryTimeout)
	if again.Kind != verdict.Unknown || !strings.Contains(again.Reason, "connection already failed") {
		t.Fatalf("verdict on broken connection = %v", again)
	}
}

func TestQueryCancelledContext(t *testing.T) {
	endpoint, _ := startMonitor(t, scripted(t, clock.Fake(time.Now()),
		monitorserver.ScriptStep{Verdict: "safe", Delay: "1h"},
	))
	connection := connect(t, endpoint)

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan verdict.Verdict, 1)
	go func() { result <- connection.QueryVerdict(ctx, verdict.Button, time.Minute) }()
	cancel()

	v := testutil.RequireReceive(t, result, 5*time.Second, "cancelled query")
	if v.Kind != verdict.Unknown || !strings.Contains(v.Reason, context.Canceled.Error()) {
		t.Fatalf("verdict = %v, want unknown(... context canceled)", v)
	}
}

func TestMonitorErrorKeepsConnectionUsable(t *testing.T) {
	endpoint, _ := startMonitor(t, scripted(t, clock.Real(),
		monitorserver.ScriptStep{Error: "battery chip not responding"},
		monitorserver.ScriptStep{Verdict: "shutdown_requested"},
	))
	connection := connect(t, endpoint)

	first := connection.QueryVerdict(context.Background(), verdict.Remote, queryTimeout)
	if first.Kind != verdict.Unknown || !strings.Contains(first.Reason, "battery chip not responding") {
		t.Fatalf("first verdict = %v", first)
	}
	if connection.Broken() {
		t.Fatal("ok=false response broke the connection")
	}
	second := connection.QueryVerdict(context.Background(), verdict.Remote, queryTimeout)
	if second.Kind != verdict.ShutdownRequested {
		t.Fatalf("second verdict = %v, want shutdown_requested", second)
	}
}

func TestUnrecognisedTagIsUnknown(t *testing.T) {
	endpoint, _ := startMonitor(t, scripted(t, clock.Real(),
		monitorserver.ScriptStep{Verdict: "hibernate"},
	))
	connection := connect(t, endpoint)

	v := connection.QueryVerdict(context.Background(), verdict.Button, queryTimeout)
	if v.Kind != verdict.Unknown || !strings.Contains(v.Reason, `"hibernate"`) {
		t.Fatalf("verdict = %v, want unknown naming the tag", v)
	}
}

func TestMalformedReplyIsUnknown(t *testing.T) {
	endpoint := netutil.Endpoint{Network: "unix", Address: filepath.Join(testutil.SocketDir(t), "raw.sock")}
	listener, err := endpoint.Listen()
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer listener.Close()

	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		var request verdict.Request
		if err := codec.NewDecoder(conn).Decode(&request); err != nil {
			return
		}
		// ok=true, but the data is a bare integer instead of a reply map.
		data, _ := codec.Marshal(42)
		codec.NewEncoder(conn).Encode(verdict.Response{OK: true, Data: data})
	}()

	connection := connect(t, endpoint)
	v := connection.QueryVerdict(context.Background(), verdict.Button, queryTimeout)
	if v.Kind != verdict.Unknown || !strings.Contains(v.Reason, "malformed reply") {
		t.Fatalf("verdict = %v, want unknown(malformed reply)", v)
	}
}

func TestMonitorHangsUpMidSession(t *testing.T) {
	endpoint := netutil.Endpoint{Network: "unix", Address: filepath.Join(testutil.SocketDir(t), "raw.sock")}
	listener, err := endpoint.Listen()
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer listener.Close()
	go func() {
		conn, err := listener.Accept()
		if err == nil {
			conn.Close()
		}
	}()

	connection := connect(t, endpoint)
	v := connection.QueryVerdict(context.Background(), verdict.Button, queryTimeout)
	if v.Kind != verdict.Unknown {
		t.Fatalf("verdict = %v, want unknown", v)
	}
}

func TestConnectUnreachable(t *testing.T) {
	endpoint := netutil.Endpoint{Network: "unix", Address: filepath.Join(testutil.SocketDir(t), "missing.sock")}
	_, err := Connect(context.Background(), endpoint, "s", 100*time.Millisecond)

	var connectErr *ConnectError
	if !errors.As(err, &connectErr) {
		t.Fatalf("Connect error = %v, want *ConnectError", err)
	}
	if connectErr.Kind != Unreachable {
		t.Errorf("Kind = %v, want unreachable", connectErr.Kind)
	}
}

func TestConnectLoopbackTCP(t *testing.T) {
	endpoint := netutil.Endpoint{Network: "tcp", Address: "127.0.0.1:0"}
	server := monitorserver.New(endpoint, monitorserver.Fixed(verdict.Of(verdict.Safe)), testutil.DiscardLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Serve(ctx) }()
	defer func() {
		cancel()
		testutil.RequireReceive(t, done, 5*time.Second, "monitor shutdown")
	}()
	testutil.RequireClosed(t, server.Ready(), 5*time.Second, "monitor ready")

	bound := netutil.Endpoint{Network: "tcp", Address: server.Addr().(*net.TCPAddr).String()}
	connection := connect(t, bound)
	if v := connection.QueryVerdict(context.Background(), verdict.Periodic, queryTimeout); v.Kind != verdict.Safe {
		t.Fatalf("verdict = %v, want safe", v)
	}
}

func TestParseEndpointMisconfigured(t *testing.T) {
	_, err := ParseEndpoint("tcp://10.0.0.7:8423")
	var connectErr *ConnectError
	if !errors.As(err, &connectErr) || connectErr.Kind != Misconfigured {
		t.Fatalf("ParseEndpoint error = %v, want misconfigured ConnectError", err)
	}
}

func TestNotifyPoweroff(t *testing.T) {
	endpoint := netutil.Endpoint{Network: "unix", Address: filepath.Join(testutil.SocketDir(t), "monitor.sock")}
	server := monitorserver.New(endpoint, monitorserver.Fixed(verdict.Of(verdict.Safe)), testutil.DiscardLogger())
	notified := make(chan verdict.Request, 1)
	server.OnNotify(func(_ context.Context, request verdict.Request) error {
		notified <- request
		return nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Serve(ctx) }()
	defer func() {
		cancel()
		testutil.RequireReceive(t, done, 5*time.Second, "monitor shutdown")
	}()
	testutil.RequireClosed(t, server.Ready(), 5*time.Second, "monitor ready")

	connection := connect(t, endpoint)
	if err := connection.NotifyPoweroff(context.Background(), verdict.LowBattery, queryTimeout); err != nil {
		t.Fatalf("NotifyPoweroff: %v", err)
	}
	request := testutil.RequireReceive(t, notified, 5*time.Second, "notify handler")
	if request.Trigger != verdict.LowBattery || request.Session != "test-session" {
		t.Errorf("notify request = %+v", request)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	endpoint, _ := startMonitor(t, monitorserver.Fixed(verdict.Of(verdict.Safe)))
	connection := connect(t, endpoint)
	if err := connection.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := connection.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if v := connection.QueryVerdict(context.Background(), verdict.Manual, queryTimeout); v.Kind != verdict.Unknown {
		t.Fatalf("query after Close = %v, want unknown", v)
	}
}
