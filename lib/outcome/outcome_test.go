// Copyright 2026 The Safeoff Authors
// SPDX-License-Identifier: Apache-2.0

package outcome

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/safeoff/safeoff/lib/decision"
	"github.com/safeoff/safeoff/lib/monitorclient"
	"github.com/safeoff/safeoff/lib/poweroff"
)

func TestExitCodesAreDistinct(t *testing.T) {
	outcomes := map[string]Outcome{
		"powered off":   PoweredOff("safe", false),
		"deadline":      Abort(decision.DeadlineExceeded, "monitor unreachable"),
		"unsafe":        Abort(decision.UnsafeVerdict, "charging"),
		"signaled":      Abort(decision.Signaled, "terminated"),
		"misconfigured": FromError(&monitorclient.ConnectError{Kind: monitorclient.Misconfigured, Endpoint: "tcp://10.0.0.1:8423", Err: errors.New("not loopback")}),
		"denied":        FromError(&poweroff.ExecError{Kind: poweroff.PermissionDenied, Mechanism: "systemctl", Err: errors.New("Access denied")}),
		"unavailable":   FromError(&poweroff.ExecError{Kind: poweroff.MechanismUnavailable, Mechanism: "systemctl", Err: errors.New("not found")}),
		"in progress":   FromError(poweroff.ErrInProgress),
		"internal":      FromError(errors.New("boom")),
	}
	want := map[string]int{
		"powered off":   0,
		"deadline":      10,
		"unsafe":        11,
		"signaled":      12,
		"misconfigured": 20,
		"denied":        30,
		"unavailable":   31,
		"in progress":   32,
		"internal":      1,
	}
	for name, outcome := range outcomes {
		if got := outcome.ExitCode(); got != want[name] {
			t.Errorf("%s: ExitCode = %d, want %d", name, got, want[name])
		}
	}
	if NoOp("periodic check").ExitCode() != 0 {
		t.Error("no-op outcome must exit 0")
	}
}

func TestFromErrorSeesThroughWrapping(t *testing.T) {
	execErr := &poweroff.ExecError{Kind: poweroff.PermissionDenied, Mechanism: "syscall", Err: errors.New("EPERM")}
	outcome := FromError(fmt.Errorf("executing poweroff: %w", execErr))
	if outcome.Kind != PermissionDenied {
		t.Fatalf("Kind = %v, want PermissionDenied", outcome.Kind)
	}
	var unwrapped *poweroff.ExecError
	if !errors.As(outcome, &unwrapped) || unwrapped != execErr {
		t.Error("outcome does not unwrap to the original ExecError")
	}
	if FromError(poweroff.ErrAlreadyIssued).Kind != InProgress {
		t.Error("ErrAlreadyIssued not classified as InProgress")
	}
	if FromError(nil).Kind != Internal {
		t.Error("nil error not classified as Internal")
	}
}

func TestMessages(t *testing.T) {
	tests := []struct {
		outcome Outcome
		want    string
	}{
		{PoweredOff("safe verdict", false), "poweroff issued: safe verdict"},
		{PoweredOff("", true), "poweroff issued on deadline fallback"},
		{NoOp("monitor reports safe"), "no shutdown needed: monitor reports safe"},
		{Abort(decision.UnsafeVerdict, "charging"), "shutdown aborted (unsafe): charging"},
		{FromError(errors.New("boom")), "shutdown failed (internal-error): boom"},
	}
	for _, test := range tests {
		if got := test.outcome.Message(); got != test.want {
			t.Errorf("Message() = %q, want %q", got, test.want)
		}
	}
}

func TestLogWritesOneLine(t *testing.T) {
	var buffer bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buffer, nil))

	Abort(decision.DeadlineExceeded, "monitor unreachable").Log(context.Background(), logger, "session", "abc")

	lines := bytes.Split(bytes.TrimSpace(buffer.Bytes()), []byte("\n"))
	if len(lines) != 1 {
		t.Fatalf("got %d log lines, want 1", len(lines))
	}
	var record map[string]any
	if err := json.Unmarshal(lines[0], &record); err != nil {
		t.Fatalf("parsing log line: %v", err)
	}
	if record["level"] != "WARN" || record["abort_reason"] != "deadline-exceeded" || record["session"] != "abc" {
		t.Errorf("record = %v", record)
	}
	if record["exit_code"] != float64(10) {
		t.Errorf("exit_code = %v, want 10", record["exit_code"])
	}
}
