// Copyright 2026 The Safeoff Authors
// SPDX-License-Identifier: Apache-2.0

package decision

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/safeoff/safeoff/lib/verdict"
)

var epoch = time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

var testBackoff = Backoff{Base: 500 * time.Millisecond, Cap: 8 * time.Second}

const testDeadline = 30 * time.Second

func newTestMachine(trigger verdict.Trigger) *Machine {
	m := New(trigger, epoch.Add(testDeadline), testBackoff)
	m.Query()
	return m
}

func TestLowBatteryUnsafeThenDeadlineFailsSafe(t *testing.T) {
	m := newTestMachine(verdict.LowBattery)

	step := m.Observe(verdict.UnsafeBecause("charging"), epoch)
	if step.State != WaitRetry || step.Delay != 500*time.Millisecond {
		t.Fatalf("first unsafe: got %+v, want wait-retry 500ms", step)
	}
	m.Query()
	step = m.Observe(verdict.UnsafeBecause("charging"), epoch.Add(500*time.Millisecond))
	if step.State != WaitRetry || step.Delay != time.Second {
		t.Fatalf("second unsafe: got %+v, want wait-retry 1s", step)
	}

	if step := m.Expire(epoch.Add(10 * time.Second)); step.State != WaitRetry {
		t.Fatalf("Expire before deadline moved the machine to %v", step.State)
	}

	step = m.Expire(epoch.Add(testDeadline))
	if step.State != Proceed || !step.Fallback {
		t.Fatalf("at deadline: got %+v, want fallback proceed", step)
	}
}

func TestManualUnknownUntilDeadlineFailsOpen(t *testing.T) {
	m := newTestMachine(verdict.Manual)
	now := epoch
	for m.State() != Abort {
		step := m.Observe(verdict.UnknownBecause("connection refused"), now)
		if step.State == WaitRetry {
			now = now.Add(step.Delay)
			m.Query()
			continue
		}
		if step.State != Abort {
			t.Fatalf("unexpected step %+v", step)
		}
	}
	step := m.Expire(now)
	if step.Abort != DeadlineExceeded || !step.Fallback {
		t.Fatalf("final step = %+v, want fallback abort deadline-exceeded", step)
	}
	if now.After(m.Deadline()) {
		t.Errorf("waits overshot the deadline: now=%v deadline=%v", now, m.Deadline())
	}
}

func TestSafeDependsOnTrigger(t *testing.T) {
	tests := []struct {
		trigger verdict.Trigger
		want    State
	}{
		{verdict.LowBattery, Proceed},
		{verdict.Button, Proceed},
		{verdict.Remote, Proceed},
		{verdict.Manual, Proceed},
		{verdict.Periodic, Completed},
	}
	for _, test := range tests {
		m := newTestMachine(test.trigger)
		if step := m.Observe(verdict.Of(verdict.Safe), epoch); step.State != test.want {
			t.Errorf("%s + safe: got %v, want %v", test.trigger, step.State, test.want)
		}
	}
}

func TestShutdownRequestedBypassesBackoffAndDeadline(t *testing.T) {
	for _, trigger := range verdict.Triggers {
		m := newTestMachine(trigger)
		m.Observe(verdict.Of(verdict.Unknown), epoch)
		m.Query()
		// Well past the deadline: a monitor request still wins.
		step := m.Observe(verdict.Of(verdict.ShutdownRequested), epoch.Add(time.Hour))
		if step.State != Proceed || step.Fallback {
			t.Errorf("%s: got %+v, want non-fallback proceed", trigger, step)
		}
	}
}

func TestRemoteShutdownRequestedImmediately(t *testing.T) {
	m := newTestMachine(verdict.Remote)
	step := m.Observe(verdict.Of(verdict.ShutdownRequested), epoch)
	if step.State != Proceed {
		t.Fatalf("got %v, want proceed", step.State)
	}
	if m.Retries() != 0 {
		t.Errorf("Retries() = %d, want 0", m.Retries())
	}
}

func TestFirstUnsafeAbortsFailOpenTriggers(t *testing.T) {
	for _, trigger := range []verdict.Trigger{verdict.Button, verdict.Remote, verdict.Manual, verdict.Periodic} {
		m := newTestMachine(trigger)
		step := m.Observe(verdict.UnsafeBecause("usb power present"), epoch)
		if step.State != Abort || step.Abort != UnsafeVerdict || step.Detail != "usb power present" {
			t.Errorf("%s: got %+v, want abort unsafe", trigger, step)
		}
		if step.Fallback || m.Retries() != 0 {
			t.Errorf("%s: fallback=%v retries=%d, want an immediate verdict-driven abort", trigger, step.Fallback, m.Retries())
		}
	}
}

func TestUnsafeDependsOnTrigger(t *testing.T) {
	tests := []struct {
		trigger verdict.Trigger
		want    State
	}{
		{verdict.LowBattery, WaitRetry},
		{verdict.Button, Abort},
		{verdict.Remote, Abort},
		{verdict.Manual, Abort},
		{verdict.Periodic, Abort},
	}
	for _, test := range tests {
		m := newTestMachine(test.trigger)
		if step := m.Observe(verdict.UnsafeBecause("charging"), epoch); step.State != test.want {
			t.Errorf("%s + unsafe: got %v, want %v", test.trigger, step.State, test.want)
		}
	}
}

func TestUnsafeAfterDeadlineTakesFallback(t *testing.T) {
	m := newTestMachine(verdict.Button)
	step := m.Observe(verdict.UnsafeBecause("charging"), epoch.Add(testDeadline))
	if step.State != Abort || step.Abort != DeadlineExceeded {
		t.Fatalf("got %+v, want deadline-exceeded abort", step)
	}
}

func TestWaitClampedToDeadline(t *testing.T) {
	m := New(verdict.LowBattery, epoch.Add(700*time.Millisecond), Backoff{Base: time.Second, Cap: 4 * time.Second})
	m.Query()
	step := m.Observe(verdict.Of(verdict.Unknown), epoch.Add(200*time.Millisecond))
	if step.State != WaitRetry || step.Delay != 500*time.Millisecond {
		t.Fatalf("got %+v, want wait-retry clamped to 500ms", step)
	}
}

func TestInterrupt(t *testing.T) {
	m := newTestMachine(verdict.LowBattery)
	m.Observe(verdict.Of(verdict.Unknown), epoch)
	if step := m.Interrupt(); step.State != Abort || step.Abort != Signaled {
		t.Fatalf("Interrupt during wait: got %+v", step)
	}

	m = newTestMachine(verdict.Button)
	m.Observe(verdict.Of(verdict.Safe), epoch)
	if step := m.Interrupt(); step.State != Proceed {
		t.Fatalf("Interrupt after proceed: got %v, want proceed", step.State)
	}
}

func TestExpireWithoutVerdict(t *testing.T) {
	m := New(verdict.Manual, epoch.Add(testDeadline), testBackoff)
	step := m.Expire(epoch.Add(testDeadline))
	if step.State != Abort || step.Detail != "deadline reached before any verdict" {
		t.Fatalf("got %+v", step)
	}
}

// TestProceedIsAbsorbing feeds random verdict sequences and checks that
// at most one Proceed is ever produced and that nothing leaves it.
func TestProceedIsAbsorbing(t *testing.T) {
	random := rand.New(rand.NewSource(20260301))
	kinds := []verdict.Kind{verdict.Unknown, verdict.Safe, verdict.Unsafe, verdict.ShutdownRequested}

	for run := 0; run < 2000; run++ {
		trigger := verdict.Triggers[random.Intn(len(verdict.Triggers))]
		m := newTestMachine(trigger)
		now := epoch
		proceeds := 0
		reachedProceed := false

		for i := 0; i < 40; i++ {
			var step Step
			if random.Intn(5) == 0 {
				now = now.Add(time.Duration(random.Intn(10)) * time.Second)
				step = m.Expire(now)
			} else {
				m.Query()
				step = m.Observe(verdict.Of(kinds[random.Intn(len(kinds))]), now)
				if step.State == WaitRetry {
					now = now.Add(step.Delay)
				}
			}
			if reachedProceed {
				if step.State != Proceed {
					t.Fatalf("run %d: left proceed for %v", run, step.State)
				}
				continue
			}
			if step.State == Proceed {
				proceeds++
				reachedProceed = true
			}
		}
		if proceeds > 1 {
			t.Fatalf("run %d: %d proceed transitions", run, proceeds)
		}
	}
}

// TestFinalTransitionWithinDeadline checks that every verdict-driven
// terminal transition other than ShutdownRequested happens no later
// than the deadline, and that later ones are marked as fallbacks.
func TestFinalTransitionWithinDeadline(t *testing.T) {
	random := rand.New(rand.NewSource(7))
	kinds := []verdict.Kind{verdict.Unknown, verdict.Safe, verdict.Unsafe}

	for run := 0; run < 1000; run++ {
		trigger := verdict.Triggers[random.Intn(len(verdict.Triggers))]
		m := newTestMachine(trigger)
		now := epoch
		for !m.State().Terminal() {
			m.Query()
			now = now.Add(time.Duration(random.Intn(3000)) * time.Millisecond)
			step := m.Observe(verdict.Of(kinds[random.Intn(len(kinds))]), now)
			if step.State.Terminal() {
				if now.After(m.Deadline()) && !step.Fallback {
					t.Fatalf("run %d: %v at %v after deadline without fallback", run, step.State, now)
				}
				break
			}
			now = now.Add(step.Delay)
		}
	}
}

func TestBackoffMonotonicAndCapped(t *testing.T) {
	backoffs := []Backoff{
		{Base: 500 * time.Millisecond, Cap: 8 * time.Second},
		{Base: 3 * time.Second, Cap: 5 * time.Second},
		{Base: 10 * time.Second, Cap: time.Second},
		{Base: time.Millisecond, Cap: time.Hour},
	}
	var previous time.Duration
	for _, backoff := range backoffs {
		previous = 0
		for retry := 0; retry < 80; retry++ {
			delay := backoff.Delay(retry)
			if delay < previous {
				t.Fatalf("%+v: Delay(%d) = %v < previous %v", backoff, retry, delay, previous)
			}
			if delay > backoff.Cap {
				t.Fatalf("%+v: Delay(%d) = %v exceeds cap", backoff, retry, delay)
			}
			previous = delay
		}
	}

	uncapped := Backoff{Base: time.Second}
	previous = 0
	for retry := 0; retry < 100; retry++ {
		delay := uncapped.Delay(retry)
		if delay < previous {
			t.Fatalf("uncapped: Delay(%d) = %v < previous %v", retry, delay, previous)
		}
		previous = delay
	}
	if got := uncapped.Delay(100); got != time.Duration(math.MaxInt64) {
		t.Errorf("uncapped Delay(100) = %v, want saturation at the largest duration", got)
	}

	want := []time.Duration{500 * time.Millisecond, time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 8 * time.Second}
	for retry, expected := range want {
		if got := testBackoff.Delay(retry); got != expected {
			t.Errorf("Delay(%d) = %v, want %v", retry, got, expected)
		}
	}
}

func TestBackoffValidate(t *testing.T) {
	tests := []struct {
		backoff Backoff
		wantErr bool
	}{
		{Backoff{Base: 500 * time.Millisecond, Cap: 8 * time.Second}, false},
		{Backoff{Base: time.Second, Cap: time.Second}, false},
		{Backoff{Base: time.Second}, false},
		{Backoff{Cap: time.Second}, true},
		{Backoff{Base: -time.Second, Cap: time.Second}, true},
		{Backoff{Base: 10 * time.Second, Cap: time.Second}, true},
	}
	for _, test := range tests {
		err := test.backoff.Validate()
		if (err != nil) != test.wantErr {
			t.Errorf("%+v: Validate() = %v, wantErr %v", test.backoff, err, test.wantErr)
		}
	}
}
