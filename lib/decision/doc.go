// Copyright 2026 The Safeoff Authors
// SPDX-License-Identifier: Apache-2.0

// Package decision is the agent's shutdown state machine.
//
// A Machine starts in Init, moves to Querying, and from there to one of
// the terminal states Proceed, Abort, or Completed, or to WaitRetry.
// WaitRetry returns to Querying and is the only cycle; the session
// deadline bounds it. The machine never reads the time itself: callers
// pass the current time from an injected clock, which is what lets the
// tests run a thirty-second session in a handful of Advance calls.
//
// Transition rules, first match wins:
//
//  1. ShutdownRequested proceeds immediately, whatever the time.
//  2. Past the deadline, every other verdict takes the fallback.
//  3. Unsafe aborts on a fail-open trigger (the first one ends the
//     session); on a fail-safe trigger it waits and retries.
//  4. Safe proceeds when the trigger is itself a request to power off,
//     and completes as a no-op for the periodic check.
//  5. Unknown waits and retries.
//
// The fallback, taken by Expire once the deadline passes, proceeds for
// fail-safe triggers (low battery: the power is going away regardless)
// and aborts with deadline-exceeded for fail-open ones.
//
// Once a Machine reaches Proceed nothing moves it again. Observe,
// Expire, and Interrupt on a terminal machine return the terminal step
// unchanged.
package decision
