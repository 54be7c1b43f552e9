// Copyright 2026 The Safeoff Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides the injectable time source used by the
// shutdown agent.
//
// Every wait in a session (query timeouts, retry backoff, the executor's
// retry delay, the session deadline itself) is measured against a Clock
// rather than the time package. Production wiring passes Real(); tests
// pass Fake() and drive time with Advance, so a thirty-second session
// deadline runs in microseconds and always expires at exactly the same
// point relative to the verdicts the test feeds in.
//
// # FakeClock Synchronization
//
// A goroutine blocked in After or Sleep on a FakeClock has registered a
// pending waiter. Tests call WaitForTimers(n) before Advance so the
// advance cannot race ahead of the registration:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	go session.Run(ctx)
//	c.WaitForTimers(1)
//	c.Advance(500 * time.Millisecond)
package clock
