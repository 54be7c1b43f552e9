// Copyright 2026 The Safeoff Authors
// SPDX-License-Identifier: Apache-2.0

package decision

import (
	"fmt"
	"math"
	"time"

	"github.com/safeoff/safeoff/lib/verdict"
)

// Policy is the per-trigger variant of the transition rules.
type Policy struct {
	// FailSafe selects the deadline fallback: proceed when true,
	// abort with deadline-exceeded when false.
	FailSafe bool

	// SafeMeansAct makes a Safe verdict a reason to power off. When
	// false, Safe completes the session without action.
	SafeMeansAct bool

	// AbortOnUnsafe ends the session on the first Unsafe verdict
	// instead of retrying until the deadline.
	AbortOnUnsafe bool
}

// PolicyFor returns the policy for a trigger. Low battery is the only
// fail-safe trigger. Every other trigger fails open and stops at the
// first Unsafe verdict, so whoever asked sees why nothing happened. A
// periodic check reports that answer at once; the next timer tick asks
// again.
func PolicyFor(trigger verdict.Trigger) Policy {
	switch trigger {
	case verdict.LowBattery:
		return Policy{FailSafe: true, SafeMeansAct: true}
	case verdict.Periodic:
		return Policy{AbortOnUnsafe: true}
	default:
		return Policy{SafeMeansAct: true, AbortOnUnsafe: true}
	}
}

// Backoff computes retry delays: Base doubled once per retry, capped at
// Cap. Delays are non-decreasing and never exceed Cap. A Cap of zero
// or less means no cap, in which case doubling saturates at the
// largest representable duration.
type Backoff struct {
	Base time.Duration
	Cap  time.Duration
}

// Validate reports a backoff that would hammer the monitor or never
// grow: Base must be positive and Cap, when set, at least Base.
func (b Backoff) Validate() error {
	if b.Base <= 0 {
		return fmt.Errorf("backoff base must be positive, got %v", b.Base)
	}
	if b.Cap > 0 && b.Cap < b.Base {
		return fmt.Errorf("backoff cap %v is below base %v", b.Cap, b.Base)
	}
	return nil
}

// Delay returns the wait before retry number retry (zero-based).
func (b Backoff) Delay(retry int) time.Duration {
	if b.Base <= 0 {
		return 0
	}
	limit := b.Cap
	if limit <= 0 {
		limit = math.MaxInt64
	}
	if b.Base >= limit {
		return limit
	}
	delay := b.Base
	for i := 0; i < retry; i++ {
		if delay > limit/2 {
			return limit
		}
		delay *= 2
	}
	return delay
}
