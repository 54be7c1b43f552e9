// Copyright 2026 The Safeoff Authors
// SPDX-License-Identifier: Apache-2.0

package decision

import (
	"fmt"
	"time"

	"github.com/safeoff/safeoff/lib/verdict"
)

// State is a node of the decision state machine.
type State int

const (
	Init State = iota
	Querying
	WaitRetry
	Proceed
	Abort
	Completed
)

func (s State) String() string {
	switch s {
	case Init:
		return "init"
	case Querying:
		return "querying"
	case WaitRetry:
		return "wait-retry"
	case Proceed:
		return "proceed"
	case Abort:
		return "abort"
	case Completed:
		return "completed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether s ends the decision phase.
func (s State) Terminal() bool {
	return s == Proceed || s == Abort || s == Completed
}

// AbortReason classifies why a session declined to power off.
type AbortReason string

const (
	DeadlineExceeded AbortReason = "deadline-exceeded"
	UnsafeVerdict    AbortReason = "unsafe"
	Signaled         AbortReason = "signaled"
)

// Step is the result of one transition.
type Step struct {
	State State

	// Delay is how long to wait before querying again. Set only when
	// State is WaitRetry; already clamped to the session deadline.
	Delay time.Duration

	// Abort is set when State is Abort.
	Abort AbortReason

	// Detail is human-readable context: the monitor's reason for an
	// unsafe abort, or the last verdict seen before a fallback.
	Detail string

	// Fallback is true when the step was taken by the deadline
	// fallback rather than by a verdict.
	Fallback bool
}

// Machine decides whether a single session powers off. It is not safe
// for concurrent use; a session drives it from one goroutine.
type Machine struct {
	trigger  verdict.Trigger
	policy   Policy
	backoff  Backoff
	deadline time.Time

	state    State
	retries  int
	unsafe   int
	observed int
	last     verdict.Verdict
	final    Step
}

// New returns a Machine in Init. The deadline is fixed for the life of
// the machine.
func New(trigger verdict.Trigger, deadline time.Time, backoff Backoff) *Machine {
	return &Machine{
		trigger:  trigger,
		policy:   PolicyFor(trigger),
		backoff:  backoff,
		deadline: deadline,
		state:    Init,
	}
}

// State returns the current state.
func (m *Machine) State() State { return m.state }

// Deadline returns the fixed session deadline.
func (m *Machine) Deadline() time.Time { return m.deadline }

// Retries returns how many times the machine has entered WaitRetry.
func (m *Machine) Retries() int { return m.retries }

// Observed returns how many verdicts the machine has been fed.
func (m *Machine) Observed() int { return m.observed }

// Last returns the most recently observed verdict.
func (m *Machine) Last() verdict.Verdict { return m.last }

// Remaining returns the time left before the deadline, never negative.
func (m *Machine) Remaining(now time.Time) time.Duration {
	if remaining := m.deadline.Sub(now); remaining > 0 {
		return remaining
	}
	return 0
}

// Query moves Init or WaitRetry to Querying. It is the caller's signal
// that a verdict request is about to go out.
func (m *Machine) Query() {
	if m.state == Init || m.state == WaitRetry {
		m.state = Querying
	}
}

// Observe feeds one verdict. The machine must be Querying; in any other
// non-terminal state the verdict is treated as if Query had been called
// first.
func (m *Machine) Observe(v verdict.Verdict, now time.Time) Step {
	if m.state.Terminal() {
		return m.final
	}
	m.state = Querying
	m.last = v
	m.observed++

	if v.Kind == verdict.ShutdownRequested {
		return m.finish(Step{State: Proceed, Detail: "monitor requested shutdown"})
	}

	if !now.Before(m.deadline) {
		return m.fallback()
	}

	switch v.Kind {
	case verdict.Unsafe:
		m.unsafe++
		if m.policy.AbortOnUnsafe && m.unsafe == 1 {
			return m.finish(Step{State: Abort, Abort: UnsafeVerdict, Detail: v.Reason})
		}
		return m.wait(now)
	case verdict.Safe:
		if m.policy.SafeMeansAct {
			return m.finish(Step{State: Proceed, Detail: "monitor reports safe"})
		}
		return m.finish(Step{State: Completed, Detail: "no action needed"})
	default:
		return m.wait(now)
	}
}

// Expire applies the deadline fallback if now is at or past the
// deadline. Before the deadline it returns the current state with no
// transition.
func (m *Machine) Expire(now time.Time) Step {
	if m.state.Terminal() {
		return m.final
	}
	if now.Before(m.deadline) {
		return Step{State: m.state}
	}
	return m.fallback()
}

// Interrupt aborts with Signaled unless the machine is already
// terminal. A machine in Proceed stays in Proceed: the poweroff is past
// the point of no return.
func (m *Machine) Interrupt() Step {
	if m.state.Terminal() {
		return m.final
	}
	return m.finish(Step{State: Abort, Abort: Signaled, Detail: "interrupted before shutdown"})
}

func (m *Machine) wait(now time.Time) Step {
	remaining := m.Remaining(now)
	if remaining <= 0 {
		return m.fallback()
	}
	delay := m.backoff.Delay(m.retries)
	if delay > remaining {
		delay = remaining
	}
	m.retries++
	m.state = WaitRetry
	return Step{State: WaitRetry, Delay: delay}
}

func (m *Machine) fallback() Step {
	detail := "deadline reached, last verdict " + m.last.String()
	if m.observed == 0 {
		detail = "deadline reached before any verdict"
	}
	if m.policy.FailSafe {
		return m.finish(Step{State: Proceed, Fallback: true, Detail: detail})
	}
	return m.finish(Step{State: Abort, Abort: DeadlineExceeded, Fallback: true, Detail: detail})
}

func (m *Machine) finish(step Step) Step {
	m.state = step.State
	m.final = step
	return step
}
