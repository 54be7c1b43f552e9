// Copyright 2026 The Safeoff Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/safeoff/safeoff/lib/clock"
	"github.com/safeoff/safeoff/lib/decision"
	"github.com/safeoff/safeoff/lib/hwinfo"
	"github.com/safeoff/safeoff/lib/monitorclient"
	"github.com/safeoff/safeoff/lib/outcome"
	"github.com/safeoff/safeoff/lib/verdict"
)

// Monitor is the session's view of a monitor connection.
// *monitorclient.Connection implements it.
type Monitor interface {
	QueryVerdict(ctx context.Context, trigger verdict.Trigger, timeout time.Duration) verdict.Verdict
	NotifyPoweroff(ctx context.Context, trigger verdict.Trigger, timeout time.Duration) error
	Broken() bool
	Close() error
}

// DialFunc opens a monitor connection within timeout. A
// *monitorclient.ConnectError of kind Misconfigured ends the session;
// any other error counts as an Unknown verdict.
type DialFunc func(ctx context.Context, session string, timeout time.Duration) (Monitor, error)

// DialEndpoint returns a DialFunc for a raw endpoint string. The
// endpoint is parsed on every dial so a bad endpoint surfaces through
// the session's outcome like any other connect failure.
func DialEndpoint(raw string) DialFunc {
	return func(ctx context.Context, session string, timeout time.Duration) (Monitor, error) {
		endpoint, err := monitorclient.ParseEndpoint(raw)
		if err != nil {
			return nil, err
		}
		connection, err := monitorclient.Connect(ctx, endpoint, session, timeout)
		if err != nil {
			return nil, err
		}
		return connection, nil
	}
}

// Executor issues the power-off. *poweroff.Executor implements it.
type Executor interface {
	Execute(ctx context.Context) error
}

// Config configures a Session.
type Config struct {
	Trigger  verdict.Trigger
	Dial     DialFunc
	Executor Executor
	Clock    clock.Clock
	Logger   *slog.Logger

	// Deadline is measured from New.
	Deadline time.Duration
	Backoff  decision.Backoff

	// ConnectTimeout and QueryTimeout bound each dial and each verdict
	// request. Both are further capped by the time left before the
	// deadline.
	ConnectTimeout time.Duration
	QueryTimeout   time.Duration

	// ID replaces the random session ID.
	ID string

	// Host is logged when the session starts.
	Host hwinfo.Host
}

// Session is one agent invocation. It is not safe for concurrent use.
type Session struct {
	config  Config
	id      string
	logger  *slog.Logger
	machine *decision.Machine
	monitor Monitor
}

// New validates config and starts the session clock.
func New(config Config) (*Session, error) {
	var errs []error
	if config.Trigger == "" {
		errs = append(errs, errors.New("trigger is required"))
	}
	if config.Dial == nil {
		errs = append(errs, errors.New("dial function is required"))
	}
	if config.Executor == nil {
		errs = append(errs, errors.New("executor is required"))
	}
	if config.Clock == nil {
		errs = append(errs, errors.New("clock is required"))
	}
	if config.Deadline <= 0 {
		errs = append(errs, fmt.Errorf("deadline must be positive, got %v", config.Deadline))
	}
	if config.ConnectTimeout <= 0 || config.QueryTimeout <= 0 {
		errs = append(errs, errors.New("connect and query timeouts must be positive"))
	}
	if err := config.Backoff.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	id := config.ID
	if id == "" {
		id = uuid.NewString()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	deadline := config.Clock.Now().Add(config.Deadline)
	return &Session{
		config:  config,
		id:      id,
		logger:  logger.With("session", id, "trigger", string(config.Trigger)),
		machine: decision.New(config.Trigger, deadline, config.Backoff),
	}, nil
}

// ID returns the session ID.
func (s *Session) ID() string { return s.id }

// Deadline returns the fixed session deadline.
func (s *Session) Deadline() time.Time { return s.machine.Deadline() }

// State returns the decision state.
func (s *Session) State() decision.State { return s.machine.State() }

// Run drives the session to its outcome, logs the outcome line, and
// closes the monitor connection.
func (s *Session) Run(ctx context.Context) outcome.Outcome {
	s.logger.Info("shutdown session started",
		"deadline", s.machine.Deadline().Format(time.RFC3339),
		"policy", s.policyName(),
		"host", s.config.Host,
	)

	result := s.run(ctx)
	s.closeMonitor()

	result.Log(context.WithoutCancel(ctx), s.logger,
		"verdicts", s.machine.Observed(),
		"retries", s.machine.Retries(),
	)
	return result
}

func (s *Session) run(ctx context.Context) outcome.Outcome {
	step, err := s.decide(ctx)
	if err != nil {
		return outcome.FromError(err)
	}

	switch step.State {
	case decision.Proceed:
		return s.execute(ctx, step)
	case decision.Completed:
		return outcome.NoOp(step.Detail)
	case decision.Abort:
		return outcome.Abort(step.Abort, step.Detail)
	default:
		return outcome.FromError(fmt.Errorf("decision ended in non-terminal state %s", step.State))
	}
}

// decide runs Querying and WaitRetry passes until the machine is
// terminal. The only error is a misconfigured monitor endpoint.
func (s *Session) decide(ctx context.Context) (decision.Step, error) {
	for {
		if ctx.Err() != nil {
			return s.machine.Interrupt(), nil
		}
		now := s.config.Clock.Now()
		if step := s.machine.Expire(now); step.State.Terminal() {
			s.logger.Info("session deadline reached", "last_verdict", s.machine.Last())
			return step, nil
		}

		s.machine.Query()
		v, err := s.query(ctx, now)
		if err != nil {
			return decision.Step{}, err
		}
		if ctx.Err() != nil {
			return s.machine.Interrupt(), nil
		}

		step := s.machine.Observe(v, s.config.Clock.Now())
		s.logger.Info("verdict received", "verdict", v, "decision", step.State.String())
		if step.State.Terminal() {
			return step, nil
		}

		s.logger.Debug("waiting before next query",
			"backoff", step.Delay,
			"attempt", s.machine.Retries(),
		)
		select {
		case <-s.config.Clock.After(step.Delay):
		case <-ctx.Done():
			return s.machine.Interrupt(), nil
		}
	}
}

// query obtains one verdict, dialing first if there is no usable
// connection.
func (s *Session) query(ctx context.Context, now time.Time) (verdict.Verdict, error) {
	remaining := s.machine.Remaining(now)

	if s.monitor != nil && s.monitor.Broken() {
		s.closeMonitor()
	}
	if s.monitor == nil {
		monitor, err := s.config.Dial(ctx, s.id, min(s.config.ConnectTimeout, remaining))
		if err != nil {
			var connectErr *monitorclient.ConnectError
			if errors.As(err, &connectErr) && connectErr.Kind == monitorclient.Misconfigured {
				return verdict.Verdict{}, err
			}
			s.logger.Debug("monitor unreachable", "error", err)
			return verdict.UnknownBecause("monitor unreachable: %v", err), nil
		}
		s.monitor = monitor

		// The dial spent part of the budget.
		remaining = s.machine.Remaining(s.config.Clock.Now())
		if remaining <= 0 {
			return verdict.UnknownBecause("deadline reached while connecting"), nil
		}
	}

	return s.monitor.QueryVerdict(ctx, s.config.Trigger, min(s.config.QueryTimeout, remaining)), nil
}

// execute issues the power-off. Signals no longer apply from here on.
func (s *Session) execute(ctx context.Context, step decision.Step) outcome.Outcome {
	ctx = context.WithoutCancel(ctx)

	if step.Fallback {
		s.logger.Warn("proceeding with shutdown on deadline fallback", "detail", step.Detail)
	}

	if s.monitor != nil && !s.monitor.Broken() {
		if err := s.monitor.NotifyPoweroff(ctx, s.config.Trigger, s.config.QueryTimeout); err != nil {
			s.logger.Warn("notifying monitor of poweroff failed", "error", err)
		}
	}
	s.closeMonitor()

	if err := s.config.Executor.Execute(ctx); err != nil {
		return outcome.FromError(err)
	}
	return outcome.PoweredOff(step.Detail, step.Fallback)
}

func (s *Session) closeMonitor() {
	if s.monitor == nil {
		return
	}
	if err := s.monitor.Close(); err != nil {
		s.logger.Debug("closing monitor connection", "error", err)
	}
	s.monitor = nil
}

func (s *Session) policyName() string {
	if decision.PolicyFor(s.config.Trigger).FailSafe {
		return "fail-safe"
	}
	return "fail-open"
}
