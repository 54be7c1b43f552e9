// Copyright 2026 The Safeoff Authors
// SPDX-License-Identifier: Apache-2.0

package poweroff

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/safeoff/safeoff/lib/clock"
	"github.com/safeoff/safeoff/lib/marker"
)

// Config configures an Executor.
type Config struct {
	// Mechanisms is the ordered chain. The first attempt uses the
	// first entry; the single retry uses the second if there is one.
	Mechanisms []Mechanism

	// RetryDelay is the pause before the retry.
	RetryDelay time.Duration

	Clock  clock.Clock
	Logger *slog.Logger

	// Flush runs once before the first attempt. Nil means sync(2).
	Flush func() error

	// Marker, when set, extends the single-power-off guarantee to
	// other agent processes on the host.
	Marker *marker.Store

	// Session is written into the marker record.
	Session string
}

// Executor issues at most one successful power-off.
type Executor struct {
	mechanisms []Mechanism
	retryDelay time.Duration
	clock      clock.Clock
	logger     *slog.Logger
	flush      func() error
	marker     *marker.Store
	session    string

	inFlight atomic.Bool
	issued   atomic.Bool
}

// New creates an Executor from config.
func New(config Config) (*Executor, error) {
	if len(config.Mechanisms) == 0 {
		return nil, errors.New("poweroff executor needs at least one mechanism")
	}
	if config.Clock == nil {
		return nil, errors.New("poweroff executor needs a clock")
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	flush := config.Flush
	if flush == nil {
		flush = flushFilesystems
	}
	return &Executor{
		mechanisms: config.Mechanisms,
		retryDelay: config.RetryDelay,
		clock:      config.Clock,
		logger:     logger,
		flush:      flush,
		marker:     config.Marker,
		session:    config.Session,
	}, nil
}

// Execute powers the host off. Failures are *ExecError; a
// MechanismUnavailable failure is retried once after RetryDelay on the
// next mechanism in the chain. A concurrent call returns ErrInProgress
// and a call after success returns ErrAlreadyIssued, neither touching
// any mechanism. With a marker store the same holds across processes.
func (e *Executor) Execute(ctx context.Context) error {
	if e.issued.Load() {
		return ErrAlreadyIssued
	}
	if !e.inFlight.CompareAndSwap(false, true) {
		return ErrInProgress
	}
	defer e.inFlight.Store(false)
	// A call that finished between the first check and the swap.
	if e.issued.Load() {
		return ErrAlreadyIssued
	}

	if e.marker != nil {
		release, err := e.claimHost()
		if err != nil {
			return err
		}
		defer release()
	}

	if err := e.flush(); err != nil {
		e.logger.Warn("flushing filesystems failed", "error", err)
	}

	first := e.mechanisms[0]
	err := e.attempt(ctx, 1, first)
	if err == nil {
		return nil
	}

	var execErr *ExecError
	if !errors.As(err, &execErr) || execErr.Kind != MechanismUnavailable {
		return err
	}

	next := first
	if len(e.mechanisms) > 1 {
		next = e.mechanisms[1]
	}
	e.logger.Warn("poweroff mechanism unavailable, retrying",
		"mechanism", first.Name(),
		"next_mechanism", next.Name(),
		"retry_delay", e.retryDelay,
		"error", err,
	)

	select {
	case <-e.clock.After(e.retryDelay):
	case <-ctx.Done():
		return err
	}
	return e.attempt(ctx, 2, next)
}

// claimHost takes the host-wide lock and checks no other agent has
// already powered off. A store that cannot be used is logged and
// skipped: it must never stand between the host and its power-off.
func (e *Executor) claimHost() (func(), error) {
	release, err := e.marker.Acquire()
	if errors.Is(err, marker.ErrLocked) {
		return nil, ErrInProgress
	}
	if err != nil {
		e.logger.Warn("poweroff lock unavailable, continuing without it",
			"directory", e.marker.Directory(),
			"error", err,
		)
		return func() {}, nil
	}

	record, found, err := e.marker.Issued()
	if err != nil {
		e.logger.Warn("reading poweroff record failed", "error", err)
	}
	if found {
		release()
		e.logger.Info("poweroff already issued by another session",
			"other_session", record.Session,
			"mechanism", record.Mechanism,
			"issued_at", record.IssuedAt,
		)
		return nil, ErrAlreadyIssued
	}
	return release, nil
}

// attempt runs one mechanism and records success.
func (e *Executor) attempt(ctx context.Context, number int, mechanism Mechanism) error {
	e.logger.Debug("issuing poweroff", "attempt", number, "mechanism", mechanism.Name())
	err := mechanism.PowerOff(ctx)
	if err == nil {
		e.issued.Store(true)
		e.logger.Info("poweroff issued", "attempt", number, "mechanism", mechanism.Name())
		e.record(mechanism.Name())
		return nil
	}
	var execErr *ExecError
	if !errors.As(err, &execErr) {
		err = unavailable(mechanism.Name(), err)
	}
	return err
}

func (e *Executor) record(mechanism string) {
	if e.marker == nil {
		return
	}
	record := marker.Record{
		Session:   e.session,
		Mechanism: mechanism,
		PID:       os.Getpid(),
		IssuedAt:  e.clock.Now(),
	}
	if err := e.marker.Record(record); err != nil {
		e.logger.Warn("writing poweroff record failed", "error", err)
	}
}
